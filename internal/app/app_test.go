package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/agromongol/agrochat-server/internal/config"
)

func TestNewSelectsStore(t *testing.T) {
	logger := zerolog.Nop()

	tests := []struct {
		name    string
		store   config.StoreConfig
		wantErr bool
	}{
		{name: "memory", store: config.StoreConfig{Driver: config.DriverMemory}},
		{name: "sqlite", store: config.StoreConfig{Driver: config.DriverSQLite, DatabasePath: filepath.Join(t.TempDir(), "chat.db")}},
		{name: "unknown", store: config.StoreConfig{Driver: "mysql"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Store = tt.store

			a, err := New(context.Background(), &cfg, &logger)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if err := a.store.Ping(context.Background()); err != nil {
				t.Fatalf("store ping failed: %v", err)
			}
			a.cleanup()
		})
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	logger := zerolog.Nop()
	cfg := config.Default()
	cfg.Addr = "127.0.0.1:0"
	cfg.Store = config.StoreConfig{Driver: config.DriverMemory}

	a, err := New(context.Background(), &cfg, &logger)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	cancel()

	if err := <-done; err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
}
