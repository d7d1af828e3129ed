package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/agromongol/agrochat-server/internal/auth"
	"github.com/agromongol/agrochat-server/internal/core"
	"github.com/agromongol/agrochat-server/internal/proto"
	"github.com/agromongol/agrochat-server/internal/utils"
)

const writeTimeout = 10 * time.Second

var (
	errSlowConsumer = errors.New("slow consumer")
	errHubClosed    = errors.New("connection closed by server")
)

// WSOptions tunes websocket sessions.
type WSOptions struct {
	JWT          *auth.JWTConfig
	AuthRequired bool
	// AllowedOrigins are browser origins allowed to open a session, for
	// example "http://localhost:3000". "*" disables the check.
	AllowedOrigins    []string
	MaxMessageBytes   int64
	MessagesPerMinute int
}

// WSHandler upgrades HTTP connections and bridges them to core.Conn.
type WSHandler struct {
	hub  *core.Hub
	opts WSOptions
	log  *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, opts WSOptions, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{hub: hub, opts: opts, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	authUserID, err := h.authenticate(r)
	if err != nil {
		h.log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("ws handshake rejected")
		stdhttp.Error(w, "unauthorized", stdhttp.StatusUnauthorized)
		return
	}

	patterns, anyOrigin := originPatterns(h.opts.AllowedOrigins)
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     patterns,
		InsecureSkipVerify: anyOrigin,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer ws.CloseNow()
	if h.opts.MaxMessageBytes > 0 {
		ws.SetReadLimit(h.opts.MaxMessageBytes)
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn := h.hub.Connect(utils.NewID(), authUserID)
	defer h.hub.Disconnect(conn)
	go h.hub.Serve(ctx, conn)

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, ws, conn)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, ws, conn)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status, reason := closeStatus(err)
	if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
		h.log.Warn().Err(err).Str("conn_id", conn.ID).Int("status", int(status)).Msg("ws connection closed with error")
	}
	ws.Close(status, reason)
}

// authenticate resolves the token from ?token= or the Authorization header.
// It returns an empty id when no token is presented and auth is optional.
func (h *WSHandler) authenticate(r *stdhttp.Request) (string, error) {
	token := r.URL.Query().Get("token")
	if token == "" {
		if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
			token = strings.TrimPrefix(header, "Bearer ")
		}
	}

	if token == "" {
		if h.opts.AuthRequired {
			return "", errors.New("missing token")
		}
		return "", nil
	}
	if !h.opts.JWT.Enabled() {
		if h.opts.AuthRequired {
			return "", errors.New("token verification is not configured")
		}
		// Nothing to verify against; treat the session as anonymous.
		return "", nil
	}

	claims, err := auth.ValidateToken(h.opts.JWT, token)
	if err != nil {
		return "", err
	}
	return claims.UserID(), nil
}

func (h *WSHandler) readLoop(ctx context.Context, ws *websocket.Conn, conn *core.Conn) error {
	limiter := newRateLimiter(h.opts.MessagesPerMinute)

	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			return err
		}

		var inbound proto.Inbound
		if err := json.Unmarshal(data, &inbound); err != nil {
			h.log.Debug().Err(err).Str("conn_id", conn.ID).Msg("malformed ws inbound")
			if err := h.writeError(ctx, ws, "", &proto.Error{Code: core.ErrCodeBadRequest, Msg: "malformed JSON"}); err != nil {
				return err
			}
			continue
		}

		cmd, protoErr := inboundToCommand(inbound)
		if protoErr == nil && cmd.Kind == core.CommandSendRoomMessage && !limiter.allow() {
			protoErr = &proto.Error{Code: core.ErrCodeRateLimited, Msg: "too many messages, slow down"}
		}
		if protoErr != nil {
			if err := h.writeError(ctx, ws, inbound.Type, protoErr); err != nil {
				return err
			}
			continue
		}

		select {
		case conn.Commands <- cmd:
		case <-conn.Done():
			return errHubClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, ws *websocket.Conn, conn *core.Conn) error {
	for {
		select {
		case event := <-conn.Events:
			if err := h.write(ctx, ws, outboundFromEvent(event)); err != nil {
				h.log.Error().Err(err).Str("conn_id", conn.ID).Msg("write ws event")
				return err
			}
		case <-conn.Slow():
			return errSlowConsumer
		case <-conn.Done():
			return errHubClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) writeError(ctx context.Context, ws *websocket.Conn, inboundType string, perr *proto.Error) error {
	return h.write(ctx, ws, errorOutbound(inboundType, perr))
}

func (h *WSHandler) write(ctx context.Context, ws *websocket.Conn, out proto.Outbound) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, ws, out)
}

func closeStatus(err error) (websocket.StatusCode, string) {
	switch {
	case err == nil, errors.Is(err, context.Canceled), errors.Is(err, io.EOF):
		return websocket.StatusNormalClosure, "closing"
	case errors.Is(err, errSlowConsumer):
		return websocket.StatusPolicyViolation, errSlowConsumer.Error()
	case errors.Is(err, errHubClosed):
		return websocket.StatusGoingAway, errHubClosed.Error()
	}
	// CloseStatus is -1 when err is not a close frame.
	if s := websocket.CloseStatus(err); s != -1 {
		if s == websocket.StatusNormalClosure || s == websocket.StatusGoingAway {
			return s, "closing"
		}
		return s, ""
	}
	return websocket.StatusInternalError, "internal error"
}

// originPatterns converts allowed origins into host patterns understood by
// websocket.Accept. Same-host requests are always accepted.
func originPatterns(origins []string) ([]string, bool) {
	patterns := make([]string, 0, len(origins))
	for _, origin := range origins {
		origin = strings.TrimSpace(origin)
		if origin == "*" {
			return nil, true
		}
		if _, host, ok := strings.Cut(origin, "://"); ok {
			origin = host
		}
		origin = strings.TrimSuffix(origin, "/")
		if origin != "" {
			patterns = append(patterns, origin)
		}
	}
	return patterns, false
}
