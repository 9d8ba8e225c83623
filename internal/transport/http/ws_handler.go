package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/bonfirelabs/bonfire-server/internal/auth"
	"github.com/bonfirelabs/bonfire-server/internal/core"
	"github.com/bonfirelabs/bonfire-server/internal/proto"
)

// wsFrameLimit is the per-connection inbound frame budget per minute.
const wsFrameLimit = 600

// WSHandler upgrades HTTP connections, verifies the caller's identity, and
// bridges frames to the real-time core.
type WSHandler struct {
	hub      *core.Hub
	verifier auth.Verifier
	log      *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, verifier auth.Verifier, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{hub: hub, verifier: verifier, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	identity, err := h.verifier.Verify(tokenFromRequest(r))
	if err != nil {
		h.log.Debug().Err(err).Msg("ws handshake rejected")
		stdhttp.Error(w, "unauthorized", stdhttp.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	client := h.hub.Registry.Register(identity.UserID, identity.Username)
	defer h.hub.Registry.Close(client)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stop := make(chan struct{})
	defer close(stop)
	limiter := newRateLimiter(wsFrameLimit)
	limiter.startReset(stop)

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client, limiter)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("conn_id", client.ID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

// readLoop consumes inbound frames and dispatches them to the registry,
// pipeline, or presence tracker. Domain errors become error frames on the
// connection's own outbound queue; only transport failures end the loop.
func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Conn, limiter *rateLimiter) error {
	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			return err
		}
		client.Touch()

		if !limiter.allow() {
			client.Send(errorEvent(&core.Error{Code: core.ErrCodeBadRequest, Message: "rate limit exceeded"}))
			continue
		}

		if err := h.dispatch(ctx, client, inbound); err != nil {
			h.log.Warn().Err(err).Str("conn_id", client.ID).Msg("failed to handle inbound frame")
			return err
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Conn) error {
	for {
		ev, ok := client.Next(ctx)
		if !ok {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return nil
		}
		if err := wsjson.Write(ctx, conn, outboundFromEvent(ev)); err != nil {
			h.log.Debug().Err(err).Str("conn_id", client.ID).Msg("write ws event")
			return err
		}
	}
}
