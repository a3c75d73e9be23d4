package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/streamchat/internal/irc"
	"github.com/vovakirdan/streamchat/internal/state"
	"github.com/vovakirdan/streamchat/internal/utils"
)

const feedBuffer = 256

// WSHandler upgrades HTTP connections and streams received chat messages to
// them. Clients may send join, part and say commands back.
type WSHandler struct {
	svc     ChatService
	origins []string
	log     *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler. Browsers may only connect from
// the server's own host or one matching origins.
func NewWSHandler(svc ChatService, origins []string, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{svc: svc, origins: origins, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	filter := state.NormalizeChannel(r.URL.Query().Get("channel"))

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.origins,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	clientID := utils.ShortID()
	events := make(chan irc.Message, feedBuffer)
	unsubscribe := h.svc.OnMessage(func(msg irc.Message) {
		if filter != "" && msg.Channel != filter {
			return
		}
		select {
		case events <- msg:
		default:
			h.log.Warn().Str("client_id", clientID).Msg("feed client too slow, message dropped")
		}
	})
	defer unsubscribe()

	h.log.Debug().Str("client_id", clientID).Str("channel", filter).Msg("feed client connected")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, clientID)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, clientID, events)
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
			h.log.Warn().Err(err).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, clientID string) error {
	for {
		var inbound Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			h.log.Debug().Err(err).Str("client_id", clientID).Msg("read ws inbound")
			return err
		}

		cmd, feedErr, err := inboundToCommand(inbound)
		if err != nil {
			h.log.Warn().Err(err).Str("client_id", clientID).Msg("failed to map inbound")
			return err
		}
		if feedErr == nil {
			if applyErr := cmd.apply(h.svc); applyErr != nil {
				feedErr = feedErrorFrom(applyErr)
			}
		}

		reply := Outbound{Type: "ack", Event: inbound.Type}
		if feedErr != nil {
			reply = Outbound{Type: "error", Error: feedErr}
		}
		if err := wsjson.Write(ctx, conn, reply); err != nil {
			return err
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, clientID string, events <-chan irc.Message) error {
	for {
		select {
		case msg := <-events:
			if err := wsjson.Write(ctx, conn, outboundFromMessage(msg, time.Now())); err != nil {
				h.log.Error().Err(err).Str("client_id", clientID).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
