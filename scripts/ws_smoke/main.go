package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/streamchat/internal/log"
	transporthttp "github.com/vovakirdan/streamchat/internal/transport/http"
)

func main() {
	logger := log.New("info", "console")
	if err := run(); err != nil {
		logger.Error().Err(err).Msg("ws_smoke failed")
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "feed WebSocket address")
	channel := flag.String("channel", "", "channel to join and filter on")
	text := flag.String("text", "", "message to say after joining (empty to stay silent)")
	count := flag.Int("count", 1, "number of chat messages to wait for")
	token := flag.String("token", os.Getenv("STREAMCHAT_TOKEN"), "bearer token for the feed (see streamchat token)")
	timeout := flag.Duration("timeout", 30*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	url := *addr
	if *channel != "" {
		url += "?channel=" + *channel
	}

	opts := &websocket.DialOptions{HTTPHeader: http.Header{}}
	if *token != "" {
		opts.HTTPHeader.Set("Authorization", "Bearer "+*token)
	}
	conn, _, err := websocket.Dial(ctx, url, opts)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	mustSend := func(kind string, data any) error {
		payload, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", kind, err)
		}
		if err := wsjson.Write(ctx, conn, transporthttp.Inbound{Type: kind, Data: payload}); err != nil {
			return fmt.Errorf("send %s: %w", kind, err)
		}
		return nil
	}

	if *channel != "" {
		if err := mustSend(transporthttp.InboundTypeJoin, transporthttp.ChannelData{Channel: *channel}); err != nil {
			return err
		}
		if *text != "" {
			if err := mustSend(transporthttp.InboundTypeSay, transporthttp.SayData{Channel: *channel, Text: *text}); err != nil {
				return err
			}
		}
	}

	seen := 0
	for seen < *count {
		var outbound struct {
			Type  string                   `json:"type"`
			Event string                   `json:"event"`
			Data  json.RawMessage          `json:"data"`
			Error *transporthttp.FeedError `json:"error"`
		}
		if err := wsjson.Read(ctx, conn, &outbound); err != nil {
			return fmt.Errorf("read: %w", err)
		}

		switch outbound.Type {
		case "error":
			if outbound.Error != nil {
				fmt.Printf("error: %s %s\n", outbound.Error.Code, outbound.Error.Msg)
			}
		case "ack":
			fmt.Printf("ack: %s\n", outbound.Event)
		case "event":
			var evt transporthttp.EventMessage
			if err := json.Unmarshal(outbound.Data, &evt); err != nil {
				fmt.Printf("raw data: %s\n", string(outbound.Data))
				return fmt.Errorf("unmarshal message: %w", err)
			}
			fmt.Printf("%s %s <%s> %s\n", evt.Command, evt.Channel, evt.Source, evt.Text)
			if evt.Command == "PRIVMSG" {
				seen++
			}
		}
	}
	return nil
}
