package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"stakevault/core"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsBuffer       = 128
)

// handleEventStream pushes committed receipts to the client. The optional
// "type" query parameter keeps only receipts carrying an event with that
// type prefix; "sender" keeps only receipts from that account.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	filter := streamFilter{
		eventPrefix: strings.TrimSpace(r.URL.Query().Get("type")),
		sender:      strings.TrimSpace(r.URL.Query().Get("sender")),
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	// The stream is write-only; CloseRead handles pings and the close frame.
	ctx := conn.CloseRead(r.Context())
	if err := s.streamReceipts(ctx, conn, filter); err != nil {
		if status := websocket.CloseStatus(err); status == -1 && ctx.Err() == nil {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

type streamFilter struct {
	eventPrefix string
	sender      string
}

func (f streamFilter) match(receipt *core.Receipt) bool {
	if f.sender != "" && receipt.Sender != f.sender {
		return false
	}
	if f.eventPrefix == "" {
		return true
	}
	for _, evt := range receipt.Events {
		if evt != nil && strings.HasPrefix(evt.Type, f.eventPrefix) {
			return true
		}
	}
	return false
}

func (s *Server) streamReceipts(ctx context.Context, conn *websocket.Conn, filter streamFilter) error {
	updates, cancel := s.backend.Subscribe(wsBuffer)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case receipt, ok := <-updates:
			if !ok {
				return nil
			}
			if !filter.match(receipt) {
				continue
			}
			if err := writeReceipt(ctx, conn, receipt); err != nil {
				return err
			}
		}
	}
}

func writeReceipt(ctx context.Context, conn *websocket.Conn, receipt *core.Receipt) error {
	data, err := json.Marshal(StreamMessage{Receipt: receipt})
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
