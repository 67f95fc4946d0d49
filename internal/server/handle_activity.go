package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/playperu/treasurehunt/internal/activity"
	"github.com/playperu/treasurehunt/internal/engine"
)

const defaultRecentLimit = 50

func handleRecentActivity(e *engine.Engine, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultRecentLimit
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil {
				writeError(w, http.StatusBadRequest, "limit must be a number")
				return
			}
			limit = n
		}

		acts, err := e.RecentActivity(r.Context(), chi.URLParam(r, "eventID"), limit)
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, acts)
	}
}

// handleActivityStream streams an event's activity as Server-Sent Events.
// A subscriber that falls too far behind gets a final "lagged" event and
// should reconnect.
func handleActivityStream(e *engine.Engine, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, http.StatusInternalServerError, "streaming not supported")
			return
		}

		sub, err := e.Subscribe(r.Context(), chi.URLParam(r, "eventID"))
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		defer sub.Close()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		flusher.Flush()

		ping := time.NewTicker(30 * time.Second)
		defer ping.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case a, ok := <-sub.Events():
				if !ok {
					if errors.Is(sub.Err(), activity.ErrLagged) {
						fmt.Fprintf(w, "event: lagged\ndata: {}\n\n")
						flusher.Flush()
					}
					return
				}
				data, err := json.Marshal(a)
				if err != nil {
					logger.Error("encoding activity", "error", err)
					return
				}
				fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", a.ID, a.Type, data)
				flusher.Flush()
			case <-ping.C:
				fmt.Fprintf(w, ": ping\n\n")
				flusher.Flush()
			}
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleActivitySocket streams the same activity as handleActivityStream
// over a WebSocket, one JSON text message per activity.
func handleActivitySocket(e *engine.Engine, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eventID := chi.URLParam(r, "eventID")
		ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
		defer cancel()

		sub, err := e.Subscribe(ctx, eventID)
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		defer sub.Close()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Debug("websocket upgrade failed", "error", err)
			return
		}
		defer conn.Close()

		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		})

		writeDone := make(chan struct{})
		go func() {
			defer close(writeDone)
			defer conn.Close()
			ping := time.NewTicker(30 * time.Second)
			defer ping.Stop()
			for {
				select {
				case a, ok := <-sub.Events():
					if !ok {
						code, text := websocket.CloseNormalClosure, "bye"
						if errors.Is(sub.Err(), activity.ErrLagged) {
							code, text = websocket.CloseTryAgainLater, "lagged"
						}
						_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(time.Second))
						return
					}
					data, err := json.Marshal(a)
					if err != nil {
						logger.Error("encoding activity", "error", err)
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
						return
					}
				case <-ping.C:
					if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
						return
					}
				}
			}
		}()

		// Reads only keep the deadline moving and notice the peer leaving.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}

		cancel()
		select {
		case <-writeDone:
		case <-time.After(500 * time.Millisecond):
		}
	}
}
