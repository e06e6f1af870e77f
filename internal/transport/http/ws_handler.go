package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"quiz-runner/internal/app"
	"quiz-runner/internal/domain"
)

type WSHandler struct {
	service  *app.QuizService
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.QuizService, logger *slog.Logger) *WSHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSHandler{
		service: service,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	OptionID domain.ID `json:"optionId"`
}

type powerUpPayload struct {
	Kind string `json:"kind"`
}

type powerUpResult struct {
	Kind      domain.PowerUpKind `json:"kind"`
	Activated bool               `json:"activated"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades the request, starts a session on ?quizId= and streams its
// state until the client disconnects. Leaving tears the session down.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	quizID := r.URL.Query().Get("quizId")
	if quizID == "" {
		http.Error(w, "missing quizId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	send := make(chan outboundMessage, 16)
	writerDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		failed := false
		for msg := range send {
			if failed {
				continue
			}
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug("ws write error", "error", err)
				failed = true
			}
		}
	}()

	sessionID, fwd := h.begin(ctx, quizID, send)

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- outboundMessage{Type: "error", Payload: errorPayload{Message: "invalid answer payload"}}
				continue
			}
			outcome, err := h.service.Answer(ctx, sessionID, payload.OptionID)
			if err != nil {
				send <- errorMessage(err)
				continue
			}
			send <- outboundMessage{Type: "answerResult", Payload: outcome}
		case "powerUp":
			var payload powerUpPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- outboundMessage{Type: "error", Payload: errorPayload{Message: "invalid power-up payload"}}
				continue
			}
			kind, err := domain.ParsePowerUpKind(payload.Kind)
			if err != nil {
				send <- errorMessage(err)
				continue
			}
			_, activated, err := h.service.ActivatePowerUp(ctx, sessionID, kind)
			if err != nil {
				send <- errorMessage(err)
				continue
			}
			send <- outboundMessage{Type: "powerUpResult", Payload: powerUpResult{Kind: kind, Activated: activated}}
		case "restart":
			fwd.stop()
			state, err := h.service.Restart(ctx, sessionID)
			switch {
			case errors.Is(err, domain.ErrSessionNotFound):
				// the previous start failed and was never kept
				sessionID, fwd = h.begin(ctx, quizID, send)
			case err != nil:
				sessionID = state.SessionID
				fwd = h.report(state, err, send)
			default:
				sessionID = state.SessionID
				fwd = h.attach(ctx, sessionID, send)
			}
		default:
			send <- outboundMessage{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
		}
	}

	fwd.stop()
	h.service.End(context.Background(), sessionID)
	close(send)
	<-writerDone
}

// begin starts a session on quizID and streams it. A failed start is reported
// with its loading snapshot; the session is not kept, so nothing is attached.
func (h *WSHandler) begin(ctx context.Context, quizID string, send chan<- outboundMessage) (string, *forwarder) {
	state, err := h.service.Start(ctx, quizID)
	if err != nil {
		return state.SessionID, h.report(state, err, send)
	}
	return state.SessionID, h.attach(ctx, state.SessionID, send)
}

func (h *WSHandler) report(state domain.State, err error, send chan<- outboundMessage) *forwarder {
	send <- errorMessage(err)
	send <- outboundMessage{Type: "state", Payload: state}
	fwd := &forwarder{quit: make(chan struct{}), done: make(chan struct{})}
	close(fwd.done)
	return fwd
}

// forwarder pumps session snapshots into the connection's send queue.
type forwarder struct {
	quit             chan struct{}
	done             chan struct{}
	stopSubscription func()
}

func (f *forwarder) stop() {
	close(f.quit)
	if f.stopSubscription != nil {
		f.stopSubscription()
	}
	<-f.done
}

func (h *WSHandler) attach(ctx context.Context, sessionID string, send chan<- outboundMessage) *forwarder {
	fwd := &forwarder{quit: make(chan struct{}), done: make(chan struct{})}
	updates, cancel, err := h.service.Subscribe(ctx, sessionID)
	if err != nil {
		close(fwd.done)
		send <- errorMessage(err)
		return fwd
	}
	fwd.stopSubscription = cancel

	go func() {
		defer close(fwd.done)
		for {
			select {
			case state, ok := <-updates:
				if !ok {
					return
				}
				if !deliver(fwd.quit, send, outboundMessage{Type: "state", Payload: state}) {
					return
				}
				if state.Phase != domain.PhaseComplete {
					continue
				}
				results, err := h.service.Results(ctx, sessionID)
				if err != nil {
					continue
				}
				if !deliver(fwd.quit, send, outboundMessage{Type: "results", Payload: results}) {
					return
				}
			case <-fwd.quit:
				return
			}
		}
	}()
	return fwd
}

func deliver(quit <-chan struct{}, send chan<- outboundMessage, msg outboundMessage) bool {
	select {
	case send <- msg:
		return true
	case <-quit:
		return false
	}
}

func errorMessage(err error) outboundMessage {
	return outboundMessage{Type: "error", Payload: errorPayload{Message: err.Error()}}
}
