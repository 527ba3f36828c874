package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"proctor-quiz-service/internal/app"
	"proctor-quiz-service/internal/domain"
	"github.com/gorilla/websocket"
)

// ProctorHandler runs the anti-cheat monitor over a websocket. The client
// streams tab visibility/focus events; the server debounces them into
// strikes and pushes the disqualification verdict. Disqualification is
// persisted before the verdict is sent, so a reload cannot continue the
// attempt.
type ProctorHandler struct {
	store    app.ParticipantStore
	upgrader websocket.Upgrader
}

func NewProctorHandler(store app.ParticipantStore) *ProctorHandler {
	return &ProctorHandler{
		store: store,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type proctorInbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type signalPayload struct {
	Signal string `json:"signal"`
}

type strikePayload struct {
	Strikes int  `json:"strikes"`
	Warning bool `json:"warning"`
}

type proctorOutbound[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type proctorError struct {
	Message string `json:"message"`
}

func (h *ProctorHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		http.Error(w, "missing email", http.StatusBadRequest)
		return
	}

	p, err := h.store.Get(r.Context(), email)
	if err != nil {
		if errors.Is(err, domain.ErrParticipantNotFound) {
			http.Error(w, "participant not found", http.StatusNotFound)
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if p.Status.Terminal() {
		http.Error(w, "attempt already finished", http.StatusForbidden)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("proctor ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	monitor := app.NewMonitor(h.store, email, p.StrikeCount)

	send := make(chan proctorOutbound[any], 16)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("proctor ws write error: %v", err)
				return
			}
		}
	}()

	send <- proctorOutbound[any]{Type: "watching", Payload: strikePayload{Strikes: monitor.Strikes()}}

loop:
	for {
		var inbound proctorInbound
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		if inbound.Type != "signal" {
			send <- proctorOutbound[any]{Type: "error", Payload: proctorError{Message: "unsupported message type"}}
			continue
		}
		var payload signalPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			send <- proctorOutbound[any]{Type: "error", Payload: proctorError{Message: "invalid signal payload"}}
			continue
		}

		verdict, err := monitor.Report(r.Context(), app.Signal(payload.Signal))
		if err != nil {
			send <- proctorOutbound[any]{Type: "error", Payload: proctorError{Message: err.Error()}}
			continue
		}
		switch {
		case verdict.Disqualified:
			send <- proctorOutbound[any]{Type: "disqualified", Payload: strikePayload{Strikes: verdict.Strikes}}
			break loop
		case verdict.Warn:
			send <- proctorOutbound[any]{Type: "strike", Payload: strikePayload{Strikes: verdict.Strikes, Warning: true}}
		default:
			send <- proctorOutbound[any]{Type: "ok", Payload: strikePayload{Strikes: verdict.Strikes}}
		}
	}

	close(send)
	<-writerDone
}
