package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"quizdesk-service/internal/app"
	"quizdesk-service/internal/auth"
	"quizdesk-service/internal/domain"
)

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
	Kind    string `json:"kind"`
}

func wsError(err error) outboundMessage[any] {
	kind := domain.KindOf(err)
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: publicMessage(kind, err), Kind: kind.String()}}
}

// ServeWS upgrades the request and drives the caller's exam session over the
// socket. Every state change is pushed as a "session" snapshot. Closing the
// socket does not stop the countdown; reconnecting resumes the same session.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	examID := chi.URLParam(r, "examID")
	p := auth.PrincipalFrom(r.Context())

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	session, err := s.Sessions.Start(r.Context(), p, examID)
	if err != nil {
		_ = conn.WriteJSON(wsError(err))
		return
	}

	updates, cancel := session.Subscribe()
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// Single writer: gorilla connections do not support concurrent writes.
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				s.log.Debug("ws write error", zap.Error(err))
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "session", Payload: update}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		if err := s.dispatch(r.Context(), session, inbound); err != nil {
			select {
			case send <- wsError(err):
			case <-writerDone:
			}
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

// dispatch applies one client command. Successful commands answer through the
// subscription; only failures are returned here.
func (s *Server) dispatch(ctx context.Context, session *app.Session, msg inboundMessage) error {
	var err error
	switch msg.Type {
	case "select":
		var payload selectPayload
		if jsonErr := json.Unmarshal(msg.Payload, &payload); jsonErr != nil {
			return domain.Errorf(domain.KindValidation, "invalid select payload")
		}
		_, err = session.SelectAnswer(payload.QuestionID, payload.Option)
	case "next":
		_, err = session.Next()
	case "previous":
		_, err = session.Previous()
	case "finish":
		_, err = session.Finish(ctx)
	default:
		return domain.Errorf(domain.KindValidation, "unsupported message type %q", msg.Type)
	}
	return err
}
