package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/cloo-solutions/groundwork/internal/api"
	"github.com/cloo-solutions/groundwork/internal/domain"
	"github.com/cloo-solutions/groundwork/internal/service"
)

type AnswerService interface {
	Ask(ctx context.Context, in service.AskInput) (*service.Answer, error)
	AskStream(ctx context.Context, in service.AskInput, onChunk func(string) error, onDone func([]service.Citation, service.AnswerMetadata)) error
}

type AskHandler struct {
	svc    AnswerService
	logger *slog.Logger
}

func NewAskHandler(svc AnswerService, logger *slog.Logger) *AskHandler {
	return &AskHandler{svc: svc, logger: logger.With("component", "ask-handler")}
}

type AskRequest struct {
	Question string `json:"question"`
	Mode     string `json:"mode"`
	UserID   string `json:"user_id"`
}

func (req AskRequest) input() (service.AskInput, error) {
	mode, err := domain.ParseAnswerMode(req.Mode)
	if err != nil {
		return service.AskInput{}, err
	}
	if err := service.ValidateQuestion(req.Question); err != nil {
		return service.AskInput{}, err
	}
	return service.AskInput{Question: req.Question, Mode: mode, UserID: req.UserID}, nil
}

func (h *AskHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.HandleError(w, err)
		return
	}
	in, err := req.input()
	if err != nil {
		api.HandleError(w, err)
		return
	}

	answer, err := h.svc.Ask(r.Context(), in)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, answer)
}

type streamChunk struct {
	Content string `json:"content"`
}

type streamDone struct {
	Sources  []service.Citation     `json:"sources"`
	Metadata service.AnswerMetadata `json:"metadata"`
}

// AskStream answers over server-sent events: chunk events in arrival order,
// then a single done or error event. Validation failures are reported as
// plain JSON before the stream starts.
func (h *AskHandler) AskStream(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.HandleError(w, err)
		return
	}
	in, err := req.input()
	if err != nil {
		api.HandleError(w, err)
		return
	}

	sse := newEventWriter(w)
	sse.start()

	err = h.svc.AskStream(r.Context(), in,
		func(piece string) error {
			return sse.send("chunk", streamChunk{Content: piece})
		},
		func(sources []service.Citation, meta service.AnswerMetadata) {
			if sources == nil {
				sources = []service.Citation{}
			}
			if err := sse.send("done", streamDone{Sources: sources, Metadata: meta}); err != nil {
				h.logger.DebugContext(r.Context(), "client went away before done event", "error", err)
			}
		},
	)
	if err == nil || r.Context().Err() != nil {
		return
	}

	if sendErr := sse.send("error", api.ErrorResponse{Error: domain.ErrAnswerUnavailable.Message}); sendErr != nil {
		h.logger.DebugContext(r.Context(), "failed to write error event", "error", sendErr)
	}
}

type eventWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

func newEventWriter(w http.ResponseWriter) *eventWriter {
	return &eventWriter{w: w, rc: http.NewResponseController(w)}
}

func (e *eventWriter) start() {
	h := e.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	e.w.WriteHeader(http.StatusOK)
	_ = e.rc.Flush()
}

func (e *eventWriter) send(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	return e.rc.Flush()
}
