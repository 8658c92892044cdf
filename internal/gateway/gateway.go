// Package gateway exposes the synchronous HTTP surface: the trigger
// endpoint that acknowledges immediately and hands work to the
// coordinator, plus a small inspection API over instances.
package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tsudo/taskrelay/internal/persistence"
	"github.com/tsudo/taskrelay/pkg/api"
)

// maxBodyBytes bounds the trigger request body.
const maxBodyBytes = 1 << 20

// Handler serves the trigger and inspection endpoints.
type Handler struct {
	coordinator api.Coordinator
	verifier    Verifier
	logger      *slog.Logger
}

// NewHandler creates a Handler. A nil verifier accepts every request and a
// nil logger discards logs.
func NewHandler(coordinator api.Coordinator, verifier Verifier, logger *slog.Logger) *Handler {
	if verifier == nil {
		verifier = NoopVerifier{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{
		coordinator: coordinator,
		verifier:    verifier,
		logger:      logger,
	}
}

// Register attaches the handler's routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /trigger", h.handleTrigger)
	mux.HandleFunc("GET /instances", h.handleListInstances)
	mux.HandleFunc("GET /instances/{id}", h.handleGetInstance)
	mux.HandleFunc("POST /instances/{id}/cancel", h.handleCancelInstance)
	mux.HandleFunc("GET /healthz", h.handleHealthz)
}

// handleTrigger is the synchronous entry point. It verifies and decodes
// the request, starts (or re-starts) the instance keyed by the requesting
// user, and answers with a spoken acknowledgement without waiting for the
// activity. A start that loses to an already-active instance still gets
// the launch acknowledgement: the user's job is running either way.
func (h *Handler) handleTrigger(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unable to read request body")
		return
	}

	if err := h.verifier.Verify(body, r.Header.Get(SignatureHeader)); err != nil {
		h.logger.Warn("rejected trigger request", "error", err)
		writeError(w, http.StatusForbidden, "invalid signature")
		return
	}

	req, err := decodeTrigger(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "missing user id")
		return
	}

	if req.Type != RequestTypeLaunch {
		h.logger.Info("unhandled request type", "type", req.Type, "user", req.UserID)
		writeJSON(w, http.StatusOK, newSpeechResponse(ackNotUnderstood))
		return
	}

	err = h.coordinator.StartInstance(r.Context(), req.UserID, req.Payload)
	switch {
	case errors.Is(err, api.ErrDuplicateInstance):
		h.logger.Info("instance already active", "instance_id", req.UserID)
	case err != nil:
		h.logger.Error("failed to start instance", "instance_id", req.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to start job")
		return
	}

	writeJSON(w, http.StatusOK, newSpeechResponse(ackLaunched))
}

// instanceView is the JSON shape of an instance on the inspection API.
type instanceView struct {
	ID            string     `json:"id"`
	Status        api.Status `json:"status"`
	Input         any        `json:"input,omitempty"`
	Output        any        `json:"output,omitempty"`
	FailureReason string     `json:"failure_reason,omitempty"`
	Attempt       int        `json:"attempt"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

func newInstanceView(inst *api.Instance) instanceView {
	v := instanceView{
		ID:            inst.ID,
		Status:        inst.Status,
		Input:         inst.Input,
		Output:        inst.Output,
		FailureReason: inst.FailureReason,
		Attempt:       inst.Attempt,
		CreatedAt:     inst.CreatedAt,
	}
	if !inst.CompletedAt.IsZero() {
		t := inst.CompletedAt
		v.CompletedAt = &t
	}
	return v
}

func (h *Handler) handleListInstances(w http.ResponseWriter, r *http.Request) {
	opts := api.InstanceListOptions{
		Status: api.Status(r.URL.Query().Get("status")),
	}

	instances, err := h.coordinator.ListInstances(r.Context(), opts)
	if err != nil {
		h.logger.Error("failed to list instances", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list instances")
		return
	}

	views := make([]instanceView, 0, len(instances))
	for _, inst := range instances {
		views = append(views, newInstanceView(inst))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) handleGetInstance(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	inst, err := h.coordinator.GetInstance(r.Context(), id)
	if errors.Is(err, persistence.ErrInstanceNotFound) {
		writeError(w, http.StatusNotFound, "instance not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to get instance", "instance_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get instance")
		return
	}
	writeJSON(w, http.StatusOK, newInstanceView(inst))
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) handleCancelInstance(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req cancelRequest
	if r.Body != nil {
		// The body is optional; an empty or malformed one just means no reason.
		body, _ := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if len(body) > 0 {
			_ = json.Unmarshal(body, &req)
		}
	}

	inst, err := h.coordinator.CancelInstance(r.Context(), id, req.Reason)
	switch {
	case errors.Is(err, persistence.ErrInstanceNotFound):
		writeError(w, http.StatusNotFound, "instance not found")
		return
	case errors.Is(err, api.ErrNotCancellable):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		h.logger.Error("failed to cancel instance", "instance_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to cancel instance")
		return
	}
	writeJSON(w, http.StatusOK, newInstanceView(inst))
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
