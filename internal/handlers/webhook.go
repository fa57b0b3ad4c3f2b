// Package handlers exposes the inbound HTTP surface: webhook normalization
// per connector, plus a health probe. The outbound connector transport is an
// external collaborator and never appears here.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/cortexpay/payment-switch/internal/connector"
	"github.com/cortexpay/payment-switch/internal/domain"
)

// maxWebhookBody bounds inbound payload reads.
const maxWebhookBody = 1 << 20

type Handlers struct {
	registry *connector.Registry
	logger   *slog.Logger
}

func NewHandlers(registry *connector.Registry, logger *slog.Logger) *Handlers {
	return &Handlers{registry: registry, logger: logger}
}

// Register wires the routes onto the mux.
func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /webhooks/{connector}", h.HandleWebhook)
	mux.HandleFunc("GET /health", h.HandleHealth)
}

func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"connectors": h.registry.Names(),
	})
}

// HandleWebhook resolves the connector from the path, translates the raw
// payload into a NormalizedEvent and echoes it back to the caller. Event
// persistence and payment-state convergence belong to the orchestrator that
// consumes this endpoint's output.
func (h *Handlers) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("connector")
	eventRef := uuid.NewString()

	conn, err := h.registry.Get(name)
	if err != nil {
		var unknown *connector.UnknownConnectorError
		if errors.As(err, &unknown) {
			writeError(w, http.StatusNotFound, "UNKNOWN_CONNECTOR", err.Error())
			return
		}
		h.logger.Error("connector lookup failed", "connector", name, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "connector lookup failed")
		return
	}

	translator, ok := conn.(connector.WebhookTranslator)
	if !ok {
		writeError(w, http.StatusNotFound, "WEBHOOKS_NOT_SUPPORTED",
			"connector "+name+" does not publish webhooks")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "UNREADABLE_BODY", "could not read request body")
		return
	}

	event, err := translator.TranslateWebhook(body)
	if err != nil {
		h.logger.Warn("webhook translation failed",
			"connector", name,
			"event_ref", eventRef,
			"error", err,
			"category", domain.CategorizeError(err),
		)
		writeError(w, http.StatusBadRequest, "UNPROCESSABLE_EVENT", "could not translate webhook payload")
		return
	}

	h.logger.Info("webhook normalized",
		"connector", name,
		"event_ref", eventRef,
		"class", event.Class,
		"object_reference", event.ObjectReference,
	)
	writeJSON(w, http.StatusOK, webhookResponse{EventRef: eventRef, Event: event})
}

type webhookResponse struct {
	EventRef string                     `json:"event_ref"`
	Event    *connector.NormalizedEvent `json:"event"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorDetail `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: errorDetail{Code: code, Message: message}})
}
