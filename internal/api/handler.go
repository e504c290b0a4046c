package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"satoshicheckout/internal/btcpay"
	"satoshicheckout/internal/logging"
	"satoshicheckout/internal/metrics"
	"satoshicheckout/internal/payments"
	"satoshicheckout/internal/webhook"
)

const (
	// MaxWebhookBodySize bounds how much of a webhook delivery is read.
	MaxWebhookBodySize = 1 << 20

	maxInvoiceRequestSize = 64 << 10
)

// InvoiceCreator creates checkout invoices.
type InvoiceCreator interface {
	CreateInvoice(ctx context.Context, req payments.InvoiceRequest) (*payments.InvoiceResult, error)
}

// WebhookArchiver keeps a copy of verified webhook bodies.
type WebhookArchiver interface {
	Archive(ctx context.Context, deliveryID string, body []byte) (string, error)
}

// Handler handles HTTP requests.
type Handler struct {
	invoices       InvoiceCreator
	reconciler     payments.Reconciler
	verifier       *webhook.Verifier
	archiver       WebhookArchiver
	pendingLimiter *PendingInvoiceLimiter
	configured     bool
	mux            *http.ServeMux
}

// NewHandler creates a new HTTP handler.
// If pendingLimiter is nil, no unpaid-invoice limit is enforced.
func NewHandler(invoices InvoiceCreator, reconciler payments.Reconciler, pendingLimiter *PendingInvoiceLimiter) *Handler {
	h := &Handler{
		invoices:       invoices,
		reconciler:     reconciler,
		pendingLimiter: pendingLimiter,
		mux:            http.NewServeMux(),
	}
	h.registerRoutes()
	return h
}

// SetWebhookSecret enables webhook verification. Without a secret every
// delivery is rejected.
func (h *Handler) SetWebhookSecret(secret string) {
	if secret == "" {
		h.verifier = nil
		return
	}
	h.verifier = webhook.NewVerifier(secret)
}

// SetArchiver sets where verified webhook bodies are copied.
func (h *Handler) SetArchiver(a WebhookArchiver) {
	h.archiver = a
}

// SetConfigured sets the value reported by the health endpoint.
func (h *Handler) SetConfigured(ok bool) {
	h.configured = ok
}

func (h *Handler) registerRoutes() {
	h.mux.HandleFunc("POST /api/invoices", h.handleCreateInvoice)
	h.mux.HandleFunc("GET /api/status", h.handleStatusQuery)
	h.mux.HandleFunc("GET /api/invoices/{id}/status", h.handleInvoiceStatus)
	h.mux.HandleFunc("POST /api/webhook/btcpay", h.handleBTCPayWebhook)
	h.mux.HandleFunc("GET /api/health", h.handleHealth)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Internal.Printf("failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg, details string) {
	writeJSON(w, status, ErrorResponse{Error: msg, Details: details})
}

func (h *Handler) handleCreateInvoice(w http.ResponseWriter, r *http.Request) {
	ip := extractIP(r)

	if h.pendingLimiter != nil && !h.pendingLimiter.CanCreate(ip) {
		count := h.pendingLimiter.PendingCount(ip)
		limit := h.pendingLimiter.MaxPending()
		writeError(w, http.StatusTooManyRequests, "too many unpaid invoices",
			fmt.Sprintf("you have %d unpaid invoice(s) (max %d). Pay or wait for them to expire before creating more.", count, limit))
		return
	}

	var req payments.InvoiceRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxInvoiceRequestSize)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	result, err := h.invoices.CreateInvoice(r.Context(), req)
	if err != nil {
		var creationErr *payments.InvoiceCreationError
		switch {
		case errors.Is(err, payments.ErrInvalidRequest):
			writeError(w, http.StatusBadRequest, "invalid invoice request", err.Error())
		case errors.Is(err, btcpay.ErrNotConfigured):
			writeError(w, http.StatusInternalServerError, "payment provider not configured", err.Error())
		case errors.As(err, &creationErr):
			writeError(w, http.StatusInternalServerError, "failed to create invoice", creationErr.Details())
		default:
			logging.Internal.Printf("create invoice: %v", err)
			writeError(w, http.StatusInternalServerError, "failed to create invoice", err.Error())
		}
		return
	}

	if h.pendingLimiter != nil {
		h.pendingLimiter.TrackPendingInvoice(ip, result.OrderID)
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleStatusQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id := q.Get("invoiceId")
	if id == "" {
		id = q.Get("orderId")
	}
	if id == "" {
		writeError(w, http.StatusBadRequest, "invoiceId or orderId is required", "")
		return
	}
	h.writeStatus(w, r, id)
}

func (h *Handler) handleInvoiceStatus(w http.ResponseWriter, r *http.Request) {
	h.writeStatus(w, r, r.PathValue("id"))
}

func (h *Handler) writeStatus(w http.ResponseWriter, r *http.Request, id string) {
	view, err := h.reconciler.Status(r.Context(), id)
	if err != nil {
		logging.Internal.Printf("status lookup for %s failed: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to get status", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// WebhookResponse acknowledges an accepted delivery.
type WebhookResponse struct {
	Received bool `json:"received"`
}

func (h *Handler) handleBTCPayWebhook(w http.ResponseWriter, r *http.Request) {
	// Read raw body; the signature covers the exact bytes.
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxWebhookBodySize))
	if err != nil {
		metrics.WebhookDeliveries.WithLabelValues("unreadable").Inc()
		writeError(w, http.StatusBadRequest, "failed to read body", err.Error())
		return
	}

	sig := webhook.SignatureFromHeader(r.Header.Get(webhook.SignatureHeader))
	if sig == "" {
		metrics.WebhookDeliveries.WithLabelValues("missing_signature").Inc()
		writeError(w, http.StatusBadRequest, "missing signature", "")
		return
	}
	if h.verifier == nil {
		metrics.WebhookDeliveries.WithLabelValues("not_configured").Inc()
		logging.Webhook.Printf("delivery rejected: webhook secret not configured")
		writeError(w, http.StatusInternalServerError, "webhook secret not configured", "")
		return
	}
	if !h.verifier.Verify(body, sig) {
		metrics.WebhookDeliveries.WithLabelValues("invalid_signature").Inc()
		logging.Webhook.Printf("delivery rejected: invalid signature from %s", extractIP(r))
		writeError(w, http.StatusUnauthorized, "invalid signature", "")
		return
	}

	ev, err := webhook.ParseEvent(body)
	if err != nil {
		metrics.WebhookDeliveries.WithLabelValues("error").Inc()
		logging.Webhook.Printf("failed to parse delivery: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to process webhook", err.Error())
		return
	}
	if err := h.reconciler.OnWebhookEvent(r.Context(), ev); err != nil {
		metrics.WebhookDeliveries.WithLabelValues("error").Inc()
		logging.Webhook.Printf("failed to process %q for invoice %s: %v", ev.Type, ev.InvoiceID, err)
		writeError(w, http.StatusInternalServerError, "failed to process webhook", err.Error())
		return
	}

	if h.archiver != nil {
		if _, err := h.archiver.Archive(context.WithoutCancel(r.Context()), ev.DeliveryID, body); err != nil {
			logging.Archive.Printf("archive failed for delivery %s: %v", ev.DeliveryID, err)
		}
	}

	metrics.WebhookDeliveries.WithLabelValues("ok").Inc()
	writeJSON(w, http.StatusOK, WebhookResponse{Received: true})
}

// HealthResponse is the body of GET /api/health.
type HealthResponse struct {
	Status     string `json:"status"`
	Configured bool   `json:"configured"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Configured: h.configured})
}
