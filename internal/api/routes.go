package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/bft-labs/tillsync/internal/app"
	"github.com/bft-labs/tillsync/internal/domain"
)

const maxRequestBytes = 1 << 20

// TaskRequest is the body of POST /v1/queue/operations and POST /v1/sales.
type TaskRequest struct {
	Kind    domain.Kind     `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// StatusResponse is the body of GET /v1/queue.
type StatusResponse = app.Snapshot

// OperationResponse is the wire view of a queued operation.
type OperationResponse = domain.Record

// ListOperationsResponse is the body of GET /v1/queue/operations.
type ListOperationsResponse struct {
	Operations []OperationResponse `json:"operations"`
	Total      int                 `json:"total"`
}

// SubmitResponse is the body of POST /v1/sales.
type SubmitResponse struct {
	Record *domain.SaleRecord `json:"record,omitempty"`
	Queued *OperationResponse `json:"queued,omitempty"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Routes holds the handlers for the /v1 tree.
type Routes struct {
	service QueueService
}

// Router creates the /v1 router.
func Router(svc QueueService) http.Handler {
	routes := &Routes{service: svc}

	r := chi.NewRouter()
	r.Post("/sales", routes.submitSale)

	r.Route("/queue", func(r chi.Router) {
		r.Get("/", routes.status)
		r.Post("/retry", routes.retry)

		r.Route("/operations", func(r chi.Router) {
			r.Get("/", routes.listOperations)
			r.Post("/", routes.enqueue)
			r.Get("/{id}", routes.getOperation)
			r.Delete("/{id}", routes.discard)
			r.Post("/{id}/retry", routes.retryOperation)
		})
	})
	return r
}

func (rr *Routes) status(w http.ResponseWriter, r *http.Request) {
	snap, err := rr.service.Snapshot(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, snap, http.StatusOK)
}

func (rr *Routes) listOperations(w http.ResponseWriter, r *http.Request) {
	ops, err := rr.service.List(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	filter := domain.Status(r.URL.Query().Get("status"))
	if filter != "" && !filter.Valid() {
		writeError(w, fmt.Sprintf("unknown status %q", filter), http.StatusBadRequest)
		return
	}

	resp := ListOperationsResponse{Operations: make([]OperationResponse, 0, len(ops))}
	for _, op := range ops {
		if filter != "" && op.Status != filter {
			continue
		}
		rec, err := op.ToRecord()
		if err != nil {
			writeServiceError(w, err)
			return
		}
		resp.Operations = append(resp.Operations, rec)
	}
	resp.Total = len(resp.Operations)
	writeJSON(w, resp, http.StatusOK)
}

func (rr *Routes) getOperation(w http.ResponseWriter, r *http.Request) {
	id, ok := operationID(w, r)
	if !ok {
		return
	}
	op, err := rr.service.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeOperation(w, op, http.StatusOK)
}

func (rr *Routes) enqueue(w http.ResponseWriter, r *http.Request) {
	task, ok := decodeTask(w, r)
	if !ok {
		return
	}
	op, err := rr.service.Enqueue(r.Context(), task)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeOperation(w, op, http.StatusAccepted)
}

func (rr *Routes) submitSale(w http.ResponseWriter, r *http.Request) {
	task, ok := decodeTask(w, r)
	if !ok {
		return
	}
	res, err := rr.service.Submit(r.Context(), task)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if res.Record != nil {
		writeJSON(w, SubmitResponse{Record: res.Record}, http.StatusCreated)
		return
	}
	rec, err := res.Queued.ToRecord()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, SubmitResponse{Queued: &rec}, http.StatusAccepted)
}

func (rr *Routes) retry(w http.ResponseWriter, r *http.Request) {
	res, err := rr.service.Retry(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, res, http.StatusOK)
}

func (rr *Routes) retryOperation(w http.ResponseWriter, r *http.Request) {
	id, ok := operationID(w, r)
	if !ok {
		return
	}
	op, err := rr.service.RetryOperation(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeOperation(w, op, http.StatusOK)
}

func (rr *Routes) discard(w http.ResponseWriter, r *http.Request) {
	id, ok := operationID(w, r)
	if !ok {
		return
	}
	if err := rr.service.Discard(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func operationID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := url.PathUnescape(chi.URLParam(r, "id"))
	if err != nil || strings.TrimSpace(id) == "" {
		writeError(w, "invalid operation id", http.StatusBadRequest)
		return "", false
	}
	return id, true
}

func decodeTask(w http.ResponseWriter, r *http.Request) (domain.SyncTask, bool) {
	var req TaskRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return nil, false
	}
	if req.Kind == "" {
		req.Kind = domain.KindRegularSale
	}
	task, err := domain.DecodeTask(req.Kind, req.Payload)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}
	return task, true
}

func writeOperation(w http.ResponseWriter, op domain.QueuedOperation, status int) {
	rec, err := op.ToRecord()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, rec, status)
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	var gerr *domain.GatewayError
	switch {
	case errors.Is(err, domain.ErrInvalidPayload), errors.Is(err, domain.ErrUnknownKind):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrOperationNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNotFailed):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNotRunning):
		return http.StatusServiceUnavailable
	case errors.As(err, &gerr):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	msg := err.Error()
	var gerr *domain.GatewayError
	if errors.As(err, &gerr) {
		msg = domain.FailureMessage(err)
	}
	writeError(w, msg, statusFor(err))
}

func writeJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, ErrorResponse{Error: message}, statusCode)
}
