package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hyperterse/queryengine/core/application/services"
	"github.com/hyperterse/queryengine/core/domain"
	"github.com/hyperterse/queryengine/core/engine"
	"github.com/hyperterse/queryengine/core/infrastructure/transport/http/dto"
	"github.com/hyperterse/queryengine/core/infrastructure/transport/http/handlers"
	"github.com/hyperterse/queryengine/core/shared/errors"
	"github.com/hyperterse/queryengine/core/shared/marshal"
)

// TxIDHeader carries the interactive transaction a query runs in
const TxIDHeader = "X-transaction-id"

const maxBodyBytes = 16 << 20

// HandleFunc yields the engine currently served. It changes when the
// schema is reloaded.
type HandleFunc func() engine.Handle

// EngineHandler exposes one engine of the service over HTTP
type EngineHandler struct {
	*handlers.BaseHandler
	service *services.EngineService
	current HandleFunc
}

// NewEngineHandler creates a handler for the engine returned by current
func NewEngineHandler(service *services.EngineService, current HandleFunc) *EngineHandler {
	return &EngineHandler{
		BaseHandler: handlers.NewBaseHandler("handler"),
		service:     service,
		current:     current,
	}
}

func readBody(r *http.Request) (string, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return "", errors.Wrap(errors.KindJSONDecode, "failed to read request body: "+err.Error(), err)
	}
	return string(body), nil
}

// Query handles POST /
func (h *EngineHandler) Query(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		h.WriteError(w, err)
		return
	}
	txID := marshal.TxIDFromString(r.Header.Get(TxIDHeader))

	out, err := h.service.Query(r.Context(), h.current(), body, txID)
	if err != nil {
		h.WriteError(w, err)
		return
	}
	h.WriteRaw(w, http.StatusOK, out)
}

// StartTransaction handles POST /transaction/start
func (h *EngineHandler) StartTransaction(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		h.WriteError(w, err)
		return
	}
	if strings.TrimSpace(body) == "" {
		body = "{}"
	}

	out, err := h.service.StartTransaction(r.Context(), h.current(), body)
	if err != nil {
		h.WriteError(w, err)
		return
	}
	if isKnownError(out) {
		h.WriteRaw(w, http.StatusBadRequest, out)
		return
	}
	h.WriteSuccess(w, domain.TxStarted{ID: domain.TxID(out)})
}

// CommitTransaction handles POST /transaction/{id}/commit
func (h *EngineHandler) CommitTransaction(w http.ResponseWriter, r *http.Request) {
	h.finishTransaction(w, r, h.service.CommitTransaction)
}

// RollbackTransaction handles POST /transaction/{id}/rollback
func (h *EngineHandler) RollbackTransaction(w http.ResponseWriter, r *http.Request) {
	h.finishTransaction(w, r, h.service.RollbackTransaction)
}

func (h *EngineHandler) finishTransaction(
	w http.ResponseWriter,
	r *http.Request,
	finish func(context.Context, engine.Handle, string) (string, error),
) {
	out, err := finish(r.Context(), h.current(), chi.URLParam(r, "id"))
	if err != nil {
		h.WriteError(w, err)
		return
	}
	status := http.StatusOK
	if isKnownError(out) {
		status = http.StatusBadRequest
	}
	h.WriteRaw(w, status, out)
}

// Connect handles POST /connect
func (h *EngineHandler) Connect(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Connect(r.Context(), h.current()); err != nil {
		h.WriteError(w, err)
		return
	}
	h.WriteSuccess(w, dto.ConnectionResponse{Connected: true})
}

// Disconnect handles POST /disconnect
func (h *EngineHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Disconnect(r.Context(), h.current()); err != nil {
		h.WriteError(w, err)
		return
	}
	h.WriteSuccess(w, dto.ConnectionResponse{Connected: false})
}

// Status handles GET /status
func (h *EngineHandler) Status(w http.ResponseWriter, r *http.Request) {
	e, err := h.service.Registry().Lookup(h.current())
	if err != nil {
		h.WriteError(w, err)
		return
	}
	provider, url := e.Datasource()
	h.WriteSuccess(w, dto.StatusResponse{
		Status:     "ok",
		Engine:     int64(e.Handle()),
		Connected:  e.IsConnected(),
		Provider:   provider,
		Datasource: url,
	})
}

// Dmmf handles GET /dmmf with the served engine's schema
func (h *EngineHandler) Dmmf(w http.ResponseWriter, r *http.Request) {
	e, err := h.service.Registry().Lookup(h.current())
	if err != nil {
		h.WriteError(w, err)
		return
	}
	out, err := h.service.Dmmf(r.Context(), e.Datamodel())
	if err != nil {
		h.WriteError(w, err)
		return
	}
	h.WriteRaw(w, http.StatusOK, out)
}

// Version handles GET /version
func (h *EngineHandler) Version(w http.ResponseWriter, r *http.Request) {
	h.WriteSuccess(w, dto.VersionResponse(h.service.Version()))
}

// isKnownError reports whether a transaction result is a rendered known
// error rather than an id or "{}".
func isKnownError(out string) bool {
	if !strings.HasPrefix(out, "{") || out == "{}" {
		return false
	}
	var probe domain.KnownErrorResponse
	return json.Unmarshal([]byte(out), &probe) == nil && probe.ErrorCode != ""
}
