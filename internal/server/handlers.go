package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/dgnsrekt/cargoviz-realtime/internal/api"
	"github.com/dgnsrekt/cargoviz-realtime/internal/dashboard"
	"github.com/dgnsrekt/cargoviz-realtime/internal/model"
	"github.com/dgnsrekt/cargoviz-realtime/internal/ws"
)

const maxBodyBytes = 1 << 20

type Handlers struct {
	svc    *dashboard.Service
	logger *zap.Logger
}

func NewHandlers(svc *dashboard.Service, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{svc: svc, logger: logger}
}

type errorResponse struct {
	Error  string              `json:"error"`
	Fields map[string][]string `json:"fields,omitempty"`
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("failed to encode response", zap.Error(err))
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, errorResponse{Error: msg})
}

// writeUpstreamError maps a dashboard or API error onto a response status.
func (h *Handlers) writeUpstreamError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: err.Error()}

	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		resp.Error = apiErr.Message
		resp.Fields = apiErr.Errors
	}

	status := http.StatusBadGateway
	switch {
	case errors.Is(err, dashboard.ErrNoSession), errors.Is(err, api.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, api.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, api.ErrBadRequest):
		status = http.StatusBadRequest
	case errors.Is(err, api.ErrRateLimited):
		status = http.StatusTooManyRequests
	}

	if status == http.StatusBadGateway {
		h.logger.Warn("upstream request failed", zap.Error(err))
	}
	h.writeJSON(w, status, resp)
}

func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.svc.Status())
}

func (h *Handlers) Summary(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.svc.Summary())
}

func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Refresh(r.Context()); err != nil {
		h.writeUpstreamError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.svc.Summary())
}

type cargoResponse struct {
	Cargo []model.Cargo `json:"cargo"`
	Count int           `json:"count"`
}

func (h *Handlers) ListCargo(w http.ResponseWriter, r *http.Request) {
	cargo := h.svc.Cargo()
	if status := r.URL.Query().Get("status"); status != "" {
		filtered := make([]model.Cargo, 0, len(cargo))
		for _, c := range cargo {
			if string(c.Status) == status {
				filtered = append(filtered, c)
			}
		}
		cargo = filtered
	}
	if cargo == nil {
		cargo = []model.Cargo{}
	}
	h.writeJSON(w, http.StatusOK, cargoResponse{Cargo: cargo, Count: len(cargo)})
}

func (h *Handlers) CreateCargo(w http.ResponseWriter, r *http.Request) {
	var req model.CreateCargoRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Name == "" {
		h.writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	created, err := h.svc.CreateCargo(r.Context(), req)
	if err != nil {
		h.writeUpstreamError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, created)
}

func (h *Handlers) UpdateCargo(w http.ResponseWriter, r *http.Request) {
	var req model.UpdateCargoRequest
	if !h.decode(w, r, &req) {
		return
	}
	updated, err := h.svc.UpdateCargo(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.writeUpstreamError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, updated)
}

type statusRequest struct {
	Status model.CargoStatus `json:"status"`
}

func (h *Handlers) UpdateCargoStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !model.ValidStatus(req.Status) {
		h.writeError(w, http.StatusBadRequest, "status must be one of Placed, Pending, Conflict")
		return
	}
	updated, err := h.svc.UpdateCargoStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		h.writeUpstreamError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, updated)
}

func (h *Handlers) DeleteCargo(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteCargo(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeUpstreamError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type areasResponse struct {
	Areas []model.Area `json:"areas"`
	Count int          `json:"count"`
}

func (h *Handlers) ListAreas(w http.ResponseWriter, r *http.Request) {
	areas := h.svc.Areas()
	if areas == nil {
		areas = []model.Area{}
	}
	h.writeJSON(w, http.StatusOK, areasResponse{Areas: areas, Count: len(areas)})
}

func (h *Handlers) CreateArea(w http.ResponseWriter, r *http.Request) {
	var req model.CreateAreaRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Name == "" {
		h.writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if len(req.Coordinates) < 3 {
		h.writeError(w, http.StatusBadRequest, "a zone needs at least three coordinates")
		return
	}
	created, err := h.svc.CreateArea(r.Context(), req)
	if err != nil {
		h.writeUpstreamError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, created)
}

func (h *Handlers) UpdateArea(w http.ResponseWriter, r *http.Request) {
	var req model.UpdateAreaRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Coordinates != nil && len(req.Coordinates) < 3 {
		h.writeError(w, http.StatusBadRequest, "a zone needs at least three coordinates")
		return
	}
	updated, err := h.svc.UpdateArea(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.writeUpstreamError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, updated)
}

func (h *Handlers) DeleteArea(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteArea(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeUpstreamError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type eventsResponse struct {
	Events []ws.Event `json:"events"`
	Count  int        `json:"count"`
}

func eventsBody(events []ws.Event) eventsResponse {
	if events == nil {
		events = []ws.Event{}
	}
	return eventsResponse{Events: events, Count: len(events)}
}

// Events lists buffered push events, optionally filtered by ?kind=.
// kind=unknown selects frames with no named projection.
func (h *Handlers) Events(w http.ResponseWriter, r *http.Request) {
	router := h.svc.Router()
	switch kind := r.URL.Query().Get("kind"); kind {
	case "":
		h.writeJSON(w, http.StatusOK, eventsBody(router.All()))
	case "unknown":
		h.writeJSON(w, http.StatusOK, eventsBody(router.Unknown()))
	default:
		h.writeJSON(w, http.StatusOK, eventsBody(router.Events(ws.Kind(kind))))
	}
}

func (h *Handlers) ConvoyMessages(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, eventsBody(h.svc.Router().ConvoyMessages(chi.URLParam(r, "id"))))
}

func (h *Handlers) Vehicles(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.svc.Router().LatestVehicleLocations())
}
