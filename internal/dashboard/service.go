// Package dashboard combines REST base collections with buffered push events
// into the reconciled views a yard dashboard renders.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/cargoviz-realtime/internal/api"
	"github.com/dgnsrekt/cargoviz-realtime/internal/geometry"
	"github.com/dgnsrekt/cargoviz-realtime/internal/model"
	"github.com/dgnsrekt/cargoviz-realtime/internal/reconcile"
	"github.com/dgnsrekt/cargoviz-realtime/internal/ws"
)

var ErrNoSession = errors.New("no authenticated session")

// Session is the part of session.Session the service reads.
type Session interface {
	User() (model.User, bool)
}

// Connection is the read side of ws.Manager.
type Connection interface {
	State() ws.State
	Err() error
	Attempts() int
	Endpoint() string
}

// Service owns the base collections and derives reconciled views from them.
type Service struct {
	client  api.Client
	session Session
	router  *ws.Router
	conn    Connection
	logger  *zap.Logger
	now     func() time.Time

	cargoMark *reconcile.Watermark
	areaMark  *reconcile.Watermark

	mu        sync.RWMutex
	cargo     []model.Cargo
	areas     []model.Area
	refreshed time.Time
}

func NewService(client api.Client, session Session, router *ws.Router, conn Connection, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		client:    client,
		session:   session,
		router:    router,
		conn:      conn,
		logger:    logger,
		now:       time.Now,
		cargoMark: reconcile.NewWatermark(),
		areaMark:  reconcile.NewWatermark(),
	}
}

func (s *Service) Router() *ws.Router {
	return s.router
}

func (s *Service) orgID() (string, error) {
	user, ok := s.session.User()
	if !ok {
		return "", ErrNoSession
	}
	return user.OrganizationID, nil
}

// Refresh reloads the base collections for the session's organization.
func (s *Service) Refresh(ctx context.Context) error {
	orgID, err := s.orgID()
	if err != nil {
		return err
	}

	cargo, err := s.client.GetCargo(ctx, orgID)
	if err != nil {
		return fmt.Errorf("fetching cargo: %w", err)
	}
	areas, err := s.client.GetAreas(ctx, orgID)
	if err != nil {
		return fmt.Errorf("fetching areas: %w", err)
	}

	s.mu.Lock()
	s.cargo = cargo
	s.areas = areas
	s.refreshed = s.now()
	s.mu.Unlock()

	s.logger.Debug("base collections refreshed",
		zap.String("organization", orgID),
		zap.Int("cargo", len(cargo)),
		zap.Int("areas", len(areas)),
	)
	return nil
}

// Cargo returns the base cargo with buffered cargo_status updates applied.
func (s *Service) Cargo() []model.Cargo {
	s.mu.RLock()
	base := s.cargo
	s.mu.RUnlock()

	updates := reconcile.CargoUpdates(s.router.CargoUpdates())
	return reconcile.MergeCargo(base, updates, s.cargoMark.Value())
}

// Areas returns the base areas with buffered area_update events applied.
func (s *Service) Areas() []model.Area {
	s.mu.RLock()
	base := s.areas
	s.mu.RUnlock()

	updates := reconcile.AreaUpdates(s.router.AreaUpdates())
	return reconcile.MergeAreas(base, updates, s.areaMark.Value())
}

// Summary counts the reconciled cargo by status and totals zone capacity.
type Summary struct {
	TotalCargo    int                       `json:"total_cargo"`
	ByStatus      map[model.CargoStatus]int `json:"by_status"`
	Zones         int                       `json:"zones"`
	TotalAreaSqFt float64                   `json:"total_area_sq_ft"`
	RefreshedAt   time.Time                 `json:"refreshed_at"`
}

func (s *Service) Summary() Summary {
	cargo := s.Cargo()
	areas := s.Areas()

	sum := Summary{
		TotalCargo: len(cargo),
		ByStatus:   make(map[model.CargoStatus]int, 3),
		Zones:      len(areas),
	}
	for _, c := range cargo {
		sum.ByStatus[c.Status]++
	}
	for _, a := range areas {
		sum.TotalAreaSqFt += a.Area
	}

	s.mu.RLock()
	sum.RefreshedAt = s.refreshed
	s.mu.RUnlock()
	return sum
}

// Status is the connection indicator shown next to the views.
type Status struct {
	Connected bool     `json:"connected"`
	State     ws.State `json:"state"`
	Error     string   `json:"error,omitempty"`
	Attempts  int      `json:"attempts"`
	Endpoint  string   `json:"endpoint"`
}

func (s *Service) Status() Status {
	st := Status{
		State:    s.conn.State(),
		Attempts: s.conn.Attempts(),
		Endpoint: s.conn.Endpoint(),
	}
	st.Connected = st.State == ws.StateConnected
	if err := s.conn.Err(); err != nil {
		st.Error = err.Error()
	}
	return st
}

// Mutations. Each one writes through the API and, on success, updates the
// base collection and advances the watermark so older push events cannot
// overwrite the value just written.

func (s *Service) CreateCargo(ctx context.Context, req model.CreateCargoRequest) (model.Cargo, error) {
	if req.OrganizationID == "" {
		orgID, err := s.orgID()
		if err != nil {
			return model.Cargo{}, err
		}
		req.OrganizationID = orgID
	}

	created, err := s.client.CreateCargo(ctx, req)
	if err != nil {
		return model.Cargo{}, err
	}

	s.mu.Lock()
	s.cargo = append(cloneCargo(s.cargo), created)
	s.mu.Unlock()
	s.cargoMark.Record(s.now())
	return created, nil
}

func (s *Service) UpdateCargo(ctx context.Context, id string, req model.UpdateCargoRequest) (model.Cargo, error) {
	updated, err := s.client.UpdateCargo(ctx, id, req)
	if err != nil {
		return model.Cargo{}, err
	}

	s.mu.Lock()
	s.cargo = replaceCargo(s.cargo, updated)
	s.mu.Unlock()
	s.cargoMark.Record(s.now())
	return updated, nil
}

// UpdateCargoStatus is the status-only edit used by the cargo table.
func (s *Service) UpdateCargoStatus(ctx context.Context, id string, status model.CargoStatus) (model.Cargo, error) {
	return s.UpdateCargo(ctx, id, model.UpdateCargoRequest{Status: &status})
}

func (s *Service) DeleteCargo(ctx context.Context, id string) error {
	if err := s.client.DeleteCargo(ctx, id); err != nil {
		return err
	}

	s.mu.Lock()
	s.cargo = removeCargo(s.cargo, id)
	s.mu.Unlock()
	s.cargoMark.Record(s.now())
	return nil
}

// CreateArea fills the area in square feet from the polygon when the request
// leaves it unset.
func (s *Service) CreateArea(ctx context.Context, req model.CreateAreaRequest) (model.Area, error) {
	if req.OrganizationID == "" {
		orgID, err := s.orgID()
		if err != nil {
			return model.Area{}, err
		}
		req.OrganizationID = orgID
	}
	if req.Area == 0 && len(req.Coordinates) >= 3 {
		req.Area = geometry.SquareFeet(geometry.Measure(req.Coordinates).AreaM2)
	}

	created, err := s.client.CreateArea(ctx, req)
	if err != nil {
		return model.Area{}, err
	}

	s.mu.Lock()
	s.areas = append(cloneAreas(s.areas), created)
	s.mu.Unlock()
	s.areaMark.Record(s.now())
	return created, nil
}

// UpdateArea recomputes the area when the polygon changes.
func (s *Service) UpdateArea(ctx context.Context, id string, req model.UpdateAreaRequest) (model.Area, error) {
	if req.Area == nil && len(req.Coordinates) >= 3 {
		sqft := geometry.SquareFeet(geometry.Measure(req.Coordinates).AreaM2)
		req.Area = &sqft
	}

	updated, err := s.client.UpdateArea(ctx, id, req)
	if err != nil {
		return model.Area{}, err
	}

	s.mu.Lock()
	s.areas = replaceArea(s.areas, updated)
	s.mu.Unlock()
	s.areaMark.Record(s.now())
	return updated, nil
}

func (s *Service) DeleteArea(ctx context.Context, id string) error {
	if err := s.client.DeleteArea(ctx, id); err != nil {
		return err
	}

	s.mu.Lock()
	s.areas = removeArea(s.areas, id)
	s.mu.Unlock()
	s.areaMark.Record(s.now())
	return nil
}

// Base slices are replaced, never edited in place, so views handed out
// earlier stay valid.

func cloneCargo(in []model.Cargo) []model.Cargo {
	return append(make([]model.Cargo, 0, len(in)+1), in...)
}

func replaceCargo(in []model.Cargo, c model.Cargo) []model.Cargo {
	out := cloneCargo(in)
	for i := range out {
		if out[i].ID == c.ID {
			out[i] = c
			return out
		}
	}
	return append(out, c)
}

func removeCargo(in []model.Cargo, id string) []model.Cargo {
	out := make([]model.Cargo, 0, len(in))
	for _, c := range in {
		if c.ID != id {
			out = append(out, c)
		}
	}
	return out
}

func cloneAreas(in []model.Area) []model.Area {
	return append(make([]model.Area, 0, len(in)+1), in...)
}

func replaceArea(in []model.Area, a model.Area) []model.Area {
	out := cloneAreas(in)
	for i := range out {
		if out[i].ID == a.ID {
			out[i] = a
			return out
		}
	}
	return append(out, a)
}

func removeArea(in []model.Area, id string) []model.Area {
	out := make([]model.Area, 0, len(in))
	for _, a := range in {
		if a.ID != id {
			out = append(out, a)
		}
	}
	return out
}
