package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dgnsrekt/cargoviz-realtime/internal/model"
)

// MockClient is an in-memory backend preloaded with a demo yard. It is only
// used when the config selects the mock backend.
type MockClient struct {
	logger *zap.Logger
	now    func() time.Time

	mu       sync.Mutex
	user     model.User
	org      model.Organization
	projects []model.Project
	areas    []model.Area
	cargo    []model.Cargo
}

var _ Client = (*MockClient)(nil)
var _ Client = (*HTTPClient)(nil)

func NewMockClient(logger *zap.Logger) *MockClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &MockClient{logger: logger, now: time.Now}
	m.seed()
	return m
}

func (m *MockClient) seed() {
	ts := m.stamp()
	elev := func(v float64) *float64 { return &v }

	m.user = model.User{ID: "user-1", Name: "Admin User", Email: "admin@cargoviz.com", Role: "Admin", OrganizationID: "org-1"}
	m.org = model.Organization{ID: "org-1", Name: "Port of Seattle", Address: "2711 Alaskan Way, Seattle, WA 98121", Contact: "206-787-3000"}
	m.projects = []model.Project{
		{ID: "project-1", Name: "Port of Seattle", Description: "Main port operations", OrganizationID: "org-1", StartDate: "2023-01-01", EndDate: "2023-12-31"},
		{ID: "project-2", Name: "Oakland Terminal", Description: "Oakland expansion", OrganizationID: "org-1", StartDate: "2023-02-15", EndDate: "2023-11-30"},
	}
	m.areas = []model.Area{
		{
			ID: "area-1", Name: "Storage Area A", Surface: "Concrete", Elevation: elev(12),
			Coordinates: []model.Point{{47.6062, -122.3321}, {47.6072, -122.3321}, {47.6072, -122.3301}, {47.6062, -122.3301}},
			Area:        2500, OrganizationID: "org-1", CreatedAt: ts, UpdatedAt: ts,
		},
		{
			ID: "area-2", Name: "Container Zone B", Surface: "Asphalt", Elevation: elev(10),
			Coordinates: []model.Point{{47.6082, -122.3341}, {47.6092, -122.3341}, {47.6092, -122.3321}, {47.6082, -122.3321}},
			Area:        1800, OrganizationID: "org-1", CreatedAt: ts, UpdatedAt: ts,
		},
		{
			ID: "area-3", Name: "Heavy Equipment", Surface: "Reinforced", Elevation: elev(8),
			Coordinates: []model.Point{{47.6052, -122.3361}, {47.6062, -122.3361}, {47.6062, -122.3341}, {47.6052, -122.3341}},
			Area:        3200, OrganizationID: "org-1", CreatedAt: ts, UpdatedAt: ts,
		},
	}
	m.cargo = []model.Cargo{
		{
			ID: "cargo-1", Name: "Container A-123", Type: "Container", Status: model.StatusPlaced,
			Dimensions: "20' x 8' x 8'", Weight: "15,000 lbs", Zone: "Storage Area A",
			Coordinates: []model.Point{{47.6065, -122.3315}}, OrganizationID: "org-1", CreatedAt: ts, UpdatedAt: ts,
		},
		{
			ID: "cargo-2", Name: "Pallet B-456", Type: "Pallet", Status: model.StatusPending,
			Dimensions: "4' x 4' x 5'", Weight: "2,500 lbs", Zone: "Container Zone B",
			Coordinates: []model.Point{{47.6085, -122.3335}}, OrganizationID: "org-1", CreatedAt: ts, UpdatedAt: ts,
		},
		{
			ID: "cargo-3", Name: "Crate C-789", Type: "Crate", Status: model.StatusConflict,
			Dimensions: "6' x 4' x 4'", Weight: "3,200 lbs", Zone: "Heavy Equipment",
			Coordinates: []model.Point{{47.6055, -122.3355}}, OrganizationID: "org-1", CreatedAt: ts, UpdatedAt: ts,
		},
	}
}

func (m *MockClient) stamp() string {
	return m.now().UTC().Format(time.RFC3339)
}

func notFound(kind, id string) error {
	return &APIError{
		Status:    http.StatusNotFound,
		Message:   fmt.Sprintf("%s %s not found", kind, id),
		Timestamp: time.Now().UTC(),
	}
}

// Login accepts any non-empty credentials and returns the demo user.
func (m *MockClient) Login(ctx context.Context, email, password string) (model.LoginResponse, error) {
	if err := ctx.Err(); err != nil {
		return model.LoginResponse{}, err
	}
	if email == "" || password == "" {
		return model.LoginResponse{}, &APIError{
			Status:    http.StatusBadRequest,
			Message:   "email and password are required",
			Errors:    map[string][]string{"email": {"required"}, "password": {"required"}},
			Timestamp: time.Now().UTC(),
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	user := m.user
	user.Email = email
	m.logger.Debug("mock login", zap.String("email", email))
	return model.LoginResponse{Token: "mock-" + uuid.NewString(), User: user}, nil
}

func (m *MockClient) GetMyOrganization(ctx context.Context, _ string) (model.Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.org, ctx.Err()
}

func (m *MockClient) GetProjects(ctx context.Context, orgID string) ([]model.Project, error) {
	return m.GetProjectsForUser(ctx, "")
}

func (m *MockClient) GetProjectsForUser(ctx context.Context, _ string) ([]model.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Project(nil), m.projects...), ctx.Err()
}

func (m *MockClient) GetAreas(ctx context.Context, orgID string) ([]model.Area, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.Area, 0, len(m.areas))
	for _, a := range m.areas {
		if a.OrganizationID == orgID {
			out = append(out, a)
		}
	}
	return out, ctx.Err()
}

func (m *MockClient) CreateArea(ctx context.Context, req model.CreateAreaRequest) (model.Area, error) {
	if err := ctx.Err(); err != nil {
		return model.Area{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ts := m.stamp()
	area := model.Area{
		ID:             "area-" + uuid.NewString(),
		Name:           req.Name,
		Surface:        req.Surface,
		Elevation:      req.Elevation,
		Coordinates:    req.Coordinates,
		Area:           req.Area,
		OrganizationID: req.OrganizationID,
		CreatedAt:      ts,
		UpdatedAt:      ts,
	}
	m.areas = append(m.areas, area)
	return area, nil
}

func (m *MockClient) UpdateArea(ctx context.Context, areaID string, req model.UpdateAreaRequest) (model.Area, error) {
	if err := ctx.Err(); err != nil {
		return model.Area{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.areas {
		a := &m.areas[i]
		if a.ID != areaID {
			continue
		}
		if req.Name != nil {
			a.Name = *req.Name
		}
		if req.Surface != nil {
			a.Surface = *req.Surface
		}
		if req.Elevation != nil {
			v := *req.Elevation
			a.Elevation = &v
		}
		if req.Coordinates != nil {
			a.Coordinates = req.Coordinates
		}
		if req.Area != nil {
			a.Area = *req.Area
		}
		a.UpdatedAt = m.stamp()
		return *a, nil
	}
	return model.Area{}, notFound("area", areaID)
}

func (m *MockClient) DeleteArea(ctx context.Context, areaID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for i, a := range m.areas {
		if a.ID == areaID {
			m.areas = append(m.areas[:i:i], m.areas[i+1:]...)
			return nil
		}
	}
	return notFound("area", areaID)
}

func (m *MockClient) GetCargo(ctx context.Context, orgID string) ([]model.Cargo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.Cargo, 0, len(m.cargo))
	for _, c := range m.cargo {
		if c.OrganizationID == orgID {
			out = append(out, c)
		}
	}
	return out, ctx.Err()
}

func (m *MockClient) CreateCargo(ctx context.Context, req model.CreateCargoRequest) (model.Cargo, error) {
	if err := ctx.Err(); err != nil {
		return model.Cargo{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ts := m.stamp()
	cargo := model.Cargo{
		ID:             "cargo-" + uuid.NewString(),
		Name:           req.Name,
		Type:           req.Type,
		Status:         model.StatusPending,
		Dimensions:     req.Dimensions,
		Weight:         req.Weight,
		Zone:           req.Zone,
		Coordinates:    req.Coordinates,
		OrganizationID: req.OrganizationID,
		CreatedAt:      ts,
		UpdatedAt:      ts,
	}
	m.cargo = append(m.cargo, cargo)
	return cargo, nil
}

func (m *MockClient) UpdateCargo(ctx context.Context, cargoID string, req model.UpdateCargoRequest) (model.Cargo, error) {
	if err := ctx.Err(); err != nil {
		return model.Cargo{}, err
	}
	if req.Status != nil && !model.ValidStatus(*req.Status) {
		return model.Cargo{}, fmt.Errorf("%w: invalid cargo status %q", ErrBadRequest, *req.Status)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.cargo {
		c := &m.cargo[i]
		if c.ID != cargoID {
			continue
		}
		if req.Name != nil {
			c.Name = *req.Name
		}
		if req.Type != nil {
			c.Type = *req.Type
		}
		if req.Status != nil {
			c.Status = *req.Status
		}
		if req.Dimensions != nil {
			c.Dimensions = *req.Dimensions
		}
		if req.Weight != nil {
			c.Weight = *req.Weight
		}
		if req.Zone != nil {
			c.Zone = *req.Zone
		}
		if req.Coordinates != nil {
			c.Coordinates = req.Coordinates
		}
		c.UpdatedAt = m.stamp()
		return *c, nil
	}
	return model.Cargo{}, notFound("cargo", cargoID)
}

func (m *MockClient) DeleteCargo(ctx context.Context, cargoID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for i, c := range m.cargo {
		if c.ID == cargoID {
			m.cargo = append(m.cargo[:i:i], m.cargo[i+1:]...)
			return nil
		}
	}
	return notFound("cargo", cargoID)
}
