package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/dgnsrekt/cargoviz-realtime/internal/model"
)

// Client interface for testability
type Client interface {
	Login(ctx context.Context, email, password string) (model.LoginResponse, error)

	GetMyOrganization(ctx context.Context, userID string) (model.Organization, error)
	GetProjects(ctx context.Context, orgID string) ([]model.Project, error)
	GetProjectsForUser(ctx context.Context, userID string) ([]model.Project, error)

	GetAreas(ctx context.Context, orgID string) ([]model.Area, error)
	CreateArea(ctx context.Context, req model.CreateAreaRequest) (model.Area, error)
	UpdateArea(ctx context.Context, areaID string, req model.UpdateAreaRequest) (model.Area, error)
	DeleteArea(ctx context.Context, areaID string) error

	GetCargo(ctx context.Context, orgID string) ([]model.Cargo, error)
	CreateCargo(ctx context.Context, req model.CreateCargoRequest) (model.Cargo, error)
	UpdateCargo(ctx context.Context, cargoID string, req model.UpdateCargoRequest) (model.Cargo, error)
	DeleteCargo(ctx context.Context, cargoID string) error
}

// Session is the auth state the client reads the bearer token from and
// clears on a 401.
type Session interface {
	Token() string
	Clear()
}

type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
	session    Session
	limiter    *rate.Limiter
	retryCount int
	retryDelay time.Duration
	logger     *zap.Logger
}

func NewClient(baseURL string, session Session, ratePerSec int, timeout, retryDelay time.Duration, retryCount int, logger *zap.Logger) *HTTPClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ratePerSec < 1 {
		ratePerSec = 1
	}

	transport := &http.Transport{
		MaxIdleConns:    100,
		MaxConnsPerHost: 10,
		IdleConnTimeout: 90 * time.Second,
	}

	return &HTTPClient{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		baseURL:    baseURL,
		session:    session,
		limiter:    rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec*2),
		retryCount: retryCount,
		retryDelay: retryDelay,
		logger:     logger,
	}
}

// loginPath rejects bad credentials with 401; that says nothing about the
// stored session.
const loginPath = "/token"

func (c *HTTPClient) Login(ctx context.Context, email, password string) (model.LoginResponse, error) {
	var resp model.LoginResponse
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, loginPath, body, &resp); err != nil {
		return model.LoginResponse{}, err
	}
	return resp, nil
}

func (c *HTTPClient) GetMyOrganization(ctx context.Context, userID string) (model.Organization, error) {
	var org model.Organization
	err := c.do(ctx, http.MethodGet, "/Variant/Organizations/GetMyOrganization/"+url.PathEscape(userID), nil, &org)
	return org, err
}

func (c *HTTPClient) GetProjects(ctx context.Context, orgID string) ([]model.Project, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/Variant/Projects/GetProjects", map[string]string{"orgId": orgID}, &raw); err != nil {
		return nil, err
	}
	return decodeList[model.Project](raw, "projects")
}

func (c *HTTPClient) GetProjectsForUser(ctx context.Context, userID string) ([]model.Project, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/Variant/Projects/GetProjectsForUser/"+url.PathEscape(userID), nil, &raw); err != nil {
		return nil, err
	}
	return decodeList[model.Project](raw, "projects")
}

func (c *HTTPClient) GetAreas(ctx context.Context, orgID string) ([]model.Area, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/Variant/Areas/GetAreas/"+url.PathEscape(orgID), nil, &raw); err != nil {
		return nil, err
	}
	return decodeList[model.Area](raw, "areas")
}

func (c *HTTPClient) CreateArea(ctx context.Context, req model.CreateAreaRequest) (model.Area, error) {
	var area model.Area
	err := c.do(ctx, http.MethodPost, "/Variant/Areas/CreateArea", req, &area)
	return area, err
}

func (c *HTTPClient) UpdateArea(ctx context.Context, areaID string, req model.UpdateAreaRequest) (model.Area, error) {
	var area model.Area
	err := c.do(ctx, http.MethodPut, "/Variant/Areas/UpdateArea/"+url.PathEscape(areaID), req, &area)
	return area, err
}

func (c *HTTPClient) DeleteArea(ctx context.Context, areaID string) error {
	return c.do(ctx, http.MethodDelete, "/Variant/Areas/DeleteArea/"+url.PathEscape(areaID), nil, nil)
}

func (c *HTTPClient) GetCargo(ctx context.Context, orgID string) ([]model.Cargo, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/Variant/Cargo/GetCargo/"+url.PathEscape(orgID), nil, &raw); err != nil {
		return nil, err
	}
	return decodeList[model.Cargo](raw, "cargo")
}

func (c *HTTPClient) CreateCargo(ctx context.Context, req model.CreateCargoRequest) (model.Cargo, error) {
	var cargo model.Cargo
	err := c.do(ctx, http.MethodPost, "/Variant/Cargo/CreateCargo", req, &cargo)
	return cargo, err
}

func (c *HTTPClient) UpdateCargo(ctx context.Context, cargoID string, req model.UpdateCargoRequest) (model.Cargo, error) {
	if req.Status != nil && !model.ValidStatus(*req.Status) {
		return model.Cargo{}, fmt.Errorf("%w: invalid cargo status %q", ErrBadRequest, *req.Status)
	}
	var cargo model.Cargo
	err := c.do(ctx, http.MethodPut, "/Variant/Cargo/UpdateCargo/"+url.PathEscape(cargoID), req, &cargo)
	return cargo, err
}

func (c *HTTPClient) DeleteCargo(ctx context.Context, cargoID string) error {
	return c.do(ctx, http.MethodDelete, "/Variant/Cargo/DeleteCargo/"+url.PathEscape(cargoID), nil, nil)
}

// do sends one API request. Only GETs are retried, on transport errors, 429
// and 5xx.
func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any) error {
	// Wait for rate limiter
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
	}

	retries := 0
	if method == http.MethodGet {
		retries = c.retryCount
	}

	target := c.baseURL + path
	requestID := uuid.NewString()
	c.logger.Debug("requesting",
		zap.String("method", method),
		zap.String("url", target),
		zap.String("request_id", requestID),
	)

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			delay := c.retryDelay * time.Duration(1<<(attempt-1)) // Exponential backoff
			c.logger.Debug("retrying request", zap.Int("attempt", attempt), zap.Duration("delay", delay))

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		var reqBody io.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Request-ID", requestID)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.session != nil {
			if token := c.session.Token(); token != "" {
				req.Header.Set("Authorization", "Bearer "+token)
			}
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			continue
		}

		// Read body before closing for error messages
		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()

		if readErr != nil {
			lastErr = readErr
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return decodeEnvelope(body, out)
		}

		apiErr := newAPIError(resp.StatusCode, body)

		if resp.StatusCode == http.StatusUnauthorized && path != loginPath {
			c.logger.Warn("API rejected session, clearing it",
				zap.String("url", target),
				zap.String("request_id", requestID),
			)
			if c.session != nil {
				c.session.Clear()
			}
			return apiErr
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = apiErr
			continue
		}

		return apiErr
	}

	var apiErr *APIError
	if errors.As(lastErr, &apiErr) {
		return apiErr
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{
		Status:    status,
		Message:   http.StatusText(status),
		Timestamp: time.Now().UTC(),
	}

	var eb errorBody
	if len(body) > 0 && decodeEnvelope(body, &eb) == nil {
		switch {
		case eb.Message != "":
			apiErr.Message = eb.Message
		case eb.Error != "":
			apiErr.Message = eb.Error
		}
		apiErr.Errors = eb.Errors
	}
	if apiErr.Message == "" {
		apiErr.Message = "an unexpected error occurred"
	}
	return apiErr
}

// decodeEnvelope unmarshals body into out, unwrapping a top-level
// {"data": ...} envelope when present.
func decodeEnvelope(body []byte, out any) error {
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}

	var env struct {
		Data json.RawMessage `json:"data"`
	}
	payload := body
	if json.Unmarshal(body, &env) == nil && len(env.Data) > 0 {
		payload = env.Data
	}

	if raw, ok := out.(*json.RawMessage); ok {
		*raw = append((*raw)[:0], payload...)
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// decodeList accepts either a bare array or an object holding the array
// under key.
func decodeList[T any](raw json.RawMessage, key string) ([]T, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return []T{}, nil
	}

	if trimmed[0] == '[' {
		var out []T
		if err := json.Unmarshal(trimmed, &out); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", key, err)
		}
		return out, nil
	}

	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", key, err)
	}
	list, ok := wrapped[key]
	if !ok || string(list) == "null" {
		return []T{}, nil
	}
	var out []T
	if err := json.Unmarshal(list, &out); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", key, err)
	}
	return out, nil
}
