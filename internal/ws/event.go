package ws

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgnsrekt/cargoviz-realtime/internal/model"
)

// Kind is the declared "type" of a push frame.
type Kind string

const (
	KindCargoStatus     Kind = "cargo_status"
	KindAreaUpdate      Kind = "area_update"
	KindConvoyUpdate    Kind = "convoy_update"
	KindVehicleLocation Kind = "vehicle_location"

	// Outbound control frames.
	KindJoinOrganization Kind = "join_organization"
	KindJoinConvoy       Kind = "join_convoy"
	KindLeaveConvoy      Kind = "leave_convoy"
)

// Area update actions.
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

var (
	ErrMissingType      = errors.New("frame has no type")
	ErrMissingTimestamp = errors.New("frame has no timestamp")
)

// Event is a parsed inbound frame. The kind-specific payload stays in Raw
// and is decoded on demand, so unknown kinds survive untouched.
type Event struct {
	Kind      Kind
	Timestamp int64 // milliseconds since epoch, as sent by the server
	Raw       json.RawMessage
}

// envelope is used for fast type extraction.
type envelope struct {
	Type      *string  `json:"type"`
	Timestamp *float64 `json:"timestamp"`
}

// ParseEvent decodes the envelope of a raw frame.
func ParseEvent(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Event{}, fmt.Errorf("decoding frame: %w", err)
	}
	if env.Type == nil || *env.Type == "" {
		return Event{}, ErrMissingType
	}
	if env.Timestamp == nil {
		return Event{}, ErrMissingTimestamp
	}

	raw := make(json.RawMessage, len(data))
	copy(raw, data)

	return Event{
		Kind:      Kind(*env.Type),
		Timestamp: int64(*env.Timestamp),
		Raw:       raw,
	}, nil
}

// MarshalJSON re-emits the original frame.
func (e Event) MarshalJSON() ([]byte, error) {
	if len(e.Raw) == 0 {
		return json.Marshal(struct {
			Type      Kind  `json:"type"`
			Timestamp int64 `json:"timestamp"`
		}{e.Kind, e.Timestamp})
	}
	return e.Raw, nil
}

// Known reports whether the event kind has a named projection.
func (e Event) Known() bool {
	switch e.Kind {
	case KindCargoStatus, KindAreaUpdate, KindConvoyUpdate, KindVehicleLocation:
		return true
	}
	return false
}

type CargoStatus struct {
	CargoID   string       `json:"cargoId"`
	Status    string       `json:"status"`
	Location  *model.Point `json:"location,omitempty"`
	Timestamp int64        `json:"timestamp"`
}

type AreaUpdate struct {
	AreaID    string          `json:"areaId"`
	Action    string          `json:"action"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

type ConvoyUpdate struct {
	ConvoyID  string   `json:"convoyId"`
	Status    string   `json:"status"`
	Vehicles  []string `json:"vehicles"`
	Timestamp int64    `json:"timestamp"`
}

type VehicleLocation struct {
	VehicleID string      `json:"vehicleId"`
	Location  model.Point `json:"location"`
	Speed     float64     `json:"speed"`
	Heading   float64     `json:"heading"`
	Timestamp int64       `json:"timestamp"`
}

// CargoStatus decodes a cargo_status payload.
func (e Event) CargoStatus() (CargoStatus, bool) {
	var m CargoStatus
	if e.Kind != KindCargoStatus || json.Unmarshal(e.Raw, &m) != nil {
		return m, false
	}
	m.Timestamp = e.Timestamp
	return m, true
}

// AreaUpdate decodes an area_update payload.
func (e Event) AreaUpdate() (AreaUpdate, bool) {
	var m AreaUpdate
	if e.Kind != KindAreaUpdate || json.Unmarshal(e.Raw, &m) != nil {
		return m, false
	}
	m.Timestamp = e.Timestamp
	return m, true
}

// ConvoyUpdate decodes a convoy_update payload.
func (e Event) ConvoyUpdate() (ConvoyUpdate, bool) {
	var m ConvoyUpdate
	if e.Kind != KindConvoyUpdate || json.Unmarshal(e.Raw, &m) != nil {
		return m, false
	}
	m.Timestamp = e.Timestamp
	return m, true
}

// VehicleLocation decodes a vehicle_location payload.
func (e Event) VehicleLocation() (VehicleLocation, bool) {
	var m VehicleLocation
	if e.Kind != KindVehicleLocation || json.Unmarshal(e.Raw, &m) != nil {
		return m, false
	}
	m.Timestamp = e.Timestamp
	return m, true
}

// EntityID returns the id of the entity the event targets, or "" for kinds
// that do not name one.
func (e Event) EntityID() string {
	var ids struct {
		CargoID   string `json:"cargoId"`
		AreaID    string `json:"areaId"`
		ConvoyID  string `json:"convoyId"`
		VehicleID string `json:"vehicleId"`
	}
	if json.Unmarshal(e.Raw, &ids) != nil {
		return ""
	}
	switch e.Kind {
	case KindCargoStatus:
		return ids.CargoID
	case KindAreaUpdate:
		return ids.AreaID
	case KindConvoyUpdate:
		return ids.ConvoyID
	case KindVehicleLocation:
		return ids.VehicleID
	}
	return ""
}

// JoinOrganization asks the push service to stream an organization's topic.
type JoinOrganization struct {
	Type           Kind   `json:"type"`
	OrganizationID string `json:"organizationId"`
}

func NewJoinOrganization(orgID string) JoinOrganization {
	return JoinOrganization{Type: KindJoinOrganization, OrganizationID: orgID}
}

// JoinConvoy subscribes to a single convoy's updates.
type JoinConvoy struct {
	Type     Kind   `json:"type"`
	ConvoyID string `json:"convoyId"`
}

func NewJoinConvoy(convoyID string) JoinConvoy {
	return JoinConvoy{Type: KindJoinConvoy, ConvoyID: convoyID}
}

// NewLeaveConvoy stops a convoy subscription. It shares JoinConvoy's shape.
func NewLeaveConvoy(convoyID string) JoinConvoy {
	return JoinConvoy{Type: KindLeaveConvoy, ConvoyID: convoyID}
}
