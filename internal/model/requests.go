package model

type CreateAreaRequest struct {
	Name           string   `json:"name"`
	Surface        string   `json:"surface,omitempty"`
	Elevation      *float64 `json:"elevation,omitempty"`
	Coordinates    []Point  `json:"coordinates"`
	Area           float64  `json:"area"`
	OrganizationID string   `json:"organizationId"`
}

// UpdateAreaRequest carries only the fields being changed.
type UpdateAreaRequest struct {
	Name        *string  `json:"name,omitempty"`
	Surface     *string  `json:"surface,omitempty"`
	Elevation   *float64 `json:"elevation,omitempty"`
	Coordinates []Point  `json:"coordinates,omitempty"`
	Area        *float64 `json:"area,omitempty"`
}

type CreateCargoRequest struct {
	Name           string  `json:"name"`
	Type           string  `json:"type"`
	Dimensions     string  `json:"dimensions"`
	Weight         string  `json:"weight"`
	Zone           string  `json:"zone"`
	Coordinates    []Point `json:"coordinates,omitempty"`
	OrganizationID string  `json:"organizationId"`
}

// UpdateCargoRequest carries only the fields being changed.
type UpdateCargoRequest struct {
	Name        *string      `json:"name,omitempty"`
	Type        *string      `json:"type,omitempty"`
	Status      *CargoStatus `json:"status,omitempty"`
	Dimensions  *string      `json:"dimensions,omitempty"`
	Weight      *string      `json:"weight,omitempty"`
	Zone        *string      `json:"zone,omitempty"`
	Coordinates []Point      `json:"coordinates,omitempty"`
}

// ValidStatus reports whether s is one of the known cargo statuses.
func ValidStatus(s CargoStatus) bool {
	switch s {
	case StatusPlaced, StatusPending, StatusConflict:
		return true
	}
	return false
}
