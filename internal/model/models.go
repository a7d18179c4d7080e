package model

// CargoStatus is the placement state of a cargo item.
type CargoStatus string

const (
	StatusPlaced   CargoStatus = "Placed"
	StatusPending  CargoStatus = "Pending"
	StatusConflict CargoStatus = "Conflict"
)

// Point is a [lat, lon] pair as sent by the API.
type Point [2]float64

// Area is a yard zone drawn as a polygon.
type Area struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Surface        string   `json:"surface,omitempty"`
	Elevation      *float64 `json:"elevation,omitempty"`
	Coordinates    []Point  `json:"coordinates"`
	Area           float64  `json:"area"`
	OrganizationID string   `json:"organizationId"`
	CreatedAt      string   `json:"createdAt"`
	UpdatedAt      string   `json:"updatedAt"`
}

// Cargo is a single tracked item placed in a zone.
type Cargo struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	Type           string      `json:"type"`
	Status         CargoStatus `json:"status"`
	Dimensions     string      `json:"dimensions"`
	Weight         string      `json:"weight"`
	Zone           string      `json:"zone"`
	Coordinates    []Point     `json:"coordinates,omitempty"`
	OrganizationID string      `json:"organizationId"`
	CreatedAt      string      `json:"createdAt"`
	UpdatedAt      string      `json:"updatedAt"`
}

type User struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	Role           string `json:"role"`
	OrganizationID string `json:"organizationId"`
}

type Organization struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
	Contact string `json:"contact,omitempty"`
}

type Project struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Description    string `json:"description,omitempty"`
	OrganizationID string `json:"organizationId"`
	StartDate      string `json:"startDate,omitempty"`
	EndDate        string `json:"endDate,omitempty"`
}

// LoginResponse is returned by the token endpoint.
type LoginResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}
