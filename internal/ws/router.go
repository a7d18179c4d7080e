package ws

// History is the read side of the Throttler used by the Router.
type History interface {
	History() []Event
}

// Router exposes per-kind views over the delivered history. Every view is
// recomputed from the current buffer; nothing is stored separately.
type Router struct {
	source History
}

// NewRouter creates a Router over source.
func NewRouter(source History) *Router {
	return &Router{source: source}
}

// All returns every buffered event, including unknown kinds.
func (r *Router) All() []Event {
	return r.source.History()
}

// Events returns buffered events of the given kind in delivery order.
// Unknown kinds never match a named projection.
func (r *Router) Events(kind Kind) []Event {
	return filterKind(r.source.History(), kind)
}

func (r *Router) CargoUpdates() []Event {
	return r.Events(KindCargoStatus)
}

func (r *Router) AreaUpdates() []Event {
	return r.Events(KindAreaUpdate)
}

func (r *Router) ConvoyUpdates() []Event {
	return r.Events(KindConvoyUpdate)
}

func (r *Router) VehicleLocations() []Event {
	return r.Events(KindVehicleLocation)
}

// Unknown returns buffered events whose kind has no named projection.
func (r *Router) Unknown() []Event {
	var out []Event
	for _, ev := range r.source.History() {
		if !ev.Known() {
			out = append(out, ev)
		}
	}
	return out
}

// ConvoyMessages returns convoy updates for convoyID together with location
// events of any vehicle those updates list.
func (r *Router) ConvoyMessages(convoyID string) []Event {
	events := r.source.History()

	vehicles := make(map[string]bool)
	for _, ev := range events {
		if cu, ok := ev.ConvoyUpdate(); ok && cu.ConvoyID == convoyID {
			for _, v := range cu.Vehicles {
				vehicles[v] = true
			}
		}
	}

	var out []Event
	for _, ev := range events {
		switch ev.Kind {
		case KindConvoyUpdate:
			if cu, ok := ev.ConvoyUpdate(); ok && cu.ConvoyID == convoyID {
				out = append(out, ev)
			}
		case KindVehicleLocation:
			if vl, ok := ev.VehicleLocation(); ok && vehicles[vl.VehicleID] {
				out = append(out, ev)
			}
		}
	}
	return out
}

// LatestVehicleLocations maps vehicle id to its most recent location event.
func (r *Router) LatestVehicleLocations() map[string]VehicleLocation {
	out := make(map[string]VehicleLocation)
	for _, ev := range r.source.History() {
		vl, ok := ev.VehicleLocation()
		if !ok {
			continue
		}
		if prev, seen := out[vl.VehicleID]; seen && prev.Timestamp > vl.Timestamp {
			continue
		}
		out[vl.VehicleID] = vl
	}
	return out
}

func filterKind(events []Event, kind Kind) []Event {
	out := make([]Event, 0, len(events))
	for _, ev := range events {
		if ev.Kind == kind && ev.Known() {
			out = append(out, ev)
		}
	}
	return out
}
