package reconcile

import (
	"encoding/json"

	jsonpatch "github.com/evanphx/json-patch/v5"

	"github.com/dgnsrekt/cargoviz-realtime/internal/model"
)

// Update is one incremental change to a base entity, normalised from a
// push event.
type Update struct {
	EntityID  string
	Timestamp int64 // milliseconds since epoch

	Status   string       // empty when the event carries none
	Location *model.Point // optional
	Patch    json.RawMessage
	Remove   bool
}

// Overlay tells Merge how to identify and update entities of type T.
type Overlay[T any] struct {
	ID func(T) string
	// Apply returns the updated copy and false when the entity should leave
	// the view.
	Apply func(T, Update) (T, bool)
}

// Merge overlays updates newer than watermark onto base and returns a new
// slice in base order. Per entity the update with the greatest timestamp
// wins; on equal timestamps the later one in the sequence wins. Updates for
// ids absent from base are ignored and base is never modified.
func Merge[T any](base []T, updates []Update, watermark int64, o Overlay[T]) []T {
	latest := latestByID(updates, watermark)

	out := make([]T, 0, len(base))
	for _, entity := range base {
		u, ok := latest[o.ID(entity)]
		if !ok {
			out = append(out, entity)
			continue
		}
		if next, keep := o.Apply(entity, u); keep {
			out = append(out, next)
		}
	}
	return out
}

func latestByID(updates []Update, watermark int64) map[string]Update {
	latest := make(map[string]Update, len(updates))
	for _, u := range updates {
		if u.Timestamp <= watermark || u.EntityID == "" {
			continue
		}
		if prev, ok := latest[u.EntityID]; ok && prev.Timestamp > u.Timestamp {
			continue
		}
		latest[u.EntityID] = u
	}
	return latest
}

// CargoOverlay overlays status and location onto cargo items.
var CargoOverlay = Overlay[model.Cargo]{
	ID:    func(c model.Cargo) string { return c.ID },
	Apply: applyCargo,
}

// AreaOverlay merge-patches area fields and honours deletes.
var AreaOverlay = Overlay[model.Area]{
	ID:    func(a model.Area) string { return a.ID },
	Apply: applyArea,
}

func applyCargo(c model.Cargo, u Update) (model.Cargo, bool) {
	if u.Remove {
		return c, false
	}
	if u.Status != "" {
		c.Status = model.CargoStatus(u.Status)
	}
	if u.Location != nil {
		c.Coordinates = []model.Point{*u.Location}
	}
	return c, true
}

func applyArea(a model.Area, u Update) (model.Area, bool) {
	if u.Remove {
		return a, false
	}
	if len(u.Patch) == 0 {
		return a, true
	}

	original, err := json.Marshal(a)
	if err != nil {
		return a, true
	}
	merged, err := jsonpatch.MergePatch(original, u.Patch)
	if err != nil {
		return a, true
	}

	var next model.Area
	if err := json.Unmarshal(merged, &next); err != nil {
		return a, true
	}
	// Identity fields are owned by the server record.
	next.ID = a.ID
	next.OrganizationID = a.OrganizationID
	return next, true
}

// MergeCargo is Merge with CargoOverlay.
func MergeCargo(base []model.Cargo, updates []Update, watermark int64) []model.Cargo {
	return Merge(base, updates, watermark, CargoOverlay)
}

// MergeAreas is Merge with AreaOverlay.
func MergeAreas(base []model.Area, updates []Update, watermark int64) []model.Area {
	return Merge(base, updates, watermark, AreaOverlay)
}
