package reconcile

import (
	"github.com/dgnsrekt/cargoviz-realtime/internal/ws"
)

// CargoUpdates converts cargo_status events. Other kinds are skipped.
func CargoUpdates(events []ws.Event) []Update {
	updates := make([]Update, 0, len(events))
	for _, ev := range events {
		cs, ok := ev.CargoStatus()
		if !ok {
			continue
		}
		updates = append(updates, Update{
			EntityID:  cs.CargoID,
			Timestamp: cs.Timestamp,
			Status:    cs.Status,
			Location:  cs.Location,
		})
	}
	return updates
}

// AreaUpdates converts area_update events. A delete action removes the area
// from the view; create actions never add one.
func AreaUpdates(events []ws.Event) []Update {
	updates := make([]Update, 0, len(events))
	for _, ev := range events {
		au, ok := ev.AreaUpdate()
		if !ok {
			continue
		}
		u := Update{
			EntityID:  au.AreaID,
			Timestamp: au.Timestamp,
		}
		switch au.Action {
		case ws.ActionDelete:
			u.Remove = true
		default:
			if len(au.Data) > 0 && string(au.Data) != "null" {
				u.Patch = au.Data
			}
		}
		updates = append(updates, u)
	}
	return updates
}
