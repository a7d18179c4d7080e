package pushsim

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/dgnsrekt/cargoviz-realtime/internal/ws"
)

// Replayer is a Source that cycles through recorded frames. Organization
// groups get cargo, area and unknown frames; convoy groups get convoy and
// vehicle frames. Every frame is re-stamped with the current time so
// clients reconcile it as fresh.
type Replayer struct {
	now func() time.Time

	mu        sync.Mutex
	org       [][]byte
	convoy    [][]byte
	orgIdx    int
	convoyIdx int
}

// NewReplayer splits recorded frames by destination.
func NewReplayer(frames [][]byte) (*Replayer, error) {
	r := &Replayer{now: time.Now}
	for i, frame := range frames {
		ev, err := ws.ParseEvent(frame)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		switch ev.Kind {
		case ws.KindConvoyUpdate, ws.KindVehicleLocation:
			r.convoy = append(r.convoy, frame)
		default:
			r.org = append(r.org, frame)
		}
	}
	return r, nil
}

// OrganizationFrame returns the next organization frame, wrapping around
// for continuous playback.
func (r *Replayer) OrganizationFrame() ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.org) == 0 {
		return nil, false
	}
	frame := r.org[r.orgIdx]
	r.orgIdx = (r.orgIdx + 1) % len(r.org)
	return r.restamp(frame, ""), true
}

// ConvoyFrames returns the next recorded convoy frame, addressed to
// convoyID when it is a convoy_update.
func (r *Replayer) ConvoyFrames(convoyID string) [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.convoy) == 0 {
		return nil
	}
	frame := r.convoy[r.convoyIdx]
	r.convoyIdx = (r.convoyIdx + 1) % len(r.convoy)
	return [][]byte{r.restamp(frame, convoyID)}
}

// restamp rewrites the timestamp and, for convoy updates, the convoy id.
// Frames that are not JSON objects are returned unchanged.
func (r *Replayer) restamp(frame []byte, convoyID string) []byte {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(frame, &fields); err != nil {
		return frame
	}
	fields["timestamp"] = json.RawMessage(strconv.FormatInt(r.now().UnixMilli(), 10))
	if convoyID != "" {
		if _, ok := fields["convoyId"]; ok {
			fields["convoyId"], _ = json.Marshal(convoyID)
		}
	}
	out, err := json.Marshal(fields)
	if err != nil {
		return frame
	}
	return out
}
