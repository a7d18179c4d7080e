package pushsim

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/cargoviz-realtime/internal/model"
	"github.com/dgnsrekt/cargoviz-realtime/internal/ws"
)

// Yard centre used for generated positions (Port of Seattle).
var yardCentre = model.Point{47.6062, -122.3321}

var (
	statuses = []model.CargoStatus{model.StatusPlaced, model.StatusPending, model.StatusConflict}
	surfaces = []string{"Concrete", "Asphalt", "Gravel"}
)

// Entities are the ids the generator refers to.
type Entities struct {
	CargoIDs   []string
	AreaIDs    []string
	VehicleIDs []string
}

// Generator produces synthetic frames. It is safe for concurrent use.
type Generator struct {
	ents Entities
	now  func() time.Time

	mu       sync.Mutex
	rnd      *rand.Rand
	vehicles map[string]model.Point
}

// NewGenerator creates a Generator. The seed makes output reproducible.
func NewGenerator(ents Entities, seed uint64) *Generator {
	g := &Generator{
		ents:     ents,
		now:      time.Now,
		rnd:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		vehicles: make(map[string]model.Point, len(ents.VehicleIDs)),
	}
	for _, id := range ents.VehicleIDs {
		g.vehicles[id] = yardCentre
	}
	return g
}

type cargoStatusFrame struct {
	Type ws.Kind `json:"type"`
	ws.CargoStatus
}

type areaUpdateFrame struct {
	Type ws.Kind `json:"type"`
	ws.AreaUpdate
}

type convoyUpdateFrame struct {
	Type ws.Kind `json:"type"`
	ws.ConvoyUpdate
}

type vehicleLocationFrame struct {
	Type ws.Kind `json:"type"`
	ws.VehicleLocation
}

func pick[T any](r *rand.Rand, items []T) T {
	return items[r.IntN(len(items))]
}

// OrganizationFrame returns one cargo_status or area_update frame.
func (g *Generator) OrganizationFrame() ([]byte, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ts := g.now().UnixMilli()
	useArea := len(g.ents.AreaIDs) > 0 && (len(g.ents.CargoIDs) == 0 || g.rnd.IntN(4) == 0)

	switch {
	case useArea:
		data, _ := json.Marshal(map[string]string{"surface": pick(g.rnd, surfaces)})
		return mustMarshal(areaUpdateFrame{
			Type: ws.KindAreaUpdate,
			AreaUpdate: ws.AreaUpdate{
				AreaID:    pick(g.rnd, g.ents.AreaIDs),
				Action:    ws.ActionUpdate,
				Data:      data,
				Timestamp: ts,
			},
		}), true

	case len(g.ents.CargoIDs) > 0:
		loc := g.jitterLocked(yardCentre, 0.001)
		return mustMarshal(cargoStatusFrame{
			Type: ws.KindCargoStatus,
			CargoStatus: ws.CargoStatus{
				CargoID:   pick(g.rnd, g.ents.CargoIDs),
				Status:    string(pick(g.rnd, statuses)),
				Location:  &loc,
				Timestamp: ts,
			},
		}), true
	}
	return nil, false
}

// ConvoyFrames returns a convoy_update for convoyID followed by a
// vehicle_location for each of its vehicles.
func (g *Generator) ConvoyFrames(convoyID string) [][]byte {
	g.mu.Lock()
	defer g.mu.Unlock()

	ts := g.now().UnixMilli()
	frames := [][]byte{mustMarshal(convoyUpdateFrame{
		Type: ws.KindConvoyUpdate,
		ConvoyUpdate: ws.ConvoyUpdate{
			ConvoyID:  convoyID,
			Status:    "in_transit",
			Vehicles:  g.ents.VehicleIDs,
			Timestamp: ts,
		},
	})}

	for _, id := range g.ents.VehicleIDs {
		next := g.jitterLocked(g.vehicles[id], 0.0002)
		g.vehicles[id] = next
		frames = append(frames, mustMarshal(vehicleLocationFrame{
			Type: ws.KindVehicleLocation,
			VehicleLocation: ws.VehicleLocation{
				VehicleID: id,
				Location:  next,
				Speed:     5 + g.rnd.Float64()*20,
				Heading:   g.rnd.Float64() * 360,
				Timestamp: ts,
			},
		}))
	}
	return frames
}

func (g *Generator) jitterLocked(p model.Point, spread float64) model.Point {
	return model.Point{
		p[0] + (g.rnd.Float64()*2-1)*spread,
		p[1] + (g.rnd.Float64()*2-1)*spread,
	}
}

func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// Source supplies the frames a Streamer broadcasts.
type Source interface {
	OrganizationFrame() ([]byte, bool)
	ConvoyFrames(convoyID string) [][]byte
}

// Streamer broadcasts frames from a Source to every active group. Each
// group gets at most one frame per tick and the frames of a tick are spread
// evenly across the interval, so a client throttling bursts still sees
// every kind.
type Streamer struct {
	hub      *Hub
	src      Source
	interval time.Duration
	logger   *zap.Logger

	// Frames still owed to each convoy group from its last ConvoyFrames call.
	pending map[string][][]byte
}

// NewStreamer creates a new Streamer.
func NewStreamer(hub *Hub, src Source, interval time.Duration, logger *zap.Logger) *Streamer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Streamer{
		hub:      hub,
		src:      src,
		interval: interval,
		logger:   logger,
		pending:  make(map[string][][]byte),
	}
}

// Run starts the streaming loop. Call in a goroutine.
// Returns when context is cancelled.
func (s *Streamer) Run(ctx context.Context) {
	// Align first tick to top of second for predictable timing
	nextSecond := time.Now().Truncate(time.Second).Add(time.Second)
	select {
	case <-ctx.Done():
		return
	case <-time.After(time.Until(nextSecond)):
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("streamer started", zap.Duration("interval", s.interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("streamer stopping")
			return

		case <-ticker.C:
			s.dispatch(ctx, s.nextRound(s.hub.ActiveGroups()))
		}
	}
}

// outbound is one frame addressed to one group.
type outbound struct {
	group string
	frame []byte
}

// nextRound picks one frame for each active group. Convoy groups work
// through the convoy_update and vehicle_location frames of a round before
// asking the Source for more.
func (s *Streamer) nextRound(groups []string) []outbound {
	sort.Strings(groups)
	active := make(map[string]bool, len(groups))
	var round []outbound

	for _, group := range groups {
		active[group] = true

		if _, ok := groupID(group, orgGroupPrefix); ok {
			if frame, ok := s.src.OrganizationFrame(); ok {
				round = append(round, outbound{group: group, frame: frame})
			}
			continue
		}
		convoyID, ok := groupID(group, convoyGroupPrefix)
		if !ok {
			continue
		}
		queue := s.pending[group]
		if len(queue) == 0 {
			queue = s.src.ConvoyFrames(convoyID)
			s.logger.Debug("queued convoy frames",
				zap.String("convoy", convoyID),
				zap.Int("frames", len(queue)),
			)
		}
		if len(queue) == 0 {
			continue
		}
		round = append(round, outbound{group: group, frame: queue[0]})
		s.pending[group] = queue[1:]
	}

	for group := range s.pending {
		if !active[group] {
			delete(s.pending, group)
		}
	}
	return round
}

// dispatch broadcasts a round, spacing frames interval/len(round) apart.
func (s *Streamer) dispatch(ctx context.Context, round []outbound) {
	if len(round) == 0 {
		return
	}
	gap := s.interval / time.Duration(len(round))
	for i, out := range round {
		if i > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(gap):
			}
		}
		s.hub.Broadcast(out.group, out.frame)
	}
}
