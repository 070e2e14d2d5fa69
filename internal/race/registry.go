package race

import (
	"crypto/rand"
	"fmt"
	"log"
	"sync"
	"time"
)

const (
	codeLength   = 6
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	defaultDurationSeconds = 60
	maxCodeAttempts        = 10
)

// Registry is the process-wide table of active rooms, keyed by join code.
// Its lock guards only the table itself; per-room state is serialized by each
// room's own mutex. Rooms never call back into the registry while it holds
// its lock, so the room -> registry lock order is safe.
type Registry struct {
	broadcaster Broadcaster
	gracePeriod time.Duration
	roomTTL     time.Duration

	mu     sync.Mutex
	rooms  map[string]*Room
	timers map[string]*time.Timer
}

func NewRegistry(b Broadcaster, gracePeriod, roomTTL time.Duration) *Registry {
	return &Registry{
		broadcaster: b,
		gracePeriod: gracePeriod,
		roomTTL:     roomTTL,
		rooms:       make(map[string]*Room),
		timers:      make(map[string]*time.Timer),
	}
}

// Create constructs a waiting room with the creator as its first participant
// and inserts it under a freshly generated code.
func (g *Registry) Create(creator Identity, cfg Config) (*Room, error) {
	if cfg.DurationSeconds <= 0 {
		cfg.DurationSeconds = defaultDurationSeconds
	}

	now := time.Now()
	room := &Room{
		creatorID:   creator.ID,
		config:      cfg,
		createdAt:   now,
		expiresAt:   now.Add(g.roomTTL),
		registry:    g,
		broadcaster: g.broadcaster,
		status:      StatusWaiting,
	}
	// Not yet published, no lock needed.
	room.participants = append(room.participants, &Participant{
		ID:       creator.ID,
		Name:     creator.Name,
		Accuracy: 100,
		JoinedAt: now,
	})

	g.mu.Lock()
	defer g.mu.Unlock()

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := generateCode()
		if err != nil {
			return nil, err
		}
		if _, taken := g.rooms[code]; taken {
			continue
		}
		room.code = code
		g.rooms[code] = room
		return room, nil
	}
	return nil, fmt.Errorf("could not allocate a room code after %d attempts", maxCodeAttempts)
}

// Lookup finds an active room by code.
func (g *Registry) Lookup(code string) (*Room, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	room, ok := g.rooms[code]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// Remove deletes a room from the table, cancels any pending grace-period
// purge, and drops the transport bindings under its code. The code may be
// reissued afterwards. Idempotent.
func (g *Registry) Remove(code string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if timer, ok := g.timers[code]; ok {
		timer.Stop()
		delete(g.timers, code)
	}
	if _, ok := g.rooms[code]; ok {
		delete(g.rooms, code)
		g.broadcaster.CloseRoom(code)
		log.Printf("Room %s removed (active: %d)", code, len(g.rooms))
	}
}

// Count returns the number of active rooms.
func (g *Registry) Count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rooms)
}

// scheduleRemoval purges a completed room after the grace period, leaving
// slow consumers time to observe the final broadcast. Cancelled by Remove if
// the room is destroyed earlier.
func (g *Registry) scheduleRemoval(code string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.rooms[code]; !ok {
		return
	}
	if _, pending := g.timers[code]; pending {
		return
	}
	g.timers[code] = time.AfterFunc(g.gracePeriod, func() {
		g.Remove(code)
	})
}

// SweepExpired closes and removes rooms that never started and sat past their
// TTL. Closing first means a client still holding the room pointer cannot run
// an orphaned race after the purge. Rooms are inspected outside the registry
// lock to keep the room -> registry lock order one-way.
func (g *Registry) SweepExpired() int {
	g.mu.Lock()
	candidates := make([]*Room, 0, len(g.rooms))
	for _, room := range g.rooms {
		candidates = append(candidates, room)
	}
	g.mu.Unlock()

	now := time.Now()
	removed := 0
	for _, room := range candidates {
		if room.expireIfStale(now) {
			g.Remove(room.Code())
			removed++
		}
	}
	return removed
}

func generateCode() (string, error) {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating room code: %w", err)
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}
