package race

import (
	"sync"
	"time"
)

// Room status, only ever moves forward: waiting -> in_progress -> completed.
type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Broadcast event types sent to every connection in a room.
const (
	EventRoomUpdated         = "room-updated"
	EventRaceStarted         = "race-started"
	EventProgressUpdate      = "progress-update"
	EventParticipantFinished = "participant-finished"
	EventRaceCompleted       = "race-completed"
)

// Broadcaster fans an event out to every connection currently bound to a
// room. Delivery is best-effort; a slow consumer simply misses the event.
// CloseRoom drops every binding under a code whose room is gone, so a code
// handed out again can never reach the old room's connections.
type Broadcaster interface {
	Broadcast(roomCode, event string, payload any)
	CloseRoom(roomCode string)
}

// Identity is a verified user, produced by the connection authenticator.
type Identity struct {
	ID   string
	Name string
}

// Config is the race configuration, fixed at creation.
type Config struct {
	DurationSeconds int      `json:"durationSeconds"`
	WordList        []string `json:"wordList"`
}

// Participant is one identity's live membership in a room.
type Participant struct {
	ID              string     `json:"userId"`
	Name            string     `json:"displayName"`
	WPM             float64    `json:"wpm"`
	Accuracy        float64    `json:"accuracy"`
	ProgressPercent float64    `json:"progressPercent"`
	Finished        bool       `json:"finished"`
	FinishedAt      *time.Time `json:"finishedAt,omitempty"`
	Position        int        `json:"position,omitempty"`
	JoinedAt        time.Time  `json:"joinedAt"`
}

// Snapshot is an immutable copy of a room's state, safe to serialize and
// hand to other goroutines.
type Snapshot struct {
	Code            string        `json:"code"`
	CreatorID       string        `json:"creatorId"`
	Status          Status        `json:"status"`
	DurationSeconds int           `json:"durationSeconds"`
	WordList        []string      `json:"wordList"`
	Participants    []Participant `json:"participants"`
	StartedAt       *time.Time    `json:"startedAt,omitempty"`
	EndedAt         *time.Time    `json:"endedAt,omitempty"`
}

type startedPayload struct {
	StartedAt time.Time `json:"startedAt"`
}

type progressPayload struct {
	UserID          string  `json:"userId"`
	WPM             float64 `json:"wpm"`
	Accuracy        float64 `json:"accuracy"`
	ProgressPercent float64 `json:"progressPercent"`
}

type finishedPayload struct {
	UserID   string  `json:"userId"`
	Position int     `json:"position"`
	WPM      float64 `json:"wpm"`
}

// Room is a bounded group of participants racing together. All mutation goes
// through methods that hold mu for the whole read-modify-broadcast sequence,
// so events for one room are applied in strict serial order. Broadcast
// payloads are built from copies under the lock; actual delivery is
// asynchronous through the Broadcaster.
type Room struct {
	code      string
	creatorID string
	config    Config
	createdAt time.Time
	expiresAt time.Time

	registry    *Registry
	broadcaster Broadcaster

	mu           sync.Mutex
	status       Status
	closed       bool // registry purged the room; every command is refused
	participants []*Participant
	finishes     int // total positions handed out, never decremented
	startedAt    time.Time
	endedAt      time.Time
}

// Code returns the room's shareable join code.
func (r *Room) Code() string {
	return r.code
}

// CreatorID returns the identity that created the room.
func (r *Room) CreatorID() string {
	return r.creatorID
}

// Snapshot returns a copy of the current room state.
func (r *Room) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Room) snapshotLocked() Snapshot {
	participants := make([]Participant, len(r.participants))
	for i, p := range r.participants {
		participants[i] = *p
	}

	snap := Snapshot{
		Code:            r.code,
		CreatorID:       r.creatorID,
		Status:          r.status,
		DurationSeconds: r.config.DurationSeconds,
		WordList:        r.config.WordList,
		Participants:    participants,
	}
	if !r.startedAt.IsZero() {
		t := r.startedAt
		snap.StartedAt = &t
	}
	if !r.endedAt.IsZero() {
		t := r.endedAt
		snap.EndedAt = &t
	}
	return snap
}

func (r *Room) findLocked(userID string) *Participant {
	for _, p := range r.participants {
		if p.ID == userID {
			return p
		}
	}
	return nil
}

// Join adds a participant while the room is still waiting and broadcasts the
// updated room to everyone already in it.
func (r *Room) Join(id Identity) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return Snapshot{}, ErrRoomNotFound
	}
	if r.status != StatusWaiting {
		return Snapshot{}, ErrRaceAlreadyStarted
	}
	if r.findLocked(id.ID) != nil {
		return Snapshot{}, ErrDuplicateParticipant
	}

	r.participants = append(r.participants, &Participant{
		ID:       id.ID,
		Name:     id.Name,
		Accuracy: 100,
		JoinedAt: time.Now(),
	})

	snap := r.snapshotLocked()
	r.broadcaster.Broadcast(r.code, EventRoomUpdated, snap)
	return snap, nil
}

// Start transitions the room to in_progress. Only the creator may start.
func (r *Room) Start(byUserID string) (time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return time.Time{}, ErrRoomNotFound
	}
	if r.status != StatusWaiting {
		return time.Time{}, ErrInvalidRoomState
	}
	if byUserID != r.creatorID {
		return time.Time{}, ErrNotAuthorized
	}

	r.status = StatusInProgress
	r.startedAt = time.Now()

	r.broadcaster.Broadcast(r.code, EventRaceStarted, startedPayload{StartedAt: r.startedAt})
	return r.startedAt, nil
}

// Progress records a participant's live metrics and rebroadcasts them.
// Best-effort stream: reports outside in_progress, or from identities not in
// the room, are dropped without an error.
func (r *Room) Progress(userID string, wpm, accuracy, progressPercent float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status != StatusInProgress {
		return
	}
	p := r.findLocked(userID)
	if p == nil || p.Finished {
		return
	}

	p.WPM = wpm
	p.Accuracy = accuracy
	p.ProgressPercent = progressPercent

	r.broadcaster.Broadcast(r.code, EventProgressUpdate, progressPayload{
		UserID:          userID,
		WPM:             wpm,
		Accuracy:        accuracy,
		ProgressPercent: progressPercent,
	})
}

// Finish marks a participant as finished and assigns its position in
// serialized processing order. Finishing an already-finished participant
// returns the existing position and changes nothing. When every present
// participant has finished the room completes and its removal is scheduled
// after the grace period.
func (r *Room) Finish(userID string, wpm, accuracy float64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0, ErrRoomNotFound
	}
	if r.status != StatusInProgress {
		return 0, ErrInvalidRoomState
	}
	p := r.findLocked(userID)
	if p == nil {
		return 0, ErrNotInRoom
	}
	if p.Finished {
		return p.Position, nil
	}

	r.finishes++
	now := time.Now()
	p.Finished = true
	p.FinishedAt = &now
	p.Position = r.finishes
	p.WPM = wpm
	p.Accuracy = accuracy
	p.ProgressPercent = 100

	r.broadcaster.Broadcast(r.code, EventParticipantFinished, finishedPayload{
		UserID:   userID,
		Position: p.Position,
		WPM:      wpm,
	})

	if r.allFinishedLocked() {
		r.completeLocked()
	}
	return p.Position, nil
}

// Leave removes a participant regardless of room status. An empty room is
// removed from the registry immediately. If the departure leaves only
// finished participants mid-race, the race completes. Positions already
// assigned are unaffected.
func (r *Room) Leave(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := -1
	for i, p := range r.participants {
		if p.ID == userID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	r.participants = append(r.participants[:idx], r.participants[idx+1:]...)

	if len(r.participants) == 0 {
		r.registry.Remove(r.code)
		return true
	}

	if r.status == StatusInProgress && r.allFinishedLocked() {
		// Roster change first, then the completion it triggered.
		r.broadcaster.Broadcast(r.code, EventRoomUpdated, r.snapshotLocked())
		r.completeLocked()
		return true
	}

	r.broadcaster.Broadcast(r.code, EventRoomUpdated, r.snapshotLocked())
	return true
}

func (r *Room) allFinishedLocked() bool {
	for _, p := range r.participants {
		if !p.Finished {
			return false
		}
	}
	return len(r.participants) > 0
}

func (r *Room) completeLocked() {
	r.status = StatusCompleted
	r.endedAt = time.Now()
	r.broadcaster.Broadcast(r.code, EventRaceCompleted, r.snapshotLocked())
	r.registry.scheduleRemoval(r.code)
}

// Closed reports whether the registry has purged the room. A connection still
// holding a closed room should drop its binding.
func (r *Room) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// expireIfStale closes a room that is still waiting past its expiry and evicts
// its participants. A closed room refuses every further command with
// ErrRoomNotFound; there is no broadcast, bound connections find out on their
// next command.
func (r *Room) expireIfStale(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || r.status != StatusWaiting || now.Before(r.expiresAt) {
		return false
	}
	r.closed = true
	r.participants = nil
	return true
}
