package registry

import (
	"strings"
	"time"

	"github.com/genricoloni/nowbar/internal/domain"
)

// entry wraps a player state with its ordering counters
type entry struct {
	state      domain.PlayerState
	registered uint64
	updated    uint64
}

// Registry tracks every known player and picks the active one.
// It is not safe for concurrent use; the engine loop owns it.
type Registry struct {
	blocked []string
	players map[domain.PlayerID]*entry
	seq     uint64
}

// New creates an empty registry. blocked holds lowercased name substrings.
func New(blocked []string) *Registry {
	return &Registry{
		blocked: blocked,
		players: make(map[domain.PlayerID]*entry),
	}
}

// Appear registers a player that just claimed its bus name.
// A known id only has its name refreshed.
func (r *Registry) Appear(id domain.PlayerID, name string) {
	if e, ok := r.players[id]; ok {
		if name != "" {
			e.state.Name = strings.ToLower(name)
		}
		return
	}
	r.seq++
	r.players[id] = &entry{
		state: domain.PlayerState{
			ID:     id,
			Name:   normalizeName(id, name),
			Status: domain.StatusStopped,
		},
		registered: r.seq,
		updated:    r.seq,
	}
}

// Upsert replaces the state of a player, creating it if needed.
// An empty name keeps the previously known one.
func (r *Registry) Upsert(state domain.PlayerState) {
	r.seq++
	e, ok := r.players[state.ID]
	if !ok {
		e = &entry{registered: r.seq}
		r.players[state.ID] = e
	}
	if state.Name == "" && ok {
		state.Name = e.state.Name
	}
	state.Name = normalizeName(state.ID, state.Name)
	e.state = state
	e.updated = r.seq
}

// Seek records a new position for a known player. It does not change
// the update order.
func (r *Registry) Seek(id domain.PlayerID, position time.Duration, at time.Time) bool {
	e, ok := r.players[id]
	if !ok {
		return false
	}
	e.state.Position = &position
	e.state.PositionAt = at
	return true
}

// Remove forgets a player. Removing an unknown id is a no-op.
func (r *Registry) Remove(id domain.PlayerID) bool {
	if _, ok := r.players[id]; !ok {
		return false
	}
	delete(r.players, id)
	return true
}

// Get returns the state of one player
func (r *Registry) Get(id domain.PlayerID) (domain.PlayerState, bool) {
	e, ok := r.players[id]
	if !ok {
		return domain.PlayerState{}, false
	}
	return e.state, true
}

// Players returns a snapshot of all tracked players, blocked ones included
func (r *Registry) Players() map[domain.PlayerID]domain.PlayerState {
	out := make(map[domain.PlayerID]domain.PlayerState, len(r.players))
	for id, e := range r.players {
		out[id] = e.state
	}
	return out
}

// Len returns the number of tracked players
func (r *Registry) Len() int {
	return len(r.players)
}

// Blocked reports whether a player name matches the block list
func (r *Registry) Blocked(name string) bool {
	name = strings.ToLower(name)
	for _, b := range r.blocked {
		if b != "" && strings.Contains(name, b) {
			return true
		}
	}
	return false
}

// SelectActive picks the player to display: playing beats paused, stopped
// players are never picked. Among equals the most recently updated wins,
// then the earliest registered.
func (r *Registry) SelectActive() (domain.PlayerID, bool) {
	var best *entry
	for _, e := range r.players {
		if rank(e.state.Status) == 0 || r.Blocked(e.state.Name) {
			continue
		}
		if best == nil || better(e, best) {
			best = e
		}
	}
	if best == nil {
		return "", false
	}
	return best.state.ID, true
}

func better(a, b *entry) bool {
	ra, rb := rank(a.state.Status), rank(b.state.Status)
	if ra != rb {
		return ra > rb
	}
	if a.updated != b.updated {
		return a.updated > b.updated
	}
	return a.registered < b.registered
}

func rank(s domain.PlayerStatus) int {
	switch s {
	case domain.StatusPlaying:
		return 2
	case domain.StatusPaused:
		return 1
	default:
		return 0
	}
}

func normalizeName(id domain.PlayerID, name string) string {
	if name == "" {
		name = string(id)
	}
	return strings.ToLower(name)
}
