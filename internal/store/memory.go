// internal/store/memory.go
//
// In-memory implementation of the session Store.
// Holds one *game.Game per live session; the server looks engines up by ID
// on every request.
//
// Characteristics:
//   - Concurrency-safe via RWMutex (concurrent reads allowed, writes exclusive).
//   - Per-game locking (WithGame) so concurrent guesses on one session are
//     applied one at a time; the engine itself is not goroutine-safe.
//   - State is lost when the process restarts.

package store

import (
	"context"
	"errors"
	"sync"

	"github.com/robalobadob/numguess/internal/game"
)

// ErrNotFound is returned for unknown game IDs.
var ErrNotFound = errors.New("not found")

// Store defines the persistence interface for game sessions.
type Store interface {
	// Save persists or updates a game.
	Save(ctx context.Context, g *game.Game) error

	// WithGame runs fn with exclusive access to the game with the given ID.
	WithGame(ctx context.Context, id string, fn func(g *game.Game) error) error

	// Delete drops a game. Missing IDs are not an error.
	Delete(ctx context.Context, id string) error
}

type entry struct {
	mu sync.Mutex // serialises engine access
	g  *game.Game
}

// memory is an in-memory map-based Store implementation.
type memory struct {
	mu    sync.RWMutex      // guards games map
	games map[string]*entry // keyed by Game.ID
}

// NewMemoryStore constructs a new in-memory Store.
func NewMemoryStore() Store {
	return &memory{games: make(map[string]*entry)}
}

func (m *memory) Save(ctx context.Context, g *game.Game) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.games[g.ID]; ok {
		e.mu.Lock()
		e.g = g
		e.mu.Unlock()
		return nil
	}
	m.games[g.ID] = &entry{g: g}
	return nil
}

func (m *memory) WithGame(ctx context.Context, id string, fn func(g *game.Game) error) error {
	m.mu.RLock()
	e, ok := m.games[id]
	m.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.g)
}

func (m *memory) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.games, id)
	return nil
}
