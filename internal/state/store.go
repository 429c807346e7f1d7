// Package state holds the host's canonical world snapshot. Exactly one Store
// exists per hosted session; every mutation goes through its lock.
package state

import (
	"math"
	"sync"

	"flyknight/netplay/internal/logging"
	"flyknight/netplay/internal/protocol"
)

// Update is a partial snapshot from an external collaborator (world
// generation, AI, combat). Nil sections are left untouched; non-nil map
// sections replace their counterpart wholesale, matching how the game loop
// publishes its authoritative view between ticks.
type Update struct {
	Players map[int]protocol.PlayerView
	Enemies map[int]protocol.EnemyView
	Items   map[int]protocol.ItemView
	Dungeon *protocol.DungeonDescriptor
	Level   *int
}

// DamageResult describes the outcome of applying one enemy_damage effect.
type DamageResult struct {
	// Applied is false when the enemy id was not present, so the message
	// resolves to nothing and no broadcast is owed.
	Applied bool
	// Died means the entry was deleted and its id retired.
	Died bool
	// RemainingHP is meaningful only when Applied && !Died.
	RemainingHP float64
}

// Store is the single writable copy of the world. All peers other than the
// host only ever see clones of it.
type Store struct {
	mu       sync.Mutex
	snapshot protocol.GameStateSnapshot

	// Retired ids may never re-enter the snapshot, even through collaborator
	// merges; deaths and pickups must resolve at most once.
	retiredEnemies map[int]struct{}
	retiredItems   map[int]struct{}

	log *logging.Logger
}

// NewStore returns an empty store.
func NewStore(logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.L()
	}
	return &Store{
		snapshot:       protocol.NewGameStateSnapshot(),
		retiredEnemies: make(map[int]struct{}),
		retiredItems:   make(map[int]struct{}),
		log:            logger,
	}
}

// Snapshot returns a deep copy of the current world state.
func (s *Store) Snapshot() protocol.GameStateSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot.Clone()
}

// SetPlayer replaces one player's entry.
func (s *Store) SetPlayer(id int, view protocol.PlayerView) {
	s.mu.Lock()
	defer s.mu.Unlock()
	view.PlayerID = id
	s.snapshot.Players[id] = view.Clone()
}

// RemovePlayer deletes a player entry, reporting whether it existed.
func (s *Store) RemovePlayer(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.snapshot.Players[id]; !ok {
		return false
	}
	delete(s.snapshot.Players, id)
	return true
}

// HasPlayer reports whether the player id is present.
func (s *Store) HasPlayer(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.snapshot.Players[id]
	return ok
}

// DamageEnemy subtracts damage from an enemy's hp, deleting and retiring the
// entry when it drops to zero or below.
func (s *Store) DamageEnemy(id int, damage float64) DamageResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	enemy, ok := s.snapshot.Enemies[id]
	if !ok {
		return DamageResult{}
	}
	enemy.HP -= damage
	if enemy.HP <= 0 {
		delete(s.snapshot.Enemies, id)
		s.retiredEnemies[id] = struct{}{}
		return DamageResult{Applied: true, Died: true}
	}
	s.snapshot.Enemies[id] = enemy
	return DamageResult{Applied: true, RemainingHP: enemy.HP}
}

// RemoveItem deletes and retires a world item, reporting whether the claim
// won. Concurrent pickups of the same id resolve exactly once.
func (s *Store) RemoveItem(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.snapshot.Items[id]; !ok {
		return false
	}
	delete(s.snapshot.Items, id)
	s.retiredItems[id] = struct{}{}
	return true
}

// Merge folds a collaborator update into the snapshot. Retired enemy and item
// ids are dropped from the incoming sections; ids that the collaborator has
// stopped publishing are retired so they cannot return later.
func (s *Store) Merge(update Update) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if update.Players != nil {
		players := make(map[int]protocol.PlayerView, len(update.Players))
		for id, view := range update.Players {
			view.PlayerID = id
			players[id] = sanitizePlayer(view.Clone())
		}
		s.snapshot.Players = players
	}

	if update.Enemies != nil {
		enemies := make(map[int]protocol.EnemyView, len(update.Enemies))
		for id, view := range update.Enemies {
			if _, retired := s.retiredEnemies[id]; retired {
				s.log.Debug("dropping retired enemy id from merge", logging.Int("enemy_id", id))
				continue
			}
			view.ID = id
			enemies[id] = sanitizeEnemy(view.Clone())
		}
		for id := range s.snapshot.Enemies {
			if _, ok := enemies[id]; !ok {
				s.retiredEnemies[id] = struct{}{}
			}
		}
		s.snapshot.Enemies = enemies
	}

	if update.Items != nil {
		items := make(map[int]protocol.ItemView, len(update.Items))
		for id, view := range update.Items {
			if _, retired := s.retiredItems[id]; retired {
				s.log.Debug("dropping retired item id from merge", logging.Int("item_id", id))
				continue
			}
			items[id] = sanitizeItem(view)
		}
		for id := range s.snapshot.Items {
			if _, ok := items[id]; !ok {
				s.retiredItems[id] = struct{}{}
			}
		}
		s.snapshot.Items = items
	}

	if update.Dungeon != nil {
		s.snapshot.Dungeon = sanitizeDungeon(update.Dungeon.Clone())
	}
	if update.Level != nil {
		s.snapshot.Level = *update.Level
	}
}

// finite zeroes out NaN and infinite values. Collaborator game math can
// produce them, and encoding/json rejects them, so one bad entity would
// otherwise poison every subsequent snapshot broadcast.
func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func sanitizePlayer(view protocol.PlayerView) protocol.PlayerView {
	view.X = finite(view.X)
	view.Y = finite(view.Y)
	view.HP = finite(view.HP)
	view.MaxHP = finite(view.MaxHP)
	view.Stamina = finite(view.Stamina)
	view.MaxStamina = finite(view.MaxStamina)
	view.FacingAngle = finite(view.FacingAngle)
	return view
}

func sanitizeEnemy(view protocol.EnemyView) protocol.EnemyView {
	view.X = finite(view.X)
	view.Y = finite(view.Y)
	view.HP = finite(view.HP)
	view.MaxHP = finite(view.MaxHP)
	view.LastAttack = finite(view.LastAttack)
	view.SpawnPos[0] = finite(view.SpawnPos[0])
	view.SpawnPos[1] = finite(view.SpawnPos[1])
	view.Velocity[0] = finite(view.Velocity[0])
	view.Velocity[1] = finite(view.Velocity[1])
	return view
}

func sanitizeItem(view protocol.ItemView) protocol.ItemView {
	view.X = finite(view.X)
	view.Y = finite(view.Y)
	return view
}

func sanitizeDungeon(d protocol.DungeonDescriptor) protocol.DungeonDescriptor {
	d.SpawnPos[0] = finite(d.SpawnPos[0])
	d.SpawnPos[1] = finite(d.SpawnPos[1])
	for i := range d.Rooms {
		room := &d.Rooms[i]
		room.X = finite(room.X)
		room.Y = finite(room.Y)
		room.Width = finite(room.Width)
		room.Height = finite(room.Height)
		room.Center[0] = finite(room.Center[0])
		room.Center[1] = finite(room.Center[1])
	}
	return d
}

// Counts reports entity totals for diagnostics.
func (s *Store) Counts() (players, enemies, items int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.snapshot.Players), len(s.snapshot.Enemies), len(s.snapshot.Items)
}
