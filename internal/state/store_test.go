package state

import (
	"encoding/json"
	"math"
	"sync"
	"testing"

	"flyknight/netplay/internal/logging"
	"flyknight/netplay/internal/protocol"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(logging.NewTestLogger())
}

func seedEnemy(s *Store, id int, hp float64) {
	s.Merge(Update{Enemies: map[int]protocol.EnemyView{
		id: {ID: id, Type: "ant", HP: hp, MaxHP: hp, State: "idle"},
	}})
}

func TestSetAndRemovePlayer(t *testing.T) {
	store := newTestStore(t)

	store.SetPlayer(2, protocol.PlayerView{Name: "FlyKnight", X: 10, Y: 20, HP: 100})
	if !store.HasPlayer(2) {
		t.Fatal("player not present after SetPlayer")
	}

	snapshot := store.Snapshot()
	view, ok := snapshot.Players[2]
	if !ok {
		t.Fatal("player missing from snapshot")
	}
	if view.PlayerID != 2 {
		t.Fatalf("player id not forced to key: got %d", view.PlayerID)
	}

	if !store.RemovePlayer(2) {
		t.Fatal("RemovePlayer reported absent for a present player")
	}
	if store.RemovePlayer(2) {
		t.Fatal("second RemovePlayer should report absent")
	}
	if store.HasPlayer(2) {
		t.Fatal("player still present after removal")
	}
}

func TestDamageEnemyNonLethal(t *testing.T) {
	store := newTestStore(t)
	seedEnemy(store, 7, 60)

	result := store.DamageEnemy(7, 20)
	if !result.Applied || result.Died {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.RemainingHP != 40 {
		t.Fatalf("remaining hp: got %v want 40", result.RemainingHP)
	}
	if got := store.Snapshot().Enemies[7].HP; got != 40 {
		t.Fatalf("snapshot hp: got %v want 40", got)
	}
}

func TestDamageEnemyLethalRetiresID(t *testing.T) {
	store := newTestStore(t)
	seedEnemy(store, 7, 60)

	result := store.DamageEnemy(7, 60)
	if !result.Applied || !result.Died {
		t.Fatalf("unexpected result %+v", result)
	}
	if _, ok := store.Snapshot().Enemies[7]; ok {
		t.Fatal("dead enemy still present in snapshot")
	}

	// A later message for the same id resolves to nothing.
	if late := store.DamageEnemy(7, 10); late.Applied {
		t.Fatal("damage applied to a dead enemy")
	}

	// A collaborator merge cannot resurrect a retired id.
	seedEnemy(store, 7, 60)
	if _, ok := store.Snapshot().Enemies[7]; ok {
		t.Fatal("retired enemy id re-entered the snapshot through a merge")
	}
}

func TestDamageEnemyAbsentID(t *testing.T) {
	store := newTestStore(t)
	if result := store.DamageEnemy(99, 10); result.Applied {
		t.Fatal("damage applied to an absent enemy")
	}
}

func TestConcurrentLethalDamageDiesOnce(t *testing.T) {
	store := newTestStore(t)
	seedEnemy(store, 7, 60)

	const attackers = 16
	var wg sync.WaitGroup
	results := make([]DamageResult, attackers)
	wg.Add(attackers)
	for i := 0; i < attackers; i++ {
		go func(i int) {
			defer wg.Done()
			results[i] = store.DamageEnemy(7, 60)
		}(i)
	}
	wg.Wait()

	deaths := 0
	for _, result := range results {
		if result.Died {
			deaths++
		}
	}
	if deaths != 1 {
		t.Fatalf("enemy died %d times, want exactly 1", deaths)
	}
}

func TestConcurrentDamageIsCumulative(t *testing.T) {
	store := newTestStore(t)
	seedEnemy(store, 7, 100)

	const attackers = 10
	var wg sync.WaitGroup
	wg.Add(attackers)
	for i := 0; i < attackers; i++ {
		go func() {
			defer wg.Done()
			store.DamageEnemy(7, 5)
		}()
	}
	wg.Wait()

	if got := store.Snapshot().Enemies[7].HP; got != 50 {
		t.Fatalf("hp after concurrent damage: got %v want 50", got)
	}
}

func TestRemoveItemClaimsOnce(t *testing.T) {
	store := newTestStore(t)
	store.Merge(Update{Items: map[int]protocol.ItemView{
		4: {ItemType: "hammer", ItemClass: "weapon", Name: "Hammer"},
	}})

	const claimers = 8
	var wg sync.WaitGroup
	wins := make([]bool, claimers)
	wg.Add(claimers)
	for i := 0; i < claimers; i++ {
		go func(i int) {
			defer wg.Done()
			wins[i] = store.RemoveItem(4)
		}(i)
	}
	wg.Wait()

	won := 0
	for _, win := range wins {
		if win {
			won++
		}
	}
	if won != 1 {
		t.Fatalf("item claimed %d times, want exactly 1", won)
	}

	// The retired id stays out even if a merge republishes it.
	store.Merge(Update{Items: map[int]protocol.ItemView{
		4: {ItemType: "hammer", Name: "Hammer"},
	}})
	if _, ok := store.Snapshot().Items[4]; ok {
		t.Fatal("retired item id re-entered the snapshot through a merge")
	}
}

func TestMergeReplacesSectionsWholesale(t *testing.T) {
	store := newTestStore(t)
	seedEnemy(store, 1, 30)
	level := 3
	store.Merge(Update{
		Enemies: map[int]protocol.EnemyView{2: {ID: 2, Type: "wasp", HP: 45, MaxHP: 45}},
		Dungeon: &protocol.DungeonDescriptor{Level: 3, RoomCount: 2},
		Level:   &level,
	})

	snapshot := store.Snapshot()
	if _, ok := snapshot.Enemies[1]; ok {
		t.Fatal("wholesale replacement kept a dropped enemy")
	}
	if _, ok := snapshot.Enemies[2]; !ok {
		t.Fatal("merged enemy missing")
	}
	if snapshot.Level != 3 || snapshot.Dungeon.RoomCount != 2 {
		t.Fatalf("dungeon metadata not merged: %+v", snapshot.Dungeon)
	}

	// An id dropped by the collaborator is retired, not merely absent.
	seedEnemy(store, 1, 30)
	if _, ok := store.Snapshot().Enemies[1]; ok {
		t.Fatal("enemy id dropped by a merge was resurrected")
	}
}

func TestMergeSanitizesNonFiniteFloats(t *testing.T) {
	store := newTestStore(t)
	store.Merge(Update{
		Players: map[int]protocol.PlayerView{
			0: {Name: "FlyKnight", X: math.NaN(), Stamina: math.Inf(-1), HP: 80},
		},
		Enemies: map[int]protocol.EnemyView{
			1: {Type: "wasp", HP: math.NaN(), MaxHP: 30, Velocity: [2]float64{math.Inf(1), 2}},
		},
		Items: map[int]protocol.ItemView{
			4: {Name: "Hammer", X: math.NaN(), Y: 60},
		},
		Dungeon: &protocol.DungeonDescriptor{
			RoomCount: 1,
			Rooms:     []protocol.RoomView{{Width: math.Inf(1), Height: 400}},
			SpawnPos:  [2]float64{math.NaN(), 5},
		},
	})

	snapshot := store.Snapshot()
	player := snapshot.Players[0]
	if player.X != 0 || player.Stamina != 0 || player.HP != 80 {
		t.Fatalf("player not sanitized: %+v", player)
	}
	enemy := snapshot.Enemies[1]
	if enemy.HP != 0 || enemy.Velocity[0] != 0 || enemy.Velocity[1] != 2 || enemy.MaxHP != 30 {
		t.Fatalf("enemy not sanitized: %+v", enemy)
	}
	item := snapshot.Items[4]
	if item.X != 0 || item.Y != 60 {
		t.Fatalf("item not sanitized: %+v", item)
	}
	room := snapshot.Dungeon.Rooms[0]
	if room.Width != 0 || room.Height != 400 || snapshot.Dungeon.SpawnPos[0] != 0 {
		t.Fatalf("dungeon not sanitized: %+v", snapshot.Dungeon)
	}

	// The snapshot must stay serializable for the broadcast loop.
	if _, err := json.Marshal(snapshot); err != nil {
		t.Fatalf("sanitized snapshot does not marshal: %v", err)
	}
}

func TestMergeNilSectionsLeaveStateUntouched(t *testing.T) {
	store := newTestStore(t)
	store.SetPlayer(0, protocol.PlayerView{Name: "FlyKnight"})
	seedEnemy(store, 1, 30)

	store.Merge(Update{})

	players, enemies, _ := store.Counts()
	if players != 1 || enemies != 1 {
		t.Fatalf("empty merge changed counts: players=%d enemies=%d", players, enemies)
	}
}

func TestSnapshotIsIsolatedFromStore(t *testing.T) {
	store := newTestStore(t)
	seedEnemy(store, 1, 30)

	snapshot := store.Snapshot()
	snapshot.Enemies[1] = protocol.EnemyView{ID: 1, HP: 1}
	delete(snapshot.Players, 0)

	if got := store.Snapshot().Enemies[1].HP; got != 30 {
		t.Fatalf("mutating a snapshot leaked into the store: hp=%v", got)
	}
}
