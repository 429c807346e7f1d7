// Package protocol defines the wire catalog shared by the host and clients:
// the message envelope, the per-type payload shapes, and the codec that maps
// between the two. Every view record is flat and self-describing so a snapshot
// can be serialized verbatim without chasing object graphs.
package protocol

// EquippedItem describes a single piece of equipment carried in a player view.
type EquippedItem struct {
	ItemType  string `json:"item_type"`
	ItemClass string `json:"item_class"`
	Name      string `json:"name"`
}

// PlayerView is the full serializable state of one player.
type PlayerView struct {
	PlayerID    int                      `json:"player_id"`
	Name        string                   `json:"name"`
	X           float64                  `json:"x"`
	Y           float64                  `json:"y"`
	HP          float64                  `json:"hp"`
	MaxHP       float64                  `json:"max_hp"`
	Stamina     float64                  `json:"stamina"`
	MaxStamina  float64                  `json:"max_stamina"`
	FacingAngle float64                  `json:"facing_angle"`
	IsAttacking bool                     `json:"is_attacking"`
	IsBlocking  bool                     `json:"is_blocking"`
	IsSprinting bool                     `json:"is_sprinting"`
	Equipped    map[string]*EquippedItem `json:"equipped,omitempty"`
}

// Clone returns a deep copy of the player view.
func (p PlayerView) Clone() PlayerView {
	clone := p
	if p.Equipped != nil {
		clone.Equipped = make(map[string]*EquippedItem, len(p.Equipped))
		for slot, item := range p.Equipped {
			if item == nil {
				clone.Equipped[slot] = nil
				continue
			}
			copied := *item
			clone.Equipped[slot] = &copied
		}
	}
	return clone
}

// EnemyView is the full serializable state of one enemy.
type EnemyView struct {
	ID         int        `json:"id"`
	Type       string     `json:"type"`
	X          float64    `json:"x"`
	Y          float64    `json:"y"`
	HP         float64    `json:"hp"`
	MaxHP      float64    `json:"max_hp"`
	State      string     `json:"state"`
	Target     *int       `json:"target"`
	RoomID     int        `json:"room_id"`
	SpawnPos   [2]float64 `json:"spawn_pos"`
	LastAttack float64    `json:"last_attack"`
	Velocity   [2]float64 `json:"velocity"`
}

// Clone returns a deep copy of the enemy view.
func (e EnemyView) Clone() EnemyView {
	clone := e
	if e.Target != nil {
		target := *e.Target
		clone.Target = &target
	}
	return clone
}

// ItemView is the full serializable state of one item lying in the world.
type ItemView struct {
	ItemType  string  `json:"item_type"`
	ItemClass string  `json:"item_class"`
	Name      string  `json:"name"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
}

// RoomView describes one generated room of the dungeon layout.
type RoomView struct {
	RoomID         int        `json:"room_id"`
	X              float64    `json:"x"`
	Y              float64    `json:"y"`
	Width          float64    `json:"width"`
	Height         float64    `json:"height"`
	Cleared        bool       `json:"cleared"`
	ConnectedRooms []int      `json:"connected_rooms"`
	Center         [2]float64 `json:"center"`
}

// Clone returns a deep copy of the room view.
func (r RoomView) Clone() RoomView {
	clone := r
	if r.ConnectedRooms != nil {
		clone.ConnectedRooms = append([]int(nil), r.ConnectedRooms...)
	}
	return clone
}

// DungeonDescriptor carries the generated layout so late joiners can rebuild
// the same dungeon without rerunning generation.
type DungeonDescriptor struct {
	Level     int        `json:"level"`
	RoomCount int        `json:"room_count"`
	Rooms     []RoomView `json:"rooms"`
	SpawnPos  [2]float64 `json:"spawn_pos"`
}

// Clone returns a deep copy of the dungeon descriptor.
func (d DungeonDescriptor) Clone() DungeonDescriptor {
	clone := d
	if d.Rooms != nil {
		clone.Rooms = make([]RoomView, len(d.Rooms))
		for i, room := range d.Rooms {
			clone.Rooms[i] = room.Clone()
		}
	}
	return clone
}

// GameStateSnapshot is the full world state broadcast each tick. The host owns
// the single mutable instance; clients only ever hold copies of it.
type GameStateSnapshot struct {
	Players map[int]PlayerView `json:"players"`
	Enemies map[int]EnemyView  `json:"enemies"`
	Items   map[int]ItemView   `json:"items"`
	Dungeon DungeonDescriptor  `json:"dungeon"`
	Level   int                `json:"level"`
}

// NewGameStateSnapshot returns an empty snapshot with allocated maps.
func NewGameStateSnapshot() GameStateSnapshot {
	return GameStateSnapshot{
		Players: make(map[int]PlayerView),
		Enemies: make(map[int]EnemyView),
		Items:   make(map[int]ItemView),
		Level:   1,
	}
}

// Clone returns a deep copy safe to hand to readers outside the store lock.
func (s GameStateSnapshot) Clone() GameStateSnapshot {
	clone := s
	clone.Players = make(map[int]PlayerView, len(s.Players))
	for id, player := range s.Players {
		clone.Players[id] = player.Clone()
	}
	clone.Enemies = make(map[int]EnemyView, len(s.Enemies))
	for id, enemy := range s.Enemies {
		clone.Enemies[id] = enemy.Clone()
	}
	clone.Items = make(map[int]ItemView, len(s.Items))
	for id, item := range s.Items {
		clone.Items[id] = item
	}
	clone.Dungeon = s.Dungeon.Clone()
	return clone
}
