package protocol

import "time"

// Message type tags. The catalog is exhaustive: the codec rejects anything
// outside this set.
const (
	TypeWelcome      = "welcome"
	TypePlayerJoined = "player_joined"
	TypePlayerLeft   = "player_left"
	TypePlayerUpdate = "player_update"
	TypeAttack       = "attack"
	TypePlayerAttack = "player_attack"
	TypeEnemyDamage  = "enemy_damage"
	TypeEnemyDamaged = "enemy_damaged"
	TypeEnemyDied    = "enemy_died"
	TypePickupItem   = "pickup_item"
	TypeItemPickedUp = "item_picked_up"
	TypeGameState    = "game_state"
)

// Message is the tagged envelope every frame carries. Immutable once built.
type Message struct {
	Type      string  `json:"type"`
	Payload   any     `json:"payload"`
	Timestamp float64 `json:"timestamp"`
}

// NewMessage builds an envelope stamped with the current wall clock in
// fractional seconds.
func NewMessage(msgType string, payload any) Message {
	return Message{
		Type:      msgType,
		Payload:   payload,
		Timestamp: float64(time.Now().UnixNano()) / float64(time.Second),
	}
}

// WelcomePayload is sent once to a freshly accepted session, before any
// periodic broadcast reaches it.
type WelcomePayload struct {
	PlayerID  int               `json:"player_id"`
	GameState GameStateSnapshot `json:"game_state"`
}

// PlayerJoinedPayload announces a new session to the other peers.
type PlayerJoinedPayload struct {
	PlayerID int `json:"player_id"`
}

// PlayerLeftPayload announces a departed session to the remaining peers.
type PlayerLeftPayload struct {
	PlayerID int `json:"player_id"`
}

// AttackPayload is the cosmetic attack intent submitted by a client. The host
// relays it verbatim; damage resolution arrives separately as enemy_damage.
type AttackPayload struct {
	Damage float64 `json:"damage"`
	Range  float64 `json:"range"`
	Angle  float64 `json:"angle"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

// PlayerAttackPayload is the host's rebroadcast of an attack intent.
type PlayerAttackPayload struct {
	PlayerID   int           `json:"player_id"`
	AttackData AttackPayload `json:"attack_data"`
}

// EnemyDamagePayload carries an already-resolved damage outcome from the
// combat logic of one peer to the authoritative store.
type EnemyDamagePayload struct {
	EnemyID int      `json:"enemy_id"`
	Damage  float64  `json:"damage"`
	Drops   []string `json:"drops,omitempty"`
}

// EnemyDamagedPayload reports the surviving enemy's remaining hp.
type EnemyDamagedPayload struct {
	EnemyID int     `json:"enemy_id"`
	HP      float64 `json:"hp"`
}

// EnemyDiedPayload reports a removal from the enemy map together with drops.
type EnemyDiedPayload struct {
	EnemyID int      `json:"enemy_id"`
	Drops   []string `json:"drops"`
}

// PickupItemPayload is a client's claim on a world item.
type PickupItemPayload struct {
	ItemID int `json:"item_id"`
}

// ItemPickedUpPayload confirms which player won an item claim.
type ItemPickedUpPayload struct {
	ItemID   int `json:"item_id"`
	PlayerID int `json:"player_id"`
}
