// Package msgschema generates a JSON Schema document for the netplay wire
// catalog, making the per-message payload shapes auditable outside the Go
// type system.
package msgschema

import (
	"github.com/invopop/jsonschema"

	"flyknight/netplay/internal/protocol"
)

// CatalogDocument enumerates every payload shape in the wire catalog, one
// field per message type tag.
type CatalogDocument struct {
	Welcome      protocol.WelcomePayload      `json:"welcome"`
	PlayerJoined protocol.PlayerJoinedPayload `json:"player_joined"`
	PlayerLeft   protocol.PlayerLeftPayload   `json:"player_left"`
	PlayerUpdate protocol.PlayerView          `json:"player_update"`
	Attack       protocol.AttackPayload       `json:"attack"`
	PlayerAttack protocol.PlayerAttackPayload `json:"player_attack"`
	EnemyDamage  protocol.EnemyDamagePayload  `json:"enemy_damage"`
	EnemyDamaged protocol.EnemyDamagedPayload `json:"enemy_damaged"`
	EnemyDied    protocol.EnemyDiedPayload    `json:"enemy_died"`
	PickupItem   protocol.PickupItemPayload   `json:"pickup_item"`
	ItemPickedUp protocol.ItemPickedUpPayload `json:"item_picked_up"`
	GameState    protocol.GameStateSnapshot   `json:"game_state"`
}

// BuildSchema reflects the full catalog into a single schema document.
func BuildSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true,
	}
	schema := reflector.Reflect(new(CatalogDocument))
	schema.Title = "FlyKnight netplay wire catalog"
	schema.Description = "Payload shapes for every message type of schema revision " + protocol.SchemaVersion
	return schema
}
