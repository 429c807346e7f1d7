package server

import (
	"flyknight/netplay/internal/logging"
	"flyknight/netplay/internal/protocol"
)

// route applies one inbound message against the store. Critical sections are
// short and never span network I/O; reactive broadcasts go out after the
// effect has been committed. Clients only ever submit intents here — the
// router validates them against current snapshot membership, which is what
// makes every death and pickup resolve at most once.
func (s *Server) route(sess *session, msg protocol.Message) {
	switch msg.Type {
	case protocol.TypePlayerUpdate:
		view, ok := msg.Payload.(*protocol.PlayerView)
		if !ok {
			return
		}
		// A session racing its own removal no longer owns a player entry;
		// resurrecting one here would leak a ghost into every broadcast.
		if !s.hasSession(sess.id) {
			sess.log.Debug("dropping player_update from departed session")
			return
		}
		s.store.SetPlayer(sess.id, *view)

	case protocol.TypeAttack:
		attack, ok := msg.Payload.(*protocol.AttackPayload)
		if !ok {
			return
		}
		// Cosmetic relay only. The authoritative outcome, if any, arrives
		// separately as enemy_damage from the resolving peer's combat logic.
		s.broadcast(protocol.NewMessage(protocol.TypePlayerAttack, protocol.PlayerAttackPayload{
			PlayerID:   sess.id,
			AttackData: *attack,
		}))

	case protocol.TypeEnemyDamage:
		damage, ok := msg.Payload.(*protocol.EnemyDamagePayload)
		if !ok {
			return
		}
		result := s.store.DamageEnemy(damage.EnemyID, damage.Damage)
		switch {
		case !result.Applied:
			sess.log.Debug("enemy_damage for absent enemy",
				logging.Int("enemy_id", damage.EnemyID),
				logging.Float64("damage", damage.Damage))
		case result.Died:
			drops := damage.Drops
			if drops == nil {
				drops = []string{}
			}
			s.broadcast(protocol.NewMessage(protocol.TypeEnemyDied, protocol.EnemyDiedPayload{
				EnemyID: damage.EnemyID,
				Drops:   drops,
			}))
		default:
			s.broadcast(protocol.NewMessage(protocol.TypeEnemyDamaged, protocol.EnemyDamagedPayload{
				EnemyID: damage.EnemyID,
				HP:      result.RemainingHP,
			}))
		}

	case protocol.TypePickupItem:
		pickup, ok := msg.Payload.(*protocol.PickupItemPayload)
		if !ok {
			return
		}
		if !s.store.RemoveItem(pickup.ItemID) {
			sess.log.Debug("pickup_item for absent item", logging.Int("item_id", pickup.ItemID))
			return
		}
		s.broadcast(protocol.NewMessage(protocol.TypeItemPickedUp, protocol.ItemPickedUpPayload{
			ItemID:   pickup.ItemID,
			PlayerID: sess.id,
		}))

	default:
		sess.log.Debug("ignoring message type from client", logging.String("type", msg.Type))
	}
}
