package protocol

import (
	"encoding/json"
	"fmt"
)

// SchemaVersion identifies the wire catalog revision. Bump on any payload
// shape change.
const SchemaVersion = "netplay.v1"

// CodecError reports a message that could not be encoded or decoded. The
// session is not torn down for it; the frame is dropped and logged.
type CodecError struct {
	Type string
	Err  error
}

func (e *CodecError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("codec: %v", e.Err)
	}
	return fmt.Sprintf("codec: message type %q: %v", e.Type, e.Err)
}

func (e *CodecError) Unwrap() error { return e.Err }

// payloadSchemas maps each message type to a factory for its payload shape.
// Decoding resolves payloads through this table only; there is no free-form
// reflection of unknown types on the wire.
var payloadSchemas = map[string]func() any{
	TypeWelcome:      func() any { return new(WelcomePayload) },
	TypePlayerJoined: func() any { return new(PlayerJoinedPayload) },
	TypePlayerLeft:   func() any { return new(PlayerLeftPayload) },
	TypePlayerUpdate: func() any { return new(PlayerView) },
	TypeAttack:       func() any { return new(AttackPayload) },
	TypePlayerAttack: func() any { return new(PlayerAttackPayload) },
	TypeEnemyDamage:  func() any { return new(EnemyDamagePayload) },
	TypeEnemyDamaged: func() any { return new(EnemyDamagedPayload) },
	TypeEnemyDied:    func() any { return new(EnemyDiedPayload) },
	TypePickupItem:   func() any { return new(PickupItemPayload) },
	TypeItemPickedUp: func() any { return new(ItemPickedUpPayload) },
	TypeGameState:    func() any { return new(GameStateSnapshot) },
}

// KnownType reports whether the tag belongs to the wire catalog.
func KnownType(msgType string) bool {
	_, ok := payloadSchemas[msgType]
	return ok
}

// MessageTypes returns the catalog tags in stable declaration order.
func MessageTypes() []string {
	return []string{
		TypeWelcome,
		TypePlayerJoined,
		TypePlayerLeft,
		TypePlayerUpdate,
		TypeAttack,
		TypePlayerAttack,
		TypeEnemyDamage,
		TypeEnemyDamaged,
		TypeEnemyDied,
		TypePickupItem,
		TypeItemPickedUp,
		TypeGameState,
	}
}

// PayloadShape returns a zero value of the payload type registered for the
// tag, or nil when the tag is unknown. Used by the schema tooling.
func PayloadShape(msgType string) any {
	factory, ok := payloadSchemas[msgType]
	if !ok {
		return nil
	}
	return factory()
}

type wireEnvelope struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp float64         `json:"timestamp"`
}

// Encode serializes the envelope to bytes. The message type must be in the
// catalog and the payload must be representable in its registered shape.
func Encode(msg Message) ([]byte, error) {
	if !KnownType(msg.Type) {
		return nil, &CodecError{Type: msg.Type, Err: fmt.Errorf("unknown message type")}
	}
	payload, err := json.Marshal(msg.Payload)
	if err != nil {
		return nil, &CodecError{Type: msg.Type, Err: err}
	}
	data, err := json.Marshal(wireEnvelope{Type: msg.Type, Payload: payload, Timestamp: msg.Timestamp})
	if err != nil {
		return nil, &CodecError{Type: msg.Type, Err: err}
	}
	return data, nil
}

// Decode parses bytes back into a typed envelope. Malformed input, unknown
// tags, and payloads that do not fit the registered shape all fail with a
// CodecError; a partially initialized message is never returned.
func Decode(data []byte) (Message, error) {
	var envelope wireEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return Message{}, &CodecError{Err: err}
	}
	factory, ok := payloadSchemas[envelope.Type]
	if !ok {
		return Message{}, &CodecError{Type: envelope.Type, Err: fmt.Errorf("unknown message type")}
	}
	payload := factory()
	if len(envelope.Payload) > 0 {
		if err := json.Unmarshal(envelope.Payload, payload); err != nil {
			return Message{}, &CodecError{Type: envelope.Type, Err: err}
		}
	}
	return Message{Type: envelope.Type, Payload: payload, Timestamp: envelope.Timestamp}, nil
}
