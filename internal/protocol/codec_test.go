package protocol

import (
	"errors"
	"reflect"
	"testing"
)

func sampleSnapshot() GameStateSnapshot {
	target := 2
	return GameStateSnapshot{
		Players: map[int]PlayerView{
			0: {
				PlayerID: 0, Name: "FlyKnight", X: 120, Y: 80,
				HP: 100, MaxHP: 100, Stamina: 75, MaxStamina: 100,
				FacingAngle: 1.5, IsSprinting: true,
				Equipped: map[string]*EquippedItem{
					"weapon": {ItemType: "sword", ItemClass: "weapon", Name: "Sword"},
					"shield": nil,
				},
			},
		},
		Enemies: map[int]EnemyView{
			7: {ID: 7, Type: "ant", X: 300, Y: 200, HP: 60, MaxHP: 60, State: "chasing", Target: &target,
				SpawnPos: [2]float64{280, 190}, Velocity: [2]float64{-3, 1}},
		},
		Items: map[int]ItemView{
			4: {ItemType: "hammer", ItemClass: "weapon", Name: "Hammer", X: 40, Y: 60},
		},
		Dungeon: DungeonDescriptor{
			Level:     2,
			RoomCount: 1,
			Rooms: []RoomView{
				{RoomID: 0, X: 0, Y: 0, Width: 500, Height: 400, Cleared: true, ConnectedRooms: []int{1}, Center: [2]float64{250, 200}},
			},
			SpawnPos: [2]float64{50, 50},
		},
		Level: 2,
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		message Message
	}{
		{
			name: "welcome",
			message: Message{Type: TypeWelcome, Timestamp: 12.5, Payload: &WelcomePayload{
				PlayerID:  3,
				GameState: sampleSnapshot(),
			}},
		},
		{
			name:    "player joined",
			message: Message{Type: TypePlayerJoined, Timestamp: 1, Payload: &PlayerJoinedPayload{PlayerID: 1}},
		},
		{
			name: "enemy damage with drops",
			message: Message{Type: TypeEnemyDamage, Timestamp: 99.25, Payload: &EnemyDamagePayload{
				EnemyID: 7, Damage: 60, Drops: []string{"sword"},
			}},
		},
		{
			name: "player attack",
			message: Message{Type: TypePlayerAttack, Timestamp: 5, Payload: &PlayerAttackPayload{
				PlayerID:   2,
				AttackData: AttackPayload{Damage: 30, Range: 50, Angle: 0.5, X: 10, Y: 20},
			}},
		},
		{
			name:    "game state",
			message: func() Message { s := sampleSnapshot(); return Message{Type: TypeGameState, Timestamp: 7, Payload: &s} }(),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			encoded, err := Encode(tc.message)
			if err != nil {
				t.Fatalf("encode failed: %v", err)
			}
			decoded, err := Decode(encoded)
			if err != nil {
				t.Fatalf("decode failed: %v", err)
			}
			if decoded.Type != tc.message.Type {
				t.Fatalf("type mismatch: got %q want %q", decoded.Type, tc.message.Type)
			}
			if decoded.Timestamp != tc.message.Timestamp {
				t.Fatalf("timestamp mismatch: got %v want %v", decoded.Timestamp, tc.message.Timestamp)
			}
			if !reflect.DeepEqual(decoded.Payload, tc.message.Payload) {
				t.Fatalf("payload mismatch:\n got %+v\nwant %+v", decoded.Payload, tc.message.Payload)
			}
		})
	}
}

func TestEncodeRejectsUnknownType(t *testing.T) {
	_, err := Encode(Message{Type: "teleport", Payload: map[string]int{"x": 1}})
	var codecErr *CodecError
	if !errors.As(err, &codecErr) {
		t.Fatalf("expected CodecError, got %v", err)
	}
	if codecErr.Type != "teleport" {
		t.Fatalf("unexpected error type tag: %q", codecErr.Type)
	}
}

func TestDecodeRejectsUnknownType(t *testing.T) {
	_, err := Decode([]byte(`{"type":"teleport","payload":{},"timestamp":1}`))
	var codecErr *CodecError
	if !errors.As(err, &codecErr) {
		t.Fatalf("expected CodecError, got %v", err)
	}
}

func TestDecodeRejectsMalformedInput(t *testing.T) {
	cases := [][]byte{
		nil,
		[]byte(""),
		[]byte("{"),
		[]byte(`{"type":"welcome","payload":"not-an-object","timestamp":1}`),
		[]byte(`{"type":123}`),
	}
	for _, raw := range cases {
		if _, err := Decode(raw); err == nil {
			t.Fatalf("expected error decoding %q", raw)
		}
	}
}

func TestDecodeNeverReturnsPartialMessage(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"enemy_damage","payload":{"enemy_id":"oops"},"timestamp":1}`))
	if err == nil {
		t.Fatal("expected decode error")
	}
	if msg.Type != "" || msg.Payload != nil {
		t.Fatalf("expected zero message on failure, got %+v", msg)
	}
}

func TestCatalogIsExhaustive(t *testing.T) {
	for _, msgType := range MessageTypes() {
		if !KnownType(msgType) {
			t.Fatalf("catalog tag %q missing from schema table", msgType)
		}
		if PayloadShape(msgType) == nil {
			t.Fatalf("catalog tag %q has no payload shape", msgType)
		}
	}
	if KnownType("not-a-message") {
		t.Fatal("unexpected catalog membership")
	}
	if len(MessageTypes()) != 12 {
		t.Fatalf("catalog has %d tags, want 12", len(MessageTypes()))
	}
}

func TestSnapshotCloneIsDeep(t *testing.T) {
	original := sampleSnapshot()
	clone := original.Clone()

	clone.Players[0].Equipped["weapon"].Name = "Cursed Sword"
	clone.Enemies[7] = EnemyView{ID: 7, HP: 1}
	clone.Dungeon.Rooms[0].ConnectedRooms[0] = 99
	delete(clone.Items, 4)

	if original.Players[0].Equipped["weapon"].Name != "Sword" {
		t.Fatal("player equipment shared between clone and original")
	}
	if original.Enemies[7].HP != 60 {
		t.Fatal("enemy map shared between clone and original")
	}
	if original.Dungeon.Rooms[0].ConnectedRooms[0] != 1 {
		t.Fatal("room connections shared between clone and original")
	}
	if _, ok := original.Items[4]; !ok {
		t.Fatal("item map shared between clone and original")
	}
}
