package msgschema

import (
	"encoding/json"
	"strings"
	"testing"

	"flyknight/netplay/internal/protocol"
)

func TestBuildSchemaCoversEveryMessageType(t *testing.T) {
	schema := BuildSchema()
	if schema == nil {
		t.Fatal("BuildSchema returned nil")
	}

	data, err := json.Marshal(schema)
	if err != nil {
		t.Fatalf("schema does not marshal: %v", err)
	}
	document := string(data)

	for _, msgType := range protocol.MessageTypes() {
		if !strings.Contains(document, `"`+msgType+`"`) {
			t.Fatalf("schema missing message type %q", msgType)
		}
	}
	if !strings.Contains(document, protocol.SchemaVersion) {
		t.Fatal("schema missing schema revision marker")
	}
}
