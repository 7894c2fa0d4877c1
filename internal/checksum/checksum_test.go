package checksum

import (
	"encoding/json"
	"testing"
)

func TestSumJSONIgnoresWhitespace(t *testing.T) {
	a, err := SumJSON(json.RawMessage(`{"key": "A",  "notes": []}`))
	if err != nil {
		t.Fatalf("SumJSON: %v", err)
	}
	b, err := SumJSON(map[string]any{"key": "A", "notes": []string{}})
	if err != nil {
		t.Fatalf("SumJSON: %v", err)
	}
	if a != b {
		t.Errorf("digests differ: %s vs %s", a, b)
	}
	c, _ := SumJSON(map[string]any{"key": "B", "notes": []string{}})
	if a == c {
		t.Error("different values share a digest")
	}
}

func TestSumJSONInvalidRaw(t *testing.T) {
	if _, err := SumJSON(json.RawMessage(`{broken`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
}
