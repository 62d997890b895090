package appstate

import (
	"encoding/json"
	"os"
	"testing"
)

func TestStore_SetPersistsBeforeVisibility(t *testing.T) {
	s := NewStore(t.TempDir())

	if err := s.Set("survey_result", map[string]any{"mean": 4.2}); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	data, err := os.ReadFile(s.FieldPath("survey_result"))
	if err != nil {
		t.Fatalf("field file missing: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("field file not valid JSON: %v", err)
	}
	if got["mean"] != 4.2 {
		t.Fatalf("persisted value wrong: %v", got)
	}

	val, ok := s.Get("survey_result")
	if !ok {
		t.Fatalf("Get() missed the field")
	}
	if m, _ := val.(map[string]any); m["mean"] != 4.2 {
		t.Fatalf("in-memory value wrong: %v", val)
	}
}

func TestStore_SetRejectsBadFieldNames(t *testing.T) {
	s := NewStore(t.TempDir())

	for _, field := range []string{"", "a/b", "../escape", "has space"} {
		if err := s.Set(field, 1); err == nil {
			t.Fatalf("field %q should be rejected", field)
		}
	}
}

func TestStore_LoadRestoresFields(t *testing.T) {
	dir := t.TempDir()
	s1 := NewStore(dir)
	if err := s1.Set("count", float64(7)); err != nil {
		t.Fatalf("Set(): %v", err)
	}
	if err := s1.Set("label", "ready"); err != nil {
		t.Fatalf("Set(): %v", err)
	}

	s2 := NewStore(dir)
	if err := s2.Load(); err != nil {
		t.Fatalf("Load(): %v", err)
	}
	if v, ok := s2.Get("count"); !ok || v != float64(7) {
		t.Fatalf("count not restored: %v %v", v, ok)
	}
	if v, ok := s2.Get("label"); !ok || v != "ready" {
		t.Fatalf("label not restored: %v %v", v, ok)
	}
	if got := len(s2.Fields()); got != 2 {
		t.Fatalf("Fields()=%d, want 2", got)
	}
}

func TestStore_LoadOnEmptyDir(t *testing.T) {
	s := NewStore(t.TempDir() + "/absent")
	if err := s.Load(); err != nil {
		t.Fatalf("Load() on missing dir should be a no-op, got %v", err)
	}
	if len(s.Fields()) != 0 {
		t.Fatalf("expected no fields")
	}
}
