package statestore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestSaveWritesLiteralJSONShape(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(context.Background(), "playoutd_test", dir, nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	st := &State{Date: "2023-02-08", TimeShift: 1.25}
	if err := store.Save(context.Background(), "chan1", st); err != nil {
		t.Fatalf("Save: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "chan1.json"))
	if err != nil {
		t.Fatalf("read channel state file: %v", err)
	}
	var got map[string]interface{}
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["date"] != "2023-02-08" {
		t.Errorf("expected date 2023-02-08, got %v", got["date"])
	}
	if got["time_shift"] != 1.25 {
		t.Errorf("expected time_shift 1.25, got %v", got["time_shift"])
	}
}

func TestLoadReturnsZeroValueWhenAbsent(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(context.Background(), "playoutd_test", dir, nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	st, err := store.Load(context.Background(), "never-saved")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if st.Date != "" || st.TimeShift != 0 {
		t.Errorf("expected zero-value state, got %+v", st)
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(context.Background(), "playoutd_test", dir, nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	want := &State{Date: "2023-02-09", TimeShift: -3.5}
	if err := store.Save(context.Background(), "chan2", want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := store.Load(context.Background(), "chan2")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Date != want.Date || got.TimeShift != want.TimeShift {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, want)
	}
}
