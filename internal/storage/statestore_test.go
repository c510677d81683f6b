package storage

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"caucion-alerts/internal/alerting"
)

func tempStore(t *testing.T) (*FileStateStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "alert_state.json")
	return NewFileStateStore(path, time.Second), path
}

func TestLoadFirstRun(t *testing.T) {
	store, _ := tempStore(t)
	state, err := store.Load()
	if err != nil {
		t.Fatalf("missing file should not be an error: %v", err)
	}
	if len(state) != 0 {
		t.Fatalf("first run should yield an empty map, got %d entries", len(state))
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store, path := tempStore(t)

	notified := time.Date(2024, 5, 3, 12, 0, 0, 0, time.UTC)
	rate := decimal.RequireFromString("36.5")
	state := map[string]alerting.RuleState{
		"7d-colocador>=35": {LastTriggered: true, LastNotifiedAt: &notified, LastRate: &rate},
		"1d-tomador<20":    {LastTriggered: false},
	}

	if err := store.Save(state); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	first, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back failed: %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if err := store.Save(loaded); err != nil {
		t.Fatalf("re-save failed: %v", err)
	}
	second, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back failed: %v", err)
	}

	if !bytes.Equal(first, second) {
		t.Fatalf("save(load()) must be byte-identical:\n%s\n---\n%s", first, second)
	}

	st := loaded["7d-colocador>=35"]
	if !st.LastTriggered || st.LastNotifiedAt == nil || !st.LastNotifiedAt.Equal(notified) {
		t.Fatalf("loaded state differs: %+v", st)
	}
	if st.LastRate == nil || !st.LastRate.Equal(rate) {
		t.Fatalf("loaded rate differs: %v", st.LastRate)
	}
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	store, path := tempStore(t)
	if err := store.Save(map[string]alerting.RuleState{"r": {}}); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != filepath.Base(path) {
		t.Fatalf("expected only the state file, got %v", entries)
	}
}

func TestAcquireBlocksSecondRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alert_state.json")
	store := NewFileStateStore(path, 200*time.Millisecond)

	release, err := store.Acquire()
	if err != nil {
		t.Fatalf("first acquire should succeed: %v", err)
	}

	if _, err := store.Acquire(); !errors.Is(err, ErrLockHeld) {
		t.Fatalf("second acquire should fail with ErrLockHeld, got %v", err)
	}

	release()
	release2, err := store.Acquire()
	if err != nil {
		t.Fatalf("acquire after release should succeed: %v", err)
	}
	release2()
}

func TestLoadCorruptFile(t *testing.T) {
	store, path := tempStore(t)
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Load(); err == nil {
		t.Fatal("corrupt state file should surface an error, not an empty map")
	}
}
