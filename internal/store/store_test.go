package store

import (
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"razerkbd/internal/binding"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "bindings.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenAppliesMigrations(t *testing.T) {
	s := openTestStore(t)

	v, err := s.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion failed: %v", err)
	}
	if v != len(migrations) {
		t.Errorf("expected version %d, got %d", len(migrations), v)
	}
}

func TestCloseNilDB(t *testing.T) {
	s := &Store{db: nil}
	if err := s.Close(); err != nil {
		t.Errorf("Close on nil db should not error: %v", err)
	}
}

func TestSaveAndLoadProfiles(t *testing.T) {
	s := openTestStore(t)

	work := binding.NewProfile("Work")
	work.Maps = append(work.Maps, binding.Map{
		Name: "Alt",
		Bindings: map[uint16][]binding.Action{
			2:   {{Type: binding.KindKey, Value: "3"}, {Type: binding.KindMap, Value: "Default"}},
			183: {{Type: binding.KindKey, Value: "30"}, {Type: binding.KindRelease, Value: "30"}},
		},
	})
	work.DefaultMap = "Alt"
	profiles := []binding.Profile{binding.NewProfile("Default"), work}

	if err := s.SaveProfiles(profiles); err != nil {
		t.Fatalf("SaveProfiles failed: %v", err)
	}

	loaded, err := s.LoadProfiles()
	if err != nil {
		t.Fatalf("LoadProfiles failed: %v", err)
	}
	if !reflect.DeepEqual(profiles, loaded) {
		t.Errorf("profiles differ after reload:\nsaved  %+v\nloaded %+v", profiles, loaded)
	}
}

func TestSaveProfilesReplaces(t *testing.T) {
	s := openTestStore(t)

	if err := s.SaveProfiles([]binding.Profile{binding.NewProfile("A"), binding.NewProfile("B")}); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if err := s.SaveProfiles([]binding.Profile{binding.NewProfile("B")}); err != nil {
		t.Fatalf("second save: %v", err)
	}

	loaded, err := s.LoadProfiles()
	if err != nil {
		t.Fatalf("LoadProfiles failed: %v", err)
	}
	if len(loaded) != 1 || loaded[0].Name != "B" {
		t.Errorf("expected only profile B, got %+v", loaded)
	}
}

func TestStoreBacksBindingManager(t *testing.T) {
	s := openTestStore(t)

	m, err := binding.NewManager(binding.Config{Emitter: nopEmitter{}, Store: s})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	if err := m.AddAction(binding.DefaultProfileName, binding.DefaultMapName, 30, binding.KindKey, "31"); err != nil {
		t.Fatalf("AddAction failed: %v", err)
	}

	reopened, err := binding.NewManager(binding.Config{Emitter: nopEmitter{}, Store: s})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	actions, err := reopened.Actions(binding.DefaultProfileName, binding.DefaultMapName, 30)
	if err != nil {
		t.Fatalf("Actions failed: %v", err)
	}
	if len(actions) != 1 || actions[0].Value != "31" {
		t.Errorf("unexpected actions: %+v", actions)
	}
}

func TestSelection(t *testing.T) {
	s := openTestStore(t)

	if _, _, err := s.LoadSelection("XX0000"); !errors.Is(err, ErrNoSelection) {
		t.Fatalf("expected ErrNoSelection, got %v", err)
	}

	if err := s.SaveSelection("XX0000", "Work", "Alt"); err != nil {
		t.Fatalf("SaveSelection failed: %v", err)
	}
	if err := s.SaveSelection("XX0000", "Work", "Default"); err != nil {
		t.Fatalf("SaveSelection failed: %v", err)
	}

	profile, mapName, err := s.LoadSelection("XX0000")
	if err != nil {
		t.Fatalf("LoadSelection failed: %v", err)
	}
	if profile != "Work" || mapName != "Default" {
		t.Errorf("got %s/%s", profile, mapName)
	}
}

func TestRollbackMigration(t *testing.T) {
	s := openTestStore(t)

	if err := RollbackMigration(s.db); err != nil {
		t.Fatalf("RollbackMigration failed: %v", err)
	}
	v, _ := s.SchemaVersion()
	if v != len(migrations)-1 {
		t.Errorf("expected version %d, got %d", len(migrations)-1, v)
	}
	if err := MigrateDB(s.db); err != nil {
		t.Fatalf("MigrateDB failed: %v", err)
	}
}

type nopEmitter struct{}

func (nopEmitter) Emit(uint16, int32) error { return nil }
