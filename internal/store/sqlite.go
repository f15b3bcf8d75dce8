// Package store persists key binding profiles in SQLite.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"razerkbd/internal/binding"
)

// Store is the SQLite profile store.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database at the given path and runs migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := MigrateDB(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveProfiles replaces every stored profile with profiles.
func (s *Store) SaveProfiles(profiles []binding.Profile) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	// actions and maps cascade
	if _, err := tx.Exec("DELETE FROM profiles"); err != nil {
		return fmt.Errorf("clear profiles: %w", err)
	}

	for pi, p := range profiles {
		res, err := tx.Exec(
			"INSERT INTO profiles (name, default_map, position) VALUES (?, ?, ?)",
			p.Name, p.DefaultMap, pi,
		)
		if err != nil {
			return fmt.Errorf("insert profile %q: %w", p.Name, err)
		}
		profileID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("profile id: %w", err)
		}

		for mi, m := range p.Maps {
			res, err := tx.Exec(
				"INSERT INTO maps (profile_id, name, position) VALUES (?, ?, ?)",
				profileID, m.Name, mi,
			)
			if err != nil {
				return fmt.Errorf("insert map %q: %w", m.Name, err)
			}
			mapID, err := res.LastInsertId()
			if err != nil {
				return fmt.Errorf("map id: %w", err)
			}

			for code, actions := range m.Bindings {
				for ai, a := range actions {
					if _, err := tx.Exec(
						"INSERT INTO actions (map_id, key_code, ordinal, type, value) VALUES (?, ?, ?, ?, ?)",
						mapID, code, ai, a.Type, a.Value,
					); err != nil {
						return fmt.Errorf("insert action: %w", err)
					}
				}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit profiles: %w", err)
	}
	return nil
}

// LoadProfiles returns every stored profile in saved order.
func (s *Store) LoadProfiles() ([]binding.Profile, error) {
	rows, err := s.db.Query(`
		SELECT p.id, p.name, p.default_map, m.id, m.name
		FROM profiles p
		LEFT JOIN maps m ON m.profile_id = p.id
		ORDER BY p.position, m.position`)
	if err != nil {
		return nil, fmt.Errorf("query profiles: %w", err)
	}
	defer rows.Close()

	var profiles []binding.Profile
	index := make(map[int64]int)
	mapsByID := make(map[int64][2]int)

	for rows.Next() {
		var (
			profileID int64
			name      string
			defMap    string
			mapID     sql.NullInt64
			mapName   sql.NullString
		)
		if err := rows.Scan(&profileID, &name, &defMap, &mapID, &mapName); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}

		pi, ok := index[profileID]
		if !ok {
			profiles = append(profiles, binding.Profile{Name: name, DefaultMap: defMap})
			pi = len(profiles) - 1
			index[profileID] = pi
		}
		if mapID.Valid {
			profiles[pi].Maps = append(profiles[pi].Maps, binding.Map{
				Name:     mapName.String,
				Bindings: map[uint16][]binding.Action{},
			})
			mapsByID[mapID.Int64] = [2]int{pi, len(profiles[pi].Maps) - 1}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profiles: %w", err)
	}

	actions, err := s.db.Query("SELECT map_id, key_code, type, value FROM actions ORDER BY map_id, key_code, ordinal")
	if err != nil {
		return nil, fmt.Errorf("query actions: %w", err)
	}
	defer actions.Close()

	for actions.Next() {
		var (
			mapID int64
			code  int
			a     binding.Action
		)
		if err := actions.Scan(&mapID, &code, &a.Type, &a.Value); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		loc, ok := mapsByID[mapID]
		if !ok {
			continue
		}
		m := &profiles[loc[0]].Maps[loc[1]]
		m.Bindings[uint16(code)] = append(m.Bindings[uint16(code)], a)
	}
	if err := actions.Err(); err != nil {
		return nil, fmt.Errorf("iterate actions: %w", err)
	}

	return profiles, nil
}

// ErrNoSelection is returned by LoadSelection when a device has no saved
// selection.
var ErrNoSelection = errors.New("no saved selection")

// SaveSelection remembers the active profile and map of a device.
func (s *Store) SaveSelection(serial, profile, mapName string) error {
	_, err := s.db.Exec(`
		INSERT INTO selections (serial, profile, map) VALUES (?, ?, ?)
		ON CONFLICT(serial) DO UPDATE SET profile = excluded.profile, map = excluded.map`,
		serial, profile, mapName,
	)
	if err != nil {
		return fmt.Errorf("save selection: %w", err)
	}
	return nil
}

// LoadSelection returns the saved active profile and map of a device.
func (s *Store) LoadSelection(serial string) (profile, mapName string, err error) {
	err = s.db.QueryRow("SELECT profile, map FROM selections WHERE serial = ?", serial).Scan(&profile, &mapName)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", ErrNoSelection
	}
	if err != nil {
		return "", "", fmt.Errorf("load selection: %w", err)
	}
	return profile, mapName, nil
}
