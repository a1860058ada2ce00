package scenario

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"go.etcd.io/bbolt"
)

var bucketScenarios = []byte("scenarios")

// nameRe validates preset names: 1–64 chars, lowercase letters/digits/hyphens,
// must start with a letter or digit.
var nameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9\-]{0,63}$`)

// ErrNotFound is returned when a preset that doesn't exist is requested.
var ErrNotFound = errors.New("scenario: not found")

// ErrInvalidName is returned when a preset name fails validation.
var ErrInvalidName = errors.New("scenario: invalid name")

// Store is a bbolt-backed library of named scenario presets. It keeps the
// scenario inputs only; simulation state is never persisted.
//
// All methods are safe for concurrent use (bbolt serializes writers).
type Store struct {
	db *bbolt.DB
}

// OpenStore opens (or creates) the preset database at dataDir/scenarios.db.
func OpenStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("scenario: create data dir: %w", err)
	}
	path := filepath.Join(dataDir, "scenarios.db")
	db, err := bbolt.Open(path, 0o640, &bbolt.Options{Timeout: 0})
	if err != nil {
		return nil, fmt.Errorf("scenario: open %s: %w", path, err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketScenarios)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("scenario: init bucket: %w", err)
	}
	return &Store{db: db}, nil
}

// ValidName reports whether name is acceptable as a preset name.
func ValidName(name string) bool { return nameRe.MatchString(name) }

// Put upserts sc under sc.Name.
func (s *Store) Put(sc *Scenario) error {
	if !ValidName(sc.Name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, sc.Name)
	}
	val, err := json.Marshal(sc)
	if err != nil {
		return fmt.Errorf("scenario: marshal %s: %w", sc.Name, err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketScenarios).Put([]byte(sc.Name), val)
	})
}

// Get returns the preset stored under name.
func (s *Store) Get(name string) (*Scenario, error) {
	var sc Scenario
	err := s.db.View(func(tx *bbolt.Tx) error {
		val := tx.Bucket(bucketScenarios).Get([]byte(name))
		if val == nil {
			return fmt.Errorf("%w: %q", ErrNotFound, name)
		}
		return json.Unmarshal(val, &sc)
	})
	if err != nil {
		return nil, err
	}
	return &sc, nil
}

// List returns every preset in name order.
func (s *Store) List() ([]*Scenario, error) {
	var out []*Scenario
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketScenarios).ForEach(func(k, v []byte) error {
			var sc Scenario
			if err := json.Unmarshal(v, &sc); err != nil {
				return fmt.Errorf("scenario: decode %s: %w", k, err)
			}
			out = append(out, &sc)
			return nil
		})
	})
	return out, err
}

// Delete removes the preset stored under name.
func (s *Store) Delete(name string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketScenarios)
		if b.Get([]byte(name)) == nil {
			return fmt.Errorf("%w: %q", ErrNotFound, name)
		}
		return b.Delete([]byte(name))
	})
}

// Close closes the underlying bbolt database.
func (s *Store) Close() error {
	return s.db.Close()
}
