// Package cache is the persistent cross-run store for authentication state:
// the serialized session snapshot, the verification token, and the room
// name-to-id mapping. A missing or unreadable entry is a cache miss, never a
// fatal error; callers regenerate the artifact and write it back.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrCacheMiss is returned when a key is absent or its stored value cannot
// be decoded. Callers treat it as "regenerate and save", not as a failure.
var ErrCacheMiss = errors.New("cache miss")

// Well-known keys for the persisted artifacts.
const (
	KeySession = "session"
	KeyToken   = "verification_token"
	KeyRooms   = "room_mapping"
)

// Entry is one persisted key/value pair.
type Entry struct {
	Key       string `gorm:"primaryKey"`
	Value     []byte
	UpdatedAt time.Time
}

// Store is a small key-value cache backed by a SQLite file.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if needed) the cache database at path. Use ":memory:"
// for an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("failed to migrate cache schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Get returns the raw value for key, or ErrCacheMiss if absent.
func (s *Store) Get(key string) ([]byte, error) {
	var entry Entry
	err := s.db.Where("key = ?", key).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	return entry.Value, nil
}

// Put stores value under key, replacing any previous value.
func (s *Store) Put(key string, value []byte) error {
	entry := Entry{Key: key, Value: value, UpdatedAt: time.Now()}
	return s.db.Save(&entry).Error
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(key string) error {
	return s.db.Delete(&Entry{}, "key = ?", key).Error
}

// GetJSON decodes the value for key into out. A decode failure is reported
// as ErrCacheMiss so that a corrupt entry triggers regeneration.
func (s *Store) GetJSON(key string, out any) error {
	raw, err := s.Get(key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: corrupt entry for %q: %v", ErrCacheMiss, key, err)
	}
	return nil
}

// PutJSON encodes v and stores it under key.
func (s *Store) PutJSON(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Put(key, raw)
}

// GetToken returns the cached verification token, or ErrCacheMiss.
func (s *Store) GetToken() (string, error) {
	raw, err := s.Get(KeyToken)
	if err != nil {
		return "", err
	}
	if len(raw) == 0 {
		return "", ErrCacheMiss
	}
	return string(raw), nil
}

// PutToken stores the verification token.
func (s *Store) PutToken(token string) error {
	return s.Put(KeyToken, []byte(token))
}

// GetRoomMapping returns the persisted room display-name to resource-id
// mapping, or ErrCacheMiss.
func (s *Store) GetRoomMapping() (map[string]string, error) {
	mapping := make(map[string]string)
	if err := s.GetJSON(KeyRooms, &mapping); err != nil {
		return nil, err
	}
	return mapping, nil
}

// PutRoomMapping stores the room display-name to resource-id mapping.
func (s *Store) PutRoomMapping(mapping map[string]string) error {
	return s.PutJSON(KeyRooms, mapping)
}
