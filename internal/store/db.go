// Package store holds the in-memory keyspace. Database has no internal
// locking: it is owned exclusively by the command actor goroutine, which
// serializes all access by construction, so a plain map is sufficient.
package store

import "time"

type entry struct {
	value     []byte
	expiry    *time.Duration
	createdAt time.Time
}

func (e entry) expired(now time.Time) bool {
	if e.expiry == nil {
		return false
	}
	return e.createdAt.Add(*e.expiry).Before(now)
}

// Database is a single key/value namespace with optional per-key
// expiration. The zero value is not usable; construct with New.
type Database struct {
	data map[string]entry
}

// New returns an empty Database.
func New() *Database {
	return &Database{data: make(map[string]entry)}
}

// Get returns the value stored for key. A key past its expiry is treated
// as absent and is removed from the map (lazy expiration).
func (db *Database) Get(key []byte) ([]byte, bool) {
	e, ok := db.data[string(key)]
	if !ok {
		return nil, false
	}
	if e.expired(time.Now()) {
		delete(db.data, string(key))
		return nil, false
	}
	return e.value, true
}

// Set stores value under key, replacing anything previously there.
// expiry, when non-nil, is measured from this call.
func (db *Database) Set(key, value []byte, expiry *time.Duration) {
	db.data[string(key)] = entry{
		value:     value,
		expiry:    expiry,
		createdAt: time.Now(),
	}
}

// Len reports the number of keys currently stored, including any not yet
// lazily reaped past their expiry.
func (db *Database) Len() int {
	return len(db.data)
}
