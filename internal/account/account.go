// Package account tracks tenant metadata for the activity subsystem.
package account

import (
	"encoding/json"
	"time"

	pebblestore "github.com/tdaniel1925/easemail-redux-sub002/internal/storage/pebble"
)

// Meta holds account metadata.
type Meta struct {
	ID          string `json:"id"`
	CreatedAtMs int64  `json:"createdAtMs"`
}

var acctMetaPrefix = []byte("acctmeta/")

func metaKey(id string) []byte {
	k := make([]byte, 0, len(acctMetaPrefix)+len(id))
	k = append(k, acctMetaPrefix...)
	k = append(k, id...)
	return k
}

// Ensure creates an account meta record if absent, returning the effective
// meta. Idempotent: returns the existing record when present.
func Ensure(db *pebblestore.DB, id string) (Meta, error) {
	key := metaKey(id)
	if b, err := db.Get(key); err == nil && len(b) > 0 {
		var m Meta
		if err := json.Unmarshal(b, &m); err == nil {
			return m, nil
		}
		// rewrite below if the record is unreadable
	}
	m := Meta{ID: id, CreatedAtMs: time.Now().UnixMilli()}
	b, err := json.Marshal(m)
	if err != nil {
		return Meta{}, err
	}
	if err := db.Set(key, b); err != nil {
		return Meta{}, err
	}
	return m, nil
}
