package credentials

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"chat-relay/errors"
)

const keyPrefix = "user:"

// BadgerStore keeps credentials in a local Badger database. It backs the
// stand-alone credential service and the relay's local mode, where no
// remote service URL is configured.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore wraps an already opened database. The caller owns the
// database lifecycle.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

type record struct {
	Username  string `json:"username"`
	Digest    string `json:"digest"`
	CreatedAt int64  `json:"created_at"`
}

func (s *BadgerStore) Exists(_ context.Context, username string) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key(username))
		return err
	})
	if err == badger.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	return true, nil
}

func (s *BadgerStore) Match(_ context.Context, username, digest string) (bool, error) {
	rec, err := s.get(username)
	if err == badger.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	return subtle.ConstantTimeCompare([]byte(rec.Digest), []byte(digest)) == 1, nil
}

func (s *BadgerStore) Create(_ context.Context, username, digest string) error {
	data, err := json.Marshal(record{
		Username:  username,
		Digest:    digest,
		CreatedAt: time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key(username)); err == nil {
			return errors.ErrUserAlreadyExists
		}
		return txn.Set(key(username), data)
	})
	if err == errors.ErrUserAlreadyExists {
		return err
	}
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *BadgerStore) get(username string) (record, error) {
	var rec record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(username))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	return rec, err
}

func key(username string) []byte {
	return []byte(keyPrefix + username)
}
