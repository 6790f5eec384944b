// Package storage provides the durable lifetime of the session key store,
// backed by BadgerDB. It persists the wrapped master-key cache and the
// device-identity token across restarts; plaintext share keys never reach it.
package storage

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// ErrKeyNotFound is returned by Get when no entry exists for the key.
var ErrKeyNotFound = errors.New("key not found in store")

// Store is a badger-backed key-value store with durable lifetime.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) the store at path.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	opts.ValueLogFileSize = 1024 * 1024 * 16
	opts.SyncWrites = true

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store at %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Get returns a copy of the value stored under key.
func (s *Store) Get(key string) ([]byte, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return ErrKeyNotFound
			}
			return fmt.Errorf("failed to get %s: %w", key, err)
		}
		return item.Value(func(val []byte) error {
			value = append([]byte(nil), val...)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Set stores value under key, overwriting any previous entry.
func (s *Store) Set(key string, value []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// Remove deletes the entry under key. Removing a missing key is not an error.
func (s *Store) Remove(key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("failed to remove %s: %w", key, err)
	}
	return nil
}

// Keys returns every stored key with the given prefix.
func (s *Store) Keys(prefix string) ([]string, error) {
	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	return keys, nil
}

// Close flushes and closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
