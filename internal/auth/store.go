// UCServer - Universal Control Protocol Engine for Media Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ucserver

package auth

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// clientKeyPrefix namespaces credential records in the store.
const clientKeyPrefix = "client:"

// BadgerCredentialsStore implements CredentialsStore on BadgerDB, so
// paired clients survive restarts.
type BadgerCredentialsStore struct {
	db *badger.DB
}

// NewBadgerCredentialsStore creates a credential store over an open
// BadgerDB handle.
func NewBadgerCredentialsStore(db *badger.DB) *BadgerCredentialsStore {
	return &BadgerCredentialsStore{db: db}
}

// Load returns every stored credential.
func (s *BadgerCredentialsStore) Load() ([]Credential, error) {
	var creds []Credential

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(clientKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var c Credential
				if err := json.Unmarshal(val, &c); err != nil {
					return fmt.Errorf("unmarshal credential: %w", err)
				}
				creds = append(creds, c)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return creds, nil
}

// Put stores or replaces a credential.
func (s *BadgerCredentialsStore) Put(c Credential) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal credential: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(clientKeyPrefix+c.ClientID), data)
	})
}

// Delete removes a credential. Deleting an absent client is not an error.
func (s *BadgerCredentialsStore) Delete(clientID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(clientKeyPrefix + clientID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}
