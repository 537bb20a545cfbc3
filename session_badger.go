package mqttd

import (
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"
)

// sessionKeyPrefix namespaces session records inside the badger keyspace.
var sessionKeyPrefix = []byte("session/")

// BadgerSessionStore persists session records in an embedded badger
// database so sessions survive broker restarts.
type BadgerSessionStore struct {
	db *badger.DB
}

// NewBadgerSessionStore opens (or creates) a badger database at dir.
func NewBadgerSessionStore(dir string) (*BadgerSessionStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	return &BadgerSessionStore{db: db}, nil
}

// Put creates or replaces a record.
func (s *BadgerSessionStore) Put(record SessionRecord) error {
	data, err := msgpack.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode session record: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(sessionKey(record.Identity), data)
	})
}

// Get retrieves a record by identity.
func (s *BadgerSessionStore) Get(identity string) (SessionRecord, error) {
	var record SessionRecord

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(sessionKey(identity))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return ErrSessionNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return msgpack.Unmarshal(val, &record)
		})
	})
	if err != nil {
		return SessionRecord{}, err
	}

	return record, nil
}

// Delete removes a record.
func (s *BadgerSessionStore) Delete(identity string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(sessionKey(identity))
	})
}

// List returns all records.
func (s *BadgerSessionStore) List() ([]SessionRecord, error) {
	var records []SessionRecord

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = sessionKeyPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var record SessionRecord
			err := it.Item().Value(func(val []byte) error {
				return msgpack.Unmarshal(val, &record)
			})
			if err != nil {
				return err
			}
			records = append(records, record)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return records, nil
}

// Close closes the underlying database.
func (s *BadgerSessionStore) Close() error {
	return s.db.Close()
}

func sessionKey(identity string) []byte {
	return append(append([]byte(nil), sessionKeyPrefix...), identity...)
}
