package journal

import (
	"time"

	"go.etcd.io/bbolt"
)

var journalBucket = []byte("journal")

// boltStore persists each entry's latest encoded record as a bbolt value
// keyed by journal id, overwritten in place on every state transition.
// bbolt's own single-writer B+tree commit log is the durability
// mechanism here, so unlike mmapStore there is no append-then-replay
// step: Get always reads the current committed value directly.
type boltStore struct {
	db *bbolt.DB
}

func NewBoltStore(path string) (*boltStore, error) {
	db, err := bbolt.Open(path, 0o644, bbolt.DefaultOptions)
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(journalBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &boltStore{db: db}, nil
}

func (s *boltStore) put(tx *bbolt.Tx, e *Entry) error {
	rec, err := EncodeRecord(e)
	if err != nil {
		return err
	}
	return tx.Bucket(journalBucket).Put([]byte(e.ID), rec)
}

func (s *boltStore) Append(e *Entry) error {
	return s.db.Update(func(tx *bbolt.Tx) error { return s.put(tx, e) })
}

func (s *boltStore) UpdateState(id string, state State, attempts uint32) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(journalBucket)
		raw := b.Get([]byte(id))
		if raw == nil {
			return ErrNotFound
		}
		e, _, ok := DecodeRecordAt(raw, 0)
		if !ok {
			return ErrInvalidTransition
		}
		e.State = state
		e.Attempts = attempts
		return s.put(tx, e)
	})
}

func (s *boltStore) Get(id string) (*Entry, bool, error) {
	var e *Entry
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(journalBucket).Get([]byte(id))
		if raw == nil {
			return nil
		}
		decoded, _, ok := DecodeRecordAt(raw, 0)
		if ok {
			e = decoded
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return e, e != nil, nil
}

func (s *boltStore) ScanRecoverable(fn func(*Entry) bool) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(journalBucket).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			e, _, ok := DecodeRecordAt(v, 0)
			if !ok || e.State == StateCompleted {
				continue
			}
			if !fn(e) {
				break
			}
		}
		return nil
	})
}

// Rotate is a no-op for bbolt: the database file is its own single
// segment, and bbolt has no concept of rotating away a closed log file.
func (s *boltStore) Rotate() error { return nil }

// Compact removes Completed entries older than olderThan in one update
// transaction. The freed pages stay in the database file for bbolt to
// reuse; the file itself is not shrunk.
func (s *boltStore) Compact(olderThan time.Time) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(journalBucket)
		c := b.Cursor()
		var toDelete [][]byte
		for k, v := c.First(); k != nil; k, v = c.Next() {
			e, _, ok := DecodeRecordAt(v, 0)
			if !ok {
				continue
			}
			if e.State == StateCompleted && e.EnqueueTime.Before(olderThan) {
				key := make([]byte, len(k))
				copy(key, k)
				toDelete = append(toDelete, key)
			}
		}
		for _, k := range toDelete {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return nil
}

func (s *boltStore) Sync() error {
	return s.db.Sync()
}

func (s *boltStore) Close() error {
	return s.db.Close()
}
