package save

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

var savesBucketName = []byte("saves") // <story>/<slot>=<boltItem>

// BoltStore keeps saves in a bbolt file, one nested bucket per story.
type BoltStore struct {
	db *bolt.DB
}

type boltItem struct {
	ID    string `cbor:"1,keyasint"`
	Saved int64  `cbor:"2,keyasint"`
	Data  []byte `cbor:"3,keyasint"`
}

// OpenBolt opens or creates the database file at path.
func OpenBolt(path string) (*BoltStore, error) {
	if path == "" {
		return nil, errors.New("bolt save store needs a path")
	}
	if err := ensureDirectory(filepath.Dir(path)); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(savesBucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to initialize database")
	}
	log.Infof("bolt save store at %s", path)
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Put(ctx context.Context, story, slot string, data []byte) (Entry, error) {
	e := newEntry(story, slot, len(data))
	value, err := cborEncMode.Marshal(&boltItem{ID: e.ID, Saved: e.Saved.UnixNano(), Data: data})
	if err != nil {
		return Entry{}, errors.Wrapf(err, "failed to marshal save %s/%s", story, slot)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.Bucket(savesBucketName).CreateBucketIfNotExists([]byte(story))
		if err != nil {
			return err
		}
		return bucket.Put([]byte(slot), value)
	})
	if err != nil {
		return Entry{}, errors.Wrapf(err, "failed to insert save %s/%s", story, slot)
	}
	return e, nil
}

func (s *BoltStore) get(tx *bolt.Tx, story, slot string) (*boltItem, error) {
	bucket := tx.Bucket(savesBucketName).Bucket([]byte(story))
	if bucket == nil {
		return nil, ErrNotFound
	}
	value := bucket.Get([]byte(slot))
	if value == nil {
		return nil, ErrNotFound
	}
	var item boltItem
	if err := cbor.Unmarshal(value, &item); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal save %s/%s", story, slot)
	}
	return &item, nil
}

func (s *BoltStore) Get(ctx context.Context, story, slot string) ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		item, err := s.get(tx, story, slot)
		if err != nil {
			return err
		}
		data = item.Data
		return nil
	})
	return data, err
}

func (s *BoltStore) List(ctx context.Context, story string) ([]Entry, error) {
	var entries []Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(savesBucketName).Bucket([]byte(story))
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			var item boltItem
			if err := cbor.Unmarshal(v, &item); err != nil {
				return errors.Wrapf(err, "failed to unmarshal %s", k)
			}
			entries = append(entries, Entry{
				ID:    item.ID,
				Story: story,
				Slot:  string(k),
				Size:  len(item.Data),
				Saved: time.Unix(0, item.Saved).UTC(),
			})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortEntries(entries)
	return entries, nil
}

func (s *BoltStore) Delete(ctx context.Context, story, slot string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if _, err := s.get(tx, story, slot); err != nil {
			return err
		}
		bucket := tx.Bucket(savesBucketName).Bucket([]byte(story))
		return errors.Wrapf(bucket.Delete([]byte(slot)), "failed to delete save %s/%s", story, slot)
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
