package preview

import (
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const bucketName = "previews"

// BoltStorage implements the Storage interface using BoltDB.
// The file only lives as long as the process; previews are not a
// persistence layer and the bucket is emptied on open.
type BoltStorage struct {
	db *bbolt.DB
}

// NewBoltStorage opens (or creates) a BoltDB file for preview bytes
func NewBoltStorage(path string) (*BoltStorage, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	// Leftovers from a previous run belong to sessions that no longer exist
	err = db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(bucketName)) != nil {
			if err := tx.DeleteBucket([]byte(bucketName)); err != nil {
				return err
			}
		}
		_, err := tx.CreateBucket([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating bucket: %w", err)
	}

	return &BoltStorage{db: db}, nil
}

// Save stores preview bytes
func (b *BoltStorage) Save(key string, data []byte) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Put([]byte(key), data)
	})
}

// Get retrieves preview bytes
func (b *BoltStorage) Get(key string) ([]byte, error) {
	var data []byte
	err := b.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket([]byte(bucketName)).Get([]byte(key))
		if v == nil {
			return fmt.Errorf("reading %s: %w", key, ErrNotFound)
		}
		// v is only valid for the life of the transaction
		data = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Delete removes preview bytes
func (b *BoltStorage) Delete(key string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		if bucket.Get([]byte(key)) == nil {
			return fmt.Errorf("deleting %s: %w", key, ErrNotFound)
		}
		return bucket.Delete([]byte(key))
	})
}

// Close closes the database
func (b *BoltStorage) Close() error {
	return b.db.Close()
}
