// Package boltstore persists content records in a local bbolt database,
// keyed by source identifier.
package boltstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"vexa/repository"
)

var contentBucket = []byte("content_records")

type ContentStore struct {
	db *bolt.DB
}

// Open creates the database file (and parent directory) if needed and
// ensures the record bucket exists.
func Open(path string) (*ContentStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("boltstore: create directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("boltstore: open: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(contentBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("boltstore: create bucket: %w", err)
	}

	return &ContentStore{db: db}, nil
}

func (s *ContentStore) Close() error {
	return s.db.Close()
}

func (s *ContentStore) Upsert(ctx context.Context, rec *repository.ContentRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("boltstore: marshal record: %w", err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(contentBucket).Put([]byte(rec.SourceIdentifier), data)
	})
	if err != nil {
		return fmt.Errorf("boltstore: put %s: %w", rec.SourceIdentifier, err)
	}
	return nil
}

func (s *ContentStore) GetByIdentifier(ctx context.Context, identifier string) (*repository.ContentRecord, error) {
	var rec *repository.ContentRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(contentBucket).Get([]byte(identifier))
		if data == nil {
			return repository.ErrNotFound
		}
		rec = &repository.ContentRecord{}
		return json.Unmarshal(data, rec)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *ContentStore) Delete(ctx context.Context, identifier string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(contentBucket).Delete([]byte(identifier))
	})
	if err != nil {
		return fmt.Errorf("boltstore: delete %s: %w", identifier, err)
	}
	return nil
}

func (s *ContentStore) ListByBaseURL(ctx context.Context, baseURL string) ([]*repository.ContentRecord, error) {
	var records []*repository.ContentRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(contentBucket).ForEach(func(_, data []byte) error {
			var rec repository.ContentRecord
			if err := json.Unmarshal(data, &rec); err != nil {
				return err
			}
			if rec.BaseURL == baseURL {
				records = append(records, &rec)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("boltstore: list by base url: %w", err)
	}
	return records, nil
}

func (s *ContentStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.View(func(tx *bolt.Tx) error {
		count = tx.Bucket(contentBucket).Stats().KeyN
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("boltstore: count: %w", err)
	}
	return count, nil
}
