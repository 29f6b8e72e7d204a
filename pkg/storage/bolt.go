package storage

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/RyanBlaney/latency-benchmark-common/logging"
	"github.com/RyanBlaney/sonido-mosaic/pkg/common"
	bolt "go.etcd.io/bbolt"
)

const (
	arrayPrefix = "array/"
	attrsKey    = "attrs"
)

// BoltStore persists groups as nested bbolt buckets. Every write is a single
// transaction and bbolt serializes writers, so a group is either absent or complete.
type BoltStore struct {
	db     *bolt.DB
	path   string
	logger logging.Logger
}

// OpenBolt opens (creating when needed) a store at path
func OpenBolt(path string, timeout time.Duration) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, common.NewMosaicError(common.ErrCodeStorageWrite, path, "failed to create store directory", err)
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	db, err := bolt.Open(path, 0644, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, common.NewMosaicError(common.ErrCodeStorageRead, path, "failed to open store", err)
	}

	logger := logging.WithFields(logging.Fields{
		"component": "bolt_store",
		"path":      path,
	})
	logger.Debug("Opened analysis store")

	return &BoltStore{db: db, path: path, logger: logger}, nil
}

// Path returns the file backing the store
func (s *BoltStore) Path() string {
	return s.path
}

func (s *BoltStore) CreateGroup(path Path) error {
	if err := validatePath(path); err != nil {
		return common.NewMosaicError(common.ErrCodeStorageWrite, path.String(), "invalid group", err)
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		_, err := createBucket(tx, path)
		return err
	})
	if err != nil {
		return common.NewMosaicError(common.ErrCodeStorageWrite, path.String(), "failed to create group", err)
	}
	return nil
}

func (s *BoltStore) WriteArray(path Path, name string, data []float64, attrs Attributes) error {
	return s.WriteArrays(path, map[string][]float64{name: data}, attrs)
}

func (s *BoltStore) WriteArrays(path Path, arrays map[string][]float64, attrs Attributes) error {
	if err := validatePath(path); err != nil {
		return common.NewMosaicError(common.ErrCodeStorageWrite, path.String(), "invalid group", err)
	}
	attrBytes, err := encodeAttributes(attrs)
	if err != nil {
		return common.NewMosaicError(common.ErrCodeStorageWrite, path.String(), "failed to encode attributes", err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		b, err := createBucket(tx, path)
		if err != nil {
			return err
		}

		// Drop stale arrays so the group holds exactly what this write describes
		var stale [][]byte
		c := b.Cursor()
		prefix := []byte(arrayPrefix)
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			if v != nil {
				stale = append(stale, append([]byte(nil), k...))
			}
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}

		for name, data := range arrays {
			if err := b.Put([]byte(arrayPrefix+name), encodeFloats(data)); err != nil {
				return err
			}
		}
		return b.Put([]byte(attrsKey), attrBytes)
	})
	if err != nil {
		return common.NewMosaicError(common.ErrCodeStorageWrite, path.String(), "failed to write arrays", err)
	}

	s.logger.Debug("Wrote group", logging.Fields{
		"group":  path.String(),
		"arrays": len(arrays),
	})
	return nil
}

func (s *BoltStore) ReadArray(path Path, name string) ([]float64, Attributes, error) {
	var (
		data  []float64
		attrs Attributes
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := lookupBucket(tx, path)
		if b == nil {
			return ErrNotFound
		}
		raw := b.Get([]byte(arrayPrefix + name))
		if raw == nil {
			return ErrNotFound
		}
		var err error
		if data, err = decodeFloats(raw); err != nil {
			return err
		}
		attrs, err = decodeAttributes(b.Get([]byte(attrsKey)))
		return err
	})
	if err == ErrNotFound {
		return nil, nil, fmt.Errorf("%s/%s: %w", path.String(), name, ErrNotFound)
	}
	if err != nil {
		return nil, nil, common.NewMosaicError(common.ErrCodeStorageRead, path.String()+"/"+name, "failed to read array", err)
	}
	return data, attrs, nil
}

func (s *BoltStore) ReadAttributes(path Path) (Attributes, error) {
	var attrs Attributes
	err := s.db.View(func(tx *bolt.Tx) error {
		b := lookupBucket(tx, path)
		if b == nil {
			return ErrNotFound
		}
		var err error
		attrs, err = decodeAttributes(b.Get([]byte(attrsKey)))
		return err
	})
	if err == ErrNotFound {
		return nil, fmt.Errorf("%s: %w", path.String(), ErrNotFound)
	}
	if err != nil {
		return nil, common.NewMosaicError(common.ErrCodeStorageRead, path.String(), "failed to read attributes", err)
	}
	return attrs, nil
}

func (s *BoltStore) Exists(path Path, name string) (bool, error) {
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		b := lookupBucket(tx, path)
		if b == nil {
			return nil
		}
		if name == "" {
			found = true
			return nil
		}
		found = b.Get([]byte(arrayPrefix+name)) != nil
		return nil
	})
	if err != nil {
		return false, common.NewMosaicError(common.ErrCodeStorageRead, path.String(), "failed to inspect store", err)
	}
	return found, nil
}

func (s *BoltStore) DeleteGroup(path Path) error {
	if err := validatePath(path); err != nil {
		return common.NewMosaicError(common.ErrCodeStorageWrite, path.String(), "invalid group", err)
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		name := []byte(path[len(path)-1])
		if len(path) == 1 {
			if tx.Bucket(name) == nil {
				return nil
			}
			return tx.DeleteBucket(name)
		}
		parent := lookupBucket(tx, path[:len(path)-1])
		if parent == nil || parent.Bucket(name) == nil {
			return nil
		}
		return parent.DeleteBucket(name)
	})
	if err != nil {
		return common.NewMosaicError(common.ErrCodeStorageWrite, path.String(), "failed to delete group", err)
	}
	return nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func createBucket(tx *bolt.Tx, path Path) (*bolt.Bucket, error) {
	b, err := tx.CreateBucketIfNotExists([]byte(path[0]))
	if err != nil {
		return nil, err
	}
	for _, seg := range path[1:] {
		if b, err = b.CreateBucketIfNotExists([]byte(seg)); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func lookupBucket(tx *bolt.Tx, path Path) *bolt.Bucket {
	if len(path) == 0 {
		return nil
	}
	b := tx.Bucket([]byte(path[0]))
	for _, seg := range path[1:] {
		if b == nil {
			return nil
		}
		b = b.Bucket([]byte(seg))
	}
	return b
}
