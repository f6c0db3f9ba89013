// ABOUTME: Registry backend on a walletdb (bbolt) key-value database
// ABOUTME: Each save rewrites the entries bucket inside one transaction

package registry

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/btcsuite/btcwallet/walletdb"
	_ "github.com/btcsuite/btcwallet/walletdb/bdb"
)

const boltDriver = "bdb"

var entriesBucket = []byte("registry-entries")

// BoltStore keeps one record per entry, keyed by its position.
type BoltStore struct {
	db walletdb.DB
}

// NewBoltStore opens (or creates) the database at path.
func NewBoltStore(path string, timeout time.Duration) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	var (
		db  walletdb.DB
		err error
	)
	if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
		db, err = walletdb.Create(boltDriver, path, true, timeout, false)
	} else {
		db, err = walletdb.Open(boltDriver, path, true, timeout, false)
	}
	if err != nil {
		return nil, fmt.Errorf("opening registry database: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func (b *BoltStore) Load(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var entries []Entry
	err := walletdb.View(b.db, func(tx walletdb.ReadTx) error {
		bucket := tx.ReadBucket(entriesBucket)
		if bucket == nil {
			return nil
		}

		type keyed struct {
			pos   uint64
			entry Entry
		}
		var rows []keyed
		err := bucket.ForEach(func(k, v []byte) error {
			if len(k) != 8 {
				return fmt.Errorf("%w: bad key length %d", ErrCorrupt, len(k))
			}
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("%w: %v", ErrCorrupt, err)
			}
			rows = append(rows, keyed{pos: binary.BigEndian.Uint64(k), entry: e})
			return nil
		})
		if err != nil {
			return err
		}

		sort.Slice(rows, func(i, j int) bool { return rows[i].pos < rows[j].pos })
		entries = make([]Entry, 0, len(rows))
		for _, r := range rows {
			entries = append(entries, r.entry)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading registry: %w", err)
	}
	return entries, nil
}

func (b *BoltStore) Save(ctx context.Context, entries []Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := walletdb.Update(b.db, func(tx walletdb.ReadWriteTx) error {
		if err := tx.DeleteTopLevelBucket(entriesBucket); err != nil && !errors.Is(err, walletdb.ErrBucketNotFound) {
			return fmt.Errorf("clearing entries: %w", err)
		}
		bucket, err := tx.CreateTopLevelBucket(entriesBucket)
		if err != nil {
			return fmt.Errorf("creating entries bucket: %w", err)
		}
		for i, e := range entries {
			val, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("encoding entry: %w", err)
			}
			var key [8]byte
			binary.BigEndian.PutUint64(key[:], uint64(i))
			if err := bucket.Put(key[:], val); err != nil {
				return fmt.Errorf("writing entry: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("saving registry: %w", err)
	}
	return nil
}

// Close releases the database.
func (b *BoltStore) Close() error {
	return b.db.Close()
}
