// ABOUTME: Registry persistence interface and the JSON file backend
// ABOUTME: Whole-set load and atomic whole-set save of registry entries

package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/2389/fundgate/internal/fileutil"
)

// ErrCorrupt means the backing document exists but cannot be decoded.
var ErrCorrupt = errors.New("registry document is corrupt")

// Entry binds a human-readable tag to an identity key.
type Entry struct {
	Tag         string    `json:"tag"`
	IdentityKey string    `json:"identityKey"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Store persists the full registry as one ordered list.
// Load returns an empty list when nothing has been saved yet.
type Store interface {
	Load(ctx context.Context) ([]Entry, error)
	Save(ctx context.Context, entries []Entry) error
}

func decodeEntries(data []byte) ([]Entry, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return entries, nil
}

func encodeEntries(entries []Entry) ([]byte, error) {
	if entries == nil {
		entries = []Entry{}
	}
	return json.MarshalIndent(entries, "", "  ")
}

// FileStore keeps the registry in a single JSON file.
type FileStore struct {
	path string
}

// NewFileStore returns a store backed by the JSON file at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (f *FileStore) Path() string { return f.path }

func (f *FileStore) Load(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading registry file: %w", err)
	}
	return decodeEntries(data)
}

// Save writes to a temp file in the same directory and renames it over the
// target so readers never observe a partial document.
func (f *FileStore) Save(ctx context.Context, entries []Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encodeEntries(entries)
	if err != nil {
		return fmt.Errorf("encoding registry: %w", err)
	}
	if err := fileutil.WriteAtomic(f.path, data, 0644, 0755); err != nil {
		return fmt.Errorf("writing registry file: %w", err)
	}
	return nil
}
