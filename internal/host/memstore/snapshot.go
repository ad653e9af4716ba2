package memstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"

	"lrtpool/internal/host"
)

// Snapshot is the on-disk form of a Store.
type Snapshot struct {
	Accounts  []host.Account `json:"accounts"`
	UpdatedAt string         `json:"updated_at"`
}

// SnapshotFile persists a Store between CLI invocations. Load takes an
// exclusive lock on a sibling ".lock" file and keeps it until Close, so two
// processes never interleave a load and a save of the same snapshot.
type SnapshotFile struct {
	path string
	lock *os.File
}

func NewSnapshotFile(path string) *SnapshotFile {
	return &SnapshotFile{path: path}
}

// Load fills store from the snapshot. A missing file leaves store empty.
func (f *SnapshotFile) Load(store *Store) (bool, error) {
	if err := f.acquire(); err != nil {
		return false, err
	}
	stat, err := os.Stat(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat snapshot: %w", err)
	}
	if stat.IsDir() {
		return false, fmt.Errorf("snapshot path is a directory")
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		return false, fmt.Errorf("read snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return false, fmt.Errorf("parse snapshot: %w", err)
	}
	store.Replace(snap.Accounts)
	return true, nil
}

// Save writes the committed state of store atomically.
func (f *SnapshotFile) Save(store *Store) error {
	if f.lock == nil {
		return fmt.Errorf("save snapshot %s: not loaded", f.path)
	}

	snap := Snapshot{
		Accounts:  store.Accounts(),
		UpdatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tmpPath := f.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot tmp: %w", err)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// Close releases the snapshot lock. It is safe to call more than once.
func (f *SnapshotFile) Close() error {
	if f.lock == nil {
		return nil
	}
	lock := f.lock
	f.lock = nil
	if err := unix.Flock(int(lock.Fd()), unix.LOCK_UN); err != nil {
		lock.Close()
		return fmt.Errorf("unlock snapshot: %w", err)
	}
	return lock.Close()
}

func (f *SnapshotFile) acquire() error {
	if f.lock != nil {
		return nil
	}
	dir := filepath.Dir(f.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create snapshot dir: %w", err)
		}
	}
	lock, err := os.OpenFile(f.path+".lock", os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("open snapshot lock: %w", err)
	}
	if err := unix.Flock(int(lock.Fd()), unix.LOCK_EX); err != nil {
		lock.Close()
		return fmt.Errorf("lock snapshot: %w", err)
	}
	f.lock = lock
	return nil
}
