package replay

import (
	"compress/flate"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/unklstewy/globe-replay/pkg/telemetry"
)

// Autosave persists the live recording ring to the user cache directory so
// a recorder restart does not lose the recent history window. The file is
// msgpack-encoded and flate-compressed; it is a local cache, not an
// exchange format — replay files are for that.
type Autosave struct {
	// name is the file name inside the cache directory
	name string
}

// NewAutosave creates an autosave target with the given file name.
func NewAutosave(name string) *Autosave {
	return &Autosave{name: name}
}

func (a *Autosave) path() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "globe-replay", a.name), nil
}

// Save writes the snapshot sequence, replacing any previous save.
func (a *Autosave) Save(snapshots []telemetry.Snapshot) error {
	path, err := a.path()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	fw, err := flate.NewWriter(f, flate.BestSpeed)
	if err != nil {
		return err
	}
	if err := msgpack.NewEncoder(fw).Encode(snapshots); err != nil {
		return err
	}
	return fw.Close()
}

// Load reads the previous save and its modification time. Returns an error
// if no save exists.
func (a *Autosave) Load() ([]telemetry.Snapshot, time.Time, error) {
	path, err := a.path()
	if err != nil {
		return nil, time.Time{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, time.Time{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, time.Time{}, err
	}

	var snapshots []telemetry.Snapshot
	fr := flate.NewReader(f)
	defer fr.Close()
	if err := msgpack.NewDecoder(fr).Decode(&snapshots); err != nil {
		return nil, time.Time{}, fmt.Errorf("corrupt autosave: %w", err)
	}
	return snapshots, info.ModTime(), nil
}

// Remove deletes the save file if present.
func (a *Autosave) Remove() error {
	path, err := a.path()
	if err != nil {
		return err
	}
	err = os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
