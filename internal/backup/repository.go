package backup

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/rsvpguard/internal/core/domain"
)

const (
	idPrefix      = "bkp-"
	metaExtension = ".json"
	dataExtension = ".bak"
	tempExtension = ".tmp"
)

// ValidID reports whether id has the form CreateBackup produces. Only valid
// ids are turned into file names.
func ValidID(id string) bool {
	rest, ok := strings.CutPrefix(id, idPrefix)
	if !ok {
		return false
	}
	_, err := ulid.ParseStrict(strings.ToUpper(rest))
	return err == nil
}

// Repository stores backups as file pairs in one directory.
type Repository struct {
	dir string
}

// NewRepository creates dir if needed.
func NewRepository(dir string) (*Repository, error) {
	if dir == "" {
		return nil, errors.New("backup: dir is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("backup: create dir: %w", err)
	}
	return &Repository{dir: dir}, nil
}

// Dir returns the repository directory.
func (r *Repository) Dir() string {
	return r.dir
}

func (r *Repository) metaPath(id string) string { return filepath.Join(r.dir, id+metaExtension) }
func (r *Repository) dataPath(id string) string { return filepath.Join(r.dir, id+dataExtension) }

// Save writes the payload, then the metadata. A backup becomes visible to
// List only once both files are in place.
func (r *Repository) Save(meta *Metadata, payload []byte) error {
	if !ValidID(meta.ID) {
		return fmt.Errorf("backup: invalid id %q", meta.ID)
	}
	if err := writeAtomic(r.dataPath(meta.ID), payload); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("backup: marshal metadata: %w", err)
	}
	if err := writeAtomic(r.metaPath(meta.ID), raw); err != nil {
		_ = os.Remove(r.dataPath(meta.ID))
		return err
	}
	return nil
}

func writeAtomic(path string, data []byte) error {
	tmp := path + tempExtension
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("backup: create temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("backup: write: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("backup: sync: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("backup: close: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("backup: rename: %w", err)
	}
	return nil
}

// Metadata loads one backup's metadata.
func (r *Repository) Metadata(id string) (*Metadata, error) {
	if !ValidID(id) {
		return nil, domain.ErrBackupNotFound
	}
	raw, err := os.ReadFile(r.metaPath(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, domain.ErrBackupNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("backup: read metadata: %w", err)
	}
	var meta Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, domain.ErrBackupCorrupt.WithDetails("metadata: " + err.Error())
	}
	return &meta, nil
}

// Payload loads one backup's payload bytes.
func (r *Repository) Payload(id string) ([]byte, error) {
	if !ValidID(id) {
		return nil, domain.ErrBackupNotFound
	}
	b, err := os.ReadFile(r.dataPath(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, domain.ErrBackupNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("backup: read payload: %w", err)
	}
	return b, nil
}

// List returns every readable backup, newest first. Unreadable metadata
// files are skipped and reported in skipped.
func (r *Repository) List() (metas []*Metadata, skipped []string, err error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, nil, fmt.Errorf("backup: read dir: %w", err)
	}
	for _, e := range entries {
		id, ok := strings.CutSuffix(e.Name(), metaExtension)
		if e.IsDir() || !ok || !ValidID(id) {
			continue
		}
		meta, err := r.Metadata(id)
		if err != nil {
			skipped = append(skipped, id)
			continue
		}
		metas = append(metas, meta)
	}
	sort.Slice(metas, func(i, j int) bool {
		if !metas[i].CreatedAt.Equal(metas[j].CreatedAt) {
			return metas[i].CreatedAt.After(metas[j].CreatedAt)
		}
		return metas[i].ID > metas[j].ID
	})
	return metas, skipped, nil
}

// Delete removes both files and returns the bytes freed.
func (r *Repository) Delete(id string) (int64, error) {
	if !ValidID(id) {
		return 0, domain.ErrBackupNotFound
	}
	var freed int64
	var errs []error
	for _, p := range []string{r.metaPath(id), r.dataPath(id)} {
		info, err := os.Stat(p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err == nil {
			freed += info.Size()
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return freed, fmt.Errorf("backup: delete %s: %w", id, errors.Join(errs...))
	}
	return freed, nil
}
