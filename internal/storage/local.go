package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"tabscribe/internal/logging"
	"tabscribe/internal/model"
)

var log = logging.L("storage")

// Keys of the local store.
const (
	KeyLatestRecord   = "latestRecord"
	KeyPendingHandoff = "pendingHandoff"
)

// Local is a small key-value store for the most recent result and the
// one-shot handoff to a companion surface. With a directory it keeps one
// JSON file per key and survives restarts; without one it is memory only.
type Local struct {
	dir string

	mu     sync.Mutex
	values map[string][]byte
}

// NewLocal opens the store. dir may be empty.
func NewLocal(dir string) (*Local, error) {
	l := &Local{dir: dir, values: make(map[string][]byte)}
	if dir == "" {
		return l, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	for _, key := range []string{KeyLatestRecord, KeyPendingHandoff} {
		data, err := os.ReadFile(l.path(key))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", key, err)
		}
		l.values[key] = data
	}
	return l, nil
}

// SaveLatest overwrites the most recently completed record.
func (l *Local) SaveLatest(rec model.Record) error {
	return l.put(KeyLatestRecord, rec)
}

// Latest returns the most recently completed record.
func (l *Local) Latest() (model.Record, bool) {
	l.mu.Lock()
	data, ok := l.values[KeyLatestRecord]
	l.mu.Unlock()
	if !ok {
		return model.Record{}, false
	}
	return decodeRecord(data)
}

// PutHandoff stores a record for a single later read.
func (l *Local) PutHandoff(rec model.Record) error {
	return l.put(KeyPendingHandoff, rec)
}

// TakeHandoff returns the pending handoff and clears it.
func (l *Local) TakeHandoff() (model.Record, bool) {
	l.mu.Lock()
	data, ok := l.values[KeyPendingHandoff]
	delete(l.values, KeyPendingHandoff)
	if ok && l.dir != "" {
		if err := os.Remove(l.path(KeyPendingHandoff)); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.WithError(err).Warn("failed to clear handoff file")
		}
	}
	l.mu.Unlock()
	if !ok {
		return model.Record{}, false
	}
	return decodeRecord(data)
}

func (l *Local) put(key string, rec model.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.dir != "" {
		if err := writeFileAtomic(l.path(key), data); err != nil {
			return fmt.Errorf("failed to write %s: %w", key, err)
		}
	}
	l.values[key] = data
	return nil
}

func (l *Local) path(key string) string {
	return filepath.Join(l.dir, key+".json")
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// decodeRecord reads a stored record, applying the lenient analysis rules
// so files written by older versions still load.
func decodeRecord(data []byte) (model.Record, bool) {
	var stored struct {
		model.Record
		Analysis json.RawMessage `json:"analysis"`
	}
	if err := json.Unmarshal(data, &stored); err != nil {
		log.WithError(err).Warn("unreadable stored record ignored")
		return model.Record{}, false
	}
	rec := stored.Record
	rec.Analysis, _, _ = model.DecodeAnalysis(stored.Analysis)
	if rec.Transcript.Segments == nil {
		rec.Transcript.Segments = []model.TranscriptSegment{}
	}
	return rec, true
}
