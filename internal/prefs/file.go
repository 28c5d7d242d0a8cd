package prefs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/boks/internal/stream"
	"gopkg.in/yaml.v3"
)

// DefaultPollInterval is how often Watch checks the file for outside edits.
const DefaultPollInterval = time.Second

// FileStore persists prefs as a YAML document. Writes replace the file
// atomically; edits made by other processes are picked up by Watch.
type FileStore struct {
	path   string
	logger *logrus.Logger
	value  *stream.Value[Prefs]

	mu  sync.Mutex
	raw []byte
}

// OpenFileStore loads path. A missing file is an empty document.
func OpenFileStore(path string, logger *logrus.Logger) (*FileStore, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &FileStore{path: path, logger: logger}

	raw, p, err := s.load()
	if err != nil {
		return nil, err
	}
	s.raw = raw
	s.value = stream.NewValue(p, Equal)
	return s, nil
}

func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Data(ctx context.Context) <-chan Prefs { return s.value.Subscribe(ctx) }

func (s *FileStore) Current() Prefs { return s.value.Get().Clone() }

func (s *FileStore) Update(ctx context.Context, fn func(Prefs) (Prefs, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := fn(s.value.Get().Clone())
	if err != nil {
		return err
	}

	raw, err := yaml.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to encode prefs: %w", err)
	}
	if err := writeAtomic(s.path, raw); err != nil {
		return err
	}
	s.raw = raw
	s.value.Set(next.Clone())

	s.logger.WithField("path", s.path).Debug("Prefs saved")
	return nil
}

// Watch polls the file until ctx is done and publishes outside edits.
// Unparsable content is logged and ignored.
func (s *FileStore) Watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Reload(); err != nil {
				s.logger.WithField("path", s.path).WithError(err).Warn("Ignoring unreadable prefs file")
			}
		}
	}
}

// Reload rereads the file and publishes it when its content changed.
func (s *FileStore) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, p, err := s.load()
	if err != nil {
		return err
	}
	if bytes.Equal(raw, s.raw) {
		return nil
	}
	s.raw = raw
	if s.value.Set(p) {
		s.logger.WithField("path", s.path).Info("Prefs changed on disk")
	}
	return nil
}

func (s *FileStore) load() ([]byte, Prefs, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, Prefs{}, nil
	}
	if err != nil {
		return nil, Prefs{}, fmt.Errorf("failed to read prefs: %w", err)
	}

	var p Prefs
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return nil, Prefs{}, fmt.Errorf("failed to parse prefs %s: %w", s.path, err)
	}
	// Re-key through SetConfig and Select so hand-edited addresses match.
	normalized := Prefs{}
	for address, cfg := range p.Configs {
		normalized.SetConfig(address, cfg)
	}
	normalized.Select(p.Selected...)
	return raw, normalized, nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write prefs: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write prefs: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace prefs: %w", err)
	}
	return nil
}
