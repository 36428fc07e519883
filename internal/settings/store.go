package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gotify-desk/deskd/pkg/utils"
	"go.uber.org/zap"
)

// Store is the settings surface the engine consumes.
type Store interface {
	Read() (Settings, error)
	Write(Settings) error
}

// FileStore persists settings as a JSON file restricted to the owning user.
type FileStore struct {
	logger *zap.Logger
	path   string
	mu     sync.Mutex
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a settings store rooted in dataDir.
func NewFileStore(logger *zap.Logger, dataDir string) (*FileStore, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &FileStore{
		logger: logger.Named("settings.store"),
		path:   filepath.Join(dataDir, "settings.json"),
	}, nil
}

// Path returns the settings file location.
func (s *FileStore) Path() string {
	return s.path
}

// Read loads settings from disk, returning defaults when none exist.
func (s *FileStore) Read() (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Defaults(), nil
		}
		return Settings{}, fmt.Errorf("failed to read settings: %w", err)
	}

	stored := Defaults()
	if err := json.Unmarshal(data, &stored); err != nil {
		return Settings{}, fmt.Errorf("failed to parse settings: %w", err)
	}
	return stored, nil
}

// Write persists settings atomically with owner-only permissions.
func (s *FileStore) Write(stored Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize settings: %w", err)
	}

	tmp := s.path + ".tmp-" + utils.UniqueSuffix()
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write settings temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace settings file: %w", err)
	}
	return nil
}

// Update applies changed fields while keeping the stored token when the
// caller does not supply a new one.
func (s *FileStore) Update(baseURL, token string, minPriority *int64, cacheLimit *int, quietStart, quietEnd *int) error {
	normalized, err := NormalizeBaseURL(baseURL)
	if err != nil {
		return err
	}

	current, err := s.Read()
	if err != nil {
		current = Defaults()
	}

	next := current
	next.BaseURL = normalized
	if strings.TrimSpace(token) != "" {
		next.Token = strings.TrimSpace(token)
	} else if strings.TrimSpace(current.Token) == "" {
		return fmt.Errorf("token is required")
	}
	if minPriority != nil {
		next.MinPriority = ClampPriority(*minPriority)
	}
	if cacheLimit != nil {
		next.CacheLimit = NormalizeCacheLimit(*cacheLimit)
	}
	if quietStart != nil {
		h := *quietStart % 24
		next.QuietHoursStart = &h
	}
	if quietEnd != nil {
		h := *quietEnd % 24
		next.QuietHoursEnd = &h
	}

	return s.Write(next)
}

// DesiredCacheLimit returns the clamped configured cache limit.
func (s *FileStore) DesiredCacheLimit() int {
	stored, err := s.Read()
	if err != nil {
		return DefaultCacheLimit
	}
	return NormalizeCacheLimit(stored.CacheLimit)
}

// Pause suppresses notifications for the given duration.
func (s *FileStore) Pause(d time.Duration) error {
	until := utils.UnixNow() + int64(d/time.Second)
	mode := PauseModeCustom
	switch d {
	case 15 * time.Minute:
		mode = PauseMode15m
	case time.Hour:
		mode = PauseMode1h
	}
	return s.setPause(&until, mode)
}

// PauseForever suppresses notifications until explicitly resumed.
func (s *FileStore) PauseForever() error {
	until := PauseForeverSentinel
	return s.setPause(&until, PauseModeForever)
}

// Resume clears any active notification pause.
func (s *FileStore) Resume() error {
	return s.setPause(nil, "")
}

func (s *FileStore) setPause(until *int64, mode string) error {
	current, err := s.Read()
	if err != nil {
		return err
	}
	current.PauseUntil = until
	current.PauseMode = mode
	if err := s.Write(current); err != nil {
		return err
	}
	s.logger.Info("notification pause updated",
		zap.String("mode", mode))
	return nil
}
