package cache

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/gotify-desk/deskd/internal/message"
	"github.com/gotify-desk/deskd/pkg/metrics"
	"github.com/gotify-desk/deskd/pkg/utils"
	"go.uber.org/zap"
)

// Load hydrates the cache from disk. A corrupt file is renamed aside with a
// unique suffix and loading proceeds with an empty cache; startup never
// fails on cache corruption.
func (c *Cache) Load() {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger.Warn("failed to read message cache", zap.Error(err))
		}
		return
	}

	var msgs []message.Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		quarantine := c.path + ".corrupt-" + utils.UniqueSuffix() + ".json"
		if renameErr := os.Rename(c.path, quarantine); renameErr != nil {
			c.logger.Warn("failed to quarantine corrupt cache file", zap.Error(renameErr))
		} else {
			c.logger.Warn("moved corrupt cache file aside",
				zap.String("path", quarantine))
		}
		c.logger.Warn("cache parse failed, starting fresh", zap.Error(err))
		return
	}

	c.mu.Lock()
	c.messages = msgs
	c.mu.Unlock()
	metrics.CacheSize.Set(float64(len(msgs)))
}

// persistAsync writes a consistent snapshot in the background. Failures are
// log-only: the in-memory cache stays correct even when the disk copy lags.
func (c *Cache) persistAsync(snapshot []message.Message) {
	go func() {
		if err := persistToPath(c.path, snapshot); err != nil {
			c.logger.Error("failed to persist message cache", zap.Error(err))
		}
	}()
}

// persistToPath writes messages via temp file + atomic rename, restricting
// permissions to the owner before the rename.
func persistToPath(path string, msgs []message.Message) error {
	data, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("failed to serialize message cache: %w", err)
	}

	tmp := path + ".tmp-" + utils.UniqueSuffix()
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write message cache temp file: %w", err)
	}
	if err := utils.RestrictFile(tmp); err != nil {
		return fmt.Errorf("failed to restrict cache file permissions: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to atomically replace message cache: %w", err)
	}
	return nil
}
