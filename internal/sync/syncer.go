package sync

import (
	"context"

	"github.com/gotify-desk/deskd/internal/cache"
	"github.com/gotify-desk/deskd/internal/gotify"
	"github.com/gotify-desk/deskd/internal/message"
	"github.com/gotify-desk/deskd/pkg/metrics"
	"github.com/gotify-desk/deskd/pkg/utils"
	"go.uber.org/zap"
)

// Syncer pulls paginated snapshots of recent messages and the application
// list from the server and reconciles them with the local cache.
type Syncer struct {
	logger *zap.Logger
	client *gotify.Client
	cache  *cache.Cache
	meta   *message.MetaMap
	limit  func() int
}

// NewSyncer creates a snapshot fetcher.
func NewSyncer(logger *zap.Logger, client *gotify.Client, c *cache.Cache, meta *message.MetaMap, limit func() int) *Syncer {
	return &Syncer{
		logger: logger.Named("sync"),
		client: client,
		cache:  c,
		meta:   meta,
		limit:  limit,
	}
}

// SyncRecent fetches up to the desired cache limit of recent messages via
// cursor-based backward pagination and hands the result to the cache for
// reconciliation. An in-progress fetch either fully reconciles or leaves
// the cache untouched.
//
// Pagination stops when the target count is reached, a page comes back
// empty or short, or the cursor fails to advance. The cursor guard keeps a
// misbehaving server that repeats its minimum id from looping us forever.
func (s *Syncer) SyncRecent(ctx context.Context) error {
	target := s.limit()
	fresh := make([]message.Message, 0, target)
	var since int64

	for len(fresh) < target {
		limit := target - len(fresh)
		if limit > gotify.MaxPageLimit {
			limit = gotify.MaxPageLimit
		}

		page, err := s.client.FetchMessagesPage(ctx, limit, since)
		if err != nil {
			metrics.SyncRuns.WithLabelValues("error").Inc()
			return err
		}
		if len(page) == 0 {
			break
		}

		var minID int64
		for _, wire := range page {
			if minID == 0 || wire.ID < minID {
				minID = wire.ID
			}
			fresh = append(fresh, message.FromWire(wire, s.meta))
			if len(fresh) >= target {
				break
			}
		}

		if minID == since {
			s.logger.Warn("pagination cursor failed to advance, stopping fetch",
				zap.Int64("cursor", since))
			break
		}
		since = minID

		if len(page) < limit {
			break
		}
	}

	s.cache.Reconcile(fresh)
	return nil
}

// SyncApplications refreshes the application metadata map wholesale.
func (s *Syncer) SyncApplications(ctx context.Context) error {
	apps, err := s.client.FetchApplications(ctx)
	if err != nil {
		return err
	}

	next := make(map[int64]message.AppMeta, len(apps))
	for _, app := range apps {
		iconURL, err := s.client.ResolveImageURL(app.Image)
		if err != nil {
			s.logger.Debug("failed to resolve application icon",
				zap.Int64("app_id", app.ID),
				zap.String("name", utils.Truncate(app.Name, 48)),
				zap.Error(err))
			iconURL = ""
		}
		next[app.ID] = message.AppMeta{Name: app.Name, IconURL: iconURL}
	}

	s.meta.Replace(next)
	return nil
}
