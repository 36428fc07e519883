package notify

import (
	"time"

	"github.com/gotify-desk/deskd/internal/message"
	"github.com/gotify-desk/deskd/internal/settings"
	"github.com/gotify-desk/deskd/pkg/utils"
	"go.uber.org/zap"
)

// Notifier delivers a user-facing alert for a message. How it is rendered
// is up to the implementation.
type Notifier interface {
	Notify(msg message.Message)
}

// ZapNotifier logs notifications; the default sink when no platform
// integration is attached.
type ZapNotifier struct {
	logger *zap.Logger
}

var _ Notifier = (*ZapNotifier)(nil)

// NewZapNotifier creates a logging notifier
func NewZapNotifier(logger *zap.Logger) *ZapNotifier {
	return &ZapNotifier{logger: logger.Named("notify")}
}

// Notify implements Notifier.Notify
func (n *ZapNotifier) Notify(msg message.Message) {
	n.logger.Info("notification",
		zap.Int64("id", msg.ID),
		zap.String("app", msg.AppName),
		zap.Int64("priority", msg.Priority),
		zap.String("title", utils.Truncate(msg.Title, 60)))
}

// Gate filters notifications by the user's pause state, minimum priority
// and quiet hours before handing them to the wrapped Notifier.
type Gate struct {
	logger   *zap.Logger
	store    settings.Store
	notifier Notifier
	nowHour  func() int
}

// NewGate creates a notification gate over store and notifier.
func NewGate(logger *zap.Logger, store settings.Store, notifier Notifier) *Gate {
	return &Gate{
		logger:   logger.Named("notify.gate"),
		store:    store,
		notifier: notifier,
		nowHour:  func() int { return time.Now().Hour() },
	}
}

// MaybeNotify alerts the user unless current settings suppress the message.
func (g *Gate) MaybeNotify(msg message.Message) {
	stored, err := g.store.Read()
	if err != nil {
		g.logger.Warn("failed to read settings for notification", zap.Error(err))
		return
	}

	if settings.PauseActive(stored.PauseUntil, utils.UnixNow()) {
		return
	}
	if msg.Priority < stored.MinPriority {
		return
	}
	if settings.InQuietHours(stored.QuietHoursStart, stored.QuietHoursEnd, g.nowHour()) {
		return
	}

	g.notifier.Notify(msg)
}
