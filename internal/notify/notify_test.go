package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/gotify-desk/deskd/internal/message"
	"github.com/gotify-desk/deskd/internal/settings"
	"github.com/gotify-desk/deskd/pkg/utils"
)

type fakeStore struct {
	stored settings.Settings
	err    error
}

func (f *fakeStore) Read() (settings.Settings, error) { return f.stored, f.err }
func (f *fakeStore) Write(s settings.Settings) error  { f.stored = s; return nil }

type recordingNotifier struct {
	delivered []message.Message
}

func (r *recordingNotifier) Notify(msg message.Message) {
	r.delivered = append(r.delivered, msg)
}

func newTestGate(stored settings.Settings, hour int) (*Gate, *recordingNotifier) {
	sink := &recordingNotifier{}
	g := NewGate(zap.NewNop(), &fakeStore{stored: stored}, sink)
	g.nowHour = func() int { return hour }
	return g, sink
}

func TestMaybeNotify_Delivers(t *testing.T) {
	g, sink := newTestGate(settings.Defaults(), 12)

	g.MaybeNotify(message.Message{ID: 1, Priority: 5})

	assert.Len(t, sink.delivered, 1)
}

func TestMaybeNotify_SuppressedBelowMinPriority(t *testing.T) {
	stored := settings.Defaults()
	stored.MinPriority = 5
	g, sink := newTestGate(stored, 12)

	g.MaybeNotify(message.Message{ID: 1, Priority: 4})
	g.MaybeNotify(message.Message{ID: 2, Priority: 5})

	assert.Len(t, sink.delivered, 1)
	assert.Equal(t, int64(2), sink.delivered[0].ID)
}

func TestMaybeNotify_SuppressedWhilePaused(t *testing.T) {
	stored := settings.Defaults()
	until := utils.UnixNow() + 600
	stored.PauseUntil = &until
	g, sink := newTestGate(stored, 12)

	g.MaybeNotify(message.Message{ID: 1, Priority: 9})

	assert.Empty(t, sink.delivered)
}

func TestMaybeNotify_ExpiredPauseDelivers(t *testing.T) {
	stored := settings.Defaults()
	until := utils.UnixNow() - 600
	stored.PauseUntil = &until
	g, sink := newTestGate(stored, 12)

	g.MaybeNotify(message.Message{ID: 1, Priority: 9})

	assert.Len(t, sink.delivered, 1)
}

func TestMaybeNotify_SuppressedDuringQuietHours(t *testing.T) {
	quiet := func(v int) *int { return &v }
	stored := settings.Defaults()
	stored.QuietHoursStart = quiet(22)
	stored.QuietHoursEnd = quiet(7)

	g, sink := newTestGate(stored, 23)
	g.MaybeNotify(message.Message{ID: 1, Priority: 9})
	assert.Empty(t, sink.delivered)

	g, sink = newTestGate(stored, 12)
	g.MaybeNotify(message.Message{ID: 1, Priority: 9})
	assert.Len(t, sink.delivered, 1)
}

func TestMaybeNotify_SettingsErrorSuppresses(t *testing.T) {
	sink := &recordingNotifier{}
	g := NewGate(zap.NewNop(), &fakeStore{err: assert.AnError}, sink)

	g.MaybeNotify(message.Message{ID: 1, Priority: 9})

	assert.Empty(t, sink.delivered)
}
