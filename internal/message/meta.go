package message

import (
	"fmt"
	"sync"
)

// AppMeta is the display metadata for a producer application.
type AppMeta struct {
	Name    string
	IconURL string
}

// MetaMap maps application ids to display metadata. It is refreshed
// wholesale on each successful application-list fetch and is not
// authoritative: unknown ids fall back to a synthesized label.
type MetaMap struct {
	mu   sync.RWMutex
	apps map[int64]AppMeta
}

// NewMetaMap creates an empty application metadata map
func NewMetaMap() *MetaMap {
	return &MetaMap{apps: make(map[int64]AppMeta)}
}

// Resolve returns the display name and icon URL for an application id.
func (m *MetaMap) Resolve(appID int64) (string, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if meta, ok := m.apps[appID]; ok {
		return meta.Name, meta.IconURL
	}
	return fmt.Sprintf("app:%d", appID), ""
}

// Replace swaps the whole map for a freshly fetched one.
func (m *MetaMap) Replace(next map[int64]AppMeta) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.apps = next
}

// FromWire converts a raw wire message into a cached message, decorating it
// with application metadata. Both the stream path and the snapshot fetch
// path go through here.
func FromWire(w WireMessage, meta *MetaMap) Message {
	name, icon := meta.Resolve(w.AppID)
	return Message{
		ID:       w.ID,
		AppID:    w.AppID,
		Title:    w.Title,
		Body:     w.Body,
		Priority: w.Priority,
		AppName:  name,
		AppIcon:  icon,
		Date:     w.Date,
	}
}
