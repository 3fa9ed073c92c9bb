package service

// Broadcaster pushes queue events to connected clients. Implemented by the
// WebSocket hub; NoopBroadcaster is used in tests and headless tooling.
type Broadcaster interface {
	BroadcastVillageEvent(villageID string, eventType string, data any)
}

// NoopBroadcaster discards all events.
type NoopBroadcaster struct{}

// BroadcastVillageEvent does nothing.
func (NoopBroadcaster) BroadcastVillageEvent(string, string, any) {}
