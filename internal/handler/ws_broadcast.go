package handler

// BroadcastVillageEvent implements service.Broadcaster using the WebSocket hub.
func (h *Hub) BroadcastVillageEvent(villageID string, eventType string, data any) {
	h.BroadcastToVillage(villageID, WSEvent{
		Type:      eventType,
		VillageID: villageID,
		Data:      data,
	})
}
