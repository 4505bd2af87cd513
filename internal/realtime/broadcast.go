package realtime

// Typed broadcast surface consumed by business logic. Each method is a
// fixed-type wrapper over BroadcastToFestival.

// BroadcastStats pushes a live stats snapshot to a festival's dashboards.
func (h *Hub) BroadcastStats(festivalID string, stats StatsPayload) {
	h.BroadcastToFestival(festivalID, TypeStats, stats)
}

// BroadcastTransaction pushes a sale event.
func (h *Hub) BroadcastTransaction(festivalID string, tx TransactionPayload) {
	h.BroadcastToFestival(festivalID, TypeTransaction, tx)
}

// BroadcastAlert pushes an operator alert.
func (h *Hub) BroadcastAlert(festivalID string, alert AlertPayload) {
	h.BroadcastToFestival(festivalID, TypeAlert, alert)
}

// BroadcastEntry pushes a gate scan event.
func (h *Hub) BroadcastEntry(festivalID string, entry EntryPayload) {
	h.BroadcastToFestival(festivalID, TypeEntry, entry)
}

// BroadcastRevenueUpdate pushes an incremental revenue change.
func (h *Hub) BroadcastRevenueUpdate(festivalID string, update RevenueUpdatePayload) {
	h.BroadcastToFestival(festivalID, TypeRevenueUpdate, update)
}

// BroadcastUserActivity pushes a staff or attendee action.
func (h *Hub) BroadcastUserActivity(festivalID string, activity UserActivityPayload) {
	h.BroadcastToFestival(festivalID, TypeUserActivity, activity)
}

// BroadcastInventoryUpdate pushes a vendor stock change.
func (h *Hub) BroadcastInventoryUpdate(festivalID string, update InventoryUpdatePayload) {
	h.BroadcastToFestival(festivalID, TypeInventoryUpdate, update)
}

// BroadcastSecurityAlert pushes a security incident.
func (h *Hub) BroadcastSecurityAlert(festivalID string, alert SecurityAlertPayload) {
	h.BroadcastToFestival(festivalID, TypeSecurityAlert, alert)
}
