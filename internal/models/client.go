package models

// ClientState is the server-side bookkeeping for one device. Pending counts
// are self-reported by the device on ping or batch; the server cannot see a
// device's queue directly.
type ClientState struct {
	PendingByTable map[string]int `json:"pending_by_table"`
	ClientID       string         `json:"client_id"`
	LastError      string         `json:"last_error"`
	LastSync       int64          `json:"last_sync"`    // курсор change log последнего батча
	LastSeenAt     int64          `json:"last_seen_at"` // unix millis
}

// TotalPending суммирует очередь по всем таблицам
func (s *ClientState) TotalPending() int {
	total := 0
	for _, n := range s.PendingByTable {
		total += n
	}
	return total
}
