package shared

// SyncStatus tracks how a record relates to the offline clients. Records
// created server-side (or replayed from an upload batch) are SYNCED; records
// created synchronously with a client local_id start PENDING until the
// client acknowledges the server id.
type SyncStatus string

const (
	SyncStatusSynced   SyncStatus = "SYNCED"
	SyncStatusPending  SyncStatus = "PENDING"
	SyncStatusConflict SyncStatus = "CONFLICT"
)

// SyncStatusFor picks the initial status for a freshly created record.
func SyncStatusFor(localID *string) SyncStatus {
	if localID != nil && *localID != "" {
		return SyncStatusPending
	}
	return SyncStatusSynced
}
