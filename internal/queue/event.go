// Package queue defines message payloads exchanged over the message broker.
package queue

// ActivityQueueName is the durable queue carrying mobile usage activity.
const ActivityQueueName = "mobile.activity"

// Activity names what a mobile client did.
const (
	ActivitySyncCall        = "SYNC_CALL"
	ActivityRegenerateToken = "REGENERATE_TOKEN"
	ActivityLogout          = "LOGOUT"
)

// Activity statuses.  Rejected activities carry the rejection label instead.
const (
	StatusSuccess = "SUCCESS"
	StatusError   = "ERROR"
)

// ActivityEvent is published for every mobile token, sync and logout call.
// It is an audit trail only; no admission decision depends on it.
type ActivityEvent struct {
	UserID     uint64 `json:"user_id"`
	CustomerID uint64 `json:"customer_id"`
	AppVariant string `json:"app_type"`
	DeviceID   string `json:"imei"`
	Activity   string `json:"activity"`
	Status     string `json:"status"`
	OccurredAt string `json:"occurred_at"`
}
