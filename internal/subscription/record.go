package subscription

import "time"

type Status string

const (
	StatusPending       Status = "Pending"
	StatusActive        Status = "Active"
	StatusRenewalFailed Status = "RenewalFailed"
	StatusExpired       Status = "Expired"
	StatusDeleted       Status = "Deleted"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{StatusPending, StatusActive, StatusRenewalFailed, StatusExpired, StatusDeleted}

// Record is the persisted state of the single subscription watched by this
// instance.
type Record struct {
	ID              string    `json:"id" db:"id" bson:"subscription_id"`
	Resource        string    `json:"resource" db:"resource" bson:"_id"`
	ClientState     string    `json:"client_state" db:"client_state" bson:"client_state"`
	NotificationURL string    `json:"notification_url" db:"notification_url" bson:"notification_url"`
	ChangeType      string    `json:"change_type" db:"change_type" bson:"change_type"`
	Status          Status    `json:"status" db:"status" bson:"status"`
	ExpiresAt       time.Time `json:"expires_at" db:"expires_at" bson:"expires_at"`
	CreatedAt       time.Time `json:"created_at" db:"created_at" bson:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at" bson:"updated_at"`
	LastError       string    `json:"last_error,omitempty" db:"last_error" bson:"last_error,omitempty"`
}

// AcceptsNotifications reports whether deliveries signed with ClientState
// should be trusted.
func (r *Record) AcceptsNotifications() bool {
	return r != nil && r.ID != "" && (r.Status == StatusActive || r.Status == StatusRenewalFailed)
}

// Remaining is the lifetime left at now, never negative.
func (r *Record) Remaining(now time.Time) time.Duration {
	if r == nil || r.ExpiresAt.IsZero() {
		return 0
	}
	if d := r.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

func (r *Record) clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}
