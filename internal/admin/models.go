package admin

import (
	"time"

	"mailpulse/internal/subscription"
)

// SubscriptionResponse is the operator view of the current record. The
// client state is never exposed.
type SubscriptionResponse struct {
	ID               string    `json:"id,omitempty"`
	Resource         string    `json:"resource"`
	NotificationURL  string    `json:"notification_url"`
	ChangeType       string    `json:"change_type"`
	Status           string    `json:"status"`
	ExpiresAt        time.Time `json:"expires_at,omitempty"`
	RemainingSeconds int64     `json:"remaining_seconds"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
	LastError        string    `json:"last_error,omitempty"`
}

// ToResponse builds the operator view of rec as of now.
func ToResponse(rec subscription.Record, now time.Time) SubscriptionResponse {
	return SubscriptionResponse{
		ID:               rec.ID,
		Resource:         rec.Resource,
		NotificationURL:  rec.NotificationURL,
		ChangeType:       rec.ChangeType,
		Status:           string(rec.Status),
		ExpiresAt:        rec.ExpiresAt,
		RemainingSeconds: int64(rec.Remaining(now).Seconds()),
		CreatedAt:        rec.CreatedAt,
		UpdatedAt:        rec.UpdatedAt,
		LastError:        rec.LastError,
	}
}
