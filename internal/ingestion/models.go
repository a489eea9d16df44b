package ingestion

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
)

// Envelope is the webhook body. Entries stay raw so one malformed
// notification cannot fail the whole delivery.
type Envelope struct {
	Value []json.RawMessage `json:"value"`
}

type ResourceData struct {
	ID        string `json:"id"`
	ODataType string `json:"@odata.type,omitempty"`
	ODataID   string `json:"@odata.id,omitempty"`
}

// Notification is one change notification from the provider.
type Notification struct {
	ID                             string        `json:"id,omitempty"`
	SubscriptionID                 string        `json:"subscriptionId" validate:"required"`
	SubscriptionExpirationDateTime string        `json:"subscriptionExpirationDateTime,omitempty"`
	ChangeType                     string        `json:"changeType" validate:"required"`
	Resource                       string        `json:"resource" validate:"required"`
	ResourceData                   *ResourceData `json:"resourceData,omitempty"`
	ClientState                    string        `json:"clientState" validate:"max=128"`
	TenantID                       string        `json:"tenantId,omitempty"`

	ReceivedAt time.Time `json:"-"`
}

// ResourceID is the changed item's id when the provider sent one.
func (n *Notification) ResourceID() string {
	if n.ResourceData == nil {
		return ""
	}
	return n.ResourceData.ID
}

var validate = validator.New()

func (n *Notification) Validate() error {
	return validate.Struct(n)
}

// Outcome labels for notifications_total.
const (
	OutcomeAccepted           = "accepted"
	OutcomeDuplicate          = "duplicate"
	OutcomeMalformed          = "malformed"
	OutcomeClientStateInvalid = "client_state_mismatch"
	OutcomeQueueFull          = "queue_full"
	OutcomeLedgerDenied       = "ledger_denied"
	OutcomeIndexed            = "indexed"
	OutcomeEmptyBody          = "empty_body"
	OutcomeFiltered           = "filtered"
	OutcomeMessageGone        = "message_gone"
	OutcomeFailed             = "failed"
)
