package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Key carries the notification fields that identify a delivery.
type Key struct {
	NotificationID string
	SubscriptionID string
	ResourceID     string
	Resource       string
	ChangeType     string
	ReceivedAt     time.Time
}

// Hasher derives ledger identities. Redeliveries of the same change arriving
// within one bucket collapse to the same identity.
type Hasher struct {
	bucket time.Duration
}

func NewHasher(bucket time.Duration) *Hasher {
	return &Hasher{bucket: bucket}
}

// Identity returns the provider-assigned id when present, otherwise a
// sha256 over the stable notification fields.
func (h *Hasher) Identity(k Key) string {
	if id := strings.TrimSpace(k.NotificationID); id != "" {
		return "id:" + id
	}

	target := k.ResourceID
	if target == "" {
		target = k.Resource
	}

	received := k.ReceivedAt.UTC()
	if h.bucket > 0 {
		received = received.Truncate(h.bucket)
	}

	var builder strings.Builder
	for _, part := range []string{k.SubscriptionID, target, strings.ToLower(k.ChangeType)} {
		builder.WriteString(part)
		builder.WriteByte('|')
	}
	builder.WriteString(fmt.Sprintf("%d", received.Unix()))

	sum := sha256.Sum256([]byte(builder.String()))
	return "h:" + hex.EncodeToString(sum[:])
}
