package graph

import "time"

// Subscription is the provider's view of a change-notification subscription.
type Subscription struct {
	ID                 string    `json:"id,omitempty"`
	Resource           string    `json:"resource"`
	ChangeType         string    `json:"changeType"`
	NotificationURL    string    `json:"notificationUrl"`
	ExpirationDateTime time.Time `json:"expirationDateTime"`
	ClientState        string    `json:"clientState,omitempty"`
}

// SubscriptionRequest is the create body.
type SubscriptionRequest struct {
	Resource        string
	ChangeType      string
	NotificationURL string
	ExpiresAt       time.Time
	ClientState     string
}

type EmailAddress struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

type Recipient struct {
	EmailAddress EmailAddress `json:"emailAddress"`
}

type ItemBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

// Message is the subset of a mail message the ingestion pipeline reads.
type Message struct {
	ID                string      `json:"id"`
	Subject           string      `json:"subject"`
	BodyPreview       string      `json:"bodyPreview"`
	Body              ItemBody    `json:"body"`
	From              Recipient   `json:"from"`
	ToRecipients      []Recipient `json:"toRecipients"`
	CcRecipients      []Recipient `json:"ccRecipients"`
	SentDateTime      time.Time   `json:"sentDateTime"`
	InternetMessageID string      `json:"internetMessageId"`
	HasAttachments    bool        `json:"hasAttachments"`
}

// Addresses flattens recipients to their address strings.
func Addresses(recipients []Recipient) []string {
	out := make([]string, 0, len(recipients))
	for _, r := range recipients {
		if r.EmailAddress.Address != "" {
			out = append(out, r.EmailAddress.Address)
		}
	}
	return out
}

const messageSelect = "id,subject,bodyPreview,body,from,toRecipients,ccRecipients,sentDateTime,internetMessageId,hasAttachments"

type createBody struct {
	ChangeType         string `json:"changeType"`
	NotificationURL    string `json:"notificationUrl"`
	Resource           string `json:"resource"`
	ExpirationDateTime string `json:"expirationDateTime"`
	ClientState        string `json:"clientState"`
}

type renewBody struct {
	ExpirationDateTime string `json:"expirationDateTime"`
}

type listResponse struct {
	Value    []Subscription `json:"value"`
	NextLink string         `json:"@odata.nextLink"`
}

type apiErrorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
