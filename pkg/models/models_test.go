package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentEnvelopeBuilder(t *testing.T) {
	env := NewDocumentEnvelopeBuilder().
		WithSource("mailpulse").
		WithDocument("AAMkAD", "hello", map[string]interface{}{"subject": "Hi"}).
		WithNotification("id:n-1", "sub-1").
		WithTraceID("trace-1").
		Build()

	assert.NotEmpty(t, env.ID)
	assert.False(t, env.Timestamp.IsZero())
	assert.Equal(t, "AAMkAD", env.Document.ID)
	assert.Equal(t, "Hi", env.Document.Metadata["subject"])
	assert.Equal(t, "id:n-1", env.Metadata.NotificationID)
	assert.Equal(t, "trace-1", env.Metadata.TraceID)
	require.NoError(t, ValidateDocumentEnvelope(env))
}

func TestValidateDocumentEnvelope(t *testing.T) {
	valid := func() *DocumentEnvelope {
		return &DocumentEnvelope{
			ID:        "env-1",
			Timestamp: time.Now(),
			Document:  Document{ID: "m-1", Text: "body"},
		}
	}

	tests := []struct {
		name   string
		mutate func(e *DocumentEnvelope)
		field  string
	}{
		{"missing id", func(e *DocumentEnvelope) { e.ID = "" }, "id"},
		{"missing timestamp", func(e *DocumentEnvelope) { e.Timestamp = time.Time{} }, "timestamp"},
		{"missing document id", func(e *DocumentEnvelope) { e.Document.ID = "" }, "document.id"},
		{"empty text", func(e *DocumentEnvelope) { e.Document.Text = "" }, "document.text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := valid()
			tt.mutate(env)

			err := ValidateDocumentEnvelope(env)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}

	assert.Error(t, ValidateDocumentEnvelope(nil))
}
