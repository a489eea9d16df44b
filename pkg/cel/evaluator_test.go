package cel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleVars() MessageVars {
	return MessageVars{
		ID:             "AAMkAD",
		Subject:        "Invoice #42",
		BodyPreview:    "Please find attached",
		From:           "billing@example.com",
		FromName:       "Billing",
		To:             []string{"ops@example.com"},
		HasAttachments: true,
		SentAt:         time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC),
		Resource:       "users/u-1/mailFolders('Inbox')/messages/AAMkAD",
		ChangeType:     "created",
	}
}

func TestValidateFilterExpression(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	tests := []struct {
		name      string
		expr      string
		wantError bool
	}{
		{"valid comparison", `message.subject == "hi"`, false},
		{"valid membership", `"a@b.c" in message.cc`, false},
		{"invalid syntax", `invalid syntax here!!!`, true},
		{"undefined variable", `payload.status == "active"`, true},
		{"non bool result", `size(message.to)`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := eval.ValidateFilterExpression(tt.expr)
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFilter_Matches(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	tests := []struct {
		name string
		expr string
		want bool
	}{
		{"subject keyword", `message.subject.lowerAscii().contains("invoice")`, true},
		{"sender domain", `message.from.endsWith("@other.com")`, false},
		{"attachments", `message.has_attachments`, true},
		{"empty cc list", `size(message.cc) == 0`, true},
		{"timestamp", `sent_at > timestamp("2026-01-01T00:00:00Z")`, true},
		{"change type", `change_type == "updated"`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := eval.CompileFilter(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.expr, f.Expression())

			got, err := f.Matches(context.Background(), sampleVars())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFilter_NonBoolDynResult(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	f, err := eval.CompileFilter(`message.subject`)
	require.NoError(t, err)

	_, err = f.Matches(context.Background(), sampleVars())
	assert.Error(t, err)
}

func TestFilterExpressionExamplesCompile(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	for name, expr := range FilterExpressionExamples {
		t.Run(name, func(t *testing.T) {
			f, err := eval.CompileFilter(expr)
			require.NoError(t, err)

			_, err = f.Matches(context.Background(), sampleVars())
			assert.NoError(t, err)
		})
	}
}
