package models

import "fmt"

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// ValidateDocumentEnvelope rejects envelopes the index worker cannot act on.
func ValidateDocumentEnvelope(env *DocumentEnvelope) error {
	if env == nil {
		return &ValidationError{Field: "envelope", Message: "document envelope cannot be nil"}
	}

	if env.ID == "" {
		return &ValidationError{Field: "id", Message: "envelope ID is required"}
	}

	if env.Timestamp.IsZero() {
		return &ValidationError{Field: "timestamp", Message: "envelope timestamp is required"}
	}

	if env.Document.ID == "" {
		return &ValidationError{Field: "document.id", Message: "document ID is required"}
	}

	if env.Document.Text == "" {
		return &ValidationError{Field: "document.text", Message: "document text is required"}
	}

	return nil
}
