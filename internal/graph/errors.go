package graph

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	apperrors "mailpulse/pkg/errors"
)

type operation string

const (
	opCreate operation = "create"
	opRenew  operation = "renew"
	opDelete operation = "delete"
	opList   operation = "list"
	opFetch  operation = "fetch"
)

// classifyResponse maps a non-2xx provider response onto the error taxonomy.
// 400 on an id-addressed subscription call means the provider no longer
// knows the id.
func classifyResponse(op operation, resp *http.Response, body []byte) error {
	var apiErr apiErrorBody
	_ = json.Unmarshal(body, &apiErr)

	details := map[string]interface{}{
		"operation":   string(op),
		"status_code": resp.StatusCode,
	}
	if apiErr.Error.Code != "" {
		details["provider_code"] = apiErr.Error.Code
	}
	if apiErr.Error.Message != "" {
		details["message"] = apiErr.Error.Message
	}
	if ra := resp.Header.Get("Retry-After"); ra != "" {
		details["retry_after"] = ra
	}

	status := resp.StatusCode
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return apperrors.ErrAuthFailure.WithDetails(details)
	case status == http.StatusNotFound || status == http.StatusGone:
		if op == opFetch {
			return apperrors.ErrNotFound.WithDetails(details)
		}
		return apperrors.ErrSubscriptionGone.WithDetails(details)
	case status == http.StatusBadRequest:
		switch op {
		case opRenew, opDelete:
			return apperrors.ErrSubscriptionGone.WithDetails(details)
		case opCreate:
			// Usually the callback failed its validation handshake.
			return apperrors.ErrTransient.WithDetails(details)
		default:
			return apperrors.ErrValidation.WithDetails(details)
		}
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests || status >= 500:
		return apperrors.ErrTransient.WithDetails(details)
	default:
		return apperrors.ErrInternal.WithDetails(details)
	}
}

// classifyTransportError handles failures before a response is available,
// including token acquisition.
func classifyTransportError(op operation, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		code := 0
		if retrieveErr.Response != nil {
			code = retrieveErr.Response.StatusCode
		}
		if code >= 500 || code == http.StatusTooManyRequests {
			return apperrors.ErrTransient.
				WithDetail("operation", string(op)).
				WithDetail("token_status", code).
				WithCause(err)
		}
		return apperrors.ErrAuthFailure.
			WithDetail("operation", string(op)).
			WithDetail("token_error", strings.TrimSpace(retrieveErr.ErrorCode)).
			WithCause(err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.ErrTimeout.WithDetail("operation", string(op)).WithCause(err)
	}

	return apperrors.ErrTransient.WithDetail("operation", string(op)).WithCause(err)
}
