package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"

	"github.com/sony/gobreaker/v2"

	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/shared"
)

// ProviderError is a non-2xx provider response.
type ProviderError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: provider returned HTTP %d", e.Op, e.StatusCode)
}

// KindForStatus maps an HTTP status to an error kind.
func KindForStatus(status int) shared.ErrorKind {
	switch {
	case status == http.StatusTooManyRequests, status == http.StatusPaymentRequired:
		return shared.KindQuotaExceeded
	case status == http.StatusRequestTimeout, status >= 500:
		return shared.KindTransient
	case status >= 400:
		return shared.KindPermanent
	}
	return shared.KindTransient
}

// Classify wraps err in a [shared.TaskError] with a client-safe message.
//
// Errors that are already classified pass through unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var te *shared.TaskError
	if errors.As(err, &te) {
		return err
	}

	var pe *ProviderError
	switch {
	case errors.As(err, &pe):
		kind := KindForStatus(pe.StatusCode)
		return shared.NewTaskError(kind, statusMessage(kind, pe.StatusCode), err)
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return shared.NewTaskError(shared.KindTransient, "provider circuit open", err)
	case errors.Is(err, context.Canceled):
		return shared.NewTaskError(shared.KindCancelled, "provider call cancelled", err)
	case isTransientNetwork(err):
		return shared.NewTaskError(shared.KindTransient, "provider unreachable", err)
	}
	return shared.NewTaskError(shared.KindTransient, "provider call failed", err)
}

func statusMessage(kind shared.ErrorKind, status int) string {
	switch kind {
	case shared.KindQuotaExceeded:
		return "provider quota exceeded"
	case shared.KindPermanent:
		switch status {
		case http.StatusUnauthorized, http.StatusForbidden:
			return "provider rejected credentials"
		case http.StatusNotFound:
			return "account not found"
		}
		return "provider rejected request"
	}
	return fmt.Sprintf("provider unavailable (HTTP %d)", status)
}

func isTransientNetwork(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF)
}

// permanent builds a provider-side permanent failure that did not come from an HTTP status.
func permanent(message string) error {
	return shared.NewTaskError(shared.KindPermanent, message, shared.ErrPermanent)
}

// transient builds a provider-side transient failure that did not come from an HTTP status.
func transient(message string) error {
	return shared.NewTaskError(shared.KindTransient, message, shared.ErrTransient)
}
