package provider

import (
	"context"
	"errors"
	"net"
	"net/http"

	"crypto-summary-bot/internal/domain"
)

// classifyTransport maps a transport-level error to the source error
// taxonomy. Context deadlines and net timeouts become Timeout;
// everything else is Unreachable.
func classifyTransport(source string, err error) *domain.SourceError {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.NewSourceError(source, domain.ErrKindTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.NewSourceError(source, domain.ErrKindTimeout, err)
	}
	return domain.NewSourceError(source, domain.ErrKindUnreachable, err)
}

// classifyStatus maps a non-200 HTTP status to the taxonomy.
func classifyStatus(source string, status int, err error) *domain.SourceError {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return domain.NewSourceError(source, domain.ErrKindUnauthorized, err)
	case status == http.StatusTooManyRequests:
		return domain.NewSourceError(source, domain.ErrKindRateLimited, err)
	case status >= 500:
		return domain.NewSourceError(source, domain.ErrKindUnreachable, err)
	default:
		return domain.NewSourceError(source, domain.ErrKindMalformedResponse, err)
	}
}
