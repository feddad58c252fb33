// internal/platform/authx/negotiator.go
package authx

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"fleetops/internal/core/domain"
	"fleetops/internal/core/ports"
	"fleetops/internal/platform/errors"
	"fleetops/internal/platform/logx"
)

// Negotiator tries the target's ordered scheme list against a transport
// primitive until one scheme yields a successful transport status.
type Negotiator struct {
	doer   ports.HTTPDoer
	logger logx.Logger
}

// New creates a negotiator over the given transport primitive.
func New(doer ports.HTTPDoer, logger logx.Logger) *Negotiator {
	if logger == nil {
		logger = logx.New()
	}
	return &Negotiator{
		doer:   doer,
		logger: logger.With("component", "auth-negotiator"),
	}
}

// SchemeFailure records why one scheme did not produce a successful response.
type SchemeFailure struct {
	Scheme domain.SchemeKind
	Reason string
}

// NegotiationError aggregates the last failure per scheme when every scheme
// in the ordered list failed.
type NegotiationError struct {
	Failures []SchemeFailure
}

// Error implements the error interface.
func (e *NegotiationError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Scheme, f.Reason))
	}
	return "all auth schemes failed: " + strings.Join(parts, "; ")
}

// Unwrap maps the aggregate to the unauthorized sentinel so callers can
// classify it with errors.Is.
func (e *NegotiationError) Unwrap() error {
	return errors.ErrUnauthorized
}

// Do issues req against the target trying schemes strictly in the supplied
// order. It stops at the first response with a successful transport status.
//
// If no scheme ever reaches the target (pure transport failures, no HTTP
// verdict), the last transport error is returned instead of an auth error.
func (n *Negotiator) Do(ctx context.Context, req ports.Request, schemes []domain.AuthScheme) (*ports.Response, error) {
	if len(schemes) == 0 {
		schemes = []domain.AuthScheme{domain.NoneScheme()}
	}

	failures := make([]SchemeFailure, 0, len(schemes))
	var lastTransportErr error
	gotVerdict := false

	for _, scheme := range schemes {
		resp, err := n.tryScheme(ctx, req, scheme)
		if err != nil {
			if errors.IsInvalidResponse(err) {
				// Malformed challenge: the scheme is skipped, not retried.
				gotVerdict = true
				failures = append(failures, SchemeFailure{Scheme: scheme.Kind, Reason: err.Error()})
				n.logger.Warn("scheme skipped", "scheme", string(scheme.Kind), "reason", err.Error())
				continue
			}
			lastTransportErr = err
			failures = append(failures, SchemeFailure{Scheme: scheme.Kind, Reason: err.Error()})
			n.logger.Debug("scheme transport failure", "scheme", string(scheme.Kind), "error", err.Error())
			continue
		}

		gotVerdict = true
		if resp.OK() {
			n.logger.Debug("scheme accepted", "scheme", string(scheme.Kind), "status", resp.StatusCode)
			return resp, nil
		}

		failures = append(failures, SchemeFailure{
			Scheme: scheme.Kind,
			Reason: fmt.Sprintf("HTTP %d", resp.StatusCode),
		})
		n.logger.Debug("scheme rejected", "scheme", string(scheme.Kind), "status", resp.StatusCode)
	}

	if !gotVerdict && lastTransportErr != nil {
		return nil, lastTransportErr
	}
	return nil, &NegotiationError{Failures: failures}
}

// tryScheme issues the request under one scheme and returns its verdict.
func (n *Negotiator) tryScheme(ctx context.Context, req ports.Request, scheme domain.AuthScheme) (*ports.Response, error) {
	if err := scheme.Validate(); err != nil {
		return nil, errors.Wrap(errors.ErrInvalidResponse, err.Error())
	}

	switch scheme.Kind {
	case domain.SchemeNone:
		return n.doer.Do(ctx, req)

	case domain.SchemeBasic:
		authed := withHeader(req, "Authorization", basicAuthorization(scheme.User, scheme.Secret))
		return n.doer.Do(ctx, authed)

	case domain.SchemeDigest:
		return n.tryDigest(ctx, req, scheme)

	default:
		return nil, errors.Wrapf(errors.ErrInvalidResponse, "unknown scheme %q", scheme.Kind)
	}
}

// tryDigest performs the two-step digest round-trip:
// unauthenticated request, challenge parse, authenticated re-issue.
// Whatever status the second request returns is the scheme's verdict.
func (n *Negotiator) tryDigest(ctx context.Context, req ports.Request, scheme domain.AuthScheme) (*ports.Response, error) {
	first, err := n.doer.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	if first.OK() {
		// Endpoint did not challenge; nothing to negotiate.
		return first, nil
	}
	if !first.Unauthorized() {
		return first, nil
	}

	header := responseHeader(first, "Www-Authenticate")
	challenge, err := ParseChallenge(header)
	if err != nil {
		return nil, err
	}

	uri := requestURI(req.URL)
	authed := withHeader(req, "Authorization", challenge.Authorization(scheme.User, scheme.Secret, req.Method, uri))
	return n.doer.Do(ctx, authed)
}

// basicAuthorization builds a Basic Authorization header value.
func basicAuthorization(user, secret string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+secret))
}

// withHeader returns a copy of req with one extra header set.
func withHeader(req ports.Request, key, value string) ports.Request {
	headers := make(map[string]string, len(req.Header)+1)
	for k, v := range req.Header {
		headers[k] = v
	}
	headers[key] = value
	req.Header = headers
	return req
}

// responseHeader looks up a response header case-insensitively.
func responseHeader(resp *ports.Response, key string) string {
	for k, v := range resp.Header {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

// requestURI extracts the request-uri the digest hash must cover.
func requestURI(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Path == "" {
		return "/"
	}
	if u.RawQuery != "" {
		return u.Path + "?" + u.RawQuery
	}
	return u.Path
}
