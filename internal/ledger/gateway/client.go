// Package gateway talks to a ledger relay over HTTP. The relay holds the
// node connection and gas; this client only moves signed intents and queries.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"zkbadge/internal/ledger"
	"zkbadge/pkg/domain"
)

// Client implements ledger.Client against a relay.
type Client struct {
	baseURL     string
	registryRef string
	http        *http.Client
}

type Option func(*Client)

// WithHTTPClient replaces the default instrumented client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func New(baseURL, registryRef string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		registryRef: registryRef,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) RegisterMember(ctx context.Context, req ledger.RegisterMember) (*ledger.Receipt, error) {
	var out ledger.Receipt
	err := c.do(ctx, "register_member", http.MethodPost, "/v1/members/register",
		registerRequest{Registry: c.registryRef, Intent: req}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) VerifyBadge(ctx context.Context, badgeID string, claimed domain.Address) (bool, error) {
	var out verifyResponse
	path := "/v1/badges/" + url.PathEscape(badgeID) + "/verify?" + url.Values{"address": {claimed.String()}}.Encode()
	if err := c.do(ctx, "verify_badge", http.MethodGet, path, nil, &out); err != nil {
		return false, err
	}
	return out.Valid, nil
}

func (c *Client) IsDomainAllowed(ctx context.Context, emailDomain string) (bool, error) {
	var out allowedResponse
	path := "/v1/domains/allowed?" + url.Values{"domain": {emailDomain}}.Encode()
	if err := c.do(ctx, "is_domain_allowed", http.MethodGet, path, nil, &out); err != nil {
		return false, err
	}
	return out.Allowed, nil
}

func (c *Client) AddAllowedDomain(ctx context.Context, adminCap ledger.AdminCap, pattern string) (*ledger.Receipt, error) {
	var out ledger.Receipt
	err := c.do(ctx, "add_allowed_domain", http.MethodPost, "/v1/domains/add",
		domainRequest{Registry: c.registryRef, AdminCap: adminCap.ObjectID, Pattern: pattern}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) RemoveAllowedDomain(ctx context.Context, adminCap ledger.AdminCap, pattern string) (*ledger.Receipt, error) {
	var out ledger.Receipt
	err := c.do(ctx, "remove_allowed_domain", http.MethodPost, "/v1/domains/remove",
		domainRequest{Registry: c.registryRef, AdminCap: adminCap.ObjectID, Pattern: pattern}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) RevokeMembership(ctx context.Context, adminCap ledger.AdminCap, member domain.Address) (*ledger.Receipt, error) {
	var out ledger.Receipt
	err := c.do(ctx, "revoke_membership", http.MethodPost, "/v1/members/revoke",
		revokeRequest{Registry: c.registryRef, AdminCap: adminCap.ObjectID, Member: member}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) TransactionEffects(ctx context.Context, digest string) (*ledger.Effects, error) {
	var out ledger.Effects
	if err := c.do(ctx, "transaction_effects", http.MethodGet, "/v1/transactions/"+url.PathEscape(digest), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) MemberRecord(ctx context.Context, member domain.Address) (*ledger.MemberRecord, error) {
	var out ledger.MemberRecord
	if err := c.do(ctx, "member_record", http.MethodGet, "/v1/members/"+url.PathEscape(member.String()), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return ledger.NewError(ledger.CategoryMalformed, op, "encode request", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return ledger.NewError(ledger.CategoryMalformed, op, "build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return ledger.NewError(ledger.CategoryTimeout, op, "relay timed out", err)
		}
		return ledger.NewError(ledger.CategoryUnavailable, op, "relay unreachable", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return ledger.NewError(ledger.CategoryUnavailable, op, "read response", err)
	}
	if resp.StatusCode >= 300 {
		return decodeError(op, resp.StatusCode, raw)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return ledger.NewError(ledger.CategoryMalformed, op, "decode response", err)
	}
	return nil
}

func decodeError(op string, status int, raw []byte) error {
	var body errorResponse
	if err := json.Unmarshal(raw, &body); err == nil && body.Category != "" {
		return ledger.NewError(body.Category, op, body.Message, nil)
	}
	msg := fmt.Sprintf("relay returned %d", status)
	switch {
	case status == http.StatusGatewayTimeout || status == http.StatusRequestTimeout:
		return ledger.NewError(ledger.CategoryTimeout, op, msg, nil)
	case status == http.StatusTooManyRequests:
		return ledger.NewError(ledger.CategoryRateLimited, op, msg, nil)
	case status >= 500:
		return ledger.NewError(ledger.CategoryUnavailable, op, msg, nil)
	case status == http.StatusNotFound:
		return ledger.NewError(ledger.CategoryNotFound, op, msg, nil)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ledger.NewError(ledger.CategoryUnauthorized, op, msg, nil)
	case status == http.StatusPaymentRequired:
		return ledger.NewError(ledger.CategoryInsufficientGas, op, msg, nil)
	default:
		return ledger.NewError(ledger.CategoryMalformed, op, msg, nil)
	}
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

var _ ledger.Client = (*Client)(nil)
