package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"certify/internal/registry/models"
)

// HTTPDoer is the minimal interface needed from an HTTP client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPConfig configures an HTTP ledger.
type HTTPConfig struct {
	BaseURL string
	// NetworkID is the network the caller expects. Empty skips the check.
	NetworkID string
	// Token is the issuer bearer token sent with state changes.
	Token      string
	Timeout    time.Duration
	HTTPClient HTTPDoer
	// ConfirmTimeout bounds how long Wait polls for a commit.
	ConfirmTimeout time.Duration
	// UserAgent identifies the caller in server logs.
	UserAgent string
}

// HTTP is a Ledger backed by a remote registry server.
type HTTP struct {
	baseURL        string
	networkID      string
	token          string
	userAgent      string
	client         HTTPDoer
	confirmTimeout time.Duration

	mu              sync.Mutex
	networkVerified bool
}

// NewHTTP creates an HTTP ledger.
func NewHTTP(cfg HTTPConfig) *HTTP {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.ConfirmTimeout == 0 {
		cfg.ConfirmTimeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "certify-client"
	}
	doer := cfg.HTTPClient
	if doer == nil {
		doer = &http.Client{Timeout: cfg.Timeout}
	}
	return &HTTP{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		networkID:      cfg.NetworkID,
		token:          cfg.Token,
		userAgent:      cfg.UserAgent,
		client:         doer,
		confirmTimeout: cfg.ConfirmTimeout,
	}
}

// NetworkInfo is what the server advertises on /network.
type NetworkInfo struct {
	NetworkID       string `json:"network_id"`
	DigestAlgorithm string `json:"digest_algorithm"`
}

// Network fetches the server's network info.
func (c *HTTP) Network(ctx context.Context) (NetworkInfo, error) {
	var info NetworkInfo
	err := c.do(ctx, http.MethodGet, "/network", nil, false, &info)
	return info, err
}

// ensureNetwork refuses to talk to a server on another network. A successful
// check is remembered for the life of the client.
func (c *HTTP) ensureNetwork(ctx context.Context) error {
	if c.networkID == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.networkVerified {
		return nil
	}
	info, err := c.Network(ctx)
	if err != nil {
		return err
	}
	if info.NetworkID != c.networkID {
		return fmt.Errorf("%w: expected %q, server is on %q", ErrWrongNetwork, c.networkID, info.NetworkID)
	}
	c.networkVerified = true
	return nil
}

func (c *HTTP) SubmitStateChange(ctx context.Context, call Call) (CommitHandle, error) {
	var (
		path string
		body any
	)
	switch cl := call.(type) {
	case InsertCall:
		path = "/credentials"
		body = insertBody{
			IdentityKey:      cl.Command.IdentityKey.String(),
			OwnerName:        cl.Command.OwnerName,
			Program:          cl.Command.Program,
			GraduationPeriod: cl.Command.GraduationPeriod,
			DocumentDigest:   cl.Command.DocumentDigest,
		}
	case InvalidateCall:
		path = keyedPath("/registry/invalidate", cl.IdentityKey)
	default:
		return nil, &UnsupportedCallError{Operation: call.Operation()}
	}

	if c.token == "" {
		return nil, ErrSignerRequired
	}
	if err := c.ensureNetwork(ctx); err != nil {
		return nil, err
	}

	var receipt models.Receipt
	if err := c.do(ctx, http.MethodPost, path, body, true, &receipt); err != nil {
		return nil, fmt.Errorf("%s: %w", call.Operation(), err)
	}
	return &pendingCommit{client: c, submitted: receipt}, nil
}

func (c *HTTP) ReadState(ctx context.Context, call Call) (any, error) {
	switch cl := call.(type) {
	case LookupCall:
		var record models.CredentialRecord
		if err := c.do(ctx, http.MethodGet, keyedPath("/registry/credential", cl.IdentityKey), nil, false, &record); err != nil {
			return nil, fmt.Errorf("lookup: %w", err)
		}
		return record, nil
	case VerifyDigestCall:
		var res struct {
			Valid bool `json:"valid"`
		}
		body := map[string]string{"document_digest": cl.DocumentDigest}
		if err := c.do(ctx, http.MethodPost, keyedPath("/registry/verify", cl.IdentityKey), body, false, &res); err != nil {
			return nil, fmt.Errorf("verify_digest: %w", err)
		}
		return res.Valid, nil
	case IsRegisteredCall:
		var res struct {
			Registered bool `json:"registered"`
		}
		if err := c.do(ctx, http.MethodGet, keyedPath("/registry/registered", cl.IdentityKey), nil, false, &res); err != nil {
			return nil, fmt.Errorf("is_registered: %w", err)
		}
		return res.Registered, nil
	default:
		return nil, &UnsupportedCallError{Operation: call.Operation()}
	}
}

// Commit fetches the receipt journaled under sequence.
func (c *HTTP) Commit(ctx context.Context, sequence uint64) (*models.Receipt, error) {
	var receipt models.Receipt
	path := "/ledger/commits/" + strconv.FormatUint(sequence, 10)
	if err := c.do(ctx, http.MethodGet, path, nil, false, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

type insertBody struct {
	IdentityKey      string `json:"identity_key"`
	OwnerName        string `json:"owner_name"`
	Program          string `json:"program"`
	GraduationPeriod string `json:"graduation_period"`
	DocumentDigest   string `json:"document_digest"`
}

// keyedPath carries key in the query string so that any key, the empty one
// included, survives the trip.
func keyedPath(path string, key models.IdentityKey) string {
	return path + "?" + url.Values{"identity_key": {key.String()}}.Encode()
}

// APIError is a non-2xx answer from the server. It unwraps to one of the
// package errors when the failure is actionable.
type APIError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *APIError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("registry returned %d %s: %s", e.StatusCode, e.Code, e.Description)
	}
	return fmt.Sprintf("registry returned %d %s", e.StatusCode, e.Code)
}

func (e *APIError) Unwrap() error {
	switch {
	case e.Code == "signer_required":
		return ErrSignerRequired
	case e.Code == "signer_rejected":
		return ErrSignerRejected
	case e.StatusCode == http.StatusServiceUnavailable,
		e.StatusCode == http.StatusGatewayTimeout,
		e.StatusCode == http.StatusBadGateway:
		return ErrUnavailable
	default:
		return nil
	}
}

func (c *HTTP) do(ctx context.Context, method, path string, body any, auth bool, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close() //nolint:errcheck // response body

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var errBody struct {
			Error            string `json:"error"`
			ErrorDescription string `json:"error_description"`
		}
		if json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&errBody) == nil {
			apiErr.Code = errBody.Error
			apiErr.Description = errBody.ErrorDescription
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// pendingCommit confirms a submitted change by reading it back from the
// commit journal.
type pendingCommit struct {
	client    *HTTP
	submitted models.Receipt
}

func (p *pendingCommit) Wait(ctx context.Context) (*models.Receipt, error) {
	if p.submitted.Sequence == 0 {
		return nil, fmt.Errorf("%w: server returned no sequence", ErrNotCommitted)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.MaxInterval = 2 * time.Second
	policy.MaxElapsedTime = p.client.confirmTimeout

	var confirmed *models.Receipt
	op := func() error {
		receipt, err := p.client.Commit(ctx, p.submitted.Sequence)
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.StatusCode != http.StatusNotFound && !errors.Is(err, ErrUnavailable) {
				return backoff.Permanent(err)
			}
			return err
		}
		if receipt.TxID != p.submitted.TxID {
			return backoff.Permanent(fmt.Errorf("%w: sequence %d holds transaction %s, not %s",
				ErrNotCommitted, p.submitted.Sequence, receipt.TxID, p.submitted.TxID))
		}
		confirmed = receipt
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(policy, ctx)); err != nil {
		if errors.Is(err, ErrNotCommitted) || ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrNotCommitted, err)
	}
	return confirmed, nil
}
