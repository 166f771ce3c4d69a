// Package chain is the transport to the blockchain node: account lookups,
// transaction submission, confirmation polling, and faucet funding.
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sota-zk-labs/jayce/internal/core/domain"
)

const (
	// DefaultTimeout is the default per-request HTTP timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultConfirmPollInterval is how often Confirm polls for execution.
	DefaultConfirmPollInterval = 1 * time.Second

	// DefaultConfirmDeadline bounds how long Confirm waits for execution.
	DefaultConfirmDeadline = 60 * time.Second
)

// =============================================================================
// Client
// =============================================================================

// Client is a lightweight REST client for the target node.
type Client struct {
	baseURL      string
	faucetURL    string
	httpClient   *http.Client
	pollInterval time.Duration
	confirmAfter time.Duration
}

// Option configures the client.
type Option func(*Client)

// WithFaucetURL sets the faucet endpoint used by Fund.
func WithFaucetURL(url string) Option {
	return func(c *Client) {
		c.faucetURL = strings.TrimRight(url, "/")
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithConfirmPolicy tunes confirmation polling.
func WithConfirmPolicy(interval, deadline time.Duration) Option {
	return func(c *Client) {
		c.pollInterval = interval
		c.confirmAfter = deadline
	}
}

// NewClient creates a client for the given REST endpoint.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   &http.Client{Timeout: DefaultTimeout},
		pollInterval: DefaultConfirmPollInterval,
		confirmAfter: DefaultConfirmDeadline,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// =============================================================================
// Account
// =============================================================================

// Account fetches the on-chain state of an account, including its current
// sequence number.
func (c *Client) Account(ctx context.Context, addr domain.Address) (*AccountInfo, error) {
	var info AccountInfo
	if err := c.get(ctx, "Account", "/accounts/"+addr.Hex(), &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// =============================================================================
// Submit
// =============================================================================

// Submit sends a signed transaction to the node and returns its hash. The
// returned error, if any, is a SubmitError classified transient or permanent.
func (c *Client) Submit(ctx context.Context, tx *Transaction) (*PendingTransaction, error) {
	body, err := json.Marshal(tx)
	if err != nil {
		return nil, NewSubmitError("Submit", KindPermanent, "cannot encode transaction", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transactions", bytes.NewReader(body))
	if err != nil {
		return nil, NewSubmitError("Submit", KindPermanent, "cannot build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, NewSubmitError("Submit", KindTransient, err.Error(), ErrNodeUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusOK {
		var pending PendingTransaction
		if err := json.NewDecoder(resp.Body).Decode(&pending); err != nil {
			return nil, NewSubmitError("Submit", KindTransient, "cannot decode response", err)
		}
		return &pending, nil
	}

	return nil, c.classify("Submit", resp)
}

// =============================================================================
// Confirm
// =============================================================================

// Confirm polls the node until the transaction executes, then reports its
// outcome. A transaction that executed but aborted is a permanent failure.
func (c *Client) Confirm(ctx context.Context, txHash string) (*TransactionInfo, error) {
	deadline := time.Now().Add(c.confirmAfter)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		var info TransactionInfo
		err := c.get(ctx, "Confirm", "/transactions/by_hash/"+txHash, &info)
		switch {
		case err == nil && !info.Pending():
			if !info.Success {
				return nil, NewSubmitError("Confirm", KindPermanent,
					fmt.Sprintf("transaction %s aborted: %s", txHash, info.VMStatus),
					ErrTransactionFailed)
			}
			return &info, nil
		case err != nil && !IsTransient(err):
			return nil, err
		}

		if time.Now().After(deadline) {
			return nil, NewSubmitError("Confirm", KindTransient,
				fmt.Sprintf("transaction %s still pending after %s", txHash, c.confirmAfter),
				ErrConfirmTimeout)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// =============================================================================
// Faucet
// =============================================================================

// Fund asks the faucet to credit the account. Only available on networks
// with a configured faucet endpoint.
func (c *Client) Fund(ctx context.Context, addr domain.Address, amount uint64) error {
	if c.faucetURL == "" {
		return NewSubmitError("Fund", KindPermanent, "no faucet endpoint configured", ErrTransactionRejected)
	}

	q := url.Values{}
	q.Set("address", addr.Hex())
	q.Set("amount", fmt.Sprintf("%d", amount))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.faucetURL+"/mint?"+q.Encode(), nil)
	if err != nil {
		return NewSubmitError("Fund", KindPermanent, "cannot build request", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return NewSubmitError("Fund", KindTransient, err.Error(), ErrNodeUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return c.classify("Fund", resp)
}

// =============================================================================
// Internals
// =============================================================================

func (c *Client) get(ctx context.Context, op, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return NewSubmitError(op, KindPermanent, "cannot build request", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return NewSubmitError(op, KindTransient, err.Error(), ErrNodeUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return NewSubmitError(op, KindTransient, "cannot decode response", err)
		}
		return nil
	}
	return c.classify(op, resp)
}

// classify turns a non-success HTTP response into a SubmitError with the
// right retry classification.
func (c *Client) classify(op string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var body errorBody
	_ = json.Unmarshal(raw, &body)
	msg := body.Message
	if msg == "" {
		msg = strings.TrimSpace(string(raw))
	}
	if msg == "" {
		msg = resp.Status
	}

	switch {
	case resp.StatusCode == http.StatusNotFound && op == "Confirm":
		// Accepted transactions 404 until the node indexes them; keep
		// polling rather than failing the module.
		return NewSubmitError(op, KindTransient, msg, ErrTransactionNotFound)

	case resp.StatusCode == http.StatusNotFound:
		return NewSubmitError(op, KindPermanent, msg, ErrAccountNotFound)

	case resp.StatusCode == http.StatusTooManyRequests:
		return NewSubmitError(op, KindTransient, msg, ErrRateLimited)

	case resp.StatusCode >= 500:
		return NewSubmitError(op, KindTransient, msg, ErrNodeUnavailable)

	case isSequenceMismatch(body, msg):
		// A lost race on the account counter, retryable after resync.
		return NewSubmitError(op, KindTransient, msg, ErrSequenceMismatch)

	case isInsufficientFunds(body, msg):
		return NewSubmitError(op, KindPermanent, msg, ErrInsufficientFunds)

	default:
		return NewSubmitError(op, KindPermanent, msg, ErrTransactionRejected)
	}
}

func isSequenceMismatch(body errorBody, msg string) bool {
	if body.ErrorCode == "sequence_number_too_old" || body.ErrorCode == "sequence_number_too_new" {
		return true
	}
	return strings.Contains(strings.ToUpper(msg), "SEQUENCE_NUMBER")
}

func isInsufficientFunds(body errorBody, msg string) bool {
	if body.ErrorCode == "insufficient_balance" {
		return true
	}
	return strings.Contains(strings.ToUpper(msg), "INSUFFICIENT_BALANCE")
}
