// Package lenderapi is the client for the remote loan/payment service that owns
// the authoritative ledger. Only the pending-payment endpoints used by the
// reconciliation workflow are covered.
package lenderapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/loangraph/reconciler/internal/domain/payment"
)

const (
	opListPending = "list_pending"
	opConfirm     = "confirm_payment"
	opReject      = "reject_payment"

	maxResponseBytes = 4 << 20
)

type ListResult struct {
	Data       []payment.PendingLoanGroup `json:"data"`
	Pagination payment.Pagination         `json:"pagination"`
	// Degraded marks an empty stand-in for a listing the server failed to
	// produce. It is never a server response and must not be persisted.
	Degraded bool `json:"-"`
}

// Resolution is the confirm/reject response payload merged with the request
// identifiers.
type Resolution struct {
	LoanID    string         `json:"loanId"`
	PaymentID string         `json:"paymentId"`
	Message   string         `json:"message,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	logger     *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTokenSource sets where the auth interceptor takes bearer tokens from.
func WithTokenSource(tokens TokenSource) Option {
	return func(c *Client) {
		c.tokens = tokens
	}
}

func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	hc := *c.httpClient
	hc.Transport = NewAuthTransport(hc.Transport, c.tokens)
	c.httpClient = &hc
	return c
}

// ListPending fetches one page of the lender's pending payments grouped by loan.
func (c *Client) ListPending(ctx context.Context, page, limit int) (*ListResult, error) {
	if page < 1 {
		page = 1
	}
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	endpoint := fmt.Sprintf("%s/lender/loans/payments/pending?%s", c.baseURL, q.Encode())

	body, err := c.do(ctx, opListPending, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var out ListResult
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, payment.NewError(payment.KindNetworkFailure, opListPending, "", fmt.Errorf("decode response: %w", err))
	}
	if out.Data == nil {
		out.Data = []payment.PendingLoanGroup{}
	}
	return &out, nil
}

func (c *Client) ConfirmPayment(ctx context.Context, loanID, paymentID, notes string) (*Resolution, error) {
	var payload any
	if strings.TrimSpace(notes) != "" {
		payload = map[string]string{"notes": strings.TrimSpace(notes)}
	}
	endpoint := fmt.Sprintf("%s/lender/loans/payment/confirm/%s/%s", c.baseURL, url.PathEscape(loanID), url.PathEscape(paymentID))
	return c.resolve(ctx, opConfirm, endpoint, loanID, paymentID, payload)
}

func (c *Client) RejectPayment(ctx context.Context, loanID, paymentID, reason string) (*Resolution, error) {
	payload := map[string]string{"reason": strings.TrimSpace(reason)}
	endpoint := fmt.Sprintf("%s/lender/loans/payment/reject/%s/%s", c.baseURL, url.PathEscape(loanID), url.PathEscape(paymentID))
	return c.resolve(ctx, opReject, endpoint, loanID, paymentID, payload)
}

func (c *Client) resolve(ctx context.Context, op, endpoint, loanID, paymentID string, payload any) (*Resolution, error) {
	body, err := c.do(ctx, op, http.MethodPatch, endpoint, payload)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{}
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &fields); err != nil {
			c.logger.WarnContext(ctx, "non-object resolution payload", "op", op, "err", err)
			fields = map[string]any{}
		}
	}
	fields["loanId"] = loanID
	fields["paymentId"] = paymentID

	msg, _ := fields["message"].(string)
	return &Resolution{LoanID: loanID, PaymentID: paymentID, Message: msg, Fields: fields}, nil
}

func (c *Client) do(ctx context.Context, op, method, endpoint string, payload any) ([]byte, error) {
	if c.baseURL == "" {
		return nil, payment.NewError(payment.KindNetworkFailure, op, "", errors.New("lender api base url is not configured"))
	}

	var reqBody io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, payment.NewError(payment.KindNetworkFailure, op, "", fmt.Errorf("marshal request: %w", err))
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, payment.NewError(payment.KindNetworkFailure, op, "", fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "lender api request failed", "op", op, "method", method, "err", err)
		return nil, transportError(op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, transportError(op, fmt.Errorf("read response: %w", err))
	}
	c.logger.DebugContext(ctx, "lender api response", "op", op, "method", method, "status", resp.StatusCode, "elapsed", time.Since(started).String())

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}
	return nil, statusError(op, resp.StatusCode, body)
}

func transportError(op string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return payment.NewError(payment.KindTimeoutFailure, op, "The request timed out. Please try again.", err)
	}
	return payment.NewError(payment.KindNetworkFailure, op, "", err)
}

func statusError(op string, status int, body []byte) error {
	kind := payment.KindNetworkFailure
	switch {
	case status == http.StatusInternalServerError && op == opListPending:
		kind = payment.KindTransientServerFault
	case status == http.StatusNotFound && (op == opConfirm || op == opReject):
		kind = payment.KindNotFound
	case status == http.StatusGatewayTimeout || status == http.StatusRequestTimeout:
		kind = payment.KindTimeoutFailure
	}
	e := payment.NewError(kind, op, serverMessage(body), fmt.Errorf("lender api returned status %d", status))
	e.StatusCode = status
	return e
}

// serverMessage extracts the human readable message, if any, from an error body.
func serverMessage(body []byte) string {
	var envelope struct {
		Message string `json:"message"`
		Error   any    `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ""
	}
	if m := strings.TrimSpace(envelope.Message); m != "" {
		return m
	}
	if s, ok := envelope.Error.(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}
