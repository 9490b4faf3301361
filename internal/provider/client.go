package provider

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
	"time"
)

var (
	// ErrAuth indicates the provider rejected the session token.
	ErrAuth = errors.New("provider: authentication failed")
	// ErrNotFound indicates the resource does not exist upstream.
	ErrNotFound = errors.New("provider: not found")
)

// TokenSource yields a valid access token for a store.
type TokenSource interface {
	AccessToken(ctx context.Context, ref StoreRef) (string, error)
}

// Client talks to the marketplace merchant API on behalf of one store at a
// time. All methods are safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
}

// NewClient constructs a marketplace API client.
func NewClient(baseURL string, tokens TokenSource, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		tokens:  tokens,
	}
}

func (c *Client) do(ctx context.Context, ref StoreRef, method, path string, query url.Values, headers map[string]string, body any) (*http.Response, error) {
	token, err := c.tokens.AccessToken(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("provider: resolve token: %w", err)
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func apiError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := strings.TrimSpace(string(body))
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: status %d: %s", ErrAuth, resp.StatusCode, msg)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, msg)
	}
	return fmt.Errorf("provider: status %d: %s", resp.StatusCode, msg)
}

func decode(resp *http.Response, out any) error {
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apiError(resp)
	}
	if resp.StatusCode == http.StatusNoContent || out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// PollEvents fetches pending events for the given external merchant ids.
// A 204 response means no pending events.
func (c *Client) PollEvents(ctx context.Context, ref StoreRef, merchantIDs []string) ([]Event, error) {
	headers := map[string]string{"x-polling-merchants": strings.Join(merchantIDs, ",")}
	resp, err := c.do(ctx, ref, http.MethodGet, "/events/v1.0/events:polling", nil, headers, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNoContent {
		_ = resp.Body.Close()
		return nil, nil
	}
	var events []Event
	if err := decode(resp, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// AcknowledgeEvents confirms consumption of polled events. Callers must
// persist the underlying data before acknowledging.
func (c *Client) AcknowledgeEvents(ctx context.Context, ref StoreRef, eventIDs []string) error {
	if len(eventIDs) == 0 {
		return nil
	}
	body := make([]map[string]string, 0, len(eventIDs))
	for _, id := range eventIDs {
		body = append(body, map[string]string{"id": id})
	}
	resp, err := c.do(ctx, ref, http.MethodPost, "/events/v1.0/events/acknowledgment", nil, nil, body)
	if err != nil {
		return err
	}
	return decode(resp, nil)
}

// GetOrder fetches the full order detail and retains the raw payload.
func (c *Client) GetOrder(ctx context.Context, ref StoreRef, orderID string) (*OrderDetail, error) {
	resp, err := c.do(ctx, ref, http.MethodGet, "/order/v1.0/orders/"+url.PathEscape(orderID), nil, nil, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apiError(resp)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var detail OrderDetail
	if err := json.Unmarshal(raw, &detail); err != nil {
		return nil, fmt.Errorf("provider: decode order %s: %w", orderID, err)
	}
	detail.Raw = raw
	return &detail, nil
}

// GetMerchant fetches store display metadata. A missing merchant yields
// (nil, nil) so callers can treat it as a no-op.
func (c *Client) GetMerchant(ctx context.Context, ref StoreRef, merchantID string) (*Merchant, error) {
	resp, err := c.do(ctx, ref, http.MethodGet, "/merchant/v1.0/merchants/"+url.PathEscape(merchantID), nil, nil, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNoContent {
		_ = resp.Body.Close()
		return nil, nil
	}
	var merchant Merchant
	if err := decode(resp, &merchant); err != nil {
		return nil, err
	}
	if merchant.ID == "" && merchant.Name == "" {
		return nil, nil
	}
	return &merchant, nil
}

// FinancialEvents fetches one page of settlement events for a date window.
func (c *Client) FinancialEvents(ctx context.Context, ref StoreRef, merchantID string, begin, end time.Time, page, size int) (*FinancialEventsPage, error) {
	query := url.Values{}
	query.Set("beginDate", begin.Format("2006-01-02"))
	query.Set("endDate", end.Format("2006-01-02"))
	query.Set("page", strconv.Itoa(page))
	query.Set("size", strconv.Itoa(size))
	resp, err := c.do(ctx, ref, http.MethodGet, "/financial/v1.0/merchants/"+url.PathEscape(merchantID)+"/financial-events", query, nil, nil)
	if err != nil {
		return nil, err
	}
	var out FinancialEventsPage
	if err := decode(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Sales fetches one page of sales for a date window. The provider answers
// 404 when a page has no results, which is normal pagination termination.
func (c *Client) Sales(ctx context.Context, ref StoreRef, merchantID string, begin, end time.Time, page, size int) ([]Sale, error) {
	query := url.Values{}
	query.Set("beginSalesDate", begin.Format("2006-01-02"))
	query.Set("endSalesDate", end.Format("2006-01-02"))
	query.Set("page", strconv.Itoa(page))
	query.Set("size", strconv.Itoa(size))
	resp, err := c.do(ctx, ref, http.MethodGet, "/financial/v1.0/merchants/"+url.PathEscape(merchantID)+"/sales", query, nil, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		_ = resp.Body.Close()
		return nil, nil
	}
	var out struct {
		Sales []Sale `json:"sales"`
	}
	if err := decode(resp, &out); err != nil {
		return nil, err
	}
	return out.Sales, nil
}
