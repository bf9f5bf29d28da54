// Package orderservice is the HTTP client for the external order service:
// the only place board state is persisted or fetched from.
package orderservice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"fulfillment-board/internal/models"
)

// ErrRetryRejected means the backend refused a manual retry trigger, e.g.
// the failure already succeeded. Local state stays unchanged until the next
// fetch or push event.
var ErrRetryRejected = errors.New("retry trigger rejected upstream")

// Client talks to the order service REST API.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a client for baseURL with a request timeout.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

type ordersResponse struct {
	Records []models.Order `json:"records"`
}

// FetchOrders loads the board's visible slice for one assigned date.
func (c *Client) FetchOrders(ctx context.Context, date time.Time, status string, page, limit int) ([]models.Order, error) {
	q := url.Values{}
	if !date.IsZero() {
		q.Set("date", date.Format("2006-01-02"))
	}
	if status != "" {
		q.Set("status", status)
	}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var resp ordersResponse
	if err := c.getJSON(ctx, "/orders?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	return resp.Records, nil
}

// PersistStatus confirms a board transition upstream.
func (c *Client) PersistStatus(ctx context.Context, orderID, status string) error {
	body, err := json.Marshal(map[string]string{"status": status})
	if err != nil {
		return fmt.Errorf("marshal status body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch,
		c.baseURL+"/orders/"+url.PathEscape(orderID)+"/status", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build status request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("persist status: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("persist status: upstream returned %d", res.StatusCode)
	}
	return nil
}

// FetchFailedOrders retrieves one filtered page of the failed-order list.
func (c *Client) FetchFailedOrders(ctx context.Context, q models.FailedOrderQuery) (models.FailedOrderPage, error) {
	var page models.FailedOrderPage
	if err := c.getJSON(ctx, "/failed-orders?"+encodeFailedQuery(q), &page); err != nil {
		return models.FailedOrderPage{}, err
	}
	return page, nil
}

// TriggerRetry asks the backend to retry a failed order now.
func (c *Client) TriggerRetry(ctx context.Context, failureID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/failed-orders/"+url.PathEscape(failureID)+"/retry", nil)
	if err != nil {
		return fmt.Errorf("build retry request: %w", err)
	}
	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("trigger retry: %w", err)
	}
	defer res.Body.Close()
	switch {
	case res.StatusCode >= 200 && res.StatusCode <= 299:
		return nil
	case res.StatusCode >= 400 && res.StatusCode < 500:
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return fmt.Errorf("%w: %s", ErrRetryRejected, bytes.TrimSpace(msg))
	default:
		return fmt.Errorf("trigger retry: upstream returned %d", res.StatusCode)
	}
}

// Export streams the failed-order spreadsheet for the given filters. The
// returned filename comes from the upstream Content-Disposition hint; the
// caller owns closing the body.
func (c *Client) Export(ctx context.Context, q models.FailedOrderQuery) (io.ReadCloser, string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/failed-orders/export?"+encodeFailedQuery(q), nil)
	if err != nil {
		return nil, "", "", fmt.Errorf("build export request: %w", err)
	}
	res, err := c.http.Do(req)
	if err != nil {
		return nil, "", "", fmt.Errorf("export: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		res.Body.Close()
		return nil, "", "", fmt.Errorf("export: upstream returned %d", res.StatusCode)
	}

	filename := "failed-orders-export"
	if cd := res.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil && params["filename"] != "" {
			filename = params["filename"]
		}
	}
	contentType := res.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return res.Body, filename, contentType, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("get %s: upstream returned %d", path, res.StatusCode)
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func encodeFailedQuery(q models.FailedOrderQuery) string {
	v := url.Values{}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Status != "" {
		v.Set("status", q.Status)
	}
	if q.StoreID != "" {
		v.Set("storeId", q.StoreID)
	}
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	if !q.StartDate.IsZero() {
		v.Set("startDate", q.StartDate.Format("2006-01-02"))
	}
	if !q.EndDate.IsZero() {
		v.Set("endDate", q.EndDate.Format("2006-01-02"))
	}
	return v.Encode()
}
