// Package remote is the device-side client for the authority API. All
// calls carry the shared bearer secret and a bounded timeout so a
// stalled network cannot wedge the scan pipeline.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"checkin-system/models"
	"checkin-system/monitoring"
)

// ErrNotFound reports that the authority knows no ticket for the
// given identifier. Terminal for the scan, never retried.
var ErrNotFound = errors.New("remote: ticket not found")

// ConflictError reports that the authority already holds the ticket
// as used. It carries the canonical record so the caller can merge
// without a second round trip.
type ConflictError struct {
	Ticket *models.Ticket
}

func (e *ConflictError) Error() string {
	return "remote: ticket already used"
}

type Client struct {
	baseURL  string
	adminKey string
	hc       *http.Client
}

func NewClient(baseURL, adminKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL:  baseURL,
		adminKey: adminKey,
		hc:       &http.Client{Timeout: timeout},
	}
}

type scanRequest struct {
	Mode     string `json:"mode,omitempty"`
	RawValue string `json:"rawValue,omitempty"`
}

type ticketResponse struct {
	OK     bool           `json:"ok"`
	Ticket *models.Ticket `json:"ticket"`
	Error  string         `json:"error"`
}

// Ping validates the configured credential against the authority.
func (c *Client) Ping(ctx context.Context) error {
	started := time.Now()
	defer func() { monitoring.TrackRemoteRequest("ping", time.Since(started)) }()

	resp, err := c.post(ctx, "/api/tickets/scan", scanRequest{Mode: "ping"})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("remote: ping: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// Snapshot fetches the full canonical ticket set.
func (c *Client) Snapshot(ctx context.Context) ([]models.Ticket, error) {
	started := time.Now()
	defer func() { monitoring.TrackRemoteRequest("snapshot", time.Since(started)) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tickets/snapshot", nil)
	if err != nil {
		return nil, fmt.Errorf("remote: snapshot: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote: snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("remote: snapshot: unexpected status %d", resp.StatusCode)
	}

	var tickets []models.Ticket
	if err := json.NewDecoder(resp.Body).Decode(&tickets); err != nil {
		return nil, fmt.Errorf("remote: snapshot: decode: %w", err)
	}
	return tickets, nil
}

// Lookup resolves a raw scanned value to a ticket. Returns ErrNotFound
// when the authority knows no matching ticket; any other failure is
// transient.
func (c *Client) Lookup(ctx context.Context, rawValue string) (*models.Ticket, error) {
	started := time.Now()
	defer func() { monitoring.TrackRemoteRequest("lookup", time.Since(started)) }()

	resp, err := c.post(ctx, "/api/tickets/scan", scanRequest{Mode: "scan", RawValue: rawValue})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var body ticketResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return nil, fmt.Errorf("remote: lookup: decode: %w", err)
		}
		if body.Ticket == nil {
			return nil, ErrNotFound
		}
		return body.Ticket, nil
	case http.StatusNotFound:
		return nil, ErrNotFound
	default:
		return nil, fmt.Errorf("remote: lookup: unexpected status %d", resp.StatusCode)
	}
}

// UseTicket submits a conditional mark-used for one pending entry.
// Success returns the updated canonical record. A *ConflictError means
// another check-in reached the authority first and carries the record
// that won. Anything else is transient and safe to retry.
func (c *Client) UseTicket(ctx context.Context, p models.PendingUse) (*models.Ticket, error) {
	started := time.Now()
	defer func() { monitoring.TrackRemoteRequest("use", time.Since(started)) }()

	resp, err := c.post(ctx, "/api/tickets/use", p)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body ticketResponse
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("remote: use: read body: %w", err)
	}
	if err := json.Unmarshal(data, &body); err != nil && resp.StatusCode == http.StatusOK {
		return nil, fmt.Errorf("remote: use: decode: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return body.Ticket, nil
	case http.StatusConflict:
		return nil, &ConflictError{Ticket: body.Ticket}
	case http.StatusNotFound:
		return nil, ErrNotFound
	default:
		return nil, fmt.Errorf("remote: use: unexpected status %d", resp.StatusCode)
	}
}

func (c *Client) post(ctx context.Context, path string, payload any) (*http.Response, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("remote: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("remote: build request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote: %s: %w", path, err)
	}
	return resp, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.adminKey)
}
