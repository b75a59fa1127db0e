// Package cloud is the HTTP JSON transport to the vendor cloud. It serves as
// both the remote state source for the poller and the command sink for
// attribute writes.
package cloud

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

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/dokzlo13/aird/internal/command"
	"github.com/dokzlo13/aird/internal/device"
)

// ErrRejected marks a write the device refused (HTTP 409 or 422).
var ErrRejected = errors.New("write rejected by device")

// Client talks to the cloud API. The bearer token is obtained elsewhere.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a cloud client. rateLimitRPS bounds outgoing requests
// across polls and writes; zero means 2 requests per second.
func NewClient(baseURL, token string, timeout time.Duration, rateLimitRPS float64) *Client {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	if rateLimitRPS == 0 {
		rateLimitRPS = 2.0
	}
	burst := int(rateLimitRPS)
	if burst < 1 {
		burst = 1
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rateLimitRPS), burst),
	}
}

// Close closes idle connections
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

func (c *Client) request(ctx context.Context, method, path string, body any) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.httpClient.Do(req)
}

type pullRequest struct {
	IDs []string `json:"ids"`
}

type deviceState struct {
	ID      string             `json:"id"`
	State   map[string]any     `json:"state"`
	Sensors map[string]float64 `json:"sensors"`
}

type pullResponse struct {
	Devices []deviceState `json:"devices"`
}

// Pull fetches the current state of the given devices. Devices whose
// payload cannot be parsed are skipped and logged; the rest are returned.
func (c *Client) Pull(ctx context.Context, ids []string) ([]device.Report, error) {
	resp, err := c.request(ctx, http.MethodPost, "/v1/devices/state", pullRequest{IDs: ids})
	if err != nil {
		return nil, fmt.Errorf("pull device state: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("pull device state: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var result pullResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode device state: %w", err)
	}

	reports := make([]device.Report, 0, len(result.Devices))
	for _, d := range result.Devices {
		delta, skipped, err := device.ParseDelta(d.State, d.Sensors)
		if err != nil {
			log.Warn().Err(err).Str("device", d.ID).Msg("Discarding malformed device state")
			continue
		}
		if len(skipped) > 0 {
			log.Debug().Str("device", d.ID).Strs("keys", skipped).Msg("Ignoring unknown keys")
		}
		reports = append(reports, device.Report{ID: d.ID, Delta: delta})
	}
	return reports, nil
}

type writeRequest struct {
	Value device.Value `json:"value"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Write sends one attribute write. A refusal by the device is returned as
// an error wrapping ErrRejected.
func (c *Client) Write(ctx context.Context, id string, key device.Key, value device.Value) error {
	path := fmt.Sprintf("/v1/devices/%s/attributes/%s", url.PathEscape(id), url.PathEscape(string(key)))
	resp, err := c.request(ctx, http.MethodPut, path, writeRequest{Value: value})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	reason := strings.TrimSpace(string(body))
	var parsed errorResponse
	if json.Unmarshal(body, &parsed) == nil && parsed.Error != "" {
		reason = parsed.Error
	}
	if reason == "" {
		reason = resp.Status
	}

	switch resp.StatusCode {
	case http.StatusConflict, http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", ErrRejected, reason)
	default:
		return fmt.Errorf("write %s: %s: %s", key, resp.Status, reason)
	}
}

// Propose implements command.Sink. The ticket is resolved before Propose
// returns.
func (c *Client) Propose(ctx context.Context, t *command.Ticket) {
	err := c.Write(ctx, t.DeviceID, t.Key, t.Value)
	switch {
	case err == nil:
		_ = t.Confirm()
	case errors.Is(err, ErrRejected):
		_ = t.Reject(strings.TrimPrefix(err.Error(), ErrRejected.Error()+": "))
	default:
		log.Warn().Err(err).
			Str("device", t.DeviceID).
			Str("key", string(t.Key)).
			Msg("Attribute write failed")
		_ = t.Fail(err)
	}
}
