// Package customers validates customer ids against the customers service.
package customers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Client calls GET {base}/internal/customers/{id} with a service bearer token.
type Client struct {
	base  string
	token string
	http  *http.Client
}

func NewClient(base, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Client{
		base:  strings.TrimRight(base, "/"),
		token: token,
		http:  &http.Client{Timeout: timeout},
	}
}

type customerResponse struct {
	Success bool `json:"success"`
	Data    struct {
		ID     int64 `json:"id"`
		Active *bool `json:"active,omitempty"`
	} `json:"data"`
}

// Exists returns false for 404 or an inactive customer. Any other non-200 answer,
// or no answer at all, is an error: the caller cannot tell whether the customer exists.
func (c *Client) Exists(ctx context.Context, customerID int64) (bool, error) {
	url := c.base + "/internal/customers/" + strconv.FormatInt(customerID, 10)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("unable to reach customers api: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return false, nil
	default:
		_, _ = io.Copy(io.Discard, resp.Body)
		return false, fmt.Errorf("customers api: unexpected status %d", resp.StatusCode)
	}

	var body customerResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return false, fmt.Errorf("customers api: decode: %w", err)
	}
	if !body.Success {
		return false, nil
	}
	if body.Data.Active != nil && !*body.Data.Active {
		return false, nil
	}
	return true, nil
}
