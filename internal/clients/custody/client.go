// Package custody talks to the external custody microservice that holds the
// actual assets. The engine treats transfers as all-or-nothing: a failed call
// aborts the enclosing operation.
package custody

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Client for the custody microservice
type Client struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// ServiceResponse is the standard response format
type ServiceResponse struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Error     *string         `json:"error"`
	Timestamp string          `json:"timestamp"`
}

// NewClient creates a new custody microservice client
func NewClient(baseURL string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log.With().Str("client", "custody").Logger(),
	}
}

// transferRequest is the wire shape of a transfer call
type transferRequest struct {
	Amount int64  `json:"amount"`
	From   string `json:"from"`
	To     string `json:"to"`
	Memo   string `json:"memo,omitempty"`
}

// Transfer moves amount between custody accounts. Either the whole transfer
// succeeds or an error is returned; there is no partial state.
func (c *Client) Transfer(amount int64, from, to, memo string) error {
	resp, err := c.post("/transfers", transferRequest{
		Amount: amount,
		From:   from,
		To:     to,
		Memo:   memo,
	})
	if err != nil {
		return err
	}

	if !resp.Success {
		msg := "unknown error"
		if resp.Error != nil {
			msg = *resp.Error
		}
		return fmt.Errorf("custody rejected transfer: %s", msg)
	}

	c.log.Debug().
		Int64("amount", amount).
		Str("from", from).
		Str("to", to).
		Msg("Transfer completed")
	return nil
}

// post makes a POST request to the microservice
func (c *Client) post(endpoint string, request interface{}) (*ServiceResponse, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.baseURL + endpoint
	resp, err := c.client.Post(url, "application/json", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	return c.parseResponse(resp)
}

// parseResponse parses the service response
func (c *Client) parseResponse(resp *http.Response) (*ServiceResponse, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("custody service returned status %d: %s", resp.StatusCode, string(body))
	}

	var result ServiceResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &result, nil
}
