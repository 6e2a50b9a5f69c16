package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// APIClient talks to the Splits Coordination Service's HTTP API.
type APIClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewAPIClient creates a client bound to baseURL (e.g. http://localhost:8080).
func NewAPIClient(baseURL string) *APIClient {
	return &APIClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// ErrorResponse mirrors the server's errorHandler JSON shape.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *APIClient) doRequest(method, endpoint string, expectedStatus int, reqBody, respBody interface{}) error {
	var body io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+endpoint, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != expectedStatus {
		var apiErr ErrorResponse
		if jsonErr := json.Unmarshal(data, &apiErr); jsonErr == nil && apiErr.Message != "" {
			return fmt.Errorf("api error (%d): %s", resp.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(data))
	}

	if respBody != nil {
		if err := json.Unmarshal(data, respBody); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// ApproveIntentRequest is the body of POST /splits/:id/approve-intent.
type ApproveIntentRequest struct {
	Participant string  `json:"participant"`
	Deadline    *string `json:"deadline,omitempty"`
}

// TypedData is the response shape from the approve-intent endpoint.
type TypedData struct {
	Domain      map[string]any `json:"domain"`
	Types       map[string]any `json:"types"`
	PrimaryType string         `json:"primaryType"`
	Message     map[string]any `json:"message"`
}

// FetchApproveIntent requests the typed data a participant must sign.
func (c *APIClient) FetchApproveIntent(splitID int64, participant string) (*TypedData, error) {
	var td TypedData
	err := c.doRequest(http.MethodPost, fmt.Sprintf("/splits/%d/approve-intent", splitID), http.StatusOK,
		ApproveIntentRequest{Participant: participant}, &td)
	if err != nil {
		return nil, err
	}
	return &td, nil
}

// SubmitSignatureRequest is the body of POST /splits/:id/signatures.
type SubmitSignatureRequest struct {
	Participant string  `json:"participant"`
	Amount      string  `json:"amount"`
	Salt        string  `json:"salt"`
	Deadline    *string `json:"deadline,omitempty"`
	Signature   string  `json:"signature"`
}

// SubmitSignatureResponse reports the stored signature's status.
type SubmitSignatureResponse struct {
	Status string `json:"status"`
}

// SubmitSignature posts a signed approval back to the coordination service.
func (c *APIClient) SubmitSignature(splitID int64, req SubmitSignatureRequest) (*SubmitSignatureResponse, error) {
	var resp SubmitSignatureResponse
	err := c.doRequest(http.MethodPost, fmt.Sprintf("/splits/%d/signatures", splitID), http.StatusOK, req, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// SettleResponse reports the settlement transaction hash.
type SettleResponse struct {
	TxHash string `json:"txHash"`
}

// Settle requests the executor settle a split using its stored signatures.
func (c *APIClient) Settle(splitID int64) (*SettleResponse, error) {
	var resp SettleResponse
	err := c.doRequest(http.MethodPost, fmt.Sprintf("/splits/%d/settle", splitID), http.StatusOK, nil, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}
