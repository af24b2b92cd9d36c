package network

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/hashicorp/go-retryablehttp"
)

// APIClient requests upload slots from a remote presign endpoint.
//
// Transport-level failures are retried by the underlying client; rejections
// (authorization denial, unknown policy, malformed input) come back as 4xx and
// are surfaced immediately as one opaque error for the whole batch.
type APIClient struct {
	httpClient  *retryablehttp.Client
	baseURL     string
	accessToken string
	logger      log.Logger
}

// NewAPIClient creates a slot requester against the given API base URL.
// `client` can be nil, in which case a default retrying client is used.
func NewAPIClient(client *retryablehttp.Client, baseURL string, accessToken string, logger log.Logger) *APIClient {
	if client == nil {
		client = retryhttp.NewClient(logger)
	}
	return &APIClient{
		httpClient:  client,
		baseURL:     baseURL,
		accessToken: accessToken,
		logger:      logger,
	}
}

// RequestSlots performs the batched metadata-for-slots exchange.
func (c *APIClient) RequestSlots(ctx context.Context, request SlotRequest) ([]UploadSlot, error) {
	url := fmt.Sprintf("%s/uploads/presign", c.baseURL)

	body, err := json.Marshal(request)
	if err != nil {
		return nil, err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.accessToken))
	req.Header.Set("Content-type", "application/json")

	c.logger.Debugf("Requesting %d upload slots (policy: %s)", len(request.Files), request.PolicyKey)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func(body io.ReadCloser) {
		err := body.Close()
		if err != nil {
			c.logger.Printf(err.Error())
		}
	}(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, unwrapError(resp)
	}

	var slots []UploadSlot
	err = json.NewDecoder(resp.Body).Decode(&slots)
	if err != nil {
		return nil, err
	}

	if len(slots) != len(request.Files) {
		return nil, fmt.Errorf("slot count mismatch: requested %d, got %d", len(request.Files), len(slots))
	}

	return slots, nil
}

func unwrapError(resp *http.Response) error {
	errorResp, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return fmt.Errorf("HTTP %d: %s", resp.StatusCode, errorResp)
}
