package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Veraticus/boq-price-match/internal/common"
)

// httpDoer is the subset of *http.Client the providers use.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 60 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

func doerFor(c *http.Client) httpDoer {
	if c == nil {
		return newHTTPClient()
	}
	return c
}

// maxErrorBody bounds how much of a failed response is kept in the error.
const maxErrorBody = 512

// postJSON sends body to url and decodes a 200 response into out. Every
// failure is returned as a *common.ProviderError.
func postJSON(ctx context.Context, client httpDoer, provider, op, url, apiKey string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return &common.ProviderError{Provider: provider, Op: op, Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return &common.ProviderError{Provider: provider, Op: op, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return &common.ProviderError{
			Provider:  provider,
			Op:        op,
			Err:       fmt.Errorf("request failed: %w", err),
			Retryable: !errors.Is(err, context.Canceled),
		}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &common.ProviderError{Provider: provider, Op: op, Err: fmt.Errorf("failed to read response: %w", err), Retryable: true}
	}

	if resp.StatusCode != http.StatusOK {
		msg := respBody
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		perr := common.NewProviderError(provider, op, resp.StatusCode, errors.New(string(bytes.TrimSpace(msg))))
		if resp.StatusCode == http.StatusTooManyRequests {
			perr.Err = errors.Join(common.ErrRateLimit, perr.Err)
		}
		return perr
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return &common.ProviderError{Provider: provider, Op: op, Err: fmt.Errorf("failed to parse response: %w", err)}
	}
	return nil
}
