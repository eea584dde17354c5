package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"
)

// TEI is a client for a text-embeddings-inference style service exposing
// POST /embed with {"inputs": [...]} and returning one vector per input.
type TEI struct {
	baseURL    string
	model      string
	dimension  int
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
}

type embedRequest struct {
	Inputs []string `json:"inputs"`
}

func NewTEI(baseURL, model string, dimension int) *TEI {
	return &TEI{
		baseURL:   baseURL,
		model:     model,
		dimension: dimension,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		maxRetries: 3,
		baseDelay:  100 * time.Millisecond,
	}
}

func (c *TEI) Model() string { return c.model }

func (c *TEI) Dimension() int { return c.dimension }

// GetEmbeddings embeds texts, retrying transient failures with exponential
// backoff. Permanent failures (4xx other than timeout/throttling) return
// immediately.
func (c *TEI) GetEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		vectors, err := c.embedOnce(ctx, texts)
		if err == nil {
			return vectors, nil
		}
		lastErr = err
		if !IsRetryable(err) || attempt == c.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.backoffDelay(attempt)):
		}
	}
	return nil, lastErr
}

func (c *TEI) embedOnce(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{Inputs: texts})
	if err != nil {
		return nil, &Error{Op: "marshal", Retryable: false, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embed", bytes.NewBuffer(body))
	if err != nil {
		return nil, &Error{Op: "request", Retryable: false, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Op: "send", Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, &Error{
			Op:        "embed",
			Retryable: retryableStatus(resp.StatusCode),
			Err:       fmt.Errorf("service returned status %d: %s", resp.StatusCode, string(respBody)),
		}
	}

	var vectors [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&vectors); err != nil {
		return nil, &Error{Op: "decode", Retryable: false, Err: err}
	}
	if len(vectors) != len(texts) {
		return nil, &Error{
			Op:        "decode",
			Retryable: false,
			Err:       fmt.Errorf("expected %d vectors, got %d", len(texts), len(vectors)),
		}
	}
	return vectors, nil
}

// retryableStatus treats client errors as permanent except timeout and
// throttling; everything else (5xx, unexpected codes) can be retried.
func retryableStatus(code int) bool {
	if code == http.StatusRequestTimeout || code == http.StatusTooManyRequests {
		return true
	}
	return code < 400 || code >= 500
}

func (c *TEI) backoffDelay(attempt int) time.Duration {
	delay := float64(c.baseDelay) * math.Pow(2, float64(attempt))
	jitter := delay * 0.25 * (0.5 - (float64(time.Now().UnixNano()%1000) / 1000))
	return time.Duration(delay + jitter)
}
