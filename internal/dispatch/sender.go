package dispatch

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DeliveryResult captures one delivery attempt: HTTP outcome, latency and a
// bounded slice of the response body.
type DeliveryResult struct {
	HTTPStatus   *int
	LatencyMs    int
	ResponseBody string
	Error        error
	RetryAfter   string
}

// Sender performs notification deliveries as signed HTTP POSTs.
type Sender struct {
	client  *http.Client
	maxBody int
}

// NewSender creates a Sender with an explicit request timeout and a cap on
// how much of the response body is retained.
func NewSender(timeout time.Duration, maxBody int) *Sender {
	return &Sender{
		client:  &http.Client{Timeout: timeout},
		maxBody: maxBody,
	}
}

// Deliver POSTs the payload to url with an HMAC-SHA256 signature header.
// Network failures are reported in the result, not returned, so the caller's
// state machine sees every attempt uniformly.
func (s *Sender) Deliver(ctx context.Context, url string, payload map[string]interface{}, secret string) *DeliveryResult {
	result := &DeliveryResult{}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		result.Error = fmt.Errorf("failed to marshal payload: %w", err)
		return result
	}

	signature, err := signPayload(payloadBytes, secret)
	if err != nil {
		result.Error = fmt.Errorf("failed to sign payload: %w", err)
		return result
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payloadBytes))
	if err != nil {
		result.Error = fmt.Errorf("failed to create HTTP request: %w", err)
		return result
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Comando-Signature", signature)

	startTime := time.Now()

	resp, err := s.client.Do(req)
	if err != nil {
		result.LatencyMs = int(time.Since(startTime).Milliseconds())
		result.Error = fmt.Errorf("HTTP request failed: %w", err)
		return result
	}
	defer resp.Body.Close()

	result.LatencyMs = int(time.Since(startTime).Milliseconds())
	result.HTTPStatus = &resp.StatusCode

	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(s.maxBody)))
	if err == nil {
		result.ResponseBody = string(body)
	}

	if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
		result.RetryAfter = retryAfter
	}

	return result
}

// signPayload returns "sha256=<hex hmac>" over the payload.
func signPayload(payload []byte, secret string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("secret cannot be empty")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	if _, err := mac.Write(payload); err != nil {
		return "", fmt.Errorf("failed to compute HMAC: %w", err)
	}

	return "sha256=" + hex.EncodeToString(mac.Sum(nil)), nil
}
