// Package embedding wires the HTTP call to C6's configured embedding
// endpoint (§4.6, §6's EMBED_* keys): one POST per batch of texts, one
// vector back per text, traced through observability.NewHTTPClient like
// pubmedclient's calls and authenticated with static headers through
// observability.WithHeaders.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/achouhan93/clusterchat-go/internal/config"
	"github.com/achouhan93/clusterchat-go/internal/observability"
)

type embedReq struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResp struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// authHeaders derives the static credential headers from cfg: the eutils
// convention of naming the header explicitly (APIHeader), defaulting to a
// bearer Authorization header, plus HuggingFace's separate token header
// when a self-hosted HF inference endpoint is configured (HUGGINGFACE_TOKEN).
func authHeaders(cfg config.EmbeddingConfig) map[string]string {
	headers := map[string]string{}
	switch {
	case cfg.APIHeader == "Authorization":
		headers["Authorization"] = "Bearer " + cfg.APIKey
	case cfg.APIHeader != "":
		headers[cfg.APIHeader] = cfg.APIKey
	}
	if cfg.HFToken != "" {
		headers["X-HF-Token"] = cfg.HFToken
	}
	for k, v := range cfg.Headers {
		headers[k] = v
	}
	return headers
}

// EmbedText calls the configured embedding endpoint and returns one embedding
// per input string. Caller should provide cfg loaded from config.Load().
func EmbedText(ctx context.Context, cfg config.EmbeddingConfig, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("no inputs")
	}
	reqBody, _ := json.Marshal(embedReq{Model: cfg.Model, Input: inputs})
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	url := cfg.BaseURL + cfg.Path
	req, err := http.NewRequestWithContext(cctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	client := observability.WithHeaders(observability.NewHTTPClient(nil), authHeaders(cfg))
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// Read the response body first so both the error path and the success
	// path see it, and so a failure response gets its credentials scrubbed
	// before it ever reaches a log line.
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("embeddings error: %s: %s", resp.Status, string(observability.RedactJSON(bodyBytes)))
	}

	var er embedResp
	if err := json.Unmarshal(bodyBytes, &er); err != nil {
		return nil, fmt.Errorf("failed to parse embedding response (input count: %d, response: %s): %w",
			len(inputs), string(observability.RedactJSON(bodyBytes[:min(200, len(bodyBytes))])), err)
	}
	if len(er.Data) != len(inputs) {
		// a count mismatch is an error; no partial result is returned
		return nil, fmt.Errorf("unexpected embedding count: got %d, want %d", len(er.Data), len(inputs))
	}
	out := make([][]float32, len(er.Data))
	for i := range er.Data {
		out[i] = er.Data[i].Embedding
	}
	return out, nil
}

// CheckReachability verifies that the embedding endpoint is reachable and
// responding correctly by sending a small test request.
func CheckReachability(ctx context.Context, cfg config.EmbeddingConfig) error {
	_, err := EmbedText(ctx, cfg, []string{"ping"})
	if err != nil {
		return fmt.Errorf("embedding endpoint reachability check failed: %w", err)
	}
	return nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
