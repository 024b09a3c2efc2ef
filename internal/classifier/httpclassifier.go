package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// HTTP calls an external classifier service over HTTP/JSON (spec §4.2: the
// model implementation itself is out of scope; the core only ever depends on
// the Classifier interface). One POST per call, series tokens and filename
// in the body, {category, confidence, alternatives} expected back.
type HTTP struct {
	baseURL string
	client  *http.Client
}

// NewHTTP returns an HTTP Classifier calling baseURL + "/classify".
func NewHTTP(baseURL string, client *http.Client) *HTTP {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTP{baseURL: baseURL, client: client}
}

type httpRequest struct {
	SeriesTokens []string `json:"series_tokens"`
	Filename     string   `json:"filename"`
}

type httpResponse struct {
	Category     string        `json:"category"`
	Confidence   float64       `json:"confidence"`
	Alternatives []Alternative `json:"alternatives"`
}

func (h *HTTP) Classify(ctx context.Context, seriesTokens []string, filename string) (Result, error) {
	body, err := json.Marshal(httpRequest{SeriesTokens: seriesTokens, Filename: filename})
	if err != nil {
		return Result{}, fmt.Errorf("classifier: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/classify", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("classifier: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("classifier: call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("classifier: unexpected status %d", resp.StatusCode)
	}

	var out httpResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Result{}, fmt.Errorf("classifier: decode response: %w", err)
	}
	return Result{Category: out.Category, Confidence: out.Confidence, Alternatives: out.Alternatives}, nil
}
