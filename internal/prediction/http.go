package prediction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ent0n29/mcctrack/internal/reliability"
)

// HTTPService calls a JSON prediction API:
//
//	POST {base}/predict    {"lat","lng","radius_meters","enhance_precision"}
//	POST {base}/telemetry  Telemetry
type HTTPService struct {
	baseURL string
	client  *http.Client
}

func NewHTTPService(baseURL string, timeout time.Duration) *HTTPService {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPService{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type predictRequest struct {
	Lat              float64 `json:"lat"`
	Lng              float64 `json:"lng"`
	RadiusMeters     float64 `json:"radius_meters"`
	EnhancePrecision bool    `json:"enhance_precision"`
}

func (s *HTTPService) Predict(ctx context.Context, lat, lng, radiusMeters float64, enhancePrecision bool) (Prediction, error) {
	body, err := s.post(ctx, "/predict", predictRequest{
		Lat:              lat,
		Lng:              lng,
		RadiusMeters:     radiusMeters,
		EnhancePrecision: enhancePrecision,
	})
	if err != nil {
		return Prediction{}, err
	}

	var p Prediction
	if err := json.Unmarshal(body, &p); err != nil {
		return Prediction{}, fmt.Errorf("%w: decode prediction: %v", ErrService, err)
	}
	if strings.TrimSpace(p.Category) == "" {
		return Prediction{}, fmt.Errorf("%w: empty category", ErrService)
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		return Prediction{}, fmt.Errorf("%w: confidence %v out of range", ErrService, p.Confidence)
	}
	return p, nil
}

func (s *HTTPService) PushUpdate(ctx context.Context, t Telemetry) error {
	_, err := s.post(ctx, "/telemetry", t)
	return err
}

func (s *HTTPService) post(ctx context.Context, path string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: send request: %v", ErrNetwork, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrNetwork, err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		kind := ErrService
		if reliability.IsRetryableHTTPStatus(res.StatusCode) {
			kind = ErrNetwork
		}
		snippet := string(body)
		if len(snippet) > 256 {
			snippet = snippet[:256]
		}
		return nil, fmt.Errorf("%w: %s status %d: %s", kind, path, res.StatusCode, strings.TrimSpace(snippet))
	}
	return body, nil
}
