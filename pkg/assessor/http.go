package assessor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"vpnshield/pkg/config"

	"github.com/henvic/httpretty"
)

// HTTPBackend posts a Request as JSON and decodes the assessment from the response.
type HTTPBackend struct {
	url    string
	apiKey string
	c      *http.Client
}

type assessResponse struct {
	Status     string          `json:"status"`
	Summary    string          `json:"summary"`
	Encryption string          `json:"encryption"`
	Masking    json.RawMessage `json:"masking"`
}

type errorResponse struct {
	Result   string `json:"result"`
	ErrorMsg string `json:"error"`
}

func NewHTTPBackend(cfg config.AssessorConfig, apiKey string) *HTTPBackend {
	c := &http.Client{Timeout: cfg.GetTimeout()}
	if cfg.Debug {
		httpLogger := &httpretty.Logger{
			Time:           true,
			TLS:            true,
			RequestHeader:  true,
			RequestBody:    true,
			ResponseHeader: true,
			ResponseBody:   true,
			Formatters:     []httpretty.Formatter{&httpretty.JSONFormatter{}},
		}
		httpLogger.SetOutput(os.Stderr)
		// never dump the API key
		httpLogger.SkipHeader([]string{"Authorization"})
		c.Transport = httpLogger.RoundTripper(http.DefaultTransport)
	}

	return &HTTPBackend{
		url:    cfg.URL,
		apiKey: apiKey,
		c:      c,
	}
}

func (s *HTTPBackend) Assess(ctx context.Context, request Request) (Assessment, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return Assessment{}, fmt.Errorf("%w: marshal request: %v", ErrAssessmentUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return Assessment{}, fmt.Errorf("%w: create request: %v", ErrAssessmentUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.c.Do(req)
	if err != nil {
		return Assessment{}, fmt.Errorf("%w: %v", ErrAssessmentUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr errorResponse
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(data, &apiErr) == nil && apiErr.ErrorMsg != "" {
			return Assessment{}, fmt.Errorf("%w: backend returned %s: %s %s",
				ErrAssessmentUnavailable, resp.Status, apiErr.Result, apiErr.ErrorMsg)
		}
		return Assessment{}, fmt.Errorf("%w: backend returned %s", ErrAssessmentUnavailable, resp.Status)
	}

	var response assessResponse
	if err = json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return Assessment{}, fmt.Errorf("%w: decode response: %v", ErrAssessmentUnavailable, err)
	}

	return response.toAssessment()
}

func (r assessResponse) toAssessment() (Assessment, error) {
	status, err := parseStatus(r.Status)
	if err != nil {
		return Assessment{}, fmt.Errorf("%w: %v", ErrAssessmentUnavailable, err)
	}

	masking, err := parseMasking(r.Masking)
	if err != nil {
		return Assessment{}, fmt.Errorf("%w: %v", ErrAssessmentUnavailable, err)
	}

	return Assessment{
		Status:           status,
		Summary:          r.Summary,
		EncryptionScheme: r.Encryption,
		MaskingActive:    masking,
	}, nil
}

// parseMasking accepts a JSON bool or the strings "Active" and "Inactive".
func parseMasking(raw json.RawMessage) (bool, error) {
	if len(raw) == 0 {
		return false, fmt.Errorf("missing masking")
	}

	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return false, fmt.Errorf("invalid masking %s", string(raw))
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "active", "true":
		return true, nil
	case "inactive", "false":
		return false, nil
	default:
		return false, fmt.Errorf("invalid masking %q", s)
	}
}
