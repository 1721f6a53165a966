// Package external contains HTTP clients for the services the analysis
// pipeline depends on: the multimodal inference endpoint, private image
// storage, the YouTube Data API and the translation endpoint.
package external

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rehabflow-backend/internal/domain"
)

// InferenceClient calls the serverless BLIP+MedGemma endpoint. It sends
// exactly one POST per Analyze call and performs no retries; retry policy
// belongs to the caller. Redirects are followed, since the endpoint may
// redirect to an async result URL.
type InferenceClient struct {
	endpointURL  string
	singleImage  bool
	timeout      time.Duration
	httpClient   *http.Client
	log          *logrus.Logger
}

// NewInferenceClient creates a new inference endpoint client
func NewInferenceClient(config domain.InferenceConfig, logger *logrus.Logger) *InferenceClient {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}

	return &InferenceClient{
		endpointURL: config.EndpointURL,
		singleImage: config.LegacySingleImage,
		timeout:     timeout,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: logger,
	}
}

// inferencePayload is the outbound wire shape. ImageBase64 duplicates the
// first entry of ImagesBase64: older deployments of the endpoint read only
// the singular field, newer ones only the plural. The duplication is a
// compatibility shim controlled by inference.legacy_single_image.
type inferencePayload struct {
	ImageBase64    *string               `json:"image_base64,omitempty"`
	ImagesBase64   []string              `json:"images_base64"`
	TextComplaint  string                `json:"text_complaint"`
	PainLocation   string                `json:"pain_location"`
	PainLevel      int                   `json:"pain_level"`
	PatientContext domain.PatientContext `json:"patient_context"`
}

// inferenceEnvelope covers both response shapes the endpoint is known to
// produce. A non-empty probable_condition key marks the structured shape;
// everything else is treated as a transcript, taken from the response
// field when present or from the raw body otherwise.
type inferenceEnvelope struct {
	ProbableCondition string   `json:"probable_condition"`
	ConfidenceScore   float64  `json:"confidence_score"`
	Reasoning         string   `json:"reasoning"`
	RehabPlan         string   `json:"rehab_plan"`
	ImageCaptions     []string `json:"image_captions"`
	ModelVersion      string   `json:"model_version"`
	Response          string   `json:"response"`
}

// Analyze sends the assembled clinical context to the inference endpoint.
// A local timeout is reported as ErrInferenceTimeout; a non-200 status as
// *UpstreamError carrying the status code.
func (c *InferenceClient) Analyze(ctx context.Context, req *domain.InferenceRequest) (*domain.RawInferenceResult, error) {
	if c.endpointURL == "" {
		return nil, fmt.Errorf("inference endpoint URL is not configured")
	}

	payload := inferencePayload{
		ImagesBase64:   req.ImagesBase64,
		TextComplaint:  req.TextComplaint,
		PainLocation:   req.PainLocation,
		PainLevel:      req.PainLevel,
		PatientContext: req.PatientContext,
	}
	if c.singleImage {
		first := ""
		if len(req.ImagesBase64) > 0 {
			first = req.ImagesBase64[0]
		}
		payload.ImageBase64 = &first
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling inference payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpointURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating inference request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	c.log.WithFields(logrus.Fields{
		"images":  len(req.ImagesBase64),
		"timeout": c.timeout,
	}).Info("Calling inference endpoint")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if isTimeout(err) {
			c.log.WithFields(logrus.Fields{
				"elapsed": time.Since(start),
				"timeout": c.timeout,
			}).Error("Inference request timed out")
			return nil, fmt.Errorf("inference request timed out after %s: %w", c.timeout, domain.ErrInferenceTimeout)
		}
		return nil, fmt.Errorf("calling inference endpoint: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("inference response read timed out: %w", domain.ErrInferenceTimeout)
		}
		return nil, fmt.Errorf("reading inference response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.log.WithFields(logrus.Fields{
			"status": resp.StatusCode,
			"body":   truncate(string(respBody), 500),
		}).Error("Inference endpoint returned non-200")
		return nil, domain.NewUpstreamError(resp.StatusCode, string(respBody))
	}

	c.log.WithFields(logrus.Fields{
		"elapsed": time.Since(start),
		"bytes":   len(respBody),
	}).Info("Inference endpoint responded")

	return decodeInferenceResult(respBody), nil
}

// decodeInferenceResult maps the wire envelope onto the tagged raw-result
// union consumed by the normalizer.
func decodeInferenceResult(body []byte) *domain.RawInferenceResult {
	var envelope inferenceEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		// Not JSON at all: treat the raw body as a transcript and let the
		// normalizer's whole-transcript fallback deal with it.
		return &domain.RawInferenceResult{Transcript: string(body)}
	}

	if envelope.ProbableCondition != "" {
		return &domain.RawInferenceResult{
			Structured: &domain.StructuredResult{
				ProbableCondition: envelope.ProbableCondition,
				ConfidenceScore:   envelope.ConfidenceScore,
				Reasoning:         envelope.Reasoning,
				RehabPlan:         envelope.RehabPlan,
				ImageCaptions:     envelope.ImageCaptions,
				ModelVersion:      envelope.ModelVersion,
			},
		}
	}

	if envelope.Response != "" {
		return &domain.RawInferenceResult{Transcript: envelope.Response}
	}

	return &domain.RawInferenceResult{Transcript: string(body)}
}

// isTimeout reports whether err is a client-side deadline, as opposed to a
// connection failure or a server-side error status.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
