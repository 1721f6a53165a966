package external

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rehabflow-backend/internal/domain"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestInferenceClient_Analyze_StructuredResponse(t *testing.T) {
	var capturedBody map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &capturedBody))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"probable_condition": "ACL Sprain",
			"confidence_score":   0.82,
			"reasoning":          "Twisting injury with swelling suggests ligament damage.",
			"rehab_plan":         "1. Rest and ice\n2. Gentle range of motion",
			"image_captions":     []string{"swollen knee with bruising"},
		})
	}))
	defer server.Close()

	client := NewInferenceClient(domain.InferenceConfig{
		EndpointURL: server.URL,
		Timeout:     5 * time.Second,
	}, testLogger())

	result, err := client.Analyze(context.Background(), &domain.InferenceRequest{
		ImagesBase64:  []string{"aW1hZ2Ux", "aW1hZ2Uy"},
		TextComplaint: "Fell during a trail run. Visible swelling is present.",
		PainLocation:  "left knee",
		PainLevel:     6,
		PatientContext: domain.PatientContext{
			OccupationType:    "office_worker",
			MedicalConditions: []string{"Arthritis"},
		},
	})
	require.NoError(t, err)

	require.True(t, result.IsStructured())
	assert.Equal(t, "ACL Sprain", result.Structured.ProbableCondition)
	assert.Equal(t, 0.82, result.Structured.ConfidenceScore)
	assert.Equal(t, "1. Rest and ice\n2. Gentle range of motion", result.Structured.RehabPlan)
	assert.Equal(t, []string{"swollen knee with bruising"}, result.Structured.ImageCaptions)

	// Wire payload carries the full image list and the clinical context.
	assert.Equal(t, "left knee", capturedBody["pain_location"])
	assert.Equal(t, float64(6), capturedBody["pain_level"])
	assert.Len(t, capturedBody["images_base64"], 2)
	assert.NotContains(t, capturedBody, "image_base64")
}

func TestInferenceClient_Analyze_LegacySingleImage(t *testing.T) {
	var capturedBody map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &capturedBody)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"probable_condition": "Sprain",
			"confidence_score":   0.5,
			"reasoning":          "r",
		})
	}))
	defer server.Close()

	client := NewInferenceClient(domain.InferenceConfig{
		EndpointURL:       server.URL,
		Timeout:           5 * time.Second,
		LegacySingleImage: true,
	}, testLogger())

	_, err := client.Analyze(context.Background(), &domain.InferenceRequest{
		ImagesBase64:  []string{"Zmlyc3Q=", "c2Vjb25k"},
		TextComplaint: "Pain in wrist",
		PainLocation:  "wrist",
		PainLevel:     3,
	})
	require.NoError(t, err)

	assert.Equal(t, "Zmlyc3Q=", capturedBody["image_base64"])
	assert.Len(t, capturedBody["images_base64"], 2)
}

func TestInferenceClient_Analyze_TranscriptResponse(t *testing.T) {
	transcript := "**Probable Condition:** ACL Sprain\n**Confidence:** 0.82\nClinical Reasoning:\nThe mechanism fits."

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"response": transcript})
	}))
	defer server.Close()

	client := NewInferenceClient(domain.InferenceConfig{
		EndpointURL: server.URL,
		Timeout:     5 * time.Second,
	}, testLogger())

	result, err := client.Analyze(context.Background(), &domain.InferenceRequest{
		TextComplaint: "Pain in left knee",
		PainLocation:  "left knee",
		PainLevel:     6,
	})
	require.NoError(t, err)

	require.False(t, result.IsStructured())
	assert.Equal(t, transcript, result.Transcript)
}

func TestInferenceClient_Analyze_NonJSONBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("model output that is not json"))
	}))
	defer server.Close()

	client := NewInferenceClient(domain.InferenceConfig{
		EndpointURL: server.URL,
		Timeout:     5 * time.Second,
	}, testLogger())

	result, err := client.Analyze(context.Background(), &domain.InferenceRequest{
		TextComplaint: "Pain in shoulder",
		PainLocation:  "shoulder",
		PainLevel:     4,
	})
	require.NoError(t, err)

	require.False(t, result.IsStructured())
	assert.Equal(t, "model output that is not json", result.Transcript)
}

func TestInferenceClient_Analyze_UpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"detail":"images_base64 field required"}`))
	}))
	defer server.Close()

	client := NewInferenceClient(domain.InferenceConfig{
		EndpointURL: server.URL,
		Timeout:     5 * time.Second,
	}, testLogger())

	_, err := client.Analyze(context.Background(), &domain.InferenceRequest{
		TextComplaint: "Pain in hip",
		PainLocation:  "hip",
		PainLevel:     5,
	})
	require.Error(t, err)

	var upstreamErr *domain.UpstreamError
	require.True(t, errors.As(err, &upstreamErr))
	assert.Equal(t, http.StatusUnprocessableEntity, upstreamErr.StatusCode)
	assert.Contains(t, upstreamErr.Body, "images_base64")
	assert.False(t, errors.Is(err, domain.ErrInferenceTimeout))
}

func TestInferenceClient_Analyze_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewInferenceClient(domain.InferenceConfig{
		EndpointURL: server.URL,
		Timeout:     50 * time.Millisecond,
	}, testLogger())

	_, err := client.Analyze(context.Background(), &domain.InferenceRequest{
		TextComplaint: "Pain in ankle",
		PainLocation:  "ankle",
		PainLevel:     2,
	})
	require.Error(t, err)

	assert.True(t, errors.Is(err, domain.ErrInferenceTimeout))

	var upstreamErr *domain.UpstreamError
	assert.False(t, errors.As(err, &upstreamErr))
}

func TestInferenceClient_Analyze_NoEndpoint(t *testing.T) {
	client := NewInferenceClient(domain.InferenceConfig{}, testLogger())

	_, err := client.Analyze(context.Background(), &domain.InferenceRequest{
		TextComplaint: "Pain in back",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "endpoint URL")
}
