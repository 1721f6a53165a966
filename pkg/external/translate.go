package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rehabflow-backend/internal/domain"
)

// nllbCodes maps profile language shortcodes to the BCP-47 style codes the
// NLLB-200 translation endpoint expects.
var nllbCodes = map[string]string{
	"en": "eng_Latn",
	"es": "spa_Latn",
	"fr": "fra_Latn",
	"de": "deu_Latn",
	"nl": "nld_Latn",
	"pt": "por_Latn",
	"it": "ita_Latn",
	"hi": "hin_Deva",
	"bn": "ben_Beng",
	"ta": "tam_Taml",
	"te": "tel_Telu",
	"ja": "jpn_Jpan",
	"ko": "kor_Hang",
	"zh": "zho_Hans",
	"ar": "arb_Arab",
	"ru": "rus_Cyrl",
	"tr": "tur_Latn",
	"pl": "pol_Latn",
	"uk": "ukr_Cyrl",
	"vi": "vie_Latn",
	"id": "ind_Latn",
	"th": "tha_Thai",
}

// TranslationClient calls the NLLB-200 serverless translation endpoint.
type TranslationClient struct {
	endpointURL string
	httpClient  *http.Client
	log         *logrus.Logger
}

// NewTranslationClient creates a client for the translation endpoint
func NewTranslationClient(config domain.TranslationConfig, logger *logrus.Logger) *TranslationClient {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &TranslationClient{
		endpointURL: config.EndpointURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: logger,
	}
}

type translateRequest struct {
	Text       string `json:"text"`
	SourceLang string `json:"source_lang"`
	TargetLang string `json:"target_lang"`
}

type translateResponse struct {
	TranslatedText string `json:"translated_text"`
}

// Translate converts text between two language shortcodes (e.g. "en", "hi").
// Unknown shortcodes and endpoint failures return an error; callers decide
// whether translation is best-effort or mandatory.
func (c *TranslationClient) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return text, nil
	}
	if c.endpointURL == "" {
		return "", fmt.Errorf("translation endpoint URL not configured")
	}

	source, ok := nllbCodes[strings.ToLower(sourceLang)]
	if !ok {
		return "", fmt.Errorf("unsupported source language %q", sourceLang)
	}
	target, ok := nllbCodes[strings.ToLower(targetLang)]
	if !ok {
		return "", fmt.Errorf("unsupported target language %q", targetLang)
	}

	payload, err := json.Marshal(translateRequest{
		Text:       text,
		SourceLang: source,
		TargetLang: target,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling translation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpointURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("creating translation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.WithError(err).Error("Translation request failed")
		return "", fmt.Errorf("calling translation endpoint: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading translation response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.log.WithFields(logrus.Fields{
			"status": resp.StatusCode,
			"body":   truncate(string(body), 500),
		}).Error("Translation endpoint returned non-200")
		return "", fmt.Errorf("translation endpoint returned HTTP %d", resp.StatusCode)
	}

	var response translateResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("parsing translation response: %w", err)
	}

	return response.TranslatedText, nil
}
