package external

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rehabflow-backend/internal/domain"
)

// StorageClient downloads injury image blobs from the private object
// storage bucket. Every failure mode (missing blob, transient error,
// non-2xx) surfaces as ErrUpstreamUnavailable so the pipeline never
// silently drops image evidence.
type StorageClient struct {
	baseURL    string
	serviceKey string
	bucket     string
	httpClient *http.Client
	log        *logrus.Logger
}

// NewStorageClient creates a new object storage client
func NewStorageClient(config domain.StorageConfig, logger *logrus.Logger) *StorageClient {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	bucket := config.Bucket
	if bucket == "" {
		bucket = "injury-images"
	}

	return &StorageClient{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		serviceKey: config.ServiceKey,
		bucket:     bucket,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: logger,
	}
}

// Download fetches a single object by its path within the bucket
func (c *StorageClient) Download(ctx context.Context, storagePath string) ([]byte, error) {
	objectURL := fmt.Sprintf("%s/storage/v1/object/%s/%s",
		c.baseURL, c.bucket, strings.TrimLeft(storagePath, "/"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, objectURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating storage request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)
	req.Header.Set("apikey", c.serviceKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.WithFields(logrus.Fields{
			"path":  storagePath,
			"error": err,
		}).Error("Failed to download image from storage")
		return nil, fmt.Errorf("downloading image %s: %w", storagePath, domain.ErrUpstreamUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.log.WithFields(logrus.Fields{
			"path":   storagePath,
			"status": resp.StatusCode,
		}).Error("Storage returned non-200 for image download")
		return nil, fmt.Errorf("downloading image %s: storage returned HTTP %d: %w",
			storagePath, resp.StatusCode, domain.ErrUpstreamUnavailable)
	}

	blob, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading image %s: %w", storagePath, domain.ErrUpstreamUnavailable)
	}

	return blob, nil
}
