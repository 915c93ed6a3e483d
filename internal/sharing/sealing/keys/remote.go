package keys

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"haven/pkg/platform/sentinel"
)

// RemoteConfig configures the KMS client.
type RemoteConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

type materialResponse struct {
	KeyID    string `json:"keyId"`
	Material string `json:"material"`
}

type randomRequest struct {
	Bytes int `json:"bytes"`
}

// RemoteKeyManager fetches keys from an HTTP key management service.
type RemoteKeyManager struct {
	client *resty.Client
}

func NewRemoteKeyManager(cfg RemoteConfig) *RemoteKeyManager {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetRetryCount(3).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Accept", "application/json")
	if cfg.Token != "" {
		client.SetAuthToken(cfg.Token)
	}
	return &RemoteKeyManager{client: client}
}

func (m *RemoteKeyManager) GetKey(ctx context.Context, keyID string) ([]byte, error) {
	var out materialResponse
	resp, err := m.client.R().
		SetContext(ctx).
		SetPathParam("keyID", keyID).
		SetResult(&out).
		Get("/v1/keys/{keyID}")
	if err != nil {
		return nil, fmt.Errorf("fetch key %s: %w", keyID, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, fmt.Errorf("key %s: %w", keyID, sentinel.ErrNotFound)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch key %s: kms returned %d: %w", keyID, resp.StatusCode(), sentinel.ErrUnavailable)
	}
	return decodeMaterial(out.Material)
}

func (m *RemoteKeyManager) GenerateSalt(ctx context.Context) ([]byte, error) {
	var out materialResponse
	resp, err := m.client.R().
		SetContext(ctx).
		SetBody(randomRequest{Bytes: SaltSize}).
		SetResult(&out).
		Post("/v1/random")
	if err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("generate salt: kms returned %d: %w", resp.StatusCode(), sentinel.ErrUnavailable)
	}
	return decodeMaterial(out.Material)
}

func decodeMaterial(material string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(material)
	if err != nil {
		return nil, fmt.Errorf("decode key material: %w", err)
	}
	return raw, nil
}
