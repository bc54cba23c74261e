package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"lending-gateway/internal/config"
)

// KMSClient remote signer client. Keys never leave the KMS; the gateway
// holds only the alias and the transport key K1.
type KMSClient struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
}

// KMSSignRequest dual-layer decryption signature request
type KMSSignRequest struct {
	KeyAlias string `json:"key_alias"`
	ChainID  int    `json:"chain_id"`
	Data     string `json:"data"` // digest to sign (hex)
	K1       string `json:"k1"`   // transport key (Base64)
}

// KMSSignResponse dual-layer decryption signature response
type KMSSignResponse struct {
	Success   bool   `json:"success"`
	Signature string `json:"signature,omitempty"`
	Error     string `json:"error,omitempty"`
}

// KMSGetKeysResponse key listing response
type KMSGetKeysResponse struct {
	Success bool         `json:"success"`
	Count   int          `json:"count"`
	Keys    []KMSKeyInfo `json:"keys"`
	Error   string       `json:"error,omitempty"`
}

// KMSKeyInfo stored key metadata
type KMSKeyInfo struct {
	KeyAlias      string    `json:"key_alias"`
	ChainID       int       `json:"chain_id"`
	PublicAddress string    `json:"public_address"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

// NewKMSClient creates a KMS client
func NewKMSClient(cfg config.KMSConfig) *KMSClient {
	timeout := 30 * time.Second
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}

	return &KMSClient{
		baseURL:   cfg.ServiceURL,
		authToken: cfg.AuthToken,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Sign asks the KMS to sign a hex digest with the key stored under keyAlias.
func (c *KMSClient) Sign(ctx context.Context, keyAlias, k1, digestHex string, chainID int) (string, error) {
	req := KMSSignRequest{
		KeyAlias: keyAlias,
		ChainID:  chainID,
		Data:     digestHex,
		K1:       k1,
	}

	response, err := c.makeRequest(ctx, http.MethodPost, "/api/v1/dual-layer/sign", req)
	if err != nil {
		return "", fmt.Errorf("kms sign request failed: %w", err)
	}

	var signResp KMSSignResponse
	if err := json.Unmarshal(response, &signResp); err != nil {
		return "", fmt.Errorf("failed to parse kms sign response: %w", err)
	}

	if !signResp.Success {
		return "", fmt.Errorf("kms sign failed: %s", signResp.Error)
	}

	return signResp.Signature, nil
}

// GetStoredKeys lists the keys held by the KMS
func (c *KMSClient) GetStoredKeys(ctx context.Context) (*KMSGetKeysResponse, error) {
	response, err := c.makeRequest(ctx, http.MethodGet, "/api/v1/keys", nil)
	if err != nil {
		return nil, fmt.Errorf("kms key listing failed: %w", err)
	}

	var keysResp KMSGetKeysResponse
	if err := json.Unmarshal(response, &keysResp); err != nil {
		return nil, fmt.Errorf("failed to parse kms key listing: %w", err)
	}

	if !keysResp.Success {
		return nil, fmt.Errorf("kms key listing failed: %s", keysResp.Error)
	}

	return &keysResp, nil
}

// GetKeyByAlias finds the key registered for alias on chainID
func (c *KMSClient) GetKeyByAlias(ctx context.Context, keyAlias string, chainID int) (*KMSKeyInfo, error) {
	keysResp, err := c.GetStoredKeys(ctx)
	if err != nil {
		return nil, err
	}

	for _, key := range keysResp.Keys {
		if key.KeyAlias == keyAlias && key.ChainID == chainID {
			return &key, nil
		}
	}

	return nil, fmt.Errorf("kms key not found: alias=%s, chainID=%d", keyAlias, chainID)
}

// HealthCheck checks the KMS reports healthy
func (c *KMSClient) HealthCheck(ctx context.Context) error {
	response, err := c.makeRequest(ctx, http.MethodGet, "/api/v1/health", nil)
	if err != nil {
		return fmt.Errorf("kms health check failed: %w", err)
	}

	var healthResp struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(response, &healthResp); err != nil {
		return fmt.Errorf("failed to parse kms health response: %w", err)
	}

	if healthResp.Status != "healthy" {
		return fmt.Errorf("kms status: %s", healthResp.Status)
	}

	return nil
}

func (c *KMSClient) makeRequest(ctx context.Context, method, path string, data interface{}) ([]byte, error) {
	var body io.Reader
	if data != nil {
		jsonData, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
		req.Header.Set("X-Service-Name", serviceName)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("http request failed: status=%d, body=%s", resp.StatusCode, string(responseBody))
	}

	return responseBody, nil
}
