package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"lending-gateway/internal/config"
	"lending-gateway/internal/lending"
)

const (
	userAgent   = "lending-gateway/1.0"
	serviceName = "lending-gateway"
)

// TACClient talks to the cross-chain sequencer. It implements
// lending.CrossChainSDK.
type TACClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	tokens     *ristretto.Cache
	log        *logrus.Entry
}

var _ lending.CrossChainSDK = (*TACClient)(nil)

// CrossChainSender identifies and authorizes the TVM-side caller.
type CrossChainSender struct {
	Address   string `json:"address"`
	Signature string `json:"signature"` // hex signature over the proxy message digest
}

// CrossChainRequest body of a cross-chain submission
type CrossChainRequest struct {
	EvmProxyMsg lending.ProxyMessage `json:"evmProxyMsg"`
	Sender      CrossChainSender     `json:"sender"`
	Assets      []lending.Asset      `json:"assets"`
}

// CrossChainResponse sequencer reply to a submission
type CrossChainResponse struct {
	Success  bool                       `json:"success"`
	Response *lending.TransactionLinker `json:"response,omitempty"`
	Error    string                     `json:"error,omitempty"`
}

// TokenAddressResponse sequencer reply to a token address lookup
type TokenAddressResponse struct {
	Success bool   `json:"success"`
	Address string `json:"address,omitempty"`
	Error   string `json:"error,omitempty"`
}

// NewTACClient creates a sequencer client with its token cache and rate limiter.
func NewTACClient(cfg config.TACConfig, logger *logrus.Logger) (*TACClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("tac base url is not configured")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	timeout := 30 * time.Second
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	cacheSize := cfg.TokenCacheSize
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	tokens, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cacheSize * 10,
		MaxCost:     cacheSize,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create token cache: %w", err)
	}

	return &TACClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(limit, burst),
		tokens:  tokens,
		log:     logger.WithField("component", "tac_client"),
	}, nil
}

// SendCrossChainTransaction signs the message digest with sender and submits it.
func (c *TACClient) SendCrossChainTransaction(ctx context.Context, msg lending.ProxyMessage, sender lending.Sender, assets []lending.Asset) (*lending.TransactionLinker, error) {
	digest, err := msg.Digest()
	if err != nil {
		return nil, err
	}
	signature, err := sender.Sign(ctx, digest)
	if err != nil {
		return nil, fmt.Errorf("failed to sign proxy message: %w", err)
	}

	if assets == nil {
		assets = []lending.Asset{}
	}
	req := CrossChainRequest{
		EvmProxyMsg: msg,
		Sender: CrossChainSender{
			Address:   sender.Address(),
			Signature: hexutil.Encode(signature),
		},
		Assets: assets,
	}

	response, err := c.makeRequest(ctx, http.MethodPost, "/cross-chain/transactions", req)
	if err != nil {
		return nil, fmt.Errorf("cross-chain submission failed: %w", err)
	}

	var sendResp CrossChainResponse
	if err := json.Unmarshal(response, &sendResp); err != nil {
		return nil, fmt.Errorf("failed to parse cross-chain response: %w", err)
	}
	if !sendResp.Success || sendResp.Response == nil {
		return nil, fmt.Errorf("cross-chain submission rejected: %s", sendResp.Error)
	}

	c.log.WithFields(logrus.Fields{
		"method":    msg.MethodName,
		"caller":    sendResp.Response.Caller,
		"shardsKey": sendResp.Response.ShardsKey,
	}).Info("📤 cross-chain transaction submitted")

	return sendResp.Response, nil
}

// GetTVMTokenAddress maps an EVM token to its TVM counterpart. Results are
// cached; the mapping is fixed once a token is bridged.
func (c *TACClient) GetTVMTokenAddress(ctx context.Context, evmAddress string) (string, error) {
	key := strings.ToLower(evmAddress)
	if cached, ok := c.tokens.Get(key); ok {
		return cached.(string), nil
	}

	response, err := c.makeRequest(ctx, http.MethodGet, "/token-address?evm="+url.QueryEscape(evmAddress), nil)
	if err != nil {
		return "", fmt.Errorf("token address lookup failed: %w", err)
	}

	var tokenResp TokenAddressResponse
	if err := json.Unmarshal(response, &tokenResp); err != nil {
		return "", fmt.Errorf("failed to parse token address response: %w", err)
	}
	if !tokenResp.Success || tokenResp.Address == "" {
		return "", fmt.Errorf("no tvm address for %s: %s", evmAddress, tokenResp.Error)
	}

	c.tokens.Set(key, tokenResp.Address, 1)
	return tokenResp.Address, nil
}

// Close releases the token cache.
func (c *TACClient) Close() {
	c.tokens.Close()
}

func (c *TACClient) makeRequest(ctx context.Context, method, path string, data interface{}) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

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
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
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
