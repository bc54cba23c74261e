// Package wallet hands out the senders that authorize cross-chain messages.
package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"

	"lending-gateway/internal/clients"
	"lending-gateway/internal/config"
	"lending-gateway/internal/lending"
)

// KMSSigner is the subset of the KMS client the connector needs.
type KMSSigner interface {
	Sign(ctx context.Context, keyAlias, k1, digestHex string, chainID int) (string, error)
	GetKeyByAlias(ctx context.Context, keyAlias string, chainID int) (*clients.KMSKeyInfo, error)
}

// Connector implements lending.SenderFactory over a server-held key,
// either local or in the KMS.
type Connector struct {
	cfg config.WalletConfig
	kms KMSSigner
	log *logrus.Entry

	mu     sync.Mutex
	sender lending.Sender
}

var _ lending.SenderFactory = (*Connector)(nil)

// NewConnector validates cfg; kms may be nil unless cfg.Mode is kms.
func NewConnector(cfg config.WalletConfig, kms KMSSigner, logger *logrus.Logger) (*Connector, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	c := &Connector{cfg: cfg, kms: kms, log: logger.WithField("component", "wallet")}

	switch cfg.Mode {
	case config.WalletModePrivateKey:
		s, err := newKeySender(cfg.PrivateKey, cfg.Address)
		if err != nil {
			return nil, err
		}
		c.sender = s
	case config.WalletModeKMS:
		if kms == nil {
			return nil, fmt.Errorf("wallet mode %s requires a KMS client", cfg.Mode)
		}
		if cfg.KMSKeyAlias == "" {
			return nil, fmt.Errorf("wallet mode %s requires a key alias", cfg.Mode)
		}
	default:
		return nil, fmt.Errorf("unknown wallet mode %q", cfg.Mode)
	}
	return c, nil
}

// GetSender returns the configured sender. KMS senders resolve their
// address on first use and are reused afterwards.
func (c *Connector) GetSender(ctx context.Context) (lending.Sender, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sender != nil {
		return c.sender, nil
	}

	address := c.cfg.Address
	if address == "" {
		key, err := c.kms.GetKeyByAlias(ctx, c.cfg.KMSKeyAlias, c.cfg.ChainID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve sender address: %w", err)
		}
		address = key.PublicAddress
	}

	c.sender = &kmsSender{
		kms:     c.kms,
		alias:   c.cfg.KMSKeyAlias,
		k1:      c.cfg.KMSK1,
		chainID: c.cfg.ChainID,
		address: address,
	}
	c.log.WithFields(logrus.Fields{
		"alias":   c.cfg.KMSKeyAlias,
		"address": address,
	}).Info("🔑 KMS sender ready")
	return c.sender, nil
}

type keySender struct {
	key     *ecdsa.PrivateKey
	address string
}

func newKeySender(privateKeyHex, address string) (*keySender, error) {
	if privateKeyHex == "" {
		return nil, fmt.Errorf("wallet private key is not configured")
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid wallet private key: %w", err)
	}
	if address == "" {
		address = crypto.PubkeyToAddress(key.PublicKey).Hex()
	}
	return &keySender{key: key, address: address}, nil
}

func (s *keySender) Address() string { return s.address }

func (s *keySender) Sign(_ context.Context, digest []byte) ([]byte, error) {
	return crypto.Sign(digest, s.key)
}

type kmsSender struct {
	kms     KMSSigner
	alias   string
	k1      string
	chainID int
	address string
}

func (s *kmsSender) Address() string { return s.address }

func (s *kmsSender) Sign(ctx context.Context, digest []byte) ([]byte, error) {
	signature, err := s.kms.Sign(ctx, s.alias, s.k1, hexutil.Encode(digest), s.chainID)
	if err != nil {
		return nil, err
	}
	return hexutil.Decode(signature)
}
