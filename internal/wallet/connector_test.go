package wallet

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lending-gateway/internal/clients"
	"lending-gateway/internal/config"
)

const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

type fakeKMS struct {
	lookups   int
	signedHex string
	lookupErr error
}

func (f *fakeKMS) Sign(_ context.Context, keyAlias, k1, digestHex string, chainID int) (string, error) {
	f.signedHex = digestHex
	return "0x" + "ab" + digestHex[2:], nil
}

func (f *fakeKMS) GetKeyByAlias(_ context.Context, keyAlias string, chainID int) (*clients.KMSKeyInfo, error) {
	f.lookups++
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	return &clients.KMSKeyInfo{KeyAlias: keyAlias, ChainID: chainID, PublicAddress: "EQkms"}, nil
}

func TestPrivateKeySender(t *testing.T) {
	c, err := NewConnector(config.WalletConfig{Mode: config.WalletModePrivateKey, PrivateKey: "0x" + testKey}, nil, nil)
	require.NoError(t, err)

	sender, err := c.GetSender(context.Background())
	require.NoError(t, err)

	key, err := crypto.HexToECDSA(testKey)
	require.NoError(t, err)
	expected := crypto.PubkeyToAddress(key.PublicKey)
	assert.Equal(t, expected.Hex(), sender.Address())

	digest := crypto.Keccak256([]byte("proxy message"))
	sig, err := sender.Sign(context.Background(), digest)
	require.NoError(t, err)
	require.Len(t, sig, 65)

	pub, err := crypto.SigToPub(digest, sig)
	require.NoError(t, err)
	assert.Equal(t, expected, crypto.PubkeyToAddress(*pub))
}

func TestPrivateKeySenderConfiguredAddress(t *testing.T) {
	c, err := NewConnector(config.WalletConfig{Mode: config.WalletModePrivateKey, PrivateKey: testKey, Address: "EQwallet"}, nil, nil)
	require.NoError(t, err)

	sender, err := c.GetSender(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "EQwallet", sender.Address())
}

func TestNewConnectorValidation(t *testing.T) {
	_, err := NewConnector(config.WalletConfig{Mode: config.WalletModePrivateKey}, nil, nil)
	assert.Error(t, err)

	_, err = NewConnector(config.WalletConfig{Mode: config.WalletModePrivateKey, PrivateKey: "zz"}, nil, nil)
	assert.Error(t, err)

	_, err = NewConnector(config.WalletConfig{Mode: config.WalletModeKMS, KMSKeyAlias: "gw"}, nil, nil)
	assert.Error(t, err)

	_, err = NewConnector(config.WalletConfig{Mode: config.WalletModeKMS}, &fakeKMS{}, nil)
	assert.Error(t, err)

	_, err = NewConnector(config.WalletConfig{Mode: "ledger"}, nil, nil)
	assert.Error(t, err)
}

func TestKMSSender(t *testing.T) {
	kms := &fakeKMS{}
	c, err := NewConnector(config.WalletConfig{Mode: config.WalletModeKMS, KMSKeyAlias: "gw", ChainID: 239}, kms, nil)
	require.NoError(t, err)

	sender, err := c.GetSender(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "EQkms", sender.Address())

	again, err := c.GetSender(context.Background())
	require.NoError(t, err)
	assert.Same(t, sender, again)
	assert.Equal(t, 1, kms.lookups)

	digest := []byte{0x01, 0x02, 0x03}
	sig, err := sender.Sign(context.Background(), digest)
	require.NoError(t, err)
	assert.Equal(t, hexutil.Encode(digest), kms.signedHex)
	assert.Equal(t, []byte{0xab, 0x01, 0x02, 0x03}, sig)
}

func TestKMSSenderLookupError(t *testing.T) {
	kms := &fakeKMS{lookupErr: errors.New("kms down")}
	c, err := NewConnector(config.WalletConfig{Mode: config.WalletModeKMS, KMSKeyAlias: "gw"}, kms, nil)
	require.NoError(t, err)

	_, err = c.GetSender(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, kms.lookupErr)

	kms.lookupErr = nil
	sender, err := c.GetSender(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "EQkms", sender.Address())
}
