package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrSignatureMismatch the signature is well formed but from another key
var ErrSignatureMismatch = errors.New("signature does not match address")

// LoginMessage is the text a wallet signs to log in.
func LoginMessage(address, nonce string, issuedAt int64) string {
	return fmt.Sprintf("Lending Gateway Authentication\nAddress: %s\nNonce: %s\nTimestamp: %d", strings.ToLower(address), nonce, issuedAt)
}

// VerifyPersonalSignature checks an EIP-191 personal_sign signature of
// message by address. Both 0/1 and 27/28 recovery ids are accepted.
func VerifyPersonalSignature(address common.Address, message, signatureHex string) error {
	sig, err := hexutil.Decode(signatureHex)
	if err != nil {
		return fmt.Errorf("invalid signature encoding: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return fmt.Errorf("invalid signature length %d", len(sig))
	}

	sig = append([]byte(nil), sig...)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return fmt.Errorf("failed to recover signer: %w", err)
	}
	if crypto.PubkeyToAddress(*pub) != address {
		return ErrSignatureMismatch
	}
	return nil
}
