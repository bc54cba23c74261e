package utils

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// IsEvmAddress checks for a 20-byte hex address, with or without 0x
func IsEvmAddress(address string) bool {
	return common.IsHexAddress(address)
}

// ParseAddress parses a 20-byte hex address. All-lowercase and
// all-uppercase input is accepted as is; mixed case must carry a valid
// EIP-55 checksum.
func ParseAddress(address string) (common.Address, error) {
	address = strings.TrimSpace(address)
	if !IsEvmAddress(address) {
		return common.Address{}, fmt.Errorf("invalid address %q", address)
	}

	parsed := common.HexToAddress(address)
	body := strings.TrimPrefix(strings.TrimPrefix(address, "0x"), "0X")
	if body != strings.ToLower(body) && body != strings.ToUpper(body) {
		if parsed.Hex()[2:] != body {
			return common.Address{}, fmt.Errorf("address %q has an invalid checksum", address)
		}
	}
	return parsed, nil
}

// NormalizeEvmAddress lowercases a hex address and adds the 0x prefix
func NormalizeEvmAddress(address string) string {
	if address == "" {
		return ""
	}
	lower := strings.ToLower(strings.TrimSpace(address))
	if !strings.HasPrefix(lower, "0x") {
		lower = "0x" + lower
	}
	return lower
}
