package utils

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddress(t *testing.T) {
	checksummed := "0x21b5562FEee5013379F8F79C5093EC294d535BEC"
	want := common.HexToAddress(checksummed)

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "checksummed", input: checksummed},
		{name: "lowercase", input: "0x21b5562feee5013379f8f79c5093ec294d535bec"},
		{name: "no prefix", input: "21b5562feee5013379f8f79c5093ec294d535bec"},
		{name: "bad checksum", input: "0x21B5562FEee5013379F8F79C5093EC294d535BEC", wantErr: true},
		{name: "too short", input: "0x21b5", wantErr: true},
		{name: "not hex", input: "EQCtoken", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAddress(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestParseAmount(t *testing.T) {
	v, err := ParseAmount("1000000000000000000")
	require.NoError(t, err)
	assert.Equal(t, 0, v.Cmp(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)))

	max := "115792089237316195423570985008687907853269984665640564039457584007913129639935"
	v, err = ParseAmount(max)
	require.NoError(t, err)
	assert.Equal(t, max, v.String())

	for _, bad := range []string{"", "-1", "1.5", "abc", max + "0"} {
		_, err := ParseAmount(bad)
		assert.Error(t, err, bad)
	}

	none, err := ParseOptionalAmount(" ")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestNormalizeEvmAddress(t *testing.T) {
	assert.Equal(t, "0xabcdef", NormalizeEvmAddress("ABCDEF"))
	assert.Equal(t, "0xabcdef", NormalizeEvmAddress("0xAbCdEf"))
	assert.Equal(t, "", NormalizeEvmAddress(""))
}
