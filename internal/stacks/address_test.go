package stacks

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeAddressZeroHash(t *testing.T) {
	zero := make([]byte, 20)

	mainnet, err := EncodeAddress(VersionMainnetSingleSig, zero)
	require.NoError(t, err)
	require.Equal(t, "SP000000000000000000002Q6VF78", mainnet)

	testnet, err := EncodeAddress(VersionTestnetSingleSig, zero)
	require.NoError(t, err)
	require.Equal(t, "ST000000000000000000002AMW42H", testnet)
}

func TestAddressRoundTrip(t *testing.T) {
	hashes := [][]byte{
		make([]byte, 20),
		bytes.Repeat([]byte{0xff}, 20),
		append(make([]byte, 10), bytes.Repeat([]byte{0xa5}, 10)...),
		{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a,
			0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10, 0x11, 0x12, 0x13, 0x14},
	}
	versions := []byte{
		VersionMainnetSingleSig, VersionMainnetMultiSig,
		VersionTestnetSingleSig, VersionTestnetMultiSig,
	}

	for _, version := range versions {
		for _, hash := range hashes {
			addr, err := EncodeAddress(version, hash)
			require.NoError(t, err)

			gotVersion, gotHash, err := DecodeAddress(addr)
			require.NoError(t, err, "decode %s", addr)
			require.Equal(t, version, gotVersion)
			require.Equal(t, hash, gotHash)
		}
	}
}

func TestDecodeAddressNormalizesHomoglyphs(t *testing.T) {
	addr, err := EncodeAddress(VersionMainnetSingleSig, make([]byte, 20))
	require.NoError(t, err)

	lowered := "S" + addr[1:2] + "ooooooooooooooooooo" + addr[21:]
	_, _, err = DecodeAddress(lowered)
	require.NoError(t, err)
}

func TestDecodeAddressRejectsBadChecksum(t *testing.T) {
	addr, err := EncodeAddress(VersionMainnetSingleSig, bytes.Repeat([]byte{0x11}, 20))
	require.NoError(t, err)

	tampered := []byte(addr)
	last := tampered[len(tampered)-1]
	if last == 'Z' {
		tampered[len(tampered)-1] = 'Y'
	} else {
		tampered[len(tampered)-1] = 'Z'
	}
	_, _, err = DecodeAddress(string(tampered))
	require.Error(t, err)
}

func TestEncodeAddressRejectsBadInput(t *testing.T) {
	_, err := EncodeAddress(VersionMainnetSingleSig, make([]byte, 19))
	require.Error(t, err)

	_, err = EncodeAddress(40, make([]byte, 20))
	require.Error(t, err)
}

func TestVersionForHashMode(t *testing.T) {
	cases := []struct {
		mode    uint8
		chain   Chain
		version byte
	}{
		{HashModeP2PKH, ChainMainnet, VersionMainnetSingleSig},
		{HashModeP2WPKH, ChainMainnet, VersionMainnetSingleSig},
		{HashModeP2SH, ChainMainnet, VersionMainnetMultiSig},
		{HashModeP2WSH, ChainMainnet, VersionMainnetMultiSig},
		{HashModeP2PKH, ChainTestnet, VersionTestnetSingleSig},
		{HashModeP2SH, ChainTestnet, VersionTestnetMultiSig},
	}
	for _, tc := range cases {
		got, err := VersionForHashMode(tc.mode, tc.chain)
		require.NoError(t, err)
		require.Equal(t, tc.version, got)
	}

	_, err := VersionForHashMode(0x09, ChainMainnet)
	require.Error(t, err)
}
