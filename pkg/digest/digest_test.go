package digest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const emptySHA256 = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

func TestSumKnownVectors(t *testing.T) {
	assert.Equal(t, emptySHA256, Sum(nil))
	assert.Equal(t, "a591a6d40bf420404a011733cfb7b190d62c65bf0bcda32b57b277d9ad9f146e", SHA256.Sum([]byte("Hello World")))
	assert.Equal(t, "a7ffc6f8bf1ed76651c14756a061d662f580ff4de43b49fa82d80a4b80f8434a", SHA3_256.Sum(nil))
}

func TestFromReaderMatchesSum(t *testing.T) {
	doc := "ijazah_ahmad_fauzi_2021001_TI_2024.pdf"
	for _, alg := range []Algorithm{SHA256, SHA3_256} {
		got, err := alg.FromReader(strings.NewReader(doc))
		require.NoError(t, err)
		assert.Equal(t, alg.Sum([]byte(doc)), got, alg.String())
	}
}

func TestFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "diploma.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.7 diploma"), 0o600))

	got, err := SHA256.FromFile(path)
	require.NoError(t, err)
	assert.Equal(t, Sum([]byte("%PDF-1.7 diploma")), got)

	_, err = SHA256.FromFile(filepath.Join(t.TempDir(), "missing.pdf"))
	assert.Error(t, err)
}

func TestParseAlgorithm(t *testing.T) {
	cases := map[string]Algorithm{"": SHA256, "SHA-256": SHA256, "sha256": SHA256, "sha3-256": SHA3_256}
	for in, want := range cases {
		got, err := ParseAlgorithm(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseAlgorithm("md5")
	assert.Error(t, err)
}

func TestLooksValid(t *testing.T) {
	assert.True(t, LooksValid(emptySHA256))
	assert.True(t, LooksValid(strings.Repeat("0", 64)))
	assert.False(t, LooksValid("abc"))
	assert.False(t, LooksValid(strings.Repeat("z", 64)))
}

func TestCIDMatchesMultihashSum(t *testing.T) {
	doc := []byte("%PDF-1.7 diploma")
	for _, alg := range []Algorithm{SHA256, SHA3_256} {
		got, err := alg.CID(alg.Sum(doc))
		require.NoError(t, err, alg.String())

		sum, err := multihash.Sum(doc, alg.multihashCode(), -1)
		require.NoError(t, err)
		assert.Equal(t, cid.NewCidV1(cid.Raw, sum).String(), got, alg.String())

		back, hexDigest, err := DigestFromCID(got)
		require.NoError(t, err)
		assert.Equal(t, alg, back)
		assert.Equal(t, alg.Sum(doc), hexDigest)
	}
}

func TestCIDRejectsMalformedDigests(t *testing.T) {
	for _, in := range []string{"", "abc", strings.Repeat("z", 64), strings.Repeat("0", 62)} {
		_, err := SHA256.CID(in)
		assert.Error(t, err, in)
	}
	_, _, err := DigestFromCID("not-a-cid")
	assert.Error(t, err)
}
