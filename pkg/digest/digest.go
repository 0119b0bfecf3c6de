// Package digest computes the document digests recorded in and checked
// against the credential registry. Both sides of a check must use the same
// algorithm; the registry itself treats digests as opaque text.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	"golang.org/x/crypto/sha3"
)

// Algorithm names a supported 256-bit digest function.
type Algorithm string

const (
	SHA256   Algorithm = "sha256"
	SHA3_256 Algorithm = "sha3-256"
)

// Default is the algorithm used when none is configured.
const Default = SHA256

// HexLength is the length of every hex-encoded digest produced here.
const HexLength = 64

// ParseAlgorithm accepts "", "sha256", "sha-256", "sha3-256" (case-insensitive).
func ParseAlgorithm(value string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "sha256", "sha-256":
		return SHA256, nil
	case "sha3-256", "sha3":
		return SHA3_256, nil
	default:
		return "", fmt.Errorf("unsupported digest algorithm %q", value)
	}
}

func (a Algorithm) String() string {
	return string(a)
}

func (a Algorithm) multihashCode() uint64 {
	if a == SHA3_256 {
		return multihash.SHA3_256
	}
	return multihash.SHA2_256
}

func (a Algorithm) newHash() hash.Hash {
	if a == SHA3_256 {
		return sha3.New256()
	}
	return sha256.New()
}

// Sum returns the lowercase hex digest of data.
func (a Algorithm) Sum(data []byte) string {
	h := a.newHash()
	h.Write(data) //nolint:errcheck // hash.Hash writes never fail
	return hex.EncodeToString(h.Sum(nil))
}

// FromReader streams r through the hash and returns the hex digest.
func (a Algorithm) FromReader(r io.Reader) (string, error) {
	h := a.newHash()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("read document: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// FromFile digests the file at path.
func (a Algorithm) FromFile(path string) (string, error) {
	f, err := os.Open(path) // #nosec G304 -- path is operator supplied
	if err != nil {
		return "", fmt.Errorf("open document: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only handle

	return a.FromReader(f)
}

// Sum digests data with the default algorithm.
func Sum(data []byte) string {
	return Default.Sum(data)
}

// LooksValid reports whether s has the shape of a hex digest produced by this
// package. The registry does not enforce this; clients use it to catch typos.
func LooksValid(s string) bool {
	if len(s) != HexLength {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// CID wraps a hex digest produced by a into a CIDv1 with the raw codec, so a
// registered document can be addressed in content-addressed stores.
func (a Algorithm) CID(hexDigest string) (string, error) {
	raw, err := hex.DecodeString(hexDigest)
	if err != nil || len(raw) != HexLength/2 {
		return "", fmt.Errorf("not a %s digest: %q", a, hexDigest)
	}
	mh, err := multihash.Encode(raw, a.multihashCode())
	if err != nil {
		return "", fmt.Errorf("encode multihash: %w", err)
	}
	return cid.NewCidV1(cid.Raw, mh).String(), nil
}

// DigestFromCID extracts the hex digest from a CIDv1 produced by CID and
// reports which algorithm it was made with.
func DigestFromCID(s string) (Algorithm, string, error) {
	c, err := cid.Decode(s)
	if err != nil {
		return "", "", fmt.Errorf("decode cid: %w", err)
	}
	decoded, err := multihash.Decode(c.Hash())
	if err != nil {
		return "", "", fmt.Errorf("decode multihash: %w", err)
	}
	switch decoded.Code {
	case multihash.SHA2_256:
		return SHA256, hex.EncodeToString(decoded.Digest), nil
	case multihash.SHA3_256:
		return SHA3_256, hex.EncodeToString(decoded.Digest), nil
	default:
		return "", "", fmt.Errorf("unsupported multihash %s", decoded.Name)
	}
}
