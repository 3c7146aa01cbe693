package codec

import (
	"crypto/sha256"

	"github.com/multiformats/go-multihash"
	"lukechampine.com/blake3"
)

// Hash is a multihash-prefixed digest: <hash-function code><digest
// length><digest bytes>, per spec §3/§4.1. It is comparable and usable
// as a map key.
type Hash string

// Digest names a pluggable hash function (spec §4.1: "default SHA-256").
type Digest uint8

const (
	SHA256 Digest = iota
	BLAKE3
)

func (d Digest) code() uint64 {
	switch d {
	case BLAKE3:
		return multihash.BLAKE3
	default:
		return multihash.SHA2_256
	}
}

func (d Digest) sum(data []byte) []byte {
	switch d {
	case BLAKE3:
		h := blake3.Sum256(data)
		return h[:]
	default:
		h := sha256.Sum256(data)
		return h[:]
	}
}

// Sum returns the multihash-prefixed digest of data using d.
func (d Digest) Sum(data []byte) Hash {
	raw := d.sum(data)
	mh, err := multihash.Encode(raw, d.code())
	if err != nil {
		// Encode only fails for unknown codes or bad lengths, neither
		// of which can happen with the fixed codes/digests above.
		panic("codec: multihash encode: " + err.Error())
	}
	return Hash(mh)
}

// DefaultDigest is the digest used when none is configured (spec default: SHA-256).
var DefaultDigest Digest = SHA256

// HashBytes hashes data with DefaultDigest.
func HashBytes(data []byte) Hash { return DefaultDigest.Sum(data) }

// Hex returns the lowercase hex form of h, for logging and wire text fields
// (e.g. bulk sub-tx hash hex used in the bulk receipt's returns, spec §4.5).
func (h Hash) Hex() string {
	return hexEncode([]byte(h))
}

const hextable = "0123456789abcdef"

func hexEncode(src []byte) string {
	dst := make([]byte, len(src)*2)
	for i, v := range src {
		dst[i*2] = hextable[v>>4]
		dst[i*2+1] = hextable[v&0x0f]
	}
	return string(dst)
}
