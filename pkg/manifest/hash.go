package manifest

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"hash"
	"strings"

	"github.com/uppir/uppir/pkg/upirerr"
)

// supportedHashAlgorithms mirrors uppirlib.py's _supported_hashalgorithms:
// the base algorithm names accepted before the "-hex"/"-raw" suffix.
var supportedHashAlgorithms = map[string]func() hash.Hash{
	"md5":    md5.New,
	"sha1":   sha1.New,
	"sha224": sha256.New224,
	"sha256": sha256.New,
	"sha384": sha512.New384,
	"sha512": sha512.New,
}

// DefaultHashAlgorithm is used by CreateManifest. The original Python
// defaulted to "sha1-base64", an encoding this spec's algorithm set does
// not support (see SPEC_FULL.md §14's Open Question resolution); this
// implementation picks a supported one instead.
const DefaultHashAlgorithm = "sha256-hex"

// isSupportedAlgorithm reports whether algorithm is "noop" or a supported
// "name[-encoding]" pair ("-hex" default, "-raw" also accepted).
func isSupportedAlgorithm(algorithm string) bool {
	if algorithm == "noop" {
		return true
	}
	name, encoding := splitAlgorithm(algorithm)
	if _, ok := supportedHashAlgorithms[name]; !ok {
		return false
	}
	return encoding == "hex" || encoding == "raw"
}

func splitAlgorithm(algorithm string) (name, encoding string) {
	if idx := strings.IndexByte(algorithm, '-'); idx >= 0 {
		return algorithm[:idx], algorithm[idx+1:]
	}
	return algorithm, "hex"
}

// FindHash hashes contents under the named algorithm, returning the empty
// string for the reserved test-only "noop" algorithm (spec §3).
func FindHash(contents []byte, algorithm string) (string, error) {
	if algorithm == "noop" {
		return "", nil
	}

	name, encoding := splitAlgorithm(algorithm)
	newHash, ok := supportedHashAlgorithms[name]
	if !ok {
		return "", upirerr.New(upirerr.BadArgument, "unknown hash algorithm %q", name)
	}
	if encoding != "hex" && encoding != "raw" {
		return "", upirerr.New(upirerr.BadArgument, "unknown hash encoding %q", encoding)
	}

	h := newHash()
	h.Write(contents)
	sum := h.Sum(nil)

	if encoding == "raw" {
		return string(sum), nil
	}
	return hex.EncodeToString(sum), nil
}
