// Package hash fingerprints script text so the migrator can tell whether a
// script changed since it last ran.
package hash

import (
	"crypto/md5" //nolint:gosec // content fingerprint, not a security boundary
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// Algorithm names accepted by New.
const (
	AlgorithmMD5    = "md5"
	AlgorithmSHA256 = "sha256"
)

// Hasher turns script text into a stable fingerprint.
type Hasher interface {
	Hash(text string) string
}

// MD5 produces base64-encoded MD5 digests. It is the default because
// existing audit tables store fingerprints in this form.
type MD5 struct{}

// Hash implements Hasher.
func (MD5) Hash(text string) string {
	sum := md5.Sum([]byte(text)) //nolint:gosec // see import

	return base64.StdEncoding.EncodeToString(sum[:])
}

// SHA256 produces hex-encoded SHA-256 digests.
type SHA256 struct{}

// Hash implements Hasher.
func (SHA256) Hash(text string) string {
	sum := sha256.Sum256([]byte(text))

	return hex.EncodeToString(sum[:])
}

// New returns the Hasher registered under name.
func New(name string) (Hasher, error) {
	switch strings.ToLower(name) {
	case "", AlgorithmMD5:
		return MD5{}, nil
	case AlgorithmSHA256:
		return SHA256{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, name)
	}
}
