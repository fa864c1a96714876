package script

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/aqasim81/schemakick/internal/hash"
)

// History is the part of the audit trail the detector and policy read.
type History interface {
	HasRunScriptAlready(ctx context.Context, name string) (bool, error)
	GetCurrentScriptHash(ctx context.Context, name string) (string, error)
}

// Detector decides whether a script's content differs from its last run.
type Detector struct {
	hasher  hash.Hasher
	history History
	log     logrus.FieldLogger
}

// NewDetector creates a Detector.
func NewDetector(h hash.Hasher, history History, log logrus.FieldLogger) *Detector {
	return &Detector{hasher: h, history: history, log: log}
}

// Changed reports whether text differs from the stored hash of name. A
// script that never ran counts as changed. Content that only differs in
// line endings counts as unchanged.
func (d *Detector) Changed(ctx context.Context, name, text string) (bool, error) {
	oldHash, err := d.history.GetCurrentScriptHash(ctx, name)
	if err != nil {
		return false, fmt.Errorf("reading stored hash of %s: %w", name, err)
	}

	if oldHash == "" {
		return true, nil
	}

	if HashesEqual(oldHash, d.hasher.Hash(text)) {
		return false, nil
	}

	if SameIgnoringLineEndings(d.hasher, text, oldHash) {
		d.log.Warnf("Script %s had different line endings than before but equal content", name)

		return false, nil
	}

	return true, nil
}

// HashesEqual compares two hashes case-insensitively.
func HashesEqual(a, b string) bool {
	return strings.EqualFold(a, b)
}

// SameIgnoringLineEndings reports whether text hashes to oldHash once its
// line endings are normalized to LF or to CRLF.
func SameIgnoringLineEndings(h hash.Hasher, text, oldHash string) bool {
	lf := strings.ReplaceAll(text, "\r\n", "\n")
	if HashesEqual(oldHash, h.Hash(lf)) {
		return true
	}

	crlf := strings.ReplaceAll(lf, "\n", "\r\n")

	return HashesEqual(oldHash, h.Hash(crlf))
}
