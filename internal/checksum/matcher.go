// Package checksum computes the content hash used to recognise a workbook
// that was already ingested.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// Sum returns the hex sha256 of data. Byte-identical uploads share a Sum.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Short is the prefix of a hash used in log lines.
func Short(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}

// ChecksumMatcher verifies stored file content against its recorded hash.
type ChecksumMatcher struct {
	expectedChecksum string
}

// NewChecksumMatcher creates a new ChecksumMatcher with the expected checksum.
func NewChecksumMatcher(expectedChecksum string) *ChecksumMatcher {
	return &ChecksumMatcher{expectedChecksum: expectedChecksum}
}

// Match checks if the provided data's checksum matches the expected checksum.
func (cm *ChecksumMatcher) Match(data []byte) (bool, error) {
	if cm.expectedChecksum == "" {
		return false, errors.New("expected checksum is not set")
	}
	return Sum(data) == cm.expectedChecksum, nil
}
