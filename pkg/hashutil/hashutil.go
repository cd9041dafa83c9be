// Package hashutil computes hex-encoded content digests for cache keys
// and integrity checks.
package hashutil

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
)

// DefaultAlgo is the digest algorithm used when none is configured.
// Artifact repositories publish sha1 checksums, so that is the default.
const DefaultAlgo = "sha1"

// readBufferSize bounds memory while digesting arbitrarily large files.
const readBufferSize = 8 * 1024

// New returns a fresh hash for the given algorithm.
func New(algo string) (hash.Hash, error) {
	switch algo {
	case "sha1":
		return sha1.New(), nil
	case "sha256":
		return sha256.New(), nil
	case "sha512":
		return sha512.New(), nil
	default:
		return nil, fmt.Errorf("unsupported digest algorithm %q", algo)
	}
}

// Digest streams the file at path through the given algorithm and returns
// the lowercase hex digest.
func Digest(path string, algo string) (string, error) {
	h, err := New(algo)
	if err != nil {
		return "", err
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	buf := make([]byte, readBufferSize)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to digest %s: %w", path, err)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// DigestBytes returns the lowercase hex digest of b.
func DigestBytes(b []byte, algo string) (string, error) {
	h, err := New(algo)
	if err != nil {
		return "", err
	}
	h.Write(b)
	return hex.EncodeToString(h.Sum(nil)), nil
}
