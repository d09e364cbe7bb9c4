// Package identity computes stable content identifiers for tracks.
//
// The content hash is the backbone of the pipeline: every stage document
// for a track embeds it, the reconciler refuses to merge documents whose
// hashes disagree, and the loader uses it as the primary relational key.
package identity

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// hashChunkSize is the read buffer size; tracks can be large lossless
// files, so content is streamed rather than read into memory.
const hashChunkSize = 1 << 20

// Hash computes the SHA-256 content hash of the file at path.
// Deterministic: identical bytes yield identical hashes regardless of
// path, mtime or filesystem.
func Hash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file for hashing: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, hashChunkSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}

	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// FileInfo captures the filesystem identity of a track alongside its
// content hash, in the shape embedded into every stage document.
type FileInfo struct {
	Path       string `json:"path"`
	Stem       string `json:"stem"`
	SizeBytes  int64  `json:"size_bytes"`
	MtimeUnix  int64  `json:"mtime"`
	HashSHA256 string `json:"hash_sha256"`
}

// Describe stats and hashes path, producing the file block for a stage
// document.
func Describe(path string) (*FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	hash, err := Hash(path)
	if err != nil {
		return nil, err
	}

	return &FileInfo{
		Path:       path,
		Stem:       stem(path),
		SizeBytes:  info.Size(),
		MtimeUnix:  info.ModTime().Unix(),
		HashSHA256: hash,
	}, nil
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
