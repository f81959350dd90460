// Package contentindex is the durable append-only record of completed
// runs, keyed by content fingerprint, used to detect and skip duplicate
// artifacts across batches.
package contentindex

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/automograph/mograph/internal/core/domain"
	"github.com/automograph/mograph/internal/metrics"
)

// Index records completed runs and answers whether a fingerprint has
// been seen before. RecordIfNew must be effectively atomic: two callers
// racing on the same hash result in exactly one durable entry.
type Index interface {
	// RecordIfNew appends the entry unless its hash is already present
	// and reports whether an insertion happened.
	RecordIfNew(ctx context.Context, entry domain.IndexEntry) (bool, error)
	// Len returns the number of distinct fingerprints known.
	Len() int
	Close() error
}

// Fingerprint computes the content fingerprint of an artifact file:
// the hex SHA-256 of its bytes.
func Fingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open artifact: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash artifact: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// FileIndex stores one IndexEntry per line of a JSON-lines file. The
// dedup check and the append run under one lock, which makes the
// check-and-append atomic for every writer in this process; the file is
// opened in append mode so records from external readers stay intact.
type FileIndex struct {
	mu     sync.Mutex
	f      *os.File
	hashes map[string]struct{}
}

// OpenFile opens (creating if needed) the index file and loads all prior
// fingerprints. Corrupt lines (typically a torn trailing write) are
// skipped; the first occurrence of a hash is authoritative.
func OpenFile(path string) (*FileIndex, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open index file: %w", err)
	}

	idx := &FileIndex{f: f, hashes: make(map[string]struct{})}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var entry domain.IndexEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		if entry.ContentHash != "" {
			idx.hashes[entry.ContentHash] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to scan index file: %w", err)
	}
	metrics.IndexEntries.Set(float64(len(idx.hashes)))
	return idx, nil
}

// RecordIfNew implements Index.
func (i *FileIndex) RecordIfNew(ctx context.Context, entry domain.IndexEntry) (bool, error) {
	if entry.ContentHash == "" {
		return false, fmt.Errorf("index entry has no content hash")
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if _, seen := i.hashes[entry.ContentHash]; seen {
		return false, nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return false, fmt.Errorf("failed to marshal index entry: %w", err)
	}
	data = append(data, '\n')
	if _, err := i.f.Write(data); err != nil {
		return false, fmt.Errorf("failed to append index entry: %w", err)
	}

	i.hashes[entry.ContentHash] = struct{}{}
	metrics.IndexEntries.Set(float64(len(i.hashes)))
	return true, nil
}

// Len implements Index.
func (i *FileIndex) Len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.hashes)
}

// Close closes the backing file.
func (i *FileIndex) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.f.Close()
}
