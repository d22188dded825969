package downloader

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"mcfetch/internal/logging"
)

// hashChunkSize bounds memory while hashing large files.
const hashChunkSize = 32 * 1024

// Checker decides whether a local file can be trusted or must be fetched.
type Checker struct {
	logger *slog.Logger
}

// NewChecker creates a Checker. A nil logger uses the slog default.
func NewChecker(logger *slog.Logger) *Checker {
	return &Checker{logger: logging.Or(logger)}
}

// ShouldDownload reports whether path must be (re)downloaded.
//
// A missing file must be downloaded, and its parent directories are created
// on the way. An existing file is trusted only if expectedHash is non-empty
// and equals the file's hex SHA-1 exactly; a file that cannot be hashed is
// treated as a mismatch.
func (c *Checker) ShouldDownload(path, expectedHash string) bool {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				c.logger.Warn("create parent directories", "path", path, "error", err)
			}
		}
		return true
	}

	if expectedHash == "" {
		c.logger.Debug("file exists without checksum, redownloading", "path", path)
		return true
	}

	actual, err := FileSHA1(path)
	if err != nil {
		c.logger.Warn("checksum failed, redownloading", "path", path, "error", err)
		return true
	}
	if actual != expectedHash {
		c.logger.Warn("checksum mismatch, redownloading",
			"path", path,
			"expected", expectedHash,
			"actual", actual)
		return true
	}

	logging.LogJobSkipped(c.logger, path)
	return false
}

// Matches reports whether path exists and hashes to expectedHash. Unlike
// ShouldDownload it never touches the filesystem. An empty hash never matches.
func (c *Checker) Matches(path, expectedHash string) bool {
	if expectedHash == "" {
		return false
	}
	actual, err := FileSHA1(path)
	return err == nil && actual == expectedHash
}

// Verify returns an ErrChecksum-wrapped error if path does not hash to expectedHash.
func (c *Checker) Verify(path, expectedHash string) error {
	actual, err := FileSHA1(path)
	if err != nil {
		return fmt.Errorf("hash %s: %w", path, err)
	}
	if actual != expectedHash {
		return fmt.Errorf("%w: expected %s, got %s", ErrChecksum, expectedHash, actual)
	}
	return nil
}

// FileSHA1 returns the lowercase hex SHA-1 of the file at path.
func FileSHA1(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha1.New()
	buf := make([]byte, hashChunkSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
