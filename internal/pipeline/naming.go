package pipeline

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// TokenBytes is the entropy of a base filename; the hex token is twice as
// long.
const TokenBytes = 16

// NewToken returns a random hex token unrelated to the source URL.
func NewToken() (string, error) {
	b := make([]byte, TokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// NextFreePath returns dir/token.ext, or the first of "token (2).ext",
// "token (3).ext", ... for which exists reports false.
func NextFreePath(dir, token, ext string, exists func(string) bool) string {
	p := filepath.Join(dir, token+"."+ext)
	for n := 2; exists(p); n++ {
		p = filepath.Join(dir, fmt.Sprintf("%s (%d).%s", token, n, ext))
	}
	return p
}

// fileExists treats any stat result other than "not exist" as taken.
func fileExists(p string) bool {
	_, err := os.Lstat(p)
	return !errors.Is(err, fs.ErrNotExist)
}
