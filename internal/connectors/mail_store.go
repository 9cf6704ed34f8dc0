package connectors

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// MailArchive keeps a content-addressed copy of every processed message.
type MailArchive struct {
	dir string
}

func NewMailArchive(dir string) *MailArchive {
	return &MailArchive{dir: dir}
}

// Store writes msg.Raw as <sha256>.eml unless an identical copy exists and
// returns the file path.
func (a *MailArchive) Store(msg Message) (string, error) {
	sum := sha256.Sum256(msg.Raw)
	path := filepath.Join(a.dir, hex.EncodeToString(sum[:])+".eml")

	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err == nil {
		return path, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}
	if err := os.WriteFile(path, msg.Raw, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
