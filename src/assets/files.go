package assets

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/wumpus-archiver/archiver/src/oops"
)

const (
	maxFilenameLength   = 200
	truncatedStemLength = 180
)

var illegalFilenameChars = strings.NewReplacer(
	"<", "_",
	">", "_",
	":", "_",
	`"`, "_",
	"/", "_",
	`\`, "_",
	"|", "_",
	"?", "_",
	"*", "_",
)

// SanitizeFilename makes a remote filename safe to use as one path segment.
// Overlong names keep their extension.
func SanitizeFilename(filename string) string {
	if filename == "" {
		return "unnamed"
	}
	name := strings.Map(dropControl, illegalFilenameChars.Replace(filename))
	if name == "" {
		return "unnamed"
	}
	if name == "." || name == ".." {
		name = strings.Repeat("_", len(name))
	}
	if len(name) > maxFilenameLength {
		ext := path.Ext(name)
		stem := strings.TrimSuffix(name, ext)
		if len(ext) > maxFilenameLength-truncatedStemLength {
			ext = ""
			stem = name
		}
		name = truncateBytes(stem, truncatedStemLength) + ext
	}
	return name
}

func dropControl(r rune) rune {
	if r < 0x20 || r == 0x7f {
		return -1
	}
	return r
}

// truncateBytes cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

// RelativePath is where an attachment lives under the download root. It
// always uses forward slashes so stored paths are portable.
func RelativePath(channelID, attachmentID int64, filename string) string {
	return fmt.Sprintf("%d/%d_%s", channelID, attachmentID, SanitizeFilename(filename))
}

func Hash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// HashFile hashes a file that is already on disk.
func HashFile(fullPath string) (string, error) {
	content, err := os.ReadFile(fullPath)
	if err != nil {
		return "", oops.New(err, "failed to read %s", fullPath)
	}
	return Hash(content), nil
}

func Exists(root, rel string) bool {
	info, err := os.Stat(FullPath(root, rel))
	return err == nil && info.Mode().IsRegular()
}

func FullPath(root, rel string) string {
	return filepath.Join(root, filepath.FromSlash(rel))
}

// WriteFile writes content to root/rel through a temporary file in the same
// directory, so a crash never leaves a partial file at the final path.
func WriteFile(root, rel string, content []byte) error {
	dest := FullPath(root, rel)
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return oops.New(err, "failed to create directory %s", dir)
	}

	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return oops.New(err, "failed to create temp file in %s", dir)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return oops.New(err, "failed to write %s", tmp.Name())
	}
	if err := tmp.Close(); err != nil {
		return oops.New(err, "failed to close %s", tmp.Name())
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return oops.New(err, "failed to move download into place at %s", dest)
	}
	return nil
}
