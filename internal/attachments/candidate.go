// Package attachments validates and stages files before a message is sent.
package attachments

import (
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Candidate is a file offered for attachment. It is validated once, when it
// enters a Stage; nothing downstream inspects raw files.
type Candidate struct {
	Name     string
	Size     int64
	MIMEType string
	Open     func() (io.ReadCloser, error)
}

// Ext returns the lower-case extension without the dot.
func (c Candidate) Ext() string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(c.Name)), ".")
}

// IsImage reports whether the declared MIME type is an image type.
func (c Candidate) IsImage() bool {
	return strings.HasPrefix(c.MIMEType, "image/")
}

// FromFile builds a candidate for a file on disk. The MIME type comes from
// the extension, or from sniffing the content when the extension is unknown.
func FromFile(path string) (Candidate, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Candidate{}, err
	}
	if info.IsDir() {
		return Candidate{}, fmt.Errorf("%s is a directory", path)
	}

	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		detected, err := mimetype.DetectFile(path)
		if err != nil {
			return Candidate{}, fmt.Errorf("detect type of %s: %w", path, err)
		}
		mimeType = detected.String()
	}
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}

	return Candidate{
		Name:     filepath.Base(path),
		Size:     info.Size(),
		MIMEType: mimeType,
		Open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}, nil
}

// FormatSize renders a byte count for humans.
func FormatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit && exp < 3; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGT"[exp])
}
