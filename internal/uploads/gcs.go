// Package uploads stores message attachments in a Cloud Storage bucket.
package uploads

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/url"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/option"

	"github.com/Cross4solution/MedGama-sub003/internal/attachments"
	"github.com/Cross4solution/MedGama-sub003/internal/models"
)

const defaultPublicBaseURL = "https://storage.googleapis.com"

var ErrNoBucket = errors.New("uploads: bucket is empty")

// GCS uploads attachment candidates as objects under
// attachments/{yyyymmdd}/{uuid}/{file name}.
type GCS struct {
	client        *storage.Client
	bucket        string
	publicBaseURL string
	now           func() time.Time
	newID         func() string
}

// NewGCS opens a storage client. An empty credentials file falls back to
// application default credentials.
func NewGCS(ctx context.Context, bucket, credentialsFile string) (*GCS, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, ErrNoBucket
	}
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("uploads: storage client: %w", err)
	}
	return newGCS(client, bucket), nil
}

func newGCS(client *storage.Client, bucket string) *GCS {
	return &GCS{
		client:        client,
		bucket:        bucket,
		publicBaseURL: defaultPublicBaseURL,
		now:           time.Now,
		newID:         uuid.NewString,
	}
}

// Upload streams the candidate into the bucket.
func (g *GCS) Upload(ctx context.Context, c attachments.Candidate) (models.Attachment, error) {
	if g == nil || g.client == nil {
		return models.Attachment{}, errors.New("uploads: storage client is nil")
	}
	if c.Open == nil {
		return models.Attachment{}, fmt.Errorf("uploads: %s has no content", c.Name)
	}
	src, err := c.Open()
	if err != nil {
		return models.Attachment{}, err
	}
	defer src.Close()

	name := g.objectName(c.Name)
	w := g.client.Bucket(g.bucket).Object(name).NewWriter(ctx)
	w.ContentType = c.MIMEType
	w.Metadata = map[string]string{
		"originalName": c.Name,
		"uploadedAt":   g.now().UTC().Format(time.RFC3339),
	}
	written, err := io.Copy(w, src)
	if err != nil {
		_ = w.Close()
		return models.Attachment{}, fmt.Errorf("uploads: write %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return models.Attachment{}, fmt.Errorf("uploads: close %s: %w", name, err)
	}
	log.Printf("upload stored bucket=%s object=%s bytes=%d", g.bucket, name, written)

	return models.Attachment{
		FileName: c.Name,
		FileType: c.MIMEType,
		FileSize: written,
		URL:      g.PublicURL(name),
	}, nil
}

// Close releases the storage client.
func (g *GCS) Close() error {
	if g == nil || g.client == nil {
		return nil
	}
	return g.client.Close()
}

func (g *GCS) objectName(fileName string) string {
	base := sanitizeName(fileName)
	return path.Join("attachments", g.now().UTC().Format("20060102"), g.newID(), base)
}

// PublicURL is the browser-facing URL of an object.
func (g *GCS) PublicURL(object string) string {
	segments := strings.Split(object, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.TrimRight(g.publicBaseURL, "/") + "/" + g.bucket + "/" + strings.Join(segments, "/")
}

func sanitizeName(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "file"
	}
	return name
}
