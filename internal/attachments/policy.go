package attachments

const (
	MaxFiles    = 10
	MaxFileSize = 50 << 20
)

// ImageMIMEs are the image types accepted for inline preview.
var ImageMIMEs = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/webp",
	"image/heic",
	"image/heif",
}

// FileExtensions are the non-image files accepted as generic attachments.
var FileExtensions = []string{
	// documents
	"pdf", "doc", "docx", "txt", "rtf", "odt",
	// spreadsheets
	"xls", "xlsx", "csv", "ods",
	// presentations
	"ppt", "pptx", "odp",
	// archives
	"zip", "rar", "7z",
	// media
	"mp3", "wav", "m4a", "ogg", "mp4", "mov", "webm",
}

// Policy decides which candidates may be attached.
type Policy struct {
	images     map[string]bool
	extensions map[string]bool
}

// DefaultPolicy accepts ImageMIMEs and FileExtensions.
func DefaultPolicy() Policy {
	return NewPolicy(ImageMIMEs, FileExtensions)
}

func NewPolicy(imageMIMEs, extensions []string) Policy {
	p := Policy{images: map[string]bool{}, extensions: map[string]bool{}}
	for _, m := range imageMIMEs {
		p.images[m] = true
	}
	for _, e := range extensions {
		p.extensions[e] = true
	}
	return p
}

// Accepts reports whether c is an allowed image or an allowed file.
func (p Policy) Accepts(c Candidate) bool {
	if c.IsImage() {
		return p.images[c.MIMEType]
	}
	return p.extensions[c.Ext()]
}

// Previewable reports whether c gets a local preview reference.
func (p Policy) Previewable(c Candidate) bool {
	return c.IsImage() && p.images[c.MIMEType]
}
