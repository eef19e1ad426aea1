package chat

import (
	"strings"

	"github.com/Cross4solution/MedGama-sub003/internal/models"
)

const ThreadPageSize = 8

// FilterThreads keeps threads whose name contains q, ignoring case.
func FilterThreads(threads []models.Thread, q string) []models.Thread {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return threads
	}
	out := make([]models.Thread, 0, len(threads))
	for _, t := range threads {
		if strings.Contains(strings.ToLower(t.Name), q) {
			out = append(out, t)
		}
	}
	return out
}

// Pages returns the number of pages, at least one.
func Pages(n int) int {
	if n <= 0 {
		return 1
	}
	return (n + ThreadPageSize - 1) / ThreadPageSize
}

// Paginate returns page (zero-based) of threads, clamping out-of-range pages.
func Paginate(threads []models.Thread, page int) []models.Thread {
	last := Pages(len(threads)) - 1
	if page < 0 {
		page = 0
	}
	if page > last {
		page = last
	}
	start := page * ThreadPageSize
	if start >= len(threads) {
		return []models.Thread{}
	}
	end := start + ThreadPageSize
	if end > len(threads) {
		end = len(threads)
	}
	return threads[start:end]
}

// TagKind is how a thread tag is drawn.
type TagKind string

const (
	TagNormal TagKind = "normal"
	TagAlert  TagKind = "alert"
)

func TagStyle(tag string) TagKind {
	if strings.Contains(strings.ToLower(tag), "urgent") {
		return TagAlert
	}
	return TagNormal
}
