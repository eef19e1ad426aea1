package chat

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Cross4solution/MedGama-sub003/internal/models"
)

func sampleThreads(n int) []models.Thread {
	out := make([]models.Thread, n)
	for i := range out {
		out[i] = models.Thread{ID: fmt.Sprint(i), Name: fmt.Sprintf("Patient %02d", i), Last: "see you"}
	}
	return out
}

func TestFilterThreadsMatchesNameOnly(t *testing.T) {
	threads := []models.Thread{
		{ID: "1", Name: "Dr. Ayşe Demir", Last: "clinic hours"},
		{ID: "2", Name: "Harbor CLINIC", Last: "ok"},
		{ID: "3", Name: "Mehmet", Last: "Harbor"},
	}

	got := FilterThreads(threads, "clinic")
	assert.Len(t, got, 1)
	assert.Equal(t, "2", got[0].ID)

	assert.Len(t, FilterThreads(threads, "  "), 3)
	assert.Empty(t, FilterThreads(threads, "zzz"))
}

func TestPaginate(t *testing.T) {
	threads := sampleThreads(19)

	assert.Equal(t, 3, Pages(len(threads)))
	assert.Equal(t, 1, Pages(0))
	assert.Len(t, Paginate(threads, 0), ThreadPageSize)
	assert.Len(t, Paginate(threads, 2), 3)
	assert.Equal(t, "16", Paginate(threads, 99)[0].ID)
	assert.Equal(t, "0", Paginate(threads, -1)[0].ID)
	assert.Empty(t, Paginate(nil, 0))
}

func TestTagStyle(t *testing.T) {
	assert.Equal(t, TagAlert, TagStyle("URGENT"))
	assert.Equal(t, TagAlert, TagStyle("non-urgent"))
	assert.Equal(t, TagNormal, TagStyle("follow-up"))
}
