package query

import (
	"github.com/threadscope/pkg/models"
)

// DefaultChunkSize keeps one chunk comfortably inside a single provider
// context window alongside the map prompt.
const DefaultChunkSize = 25

// PlanChunks partitions the corpus into contiguous, order-preserving chunks of
// at most chunkSize messages. The last chunk may be smaller. Concatenating the
// chunks reproduces the corpus exactly.
func PlanChunks(corpus []models.Message, chunkSize int) [][]models.Message {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if len(corpus) == 0 {
		return nil
	}

	chunks := make([][]models.Message, 0, (len(corpus)+chunkSize-1)/chunkSize)
	for start := 0; start < len(corpus); start += chunkSize {
		end := start + chunkSize
		if end > len(corpus) {
			end = len(corpus)
		}
		chunks = append(chunks, corpus[start:end])
	}
	return chunks
}
