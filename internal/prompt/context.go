package prompt

import (
	"strconv"
	"strings"

	"doc-chat/internal/chunker"
)

// BuildContext concatenates the first maxChunks chunks, in document order, as
// page-labelled blocks. It does not rank chunks against the question: later
// pages of a long document never reach the model.
func BuildContext(chunks []chunker.Chunk, maxChunks int) string {
	if maxChunks <= 0 || len(chunks) == 0 {
		return ""
	}
	if len(chunks) > maxChunks {
		chunks = chunks[:maxChunks]
	}

	var builder strings.Builder
	for _, c := range chunks {
		builder.WriteString("\n[Page ")
		builder.WriteString(strconv.Itoa(c.Page))
		builder.WriteString("]\n")
		builder.WriteString(c.Text)
		builder.WriteString("\n")
	}
	return builder.String()
}
