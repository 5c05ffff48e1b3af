package browser

import "strings"

// ChunkElements splits an element list into chunks of at most maxChars,
// cutting only between lines. A single line longer than maxChars becomes its
// own chunk. Empty input yields one empty chunk so callers always make one
// pass over the page.
func ChunkElements(elements string, maxChars int) []string {
	if maxChars <= 0 || len(elements) <= maxChars {
		return []string{elements}
	}

	var chunks []string
	var cur strings.Builder
	for _, line := range strings.Split(elements, "\n") {
		if cur.Len() > 0 && cur.Len()+1+len(line) > maxChars {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte('\n')
		}
		cur.WriteString(line)
	}
	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}
