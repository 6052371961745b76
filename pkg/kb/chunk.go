package kb

import "strings"

// Chunk splits text into indexing units of at most size bytes, preferring
// paragraph boundaries and falling back to line boundaries for oversized
// paragraphs. Blank-only chunks are dropped.
func Chunk(text string, size int) []string {
	if size <= 0 {
		size = 1200
	}

	var chunks []string
	var current strings.Builder

	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			chunks = append(chunks, s)
		}
		current.Reset()
	}

	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if len(para) > size {
			flush()
			for _, line := range splitLong(para, size) {
				chunks = append(chunks, line)
			}
			continue
		}
		if current.Len() > 0 && current.Len()+len(para)+2 > size {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	flush()

	if chunks == nil {
		return []string{}
	}
	return chunks
}

// splitLong breaks an oversized paragraph on line boundaries, hard-cutting
// single lines that still exceed the limit.
func splitLong(para string, size int) []string {
	var out []string
	var current strings.Builder

	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			out = append(out, s)
		}
		current.Reset()
	}

	for _, line := range strings.Split(para, "\n") {
		for len(line) > size {
			flush()
			out = append(out, strings.TrimSpace(line[:size]))
			line = line[size:]
		}
		if current.Len()+len(line)+1 > size {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n")
		}
		current.WriteString(line)
	}
	flush()
	return out
}
