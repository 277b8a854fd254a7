package resource

import (
	"strings"
)

// Chunk size bounds in characters.
const (
	TargetChunkSize = 400
	MinChunkSize    = 100
	MaxChunkSize    = 600
)

// ChunkMarkdown splits a markdown document into chunks of roughly
// TargetChunkSize characters. Headings start new chunks and become the
// chunk title; paragraphs are never split unless they alone exceed
// MaxChunkSize, in which case they are cut on word boundaries. A trailing
// chunk shorter than MinChunkSize is folded into its predecessor when they
// share a heading.
func ChunkMarkdown(sourceID, title, text string) []Chunk {
	var (
		chunks  []Chunk
		heading = title
		buf     strings.Builder
	)

	flush := func() {
		content := strings.TrimSpace(buf.String())
		buf.Reset()
		if content == "" {
			return
		}
		if n := len(chunks); n > 0 && len(content) < MinChunkSize &&
			chunks[n-1].Title == heading && len(chunks[n-1].Content)+len(content)+2 <= MaxChunkSize {
			chunks[n-1].Content += "\n\n" + content
			return
		}
		chunks = append(chunks, Chunk{Title: heading, Content: content, SourceID: sourceID})
	}

	for _, para := range paragraphs(text) {
		if h, ok := headingText(para); ok {
			flush()
			heading = h
			continue
		}

		for _, piece := range splitLong(para) {
			if buf.Len() > 0 && buf.Len()+len(piece)+2 > TargetChunkSize {
				flush()
			}
			if buf.Len() > 0 {
				buf.WriteString("\n\n")
			}
			buf.WriteString(piece)
		}
	}
	flush()

	return chunks
}

func paragraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var (
		out []string
		cur []string
	)
	emit := func() {
		if p := strings.TrimSpace(strings.Join(cur, "\n")); p != "" {
			out = append(out, p)
		}
		cur = cur[:0]
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			emit()
		case strings.HasPrefix(trimmed, "#"):
			// headings stand alone even without blank lines around them
			emit()
			cur = append(cur, trimmed)
			emit()
		default:
			cur = append(cur, line)
		}
	}
	emit()
	return out
}

func headingText(p string) (string, bool) {
	if !strings.HasPrefix(p, "#") || strings.Contains(p, "\n") {
		return "", false
	}
	h := strings.TrimSpace(strings.TrimLeft(p, "#"))
	if h == "" {
		return "", false
	}
	return h, true
}

// splitLong cuts p on word boundaries into pieces no longer than
// MaxChunkSize. Single words longer than that are hard-cut.
func splitLong(p string) []string {
	if len(p) <= MaxChunkSize {
		return []string{p}
	}

	var (
		out []string
		cur strings.Builder
	)
	for _, w := range strings.Fields(p) {
		for len(w) > MaxChunkSize {
			if cur.Len() > 0 {
				out = append(out, cur.String())
				cur.Reset()
			}
			out = append(out, w[:MaxChunkSize])
			w = w[MaxChunkSize:]
		}
		if cur.Len() > 0 && cur.Len()+1+len(w) > TargetChunkSize {
			out = append(out, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(w)
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}
