package indexer

import (
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Chunker splits knowledge files into overlapping chunks
type Chunker struct {
	chunkSize    int // runes
	chunkOverlap int // runes
}

// NewChunker creates a new chunker
func NewChunker(chunkSize, chunkOverlap int) *Chunker {
	return &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}
}

// ChunkFile reads and chunks a file
func (c *Chunker) ChunkFile(fileInfo *FileInfo) ([]*Chunk, error) {
	content, err := os.ReadFile(fileInfo.Path)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(content) {
		return nil, fmt.Errorf("%s is not valid UTF-8", fileInfo.RelPath)
	}

	return c.Chunk(string(content), fileInfo.RelPath, GetFormat(fileInfo.Extension)), nil
}

// Chunk splits text into chunks. Markdown is first split at headings so a
// chunk never spans two sections.
func (c *Chunker) Chunk(text, filePath string, format Format) []*Chunk {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var sections []section
	if format == FormatMarkdown {
		sections = splitSections(text)
	} else {
		sections = []section{{startLine: 1, text: text}}
	}

	var chunks []*Chunk
	for _, sec := range sections {
		for _, piece := range c.chunkSection(sec) {
			piece.FilePath = filePath
			piece.Format = format
			piece.Heading = sec.heading
			piece.Index = len(chunks)
			piece.ID = generateChunkID(filePath, piece.Index)
			chunks = append(chunks, piece)
		}
	}

	return chunks
}

type section struct {
	heading   string
	startLine int
	text      string
}

// splitSections cuts markdown at ATX headings
func splitSections(text string) []section {
	lines := strings.Split(text, "\n")

	var sections []section
	current := section{startLine: 1}
	var body []string

	flush := func() {
		current.text = strings.Join(body, "\n")
		sections = append(sections, current)
	}

	for i, line := range lines {
		if strings.HasPrefix(line, "#") && len(body) > 0 {
			flush()
			current = section{startLine: i + 1}
			body = nil
		}
		if strings.HasPrefix(line, "#") {
			current.heading = strings.TrimSpace(strings.TrimLeft(line, "#"))
		}
		body = append(body, line)
	}
	flush()

	return sections
}

// chunkSection windows one section by lines, falling back to runes for a
// single oversized line.
func (c *Chunker) chunkSection(sec section) []*Chunk {
	if strings.TrimSpace(sec.text) == "" {
		return nil
	}

	lines := strings.Split(sec.text, "\n")
	if utf8.RuneCountInString(sec.text) <= c.chunkSize {
		return []*Chunk{{
			Content:   sec.text,
			StartLine: sec.startLine,
			EndLine:   sec.startLine + len(lines) - 1,
		}}
	}

	if len(lines) == 1 {
		return c.chunkRunes(sec.text, sec.startLine)
	}

	// Calculate approximate lines per chunk
	avgLineLen := utf8.RuneCountInString(sec.text) / len(lines)
	if avgLineLen == 0 {
		avgLineLen = 50
	}
	linesPerChunk := c.chunkSize / avgLineLen
	overlapLines := c.chunkOverlap / avgLineLen

	if linesPerChunk < 2 {
		linesPerChunk = 2
	}
	if overlapLines >= linesPerChunk {
		overlapLines = linesPerChunk / 2
	}

	var chunks []*Chunk
	for i := 0; i < len(lines); i += linesPerChunk - overlapLines {
		endIdx := min(i+linesPerChunk, len(lines))
		content := strings.Join(lines[i:endIdx], "\n")

		// Skip empty chunks
		if strings.TrimSpace(content) != "" {
			chunks = append(chunks, &Chunk{
				Content:   content,
				StartLine: sec.startLine + i,
				EndLine:   sec.startLine + endIdx - 1,
			})
		}

		if endIdx >= len(lines) {
			break
		}
	}

	return chunks
}

func (c *Chunker) chunkRunes(text string, line int) []*Chunk {
	runes := []rune(text)
	step := max(c.chunkSize-c.chunkOverlap, 1)

	var chunks []*Chunk
	for i := 0; i < len(runes); i += step {
		end := min(i+c.chunkSize, len(runes))
		chunks = append(chunks, &Chunk{
			Content:   string(runes[i:end]),
			StartLine: line,
			EndLine:   line,
		})
		if end >= len(runes) {
			break
		}
	}
	return chunks
}

// generateChunkID derives a stable ID from the file and chunk position
func generateChunkID(filePath string, index int) string {
	name := fmt.Sprintf("yorizo:%s#%d", filePath, index)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}
