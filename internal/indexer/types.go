package indexer

// Format is the kind of knowledge file a chunk came from
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatText     Format = "text"
	FormatUnknown  Format = "unknown"
)

// SourceType marks documents produced by the ingester
const SourceType = "knowledge"

// Chunk represents a piece of a knowledge file
type Chunk struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	FilePath  string `json:"file_path"`
	Format    Format `json:"format"`
	Heading   string `json:"heading,omitempty"` // nearest markdown heading
	Index     int    `json:"index"`             // position within the file
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
}

// IngestOptions scope the documents produced from a directory
type IngestOptions struct {
	OwnerKey  string
	CompanyID string
}

// IngestResult represents the result of ingesting a directory
type IngestResult struct {
	Root          string   `json:"root"`
	TotalFiles    int      `json:"total_files"`
	TotalChunks   int      `json:"total_chunks"`
	DocumentCount int      `json:"document_count"`
	Errors        []string `json:"errors,omitempty"`
	ElapsedTime   string   `json:"elapsed_time"`
}

// FileInfo holds information about a file to be ingested
type FileInfo struct {
	Path      string
	RelPath   string // Relative path from the ingest root
	Extension string
	Size      int64
}
