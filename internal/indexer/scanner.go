package indexer

import (
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/yorizo/yorizo/internal/config"
)

// Scanner scans a directory for knowledge files
type Scanner struct {
	config config.IndexerConfig
}

// NewScanner creates a new file scanner
func NewScanner(cfg config.IndexerConfig) *Scanner {
	return &Scanner{config: cfg}
}

// Scan walks rootPath and returns the files with a configured extension
func (s *Scanner) Scan(rootPath string) ([]*FileInfo, error) {
	var files []*FileInfo

	err := filepath.Walk(rootPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() {
			if path != rootPath && s.Ignored(info.Name()) {
				return filepath.SkipDir
			}
			return nil
		}

		if !s.Accepts(path) {
			return nil
		}

		files = append(files, s.fileInfo(rootPath, path, info))
		return nil
	})

	return files, err
}

// Accepts reports whether path has one of the configured extensions
func (s *Scanner) Accepts(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range s.config.Extensions {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}

// Ignored reports whether a directory name is skipped
func (s *Scanner) Ignored(dir string) bool {
	return slices.Contains(s.config.IgnoreDirs, dir)
}

func (s *Scanner) fileInfo(rootPath, path string, info os.FileInfo) *FileInfo {
	relPath, err := filepath.Rel(rootPath, path)
	if err != nil {
		relPath = path
	}

	return &FileInfo{
		Path:      path,
		RelPath:   filepath.ToSlash(relPath),
		Extension: strings.ToLower(filepath.Ext(path)),
		Size:      info.Size(),
	}
}

// GetFormat returns the knowledge format based on file extension
func GetFormat(ext string) Format {
	switch strings.ToLower(ext) {
	case ".md", ".markdown":
		return FormatMarkdown
	case ".txt", ".text":
		return FormatText
	default:
		return FormatUnknown
	}
}
