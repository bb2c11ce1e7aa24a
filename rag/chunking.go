package rag

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dslipak/pdf"
	"github.com/esgrag/esgrag/pkg/chunk"
	"github.com/esgrag/esgrag/pkg/report"
	"github.com/mudler/xlog"
)

// chunkFile splits a stored asset into chunks ready for the engine.
// Markdown goes through the report chunker and carries per-chunk
// metadata; PDF and plain text are packed into fixed-size pieces.
func chunkFile(f, assetDir string, maxChunkSize int) ([]report.Chunk, error) {
	fpath := filepath.Join(assetDir, f)

	if _, err := os.Stat(fpath); os.IsNotExist(err) {
		return nil, fmt.Errorf("file does not exist: %s", fpath)
	}

	extension := filepath.Ext(fpath)
	switch extension {
	case ".md":
		content, err := os.ReadFile(fpath)
		if err != nil {
			return nil, err
		}
		chunks := report.NewChunker(maxChunkSize).ChunkMarkdown(string(content))
		if len(chunks) == 0 {
			// No page markers, treat as plain text.
			return plainChunks(string(content), maxChunkSize), nil
		}
		return chunks, nil
	case ".pdf":
		r, err := pdf.Open(fpath)
		if err != nil {
			return nil, err
		}
		b, err := r.GetPlainText()
		if err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(b); err != nil {
			return nil, err
		}
		return plainChunks(buf.String(), maxChunkSize), nil
	case ".txt":
		xlog.Debug("Reading text file", "file", f)
		content, err := os.ReadFile(fpath)
		if err != nil {
			return nil, err
		}
		return plainChunks(string(content), maxChunkSize), nil
	default:
		return nil, fmt.Errorf("unsupported file type: %s", extension)
	}
}

func plainChunks(text string, maxChunkSize int) []report.Chunk {
	pieces := chunk.SplitParagraphIntoChunks(text, maxChunkSize)
	chunks := make([]report.Chunk, 0, len(pieces))
	for _, p := range pieces {
		chunks = append(chunks, report.Chunk{Content: p})
	}
	return chunks
}
