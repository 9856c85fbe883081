package service

import (
	"path/filepath"
	"strings"

	"github.com/gen2brain/go-fitz"
	"go.uber.org/zap"
)

// pageCount returns the number of pages in a PDF, or 0 for images and for
// documents that cannot be opened. Used purely as result diagnostics, so
// failures degrade instead of aborting the file.
func pageCount(fileName string, content []byte, logger *zap.Logger) int {
	if strings.ToLower(filepath.Ext(fileName)) != ".pdf" {
		return 0
	}

	doc, err := fitz.NewFromMemory(content)
	if err != nil {
		logger.Warn("Failed to open PDF for page count",
			zap.String("file", fileName),
			zap.Error(err),
		)
		return 0
	}
	defer doc.Close()

	return doc.NumPage()
}
