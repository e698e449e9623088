// Package pdfextract turns PDF bytes into ordered page-level text blocks.
package pdfextract

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/ledongthuc/pdf"
)

// PageBlock is the text of one physical page. PageNumber is 1-based and
// follows the document's reading order.
type PageBlock struct {
	PageNumber int
	Text       string
}

// PagesFromFile reads the PDF at path and extracts one PageBlock per page.
func PagesFromFile(path string) ([]PageBlock, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf failed: %w", err)
	}
	defer f.Close()
	return Pages(f)
}

// Pages reads the entire content of r and extracts one PageBlock per
// physical page. Pages without extractable text are still emitted, with
// empty text, so page numbering stays aligned with the document.
func Pages(r io.Reader) ([]PageBlock, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read pdf failed: %w", err)
	}
	if len(b) == 0 {
		return nil, fmt.Errorf("pdf is empty")
	}

	reader, err := pdf.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return nil, fmt.Errorf("open pdf failed: %w", err)
	}

	numPages := reader.NumPage()
	blocks := make([]PageBlock, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			blocks = append(blocks, PageBlock{PageNumber: i})
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extract page %d failed: %w", i, err)
		}
		blocks = append(blocks, PageBlock{PageNumber: i, Text: text})
	}
	return blocks, nil
}
