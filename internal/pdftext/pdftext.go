package pdftext

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"

	"doc-chat/internal/chunker"
)

// MIMEType is the only content type accepted for uploads.
const MIMEType = "application/pdf"

// ErrNotPDF is returned when uploaded bytes are not a PDF document.
var ErrNotPDF = errors.New("content is not a PDF document")

// DetectMIME sniffs the content type from magic bytes.
func DetectMIME(content []byte) string {
	return mimetype.Detect(content).String()
}

// IsPDF reports whether content looks like a PDF file.
func IsPDF(content []byte) bool {
	return mimetype.Detect(content).Is(MIMEType)
}

// Extractor reads per-page plain text out of PDF bytes.
type Extractor struct{}

// Extract returns one Page per PDF page, in order. Pages without a content
// stream or whose text cannot be decoded come back with empty Text.
func (Extractor) Extract(content []byte) (pages []chunker.Page, err error) {
	if !IsPDF(content) {
		return nil, ErrNotPDF
	}
	// The pdf package panics on some malformed cross-reference tables.
	defer func() {
		if rec := recover(); rec != nil {
			pages = nil
			err = fmt.Errorf("read pdf: %v", rec)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}

	numPages := reader.NumPage()
	pages = make([]chunker.Page, 0, numPages)
	for pageNum := 1; pageNum <= numPages; pageNum++ {
		pages = append(pages, chunker.Page{Number: pageNum, Text: pageText(reader.Page(pageNum))})
	}
	return pages, nil
}

func pageText(page pdf.Page) (text string) {
	if page.V.IsNull() || page.V.Key("Contents").Kind() == pdf.Null {
		return ""
	}
	defer func() {
		if recover() != nil {
			text = ""
		}
	}()
	text, err := page.GetPlainText(nil)
	if err != nil {
		return ""
	}
	return text
}
