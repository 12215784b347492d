package services

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrTooManyPages rejects PDFs over the configured page cap before any
// model call is spent on them.
var ErrTooManyPages = errors.New("PDF exceeds maximum page count")

var pdfMagicBytes = []byte{0x25, 0x50, 0x44, 0x46} // %PDF

// PDFService pulls the embedded text layer out of uploaded PDFs. Dense
// text goes straight to the text model; scanned documents with no
// usable layer fall back to vision extraction upstream.
type PDFService struct {
	maxPages int
}

// NewPDFService creates a new PDF service with the given page cap.
func NewPDFService(maxPages int) *PDFService {
	return &PDFService{maxPages: maxPages}
}

// PageText is the extracted text of one page.
type PageText struct {
	Page int
	Text string
}

// ValidatePDF performs cheap structural checks before parsing.
func ValidatePDF(data []byte) error {
	if len(data) < 4 {
		return fmt.Errorf("file is too small or empty")
	}

	if !bytes.HasPrefix(data, pdfMagicBytes) {
		return fmt.Errorf("invalid PDF file: missing PDF magic bytes")
	}

	// Well-formed PDFs end with an EOF marker; a missing one usually
	// means a truncated upload.
	tail := data
	if len(tail) > 2048 {
		tail = tail[len(tail)-2048:]
	}
	if !bytes.Contains(tail, []byte("%%EOF")) && !bytes.Contains(tail, []byte("startxref")) {
		return fmt.Errorf("invalid or corrupted PDF: missing EOF markers")
	}

	return nil
}

// ExtractPages returns per-page text for a PDF. Pages whose content
// fails to extract are skipped; a page cap violation is fatal.
func (p *PDFService) ExtractPages(data []byte) ([]PageText, error) {
	if err := ValidatePDF(data); err != nil {
		return nil, err
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}

	totalPages := reader.NumPage()
	if p.maxPages > 0 && totalPages > p.maxPages {
		return nil, fmt.Errorf("%w: %d pages, maximum is %d", ErrTooManyPages, totalPages, p.maxPages)
	}

	var pages []PageText
	for i := 1; i <= totalPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		fonts := make(map[string]*pdf.Font)
		text, err := page.GetPlainText(fonts)
		if err != nil {
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}

		pages = append(pages, PageText{Page: i, Text: text})
	}

	return pages, nil
}

// TextQuality scores extracted text between 0 and 1. Scanned PDFs
// typically yield nothing or mojibake from the text layer; low scores
// send the document to vision extraction instead.
func TextQuality(text string) float64 {
	text = strings.TrimSpace(text)
	if len(text) == 0 {
		return 0
	}
	if len(text) < 10 {
		return 0.1
	}

	var alphanumeric, printable, corrupted int
	runes := []rune(text)
	for _, r := range runes {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			alphanumeric++
			printable++
		case r == ' ' || r == '\n' || r == '\t':
			printable++
		case r == '�':
			corrupted++
		case r >= 32 && r <= 126:
			printable++
		case r > 127:
			printable++
		}
	}

	total := float64(len(runes))
	score := float64(printable)/total*0.4 - float64(corrupted)/total*2.0

	alphanumericRatio := float64(alphanumeric) / total
	if alphanumericRatio >= 0.3 {
		score += 0.3
	} else {
		score += alphanumericRatio
	}

	if len(text) > 100 {
		score += 0.1
	}

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// UsableText reports whether the extracted layer is dense enough to
// structure directly, skipping vision extraction.
func UsableText(pages []PageText) bool {
	var all strings.Builder
	for _, p := range pages {
		all.WriteString(p.Text)
		all.WriteString("\n")
	}

	text := strings.TrimSpace(all.String())
	return len(text) >= 200 && TextQuality(text) >= 0.5
}
