package services

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"docllama/internal/logger"

	"github.com/ledongthuc/pdf"
)

// TextExtractor turns PDF bytes into one string per page. A page that cannot
// be decoded yields "" instead of an error.
type TextExtractor interface {
	ExtractPages(ctx context.Context, content []byte) ([]string, error)
}

// PDFExtractor reads pages with the pure Go parser and falls back to
// poppler's pdftotext when the document cannot be opened at all.
type PDFExtractor struct {
	popplerTimeout time.Duration
	hasPoppler     bool
}

func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{
		popplerTimeout: 60 * time.Second,
		hasPoppler:     hasBinary("pdftotext"),
	}
}

func (e *PDFExtractor) ExtractPages(ctx context.Context, content []byte) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pages, err := e.extractWithGoPDF(ctx, content)
	if err == nil {
		return pages, nil
	}
	if !e.hasPoppler {
		return nil, err
	}

	logger.Warn("go-pdf extraction failed, trying pdftotext", "error", err)
	pages, popplerErr := e.extractWithPoppler(ctx, content)
	if popplerErr != nil {
		return nil, fmt.Errorf("%v; pdftotext: %w", err, popplerErr)
	}
	return pages, nil
}

func (e *PDFExtractor) extractWithGoPDF(ctx context.Context, content []byte) (pages []string, err error) {
	// The parser panics on some malformed documents.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf parser panic: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}

	n := reader.NumPage()
	pages = make([]string, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pages[i-1] = pageText(reader, i)
	}
	return pages, nil
}

func pageText(reader *pdf.Reader, num int) (text string) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("Failed to decode page", "page", num, "panic", r)
			text = ""
		}
	}()

	page := reader.Page(num)
	if page.V.IsNull() {
		return ""
	}
	text, err := page.GetPlainText(nil)
	if err != nil {
		logger.Warn("Failed to extract page text", "page", num, "error", err)
		return ""
	}
	return text
}

// extractWithPoppler splits pdftotext output on form feeds, one per page.
func (e *PDFExtractor) extractWithPoppler(ctx context.Context, content []byte) ([]string, error) {
	extractCtx, cancel := context.WithTimeout(ctx, e.popplerTimeout)
	defer cancel()

	cmd := exec.CommandContext(extractCtx, "pdftotext", "-enc", "UTF-8", "-", "-")
	cmd.Stdin = bytes.NewReader(content)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("pdftotext failed: %v, stderr: %s", err, strings.TrimSpace(stderr.String()))
	}

	pages := strings.Split(stdout.String(), "\f")
	if len(pages) > 1 && pages[len(pages)-1] == "" {
		pages = pages[:len(pages)-1]
	}
	return pages, nil
}

// hasBinary checks if a binary executable exists in PATH
func hasBinary(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
