// Package pdfutil wraps the pdfcpu operations the service needs: counting
// pages at upload time and pulling a page's text for speech synthesis.
package pdfutil

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// ErrNotPDF is returned when the data cannot be read as a PDF.
var ErrNotPDF = errors.New("not a valid PDF")

// PageCount returns the number of pages in the PDF.
func PageCount(data []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(data), nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNotPDF, err)
	}
	return n, nil
}

// PageText extracts the visible text of one page (1-indexed) by decoding the
// page's content stream and collecting its text-show operands.
func PageText(data []byte, page int) (string, error) {
	conf := model.NewDefaultConfiguration()
	conf.Cmd = model.EXTRACTCONTENT

	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotPDF, err)
	}
	if page < 1 || page > ctx.PageCount {
		return "", fmt.Errorf("page %d out of range 1-%d", page, ctx.PageCount)
	}

	r, err := pdfcpu.ExtractPageContent(ctx, page)
	if err != nil {
		return "", fmt.Errorf("extract page %d content: %w", page, err)
	}
	content, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read page %d content: %w", page, err)
	}
	return scrapeText(content), nil
}

// scrapeText pulls string operands out of a decoded PDF content stream.
// Literal strings appear between unescaped parentheses (Tj, TJ, ', " show
// them); the balance rule handles nested parens per the PDF spec. This is a
// deliberate approximation: no CMap decoding, no positioning, just the byte
// content of each shown string joined with spaces.
func scrapeText(content []byte) string {
	var (
		out     strings.Builder
		current strings.Builder
		depth   int
	)

	flush := func() {
		if current.Len() == 0 {
			return
		}
		if out.Len() > 0 {
			out.WriteByte(' ')
		}
		out.WriteString(current.String())
		current.Reset()
	}

	for i := 0; i < len(content); i++ {
		c := content[i]
		if depth == 0 {
			if c == '(' {
				depth = 1
			}
			continue
		}

		switch c {
		case '\\':
			if i+1 < len(content) {
				i++
				switch esc := content[i]; esc {
				case 'n':
					current.WriteByte('\n')
				case 't':
					current.WriteByte('\t')
				case 'r', '\n', '\r':
					// line continuation or CR: drop
				case '(', ')', '\\':
					current.WriteByte(esc)
				default:
					current.WriteByte(esc)
				}
			}
		case '(':
			depth++
			current.WriteByte(c)
		case ')':
			depth--
			if depth == 0 {
				flush()
			} else {
				current.WriteByte(c)
			}
		default:
			current.WriteByte(c)
		}
	}
	flush()

	return strings.TrimSpace(out.String())
}
