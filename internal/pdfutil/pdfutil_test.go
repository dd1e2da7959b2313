package pdfutil

import (
	"strconv"
	"strings"
	"testing"
)

// onePagePDF builds a one-page PDF with a single text-show operator.
func onePagePDF(t *testing.T) []byte {
	t.Helper()

	content := "BT /F1 12 Tf 72 720 Td (Hello narrated world) Tj ET"
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>",
		"", // placeholder, stream object built below
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
	}

	var b strings.Builder
	b.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects)+1)
	for i, obj := range objects {
		offsets[i+1] = b.Len()
		if i == 3 {
			b.WriteString("4 0 obj\n")
			b.WriteString("<< /Length " + strconv.Itoa(len(content)) + " >>\nstream\n")
			b.WriteString(content)
			b.WriteString("\nendstream\nendobj\n")
			continue
		}
		b.WriteString(strconv.Itoa(i+1) + " 0 obj\n" + obj + "\nendobj\n")
	}

	xref := b.Len()
	b.WriteString("xref\n0 " + strconv.Itoa(len(objects)+1) + "\n")
	b.WriteString("0000000000 65535 f \n")
	for i := 1; i <= len(objects); i++ {
		s := strconv.Itoa(offsets[i])
		b.WriteString(strings.Repeat("0", 10-len(s)) + s + " 00000 n \n")
	}
	b.WriteString("trailer\n<< /Size " + strconv.Itoa(len(objects)+1) + " /Root 1 0 R >>\nstartxref\n")
	b.WriteString(strconv.Itoa(xref) + "\n%%EOF\n")
	return []byte(b.String())
}

func TestPageText(t *testing.T) {
	data := onePagePDF(t)

	got, err := PageText(data, 1)
	if err != nil {
		t.Fatalf("PageText error = %v", err)
	}
	if got != "Hello narrated world" {
		t.Errorf("PageText = %q, want %q", got, "Hello narrated world")
	}
}

func TestPageTextOutOfRange(t *testing.T) {
	data := onePagePDF(t)

	for _, page := range []int{0, 2} {
		if _, err := PageText(data, page); err == nil {
			t.Errorf("PageText(page=%d) accepted an out-of-range page", page)
		}
	}
}

func TestPageTextRejectsGarbage(t *testing.T) {
	if _, err := PageText([]byte("definitely not a pdf"), 1); err == nil {
		t.Fatal("PageText accepted garbage")
	}
}

func TestPageCountOnePage(t *testing.T) {
	n, err := PageCount(onePagePDF(t))
	if err != nil {
		t.Fatalf("PageCount error = %v", err)
	}
	if n != 1 {
		t.Errorf("PageCount = %d, want 1", n)
	}
}

func TestScrapeText(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "simple Tj",
			content: "BT /F1 12 Tf (Hello World) Tj ET",
			want:    "Hello World",
		},
		{
			name:    "TJ array joins strings",
			content: "BT [(Hel)-20(lo)] TJ (there) Tj ET",
			want:    "Hel lo there",
		},
		{
			name:    "escaped parens and backslash",
			content: `(a \(quoted\) \\ string) Tj`,
			want:    `a (quoted) \ string`,
		},
		{
			name:    "nested parens balance",
			content: "(outer (inner) tail) Tj",
			want:    "outer (inner) tail",
		},
		{
			name:    "escaped newline and tab",
			content: `(line\none\ttab) Tj`,
			want:    "line\none\ttab",
		},
		{
			name:    "no text operators",
			content: "0 0 100 100 re f",
			want:    "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := scrapeText([]byte(tt.content)); got != tt.want {
				t.Errorf("scrapeText = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPageCountRejectsGarbage(t *testing.T) {
	if _, err := PageCount([]byte("definitely not a pdf")); err == nil {
		t.Fatal("PageCount accepted garbage")
	}
}
