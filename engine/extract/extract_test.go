package extract

import (
	"archive/zip"
	"bytes"
	"compress/zlib"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/WessleyAI/nlq-engine/engine/domain"
)

func noPdftotext(string) (string, error) { return "", errors.New("not found") }

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func writeDOCX(t *testing.T, name, documentXML string) string {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("[Content_Types].xml")
	if err != nil {
		t.Fatal(err)
	}
	w.Write([]byte(`<?xml version="1.0"?><Types/>`))
	if documentXML != "" {
		w, err = zw.Create(documentPart)
		if err != nil {
			t.Fatal(err)
		}
		w.Write([]byte(documentXML))
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return writeFile(t, name, buf.Bytes())
}

func TestKindOf(t *testing.T) {
	cases := []struct {
		path string
		want Kind
		err  bool
	}{
		{"a/b/report.PDF", KindPDF, false},
		{"resume.docx", KindDOCX, false},
		{"notes.txt", KindTXT, false},
		{"slides.pptx", "", true},
		{"noext", "", true},
	}
	for _, tc := range cases {
		got, err := KindOf(tc.path)
		if tc.err {
			if !errors.Is(err, domain.ErrUnsupportedFormat) {
				t.Errorf("KindOf(%q): expected ErrUnsupportedFormat, got %v", tc.path, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("KindOf(%q) = %q, %v; want %q", tc.path, got, err, tc.want)
		}
	}
	if Supported("x.csv") || !Supported("x.txt") {
		t.Error("Supported mismatch")
	}
}

func TestExtractText(t *testing.T) {
	path := writeFile(t, "review.txt", []byte("\uFEFFFirst paragraph.\n\nSecond paragraph."))
	doc, err := New().Extract(context.Background(), path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Kind != KindTXT || doc.Name != "review.txt" {
		t.Errorf("unexpected doc metadata %+v", doc)
	}
	if doc.Text != "First paragraph.\n\nSecond paragraph." {
		t.Errorf("unexpected text %q", doc.Text)
	}
}

func TestExtractTextInvalidUTF8(t *testing.T) {
	path := writeFile(t, "bad.txt", []byte{0xff, 0xfe, 0xfd})
	_, err := New().Extract(context.Background(), path)
	if !errors.Is(err, domain.ErrExtraction) {
		t.Fatalf("expected ErrExtraction, got %v", err)
	}
}

func TestExtractMissingFile(t *testing.T) {
	_, err := New().Extract(context.Background(), filepath.Join(t.TempDir(), "gone.txt"))
	if !errors.Is(err, domain.ErrExtraction) {
		t.Fatalf("expected ErrExtraction, got %v", err)
	}
}

func TestExtractUnsupported(t *testing.T) {
	path := writeFile(t, "sheet.xlsx", []byte("x"))
	_, err := New().Extract(context.Background(), path)
	if !errors.Is(err, domain.ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestExtractDOCX(t *testing.T) {
	xml := `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body>
<w:p><w:r><w:t>Skills:</w:t></w:r><w:r><w:tab/><w:t xml:space="preserve"> Go, SQL</w:t></w:r></w:p>
<w:p></w:p>
<w:p><w:r><w:t>Led the billing project.</w:t></w:r></w:p>
</w:body>
</w:document>`
	path := writeDOCX(t, "resume.docx", xml)
	doc, err := New().Extract(context.Background(), path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "Skills:\t Go, SQL\n\nLed the billing project."
	if doc.Text != want {
		t.Errorf("got %q, want %q", doc.Text, want)
	}
}

func TestExtractDOCXCorrupt(t *testing.T) {
	path := writeFile(t, "broken.docx", []byte("not a zip archive"))
	_, err := New().Extract(context.Background(), path)
	if !errors.Is(err, domain.ErrExtraction) {
		t.Fatalf("expected ErrExtraction, got %v", err)
	}
}

func TestExtractDOCXMissingDocumentPart(t *testing.T) {
	path := writeDOCX(t, "empty.docx", "")
	_, err := New().Extract(context.Background(), path)
	if !errors.Is(err, domain.ErrExtraction) {
		t.Fatalf("expected ErrExtraction, got %v", err)
	}
}

func minimalPDF(content string, compress bool) []byte {
	stream := []byte(content)
	filter := ""
	if compress {
		var buf bytes.Buffer
		zw := zlib.NewWriter(&buf)
		zw.Write(stream)
		zw.Close()
		stream = buf.Bytes()
		filter = " /Filter /FlateDecode"
	}
	var b bytes.Buffer
	b.WriteString("%PDF-1.4\n1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	fmt.Fprintf(&b, "4 0 obj\n<< /Length %d%s >>\nstream\n", len(stream), filter)
	b.Write(stream)
	b.WriteString("\nendstream\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")
	return b.Bytes()
}

func TestExtractPDFBuiltin(t *testing.T) {
	content := "BT /F1 12 Tf 72 720 Td (Quarterly review) Tj T* [(Perf) -20 (ormance: ) (strong\\051)] TJ ET"
	for _, compress := range []bool{false, true} {
		path := writeFile(t, "review.pdf", minimalPDF(content, compress))
		doc, err := New(WithLookPath(noPdftotext)).Extract(context.Background(), path)
		if err != nil {
			t.Fatalf("compress=%v: unexpected error: %v", compress, err)
		}
		if !strings.Contains(doc.Text, "Quarterly review") {
			t.Errorf("compress=%v: missing first line in %q", compress, doc.Text)
		}
		if !strings.Contains(doc.Text, "Performance: strong)") {
			t.Errorf("compress=%v: missing TJ text in %q", compress, doc.Text)
		}
	}
}

func TestExtractPDFNotAPDF(t *testing.T) {
	path := writeFile(t, "fake.pdf", []byte("hello"))
	_, err := New(WithLookPath(noPdftotext)).Extract(context.Background(), path)
	if !errors.Is(err, domain.ErrExtraction) {
		t.Fatalf("expected ErrExtraction, got %v", err)
	}
}

type fakeRunner struct {
	out  []byte
	err  error
	args []string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.args = append([]string{name}, args...)
	return f.out, f.err
}

func TestExtractPDFWithPdftotext(t *testing.T) {
	path := writeFile(t, "contract.pdf", minimalPDF("BT (ignored) Tj ET", false))
	runner := &fakeRunner{out: []byte("Clause one.\n\nClause two.\f")}
	ex := New(WithRunner(runner), WithLookPath(func(string) (string, error) { return "/usr/bin/pdftotext", nil }))

	doc, err := ex.Extract(context.Background(), path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Text != "Clause one.\n\nClause two." {
		t.Errorf("unexpected text %q", doc.Text)
	}
	if runner.args[0] != "/usr/bin/pdftotext" || runner.args[len(runner.args)-1] != "-" {
		t.Errorf("unexpected invocation %v", runner.args)
	}
}

func TestExtractPDFRunnerError(t *testing.T) {
	path := writeFile(t, "contract.pdf", minimalPDF("BT (x) Tj ET", false))
	runner := &fakeRunner{err: errors.New("pdftotext crashed")}
	ex := New(WithRunner(runner), WithLookPath(func(string) (string, error) { return "pdftotext", nil }))
	_, err := ex.Extract(context.Background(), path)
	if !errors.Is(err, domain.ErrExtraction) {
		t.Fatalf("expected ErrExtraction, got %v", err)
	}
}

func TestReadLiteralEscapes(t *testing.T) {
	got, n := readLiteral([]byte(`(a\(b\)c \101 (nested)) Tj`))
	if got != "a(b)c A (nested)" {
		t.Errorf("unexpected literal %q", got)
	}
	if n != len(`(a\(b\)c \101 (nested))`) {
		t.Errorf("unexpected consumed length %d", n)
	}
}
