package extract

import (
	"bytes"
	"compress/zlib"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/WessleyAI/nlq-engine/engine/domain"
)

const pdfToText = "pdftotext"

// readPDF prefers poppler's pdftotext, which keeps paragraph breaks, and
// falls back to the built-in content stream scanner.
func (e *Extractor) readPDF(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %w", domain.ErrExtraction, filepath.Base(path), err)
	}
	if !bytes.HasPrefix(bytes.TrimLeft(data, " \t\r\n"), []byte("%PDF-")) {
		return "", fmt.Errorf("%w: %s is not a PDF", domain.ErrExtraction, filepath.Base(path))
	}

	if bin, err := e.lookPath(pdfToText); err == nil {
		out, err := e.runner.Run(ctx, bin, "-layout", "-enc", "UTF-8", path, "-")
		if err != nil {
			return "", fmt.Errorf("%w: pdftotext %s: %w", domain.ErrExtraction, filepath.Base(path), err)
		}
		// pdftotext separates pages with form feeds.
		return strings.ReplaceAll(string(out), "\f", ""), nil
	}
	return extractPDFText(data), nil
}

// extractPDFText scans every content stream for text-showing operators.
func extractPDFText(data []byte) string {
	var out strings.Builder
	for _, stream := range pdfStreams(data) {
		scanContentStream(stream, &out)
	}
	return strings.TrimSpace(out.String())
}

// pdfStreams returns the decoded bodies of all stream objects. Streams with
// filters other than FlateDecode are returned raw.
func pdfStreams(data []byte) [][]byte {
	var streams [][]byte
	rest := data
	for {
		start := bytes.Index(rest, []byte("stream"))
		if start < 0 {
			break
		}
		// "endstream" also contains "stream"; skip it.
		if start >= 3 && string(rest[start-3:start]) == "end" {
			rest = rest[start+len("stream"):]
			continue
		}
		dict := rest[:start]
		if i := bytes.LastIndex(dict, []byte("<<")); i >= 0 {
			dict = dict[i:]
		}
		body := rest[start+len("stream"):]
		body = bytes.TrimPrefix(body, []byte("\r"))
		body = bytes.TrimPrefix(body, []byte("\n"))
		end := bytes.Index(body, []byte("endstream"))
		if end < 0 {
			break
		}
		raw := body[:end]
		rest = body[end+len("endstream"):]

		if bytes.Contains(dict, []byte("/FlateDecode")) {
			zr, err := zlib.NewReader(bytes.NewReader(raw))
			if err != nil {
				continue
			}
			decoded, err := io.ReadAll(zr)
			zr.Close()
			if err != nil && len(decoded) == 0 {
				continue
			}
			raw = decoded
		}
		streams = append(streams, raw)
	}
	return streams
}

// scanContentStream writes the text shown between BT and ET. Strings inside a
// TJ array are concatenated; line-moving operators start a new line.
func scanContentStream(s []byte, out *strings.Builder) {
	var (
		inText  bool
		pending strings.Builder
	)
	flushLine := func() {
		if line := strings.TrimSpace(pending.String()); line != "" {
			out.WriteString(line)
			out.WriteByte('\n')
		}
		pending.Reset()
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '(' && inText:
			str, n := readLiteral(s[i:])
			pending.WriteString(str)
			i += n - 1
		case c == '<' && inText && i+1 < len(s) && s[i+1] != '<':
			str, n := readHex(s[i:])
			pending.WriteString(str)
			i += n - 1
		case isRegular(c):
			j := i
			for j < len(s) && isRegular(s[j]) {
				j++
			}
			op := string(s[i:j])
			i = j - 1
			switch op {
			case "BT":
				inText = true
			case "ET":
				inText = false
				flushLine()
			case "Tj", "TJ":
				pending.WriteByte(' ')
			case "T*", "Td", "TD":
				flushLine()
			}
		case c == '\'' || c == '"':
			if inText {
				flushLine()
			}
		}
	}
	flushLine()
}

func isRegular(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', '\f', 0, '(', ')', '<', '>', '[', ']', '{', '}', '/', '%', '\'', '"':
		return false
	}
	return true
}

// readLiteral decodes a PDF literal string starting at s[0] == '('. It returns
// the decoded text and the number of bytes consumed.
func readLiteral(s []byte) (string, int) {
	var b strings.Builder
	depth := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '(':
			if depth > 0 {
				b.WriteByte(c)
			}
			depth++
		case ')':
			depth--
			if depth == 0 {
				return b.String(), i + 1
			}
			b.WriteByte(c)
		case '\\':
			if i+1 >= len(s) {
				return b.String(), len(s)
			}
			i++
			switch e := s[i]; e {
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			case 't':
				b.WriteByte('\t')
			case 'b', 'f':
			case '\r', '\n':
				// line continuation
			default:
				if e >= '0' && e <= '7' {
					v, n := 0, 0
					for n < 3 && i+n < len(s) && s[i+n] >= '0' && s[i+n] <= '7' {
						v = v*8 + int(s[i+n]-'0')
						n++
					}
					i += n - 1
					b.WriteByte(byte(v))
				} else {
					b.WriteByte(e)
				}
			}
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), len(s)
}

// readHex decodes a PDF hex string starting at s[0] == '<'.
func readHex(s []byte) (string, int) {
	end := bytes.IndexByte(s, '>')
	if end < 0 {
		return "", len(s)
	}
	var digits []byte
	for _, c := range s[1:end] {
		if unhex(c) >= 0 {
			digits = append(digits, c)
		}
	}
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	var b strings.Builder
	for i := 0; i < len(digits); i += 2 {
		v := byte(unhex(digits[i])<<4 | unhex(digits[i+1]))
		if v >= 0x20 && v < 0x7f {
			b.WriteByte(v)
		}
	}
	return b.String(), end + 1
}

func unhex(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	}
	return -1
}
