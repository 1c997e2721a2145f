package extract

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/WessleyAI/nlq-engine/engine/domain"
)

const documentPart = "word/document.xml"

// readDOCX extracts paragraph text from word/document.xml. Paragraphs are
// joined with a newline, matching how word processors export plain text.
func readDOCX(path string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("%w: open docx %s: %w", domain.ErrExtraction, filepath.Base(path), err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.Name != documentPart {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("%w: open %s: %w", domain.ErrExtraction, documentPart, err)
		}
		defer rc.Close()
		text, err := parseDocumentXML(rc)
		if err != nil {
			return "", fmt.Errorf("%w: parse %s: %w", domain.ErrExtraction, documentPart, err)
		}
		return text, nil
	}
	return "", fmt.Errorf("%w: %s has no %s", domain.ErrExtraction, filepath.Base(path), documentPart)
}

// parseDocumentXML walks the WordprocessingML token stream. Only text runs,
// tabs and breaks contribute to the output.
func parseDocumentXML(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var (
		out    strings.Builder
		para   strings.Builder
		inText bool
		paras  int
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				para.WriteByte('\t')
			case "br", "cr":
				para.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if paras > 0 {
					out.WriteByte('\n')
				}
				out.WriteString(para.String())
				para.Reset()
				paras++
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		}
	}
	return out.String(), nil
}
