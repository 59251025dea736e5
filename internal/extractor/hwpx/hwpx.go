// Package hwpx extracts text from HWPX (OWPML) documents: a ZIP archive of
// Contents/sectionN.xml files whose text lives in <hp:t> elements.
package hwpx

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	apperrors "github.com/edenschool/examparse/pkg/errors"
)

const maxSections = 1000

// Stats describes what was read from the archive.
type Stats struct {
	Sections int
	Runs     int
}

// Extract reads Contents/section0.xml, section1.xml, ... until the first
// missing index, and returns every non-blank <t> run joined by newlines.
func Extract(buf []byte) (string, Stats, error) {
	var stats Stats
	zr, err := zip.NewReader(bytes.NewReader(buf), int64(len(buf)))
	if err != nil {
		return "", stats, fmt.Errorf("%w: opening hwpx archive: %v", apperrors.ErrCorruptContainer, err)
	}
	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}

	var runs []string
	for i := 0; i < maxSections; i++ {
		f, ok := files[fmt.Sprintf("Contents/section%d.xml", i)]
		if !ok {
			break
		}
		sectionRuns, err := readSection(f)
		if err != nil {
			return "", stats, fmt.Errorf("%w: %s: %v", apperrors.ErrCorruptContainer, f.Name, err)
		}
		stats.Sections++
		runs = append(runs, sectionRuns...)
	}
	if stats.Sections == 0 {
		return "", stats, apperrors.ErrNoBodySections
	}
	stats.Runs = len(runs)
	return strings.Join(runs, "\n"), stats, nil
}

func readSection(f *zip.File) ([]string, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	decoder := xml.NewDecoder(rc)
	decoder.Strict = false
	var runs []string
	var current strings.Builder
	depth := 0
	for {
		tok, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				if depth == 0 {
					current.Reset()
				}
				depth++
			}
		case xml.CharData:
			if depth > 0 {
				current.Write(t)
			}
		case xml.EndElement:
			if t.Name.Local == "t" && depth > 0 {
				depth--
				if depth == 0 {
					text := current.String()
					if strings.TrimSpace(text) != "" {
						runs = append(runs, text)
					}
				}
			}
		}
	}
	return runs, nil
}

// Sniff reports whether buf looks like a ZIP archive carrying HWPX content.
func Sniff(buf []byte) bool {
	if len(buf) < 4 || !bytes.Equal(buf[:4], []byte("PK\x03\x04")) {
		return false
	}
	return bytes.Contains(buf, []byte("Contents/section"))
}
