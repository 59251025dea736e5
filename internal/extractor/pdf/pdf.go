// Package pdf pulls text out of PDF exam files through pdfcpu's content
// streams. It reads literal-string show operators only; exam PDFs built
// from embedded CID fonts usually come out short or garbled and are caught
// by the pipeline's quality gate.
package pdf

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	apperrors "github.com/edenschool/examparse/pkg/errors"
)

type Stats struct {
	Pages     int
	TextPages int
}

// Extract returns page texts joined by newlines, one line per text line
// recovered from the content streams.
func Extract(buf []byte) (string, Stats, error) {
	var stats Stats
	conf := model.NewDefaultConfiguration()
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(buf), conf)
	if err != nil {
		return "", stats, fmt.Errorf("%w: pdfcpu read: %v", apperrors.ErrCorruptContainer, err)
	}
	stats.Pages = ctx.PageCount

	var pages []string
	for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
		text := pageText(ctx, pageNr)
		if text == "" {
			continue
		}
		stats.TextPages++
		pages = append(pages, text)
	}
	return strings.Join(pages, "\n"), stats, nil
}

func pageText(ctx *model.Context, pageNr int) string {
	r, err := pdfcpu.ExtractPageContent(ctx, pageNr)
	if err != nil || r == nil {
		return ""
	}
	data, err := io.ReadAll(r)
	if err != nil || len(data) == 0 {
		return ""
	}
	return TextFromContentStream(data)
}

var stringLiteral = regexp.MustCompile(`\(((?:\\.|[^\\)])*)\)`)

// TextFromContentStream interprets Tj, TJ, ' and T* well enough to recover
// line structure: a line break is emitted on T*, ', and on Td/TD moves with
// a non-zero vertical offset.
func TextFromContentStream(data []byte) string {
	var sb strings.Builder
	newline := func() {
		if sb.Len() > 0 && !strings.HasSuffix(sb.String(), "\n") {
			sb.WriteByte('\n')
		}
	}
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		switch {
		case bytes.HasSuffix(line, []byte("Tj")), bytes.HasSuffix(line, []byte("TJ")):
			writeStrings(&sb, line)
		case bytes.HasSuffix(line, []byte("'")) && bytes.Contains(line, []byte("(")):
			newline()
			writeStrings(&sb, line)
		case bytes.HasSuffix(line, []byte("Td")), bytes.HasSuffix(line, []byte("TD")):
			fields := bytes.Fields(line)
			if len(fields) >= 3 && string(fields[len(fields)-2]) != "0" {
				newline()
			} else if sb.Len() > 0 {
				sb.WriteByte(' ')
			}
		case bytes.Equal(line, []byte("T*")):
			newline()
		}
	}
	return cleanLines(sb.String())
}

func writeStrings(sb *strings.Builder, line []byte) {
	for _, m := range stringLiteral.FindAllSubmatch(line, -1) {
		sb.WriteString(decodeLiteral(m[1]))
	}
}

// decodeLiteral resolves PDF string escapes, octal included.
func decodeLiteral(raw []byte) string {
	var sb strings.Builder
	for i := 0; i < len(raw); i++ {
		if raw[i] != '\\' || i+1 >= len(raw) {
			sb.WriteByte(raw[i])
			continue
		}
		i++
		switch c := raw[i]; c {
		case 'n':
			sb.WriteByte('\n')
		case 'r':
			sb.WriteByte('\r')
		case 't':
			sb.WriteByte('\t')
		case '\\', '(', ')':
			sb.WriteByte(c)
		default:
			if c < '0' || c > '7' {
				sb.WriteByte(c)
				continue
			}
			val := int(c - '0')
			for n := 0; n < 2 && i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7'; n++ {
				i++
				val = val*8 + int(raw[i]-'0')
			}
			sb.WriteByte(byte(val))
		}
	}
	return sb.String()
}

// cleanLines collapses whitespace inside each line and drops
// non-printable runes, keeping line boundaries for the segmenter.
func cleanLines(text string) string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		var sb strings.Builder
		prevSpace := false
		for _, r := range line {
			if unicode.IsSpace(r) {
				if !prevSpace && sb.Len() > 0 {
					sb.WriteByte(' ')
					prevSpace = true
				}
			} else if unicode.IsPrint(r) {
				sb.WriteRune(r)
				prevSpace = false
			}
		}
		if s := strings.TrimSpace(sb.String()); s != "" {
			out = append(out, s)
		}
	}
	return strings.Join(out, "\n")
}

// Sniff reports whether buf starts with a PDF header.
func Sniff(buf []byte) bool {
	return bytes.HasPrefix(buf, []byte("%PDF-"))
}
