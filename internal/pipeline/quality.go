package pipeline

import (
	"strings"
	"unicode"
	"unicode/utf8"

	apperrors "github.com/edenschool/examparse/pkg/errors"
)

// checkQuality rejects text that is too short to hold an exam (usually a
// scanned, image-only file) or mostly unprintable (a decode that went wrong
// without failing).
func checkQuality(text string, minLength int, minPrintable float64) (int, error) {
	trimmed := strings.TrimSpace(text)
	n := utf8.RuneCountInString(trimmed)
	if n == 0 {
		return 0, apperrors.New(apperrors.ErrEmptyContent, apperrors.StatusSkip, "no text extracted")
	}
	if n < minLength {
		return n, apperrors.Newf(apperrors.ErrTooShort, apperrors.StatusSkip, "%d chars", n)
	}
	if ratio := printableRatio(trimmed); ratio < minPrintable {
		return n, apperrors.Newf(apperrors.ErrGarbled, apperrors.StatusError, "printable ratio %.2f", ratio)
	}
	return n, nil
}

func printableRatio(s string) float64 {
	var total, ok int
	for _, r := range s {
		total++
		if r == utf8.RuneError {
			continue
		}
		if unicode.IsPrint(r) || unicode.IsSpace(r) {
			ok++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(ok) / float64(total)
}
