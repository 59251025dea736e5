package segmenter

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/width"
)

var circledNumbers = map[rune]int{
	'①': 1, '②': 2, '③': 3, '④': 4, '⑤': 5,
	'⑥': 6, '⑦': 7, '⑧': 8, '⑨': 9, '⑩': 10,
}

var (
	// "[미래엔 국어]계남고24년1학기기말 ③", "[이든]②", "[이든] ②, ④"
	circledAnswerLine = regexp.MustCompile(`\[[^\]]+\].*?([①-⑩](?:\s*,\s*[①-⑩])*)\s*$`)
	digitAnswerLine   = regexp.MustCompile(`\[[^\]]+\].*\s(\d)\s*$`)

	choiceLine = regexp.MustCompile(`^([①-⑤])\s*(.*)`)
)

// fold maps fullwidth forms to their narrow equivalents. Rules match on the
// folded copy; stored text keeps the source characters.
func fold(s string) string {
	return width.Fold.String(s)
}

// parseAnswerMarker reports whether line is an answer marker and returns
// the answer as a comma-joined list of choice numbers.
func parseAnswerMarker(line string) (string, bool) {
	t := fold(strings.TrimSpace(line))
	if m := circledAnswerLine.FindStringSubmatch(t); m != nil {
		var nums []string
		for _, r := range m[1] {
			if n, ok := circledNumbers[r]; ok {
				nums = append(nums, strconv.Itoa(n))
			}
		}
		return strings.Join(nums, ","), true
	}
	if m := digitAnswerLine.FindStringSubmatch(t); m != nil {
		return m[1], true
	}
	return "", false
}

func isAnswerLine(line string) bool {
	_, ok := parseAnswerMarker(line)
	return ok
}

// parseChoice splits a trimmed choice line into its number and text.
func parseChoice(line string) (int, string, bool) {
	m := choiceLine.FindStringSubmatch(line)
	if m == nil {
		return 0, "", false
	}
	r := []rune(m[1])[0]
	return circledNumbers[r], strings.TrimSpace(m[2]), true
}

func isChoiceLine(line string) bool {
	return choiceLine.MatchString(strings.TrimSpace(line))
}

type lineKind int

const (
	kindBlank lineKind = iota
	kindText
	kindChoice
	kindMarker
)

func classifyLine(line string) lineKind {
	t := fold(strings.TrimSpace(line))
	switch {
	case t == "":
		return kindBlank
	case isAnswerLine(t):
		return kindMarker
	case isChoiceLine(t):
		return kindChoice
	default:
		return kindText
	}
}
