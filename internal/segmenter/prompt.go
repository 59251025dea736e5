package segmenter

import (
	"regexp"
	"strings"
)

const (
	promptLookback  = 10
	promptExtension = 5
)

var (
	promptPatterns = []*regexp.Regexp{
		regexp.MustCompile(`것은\??$|고르시오|답하시오|고른\s*것은|보기.*서.*고른|맞[는게]|옳[는은]|적절한|적절하지`),
		regexp.MustCompile(`설명으로|이해로|감상으로|탐구한|다음.*물음|평가한`),
		regexp.MustCompile(`[?？]$`),
	}

	// Lines that end a multi-line prompt when walking upwards: notes,
	// author bylines and closing tags of boxed text.
	promptStop = regexp.MustCompile(`^※|^[-–—]\s*[가-힣]|^\[/(?:보기|지문)\]`)

	passageOpener = regexp.MustCompile(`^※\s*다음\s*글을\s*읽고`)
)

func isPromptLine(line string) bool {
	line = fold(line)
	for _, re := range promptPatterns {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

// split divides the trimmed lines that precede a block's first choice into
// passage candidate and prompt.
type split struct {
	passageStart int
	promptStart  int
	found        bool
}

// lookback walks upwards from the end of lines to the nearest prompt line
// within promptLookback lines, then absorbs up to promptExtension earlier
// lines of a wrapped prompt. Without a prompt line the whole input is
// passage candidate.
func lookback(lines []string) split {
	s := split{promptStart: len(lines)}
	end := len(lines)
	for i := end - 1; i >= 0 && i >= end-promptLookback; i-- {
		if lines[i] == "" || !isPromptLine(lines[i]) {
			continue
		}
		s.promptStart = i
		s.found = true
		for j := i - 1; j >= 0 && j >= i-promptExtension; j-- {
			prev := lines[j]
			if prev == "" || promptStop.MatchString(fold(prev)) || isChoiceLine(prev) || isAnswerLine(prev) {
				break
			}
			s.promptStart = j
		}
		break
	}
	for i := 0; i < s.promptStart; i++ {
		if passageOpener.MatchString(fold(lines[i])) {
			s.passageStart = i
			break
		}
	}
	return s
}

func joinNonEmpty(lines []string, sep string) string {
	var kept []string
	for _, l := range lines {
		if l != "" {
			kept = append(kept, l)
		}
	}
	return strings.TrimSpace(strings.Join(kept, sep))
}
