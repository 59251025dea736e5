package segmenter

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/edenschool/examparse/internal/classifier"
	"github.com/edenschool/examparse/internal/exam"
)

var (
	generatedHeader = regexp.MustCompile(`(?m)^###\s*\[?(\d+)\]?\.\s*(.+)`)
	generatedChoice = regexp.MustCompile(`^[①-⑤]\s*`)
	answerLabel     = regexp.MustCompile(`^\*\*정답\*\*:\s*`)
	explainLabel    = regexp.MustCompile(`^\*\*해설\*\*:\s*`)
	typeLabel       = regexp.MustCompile(`^\*\*유형\*\*:`)
)

// ParseGenerated reads markdown question sets of the form
//
//	### 1. prompt
//	① choice ...
//	**정답**: ③
//	**해설**: explanation
//
// Range headers such as "### [1~3]" do not match and are skipped.
func ParseGenerated(text string, category exam.Category) []exam.Question {
	locs := generatedHeader.FindAllStringSubmatchIndex(text, -1)

	var out []exam.Question
	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		num, _ := strconv.Atoi(text[loc[2]:loc[3]])
		first := strings.TrimSpace(text[loc[4]:loc[5]])
		body := text[loc[1]:end]
		if q, ok := parseGeneratedBlock(num, first, body, category); ok {
			out = append(out, q)
		}
	}
	return out
}

type generatedPhase int

const (
	phaseQuestion generatedPhase = iota
	phaseChoices
	phaseAnswer
	phaseExplanation
)

func parseGeneratedBlock(num int, first, body string, category exam.Category) (exam.Question, bool) {
	promptLines := []string{first}
	var choices []exam.Choice
	var answer, explanation string
	phase := phaseQuestion

	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if rest, ok := afterLabel(answerLabel, line); ok {
			answer = normalizeAnswer(rest)
			phase = phaseAnswer
			continue
		}
		if rest, ok := afterLabel(explainLabel, line); ok {
			explanation = rest
			phase = phaseExplanation
			continue
		}
		if _, ok := afterLabel(typeLabel, line); ok {
			continue
		}
		if rest, ok := afterLabel(generatedChoice, line); ok {
			choices = append(choices, exam.Choice{Number: len(choices) + 1, Text: rest})
			phase = phaseChoices
			continue
		}
		if strings.HasPrefix(line, "### ") {
			break
		}
		if line == "---" {
			continue
		}
		if phase == phaseExplanation {
			explanation += " " + line
			continue
		}
		if phase == phaseQuestion {
			promptLines = append(promptLines, line)
		}
	}

	prompt := strings.Join(strings.Fields(strings.Join(promptLines, " ")), " ")
	if prompt == "" {
		return exam.Question{}, false
	}
	q := exam.Question{
		Number:       num,
		QuestionText: prompt,
		QuestionType: questionType(len(choices)),
		Answer:       answer,
		Explanation:  explanation,
		Pattern:      questionPattern(fold(prompt)),
		Category:     category,
		Choices:      []exam.Choice{},
	}
	answers := q.AnswerSet()
	for _, c := range choices {
		c.IsAnswer = answers[c.Number]
		q.Choices = append(q.Choices, c)
	}
	q.Classification = classifier.Classify(fold(prompt), category)
	return q, true
}

// afterLabel matches re against the folded line and returns the rest of the
// original line. Folding maps rune to rune, so offsets carry over in runes.
func afterLabel(re *regexp.Regexp, line string) (string, bool) {
	f := fold(line)
	loc := re.FindStringIndex(f)
	if loc == nil {
		return "", false
	}
	n := utf8.RuneCountInString(f[:loc[1]])
	return strings.TrimSpace(string([]rune(line)[n:])), true
}

// normalizeAnswer turns circled numerals into a comma-joined number list
// and leaves any other answer text as written.
func normalizeAnswer(s string) string {
	s = strings.TrimSpace(s)
	var nums []string
	for _, r := range s {
		if n, ok := circledNumbers[r]; ok {
			nums = append(nums, strconv.Itoa(n))
		}
	}
	if len(nums) == 0 {
		return s
	}
	return strings.Join(nums, ",")
}
