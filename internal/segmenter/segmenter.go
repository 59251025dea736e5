// Package segmenter turns the flat text of an exam file into passages,
// questions and choices. The text carries no explicit delimiters: answer
// marker lines end questions, circled numerals start choices and the prompt
// is found by walking upwards from the first choice.
package segmenter

import (
	"regexp"
	"strings"
	"unicode/utf8"


	"github.com/edenschool/examparse/internal/classifier"
	"github.com/edenschool/examparse/internal/exam"
)

const (
	DefaultPassageKeyRunes = 100
	minPassageRunes        = 30
	minReferenceRunes      = 10
)

// Source identifies the file being segmented. FileName only feeds the
// default category; a non-empty Category overrides it.
type Source struct {
	MetaID   int64
	FileID   int64
	FileName string
	Category exam.Category
}

type Segmenter struct {
	keyRunes int
}

// New returns a Segmenter grouping passages on their first keyRunes runes.
func New(keyRunes int) *Segmenter {
	if keyRunes <= 0 {
		keyRunes = DefaultPassageKeyRunes
	}
	return &Segmenter{keyRunes: keyRunes}
}

// Segment is pure: identical text and source give identical output.
func (s *Segmenter) Segment(text string, src Source) *exam.Analysis {
	fileCat := categoryFromFileName(src.FileName)
	if src.Category != "" {
		fileCat = categoryInfo{category: src.Category}
	}

	m := &machine{cur: &block{}}
	for _, line := range strings.Split(text, "\n") {
		m.step(line)
	}

	out := &exam.Analysis{
		MetaID:     src.MetaID,
		FileID:     src.FileID,
		Passages:   []exam.Passage{},
		Standalone: []exam.Question{},
	}
	current := -1
	lastKey := ""
	for _, b := range m.finish() {
		if len(b.choices) == 0 {
			continue
		}
		passage := b.passageText()
		if utf8.RuneCountInString(passage) > minPassageRunes {
			key := prefix(passage, s.keyRunes)
			if key != lastKey {
				info := classifyPassage(fold(passage))
				p := exam.Passage{
					Content:     passage,
					Category:    fileCat.category,
					SubCategory: fileCat.subCategory,
					Title:       info.title,
					Author:      info.author,
					Keywords:    passageKeywords(passage, info),
					Questions:   []exam.Question{},
				}
				if info.category != "" {
					p.Category = info.category
				}
				if info.subCategory != "" {
					p.SubCategory = info.subCategory
				}
				out.Passages = append(out.Passages, p)
				current = len(out.Passages) - 1
				lastKey = key
			}
		}

		var owner *exam.Passage
		if current >= 0 {
			owner = &out.Passages[current]
		}
		q := buildQuestion(b, fileCat, owner)
		if owner != nil {
			owner.Questions = append(owner.Questions, q)
		} else {
			out.Standalone = append(out.Standalone, q)
		}
	}
	return out
}

func buildQuestion(b *block, fileCat categoryInfo, owner *exam.Passage) exam.Question {
	prompt := b.questionText()
	q := exam.Question{
		Number:        b.index + 1,
		QuestionText:  prompt,
		QuestionType:  questionType(len(b.choices)),
		ReferenceText: referenceText(b.raw),
		Answer:        b.answer,
		Pattern:       questionPattern(fold(prompt)),
		Category:      fileCat.category,
		SubCategory:   fileCat.subCategory,
		LowConfidence: !b.split.found,
		Choices:       make([]exam.Choice, len(b.choices)),
	}

	texts := make([]string, 0, len(b.choices)+1)
	texts = append(texts, prompt)
	for _, c := range b.choices {
		texts = append(texts, c.Text)
	}
	if sub := grammarSubCategory(fold(strings.Join(texts, " "))); sub != "" {
		q.Category, q.SubCategory = exam.CategoryGrammar, sub
	} else if owner != nil {
		q.Category, q.SubCategory = owner.Category, owner.SubCategory
	}

	answers := q.AnswerSet()
	for i, c := range b.choices {
		c.IsAnswer = answers[c.Number]
		q.Choices[i] = c
	}
	q.Classification = classifier.Classify(fold(prompt), q.Category)
	return q
}

func questionType(choices int) string {
	if choices > 0 {
		return exam.QuestionTypeMultipleChoice
	}
	return exam.QuestionTypeWritten
}

var referenceBox = regexp.MustCompile(`(?s)(?:<보기>|〈보기〉|\[보기\])(.*?)(?:①|\z)`)

// referenceText returns the boxed <보기> text of a block, up to its first
// choice, when it is long enough to be real content.
func referenceText(raw []string) string {
	m := referenceBox.FindStringSubmatch(strings.Join(raw, "\n"))
	if m == nil {
		m = referenceBox.FindStringSubmatch(fold(strings.Join(raw, "\n")))
	}
	if m == nil {
		return ""
	}
	ref := strings.TrimSpace(m[1])
	if utf8.RuneCountInString(ref) <= minReferenceRunes {
		return ""
	}
	return ref
}

func prefix(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
