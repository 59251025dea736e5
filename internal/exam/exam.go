// Package exam holds the structured output of one parsed exam file:
// passages, the questions that reference them, their choices and the
// classifier's verdict on each question.
package exam

import "strings"

// Category is a top-level subject area of the Korean-language exam.
type Category string

const (
	CategoryLiterature    Category = "문학"
	CategoryReading       Category = "독서"
	CategoryGrammar       Category = "문법"
	CategorySpeechWriting Category = "화작"
	CategoryOther         Category = "기타"
)

// Scored reports whether the classifier keeps a rule set for c.
func (c Category) Scored() bool {
	switch c {
	case CategoryLiterature, CategoryReading, CategoryGrammar, CategorySpeechWriting:
		return true
	}
	return false
}

const (
	QuestionTypeMultipleChoice = "객관식"
	QuestionTypeWritten        = "서술형"
)

// Classification is the classifier's verdict for one question. It is never
// absent: a question nothing matched carries the UNKNOWN code.
type Classification struct {
	Code       string   `json:"code"`
	Category   Category `json:"category"`
	NameKo     string   `json:"nameKo"`
	Confidence float64  `json:"confidence"`
}

type Choice struct {
	Number   int    `json:"choiceNumber"`
	Text     string `json:"choiceText"`
	IsAnswer bool   `json:"isAnswer"`
}

type Question struct {
	Number        int      `json:"questionNumber"`
	QuestionText  string   `json:"questionText"`
	QuestionType  string   `json:"questionType"`
	ReferenceText string   `json:"referenceText,omitempty"`
	Answer        string   `json:"answer,omitempty"`
	Explanation   string   `json:"explanation,omitempty"`
	Pattern       string   `json:"questionPattern,omitempty"`
	Category      Category `json:"category"`
	SubCategory   string   `json:"subCategory,omitempty"`
	// LowConfidence marks questions whose prompt could not be located.
	LowConfidence  bool           `json:"lowConfidence,omitempty"`
	Classification Classification `json:"classification"`
	Choices        []Choice       `json:"choices"`
}

// AnswerSet returns the choice numbers named by Answer ("2" or "2,4").
func (q Question) AnswerSet() map[int]bool {
	set := make(map[int]bool)
	for _, part := range strings.Split(q.Answer, ",") {
		part = strings.TrimSpace(part)
		n := 0
		for _, r := range part {
			if r < '0' || r > '9' {
				n = 0
				break
			}
			n = n*10 + int(r-'0')
		}
		if n > 0 {
			set[n] = true
		}
	}
	return set
}

type Passage struct {
	Content     string     `json:"content"`
	Category    Category   `json:"category"`
	SubCategory string     `json:"subCategory,omitempty"`
	Title       string     `json:"title,omitempty"`
	Author      string     `json:"author,omitempty"`
	Keywords    string     `json:"keywords,omitempty"`
	Questions   []Question `json:"questions"`
}

// Analysis is everything extracted from one file.
type Analysis struct {
	MetaID     int64      `json:"metaId"`
	FileID     int64      `json:"fileId"`
	Passages   []Passage  `json:"passages"`
	Standalone []Question `json:"standaloneQuestions"`
}

func (a *Analysis) QuestionCount() int {
	n := len(a.Standalone)
	for _, p := range a.Passages {
		n += len(p.Questions)
	}
	return n
}

// Questions visits every question in document order of its owner: passages
// first, then standalone questions.
func (a *Analysis) Questions(fn func(q *Question)) {
	for i := range a.Passages {
		for j := range a.Passages[i].Questions {
			fn(&a.Passages[i].Questions[j])
		}
	}
	for i := range a.Standalone {
		fn(&a.Standalone[i])
	}
}
