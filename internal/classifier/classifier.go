// Package classifier assigns a question type to an exam prompt by keyword
// scoring against per-category rule sets.
package classifier

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/edenschool/examparse/internal/exam"
)

const CodeUnknown = "UNKNOWN"

// TypeInfo describes one question type as stored in the type reference
// table.
type TypeInfo struct {
	Code      string        `json:"code"`
	Category  exam.Category `json:"category"`
	NameKo    string        `json:"nameKo"`
	SortOrder int           `json:"sortOrder"`
}

var typeIndex = buildIndex()

func buildIndex() map[string]TypeInfo {
	idx := make(map[string]TypeInfo)
	for _, set := range ruleSets {
		for i, r := range set.rules {
			idx[r.Code] = TypeInfo{Code: r.Code, Category: set.category, NameKo: r.NameKo, SortOrder: i}
		}
	}
	return idx
}

// AllTypes lists every known type grouped by category in scan order.
func AllTypes() []TypeInfo {
	out := make([]TypeInfo, 0, len(typeIndex))
	for _, set := range ruleSets {
		for _, r := range set.rules {
			out = append(out, typeIndex[r.Code])
		}
	}
	return out
}

func Lookup(code string) (TypeInfo, bool) {
	info, ok := typeIndex[code]
	return info, ok
}

type scored struct {
	rule    Rule
	score   float64
	matches int
}

// Classify returns the best matching type for text. When known names a
// scored category its rules are tried first; otherwise, or when they match
// nothing, every rule set is scanned, then category fallbacks apply. The
// result is never empty: UNKNOWN with zero confidence is the last resort.
func Classify(text string, known exam.Category) exam.Classification {
	text = strings.Join(strings.Fields(text), " ")

	if known.Scored() {
		for _, set := range ruleSets {
			if set.category != known {
				continue
			}
			if res, ok := scoreRules(text, set.rules); ok {
				return res
			}
		}
	}

	if res, ok := scanAll(text); ok {
		return res
	}
	if res, ok := fallback(text, known); ok {
		return res
	}

	category := known
	if category == "" {
		category = exam.CategoryLiterature
	}
	return exam.Classification{Code: CodeUnknown, Category: category, NameKo: "미분류"}
}

func matchRule(text string, r Rule) (float64, int) {
	n := 0
	for _, kw := range r.Keywords {
		if strings.Contains(text, kw) {
			n++
		}
	}
	return float64(n)*r.Weight + float64(r.Priority)/100, n
}

func scoreRules(text string, rules []Rule) (exam.Classification, bool) {
	var scores []scored
	for _, r := range rules {
		score, n := matchRule(text, r)
		if n > 0 {
			scores = append(scores, scored{rule: r, score: score, matches: n})
		}
	}
	if len(scores) == 0 {
		return exam.Classification{}, false
	}
	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].score != scores[j].score {
			return scores[i].score > scores[j].score
		}
		return scores[i].rule.Priority > scores[j].rule.Priority
	})

	best := scores[0]
	ratio := float64(best.matches) / float64(len(best.rule.Keywords))
	second := 0.0
	if len(scores) > 1 {
		second = scores[1].score
	}
	gap := (best.score - second) / best.score
	confidence := math.Min(1, ratio*0.6+gap*0.4)
	return result(best.rule.Code, round2(confidence)), true
}

// scanAll keeps the first rule to reach the highest score across all
// categories, with a flat confidence of score/10.
func scanAll(text string) (exam.Classification, bool) {
	var best *Rule
	bestScore := -1.0
	for _, set := range ruleSets {
		for i := range set.rules {
			score, n := matchRule(text, set.rules[i])
			if n > 0 && score > bestScore {
				bestScore = score
				best = &set.rules[i]
			}
		}
	}
	if best == nil {
		return exam.Classification{}, false
	}
	return result(best.Code, math.Min(1, round2(bestScore/10))), true
}

type fallbackRule struct {
	pattern    *regexp.Regexp
	code       string
	confidence float64
}

var grammarFallbacks = []fallbackRule{
	{regexp.MustCompile(`[\x{1100}-\x{11FF}\x{A960}-\x{A97C}]|원문.*풀이|풀이.*원문|문헌`), "GRAM_HISTORY", 0.3},
	{regexp.MustCompile(`올바르|바르게|바른 것`), "GRAM_ORTHO", 0.2},
	{regexp.MustCompile(`탐구|분석한|분류한|짝지은|연결한|묶은|골라`), "GRAM_MORPH", 0.15},
	{regexp.MustCompile(`문장`), "GRAM_SYNTAX", 0.2},
	{regexp.MustCompile(`단어|기본형|활용`), "GRAM_MORPH", 0.2},
	{regexp.MustCompile(`변화|변동`), "GRAM_PHONOL", 0.2},
	{regexp.MustCompile(`서술하시오|쓰시오|쓰세요|직역`), "GRAM_HISTORY", 0.15},
	{regexp.MustCompile(`것은|고른 것|보기`), "GRAM_MORPH", 0.1},
}

var literatureFallbacks = []fallbackRule{
	{regexp.MustCompile(`감상`), "LIT_BOGI", 0.2},
	{regexp.MustCompile(`\(가\)|\(나\)`), "LIT_COMPARE", 0.2},
	{regexp.MustCompile(`의미`), "LIT_MEANING", 0.2},
	{regexp.MustCompile(`표현`), "LIT_EXPRESSION", 0.2},
	{regexp.MustCompile(`것은|설명|이해`), "LIT_CONTENT", 0.1},
}

func fallback(text string, known exam.Category) (exam.Classification, bool) {
	var rules []fallbackRule
	switch known {
	case exam.CategoryGrammar:
		rules = grammarFallbacks
	case exam.CategoryLiterature:
		rules = literatureFallbacks
	default:
		return exam.Classification{}, false
	}
	for _, fr := range rules {
		if fr.pattern.MatchString(text) {
			return result(fr.code, fr.confidence), true
		}
	}
	return exam.Classification{}, false
}

func result(code string, confidence float64) exam.Classification {
	info := typeIndex[code]
	return exam.Classification{
		Code:       code,
		Category:   info.Category,
		NameKo:     info.NameKo,
		Confidence: confidence,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
