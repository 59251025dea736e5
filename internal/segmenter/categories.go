package segmenter

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/edenschool/examparse/internal/exam"
)

type categoryInfo struct {
	category    exam.Category
	subCategory string
	title       string
	author      string
}

var (
	fileNameTag = regexp.MustCompile(`\[([^\]]*)\]`)

	fileNameRules = []struct {
		re  *regexp.Regexp
		cat categoryInfo
	}{
		{regexp.MustCompile(`문학`), categoryInfo{category: exam.CategoryLiterature}},
		{regexp.MustCompile(`독서`), categoryInfo{category: exam.CategoryReading}},
		{regexp.MustCompile(`화작|화법과\s*작문`), categoryInfo{category: exam.CategorySpeechWriting}},
		{regexp.MustCompile(`언매|언어와\s*매체`), categoryInfo{category: exam.CategoryOther, subCategory: "언어와매체"}},
		{regexp.MustCompile(`문법`), categoryInfo{category: exam.CategoryGrammar}},
		{regexp.MustCompile(`국어`), categoryInfo{category: exam.CategoryOther, subCategory: "국어(통합)"}},
	}
)

// categoryFromFileName reads the default category from the bracketed tag
// of a file name such as "[문학] 2024 기말.hwp", or from the whole name
// when there is no tag.
func categoryFromFileName(name string) categoryInfo {
	if name == "" {
		return categoryInfo{category: exam.CategoryOther}
	}
	tag := name
	if m := fileNameTag.FindStringSubmatch(name); m != nil {
		tag = m[1]
	}
	for _, r := range fileNameRules {
		if r.re.MatchString(tag) {
			return r.cat
		}
	}
	return categoryInfo{category: exam.CategoryOther}
}

var (
	bylineQuoted  = regexp.MustCompile(`[-–—]\s*([가-힣]{2,5})\s*[,，]\s*[「『《<'"]([^」』》>'"]+)[」』》>'"]`)
	bylineBracket = regexp.MustCompile(`[-–—]\s*([가-힣]{2,5})\s*[,，]\s*「([^」]+)」`)

	dramaCues     = regexp.MustCompile(`희곡|시나리오|무대|막이\s*오르|#`)
	essayCues     = regexp.MustCompile(`수필|에세이`)
	classicEnding = regexp.MustCompile(`님|하노라|하노이다|이시니|하시니|하였더니|하니라|도다|로다`)

	subjectRules = []struct {
		re  *regexp.Regexp
		sub string
	}{
		{regexp.MustCompile(`경제|시장|수요|공급|화폐|금리|무역|자본`), "사회"},
		{regexp.MustCompile(`과학|물리|화학|생물|유전|세포|분자|에너지`), "과학"},
		{regexp.MustCompile(`기술|컴퓨터|알고리즘|인공지능|로봇|소프트웨어`), "기술"},
		{regexp.MustCompile(`철학|윤리|사상|존재론|인식론`), "인문"},
		{regexp.MustCompile(`예술|미학|음악|미술|건축|무용`), "예술"},
		{regexp.MustCompile(`법률|헌법|민법|소송|판결`), "사회"},
		{regexp.MustCompile(`역사|조선|고려|삼국|일제`), "인문"},
	}
)

var classicAuthors = map[string]bool{
	"정철": true, "윤선도": true, "정극인": true, "박인로": true, "허균": true, "김만중": true,
	"맹사성": true, "이황": true, "이이": true, "정약용": true, "박지원": true, "허난설헌": true,
	"황진이": true, "성삼문": true, "이색": true, "이제현": true, "신흠": true, "이현보": true,
	"이정보": true, "홍랑": true, "정몽주": true, "이방원": true, "조식": true, "신사임당": true,
	"송순": true, "이서": true, "김천택": true, "이중환": true,
}

// classifyPassage infers category and genre from passage content. An empty
// category means the content carried no cue.
func classifyPassage(text string) categoryInfo {
	var info categoryInfo
	if m := bylineQuoted.FindStringSubmatch(text); m != nil {
		info.author, info.title = m[1], m[2]
	} else if m := bylineBracket.FindStringSubmatch(text); m != nil {
		info.author, info.title = m[1], m[2]
	}

	length := utf8.RuneCountInString(text)
	if info.author != "" || info.title != "" {
		info.category = exam.CategoryLiterature
		switch {
		case classicAuthors[info.author]:
			info.subCategory = "고전시가"
		case isVerse(text):
			info.subCategory = "현대시"
		case dramaCues.MatchString(text):
			info.subCategory = "희곡"
		case essayCues.MatchString(text):
			info.subCategory = "수필"
		case length > 300:
			info.subCategory = "현대소설"
		}
		return info
	}

	if classicEnding.MatchString(text) && length < 500 {
		return categoryInfo{category: exam.CategoryLiterature, subCategory: "고전시가"}
	}
	for _, r := range subjectRules {
		if r.re.MatchString(text) {
			return categoryInfo{category: exam.CategoryReading, subCategory: r.sub}
		}
	}
	return categoryInfo{}
}

// isVerse treats short average line length over a modest number of lines
// as poetry.
func isVerse(text string) bool {
	var lines, runes int
	for _, l := range strings.Split(text, "\n") {
		if strings.TrimSpace(l) == "" {
			continue
		}
		lines++
		runes += utf8.RuneCountInString(l)
	}
	if lines == 0 {
		return true
	}
	return float64(runes)/float64(lines) < 40 && lines < 80
}

var grammarRules = []struct {
	re  *regexp.Regexp
	sub string
}{
	{regexp.MustCompile(`음운|발음|음절|자음|모음|변동|된소리|거센소리|구개음화|비음화|유음화|축약|탈락|첨가`), "음운"},
	{regexp.MustCompile(`형태소|어근|접사|접두|접미|파생|합성`), "형태소"},
	{regexp.MustCompile(`품사|명사|동사|형용사|부사|관형사|감탄사`), "단어"},
	{regexp.MustCompile(`문장.*성분|주어|서술어|목적어|보어|부사어|관형어|독립어|안은문장|이어진`), "문장구조"},
	{regexp.MustCompile(`높임|경어|존대|하십시오|해요`), "높임표현"},
	{regexp.MustCompile(`맞춤법|띄어쓰기|사이시옷|표준어|외래어`), "맞춤법"},
	{regexp.MustCompile(`국어사|중세|옛말|훈민정음|고어|이두|향찰`), "국어사"},
	{regexp.MustCompile(`담화|텍스트|매체|의미관계|사전`), "담화"},
}

// grammarSubCategory returns the grammar area named by a question's prompt
// and choices, or "" when it is not a grammar question.
func grammarSubCategory(text string) string {
	for _, r := range grammarRules {
		if r.re.MatchString(text) {
			return r.sub
		}
	}
	return ""
}

var patternRules = []struct {
	re      *regexp.Regexp
	pattern string
}{
	{regexp.MustCompile(`일치하는|일치하지\s*않는|내용으로\s*(?:적절|옳)`), "내용이해"},
	{regexp.MustCompile(`표현.*특징|표현.*적절|수사법|표현법`), "표현감상"},
	{regexp.MustCompile(`추론|추리|짐작|유추`), "추론"},
	{regexp.MustCompile(`공통점|차이점|비교`), "비교분석"},
	{regexp.MustCompile(`밑줄|㉠|㉡|의미.*가장\s*가까운|사전적`), "어휘"},
	{regexp.MustCompile(`<보기>를\s*(?:참고|바탕|활용)`), "적용"},
	{regexp.MustCompile(`서술.*방식|전개.*방식|설명.*방식`), "서술방식"},
	{regexp.MustCompile(`빈칸|빈 칸|괄호`), "빈칸추론"},
	{regexp.MustCompile(`음운|발음|형태소|단어.*설명|문장|높임|맞춤법|띄어쓰기|국어사|훈민정음`), "문법규칙"},
	{regexp.MustCompile(`자료|도표|그래프`), "자료해석"},
	{regexp.MustCompile(`감상으로|이해로`), "감상이해"},
	{regexp.MustCompile(`적절하지\s*않은|적절한`), "내용이해"},
}

func questionPattern(prompt string) string {
	for _, r := range patternRules {
		if r.re.MatchString(prompt) {
			return r.pattern
		}
	}
	return ""
}

var quotedTitle = regexp.MustCompile(`[「『《]([^」』》]+)[」』》]`)

// passageKeywords lists title, author and every bracketed work title shorter
// than 30 runes, without duplicates, comma-joined.
func passageKeywords(text string, info categoryInfo) string {
	var keywords []string
	seen := make(map[string]bool)
	add := func(k string) {
		if k == "" || seen[k] {
			return
		}
		seen[k] = true
		keywords = append(keywords, k)
	}
	add(info.title)
	add(info.author)
	for _, m := range quotedTitle.FindAllStringSubmatch(text, -1) {
		if utf8.RuneCountInString(m[1]) < 30 {
			add(m[1])
		}
	}
	return strings.Join(keywords, ",")
}
