package segmenter

import (
	"strings"
	"testing"

	"github.com/edenschool/examparse/internal/exam"
	"github.com/stretchr/testify/assert"
)

func TestCategoryFromFileName(t *testing.T) {
	tests := []struct {
		name string
		want categoryInfo
	}{
		{"[문학] 2024 기말.hwp", categoryInfo{category: exam.CategoryLiterature}},
		{"[화법과 작문] 중간.hwp", categoryInfo{category: exam.CategorySpeechWriting}},
		{"[언어와 매체] 기말.hwp", categoryInfo{category: exam.CategoryOther, subCategory: "언어와매체"}},
		{"국어 기말.hwp", categoryInfo{category: exam.CategoryOther, subCategory: "국어(통합)"}},
		{"[수학] 기말.hwp", categoryInfo{category: exam.CategoryOther}},
		{"", categoryInfo{category: exam.CategoryOther}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, categoryFromFileName(tt.name))
		})
	}
}

func TestClassifyPassage(t *testing.T) {
	novel := strings.Repeat("그는 아무 말 없이 창밖을 바라보았다 ", 20) + "\n- 박태원, 「천변풍경」"

	tests := []struct {
		name string
		text string
		want categoryInfo
	}{
		{
			name: "classic author",
			text: "- 정철, 「관동별곡」\n강호에 병이 깊어",
			want: categoryInfo{category: exam.CategoryLiterature, subCategory: "고전시가", author: "정철", title: "관동별곡"},
		},
		{
			name: "modern verse",
			text: "나 보기가 역겨워\n가실 때에는\n- 김소월, 「진달래꽃」",
			want: categoryInfo{category: exam.CategoryLiterature, subCategory: "현대시", author: "김소월", title: "진달래꽃"},
		},
		{
			name: "modern novel",
			text: novel,
			want: categoryInfo{category: exam.CategoryLiterature, subCategory: "현대소설", author: "박태원", title: "천변풍경"},
		},
		{
			name: "classical ending without byline",
			text: "청산리 벽계수야 수이 감을 자랑 마라 쉬어 간들 어떠리 하노라",
			want: categoryInfo{category: exam.CategoryLiterature, subCategory: "고전시가"},
		},
		{
			name: "non-literary subject",
			text: "수요와 공급이 만나는 지점에서 가격이 결정된다.",
			want: categoryInfo{category: exam.CategoryReading, subCategory: "사회"},
		},
		{
			name: "no cue",
			text: "오늘은 날씨가 맑다.",
			want: categoryInfo{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyPassage(tt.text))
		})
	}
}

func TestGrammarSubCategory(t *testing.T) {
	tests := map[string]string{
		"다음 중 비음화가 일어나는 것은?":  "음운",
		"밑줄 친 말의 품사로 적절한 것은?": "단어",
		"높임 표현이 쓰인 문장은?":      "높임표현",
		"윗글의 내용으로 적절한 것은?":   "",
	}
	for text, want := range tests {
		assert.Equal(t, want, grammarSubCategory(text), text)
	}
}

func TestQuestionPattern(t *testing.T) {
	tests := map[string]string{
		"윗글의 내용과 일치하지 않는 것은?":  "내용이해",
		"㉠의 의미로 가장 적절한 것은?":    "어휘",
		"<보기>를 참고하여 감상한 것은?":  "적용",
		"다음 빈칸에 들어갈 말은?":       "빈칸추론",
		"윗글에 대한 감상으로 적절한 것은?": "감상이해",
		"아무 말":                 "",
	}
	for text, want := range tests {
		assert.Equal(t, want, questionPattern(text), text)
	}
}

func TestPassageKeywords(t *testing.T) {
	text := "「가」와 『나』, 다시 「가」 그리고 《아주 긴 제목이 서른 글자를 넘어가도록 길게 작성한 예시 제목입니다》"
	got := passageKeywords(text, categoryInfo{title: "가", author: "홍길동"})
	assert.Equal(t, "가,홍길동,나", got)
}
