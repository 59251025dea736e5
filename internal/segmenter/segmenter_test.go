package segmenter

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/edenschool/examparse/internal/exam"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lines(l ...string) string {
	return strings.Join(l, "\n")
}

var fiveChoices = []string{"① 하나", "② 둘", "③ 셋", "④ 넷", "⑤ 다섯"}

func examBlock(pre []string, marker string) []string {
	out := append([]string{}, pre...)
	out = append(out, fiveChoices...)
	if marker != "" {
		out = append(out, marker)
	}
	return out
}

func TestParseAnswerMarker(t *testing.T) {
	tests := []struct {
		line   string
		answer string
		ok     bool
	}{
		{"[미래엔 국어]계남고24년1학기기말 ③", "3", true},
		{"[이든]②", "2", true},
		{"  [이든] ②, ④  ", "2,4", true},
		{"[이든] 설명 ② 끝 ⑤", "5", true},
		{"[출처] 기말고사 4", "4", true},
		{"① 선택지", "", false},
		{"[1~2] 다음 글을 읽고 물음에 답하시오.", "", false},
		{"정답은 ③", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			answer, ok := parseAnswerMarker(tt.line)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.answer, answer)
		})
	}
}

func TestTransition(t *testing.T) {
	tests := []struct {
		from state
		kind lineKind
		want state
	}{
		{stateScanning, kindText, stateScanning},
		{stateScanning, kindBlank, stateScanning},
		{stateScanning, kindChoice, stateInPromptLookback},
		{stateInPromptLookback, kindChoice, stateInChoices},
		{stateInChoices, kindText, stateInChoices},
		{stateInChoices, kindChoice, stateInChoices},
		{stateInChoices, kindMarker, stateClosedByAnswer},
		{stateScanning, kindMarker, stateClosedByAnswer},
		{stateClosedByAnswer, kindText, stateScanning},
		{stateClosedByAnswer, kindChoice, stateInPromptLookback},
	}
	for _, tt := range tests {
		t.Run(tt.from.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, transition(tt.from, tt.kind))
		})
	}
}

func TestLookback(t *testing.T) {
	filler := make([]string, 10)
	for i := range filler {
		filler[i] = "본문"
	}

	tests := []struct {
		name  string
		lines []string
		want  split
	}{
		{
			name:  "single line prompt",
			lines: []string{"본문 한 줄", "", "다음 중 옳은 것을 고르시오."},
			want:  split{passageStart: 0, promptStart: 2, found: true},
		},
		{
			name:  "wrapped prompt stops at blank line",
			lines: []string{"본문", "", "<보기>를 참고하여", "윗글을 감상한 내용으로", "적절하지 않은 것은?"},
			want:  split{passageStart: 0, promptStart: 2, found: true},
		},
		{
			name:  "wrapped prompt stops at byline",
			lines: []string{"- 김철수, 「편지」", "이 시의 화자에 대한", "설명으로 적절한 것은?"},
			want:  split{passageStart: 0, promptStart: 1, found: true},
		},
		{
			name:  "wrapped prompt stops at closing tag",
			lines: []string{"[/보기]", "위 자료를 바탕으로 고르시오."},
			want:  split{passageStart: 0, promptStart: 1, found: true},
		},
		{
			name:  "passage opener",
			lines: []string{"2024 중간고사", "※ 다음 글을 읽고 물음에 답하시오.", "본문 내용", "", "윗글의 내용으로 적절한 것은?"},
			want:  split{passageStart: 1, promptStart: 4, found: true},
		},
		{
			name:  "no prompt",
			lines: []string{"그냥 문장", "또 다른 문장"},
			want:  split{passageStart: 0, promptStart: 2, found: false},
		},
		{
			name:  "prompt outside the window",
			lines: append([]string{"다음 중 옳은 것을 고르시오."}, filler...),
			want:  split{passageStart: 0, promptStart: 11, found: false},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, lookback(tt.lines))
		})
	}
}

func examDocument() string {
	return lines(
		"※ 다음 글을 읽고 물음에 답하시오.",
		"어느 날 아침 그는 오래된 책상 서랍을 열어 보았다.",
		"그 안에는 빛바랜 편지 한 통이 들어 있었다.",
		"- 김철수, 「편지」",
		"",
		"윗글에 대한 이해로 적절한 것은?",
		"① 그는 아침에 서랍을 열었다.",
		"② 서랍 안에는 사진이",
		"   들어 있었다.",
		"③ 편지는 새것이었다.",
		"④ 그는 편지를 버렸다.",
		"⑤ 그는 서랍을 잠갔다.",
		"[미래엔 국어]계남고24년1학기기말 ①",
		"윗글의 내용과 일치하지 않는 것은?",
		"① 그는 편지를 읽었다.",
		"② 그는 웃었다.",
		"③ 그는 울었다.",
		"④ 그는 잠들었다.",
		"⑤ 그는 떠났다.",
		"[미래엔 국어]계남고24년1학기기말 ②, ④",
		"※ 다음 글을 읽고 물음에 답하시오.",
		"시장에서 수요가 늘어나면 가격이 오르고 공급이 늘어나면 가격이 내린다.",
		"",
		"윗글을 읽고 추론한 내용으로 적절하지 않은 것은?",
		"① 수요가 늘면 가격이 오른다.",
		"② 공급이 늘면 가격이 내린다.",
		"③ 가격은 늘 같다.",
		"④ 시장은 가격을 정한다.",
		"⑤ 공급과 수요는 무관하다.",
		"[이든] 5",
		"맺음말",
	)
}

func TestSegmentExamDocument(t *testing.T) {
	a := New(0).Segment(examDocument(), Source{MetaID: 7, FileID: 9, FileName: "[문학] 계남고 기말.hwp"})

	assert.Equal(t, int64(7), a.MetaID)
	assert.Equal(t, int64(9), a.FileID)
	require.Len(t, a.Passages, 2)
	assert.Empty(t, a.Standalone)
	assert.Equal(t, 3, a.QuestionCount())

	p1 := a.Passages[0]
	assert.True(t, strings.HasPrefix(p1.Content, "※ 다음 글을 읽고"))
	assert.NotContains(t, p1.Content, "윗글에")
	assert.Equal(t, exam.CategoryLiterature, p1.Category)
	assert.Equal(t, "김철수", p1.Author)
	assert.Equal(t, "편지", p1.Title)
	assert.Equal(t, "편지,김철수", p1.Keywords)
	require.Len(t, p1.Questions, 2)

	q1 := p1.Questions[0]
	assert.Equal(t, 1, q1.Number)
	assert.Equal(t, "윗글에 대한 이해로 적절한 것은?", q1.QuestionText)
	assert.Equal(t, exam.QuestionTypeMultipleChoice, q1.QuestionType)
	assert.Equal(t, "1", q1.Answer)
	assert.Equal(t, "감상이해", q1.Pattern)
	assert.Equal(t, exam.CategoryLiterature, q1.Category)
	assert.False(t, q1.LowConfidence)
	assert.Equal(t, "LIT_CONTENT", q1.Classification.Code)
	require.Len(t, q1.Choices, 5)
	for i, c := range q1.Choices {
		assert.Equal(t, i+1, c.Number)
		assert.Equal(t, i == 0, c.IsAnswer)
	}
	assert.Equal(t, "서랍 안에는 사진이 들어 있었다.", q1.Choices[1].Text)

	q2 := p1.Questions[1]
	assert.Equal(t, 2, q2.Number)
	assert.Equal(t, "2,4", q2.Answer)
	assert.Equal(t, "내용이해", q2.Pattern)
	var answers []int
	for _, c := range q2.Choices {
		if c.IsAnswer {
			answers = append(answers, c.Number)
		}
	}
	assert.Equal(t, []int{2, 4}, answers)

	p2 := a.Passages[1]
	assert.Equal(t, exam.CategoryReading, p2.Category)
	assert.Equal(t, "사회", p2.SubCategory)
	require.Len(t, p2.Questions, 1)
	q3 := p2.Questions[0]
	assert.Equal(t, 3, q3.Number)
	assert.Equal(t, "5", q3.Answer)
	assert.Equal(t, exam.CategoryReading, q3.Category)
	assert.Equal(t, "READ_INFER", q3.Classification.Code)
	assert.True(t, q3.Choices[4].IsAnswer)

	a.Questions(func(q *exam.Question) {
		assert.NotContains(t, q.QuestionText, "계남고")
		for _, c := range q.Choices {
			assert.NotContains(t, c.Text, "계남고")
			assert.NotContains(t, c.Text, "맺음말")
		}
	})
}

func TestSegmentGroupsPassagesByPrefix(t *testing.T) {
	passage := strings.TrimSpace(strings.Repeat("봄바람이 불어오는 언덕 위에서 ", 8))
	other := "가을 들판에 곡식이 익어 가고 농부들은 바쁘게 거두어들인다 해가 저문다"
	prompt := "윗글의 내용으로 적절한 것은?"

	var doc []string
	doc = append(doc, examBlock([]string{passage, "", prompt}, "[이든] ①")...)
	doc = append(doc, examBlock([]string{passage + " 그리고 다른 끝맺음", "", prompt}, "[이든] ②")...)
	doc = append(doc, examBlock([]string{other, "", prompt}, "[이든] ③")...)

	a := New(DefaultPassageKeyRunes).Segment(lines(doc...), Source{FileName: "[문학] 기말.hwp"})
	require.Len(t, a.Passages, 2)
	assert.Len(t, a.Passages[0].Questions, 2)
	assert.Equal(t, passage, a.Passages[0].Content)
	assert.Len(t, a.Passages[1].Questions, 1)
	assert.Equal(t, 3, a.Passages[1].Questions[0].Number)
}

func TestSegmentShortKeyMergesSharedPreamble(t *testing.T) {
	preamble := "다음은 학생이 작성한 글의 일부이다. "
	first := preamble + "첫째 글은 바다를 여행한 이야기를 담고 있다."
	second := preamble + "둘째 글은 산을 오른 경험을 자세히 적었다."
	prompt := "윗글의 내용으로 적절한 것은?"

	var doc []string
	doc = append(doc, examBlock([]string{first, "", prompt}, "[이든] ①")...)
	doc = append(doc, examBlock([]string{second, "", prompt}, "[이든] ②")...)

	assert.Len(t, New(10).Segment(lines(doc...), Source{}).Passages, 1)
	assert.Len(t, New(DefaultPassageKeyRunes).Segment(lines(doc...), Source{}).Passages, 2)
}

func TestSegmentDropsBlocksWithoutChoices(t *testing.T) {
	doc := lines(
		"표지",
		"[이든] ①",
		"다음 중 옳은 것을 고르시오.",
		"① 하나",
		"② 둘",
		"③ 셋",
		"④ 넷",
		"⑤ 다섯",
	)
	a := New(0).Segment(doc, Source{})
	require.Len(t, a.Standalone, 1)
	q := a.Standalone[0]
	assert.Equal(t, 2, q.Number)
	assert.Equal(t, "다음 중 옳은 것을 고르시오.", q.QuestionText)
	assert.Empty(t, q.Answer)
	require.Len(t, q.Choices, 5)
	for i, c := range q.Choices {
		assert.Equal(t, i+1, c.Number)
		assert.False(t, c.IsAnswer)
	}
}

func TestSegmentWithoutPromptIsLowConfidence(t *testing.T) {
	doc := lines("가나다라 아무 말", "① 하나", "② 둘", "[이든] ①")
	a := New(0).Segment(doc, Source{})
	require.Len(t, a.Standalone, 1)
	q := a.Standalone[0]
	assert.Empty(t, q.QuestionText)
	assert.True(t, q.LowConfidence)
	assert.Equal(t, "1", q.Answer)
	assert.Equal(t, exam.CategoryOther, q.Category)
	assert.NotEmpty(t, q.Classification.Code)
}

func TestSegmentReferenceText(t *testing.T) {
	doc := lines(
		"〈보기〉",
		"자연은 인간에게 위로를 주는 존재이다.",
		"",
		"＜보기＞를 참고하여 윗글을 감상한 것으로 적절한 것은？",
		"① 하나",
		"② 둘",
		"[이든] ②",
		"다음 중 옳은 것을 고르시오. <보기> 짧다",
		"① 하나",
		"[이든] ①",
	)
	a := New(0).Segment(doc, Source{})
	require.Len(t, a.Standalone, 2)
	first := a.Standalone[0]
	assert.True(t, strings.HasPrefix(first.ReferenceText, "자연은 인간에게 위로를 주는 존재이다."))
	assert.Equal(t, "<보기>를 참고하여 윗글을 감상한 것으로 적절한 것은?", first.QuestionText)
	assert.Equal(t, "적용", first.Pattern)
	assert.Empty(t, a.Standalone[1].ReferenceText)
}

func TestSegmentGrammarOverridesCategory(t *testing.T) {
	doc := lines(
		"다음 중 비음화가 일어나는 단어를 고르시오.",
		"① 국물",
		"② 하늘",
		"[이든] ①",
	)
	a := New(0).Segment(doc, Source{FileName: "[문학] 기말.hwp"})
	require.Len(t, a.Standalone, 1)
	q := a.Standalone[0]
	assert.Equal(t, exam.CategoryGrammar, q.Category)
	assert.Equal(t, "음운", q.SubCategory)
	assert.Equal(t, "GRAM_PHONOL", q.Classification.Code)
}

func TestSegmentCategoryHint(t *testing.T) {
	doc := lines("다음 중 옳은 것을 고르시오.", "① 하나", "[이든] ①")
	a := New(0).Segment(doc, Source{FileName: "[문학] 기말.hwp", Category: exam.CategoryReading})
	require.Len(t, a.Standalone, 1)
	assert.Equal(t, exam.CategoryReading, a.Standalone[0].Category)
}

func TestSegmentIsDeterministic(t *testing.T) {
	src := Source{MetaID: 1, FileID: 2, FileName: "[독서] 모의고사.hwp"}
	first, err := json.Marshal(New(0).Segment(examDocument(), src))
	require.NoError(t, err)
	second, err := json.Marshal(New(0).Segment(examDocument(), src))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSegmentEmptyText(t *testing.T) {
	a := New(0).Segment("", Source{})
	assert.NotNil(t, a.Passages)
	assert.NotNil(t, a.Standalone)
	assert.Zero(t, a.QuestionCount())
}

func TestSegmentKeepsFullwidthText(t *testing.T) {
	doc := lines(
		"（가）와 （나）에 대한 설명으로 적절한 것은？",
		"① （가）는 비유를 쓴다.",
		"② （나）는 대구를 쓴다.",
		"③ 셋",
		"④ 넷",
		"⑤ 다섯",
		"［이든］ ②",
	)
	a := New(0).Segment(doc, Source{})
	require.Len(t, a.Standalone, 1)
	q := a.Standalone[0]
	assert.Equal(t, "（가）와 （나）에 대한 설명으로 적절한 것은？", q.QuestionText)
	assert.False(t, q.LowConfidence)
	assert.Equal(t, "2", q.Answer)
	require.Len(t, q.Choices, 5)
	assert.Equal(t, "（가）는 비유를 쓴다.", q.Choices[0].Text)
	assert.True(t, q.Choices[1].IsAnswer)
}
