package classifier

import "github.com/edenschool/examparse/internal/exam"

// Rule scores one question type: every keyword found in the prompt adds
// Weight, and Priority/100 breaks ties between equally matched types.
type Rule struct {
	Code     string
	NameKo   string
	Keywords []string
	Weight   float64
	Priority int
}

type ruleSet struct {
	category exam.Category
	rules    []Rule
}

var literatureRules = []Rule{
	{Code: "LIT_BOGI", NameKo: "보기감상", Priority: 90, Weight: 3,
		Keywords: []string{"보기를 참고", "보기를 바탕", "감상한 내용", "보기의 관점", "보기를 통해", "감상으로 적절", "감상한 것"}},
	{Code: "LIT_COMPARE", NameKo: "작품비교", Priority: 80, Weight: 3,
		Keywords: []string{"(가)와 (나)", "(가)와(나)", "공통점", "차이점", "비교하여", "비교한 것", "(가), (나)",
			"(가)에 대한", "(나)에 대한", "(가)를", "(나)를", "(가)의", "(나)의"}},
	{Code: "LIT_EXPRESSION", NameKo: "표현/서술특징", Priority: 70, Weight: 2,
		Keywords: []string{"표현상의 특징", "서술 방식", "표현 방법", "전개 방식", "서술상의 특징", "표현의 특징",
			"표현방식", "서술상 특징", "표현 특징", "표현에 대한", "표현으로"}},
	{Code: "LIT_SPEAKER", NameKo: "화자의태도", Priority: 60, Weight: 2,
		Keywords: []string{"화자", "정서", "말하는 이", "시적 화자", "화자의 태도", "화자의 정서", "어조"}},
	{Code: "LIT_MEANING", NameKo: "시어/구절의미", Priority: 55, Weight: 2,
		Keywords: []string{"시어", "구절", "밑줄 친", "함축적", "상징", "이미지", "의미하는", "함축", "밑줄",
			"의미를 이해", "의미로 적절"}},
	{Code: "LIT_CHARACTER", NameKo: "인물파악", Priority: 50, Weight: 2,
		Keywords: []string{"인물", "심리", "성격", "행동", "인물에 대한", "등장인물"}},
	{Code: "LIT_FUNCTION", NameKo: "소재/배경기능", Priority: 45, Weight: 2,
		Keywords: []string{"소재", "배경", "공간", "기능", "역할", "시간적 배경", "공간적 배경"}},
	{Code: "LIT_CRITICISM", NameKo: "외적준거감상", Priority: 40, Weight: 2,
		Keywords: []string{"관점", "비평", "해석", "외적 준거", "비평적"}},
	{Code: "LIT_CONTENT", NameKo: "내용이해", Priority: 10, Weight: 1,
		Keywords: []string{"내용에 대한 이해", "내용으로 적절", "대한 설명으로", "이해한 내용", "적절하지 않은",
			"적절한 것", "이해로 적절", "옳은 것", "옳지 않은", "설명으로 가장", "대한 설명",
			"이해한 것으로", "않은 것은", "적절하지 않은 것은", "설명으로 적절"}},
}

var readingRules = []Rule{
	{Code: "READ_VOCAB", NameKo: "어휘", Priority: 90, Weight: 3,
		Keywords: []string{"어휘", "문맥", "바꾸어 쓸", "사전적 의미", "문맥적 의미", "밑줄 친", "의미가 가장"}},
	{Code: "READ_APPLY", NameKo: "적용", Priority: 80, Weight: 3,
		Keywords: []string{"적용", "사례", "보기를", "보기에", "보기의"}},
	{Code: "READ_STRUCTURE", NameKo: "전개방식", Priority: 70, Weight: 2,
		Keywords: []string{"전개 방식", "설명 방식", "글의 구조", "서술 방식", "논지 전개"}},
	{Code: "READ_INFER", NameKo: "추론", Priority: 65, Weight: 2,
		Keywords: []string{"추론", "미루어", "짐작", "유추", "예측할 수"}},
	{Code: "READ_COMPARE", NameKo: "비교대조", Priority: 60, Weight: 2,
		Keywords: []string{"비교", "대조", "차이", "관점", "(가)와 (나)", "(가)와(나)"}},
	{Code: "READ_AUTHOR", NameKo: "필자관점", Priority: 55, Weight: 2,
		Keywords: []string{"필자", "글쓴이", "주장", "견해", "입장"}},
	{Code: "READ_LOGIC", NameKo: "논리추론", Priority: 50, Weight: 2,
		Keywords: []string{"논증", "전제", "결론", "귀납", "연역", "논리"}},
	{Code: "READ_MATCH", NameKo: "내용일치", Priority: 20, Weight: 1.5,
		Keywords: []string{"내용과 일치", "일치하는", "일치하지 않는"}},
	{Code: "READ_DETAIL", NameKo: "세부정보", Priority: 10, Weight: 1,
		Keywords: []string{"알 수 있는", "언급된", "세부"}},
}

var grammarRules = []Rule{
	{Code: "GRAM_PHONOL", NameKo: "음운", Priority: 90, Weight: 3,
		Keywords: []string{"음운", "발음", "비음화", "구개음화", "경음화", "유음화", "음절", "자음", "모음", "음운 변동",
			"변동이 일어", "소리가 나는", "음절의 끝소리"}},
	{Code: "GRAM_MORPH", NameKo: "형태소/단어", Priority: 80, Weight: 2,
		Keywords: []string{"형태소", "품사", "파생어", "합성어", "접사", "어근", "단어 형성", "접미사", "접두사",
			"단어의 구조", "용언", "체언", "관형사", "부사", "조사", "어미"}},
	{Code: "GRAM_SYNTAX", NameKo: "문장구조", Priority: 70, Weight: 2,
		Keywords: []string{"문장 성분", "주어", "서술어", "안은문장", "안긴문장", "이어진문장", "문장의 구조",
			"홑문장", "겹문장", "목적어", "이어진 문장", "자연스러운 문장", "문장의 유형",
			"안은 문장", "안긴 문장", "문장을 분석", "필수 성분"}},
	{Code: "GRAM_EXPR", NameKo: "문장표현", Priority: 60, Weight: 2,
		Keywords: []string{"높임", "피동", "사동", "시제", "인용", "높임법", "피동 표현", "사동 표현", "시간 표현",
			"선어말 어미", "종결 어미", "연결 어미", "관형사형 어미"}},
	{Code: "GRAM_HISTORY", NameKo: "국어사", Priority: 85, Weight: 3,
		Keywords: []string{"중세국어", "훈민정음", "옛말", "언해", "중세 국어", "근대 국어", "고대 국어",
			"현대어로", "현대어 풀이", "현대국어", "15세기", "원문", "풀이",
			"세종어제", "용비어천가", "두시언해", "월인천강지곡", "ᄒᆞ", "ᅀᆞ",
			"옛 글", "문헌을"}},
	{Code: "GRAM_ORTHO", NameKo: "맞춤법/표기", Priority: 55, Weight: 2,
		Keywords: []string{"맞춤법", "띄어쓰기", "사이시옷", "외래어", "표기법", "표준어", "로마자",
			"표기가 올바", "올바르지 않은", "올바른 것", "바르게 표기", "표기를"}},
	{Code: "GRAM_DISCOURSE", NameKo: "담화", Priority: 50, Weight: 2,
		Keywords: []string{"담화", "맥락", "발화", "대화", "의사소통"}},
}

var speechWritingRules = []Rule{
	{Code: "HW_SPEAK_METHOD", NameKo: "말하기방식", Priority: 80, Weight: 2,
		Keywords: []string{"말하기 방식", "말하기 전략", "의사소통 전략", "대화 전략"}},
	{Code: "HW_SPEAK_CONTENT", NameKo: "화법내용이해", Priority: 70, Weight: 2,
		Keywords: []string{"발표 내용", "토론 내용", "강연 내용", "토의 내용", "발표에서", "토론에서"}},
	{Code: "HW_LISTENER", NameKo: "청자반응", Priority: 65, Weight: 2,
		Keywords: []string{"청중", "청자", "반응", "메모", "듣기 활동"}},
	{Code: "HW_PLAN", NameKo: "글쓰기계획", Priority: 60, Weight: 2,
		Keywords: []string{"글쓰기 계획", "개요", "초고", "작문 계획", "계획서"}},
	{Code: "HW_MATERIAL", NameKo: "자료활용", Priority: 55, Weight: 2,
		Keywords: []string{"자료 활용", "자료를 활용", "통계", "도표", "그래프"}},
	{Code: "HW_REVISION", NameKo: "고쳐쓰기", Priority: 50, Weight: 2,
		Keywords: []string{"고쳐쓰기", "수정", "퇴고", "고쳐 쓰기", "고친"}},
	{Code: "HW_CONDITION", NameKo: "조건표현", Priority: 45, Weight: 2,
		Keywords: []string{"조건에 맞", "조건을 모두", "조건에 따라"}},
	{Code: "HW_MEDIA", NameKo: "매체", Priority: 85, Weight: 3,
		Keywords: []string{"매체", "인터넷", "블로그", "SNS", "뉴스", "미디어"}},
}

// ruleSets is also the scan order when no category is known.
var ruleSets = []ruleSet{
	{exam.CategoryLiterature, literatureRules},
	{exam.CategoryReading, readingRules},
	{exam.CategoryGrammar, grammarRules},
	{exam.CategorySpeechWriting, speechWritingRules},
}
