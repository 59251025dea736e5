package segmenter

import (
	"strings"

	"github.com/edenschool/examparse/internal/exam"
)

type state int

const (
	stateScanning state = iota
	stateInPromptLookback
	stateInChoices
	stateClosedByAnswer
)

func (s state) String() string {
	switch s {
	case stateScanning:
		return "scanning"
	case stateInPromptLookback:
		return "in-prompt-lookback"
	case stateInChoices:
		return "in-choices"
	case stateClosedByAnswer:
		return "closed-by-answer"
	}
	return "unknown"
}

// transition is the line-level state table. stateInPromptLookback is
// transient: the machine enters it on the first choice of a block, resolves
// the prompt over the lines already seen and moves on to stateInChoices.
func transition(s state, k lineKind) state {
	if k == kindMarker {
		return stateClosedByAnswer
	}
	switch s {
	case stateScanning, stateClosedByAnswer:
		if k == kindChoice {
			return stateInPromptLookback
		}
		return stateScanning
	case stateInPromptLookback:
		return stateInChoices
	}
	return stateInChoices
}

// block is the text between two answer markers.
type block struct {
	index   int
	raw     []string
	pre     []string
	split   split
	choices []exam.Choice
	answer  string
}

func (b *block) questionText() string {
	return joinNonEmpty(b.pre[b.split.promptStart:], " ")
}

func (b *block) passageText() string {
	return joinNonEmpty(b.pre[b.split.passageStart:b.split.promptStart], "\n")
}

type machine struct {
	state  state
	cur    *block
	blocks []*block
}

func (m *machine) step(line string) {
	kind := classifyLine(line)
	t := strings.TrimSpace(line)
	next := transition(m.state, kind)

	switch next {
	case stateClosedByAnswer:
		m.cur.answer, _ = parseAnswerMarker(t)
		m.blocks = append(m.blocks, m.cur)
		m.cur = &block{index: m.cur.index + 1}
	case stateScanning:
		m.cur.raw = append(m.cur.raw, line)
		m.cur.pre = append(m.cur.pre, t)
	case stateInPromptLookback:
		m.cur.raw = append(m.cur.raw, line)
		m.cur.split = lookback(m.cur.pre)
		m.addChoice(t)
		next = transition(next, kind)
	case stateInChoices:
		m.cur.raw = append(m.cur.raw, line)
		switch kind {
		case kindChoice:
			m.addChoice(t)
		case kindText:
			last := &m.cur.choices[len(m.cur.choices)-1]
			last.Text = strings.TrimSpace(last.Text + " " + t)
		}
	}
	m.state = next
}

func (m *machine) addChoice(line string) {
	num, text, _ := parseChoice(line)
	m.cur.choices = append(m.cur.choices, exam.Choice{Number: num, Text: text})
}

// finish returns every closed block plus the trailing one when it holds
// choices. Trailing text without choices is front or back matter.
func (m *machine) finish() []*block {
	blocks := m.blocks
	if len(m.cur.choices) > 0 {
		blocks = append(blocks, m.cur)
	}
	return blocks
}
