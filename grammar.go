package reportcard

import (
	"regexp"
	"strconv"
	"strings"
)

// The evaluator report has no strict schema, only a small vocabulary of
// markers. Each production of that vocabulary is a named rule whose values
// are read through named capture groups. Rules never fail: a rule that does
// not match simply yields no captures and the caller applies its default.
//
//	question-header  = "Question" ws+ int ws* "(" "Marks" ":" ws* number ")" ws* "::"
//	prompt           = "::" ... "Student Answer:"
//	answer           = "Student Answer:" ... "Evaluation:"
//	evaluation-start = NL ws* "Evaluation:"
//	evaluation-end   = NL ws* ("Overall Score:" | "Suggestion:")
//	part-header      = ws* ("*"|"-") ws* title "(" "Allocated:" ws* number ws* "mark" ["s"] ")" ws* ":" ws* EOL
//	score            = "Score:" number ("/" | "out of") number
//	suggestion       = "Suggestion:" ... end-of-block
//
// All rules are case-insensitive.
var (
	questionHeaderRule = newRule("question-header",
		`(?i)Question\s+(?P<number>\d+)\s*\(\s*Marks\s*:\s*(?P<marks>[^)\n]*?)\s*\)\s*::`)
	promptRule = newRule("prompt",
		`(?is)::\s*(?P<prompt>.*?)\n\s*Student\s*Answer\s*:`)
	answerRule = newRule("answer",
		`(?is)Student\s*Answer\s*:\s*(?P<answer>.*?)\n\s*Evaluation\s*:`)
	evaluationStartRule = newRule("evaluation-start",
		`(?i)\n\s*Evaluation\s*:`)
	evaluationEndRule = newRule("evaluation-end",
		`(?i)\n\s*(?:Overall\s*Score|Suggestion)\s*:`)
	partHeaderRule = newRule("part-header",
		`(?im)^[ \t]*[*-][ \t]*(?P<title>.+?)\s*\(\s*Allocated\s*:\s*(?P<allocated>[0-9]+(?:\.[0-9]+)?)\s*marks?\s*\)[ \t]*:[ \t]*$`)
	partFeedbackRule = newRule("part-feedback",
		`(?is)Evaluation\s*:\s*(?P<feedback>.*?)\n\s*Score\s*:`)
	sectionFeedbackRule = newRule("section-feedback",
		`(?is)Evaluation\s*:\s*(?P<feedback>.*?)(?:\n\s*Score\s*:|\z)`)
	scoreRule = newRule("score",
		`(?i)Score\s*:\s*(?P<obtained>[0-9]+(?:\.[0-9]+)?)\s*(?:/|out\s+of)\s*(?P<possible>[0-9]+(?:\.[0-9]+)?)`)
	suggestionRule = newRule("suggestion",
		`(?is)Suggestion\s*:\s*(?P<suggestion>.*)\z`)
)

// rule is one named production of the report grammar
type rule struct {
	name string
	re   *regexp.Regexp
}

// ruleMatch is one occurrence of a rule inside a text
type ruleMatch struct {
	start  int
	end    int
	groups map[string]string
}

func newRule(name, pattern string) rule {
	return rule{name: name, re: regexp.MustCompile(pattern)}
}

// index returns the offset of the first match in s, or -1.
func (r rule) index(s string) int {
	loc := r.re.FindStringIndex(s)
	if loc == nil {
		return -1
	}
	return loc[0]
}

// find returns the first match in s.
func (r rule) find(s string) (ruleMatch, bool) {
	loc := r.re.FindStringSubmatchIndex(s)
	if loc == nil {
		return ruleMatch{}, false
	}
	return r.toMatch(s, loc), true
}

// findAll returns every non-overlapping match in s in source order.
func (r rule) findAll(s string) []ruleMatch {
	locs := r.re.FindAllStringSubmatchIndex(s, -1)
	matches := make([]ruleMatch, 0, len(locs))
	for _, loc := range locs {
		matches = append(matches, r.toMatch(s, loc))
	}
	return matches
}

// capture returns the trimmed value of group from the first match in s.
func (r rule) capture(s, group string) (string, bool) {
	m, ok := r.find(s)
	if !ok {
		return "", false
	}
	v, ok := m.groups[group]
	return strings.TrimSpace(v), ok
}

func (r rule) toMatch(s string, loc []int) ruleMatch {
	m := ruleMatch{start: loc[0], end: loc[1], groups: make(map[string]string)}
	for i, name := range r.re.SubexpNames() {
		if name == "" || loc[2*i] < 0 {
			continue
		}
		m.groups[name] = s[loc[2*i]:loc[2*i+1]]
	}
	return m
}

// numberPattern is the only number form the report uses: digits with an
// optional fraction. Signs and exponents are rejected.
var numberPattern = regexp.MustCompile(`^[0-9]+(?:\.[0-9]+)?$`)

// number parses a captured numeric value. Values outside numberPattern and
// values too large for a float64 report ok=false.
func number(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if !numberPattern.MatchString(s) {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || !finite(v) {
		return 0, false
	}
	return v, true
}

// scorePair reads a "Score: x/y" line from s.
func scorePair(s string) (obtained, possible float64, ok bool) {
	m, found := scoreRule.find(s)
	if !found {
		return 0, 0, false
	}
	obtained, okObtained := number(m.groups["obtained"])
	possible, okPossible := number(m.groups["possible"])
	if !okObtained || !okPossible {
		return 0, 0, false
	}
	return obtained, possible, true
}

// evaluationSection returns the block's Evaluation section: from the first
// Evaluation marker up to the first Overall Score or Suggestion marker, or the
// end of the block. Overall Score and Suggestion belong to the question, never
// to a part, so they are always outside the section.
func evaluationSection(block string) string {
	start := evaluationStartRule.index(block)
	if start < 0 {
		return ""
	}
	section := strings.TrimPrefix(block[start:], "\n")
	if end := evaluationEndRule.index(section); end >= 0 {
		section = section[:end]
	}
	return section
}

// trimQuotes strips one leading and one trailing double quote.
func trimQuotes(s string) string {
	s = strings.TrimPrefix(s, `"`)
	return strings.TrimSuffix(s, `"`)
}
