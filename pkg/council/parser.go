package council

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// placeholderSentinel marks a critique the judge could not ground in the
// answer text. Matched as a case-insensitive substring.
const placeholderSentinel = "insufficient signal in text"

// placeholderMaxShare is the tolerated fraction of placeholder critiques per
// judge before the whole judgement is marked partial.
const placeholderMaxShare = 0.25

// minEvidenceTokenLen is the minimum length of an identifier-like evidence
// token. Heuristic choice; revisit against the prompt-pack eval.
const minEvidenceTokenLen = 4

// Section-detection patterns, compiled once.
var (
	critiqueStartPattern = regexp.MustCompile(`(?i)\bresponse\s+([A-Za-z])\s*:`)
	rankingStartPattern  = regexp.MustCompile(`(?i)\bfinal[_ ]?ranking\s*:`)
	rankingLinePattern   = regexp.MustCompile(`(?i)^final[_ ]?ranking\s*:`)
	responseRefPattern   = regexp.MustCompile(`(?i)\bresponse\s+([A-Za-z])\b`)
	strengthPattern      = regexp.MustCompile(`(?i)strength\s*:\s*`)
	flawPattern          = regexp.MustCompile(`(?i)[;.]?\s*flaw\s*:\s*`)
	backtickSpanPattern  = regexp.MustCompile("`([^`]+)`")
	quotedSpanPattern    = regexp.MustCompile(`"([^"]+)"`)
	identTokenPattern    = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]{3,}`)
	whitespaceRun        = regexp.MustCompile(`\s+`)
)

// RankingParser parses one judge's raw output against an expected label set.
// It is pure: no I/O, no mutation of its inputs, safe for concurrent use.
type RankingParser struct {
	labels        []string
	answersByText map[string]string // label -> normalized Stage-1 answer text
}

// NewRankingParser creates a parser for the run's label set.
// answersByLabel maps each label to the Stage-1 answer text it refers to;
// it is used only for the evidence rule.
func NewRankingParser(labels []string, answersByLabel map[string]string) *RankingParser {
	normalized := make(map[string]string, len(answersByLabel))
	for label, text := range answersByLabel {
		normalized[label] = normalizeWhitespace(text)
	}
	sorted := make([]string, len(labels))
	copy(sorted, labels)
	sort.Strings(sorted)
	return &RankingParser{labels: sorted, answersByText: normalized}
}

// Parse turns raw judge text into a Judgement. Model, latency, and the
// adjudicator flag are filled in by the caller.
func (p *RankingParser) Parse(raw string) *Judgement {
	j := &Judgement{
		RawText:       raw,
		ParsedRanking: []string{},
		Critiques:     make(map[string]Critique),
	}

	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		j.Partial = true
		j.PartialReason = PartialReasonEmptyText
		return j
	}

	lines := nonEmptyLines(trimmed)
	if len(lines) != len(p.labels)+1 {
		fixed := fixFormat(trimmed)
		j.FormatFixUsed = true
		if len(fixed) == 0 {
			j.Partial = true
			j.PartialReason = PartialReasonLineCount
			return j
		}
		lines = fixed
	}

	p.parseCritiques(j, lines)
	p.parseRanking(j, lines)

	if !j.Partial && p.placeholderShare(j) > placeholderMaxShare {
		j.Partial = true
		j.PartialReason = PartialReasonPlaceholder
	}

	j.RankingText = p.Serialize(j)
	return j
}

// parseCritiques matches line i against label i (alphabetical order) and
// extracts the Strength/Flaw pair. A missing or mismatched line records an
// empty critique for that label.
func (p *RankingParser) parseCritiques(j *Judgement, lines []string) {
	for i, label := range p.labels {
		critique := Critique{}
		if i < len(lines) {
			if m := critiqueStartPattern.FindStringSubmatchIndex(lines[i]); m != nil &&
				strings.EqualFold(lines[i][m[2]:m[3]], label) {
				body := lines[i][m[1]:]
				critique = parseCritiqueBody(body)
				if strings.Contains(strings.ToLower(lines[i]), placeholderSentinel) {
					critique.Placeholder = true
				}
			}
		}
		if !critique.Placeholder {
			p.applyEvidenceRule(&critique, label)
		}
		j.Critiques[label] = critique
	}
}

// parseCritiqueBody splits "Strength: <s>; Flaw: <f>" out of a critique line
// body. Either part may be absent and is then recorded as empty.
func parseCritiqueBody(body string) Critique {
	var c Critique
	strengthLoc := strengthPattern.FindStringIndex(body)
	flawLoc := flawPattern.FindStringIndex(body)

	if strengthLoc != nil {
		end := len(body)
		if flawLoc != nil && flawLoc[0] > strengthLoc[1] {
			end = flawLoc[0]
		}
		c.Strength = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(body[strengthLoc[1]:end]), ";"))
	}
	if flawLoc != nil {
		c.Flaw = strings.TrimSpace(body[flawLoc[1]:])
	}
	return c
}

// applyEvidenceRule extracts candidate evidence tokens from the critique and
// keeps the ones found verbatim in the corresponding Stage-1 answer.
func (p *RankingParser) applyEvidenceRule(c *Critique, label string) {
	answer, ok := p.answersByText[label]
	if !ok || answer == "" {
		return
	}
	for _, token := range extractEvidenceTokens(c.Strength + " " + c.Flaw) {
		if strings.Contains(answer, token) {
			c.EvidenceTokens = append(c.EvidenceTokens, token)
		}
	}
	c.EvidenceOK = len(c.EvidenceTokens) > 0
}

// extractEvidenceTokens runs the deterministic tokenizer: backtick spans,
// double-quoted spans, then identifier-like tokens of length >= 4.
// Order is deterministic and duplicates are dropped.
func extractEvidenceTokens(text string) []string {
	var tokens []string
	seen := make(map[string]bool)
	add := func(tok string) {
		tok = normalizeWhitespace(tok)
		if tok != "" && !seen[tok] {
			seen[tok] = true
			tokens = append(tokens, tok)
		}
	}
	for _, m := range backtickSpanPattern.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}
	for _, m := range quotedSpanPattern.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}
	for _, m := range identTokenPattern.FindAllString(text, -1) {
		if len(m) >= minEvidenceTokenLen {
			add(m)
		}
	}
	return tokens
}

// parseRanking finds the last FINAL_RANKING line, extracts the label chain,
// and coerces it into a permutation of the expected labels when possible.
func (p *RankingParser) parseRanking(j *Judgement, lines []string) {
	var rankingLine string
	for i := len(lines) - 1; i >= 0; i-- {
		if rankingLinePattern.MatchString(lines[i]) {
			rankingLine = lines[i]
			break
		}
	}
	if rankingLine == "" {
		j.Partial = true
		j.PartialReason = PartialReasonRankingInvalid
		return
	}

	chain := rankingLinePattern.ReplaceAllString(rankingLine, "")

	// Ties are disallowed: any "=" in the chain invalidates the ranking
	// outright, with no coercion attempt.
	if strings.Contains(chain, "=") {
		j.Partial = true
		j.PartialReason = PartialReasonRankingInvalid
		return
	}

	known := make(map[string]bool, len(p.labels))
	for _, label := range p.labels {
		known[label] = true
	}

	// Ordered extraction, de-duplicated, unknowns dropped.
	var ordered []string
	seen := make(map[string]bool)
	dirty := false
	for _, m := range responseRefPattern.FindAllStringSubmatch(chain, -1) {
		label := strings.ToUpper(m[1])
		if !known[label] || seen[label] {
			dirty = true
			continue
		}
		seen[label] = true
		ordered = append(ordered, label)
	}

	if len(ordered) == 0 {
		// Nothing rankable was stated; fabricating a full ranking from thin
		// air would not be a coercion but an invention.
		j.Partial = true
		j.PartialReason = PartialReasonRankingInvalid
		return
	}

	if len(ordered) < len(p.labels) {
		dirty = true
		for _, label := range p.labels { // labels are sorted alphabetically
			if !seen[label] {
				ordered = append(ordered, label)
			}
		}
	}

	j.ParsedRanking = ordered
	j.Coerced = dirty
}

// placeholderShare is the fraction of labels whose critique is a placeholder.
func (p *RankingParser) placeholderShare(j *Judgement) float64 {
	if len(p.labels) == 0 {
		return 0
	}
	count := 0
	for _, c := range j.Critiques {
		if c.Placeholder {
			count++
		}
	}
	return float64(count) / float64(len(p.labels))
}

// Serialize renders the canonical critique block for a judgement: one
// critique line per label in alphabetical order, then the FINAL_RANKING
// line. Parsing the serialized form yields the same judgement back.
func (p *RankingParser) Serialize(j *Judgement) string {
	var b strings.Builder
	for _, label := range p.labels {
		c := j.Critiques[label]
		fmt.Fprintf(&b, "Response %s: Strength: %s; Flaw: %s\n", label, c.Strength, c.Flaw)
	}
	b.WriteString("FINAL_RANKING:")
	for i, label := range j.ParsedRanking {
		if i > 0 {
			b.WriteString(" >")
		}
		b.WriteString(" Response " + label)
	}
	return b.String()
}

// fixFormat reassembles a malformed block: wrapped lines are concatenated
// onto their section, multiple sections crammed onto one line are split
// apart, and prose before the first section is discarded.
func fixFormat(text string) []string {
	starts := sectionStarts(text)
	if len(starts) == 0 {
		return nil
	}
	var lines []string
	for i, start := range starts {
		end := len(text)
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		lines = append(lines, normalizeWhitespace(text[start:end]))
	}
	return lines
}

// sectionStarts returns the byte offsets where critique or ranking sections
// begin, in order.
func sectionStarts(text string) []int {
	var starts []int
	for _, loc := range critiqueStartPattern.FindAllStringIndex(text, -1) {
		starts = append(starts, loc[0])
	}
	for _, loc := range rankingStartPattern.FindAllStringIndex(text, -1) {
		starts = append(starts, loc[0])
	}
	sort.Ints(starts)
	return starts
}

func nonEmptyLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	return lines
}

func normalizeWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}
