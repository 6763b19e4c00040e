package services

import (
	"regexp"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/okapihq/okapi/internal/core/domain"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// The textual protocol spoken by the model:
//
//	Thought: <reasoning>
//	Action: <tool name>
//	Parameters: {"key": value}
//
//	Final Answer: <response>
var (
	finalAnswerRe = regexp.MustCompile(`(?is)Final\s*Answer:\s*(.*)`)
	thoughtRe     = regexp.MustCompile(`(?i)Thought:\s*([^\n]+)`)
	actionRe      = regexp.MustCompile(`(?i)Action:\s*([A-Za-z][A-Za-z0-9_\-]*)`)
	parametersRe  = regexp.MustCompile(`(?i)Parameters:\s*`)
	nextRe        = regexp.MustCompile(`(?i)(?:Next|Thought):\s*([^\n]+)`)
	continueRe    = regexp.MustCompile(`(?i)\bCONTINUE\b`)
)

// ParsedThinking is the structured form of a thinking-phase reply.
type ParsedThinking struct {
	Thought      string
	Action       *domain.ToolCall
	FinalAnswer  string
	HasFinal     bool
	ParseWarning string
}

// ParsedObserving is the structured form of an observing-phase reply.
type ParsedObserving struct {
	Complete    bool
	FinalAnswer string
	NextThought string
}

// ResponseParser turns raw model text into structured loop steps.
// Absence of a recognizable action is not an error, and a malformed
// parameter block degrades to an empty set with a warning rather than
// failing the parse.
type ResponseParser struct{}

func NewResponseParser() *ResponseParser { return &ResponseParser{} }

// ParseThinking extracts a final answer, or a tool action, or falls
// back to treating the raw text as the thought itself.
func (p *ResponseParser) ParseThinking(text string) ParsedThinking {
	out := ParsedThinking{}

	if m := finalAnswerRe.FindStringSubmatch(text); len(m) > 1 {
		out.HasFinal = true
		out.FinalAnswer = strings.TrimSpace(m[1])
		if tm := thoughtRe.FindStringSubmatch(text); len(tm) > 1 {
			out.Thought = strings.TrimSpace(tm[1])
		}
		return out
	}

	if tm := thoughtRe.FindStringSubmatch(text); len(tm) > 1 {
		out.Thought = strings.TrimSpace(tm[1])
	}

	if am := actionRe.FindStringSubmatch(text); len(am) > 1 {
		params, warning := p.extractParameters(text)
		call := domain.NewToolCall(strings.TrimSpace(am[1]), params)
		out.Action = &call
		out.ParseWarning = warning
		return out
	}

	// No action, no final answer: the raw text is the thought.
	if out.Thought == "" {
		out.Thought = strings.TrimSpace(text)
	}
	return out
}

// ParseObserving decides whether the loop is done. A reply containing a
// final answer terminates; anything else becomes the next thought.
func (p *ResponseParser) ParseObserving(text string) ParsedObserving {
	out := ParsedObserving{}

	if m := finalAnswerRe.FindStringSubmatch(text); len(m) > 1 {
		out.Complete = true
		out.FinalAnswer = strings.TrimSpace(m[1])
		return out
	}

	if m := nextRe.FindStringSubmatch(text); len(m) > 1 {
		out.NextThought = strings.TrimSpace(m[1])
		return out
	}

	trimmed := strings.TrimSpace(continueRe.ReplaceAllString(text, ""))
	out.NextThought = strings.TrimSpace(trimmed)
	return out
}

// extractParameters pulls the JSON object after "Parameters:" using
// brace-depth counting so nested objects survive. A block that is
// present but unparseable yields an empty map and a warning.
func (p *ResponseParser) extractParameters(text string) (map[string]any, string) {
	loc := parametersRe.FindStringIndex(text)
	if loc == nil {
		return map[string]any{}, ""
	}

	rest := text[loc[1]:]
	start := strings.Index(rest, "{")
	if start < 0 {
		return map[string]any{}, "parameter block present but no JSON object found"
	}

	depth := 0
	inStr := false
	escaped := false
	for i := start; i < len(rest); i++ {
		ch := rest[i]
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' && inStr {
			escaped = true
			continue
		}
		if ch == '"' {
			inStr = !inStr
			continue
		}
		if inStr {
			continue
		}
		switch ch {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				raw := rest[start : i+1]
				var params map[string]any
				if err := json.Unmarshal([]byte(raw), &params); err != nil {
					return map[string]any{}, "unparseable parameter block: " + err.Error()
				}
				return params, ""
			}
		}
	}

	return map[string]any{}, "unterminated parameter block"
}
