// Package llmjson turns raw model output into JSON documents. Models wrap their
// payload in reasoning traces and Markdown fences and often emit near-JSON, so
// parsing is strict first and then falls back to a repair pass.
package llmjson

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/tailscale/hujson"
	"github.com/tidwall/gjson"
)

var (
	closedThink   = regexp.MustCompile(`(?s)<think>.*?</think>`)
	unclosedThink = regexp.MustCompile(`(?s)<think>.*$`)
	leadingFence  = regexp.MustCompile("^```(?:json|JSON)?\\s*")
	trailingFence = regexp.MustCompile("\\s*```$")
)

// StripMarkup removes reasoning blocks, including one left open by a truncated
// response, and a surrounding Markdown code fence.
func StripMarkup(text string) string {
	text = closedThink.ReplaceAllString(text, "")
	text = unclosedThink.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)
	text = leadingFence.ReplaceAllString(text, "")
	text = trailingFence.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// Document is a parsed JSON value in canonical form.
type Document struct {
	raw      []byte
	Repaired bool
}

// Raw returns the canonical JSON bytes.
func (d Document) Raw() []byte { return d.raw }

// Get looks up a gjson path.
func (d Document) Get(path string) gjson.Result {
	return gjson.GetBytes(d.raw, path)
}

// IsObject reports whether the document is a JSON object.
func (d Document) IsObject() bool {
	return gjson.ParseBytes(d.raw).IsObject()
}

// Decode unmarshals the document into v.
func (d Document) Decode(v any) error {
	return json.Unmarshal(d.raw, v)
}

// ParseLenient parses text as JSON. It never panics; ok is false when neither the
// strict parse nor the repair pass produced a valid document.
func ParseLenient(text string) (doc Document, ok bool) {
	defer func() {
		if recover() != nil {
			doc, ok = Document{}, false
		}
	}()

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Document{}, false
	}
	if gjson.Valid(trimmed) {
		return Document{raw: []byte(trimmed)}, true
	}

	repaired, ok := Repair(trimmed)
	if !ok {
		return Document{}, false
	}
	return Document{raw: repaired, Repaired: true}, true
}

// Repair attempts to recover a JSON object or array from near-JSON text. It
// isolates a bracketed span, standardizes comments and trailing commas, and
// closes strings and brackets cut off by truncation. When that fails it
// rewrites JavaScript- and Python-style literals and tries again.
func Repair(text string) ([]byte, bool) {
	spans := extractSpans(text)
	for _, rewrite := range []func(string) string{nil, requote} {
		for _, span := range spans {
			if rewrite != nil {
				span = rewrite(span)
			}
			for _, c := range []string{span, closeTruncated(span)} {
				if out, ok := standardize(c); ok {
					return out, true
				}
			}
		}
	}
	return nil, false
}

func standardize(s string) ([]byte, bool) {
	if gjson.Valid(s) {
		return []byte(s), true
	}
	out, err := hujson.Standardize([]byte(s))
	if err != nil {
		return nil, false
	}
	out = bytes.TrimSpace(out)
	if !gjson.ValidBytes(out) {
		return nil, false
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, out); err != nil {
		return nil, false
	}
	return compact.Bytes(), true
}

// extractSpans returns candidate spans in the order they are tried: the first
// balanced object or array, then spans running from the first '{' or '[' to
// the last matching closer (or to the end when the closer is missing). Among
// spans of one kind, the one that opens earlier comes first.
func extractSpans(text string) []string {
	objStart := strings.IndexByte(text, '{')
	arrStart := strings.IndexByte(text, '[')

	first, second := objStart, arrStart
	if arrStart >= 0 && (objStart < 0 || arrStart < objStart) {
		first, second = arrStart, objStart
	}
	candidates := []string{
		balancedFrom(text, first),
		balancedFrom(text, second),
		spanFrom(text, first),
		spanFrom(text, second),
	}

	out := make([]string, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// balancedFrom returns text[start:] up to the bracket that closes the one at
// start, or "" when it never closes. Brackets inside single- or double-quoted
// strings are skipped.
func balancedFrom(text string, start int) string {
	if start < 0 {
		return ""
	}
	depth := 0
	var quote byte
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if quote != 0 {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

func spanFrom(text string, start int) string {
	if start < 0 {
		return ""
	}
	closer := byte('}')
	if text[start] == '[' {
		closer = ']'
	}
	if end := strings.LastIndexByte(text, closer); end > start {
		return text[start : end+1]
	}
	return strings.TrimSpace(text[start:])
}

// requote rewrites near-JSON into JSON: single-quoted strings become double
// quoted, raw control characters inside strings are escaped, True/False/None
// and friends become JSON literals, and any other bare word (typically an
// unquoted key) is quoted. Numbers and comments are copied unchanged.
func requote(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 16)
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '"' || c == '\'':
			i = copyString(&b, s, i)
		case c == '/' && i+1 < len(s) && (s[i+1] == '/' || s[i+1] == '*'):
			i = copyComment(&b, s, i)
		case c == '-' || c == '.' || (c >= '0' && c <= '9'):
			j := i + 1
			for j < len(s) && strings.IndexByte("0123456789.eE+-", s[j]) >= 0 {
				j++
			}
			b.WriteString(s[i:j])
			i = j
		case isWordByte(c):
			j := i + 1
			for j < len(s) && (isWordByte(s[j]) || (s[j] >= '0' && s[j] <= '9')) {
				j++
			}
			b.WriteString(literal(s[i:j]))
			i = j
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String()
}

func isWordByte(c byte) bool {
	return c == '_' || c == '$' || c >= 0x80 || (c|0x20 >= 'a' && c|0x20 <= 'z')
}

func literal(word string) string {
	switch word {
	case "true", "True", "TRUE":
		return "true"
	case "false", "False", "FALSE":
		return "false"
	case "null", "None", "NULL", "nil", "undefined":
		return "null"
	}
	q, _ := json.Marshal(word)
	return string(q)
}

// copyString writes the string literal starting at s[i] as a JSON string and
// returns the index after its closing quote. An unterminated string is copied
// to the end without a closing quote so closeTruncated can finish it.
func copyString(b *strings.Builder, s string, i int) int {
	quote := s[i]
	b.WriteByte('"')
	for j := i + 1; j < len(s); j++ {
		c := s[j]
		switch {
		case c == '\\' && j+1 < len(s):
			j++
			if s[j] == '\'' {
				b.WriteByte('\'')
			} else {
				b.WriteByte('\\')
				b.WriteByte(s[j])
			}
		case c == quote:
			b.WriteByte('"')
			return j + 1
		case c == '"':
			b.WriteString(`\"`)
		case c == '\n':
			b.WriteString(`\n`)
		case c == '\r':
			b.WriteString(`\r`)
		case c == '\t':
			b.WriteString(`\t`)
		case c < 0x20:
			fmt.Fprintf(b, `\u%04x`, c)
		default:
			b.WriteByte(c)
		}
	}
	return len(s)
}

func copyComment(b *strings.Builder, s string, i int) int {
	end := len(s)
	if s[i+1] == '/' {
		if n := strings.IndexByte(s[i:], '\n'); n >= 0 {
			end = i + n
		}
	} else if n := strings.Index(s[i+2:], "*/"); n >= 0 {
		end = i + 2 + n + 2
	}
	b.WriteString(s[i:end])
	return end
}

// closeTruncated appends whatever is needed to terminate an open string and
// every open object or array, dropping a dangling comma or colon first.
func closeTruncated(s string) string {
	var stack []byte
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 && stack[len(stack)-1] == c {
				stack = stack[:len(stack)-1]
			}
		}
	}

	var b strings.Builder
	b.WriteString(s)
	if inString {
		if escaped {
			b.WriteByte('\\')
		}
		b.WriteByte('"')
	}
	out := strings.TrimRight(b.String(), " \t\r\n")
	out = strings.TrimRight(out, ",")
	if strings.HasSuffix(out, ":") {
		out += "null"
	}
	b.Reset()
	b.WriteString(out)
	for i := len(stack) - 1; i >= 0; i-- {
		b.WriteByte(stack[i])
	}
	return b.String()
}
