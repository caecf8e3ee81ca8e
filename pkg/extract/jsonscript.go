package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"
)

// scriptJSON is a JSON payload recovered from a script node
type scriptJSON struct {
	Index int // Position among all script nodes of the page
	Total int
	Data  gjson.Result
}

// candidateFunc proposes raw JSON texts found inside one script node's text
type candidateFunc func(text string) []string

// findScriptJSON walks script nodes in document order and returns the first
// candidate that is strictly valid JSON and carries every required path.
func findScriptJSON(doc *goquery.Document, propose candidateFunc, required ...string) (scriptJSON, bool) {
	scripts := doc.Find("script")
	total := scripts.Length()
	var found scriptJSON
	ok := false

	scripts.EachWithBreak(func(i int, s *goquery.Selection) bool {
		for _, raw := range propose(s.Text()) {
			if !gjson.Valid(raw) {
				continue
			}
			data := gjson.Parse(raw)
			if !hasAll(data, required) {
				continue
			}
			found = scriptJSON{Index: i, Total: total, Data: data}
			ok = true
			return false
		}
		return true
	})
	return found, ok
}

func hasAll(data gjson.Result, paths []string) bool {
	for _, p := range paths {
		if !data.Get(p).Exists() {
			return false
		}
	}
	return true
}

// assignedTo proposes the object assigned in scripts of the form `<prefix> = {...};`
func assignedTo(prefix string) candidateFunc {
	return func(text string) []string {
		t := strings.TrimSpace(text)
		if !strings.HasPrefix(t, prefix) {
			return nil
		}
		rest := t[len(prefix):]
		eq := strings.IndexByte(rest, '=')
		if eq < 0 {
			return nil
		}
		if obj, ok := balancedObject(rest, eq+1); ok {
			return []string{obj}
		}
		return nil
	}
}

// calledWith proposes the first object argument of scripts of the form `<prefix>(..., {...});`
func calledWith(prefix string) candidateFunc {
	return func(text string) []string {
		t := strings.TrimSpace(text)
		if !strings.HasPrefix(t, prefix) {
			return nil
		}
		if obj, ok := balancedObject(t, len(prefix)); ok {
			return []string{obj}
		}
		return nil
	}
}

// keyedObject proposes every object literal that follows `key :` (or `"key":`)
// in a script, tolerating any amount of whitespace around the colon.
func keyedObject(key string) candidateFunc {
	return func(text string) []string {
		var out []string
		for from := 0; ; {
			i := strings.Index(text[from:], key)
			if i < 0 {
				return out
			}
			pos := from + i + len(key)
			from = pos
			j := pos
			if j < len(text) && text[j] == '"' {
				j++
			}
			j = skipSpace(text, j)
			if j >= len(text) || text[j] != ':' {
				continue
			}
			j = skipSpace(text, j+1)
			if j >= len(text) || text[j] != '{' {
				continue
			}
			if obj, ok := balancedObject(text, j); ok {
				out = append(out, obj)
			}
		}
	}
}

// wholeText proposes the full script text, for `application/json` script nodes
func wholeText(text string) []string {
	return []string{strings.TrimSpace(text)}
}

// anyOf merges several proposal strategies, keeping their order
func anyOf(fns ...candidateFunc) candidateFunc {
	return func(text string) []string {
		var out []string
		for _, fn := range fns {
			out = append(out, fn(text)...)
		}
		return out
	}
}

func skipSpace(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r') {
		i++
	}
	return i
}

// balancedObject returns the `{...}` starting at the first '{' at or after
// start, matching braces outside of string literals.
func balancedObject(s string, start int) (string, bool) {
	open := strings.IndexByte(s[start:], '{')
	if open < 0 {
		return "", false
	}
	open += start

	depth := 0
	inString := false
	escaped := false
	for i := open; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[open : i+1], true
			}
		}
	}
	return "", false
}
