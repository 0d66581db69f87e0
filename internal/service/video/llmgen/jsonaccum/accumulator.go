// Package jsonaccum reconstructs best-effort partial JSON objects out of an
// in-progress text stream, for the dynamic-analysis workflow's run_llm step
// (spec.md §4.6.2: "emitting partial events for each incremental object").
// No example repo parses JSON mid-stream - gjson/sjson (wired elsewhere in
// this module for complete-document manifest parsing) operate on whole
// documents, not open-ended prefixes - so this one concern is built on
// encoding/json, repairing the open structure enough to parse a prefix.
package jsonaccum

import "encoding/json"

// Accumulator buffers streamed text and periodically produces the best
// complete JSON value it can make out of the buffer so far.
type Accumulator struct {
	buf []byte
}

func New() *Accumulator {
	return &Accumulator{}
}

// Feed appends a text delta to the buffer.
func (a *Accumulator) Feed(delta string) {
	a.buf = append(a.buf, delta...)
}

// TryParse attempts to parse the buffer as-is, repairing unterminated
// objects/arrays/strings by closing them in reverse order. Returns false if
// even the repaired buffer doesn't parse (e.g. still inside a bare token).
func (a *Accumulator) TryParse() (map[string]interface{}, bool) {
	repaired, ok := repair(a.buf)
	if !ok {
		return nil, false
	}

	var out map[string]interface{}
	if err := json.Unmarshal(repaired, &out); err != nil {
		return nil, false
	}
	return out, true
}

// Final parses the full accumulated buffer strictly, with no repair.
func (a *Accumulator) Final() (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := json.Unmarshal(a.buf, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// repair closes any open objects/arrays/strings in buf, tracking nesting and
// string/escape state so braces inside string literals aren't counted. When
// the buffer ends inside an unterminated string it cuts back to the last
// comma outside a string and repairs that prefix instead. A trailing bare
// value or a key still waiting for its value is not trimmed, so such a
// buffer is closed as-is and usually fails to parse.
func repair(buf []byte) ([]byte, bool) {
	var stack []byte
	inString := false
	escaped := false
	lastSafeCut := -1

	for i, b := range buf {
		if inString {
			switch {
			case escaped:
				escaped = false
			case b == '\\':
				escaped = true
			case b == '"':
				inString = false
			}
			continue
		}

		switch b {
		case '"':
			inString = true
		case '{', '[':
			stack = append(stack, matchingCloser(b))
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != b {
				return nil, false
			}
			stack = stack[:len(stack)-1]
		case ',':
			lastSafeCut = i
		}
	}

	if inString {
		// Drop the unterminated string literal (and anything it opened)
		// back to the last safe cut point, then re-derive nesting from the
		// truncated prefix - braces opened inside the dropped tail must not
		// count towards the closers we append.
		if lastSafeCut < 0 {
			return nil, false
		}
		return repair(buf[:lastSafeCut])
	}

	if len(stack) == 0 {
		// Already balanced; nothing to repair.
		return buf, true
	}

	out := make([]byte, len(buf))
	copy(out, buf)

	for i := len(stack) - 1; i >= 0; i-- {
		out = append(out, stack[i])
	}
	return out, true
}

func matchingCloser(open byte) byte {
	if open == '{' {
		return '}'
	}
	return ']'
}
