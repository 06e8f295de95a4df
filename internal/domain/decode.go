package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
)

// maxDepth bounds array/object nesting so hostile input cannot exhaust the stack.
const maxDepth = 512

// ErrTooDeep is returned when a document nests deeper than maxDepth.
var ErrTooDeep = errors.New("json nesting too deep")

// SyntaxError describes malformed input and the byte offset where it was found.
type SyntaxError struct {
	Offset int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("invalid json at offset %d: %s", e.Offset, e.Msg)
}

// Decode parses a JSON document into a Value.
//
// In addition to RFC 8259 JSON it accepts the bare literals NaN, Infinity
// and -Infinity, which Python's json module writes for non-finite floats.
// They decode to non-finite numbers; run Sanitize to replace them with null.
func Decode(data []byte) (Value, error) {
	d := &decoder{data: data}
	d.skipSpace()
	v, err := d.value(0)
	if err != nil {
		return Value{}, err
	}
	d.skipSpace()
	if d.pos < len(d.data) {
		return Value{}, d.errorf("unexpected trailing data")
	}
	return v, nil
}

type decoder struct {
	data []byte
	pos  int
}

func (d *decoder) errorf(format string, args ...any) error {
	return &SyntaxError{Offset: d.pos, Msg: fmt.Sprintf(format, args...)}
}

func (d *decoder) skipSpace() {
	for d.pos < len(d.data) {
		switch d.data[d.pos] {
		case ' ', '\t', '\n', '\r':
			d.pos++
		default:
			return
		}
	}
}

func (d *decoder) value(depth int) (Value, error) {
	if d.pos >= len(d.data) {
		return Value{}, d.errorf("unexpected end of input")
	}
	switch c := d.data[d.pos]; {
	case c == '{':
		return d.object(depth + 1)
	case c == '[':
		return d.array(depth + 1)
	case c == '"':
		s, err := d.string()
		if err != nil {
			return Value{}, err
		}
		return String(s), nil
	case c == 't':
		return Bool(true), d.literal("true")
	case c == 'f':
		return Bool(false), d.literal("false")
	case c == 'n':
		return Null(), d.literal("null")
	case c == 'N':
		return Number(math.NaN()), d.literal("NaN")
	case c == 'I':
		return Number(math.Inf(1)), d.literal("Infinity")
	case c == '-' && d.hasPrefix("-Infinity"):
		return Number(math.Inf(-1)), d.literal("-Infinity")
	case c == '-' || (c >= '0' && c <= '9'):
		return d.number()
	default:
		return Value{}, d.errorf("unexpected character %q", c)
	}
}

func (d *decoder) hasPrefix(lit string) bool {
	return len(d.data)-d.pos >= len(lit) && string(d.data[d.pos:d.pos+len(lit)]) == lit
}

func (d *decoder) literal(lit string) error {
	if !d.hasPrefix(lit) {
		return d.errorf("invalid literal, expected %s", lit)
	}
	d.pos += len(lit)
	return nil
}

func (d *decoder) object(depth int) (Value, error) {
	if depth > maxDepth {
		return Value{}, ErrTooDeep
	}
	d.pos++ // '{'
	members := []Member{}
	index := map[string]int{}

	d.skipSpace()
	if d.pos < len(d.data) && d.data[d.pos] == '}' {
		d.pos++
		return Object(members...), nil
	}
	for {
		d.skipSpace()
		if d.pos >= len(d.data) || d.data[d.pos] != '"' {
			return Value{}, d.errorf("expected object key")
		}
		key, err := d.string()
		if err != nil {
			return Value{}, err
		}
		d.skipSpace()
		if d.pos >= len(d.data) || d.data[d.pos] != ':' {
			return Value{}, d.errorf("expected ':' after object key")
		}
		d.pos++
		d.skipSpace()
		v, err := d.value(depth)
		if err != nil {
			return Value{}, err
		}
		// Last value wins for duplicate keys; the key keeps its first position.
		if i, ok := index[key]; ok {
			members[i].Value = v
		} else {
			index[key] = len(members)
			members = append(members, Member{Key: key, Value: v})
		}

		d.skipSpace()
		if d.pos >= len(d.data) {
			return Value{}, d.errorf("unterminated object")
		}
		switch d.data[d.pos] {
		case ',':
			d.pos++
		case '}':
			d.pos++
			return Object(members...), nil
		default:
			return Value{}, d.errorf("expected ',' or '}' in object")
		}
	}
}

func (d *decoder) array(depth int) (Value, error) {
	if depth > maxDepth {
		return Value{}, ErrTooDeep
	}
	d.pos++ // '['
	items := []Value{}

	d.skipSpace()
	if d.pos < len(d.data) && d.data[d.pos] == ']' {
		d.pos++
		return Array(items...), nil
	}
	for {
		d.skipSpace()
		v, err := d.value(depth)
		if err != nil {
			return Value{}, err
		}
		items = append(items, v)

		d.skipSpace()
		if d.pos >= len(d.data) {
			return Value{}, d.errorf("unterminated array")
		}
		switch d.data[d.pos] {
		case ',':
			d.pos++
		case ']':
			d.pos++
			return Array(items...), nil
		default:
			return Value{}, d.errorf("expected ',' or ']' in array")
		}
	}
}

// string scans to the closing quote and lets encoding/json handle escapes.
func (d *decoder) string() (string, error) {
	start := d.pos
	d.pos++ // opening quote
	for d.pos < len(d.data) {
		switch c := d.data[d.pos]; {
		case c == '\\':
			d.pos += 2
		case c == '"':
			d.pos++
			var s string
			if err := json.Unmarshal(d.data[start:d.pos], &s); err != nil {
				return "", &SyntaxError{Offset: start, Msg: err.Error()}
			}
			return s, nil
		case c < 0x20:
			return "", d.errorf("control character in string")
		default:
			d.pos++
		}
	}
	return "", &SyntaxError{Offset: start, Msg: "unterminated string"}
}

func (d *decoder) number() (Value, error) {
	start := d.pos
	if d.data[d.pos] == '-' {
		d.pos++
	}
	switch {
	case d.pos < len(d.data) && d.data[d.pos] == '0':
		d.pos++
	case d.pos < len(d.data) && isDigit(d.data[d.pos]):
		d.skipDigits()
	default:
		return Value{}, d.errorf("invalid number")
	}
	if d.pos < len(d.data) && d.data[d.pos] == '.' {
		d.pos++
		if d.pos >= len(d.data) || !isDigit(d.data[d.pos]) {
			return Value{}, d.errorf("invalid number fraction")
		}
		d.skipDigits()
	}
	if d.pos < len(d.data) && (d.data[d.pos] == 'e' || d.data[d.pos] == 'E') {
		d.pos++
		if d.pos < len(d.data) && (d.data[d.pos] == '+' || d.data[d.pos] == '-') {
			d.pos++
		}
		if d.pos >= len(d.data) || !isDigit(d.data[d.pos]) {
			return Value{}, d.errorf("invalid number exponent")
		}
		d.skipDigits()
	}

	f, err := strconv.ParseFloat(string(d.data[start:d.pos]), 64)
	if err != nil {
		// Out-of-range literals parse to ±Inf with ErrRange; keep them and let Sanitize decide.
		var numErr *strconv.NumError
		if !errors.As(err, &numErr) || !errors.Is(numErr.Err, strconv.ErrRange) {
			return Value{}, &SyntaxError{Offset: start, Msg: err.Error()}
		}
	}
	return Number(f), nil
}

func (d *decoder) skipDigits() {
	for d.pos < len(d.data) && isDigit(d.data[d.pos]) {
		d.pos++
	}
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
