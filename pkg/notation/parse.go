package notation

import (
	"strconv"
	"strings"
)

// Parse extracts the first @type{...} span from text and parses it. The
// input may be raw notation or notation embedded in prose or a markdown code
// fence; everything outside the document span is ignored. The type tag of
// the top-level object must be a recognized document type.
func Parse(text string) (*Object, error) {
	start, ok := findDocumentStart(text)
	if !ok {
		return nil, &ParseError{Offset: 0, Msg: "no @type{...} document found"}
	}
	p := &parser{src: text, pos: start}
	obj, err := p.parseObject()
	if err != nil {
		return nil, err
	}
	if !knownType(obj.Type) {
		return nil, &UnknownTypeError{Tag: obj.Type}
	}
	return obj, nil
}

// ParseAny parses the first @tag{...} span without restricting the top-level
// type tag. For documents this package does not gate, like rendered schema
// contexts; model output goes through Parse.
func ParseAny(text string) (*Object, error) {
	start, ok := findDocumentStart(text)
	if !ok {
		return nil, &ParseError{Offset: 0, Msg: "no @type{...} document found"}
	}
	p := &parser{src: text, pos: start}
	return p.parseObject()
}

// findDocumentStart locates the first "@tag{" sequence. Scanning the raw
// text covers both fenced and bare model output.
func findDocumentStart(text string) (int, bool) {
	for i := 0; i < len(text); i++ {
		if text[i] != '@' {
			continue
		}
		j := i + 1
		for j < len(text) && isIdentByte(text[j]) {
			j++
		}
		if j > i+1 && j < len(text) && text[j] == '{' {
			return i, true
		}
	}
	return 0, false
}

func isIdentByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

type parser struct {
	src string
	pos int
}

func (p *parser) errf(msg string) *ParseError {
	return &ParseError{Offset: p.pos, Msg: msg}
}

func (p *parser) eof() bool { return p.pos >= len(p.src) }

func (p *parser) peek() byte { return p.src[p.pos] }

// skipSep consumes whitespace and commas, both of which separate fields and
// array elements.
func (p *parser) skipSep() {
	for !p.eof() {
		switch p.peek() {
		case ' ', '\t', '\r', '\n', ',':
			p.pos++
		default:
			return
		}
	}
}

func (p *parser) parseObject() (*Object, error) {
	if p.eof() || p.peek() != '@' {
		return nil, p.errf("expected '@'")
	}
	p.pos++
	start := p.pos
	for !p.eof() && isIdentByte(p.peek()) {
		p.pos++
	}
	tag := p.src[start:p.pos]
	if tag == "" {
		return nil, p.errf("expected type tag after '@'")
	}
	if p.eof() || p.peek() != '{' {
		return nil, p.errf("expected '{' after type tag")
	}
	p.pos++

	obj := &Object{Type: tag, Fields: map[string]any{}}
	for {
		p.skipSep()
		if p.eof() {
			return nil, p.errf("unterminated object, expected '}'")
		}
		if p.peek() == '}' {
			p.pos++
			return obj, nil
		}
		key, err := p.parseKey()
		if err != nil {
			return nil, err
		}
		p.skipSep()
		if p.eof() || p.peek() != ':' {
			return nil, p.errf("expected ':' after field name " + strconv.Quote(key))
		}
		p.pos++
		p.skipSep()
		val, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		obj.Fields[key] = val
	}
}

func (p *parser) parseKey() (string, error) {
	if p.peek() == '"' || p.peek() == '\'' {
		return p.parseQuoted()
	}
	start := p.pos
	for !p.eof() && (isIdentByte(p.peek()) || p.peek() == '-' || p.peek() == '.') {
		p.pos++
	}
	if p.pos == start {
		return "", p.errf("expected field name")
	}
	return p.src[start:p.pos], nil
}

func (p *parser) parseValue() (any, error) {
	if p.eof() {
		return nil, p.errf("expected value")
	}
	switch p.peek() {
	case '@':
		return p.parseObject()
	case '[':
		return p.parseArray()
	case '"', '\'':
		return p.parseQuoted()
	}
	return p.parseBare()
}

func (p *parser) parseArray() ([]any, error) {
	p.pos++ // consume '['
	arr := []any{}
	for {
		p.skipSep()
		if p.eof() {
			return nil, p.errf("unterminated array, expected ']'")
		}
		if p.peek() == ']' {
			p.pos++
			return arr, nil
		}
		val, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		arr = append(arr, val)
	}
}

func (p *parser) parseQuoted() (string, error) {
	quote := p.peek()
	p.pos++
	var b strings.Builder
	for !p.eof() {
		c := p.peek()
		switch c {
		case quote:
			p.pos++
			return b.String(), nil
		case '\\':
			p.pos++
			if p.eof() {
				return "", p.errf("unterminated escape sequence")
			}
			esc := p.peek()
			p.pos++
			switch esc {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case '\\', '"', '\'', '/':
				b.WriteByte(esc)
			case 'u':
				if p.pos+4 > len(p.src) {
					return "", p.errf("truncated unicode escape")
				}
				code, err := strconv.ParseUint(p.src[p.pos:p.pos+4], 16, 32)
				if err != nil {
					return "", p.errf("invalid unicode escape")
				}
				p.pos += 4
				b.WriteRune(rune(code))
			default:
				return "", p.errf("invalid escape character " + strconv.QuoteRune(rune(esc)))
			}
		default:
			b.WriteByte(c)
			p.pos++
		}
	}
	return "", p.errf("unterminated string")
}

// parseBare reads an unquoted token and coerces it: true/false/null, then
// integer, then float, otherwise a bare-word string.
func (p *parser) parseBare() (any, error) {
	start := p.pos
	for !p.eof() {
		switch p.peek() {
		case ' ', '\t', '\r', '\n', ',', '}', ']', ':':
			goto done
		}
		p.pos++
	}
done:
	tok := p.src[start:p.pos]
	if tok == "" {
		return nil, p.errf("expected value")
	}
	switch tok {
	case "true":
		return true, nil
	case "false":
		return false, nil
	case "null":
		return nil, nil
	}
	if i, err := strconv.ParseInt(tok, 10, 64); err == nil {
		return i, nil
	}
	if f, err := strconv.ParseFloat(tok, 64); err == nil {
		return f, nil
	}
	return tok, nil
}
