package planfile

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/orizon-lang/devplan/internal/ir"
)

// ParseType parses the type syntax used in plan files:
//
//	float32[4, 4]       tensor of the given dtype and shape; "tensor" means float32
//	storage             raw storage
//	(T1, T2)            tuple
//	fn(T1, T2) -> R     function
//	Name                algebraic data type
func ParseType(text string) (ir.Type, error) {
	p := &typeParser{src: text}

	ty, err := p.parseType()
	if err != nil {
		return nil, err
	}

	p.skipSpace()

	if p.pos != len(p.src) {
		return nil, p.errorf("unexpected %q", p.src[p.pos:])
	}

	return ty, nil
}

type typeParser struct {
	src string
	pos int
}

func (p *typeParser) errorf(format string, args ...interface{}) error {
	return fmt.Errorf("type %q at offset %d: %s", p.src, p.pos, fmt.Sprintf(format, args...))
}

func (p *typeParser) skipSpace() {
	for p.pos < len(p.src) && p.src[p.pos] == ' ' {
		p.pos++
	}
}

func (p *typeParser) peek() byte {
	p.skipSpace()

	if p.pos >= len(p.src) {
		return 0
	}

	return p.src[p.pos]
}

func (p *typeParser) expect(s string) error {
	p.skipSpace()

	if !strings.HasPrefix(p.src[p.pos:], s) {
		return p.errorf("expected %q", s)
	}

	p.pos += len(s)

	return nil
}

func (p *typeParser) ident() string {
	p.skipSpace()

	start := p.pos
	for p.pos < len(p.src) {
		r := rune(p.src[p.pos])
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '.' {
			break
		}

		p.pos++
	}

	return p.src[start:p.pos]
}

func (p *typeParser) parseType() (ir.Type, error) {
	if p.peek() == '(' {
		fields, err := parseList(p, '(', ')', p.parseType)
		if err != nil {
			return nil, err
		}

		return &ir.TupleType{Fields: fields}, nil
	}

	name := p.ident()

	switch {
	case name == "":
		return nil, p.errorf("expected a type")
	case name == "fn":
		params, err := parseList(p, '(', ')', p.parseType)
		if err != nil {
			return nil, err
		}

		if err := p.expect("->"); err != nil {
			return nil, err
		}

		result, err := p.parseType()
		if err != nil {
			return nil, err
		}

		return ir.Func(result, params...), nil
	case p.peek() == '[':
		shape, err := parseList(p, '[', ']', p.parseDim)
		if err != nil {
			return nil, err
		}

		if name == "tensor" {
			name = "float32"
		}

		return &ir.TensorType{DType: name, Shape: shape}, nil
	case name == "tensor":
		return ir.Tensor(), nil
	case name == "storage":
		return &ir.StorageType{}, nil
	default:
		return &ir.TypeData{Name: name}, nil
	}
}

func (p *typeParser) parseDim() (int, error) {
	text := p.ident()

	size, err := strconv.Atoi(text)
	if err != nil || size < 0 {
		return 0, p.errorf("invalid dimension %q", text)
	}

	return size, nil
}

// parseList parses open item {, item} closing; the list may be empty.
func parseList[T any](p *typeParser, open, closing byte, item func() (T, error)) ([]T, error) {
	if err := p.expect(string(open)); err != nil {
		return nil, err
	}

	var items []T

	if p.peek() == closing {
		p.pos++

		return items, nil
	}

	for {
		it, err := item()
		if err != nil {
			return nil, err
		}

		items = append(items, it)

		switch p.peek() {
		case ',':
			p.pos++
		case closing:
			p.pos++

			return items, nil
		default:
			return nil, p.errorf("expected ',' or %q", string(closing))
		}
	}
}
