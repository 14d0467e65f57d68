package vdf

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/andygrunwald/vdf"
	"golang.org/x/text/encoding/charmap"
)

// maxDepth bounds section nesting so hostile input cannot exhaust the stack.
const maxDepth = 256

// ErrParse is matched by every *ParseError via errors.Is.
var ErrParse = errors.New("vdf parse error")

// ParseError reports structurally unrecoverable input.
type ParseError struct {
	// Offset is the byte offset where the offending construct starts.
	Offset int64
	Reason string
}

// Error implements error.
func (e *ParseError) Error() string {
	return fmt.Sprintf("vdf: %s at byte %d", e.Reason, e.Offset)
}

// Is makes errors.Is(err, ErrParse) true for parse errors.
func (e *ParseError) Is(target error) bool {
	return target == ErrParse
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Parse reads VDF text and returns the root mapping. See ParseBytes.
func Parse(r io.Reader) (*Map, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return NewMap(), err
	}
	return ParseBytes(data)
}

// ParseBytes parses an in-memory document.
//
// Empty input yields an empty map. Missing closing braces are tolerated.
// Input that is not valid UTF-8 is read as Windows-1252. When the input is
// structurally unrecoverable (an unterminated quoted string at end of
// input) ParseBytes returns the entries read so far together with a
// *ParseError; callers decide whether the partial map is usable.
func ParseBytes(data []byte) (*Map, error) {
	var base int64
	if bytes.HasPrefix(data, utf8BOM) {
		data = data[len(utf8BOM):]
		base = int64(len(utf8BOM))
	}

	lex := newLexer(data)
	lex.off = base
	p := &parser{lex: lex}
	root := NewMap()
	err := p.parseBody(root, 0)
	return root, err
}

// ParseFile reads and parses the file at path. Read failures return a nil
// map; parse failures return the partial map and a *ParseError.
func ParseFile(path string) (*Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m, err := ParseBytes(data)
	if err != nil {
		return m, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokString
	tokOpen
	tokClose
	tokCondition
)

type token struct {
	kind tokenKind
	text string
	off  int64
}

// lexer turns the character-level tokens of vdf.Scanner into strings,
// braces and conditionals, tracking the input byte offset as it goes.
type lexer struct {
	s   *vdf.Scanner
	off int64

	// width converts a literal back to the number of input bytes it came from.
	width func(string) int64

	pending bool
	ptok    vdf.Token
	plit    string
}

func newLexer(data []byte) *lexer {
	l := &lexer{width: byteWidth}
	if !utf8.Valid(data) {
		// Windows-1252 decodes every byte to exactly one rune.
		if decoded, err := charmap.Windows1252.NewDecoder().Bytes(data); err == nil {
			data = decoded
			l.width = runeWidth
		}
	}
	l.s = vdf.NewScanner(bytes.NewReader(data))
	return l
}

func byteWidth(s string) int64 { return int64(len(s)) }

func runeWidth(s string) int64 { return int64(utf8.RuneCountInString(s)) }

func (l *lexer) raw() (vdf.Token, string) {
	if l.pending {
		l.pending = false
		l.off += l.width(l.plit)
		return l.ptok, l.plit
	}
	tok, lit := l.s.Scan(true)
	l.off += l.width(lit)
	return tok, lit
}

func (l *lexer) unread(tok vdf.Token, lit string) {
	l.pending = true
	l.ptok, l.plit = tok, lit
	l.off -= l.width(lit)
}

func (l *lexer) next() (token, error) {
	for {
		start := l.off
		tok, lit := l.raw()
		switch tok {
		case vdf.WS, vdf.EOL:
			continue
		case vdf.EOF:
			return token{kind: tokEOF, off: start}, nil
		case vdf.CommentDoubleSlash:
			l.skipLine()
			continue
		case vdf.CurlyBraceOpen:
			return token{kind: tokOpen, off: start}, nil
		case vdf.CurlyBraceClose:
			return token{kind: tokClose, off: start}, nil
		case vdf.QuotationMark:
			text, err := l.quoted(start)
			return token{kind: tokString, text: text, off: start}, err
		default:
			word := l.bare(lit)
			switch {
			case strings.HasPrefix(word, "#"):
				// #include and #base directives reference other files.
				l.skipLine()
				continue
			case strings.HasPrefix(word, "[") && strings.HasSuffix(word, "]"):
				return token{kind: tokCondition, text: word, off: start}, nil
			}
			return token{kind: tokString, text: word, off: start}, nil
		}
	}
}

func (l *lexer) skipLine() {
	for {
		tok, _ := l.raw()
		if tok == vdf.EOL || tok == vdf.EOF {
			return
		}
	}
}

// quoted reads up to the closing quote. The opening quote was consumed.
func (l *lexer) quoted(start int64) (string, error) {
	var sb strings.Builder
	for {
		tok, lit := l.raw()
		switch tok {
		case vdf.EOF:
			return sb.String(), &ParseError{Offset: start, Reason: "unterminated quoted string"}
		case vdf.QuotationMark:
			return sb.String(), nil
		case vdf.EscapeSequence:
			next, nlit := l.raw()
			switch next {
			case vdf.EOF:
				return sb.String(), &ParseError{Offset: start, Reason: "unterminated quoted string"}
			case vdf.QuotationMark:
				sb.WriteByte('"')
			case vdf.EscapeSequence:
				sb.WriteByte('\\')
			case vdf.Ident:
				switch nlit[0] {
				case 'n':
					sb.WriteByte('\n')
				case 't':
					sb.WriteByte('\t')
				case 'r':
					sb.WriteByte('\r')
				default:
					sb.WriteByte('\\')
					sb.WriteByte(nlit[0])
				}
				sb.WriteString(nlit[1:])
			default:
				sb.WriteByte('\\')
				sb.WriteString(nlit)
			}
		default:
			sb.WriteString(lit)
		}
	}
}

// bare accumulates an unquoted token until whitespace or structure.
func (l *lexer) bare(first string) string {
	var sb strings.Builder
	sb.WriteString(first)
	for {
		tok, lit := l.raw()
		switch tok {
		case vdf.WS, vdf.EOL, vdf.EOF, vdf.CurlyBraceOpen, vdf.CurlyBraceClose,
			vdf.QuotationMark, vdf.CommentDoubleSlash:
			l.unread(tok, lit)
			return sb.String()
		default:
			sb.WriteString(lit)
		}
	}
}

type parser struct {
	lex *lexer
}

// parseBody fills m until the matching close brace or end of input.
func (p *parser) parseBody(m *Map, depth int) error {
	for {
		tok, err := p.lex.next()
		if err != nil {
			return err
		}
		switch tok.kind {
		case tokEOF:
			return nil
		case tokCondition:
			continue
		case tokClose:
			if depth == 0 {
				continue // stray brace at top level
			}
			return nil
		case tokOpen:
			// Anonymous section: keep its contents at this level.
			if err := p.section(m, depth); err != nil {
				return err
			}
		case tokString:
			if err := p.value(m, tok.text, depth); err != nil {
				return err
			}
		}
	}
}

// value reads whatever follows key and stores it in m.
func (p *parser) value(m *Map, key string, depth int) error {
	for {
		tok, err := p.lex.next()
		if err != nil {
			return err
		}
		switch tok.kind {
		case tokCondition:
			continue
		case tokEOF:
			return nil
		case tokString:
			m.SetString(key, tok.text)
			return nil
		case tokClose:
			// Key with no value; treat the brace as closing the section.
			if depth == 0 {
				return nil
			}
			p.lex.unread(vdf.CurlyBraceClose, "}")
			return nil
		case tokOpen:
			child := NewMap()
			err := p.section(child, depth)
			m.SetMap(key, child)
			return err
		}
	}
}

func (p *parser) section(m *Map, depth int) error {
	if depth+1 > maxDepth {
		return &ParseError{Offset: p.lex.off, Reason: "sections nested too deeply"}
	}
	return p.parseBody(m, depth+1)
}
