// internal/browser/parser/selector.go
package parser

import (
	"fmt"
	"strconv"
	"strings"
)

// SelectorGroup is a comma-separated list of complex selectors (e.g., "h1, h2 .title").
// An element matches the group if it matches any member.
type SelectorGroup []ComplexSelector

// ComplexSelector is a sequence of compound selectors joined by combinators (e.g., "div > p").
type ComplexSelector struct {
	// Scoped is set for selectors written relative to the query root, as in ":scope > li".
	// The leftmost compound must then relate to the root through the first combinator.
	Scoped    bool
	Selectors []SimpleSelectorWithCombinator
}

// SimpleSelectorWithCombinator pairs a compound selector with the combinator linking it to
// the compound on its left.
type SimpleSelectorWithCombinator struct {
	Combinator     Combinator
	SimpleSelector SimpleSelector
}

// SimpleSelector is one compound: tag, id, classes, attribute tests and structural pseudo-classes.
type SimpleSelector struct {
	TagName    string
	ID         string
	Classes    []string
	Attributes []AttributeSelector
	Pseudos    []PseudoClass
}

// AttributeSelector is `[name]` or `[name op "value"]` with op one of = ~= |= ^= $= *=.
type AttributeSelector struct {
	Name     string
	Operator string
	Value    string
}

// PseudoClass is a structural pseudo-class. Arg is the 1-based position for the nth forms.
type PseudoClass struct {
	Name string
	Arg  int
}

// Combinator defines the relationship between compound selectors.
type Combinator int

const (
	CombinatorNone            Combinator = iota // first compound
	CombinatorDescendant                        // space
	CombinatorChild                             // >
	CombinatorAdjacentSibling                   // +
	CombinatorGeneralSibling                    // ~
)

var supportedPseudos = map[string]bool{
	"first-child":   true,
	"last-child":    true,
	"only-child":    true,
	"first-of-type": true,
	"last-of-type":  true,
	"nth-child":     true,
	"nth-of-type":   true,
}

// IsValid reports whether the compound has at least one component.
func (s SimpleSelector) IsValid() bool {
	return s.TagName != "" || s.ID != "" || len(s.Classes) > 0 || len(s.Attributes) > 0 || len(s.Pseudos) > 0
}

// CalculateSpecificity returns the (a, b, c) specificity of one compound.
func (s SimpleSelector) CalculateSpecificity() (a, b, c int) {
	if s.ID != "" {
		a = 1
	}
	// Attributes and pseudo-classes weigh the same as classes.
	b = len(s.Classes) + len(s.Attributes) + len(s.Pseudos)
	if s.TagName != "" && s.TagName != "*" {
		c = 1
	}
	return a, b, c
}

// CalculateSpecificity sums the specificity of every compound in the chain.
func (cs ComplexSelector) CalculateSpecificity() (int, int, int) {
	a, b, c := 0, 0, 0
	for _, s := range cs.Selectors {
		sa, sb, sc := s.SimpleSelector.CalculateSpecificity()
		a += sa
		b += sb
		c += sc
	}
	return a, b, c
}

// String renders the group back to selector text. Used in log fields.
func (g SelectorGroup) String() string {
	parts := make([]string, 0, len(g))
	for _, cs := range g {
		parts = append(parts, cs.String())
	}
	return strings.Join(parts, ", ")
}

func (cs ComplexSelector) String() string {
	var b strings.Builder
	if cs.Scoped {
		b.WriteString(":scope")
	}
	for i, s := range cs.Selectors {
		if i > 0 || cs.Scoped {
			switch s.Combinator {
			case CombinatorChild:
				b.WriteString(" > ")
			case CombinatorAdjacentSibling:
				b.WriteString(" + ")
			case CombinatorGeneralSibling:
				b.WriteString(" ~ ")
			default:
				b.WriteString(" ")
			}
		}
		b.WriteString(s.SimpleSelector.String())
	}
	return b.String()
}

func (s SimpleSelector) String() string {
	var b strings.Builder
	b.WriteString(s.TagName)
	if s.ID != "" {
		b.WriteString("#" + s.ID)
	}
	for _, c := range s.Classes {
		b.WriteString("." + c)
	}
	for _, a := range s.Attributes {
		if a.Operator == "" {
			fmt.Fprintf(&b, "[%s]", a.Name)
		} else {
			fmt.Fprintf(&b, "[%s%s%q]", a.Name, a.Operator, a.Value)
		}
	}
	for _, p := range s.Pseudos {
		if p.Arg > 0 {
			fmt.Fprintf(&b, ":%s(%d)", p.Name, p.Arg)
		} else {
			b.WriteString(":" + p.Name)
		}
	}
	return b.String()
}

// ParseSelector parses a selector list strictly: any construct outside the supported
// subset is an error rather than being skipped.
func ParseSelector(input string) (SelectorGroup, error) {
	p := NewParser(input)
	group, err := p.parseSelectorList(true)
	if err != nil {
		return nil, fmt.Errorf("parser: invalid selector %q: %w", input, err)
	}
	p.consumeWhitespace()
	if !p.eof() {
		return nil, fmt.Errorf("parser: invalid selector %q: unexpected %q at offset %d", input, p.currentChar(), p.pos)
	}
	if len(group) == 0 {
		return nil, fmt.Errorf("parser: empty selector")
	}
	return group, nil
}

// MustParseSelector is ParseSelector for selectors known at compile time.
func MustParseSelector(input string) SelectorGroup {
	g, err := ParseSelector(input)
	if err != nil {
		panic(err)
	}
	return g
}

// parseSelectorList reads complex selectors separated by commas until EOF or '{'.
func (p *Parser) parseSelectorList(strict bool) (SelectorGroup, error) {
	var group SelectorGroup
	for {
		p.consumeWhitespace()
		if p.eof() || p.currentChar() == '{' {
			break
		}
		cs, err := p.parseComplexSelector()
		if err != nil {
			if strict {
				return nil, err
			}
			// Lenient mode drops the bad member and resyncs at the next comma.
			p.skipTo(',', '{')
		} else if len(cs.Selectors) > 0 {
			group = append(group, cs)
		}

		p.consumeWhitespace()
		if !p.eof() && p.currentChar() == ',' {
			p.consumeChar()
			continue
		}
		break
	}
	return group, nil
}

func (p *Parser) parseComplexSelector() (ComplexSelector, error) {
	var cs ComplexSelector
	combinator := CombinatorNone

	p.consumeWhitespace()
	if p.startsWith(":scope") {
		p.consumeN(len(":scope"))
		cs.Scoped = true
		combinator = CombinatorDescendant
	}

	for {
		sawSpace := p.consumeWhitespace()
		if p.eof() || p.currentChar() == '{' || p.currentChar() == ',' {
			break
		}

		switch p.currentChar() {
		case '>':
			p.consumeChar()
			combinator = CombinatorChild
			p.consumeWhitespace()
		case '+':
			p.consumeChar()
			combinator = CombinatorAdjacentSibling
			p.consumeWhitespace()
		case '~':
			p.consumeChar()
			combinator = CombinatorGeneralSibling
			p.consumeWhitespace()
		default:
			if len(cs.Selectors) > 0 && !sawSpace {
				return cs, fmt.Errorf("unexpected %q at offset %d", p.currentChar(), p.pos)
			}
			if len(cs.Selectors) > 0 {
				combinator = CombinatorDescendant
			}
		}

		simple, err := p.parseSimpleSelector()
		if err != nil {
			return cs, err
		}
		cs.Selectors = append(cs.Selectors, SimpleSelectorWithCombinator{Combinator: combinator, SimpleSelector: simple})
		combinator = CombinatorNone
	}

	if combinator != CombinatorNone && !(cs.Scoped && len(cs.Selectors) == 0) {
		return cs, fmt.Errorf("dangling combinator")
	}
	if cs.Scoped && len(cs.Selectors) == 0 {
		return cs, fmt.Errorf(":scope must be followed by a selector")
	}
	return cs, nil
}

// parseSimpleSelector parses one compound (e.g., div#id.class1[attr]:last-child).
func (p *Parser) parseSimpleSelector() (SimpleSelector, error) {
	var sel SimpleSelector

	if !p.eof() {
		ch := p.currentChar()
		if ch == '*' {
			p.consumeChar()
			sel.TagName = "*"
		} else if isValidIdentifierStart(ch) {
			sel.TagName = strings.ToLower(p.parseIdentifier())
		}
	}

loop:
	for !p.eof() {
		switch p.currentChar() {
		case '#':
			p.consumeChar()
			id := p.parseIdentifier()
			if id == "" {
				return sel, fmt.Errorf("empty id at offset %d", p.pos)
			}
			sel.ID = id
		case '.':
			p.consumeChar()
			class := p.parseIdentifier()
			if class == "" {
				return sel, fmt.Errorf("empty class at offset %d", p.pos)
			}
			sel.Classes = append(sel.Classes, class)
		case '[':
			p.consumeChar()
			attr, err := p.parseAttributeSelector()
			if err != nil {
				return sel, err
			}
			sel.Attributes = append(sel.Attributes, attr)
		case ':':
			p.consumeChar()
			pseudo, err := p.parsePseudoClass()
			if err != nil {
				return sel, err
			}
			sel.Pseudos = append(sel.Pseudos, pseudo)
		default:
			break loop
		}
	}

	if !sel.IsValid() {
		return sel, fmt.Errorf("expected a selector at offset %d", p.pos)
	}
	return sel, nil
}

// parseAttributeSelector parses the inside of `[...]`; the opening bracket is already consumed.
func (p *Parser) parseAttributeSelector() (AttributeSelector, error) {
	p.consumeWhitespace()
	name := strings.ToLower(p.parseIdentifier())
	if name == "" {
		return AttributeSelector{}, fmt.Errorf("attribute selector without a name at offset %d", p.pos)
	}
	p.consumeWhitespace()
	if p.eof() {
		return AttributeSelector{}, fmt.Errorf("unexpected EOF in attribute selector")
	}
	if p.currentChar() == ']' {
		p.consumeChar()
		return AttributeSelector{Name: name}, nil
	}

	var op string
	switch p.currentChar() {
	case '=':
		op = "="
		p.consumeChar()
	case '~', '|', '^', '$', '*':
		op = string(p.consumeChar())
		if p.eof() || p.currentChar() != '=' {
			return AttributeSelector{}, fmt.Errorf("malformed attribute operator %q", op)
		}
		p.consumeChar()
		op += "="
	default:
		return AttributeSelector{}, fmt.Errorf("unexpected %q in attribute selector", p.currentChar())
	}
	p.consumeWhitespace()

	var value string
	if ch := p.currentChar(); ch == '"' || ch == '\'' {
		p.consumeChar()
		start := p.pos
		for !p.eof() && p.currentChar() != ch {
			p.pos++
		}
		if p.eof() {
			return AttributeSelector{}, fmt.Errorf("unterminated string in attribute selector")
		}
		value = p.input[start:p.pos]
		p.consumeChar()
	} else {
		value = p.parseIdentifier()
	}
	p.consumeWhitespace()

	// Case-sensitivity flags are accepted and ignored.
	if ch := p.currentChar(); ch == 'i' || ch == 's' {
		p.consumeChar()
		p.consumeWhitespace()
	}
	if p.eof() || p.currentChar() != ']' {
		return AttributeSelector{}, fmt.Errorf("expected ']' to close attribute selector")
	}
	p.consumeChar()

	return AttributeSelector{Name: name, Operator: op, Value: value}, nil
}

func (p *Parser) parsePseudoClass() (PseudoClass, error) {
	name := strings.ToLower(p.parseIdentifier())
	if !supportedPseudos[name] {
		return PseudoClass{}, fmt.Errorf("unsupported pseudo-class :%s", name)
	}
	pc := PseudoClass{Name: name}
	if name != "nth-child" && name != "nth-of-type" {
		return pc, nil
	}
	if p.eof() || p.currentChar() != '(' {
		return pc, fmt.Errorf(":%s requires an argument", name)
	}
	p.consumeChar()
	p.consumeWhitespace()
	start := p.pos
	for !p.eof() && p.currentChar() >= '0' && p.currentChar() <= '9' {
		p.pos++
	}
	n, err := strconv.Atoi(p.input[start:p.pos])
	if err != nil || n < 1 {
		return pc, fmt.Errorf(":%s supports only a positive integer argument", name)
	}
	p.consumeWhitespace()
	if p.eof() || p.currentChar() != ')' {
		return pc, fmt.Errorf("expected ')' after :%s argument", name)
	}
	p.consumeChar()
	pc.Arg = n
	return pc, nil
}
