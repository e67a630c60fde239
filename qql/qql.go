// Package qql parses the quarry query language, a small textual filter
// syntax for ad-hoc entity queries:
//
//	CONTAINS(Position, Velocity) & !CONTAINS(Frozen) & WITH(enemy) & WITHOUT(dead)
//
// Component constructs (ALL, CONTAINS, EXACT) compose freely with !, & and |.
// Tag constructs (WITH, WITHOUT) are only valid as top-level conjuncts
// because tags are not part of archetype identity and cannot be negated or
// disjoined against component shape.
package qql

import (
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/rotisserie/eris"

	"github.com/quarry-engine/quarry/filter"
	"github.com/quarry-engine/quarry/types/component"
)

// Resolver maps a component name in query text to its registered metadata.
type Resolver func(name string) (component.Metadata, error)

// Query is the compiled form of a QQL expression.
type Query struct {
	// Filter matches against an entity's component shape.
	Filter filter.ComponentFilter
	// Tags must all be present on a matching entity.
	Tags []string
	// WithoutTags must all be absent.
	WithoutTags []string
}

type operator int

const (
	opAnd operator = iota
	opOr
)

var operatorNames = map[string]operator{"&": opAnd, "|": opOr}

func (o *operator) Capture(s []string) error {
	if len(s) == 0 {
		return eris.New("invalid operator")
	}
	op, ok := operatorNames[s[0]]
	if !ok {
		return eris.New("invalid operator")
	}
	*o = op
	return nil
}

func (o operator) String() string {
	if o == opAnd {
		return "&"
	}
	return "|"
}

type componentName struct {
	Name string `parser:"@Ident"`
}

type allExpr struct{}

func (a *allExpr) Capture(values []string) error {
	if values[0] == "ALL" && values[1] == "(" && values[2] == ")" {
		*a = allExpr{}
	}
	return nil
}

type notExpr struct {
	Sub *value `parser:"'!' @@"`
}

type exactExpr struct {
	Components []*componentName `parser:"'EXACT' '(' (@@ ',')* @@ ')'"`
}

type containsExpr struct {
	Components []*componentName `parser:"'CONTAINS' '(' (@@ ',')* @@ ')'"`
}

type withExpr struct {
	Tag string `parser:"'WITH' '(' @Ident ')'"`
}

type withoutExpr struct {
	Tag string `parser:"'WITHOUT' '(' @Ident ')'"`
}

type value struct {
	All      *allExpr      `parser:"@('ALL' '(' ')')"`
	Exact    *exactExpr    `parser:"| @@"`
	Contains *containsExpr `parser:"| @@"`
	With     *withExpr     `parser:"| @@"`
	Without  *withoutExpr  `parser:"| @@"`
	Not      *notExpr      `parser:"| @@"`
	Sub      *term         `parser:"| '(' @@ ')'"`
}

type factor struct {
	Base *value `parser:"@@"`
}

type opFactor struct {
	Operator operator `parser:"@('&' | '|')"`
	Factor   *factor  `parser:"@@"`
}

type term struct {
	Left  *factor     `parser:"@@"`
	Right []*opFactor `parser:"@@*"`
}

func (v *value) String() string {
	switch {
	case v.All != nil:
		return "ALL()"
	case v.Exact != nil:
		return "EXACT(" + joinNames(v.Exact.Components) + ")"
	case v.Contains != nil:
		return "CONTAINS(" + joinNames(v.Contains.Components) + ")"
	case v.With != nil:
		return "WITH(" + v.With.Tag + ")"
	case v.Without != nil:
		return "WITHOUT(" + v.Without.Tag + ")"
	case v.Not != nil:
		return "!" + v.Not.Sub.String()
	case v.Sub != nil:
		return "(" + v.Sub.String() + ")"
	}
	return "?"
}

func (t *term) String() string {
	parts := []string{t.Left.Base.String()}
	for _, r := range t.Right {
		parts = append(parts, r.Operator.String(), r.Factor.Base.String())
	}
	return strings.Join(parts, " ")
}

func joinNames(comps []*componentName) string {
	names := make([]string, len(comps))
	for i, c := range comps {
		names[i] = c.Name
	}
	return strings.Join(names, ", ")
}

var parser = participle.MustBuild[term]()

// Parse compiles query text against the component names resolve knows about.
func Parse(text string, resolve Resolver) (*Query, error) {
	t, err := parser.ParseString("", text)
	if err != nil {
		return nil, eris.Wrapf(err, "parsing %q", text)
	}
	c, err := compileTerm(t, resolve)
	if err != nil {
		return nil, err
	}
	return &Query{Filter: c.f, Tags: c.tags, WithoutTags: c.withoutTags}, nil
}

// compiled carries a component filter plus the tag constraints gathered so
// far. Tag constraints bubble up only through top-level & conjunction.
type compiled struct {
	f           filter.ComponentFilter
	tags        []string
	withoutTags []string
}

func (c compiled) hasTags() bool {
	return len(c.tags) > 0 || len(c.withoutTags) > 0
}

func compileValue(v *value, resolve Resolver) (compiled, error) {
	switch {
	case v.All != nil:
		return compiled{f: filter.All()}, nil
	case v.Exact != nil:
		comps, err := resolveNames(v.Exact.Components, resolve)
		if err != nil {
			return compiled{}, err
		}
		if len(comps) == 0 {
			return compiled{}, eris.New("EXACT cannot have zero parameters")
		}
		return compiled{f: filter.Exact(comps...)}, nil
	case v.Contains != nil:
		comps, err := resolveNames(v.Contains.Components, resolve)
		if err != nil {
			return compiled{}, err
		}
		if len(comps) == 0 {
			return compiled{}, eris.New("CONTAINS cannot have zero parameters")
		}
		return compiled{f: filter.Contains(comps...)}, nil
	case v.With != nil:
		return compiled{f: filter.All(), tags: []string{v.With.Tag}}, nil
	case v.Without != nil:
		return compiled{f: filter.All(), withoutTags: []string{v.Without.Tag}}, nil
	case v.Not != nil:
		sub, err := compileValue(v.Not.Sub, resolve)
		if err != nil {
			return compiled{}, err
		}
		if sub.hasTags() {
			return compiled{}, eris.Errorf("tag constraint cannot be negated: !%s", v.Not.Sub)
		}
		return compiled{f: filter.Not(sub.f)}, nil
	case v.Sub != nil:
		return compileTerm(v.Sub, resolve)
	}
	return compiled{}, eris.New("malformed expression")
}

func compileTerm(t *term, resolve Resolver) (compiled, error) {
	if t.Left == nil {
		return compiled{}, eris.New("not enough values in expression")
	}
	acc, err := compileValue(t.Left.Base, resolve)
	if err != nil {
		return compiled{}, err
	}
	for _, of := range t.Right {
		rhs, err := compileValue(of.Factor.Base, resolve)
		if err != nil {
			return compiled{}, err
		}
		switch of.Operator {
		case opAnd:
			acc = compiled{
				f:           filter.And(acc.f, rhs.f),
				tags:        append(acc.tags, rhs.tags...),
				withoutTags: append(acc.withoutTags, rhs.withoutTags...),
			}
		case opOr:
			if acc.hasTags() || rhs.hasTags() {
				return compiled{}, eris.Errorf("tag constraint cannot appear under |: %s", t)
			}
			acc = compiled{f: filter.Or(acc.f, rhs.f)}
		default:
			return compiled{}, eris.New("invalid operator")
		}
	}
	return acc, nil
}

func resolveNames(names []*componentName, resolve Resolver) ([]component.Metadata, error) {
	comps := make([]component.Metadata, 0, len(names))
	for _, n := range names {
		c, err := resolve(n.Name)
		if err != nil {
			return nil, eris.Wrapf(err, "unknown component %q", n.Name)
		}
		comps = append(comps, c)
	}
	return comps, nil
}
