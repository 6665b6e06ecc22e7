// Package relation expands related-object fetch specifications into
// concrete join plans. Eager loading trades one wider joined query for N+1
// round trips; the fetch spec lets callers bound the join fan-out for deep
// or cyclic schemas.
package relation

import (
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/krew-solutions/querykit-go/querykit/metadata"
)

// ErrUnknownRelation reports a path segment that does not name a declared
// foreign key on the model chain.
var ErrUnknownRelation = errors.New("unknown relation")

// maxDepth bounds unrestricted traversal. The cycle guard already prevents
// re-entering a table on the same path; the depth cap keeps pathological
// acyclic schemas from exploding the join count.
const maxDepth = 8

type fetchKind int

const (
	fetchNone fetchKind = iota
	fetchAll
	fetchExplicit
)

// FetchSpec describes which foreign-key-linked objects are eagerly joined
// and hydrated together with the primary model.
type FetchSpec struct {
	kind  fetchKind
	paths []string
}

// None fetches no related objects eagerly.
func None() FetchSpec { return FetchSpec{kind: fetchNone} }

// AllRecursive traverses every declared foreign key transitively,
// cycle-guarded.
func AllRecursive() FetchSpec { return FetchSpec{kind: fetchAll} }

// Explicit fetches exactly the named relation chains. Paths sharing a
// prefix are merged into one join tree.
func Explicit(paths ...string) FetchSpec {
	return FetchSpec{kind: fetchExplicit, paths: paths}
}

func (s FetchSpec) IsNone() bool { return s.kind == fetchNone }

// Paths returns the explicit paths, nil for None and AllRecursive.
func (s FetchSpec) Paths() []string { return s.paths }

// JoinEdge is one foreign-key join from a parent plan node to a related
// model. Hydrate marks edges requested by the fetch spec; edges added only
// to cover filter or projection paths keep Hydrate false and contribute no
// columns to the result row.
type JoinEdge struct {
	FK      metadata.ForeignKeyMeta
	Hydrate bool
	Child   *JoinPlan
}

// JoinPlan is the join tree rooted at the primary model. Aliases are
// assigned t0, t1, ... in insertion order, so equal queryset states render
// identical SQL.
type JoinPlan struct {
	Meta  *metadata.Meta
	Alias string
	Edges []*JoinEdge

	seq *int
}

// Resolve builds the join plan for meta according to spec.
func Resolve(meta *metadata.Meta, spec FetchSpec) (*JoinPlan, error) {
	seq := 1
	plan := &JoinPlan{Meta: meta, Alias: "t0", seq: &seq}
	switch spec.kind {
	case fetchNone:
		return plan, nil
	case fetchAll:
		plan.expandAll(map[string]bool{meta.Table: true}, 0)
		return plan, nil
	case fetchExplicit:
		var merr *multierror.Error
		for _, path := range spec.paths {
			if err := plan.addPath(path); err != nil {
				merr = multierror.Append(merr, err)
			}
		}
		return plan, merr.ErrorOrNil()
	}
	return nil, errors.Errorf("relation: unknown fetch spec kind %d", spec.kind)
}

func (p *JoinPlan) expandAll(onPath map[string]bool, depth int) {
	if depth >= maxDepth {
		return
	}
	for _, fk := range p.Meta.ForeignKeys {
		related := fk.Related()
		if onPath[related.Table] {
			continue
		}
		edge := p.edge(fk, true)
		onPath[related.Table] = true
		edge.Child.expandAll(onPath, depth+1)
		delete(onPath, related.Table)
	}
}

func (p *JoinPlan) addPath(path string) error {
	node := p
	for _, segment := range strings.Split(path, metadata.PathSeparator) {
		fk, ok := node.Meta.ForeignKey(segment)
		if !ok {
			return errors.Wrapf(ErrUnknownRelation, "%q has no relation %q (in path %q)",
				node.Meta.Table, segment, path)
		}
		node = node.edge(fk, true).Child
	}
	return nil
}

// Require makes sure the relation chain leading to fieldPath is joined,
// without requesting hydration for it. The final segment names a field (or
// a foreign key, compared by its column) and is not itself walked.
func (p *JoinPlan) Require(fieldPath string) error {
	segments := strings.Split(fieldPath, metadata.PathSeparator)
	node := p
	for _, segment := range segments[:len(segments)-1] {
		fk, ok := node.Meta.ForeignKey(segment)
		if !ok {
			return errors.Wrapf(ErrUnknownRelation, "%q has no relation %q (in path %q)",
				node.Meta.Table, segment, fieldPath)
		}
		node = node.edge(fk, false).Child
	}
	return nil
}

// ColumnFor resolves fieldPath to an alias-qualified column. The relation
// chain must already be present in the plan (see Require). A terminal
// segment naming a foreign key resolves to the referencing column itself.
func (p *JoinPlan) ColumnFor(fieldPath string) (string, error) {
	segments := strings.Split(fieldPath, metadata.PathSeparator)
	node := p
	for _, segment := range segments[:len(segments)-1] {
		next := node.find(segment)
		if next == nil {
			return "", errors.Wrapf(ErrUnknownRelation, "path %q is not covered by the join plan", fieldPath)
		}
		node = next.Child
	}
	last := segments[len(segments)-1]
	if f, ok := node.Meta.Field(last); ok {
		return node.Alias + "." + f.Column, nil
	}
	if fk, ok := node.Meta.ForeignKey(last); ok {
		return node.Alias + "." + fk.Column, nil
	}
	return "", errors.Wrapf(ErrUnknownRelation, "%q has no field %q (in path %q)",
		node.Meta.Table, last, fieldPath)
}

// edge returns the existing edge for fk, creating it if absent. A hydrate
// request upgrades a filter-only edge but never the other way round.
func (p *JoinPlan) edge(fk metadata.ForeignKeyMeta, hydrate bool) *JoinEdge {
	if e := p.find(fk.Name); e != nil {
		if hydrate {
			e.Hydrate = true
		}
		return e
	}
	alias := "t" + strconv.Itoa(*p.seq)
	*p.seq++
	e := &JoinEdge{
		FK:      fk,
		Hydrate: hydrate,
		Child:   &JoinPlan{Meta: fk.Related(), Alias: alias, seq: p.seq},
	}
	p.Edges = append(p.Edges, e)
	return e
}

func (p *JoinPlan) find(fkName string) *JoinEdge {
	for _, e := range p.Edges {
		if e.FK.Name == fkName {
			return e
		}
	}
	return nil
}

// Joins flattens the plan into parent/edge pairs in depth-first order, the
// order the translator renders JOIN clauses in.
func (p *JoinPlan) Joins() []Join {
	var out []Join
	p.appendJoins(&out)
	return out
}

// Join pairs a plan node with one of its outgoing edges.
type Join struct {
	Parent *JoinPlan
	Edge   *JoinEdge
}

func (p *JoinPlan) appendJoins(out *[]Join) {
	for _, e := range p.Edges {
		*out = append(*out, Join{Parent: p, Edge: e})
		e.Child.appendJoins(out)
	}
}

// HydratedNodes lists the plan nodes that contribute columns to the result
// row: the root first, then each hydrated child depth-first.
func (p *JoinPlan) HydratedNodes() []*JoinPlan {
	out := []*JoinPlan{p}
	p.appendHydrated(&out)
	return out
}

func (p *JoinPlan) appendHydrated(out *[]*JoinPlan) {
	for _, e := range p.Edges {
		if !e.Hydrate {
			continue
		}
		*out = append(*out, e.Child)
		e.Child.appendHydrated(out)
	}
}
