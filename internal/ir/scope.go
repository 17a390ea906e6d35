package ir

import (
	"fmt"
	"sort"
)

// Scope is an explicit resolution context mapping visible names to the
// values they denote. It replaces implicit attribute-style lookup: callers
// building expressions from textual input (catalog pipelines, query
// frontends) construct a scope from the relational inputs in play, then
// resolve names through it.
//
// A scope is built fresh per relational node from its parents:
//
//	sc := ir.NewScope()
//	sc.AddRelation("orders", ordersTable)
//	ref, err := sc.Resolve("amount")
//
// Names introduced earlier in the same projection list are made visible to
// later expressions with Define, implementing alias chaining.
type Scope struct {
	entries map[string]scopeEntry
	order   []string
}

type scopeEntry struct {
	value     Value
	ambiguous bool
}

// NewScope returns an empty scope.
func NewScope() *Scope {
	return &Scope{entries: make(map[string]scopeEntry)}
}

// AddRelation makes every column of rel visible, both under its bare name
// and under "qualifier.name". A bare name visible from more than one
// relation becomes ambiguous and must be qualified to resolve.
func (s *Scope) AddRelation(qualifier string, rel Relation) error {
	for _, f := range rel.Schema().Fields() {
		ref, err := Column(rel, f.Name)
		if err != nil {
			return err
		}
		if qualifier != "" {
			qualified := qualifier + "." + f.Name
			if _, dup := s.entries[qualified]; dup {
				return fmt.Errorf("duplicate scope qualifier %q", qualified)
			}
			s.entries[qualified] = scopeEntry{value: ref}
			s.order = append(s.order, qualified)
		}
		if prev, dup := s.entries[f.Name]; dup {
			prev.ambiguous = true
			s.entries[f.Name] = prev
			continue
		}
		s.entries[f.Name] = scopeEntry{value: ref}
		s.order = append(s.order, f.Name)
	}
	return nil
}

// Define binds name to an already-built value, shadowing nothing: a name
// that is already bound fails, since silent shadowing would make projection
// lists order-sensitive in surprising ways.
func (s *Scope) Define(name string, v Value) error {
	if _, dup := s.entries[name]; dup {
		return fmt.Errorf("name %q already bound in scope", name)
	}
	s.entries[name] = scopeEntry{value: v}
	s.order = append(s.order, name)
	return nil
}

// Resolve returns the value a name denotes. Unresolved names fail with
// UnboundColumnError carrying the candidate list; ambiguous bare names
// require qualification.
func (s *Scope) Resolve(name string) (Value, error) {
	e, ok := s.entries[name]
	if !ok {
		return nil, newUnboundColumnError(name, s.Names())
	}
	if e.ambiguous {
		return nil, fmt.Errorf("ambiguous column %q: qualify it with its table name", name)
	}
	return e.value, nil
}

// Names returns every resolvable name, sorted.
func (s *Scope) Names() []string {
	out := make([]string, 0, len(s.order))
	for _, n := range s.order {
		if !s.entries[n].ambiguous {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}
