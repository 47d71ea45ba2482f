package backend

import (
	"fmt"
	"reflect"
	"strings"
)

// Term is a single equality condition.
type Term struct {
	Field string
	Value any
}

// Filter is an AND-list of equality terms. The zero Filter matches everything.
//
// A dotted field such as "members.userId" addresses an attribute of an
// embedded array element; only the document backend interprets it natively.
type Filter struct {
	terms []Term
}

// All returns a filter matching every record.
func All() Filter {
	return Filter{}
}

// Where returns a filter with a single equality term.
func Where(field string, value any) Filter {
	return Filter{terms: []Term{{Field: field, Value: value}}}
}

// ByID returns a filter matching the record with the given identity.
func ByID(id string) Filter {
	return Where(IDField, id)
}

// And returns a copy of f with an additional equality term.
func (f Filter) And(field string, value any) Filter {
	terms := make([]Term, len(f.terms), len(f.terms)+1)
	copy(terms, f.terms)
	return Filter{terms: append(terms, Term{Field: field, Value: value})}
}

// Terms returns the filter terms in insertion order.
func (f Filter) Terms() []Term {
	return f.terms
}

// IsEmpty reports whether the filter has no terms.
func (f Filter) IsEmpty() bool {
	return len(f.terms) == 0
}

// ID returns the identity term value, if the filter has one.
func (f Filter) ID() (string, bool) {
	for _, t := range f.terms {
		if t.Field == IDField {
			s, ok := t.Value.(string)
			return s, ok
		}
	}
	return "", false
}

// Matches evaluates the filter against an in-memory record.
func (f Filter) Matches(r Record) bool {
	for _, t := range f.terms {
		if !matchPath(map[string]any(r), strings.Split(t.Field, "."), t.Value) {
			return false
		}
	}
	return true
}

func (f Filter) String() string {
	parts := make([]string, len(f.terms))
	for i, t := range f.terms {
		parts[i] = fmt.Sprintf("%s=%v", t.Field, t.Value)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func matchPath(doc map[string]any, path []string, want any) bool {
	v, ok := doc[path[0]]
	if !ok {
		return want == nil
	}
	if len(path) == 1 {
		return ValuesEqual(v, want)
	}
	switch child := v.(type) {
	case map[string]any:
		return matchPath(child, path[1:], want)
	case Record:
		return matchPath(child, path[1:], want)
	case []any:
		for _, el := range child {
			if m, ok := el.(map[string]any); ok && matchPath(m, path[1:], want) {
				return true
			}
		}
	case []map[string]any:
		for _, m := range child {
			if matchPath(m, path[1:], want) {
				return true
			}
		}
	}
	return false
}

// ValuesEqual compares two attribute values, treating numbers of different
// Go types and their string forms as equal when they print the same.
func ValuesEqual(a, b any) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}
