// Package backendtest provides an in-memory backend.Adapter for tests.
// It mimics the identity rules of the real backends: relational ids are
// UUIDs, document ids are 24-char hex ObjectIDs.
package backendtest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/ekaya-inc/ekaya-datahub/pkg/adapters/backend"
	"github.com/ekaya-inc/ekaya-datahub/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-datahub/pkg/models"
)

// Adapter is an in-memory backend.Adapter.
type Adapter struct {
	mu      sync.Mutex
	kind    models.BackendKind
	objects map[string][]backend.Record
	specs   map[string]backend.ObjectSpec
	errs    map[string]error
	calls   map[string]int
	closed  bool
}

var _ backend.Adapter = (*Adapter)(nil)

// New creates an empty adapter of the given kind.
func New(kind models.BackendKind) *Adapter {
	return &Adapter{
		kind:    kind,
		objects: make(map[string][]backend.Record),
		specs:   make(map[string]backend.ObjectSpec),
		errs:    make(map[string]error),
		calls:   make(map[string]int),
	}
}

// Connection wraps the adapter in a backend.Connection.
func (a *Adapter) Connection(id string, primary bool) *backend.Connection {
	return &backend.Connection{ID: id, Kind: a.kind, IsPrimary: primary, Adapter: a}
}

// FailOn makes every subsequent call of op ("Find", "Create", "Update",
// "Delete", "CreateObject", ...) on object return err. Object "" matches any.
// A nil err clears an earlier failure.
func (a *Adapter) FailOn(op, object string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err == nil {
		delete(a.errs, op+":"+object)
		return
	}
	a.errs[op+":"+object] = err
}

// Calls returns how many times op was invoked.
func (a *Adapter) Calls(op string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[op]
}

// Records returns a copy of every record stored in object.
func (a *Adapter) Records(object string) []backend.Record {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]backend.Record, 0, len(a.objects[object]))
	for _, r := range a.objects[object] {
		out = append(out, deepCopy(r))
	}
	return out
}

// Objects returns the provisioned object names, sorted.
func (a *Adapter) Objects() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.specs))
	for name := range a.specs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Spec returns the spec an object was provisioned with.
func (a *Adapter) Spec(name string) (backend.ObjectSpec, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.specs[name]
	return s, ok
}

// Closed reports whether Close was called.
func (a *Adapter) Closed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

func (a *Adapter) Kind() models.BackendKind { return a.kind }

func (a *Adapter) Find(ctx context.Context, object string, filter backend.Filter) ([]backend.Record, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.enter("Find", object); err != nil {
		return nil, err
	}
	if !a.validID(filter) {
		return []backend.Record{}, nil
	}
	out := []backend.Record{}
	for _, r := range a.objects[object] {
		if filter.Matches(r) {
			out = append(out, deepCopy(r))
		}
	}
	return out, nil
}

func (a *Adapter) FindOne(ctx context.Context, object string, filter backend.Filter) (backend.Record, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.enter("FindOne", object); err != nil {
		return nil, err
	}
	if !a.validID(filter) {
		return nil, nil
	}
	for _, r := range a.objects[object] {
		if filter.Matches(r) {
			return deepCopy(r), nil
		}
	}
	return nil, nil
}

func (a *Adapter) Create(ctx context.Context, object string, record backend.Record) (backend.Record, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.enter("Create", object); err != nil {
		return nil, err
	}
	r := deepCopy(record)
	if id := r.ID(); id == "" || !a.parseID(id) {
		r[backend.IDField] = a.newID()
	}
	a.objects[object] = append(a.objects[object], r)
	return deepCopy(r), nil
}

func (a *Adapter) Update(ctx context.Context, object string, filter backend.Filter, patch backend.Patch) (backend.Record, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.enter("Update", object); err != nil {
		return nil, err
	}
	if !a.validID(filter) {
		return nil, nil
	}
	for i, r := range a.objects[object] {
		if !filter.Matches(r) {
			continue
		}
		updated := deepCopy(r)
		if err := a.apply(updated, filter, patch); err != nil {
			return nil, err
		}
		a.objects[object][i] = updated
		return deepCopy(updated), nil
	}
	return nil, nil
}

func (a *Adapter) Delete(ctx context.Context, object string, filter backend.Filter) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.enter("Delete", object); err != nil {
		return 0, err
	}
	if !a.validID(filter) {
		return 0, nil
	}
	kept := a.objects[object][:0]
	var n int64
	for _, r := range a.objects[object] {
		if filter.Matches(r) {
			n++
			continue
		}
		kept = append(kept, r)
	}
	a.objects[object] = kept
	return n, nil
}

func (a *Adapter) CreateObject(ctx context.Context, spec backend.ObjectSpec) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.enter("CreateObject", spec.Name); err != nil {
		return err
	}
	a.specs[spec.Name] = spec
	if _, ok := a.objects[spec.Name]; !ok {
		a.objects[spec.Name] = nil
	}
	return nil
}

func (a *Adapter) DropObject(ctx context.Context, name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.enter("DropObject", name); err != nil {
		return err
	}
	delete(a.specs, name)
	delete(a.objects, name)
	return nil
}

func (a *Adapter) Close(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}

// enter records the call and returns any injected error. Caller holds a.mu.
func (a *Adapter) enter(op, object string) error {
	a.calls[op]++
	if err, ok := a.errs[op+":"+object]; ok {
		return err
	}
	return a.errs[op+":"]
}

func (a *Adapter) newID() string {
	if a.kind == models.BackendDocument {
		return primitive.NewObjectID().Hex()
	}
	return uuid.NewString()
}

func (a *Adapter) parseID(id string) bool {
	if a.kind == models.BackendDocument {
		_, err := primitive.ObjectIDFromHex(id)
		return err == nil
	}
	_, err := uuid.Parse(id)
	return err == nil
}

func (a *Adapter) validID(filter backend.Filter) bool {
	id, ok := filter.ID()
	if !ok {
		return true
	}
	return a.parseID(id)
}

func (a *Adapter) apply(r backend.Record, filter backend.Filter, patch backend.Patch) error {
	switch p := patch.(type) {
	case backend.ReplaceFields:
		for k, v := range p {
			if k == backend.IDField {
				continue
			}
			r[k] = copyValue(v)
		}
		return nil
	case backend.NativeOperators:
		if a.kind != models.BackendDocument {
			return apperrors.ErrUnsupportedPatch
		}
		return applyOperators(r, filter, p)
	case backend.ElementPatch:
		if a.kind != models.BackendDocument {
			return apperrors.ErrUnsupportedPatch
		}
		set := make(map[string]any, len(p.Fields))
		for k, v := range p.Fields {
			set[p.Array+".$."+k] = v
		}
		return applyOperators(r, filter.And(p.Array+"."+p.MatchField, p.MatchValue), backend.NativeOperators{"$set": set})
	case backend.ElementAppend:
		if a.kind != models.BackendDocument {
			return apperrors.ErrUnsupportedPatch
		}
		return applyOperators(r, filter, backend.NativeOperators{"$push": map[string]any{p.Array: p.Element}})
	case backend.ElementRemove:
		if a.kind != models.BackendDocument {
			return apperrors.ErrUnsupportedPatch
		}
		return applyOperators(r, filter, backend.NativeOperators{"$pull": map[string]any{p.Array: map[string]any{p.MatchField: p.MatchValue}}})
	default:
		return fmt.Errorf("%w: %T", apperrors.ErrUnsupportedPatch, patch)
	}
}

// applyOperators implements the subset of document update operators used by
// the application: $set (including "array.$.field"), $push and $pull.
func applyOperators(r backend.Record, filter backend.Filter, ops backend.NativeOperators) error {
	for op, arg := range ops {
		fields, ok := arg.(map[string]any)
		if !ok {
			return fmt.Errorf("operator %s: expected document, got %T", op, arg)
		}
		for path, v := range fields {
			switch op {
			case "$set":
				if err := setPath(r, filter, path, copyValue(v)); err != nil {
					return err
				}
			case "$push":
				arr, _ := r[path].([]any)
				r[path] = append(arr, copyValue(v))
			case "$pull":
				arr, _ := r[path].([]any)
				kept := make([]any, 0, len(arr))
				for _, el := range arr {
					if !pullMatches(el, v) {
						kept = append(kept, el)
					}
				}
				r[path] = kept
			default:
				return fmt.Errorf("unsupported operator %s", op)
			}
		}
	}
	return nil
}

func setPath(r backend.Record, filter backend.Filter, path string, v any) error {
	array, field, positional := strings.Cut(path, ".$.")
	if !positional {
		r[path] = v
		return nil
	}
	arr, _ := r[array].([]any)
	for _, t := range filter.Terms() {
		prefix := array + "."
		if !strings.HasPrefix(t.Field, prefix) {
			continue
		}
		key := strings.TrimPrefix(t.Field, prefix)
		for _, el := range arr {
			m, ok := el.(map[string]any)
			if ok && backend.ValuesEqual(m[key], t.Value) {
				m[field] = v
				return nil
			}
		}
	}
	return fmt.Errorf("positional update %s: no element matched the filter", path)
}

func pullMatches(el, cond any) bool {
	condMap, ok := cond.(map[string]any)
	if !ok {
		return backend.ValuesEqual(el, cond)
	}
	m, ok := el.(map[string]any)
	if !ok {
		return false
	}
	for k, want := range condMap {
		if !backend.ValuesEqual(m[k], want) {
			return false
		}
	}
	return true
}

func deepCopy(r backend.Record) backend.Record {
	out := make(backend.Record, len(r))
	for k, v := range r {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = copyValue(e)
		}
		return m
	case backend.Record:
		return map[string]any(deepCopy(t))
	case []any:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = copyValue(e)
		}
		return s
	case []map[string]any:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = copyValue(e)
		}
		return s
	case []string:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = e
		}
		return s
	default:
		return v
	}
}
