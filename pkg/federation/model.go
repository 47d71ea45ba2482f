// Package federation presents one logical entity spread over several
// backend connections. Reads union the backends, writes are routed to the
// backend that owns the record.
//
// Operations are not transactional across backends: Update reads the
// record, then writes to its owning backend, so concurrent updates are
// last-writer-wins.
package federation

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ekaya-inc/ekaya-datahub/pkg/adapters/backend"
	"github.com/ekaya-inc/ekaya-datahub/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-datahub/pkg/models"
)

// BackendKindField is the record attribute holding its backend affinity.
const BackendKindField = "backendKind"

// EmbeddedCollection describes an array attribute that the document backend
// stores inline and the relational backend stores as rows of an auxiliary
// table, e.g. project members in "project_members".
type EmbeddedCollection struct {
	// Field is the array attribute on the parent record.
	Field string
	// Table is the auxiliary relational table.
	Table string
	// ParentKey is the auxiliary column referencing the parent id.
	ParentKey string
	// KeyField identifies an element within one parent.
	KeyField string
}

// Definition configures a federated entity.
type Definition struct {
	Name string
	// Object is the table/collection name. Defaults to the plural of Name.
	Object string
	// ConnectionIDs restricts the entity to these connections, in order.
	// Empty means every connected backend.
	ConnectionIDs []string
	// Kinds restricts the entity to backends of these kinds. Empty means any.
	Kinds    []models.BackendKind
	Embedded []EmbeddedCollection
}

// BackendMatch reports how many records one backend deleted.
type BackendMatch struct {
	ConnectionID string             `json:"connection_id"`
	Kind         models.BackendKind `json:"kind"`
	Count        int64              `json:"count"`
}

// DeleteResult reports which backends held matching records.
type DeleteResult struct {
	Total   int64          `json:"total"`
	Matches []BackendMatch `json:"matches"`
}

// Model is a federated entity.
type Model struct {
	def         Definition
	connections *backend.ConnectionRegistry
	logger      *zap.Logger
}

// NewModel creates a model over the given registry.
func NewModel(def Definition, connections *backend.ConnectionRegistry, logger *zap.Logger) *Model {
	if def.Object == "" {
		def.Object = defaultObjectName(def.Name)
	}
	return &Model{
		def:         def,
		connections: connections,
		logger:      logger.Named("federation").With(zap.String("entity", def.Name)),
	}
}

// Name returns the entity name.
func (m *Model) Name() string {
	return m.def.Name
}

// Object returns the backing table/collection name.
func (m *Model) Object() string {
	return m.def.Object
}

// targets returns the currently connected backends for this model, in order.
func (m *Model) targets() []*backend.Connection {
	ids := m.def.ConnectionIDs
	if len(ids) == 0 {
		ids = m.connections.ListConnected()
	}

	out := make([]*backend.Connection, 0, len(ids))
	for _, id := range ids {
		conn, err := m.connections.Get(id)
		if err != nil {
			continue
		}
		if !m.allowsKind(conn.Kind) {
			continue
		}
		out = append(out, conn)
	}
	return out
}

// eligible returns targets. A model pinned to backend kinds fails with
// ErrUnsupportedBackendKind when none of them is connected.
func (m *Model) eligible() ([]*backend.Connection, error) {
	targets := m.targets()
	if len(targets) == 0 && len(m.def.Kinds) > 0 {
		return nil, fmt.Errorf("%w: no %v backend connected for %s", apperrors.ErrUnsupportedBackendKind, m.def.Kinds, m.def.Name)
	}
	return targets, nil
}

func (m *Model) allowsKind(kind models.BackendKind) bool {
	if len(m.def.Kinds) == 0 {
		return true
	}
	for _, k := range m.def.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Find returns the union of matching records from every connected backend,
// in connection order. Records are not deduplicated.
func (m *Model) Find(ctx context.Context, filter backend.Filter) ([]backend.Record, error) {
	targets, err := m.eligible()
	if err != nil {
		return nil, err
	}
	results := make([][]backend.Record, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	for i, conn := range targets {
		g.Go(func() error {
			records, err := m.findOn(gctx, conn, filter)
			if err != nil {
				return fmt.Errorf("%s on %s: %w", m.def.Name, conn.ID, err)
			}
			results[i] = records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []backend.Record
	for _, records := range results {
		out = append(out, records...)
	}
	if out == nil {
		out = []backend.Record{}
	}
	return out, nil
}

func (m *Model) findOn(ctx context.Context, conn *backend.Connection, filter backend.Filter) ([]backend.Record, error) {
	records, err := m.findRaw(ctx, conn, filter)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		if err := m.hydrate(ctx, conn, rec); err != nil {
			return nil, err
		}
	}
	return records, nil
}

// FindOne returns the first match in connection order.
func (m *Model) FindOne(ctx context.Context, filter backend.Filter) (backend.Record, error) {
	rec, _, err := m.findOneWithConnection(ctx, filter)
	return rec, err
}

func (m *Model) findOneWithConnection(ctx context.Context, filter backend.Filter) (backend.Record, *backend.Connection, error) {
	targets, err := m.eligible()
	if err != nil {
		return nil, nil, err
	}
	for _, conn := range targets {
		rec, err := m.findOneRaw(ctx, conn, filter)
		if err != nil {
			return nil, nil, fmt.Errorf("%s on %s: %w", m.def.Name, conn.ID, err)
		}
		if rec == nil {
			continue
		}
		if err := m.hydrate(ctx, conn, rec); err != nil {
			return nil, nil, err
		}
		return rec, conn, nil
	}
	return nil, nil, fmt.Errorf("%s %s: %w", m.def.Name, filter, apperrors.ErrNotFound)
}

// Create stores rec on a backend chosen by its backendKind attribute. A
// record without one goes to the model's primary connection.
func (m *Model) Create(ctx context.Context, rec backend.Record) (backend.Record, error) {
	conn, err := m.routeCreate(rec)
	if err != nil {
		return nil, err
	}

	row := rec.Clone()
	var children map[string][]map[string]any
	if conn.Kind == models.BackendRelational {
		children = m.detachEmbedded(row)
	}

	created, err := conn.Adapter.Create(ctx, m.def.Object, row)
	if err != nil {
		return nil, fmt.Errorf("create %s on %s: %w", m.def.Name, conn.ID, err)
	}

	for _, emb := range m.def.Embedded {
		elems, ok := children[emb.Field]
		if !ok {
			continue
		}
		if err := m.insertChildren(ctx, conn, emb, created.ID(), elems); err != nil {
			return nil, err
		}
	}

	if err := m.hydrate(ctx, conn, created); err != nil {
		return nil, err
	}
	return created, nil
}

func (m *Model) routeCreate(rec backend.Record) (*backend.Connection, error) {
	targets, err := m.eligible()
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: no backend available for %s", apperrors.ErrConnectionNotFound, m.def.Name)
	}

	raw, hasKind := rec[BackendKindField]
	if !hasKind || raw == "" {
		for _, conn := range targets {
			if conn.IsPrimary {
				return conn, nil
			}
		}
		return targets[0], nil
	}

	kind, ok := models.ParseBackendKind(fmt.Sprint(raw))
	if !ok {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrUnsupportedBackendKind, raw)
	}

	var first *backend.Connection
	for _, conn := range targets {
		if conn.Kind != kind {
			continue
		}
		if conn.IsPrimary {
			return conn, nil
		}
		if first == nil {
			first = conn
		}
	}
	if first == nil {
		return nil, fmt.Errorf("%w: no %s backend connected for %s", apperrors.ErrUnsupportedBackendKind, kind, m.def.Name)
	}
	return first, nil
}

// Update locates the record, then applies patch on its owning backend
// addressed by native identity. Returns apperrors.ErrNotFound if nothing
// matches.
//
// On relational backends a ReplaceFields patch naming an embedded array
// rewrites every auxiliary row and is not atomic; ElementAppend and
// ElementRemove touch a single row.
func (m *Model) Update(ctx context.Context, filter backend.Filter, patch backend.Patch) (backend.Record, error) {
	existing, conn, err := m.findOneWithConnection(ctx, filter)
	if err != nil {
		return nil, err
	}
	id := existing.ID()

	var updated backend.Record
	if conn.Kind == models.BackendRelational {
		updated, err = m.updateRelational(ctx, conn, id, patch)
	} else {
		updated, err = conn.Adapter.Update(ctx, m.def.Object, backend.ByID(id), patch)
	}
	if err != nil {
		return nil, fmt.Errorf("update %s on %s: %w", m.def.Name, conn.ID, err)
	}
	if updated == nil {
		return nil, fmt.Errorf("%s %s: %w", m.def.Name, id, apperrors.ErrNotFound)
	}

	if err := m.hydrate(ctx, conn, updated); err != nil {
		return nil, err
	}
	return updated, nil
}

func (m *Model) updateRelational(ctx context.Context, conn *backend.Connection, id string, patch backend.Patch) (backend.Record, error) {
	switch p := patch.(type) {
	case backend.ElementPatch:
		emb, ok := m.embedded(p.Array)
		if !ok {
			return nil, fmt.Errorf("%w: %s has no embedded %q", apperrors.ErrUnsupportedPatch, m.def.Name, p.Array)
		}
		child, err := conn.Adapter.Update(ctx, emb.Table,
			backend.Where(emb.ParentKey, id).And(p.MatchField, p.MatchValue),
			backend.ReplaceFields(p.Fields),
		)
		if err != nil {
			return nil, err
		}
		if child == nil {
			return nil, nil
		}
		return conn.Adapter.FindOne(ctx, m.def.Object, backend.ByID(id))

	case backend.ElementAppend:
		emb, ok := m.embedded(p.Array)
		if !ok {
			return nil, fmt.Errorf("%w: %s has no embedded %q", apperrors.ErrUnsupportedPatch, m.def.Name, p.Array)
		}
		if err := m.insertChildren(ctx, conn, emb, id, []map[string]any{p.Element}); err != nil {
			return nil, err
		}
		return conn.Adapter.FindOne(ctx, m.def.Object, backend.ByID(id))

	case backend.ElementRemove:
		emb, ok := m.embedded(p.Array)
		if !ok {
			return nil, fmt.Errorf("%w: %s has no embedded %q", apperrors.ErrUnsupportedPatch, m.def.Name, p.Array)
		}
		if _, err := conn.Adapter.Delete(ctx, emb.Table,
			backend.Where(emb.ParentKey, id).And(p.MatchField, p.MatchValue)); err != nil {
			return nil, err
		}
		return conn.Adapter.FindOne(ctx, m.def.Object, backend.ByID(id))

	case backend.ReplaceFields:
		fields := backend.ReplaceFields{}
		for k, v := range p {
			fields[k] = v
		}
		for _, emb := range m.def.Embedded {
			raw, ok := fields[emb.Field]
			if !ok {
				continue
			}
			delete(fields, emb.Field)
			if _, err := conn.Adapter.Delete(ctx, emb.Table, backend.Where(emb.ParentKey, id)); err != nil {
				return nil, err
			}
			if err := m.insertChildren(ctx, conn, emb, id, toElements(raw)); err != nil {
				return nil, err
			}
		}
		if len(fields) == 0 {
			return conn.Adapter.FindOne(ctx, m.def.Object, backend.ByID(id))
		}
		return conn.Adapter.Update(ctx, m.def.Object, backend.ByID(id), fields)

	default:
		return conn.Adapter.Update(ctx, m.def.Object, backend.ByID(id), patch)
	}
}

// Delete removes matching records from every connected backend and reports
// which backends held them. Relational auxiliary rows go first.
func (m *Model) Delete(ctx context.Context, filter backend.Filter) (*DeleteResult, error) {
	targets, err := m.eligible()
	if err != nil {
		return nil, err
	}
	matches := make([]BackendMatch, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	for i, conn := range targets {
		g.Go(func() error {
			n, err := m.deleteOn(gctx, conn, filter)
			if err != nil {
				return fmt.Errorf("delete %s on %s: %w", m.def.Name, conn.ID, err)
			}
			matches[i] = BackendMatch{ConnectionID: conn.ID, Kind: conn.Kind, Count: n}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &DeleteResult{Matches: []BackendMatch{}}
	for _, match := range matches {
		if match.Count == 0 {
			continue
		}
		result.Total += match.Count
		result.Matches = append(result.Matches, match)
	}
	if len(result.Matches) > 1 {
		m.logger.Warn("delete matched records on several backends",
			zap.String("filter", filter.String()),
			zap.Any("matches", result.Matches),
		)
	}
	return result, nil
}

func (m *Model) deleteOn(ctx context.Context, conn *backend.Connection, filter backend.Filter) (int64, error) {
	if conn.Kind != models.BackendRelational || len(m.def.Embedded) == 0 {
		return conn.Adapter.Delete(ctx, m.def.Object, filter)
	}

	parents, err := m.findRaw(ctx, conn, filter)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, parent := range parents {
		for _, emb := range m.def.Embedded {
			if _, err := conn.Adapter.Delete(ctx, emb.Table, backend.Where(emb.ParentKey, parent.ID())); err != nil {
				return total, err
			}
		}
		n, err := conn.Adapter.Delete(ctx, m.def.Object, backend.ByID(parent.ID()))
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// findRaw reads matching records without hydration. On relational backends
// terms addressing embedded elements ("members.userId") are resolved against
// the auxiliary table first.
func (m *Model) findRaw(ctx context.Context, conn *backend.Connection, filter backend.Filter) ([]backend.Record, error) {
	if conn.Kind != models.BackendRelational {
		return conn.Adapter.Find(ctx, m.def.Object, filter)
	}
	parentFilter, childFilters := m.splitEmbeddedTerms(filter)
	if len(childFilters) == 0 {
		return conn.Adapter.Find(ctx, m.def.Object, filter)
	}

	parentIDs, err := m.parentIDs(ctx, conn, childFilters)
	if err != nil {
		return nil, err
	}
	out := make([]backend.Record, 0, len(parentIDs))
	for _, id := range parentIDs {
		rec, err := conn.Adapter.FindOne(ctx, m.def.Object, parentFilter.And(backend.IDField, id))
		if err != nil {
			return nil, err
		}
		if rec != nil {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *Model) findOneRaw(ctx context.Context, conn *backend.Connection, filter backend.Filter) (backend.Record, error) {
	if conn.Kind == models.BackendRelational {
		if _, childFilters := m.splitEmbeddedTerms(filter); len(childFilters) > 0 {
			records, err := m.findRaw(ctx, conn, filter)
			if err != nil || len(records) == 0 {
				return nil, err
			}
			return records[0], nil
		}
	}
	return conn.Adapter.FindOne(ctx, m.def.Object, filter)
}

type childFilter struct {
	emb    EmbeddedCollection
	filter backend.Filter
}

// splitEmbeddedTerms separates terms on embedded elements from terms on the
// parent record.
func (m *Model) splitEmbeddedTerms(filter backend.Filter) (backend.Filter, []childFilter) {
	parent := backend.All()
	var children []childFilter
	for _, t := range filter.Terms() {
		field, sub, nested := strings.Cut(t.Field, ".")
		emb, isEmbedded := m.embedded(field)
		if !nested || !isEmbedded {
			parent = parent.And(t.Field, t.Value)
			continue
		}
		found := false
		for i := range children {
			if children[i].emb.Field == emb.Field {
				children[i].filter = children[i].filter.And(sub, t.Value)
				found = true
			}
		}
		if !found {
			children = append(children, childFilter{emb: emb, filter: backend.Where(sub, t.Value)})
		}
	}
	return parent, children
}

// parentIDs returns the parent ids referenced by auxiliary rows matching
// every child filter, in first-seen order.
func (m *Model) parentIDs(ctx context.Context, conn *backend.Connection, children []childFilter) ([]string, error) {
	var ids []string
	for i, c := range children {
		rows, err := conn.Adapter.Find(ctx, c.emb.Table, c.filter)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", c.emb.Table, err)
		}
		seen := make(map[string]bool, len(rows))
		var current []string
		for _, row := range rows {
			id := fmt.Sprint(row[c.emb.ParentKey])
			if !seen[id] {
				seen[id] = true
				current = append(current, id)
			}
		}
		if i == 0 {
			ids = current
			continue
		}
		kept := ids[:0]
		for _, id := range ids {
			if seen[id] {
				kept = append(kept, id)
			}
		}
		ids = kept
	}
	return ids, nil
}

func (m *Model) embedded(field string) (EmbeddedCollection, bool) {
	for _, emb := range m.def.Embedded {
		if emb.Field == field {
			return emb, true
		}
	}
	return EmbeddedCollection{}, false
}

// detachEmbedded removes embedded arrays from row and returns them.
func (m *Model) detachEmbedded(row backend.Record) map[string][]map[string]any {
	out := make(map[string][]map[string]any)
	for _, emb := range m.def.Embedded {
		raw, ok := row[emb.Field]
		if !ok {
			continue
		}
		delete(row, emb.Field)
		out[emb.Field] = toElements(raw)
	}
	return out
}

func (m *Model) insertChildren(ctx context.Context, conn *backend.Connection, emb EmbeddedCollection, parentID string, elems []map[string]any) error {
	for _, el := range elems {
		row := backend.Record{}
		for k, v := range el {
			row[k] = v
		}
		row[emb.ParentKey] = parentID
		if _, err := conn.Adapter.Create(ctx, emb.Table, row); err != nil {
			return fmt.Errorf("create %s row: %w", emb.Table, err)
		}
	}
	return nil
}

// hydrate attaches embedded arrays read from auxiliary tables to a
// relational record. Document records already carry them inline.
func (m *Model) hydrate(ctx context.Context, conn *backend.Connection, rec backend.Record) error {
	if conn.Kind != models.BackendRelational {
		return nil
	}
	for _, emb := range m.def.Embedded {
		rows, err := conn.Adapter.Find(ctx, emb.Table, backend.Where(emb.ParentKey, rec.ID()))
		if err != nil {
			return fmt.Errorf("load %s: %w", emb.Table, err)
		}
		elems := make([]any, 0, len(rows))
		for _, row := range rows {
			el := make(map[string]any, len(row))
			for k, v := range row {
				if k == backend.IDField || k == emb.ParentKey {
					continue
				}
				el[k] = v
			}
			elems = append(elems, el)
		}
		rec[emb.Field] = elems
	}
	return nil
}

func toElements(raw any) []map[string]any {
	switch t := raw.(type) {
	case []map[string]any:
		return t
	case []any:
		out := make([]map[string]any, 0, len(t))
		for _, el := range t {
			if m, ok := el.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}
