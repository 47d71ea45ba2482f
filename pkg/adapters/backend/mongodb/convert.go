package mongodb

import (
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/ekaya-inc/ekaya-datahub/pkg/adapters/backend"
	"github.com/ekaya-inc/ekaya-datahub/pkg/apperrors"
)

const nativeIDField = "_id"

// toBSONFilter translates a filter into a query document. The generic id
// term becomes _id; ok is false when the id is not a valid ObjectID, which
// callers treat as "no match".
func toBSONFilter(filter backend.Filter) (q bson.D, ok bool) {
	q = bson.D{}
	for _, t := range filter.Terms() {
		if t.Field != backend.IDField {
			q = append(q, bson.E{Key: t.Field, Value: t.Value})
			continue
		}
		s, isString := t.Value.(string)
		if !isString {
			return nil, false
		}
		oid, err := primitive.ObjectIDFromHex(s)
		if err != nil {
			return nil, false
		}
		q = append(q, bson.E{Key: nativeIDField, Value: oid})
	}
	return q, true
}

// toUpdateDocument translates a patch into an update document plus any
// extra filter terms the update needs (the positional operator requires the
// array element to be matched by the query).
func toUpdateDocument(patch backend.Patch) (bson.M, []bson.E, error) {
	switch p := patch.(type) {
	case backend.ReplaceFields:
		set := bson.M{}
		for k, v := range p {
			if k == backend.IDField || k == nativeIDField {
				continue
			}
			set[k] = v
		}
		if len(set) == 0 {
			return nil, nil, nil
		}
		return bson.M{"$set": set}, nil, nil
	case backend.NativeOperators:
		if len(p) == 0 {
			return nil, nil, nil
		}
		update := bson.M{}
		for op, arg := range p {
			if !strings.HasPrefix(op, "$") {
				return nil, nil, fmt.Errorf("%w: %q is not an update operator", apperrors.ErrInvalidInput, op)
			}
			update[op] = arg
		}
		return update, nil, nil
	case backend.ElementPatch:
		if p.Array == "" || p.MatchField == "" || len(p.Fields) == 0 {
			return nil, nil, fmt.Errorf("%w: incomplete element patch", apperrors.ErrInvalidInput)
		}
		set := bson.M{}
		for k, v := range p.Fields {
			set[p.Array+".$."+k] = v
		}
		match := []bson.E{{Key: p.Array + "." + p.MatchField, Value: p.MatchValue}}
		return bson.M{"$set": set}, match, nil
	case backend.ElementAppend:
		if p.Array == "" || len(p.Element) == 0 {
			return nil, nil, fmt.Errorf("%w: incomplete element append", apperrors.ErrInvalidInput)
		}
		return bson.M{"$push": bson.M{p.Array: bson.M(p.Element)}}, nil, nil
	case backend.ElementRemove:
		if p.Array == "" || p.MatchField == "" {
			return nil, nil, fmt.Errorf("%w: incomplete element remove", apperrors.ErrInvalidInput)
		}
		return bson.M{"$pull": bson.M{p.Array: bson.M{p.MatchField: p.MatchValue}}}, nil, nil
	default:
		return nil, nil, fmt.Errorf("%w: %T", apperrors.ErrUnsupportedPatch, patch)
	}
}

// toDocument prepares a record for insertion, assigning a fresh ObjectID
// unless the record already carries a valid one.
func toDocument(rec backend.Record) bson.M {
	doc := bson.M{}
	for k, v := range rec {
		if k == backend.IDField {
			continue
		}
		doc[k] = v
	}
	if oid, err := primitive.ObjectIDFromHex(rec.ID()); err == nil {
		doc[nativeIDField] = oid
	} else {
		doc[nativeIDField] = primitive.NewObjectID()
	}
	return doc
}

// fromDocument normalizes a decoded document: _id becomes the string id and
// driver types become plain Go values.
func fromDocument(doc bson.M) backend.Record {
	rec := make(backend.Record, len(doc))
	for k, v := range doc {
		if k == nativeIDField {
			rec[backend.IDField] = normalizeValue(v)
			continue
		}
		rec[k] = normalizeValue(v)
	}
	if id, ok := rec[backend.IDField]; ok {
		if _, isString := id.(string); !isString {
			rec[backend.IDField] = fmt.Sprint(id)
		}
	}
	return rec
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case primitive.ObjectID:
		return t.Hex()
	case primitive.DateTime:
		return t.Time().UTC()
	case primitive.M:
		return normalizeMap(t)
	case map[string]any:
		return normalizeMap(t)
	case primitive.D:
		m := make(map[string]any, len(t))
		for _, e := range t {
			m[e.Key] = normalizeValue(e.Value)
		}
		return m
	case primitive.A:
		return normalizeSlice(t)
	case []any:
		return normalizeSlice(t)
	case primitive.Decimal128:
		return t.String()
	case int32:
		return int64(t)
	default:
		return v
	}
}

func normalizeMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeSlice(s []any) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = normalizeValue(v)
	}
	return out
}
