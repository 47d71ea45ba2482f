package backend

// Patch is the sum type of update instructions. Adapters switch over the
// concrete variants and return apperrors.ErrUnsupportedPatch for the ones
// they cannot apply.
type Patch interface {
	isPatch()
}

// ReplaceFields overwrites the named attributes. Supported by every backend.
type ReplaceFields map[string]any

// NativeOperators is a backend-native update document (e.g. {"$push": ...})
// passed through unmodified. Document backend only.
type NativeOperators map[string]any

// ElementPatch sets attributes on the single element of an embedded array
// whose MatchField equals MatchValue, e.g. one member of a project.
type ElementPatch struct {
	Array      string
	MatchField string
	MatchValue any
	Fields     map[string]any
}

// ElementAppend adds one element to an embedded array.
type ElementAppend struct {
	Array   string
	Element map[string]any
}

// ElementRemove removes the elements of an embedded array whose MatchField
// equals MatchValue.
type ElementRemove struct {
	Array      string
	MatchField string
	MatchValue any
}

func (ReplaceFields) isPatch()   {}
func (NativeOperators) isPatch() {}
func (ElementPatch) isPatch()    {}
func (ElementAppend) isPatch()   {}
func (ElementRemove) isPatch()   {}
