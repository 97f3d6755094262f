package rules

// Extension is a primitive bound to concrete parameters under a unique id
// within its rule block — a single logical check such as "RSI > 30".
type Extension struct {
	ID            string
	PrimitiveName string
	Params        map[string]any

	prim          *Primitive
	accountFields []string
}

// NewExtension resolves the primitive, validates the parameters, and folds
// any field/fields param references into the extension's account field
// requirements. All failures happen here, at construction, so a rule is
// either fully loadable or rejected.
func NewExtension(id, primitiveName string, params map[string]any, reg *Registry) (*Extension, error) {
	if id == "" {
		return nil, configErrorf("extension with primitive %q has no id", primitiveName)
	}
	prim, err := reg.Get(primitiveName)
	if err != nil {
		return nil, err
	}
	if prim.ValidateParams != nil {
		if err := prim.ValidateParams(params); err != nil {
			return nil, configErrorf("extension %q (%s): %v", id, primitiveName, err)
		}
	}

	// The primitive's declared account requirements plus any field names the
	// parameters reference, deduplicated. The primitive itself is shared and
	// never mutated.
	seen := make(map[string]struct{})
	var fields []string
	add := func(f string) {
		if _, dup := seen[f]; dup || f == "" {
			return
		}
		seen[f] = struct{}{}
		fields = append(fields, f)
	}
	for _, f := range prim.RequiredAccountFields {
		add(f)
	}
	for _, key := range []string{"field", "fields"} {
		switch v := params[key].(type) {
		case string:
			add(v)
		case []any:
			for _, item := range v {
				if s, ok := item.(string); ok {
					add(s)
				}
			}
		}
	}

	return &Extension{
		ID:            id,
		PrimitiveName: primitiveName,
		Params:        params,
		prim:          prim,
		accountFields: fields,
	}, nil
}

// Evaluate runs the bound primitive against the context.
func (e *Extension) Evaluate(ctx *EvalContext) (bool, error) {
	return e.prim.Eval(e.Params, ctx)
}

// AccountFields returns the broker fields this extension needs hydrated.
func (e *Extension) AccountFields() []string {
	return e.accountFields
}

// Primitive returns the resolved primitive definition.
func (e *Extension) Primitive() *Primitive {
	return e.prim
}
