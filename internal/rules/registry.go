package rules

// EvalFunc is a pure evaluator: it reads params and context, mutates neither,
// and reports whether the check passed. Missing required data surfaces as a
// typed error, never as a silent default.
type EvalFunc func(params map[string]any, ctx *EvalContext) (bool, error)

// Primitive is the base unit of rule logic: a named evaluator plus its
// declared data requirements and a parameter validator run when an extension
// binds to it.
type Primitive struct {
	Name string
	Eval EvalFunc
	// RequiredContext lists market fields the evaluator reads.
	RequiredContext []string
	// RequiredAccountFields lists broker fields the evaluator reads.
	RequiredAccountFields []string
	// ValidateParams rejects malformed parameter maps at extension
	// construction so rules fail at load time, not mid-evaluation.
	ValidateParams func(params map[string]any) error
}

// Registry maps primitive names to their implementations. It is populated
// during single-threaded startup and read-only afterwards; it is passed
// explicitly to everything that resolves primitives rather than living as
// package state.
type Registry struct {
	prims map[string]*Primitive
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{prims: make(map[string]*Primitive)}
}

// Register adds a primitive. Re-registering a name is a configuration hazard
// and is rejected outright instead of silently overwriting.
func (r *Registry) Register(p *Primitive) error {
	if p == nil || p.Name == "" {
		return configErrorf("primitive must have a name")
	}
	if p.Eval == nil {
		return configErrorf("primitive %q has no evaluator", p.Name)
	}
	if _, exists := r.prims[p.Name]; exists {
		return configErrorf("primitive %q already registered", p.Name)
	}
	r.prims[p.Name] = p
	return nil
}

// Get resolves a primitive by name. Unknown names abort extension
// construction immediately; the failure is never deferred to evaluation time.
func (r *Registry) Get(name string) (*Primitive, error) {
	p, ok := r.prims[name]
	if !ok {
		return nil, configErrorf("primitive %q not found in registry", name)
	}
	return p, nil
}

// Names returns the registered primitive names, for diagnostics.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.prims))
	for n := range r.prims {
		names = append(names, n)
	}
	return names
}
