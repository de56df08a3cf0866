package namespace

import "fmt"

// Definition is a constant a native extension declares it will define.
type Definition struct {
	Name       string // qualified, e.g. "Zlib::Error"
	Kind       Kind   // KindClass or KindModule
	Superclass string // qualified superclass name, classes only
}

// Class declares a class definition.
func Class(name, superclass string) Definition {
	return Definition{Name: name, Kind: KindClass, Superclass: superclass}
}

// Module declares a module definition.
func Module(name string) Definition {
	return Definition{Name: name, Kind: KindModule}
}

// Plan is the validated result of a Check. Nothing is defined until Apply.
type Plan struct {
	ns       *Namespace
	defs     []Definition
	declared []string
	staged   map[string]Definition
}

// Check validates defs, in order, against ns without mutating it. Each
// definition may rely on ones declared before it in the same batch.
//
// The returned error is a *TypeError when an existing constant (or its
// enclosing scope) has the wrong kind, or when a top-level class does not
// descend from the expected superclass; it is a *NameError when a nested
// class exists with the wrong lineage or a scope is missing.
func Check(ns *Namespace, defs []Definition) (*Plan, error) {
	p := &Plan{ns: ns, staged: make(map[string]Definition, len(defs))}
	for _, d := range defs {
		if err := p.check(d); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Plan) check(d Definition) error {
	if d.Kind != KindClass && d.Kind != KindModule {
		return fmt.Errorf("definition %s: unsupported kind %s", d.Name, d.Kind)
	}
	if err := ValidateName(d.Name); err != nil {
		return err
	}
	p.declared = append(p.declared, d.Name)

	outer, _ := Split(d.Name)
	if outer != "" {
		if err := p.checkScope(outer); err != nil {
			return err
		}
	}

	if staged, ok := p.staged[d.Name]; ok {
		if staged.Kind != d.Kind {
			return kindError(d)
		}
		if d.Kind == KindClass && d.Superclass != "" && staged.Superclass != d.Superclass {
			return lineageError(d, outer)
		}
		return nil
	}

	var super *Constant
	superStaged := false
	if d.Kind == KindClass && d.Superclass != "" {
		var err error
		if super, err = p.resolveSuperclass(d); err != nil {
			return err
		}
		superStaged = super == nil
	}

	existing, ok := p.ns.Lookup(d.Name)
	if !ok {
		p.staged[d.Name] = d
		p.defs = append(p.defs, d)
		return nil
	}
	if existing.Kind() != d.Kind {
		return kindError(d)
	}
	// An existing class cannot descend from a superclass this batch has yet
	// to create.
	if superStaged || (super != nil && !existing.DescendsFrom(super)) {
		return lineageError(d, outer)
	}
	return nil
}

// checkScope verifies each enclosing scope of a definition, outermost first.
// The first segment that exists but cannot hold constants is a TypeError;
// a segment that is neither defined nor staged is a NameError.
func (p *Plan) checkScope(outer string) error {
	for _, prefix := range Prefixes(outer) {
		if _, ok := p.staged[prefix]; ok {
			continue
		}
		scope, ok := p.ns.Lookup(prefix)
		if !ok {
			return missingScope(prefix)
		}
		if !scope.IsScope() {
			return notAScope(prefix)
		}
	}
	return nil
}

// resolveSuperclass returns the existing superclass, or nil when it is staged
// in this batch.
func (p *Plan) resolveSuperclass(d Definition) (*Constant, error) {
	if staged, ok := p.staged[d.Superclass]; ok {
		if staged.Kind != KindClass {
			return nil, &TypeError{Name: d.Superclass, Message: "superclass must be a class"}
		}
		return nil, nil
	}
	super, ok := p.ns.Lookup(d.Superclass)
	if !ok {
		return nil, &NameError{Name: d.Superclass, Message: "uninitialized constant " + d.Superclass}
	}
	if super.Kind() != KindClass {
		return nil, &TypeError{Name: d.Superclass, Message: "superclass must be a class"}
	}
	return super, nil
}

func kindError(d Definition) error {
	return &TypeError{Name: d.Name, Message: fmt.Sprintf("%s is not a %s", d.Name, d.Kind)}
}

func lineageError(d Definition, outer string) error {
	if outer == "" {
		return &TypeError{Name: d.Name, Message: fmt.Sprintf("superclass mismatch for class %s", d.Name)}
	}
	return &NameError{Name: d.Name, Message: fmt.Sprintf("%s is already defined", d.Name)}
}

// Pending lists the definitions Apply will create, in order.
func (p *Plan) Pending() []Definition {
	return append([]Definition(nil), p.defs...)
}

// Apply creates every staged constant and returns all declared constants by
// name, including ones that already existed.
func (p *Plan) Apply() (map[string]*Constant, error) {
	for _, d := range p.defs {
		var err error
		switch d.Kind {
		case KindModule:
			_, err = p.ns.DefineModule(d.Name)
		case KindClass:
			var super *Constant
			if d.Superclass != "" {
				super, _ = p.ns.Lookup(d.Superclass)
			}
			_, err = p.ns.DefineClass(d.Name, super)
		}
		if err != nil {
			return nil, fmt.Errorf("defining %s: %w", d.Name, err)
		}
	}

	out := make(map[string]*Constant, len(p.declared))
	for _, name := range p.declared {
		if c, ok := p.ns.Lookup(name); ok {
			out[name] = c
		}
	}
	return out, nil
}
