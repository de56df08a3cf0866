// Package namespace models the constant namespace that scripts and native
// extensions define classes, modules and plain constants into.
//
// Entries are tagged explicitly with their kind and superclass chain so that
// conflict detection is a structural query rather than runtime inspection.
package namespace

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Separator joins the segments of a qualified constant name.
const Separator = "::"

// Kind is the fundamental kind of a constant.
type Kind int

// Constant kinds.
const (
	KindValue Kind = iota
	KindModule
	KindClass
)

func (k Kind) String() string {
	switch k {
	case KindModule:
		return "module"
	case KindClass:
		return "class"
	default:
		return "value"
	}
}

// Constant is a named entry in the namespace. Modules and classes hold nested
// constants; values carry an opaque payload.
type Constant struct {
	name   string
	kind   Kind
	super  *Constant
	value  any
	parent *Constant

	children map[string]*Constant
	order    []string
}

func newScope(name string, kind Kind, super, parent *Constant) *Constant {
	return &Constant{
		name:     name,
		kind:     kind,
		super:    super,
		parent:   parent,
		children: make(map[string]*Constant),
	}
}

// Name returns the qualified name ("Zlib::Error").
func (c *Constant) Name() string { return c.name }

// Kind returns the constant's kind.
func (c *Constant) Kind() Kind { return c.kind }

// Superclass returns the direct superclass of a class, or nil.
func (c *Constant) Superclass() *Constant { return c.super }

// Value returns the payload of a value constant.
func (c *Constant) Value() any { return c.value }

// IsScope reports whether the constant can hold nested constants.
func (c *Constant) IsScope() bool {
	return c.kind == KindModule || c.kind == KindClass
}

// Child returns a directly nested constant.
func (c *Constant) Child(name string) (*Constant, bool) {
	if c.children == nil {
		return nil, false
	}
	child, ok := c.children[name]
	return child, ok
}

// ChildNames lists nested constant names in definition order.
func (c *Constant) ChildNames() []string {
	return append([]string(nil), c.order...)
}

// Ancestors returns the superclass chain, nearest first. Modules and values
// have no ancestors.
func (c *Constant) Ancestors() []*Constant {
	var chain []*Constant
	for s := c.super; s != nil; s = s.super {
		chain = append(chain, s)
	}
	return chain
}

// DescendsFrom reports whether base appears in c's superclass chain.
func (c *Constant) DescendsFrom(base *Constant) bool {
	for _, a := range c.Ancestors() {
		if a == base {
			return true
		}
	}
	return false
}

func (c *Constant) String() string {
	switch c.kind {
	case KindClass:
		if c.super != nil {
			return fmt.Sprintf("class %s < %s", c.name, c.super.name)
		}
		return "class " + c.name
	case KindModule:
		return "module " + c.name
	default:
		return fmt.Sprintf("%s = %v", c.name, c.value)
	}
}

func (c *Constant) set(leaf string, child *Constant) {
	if _, exists := c.children[leaf]; !exists {
		c.order = append(c.order, leaf)
	}
	c.children[leaf] = child
}

// Namespace is a tree of constants rooted at Object. A wrapped namespace
// keeps its own definitions and falls back to its parent for lookups.
type Namespace struct {
	mu     sync.RWMutex
	root   *Constant
	parent *Namespace
	label  string
}

// New returns a global namespace bootstrapped with the core hierarchy.
func New() *Namespace {
	basic := newScope("BasicObject", KindClass, nil, nil)
	object := newScope("Object", KindClass, basic, nil)
	ns := &Namespace{root: object, label: "main"}

	object.set("BasicObject", basic)
	object.set("Object", object)
	object.set("Kernel", newScope("Kernel", KindModule, nil, object))
	object.set("Comparable", newScope("Comparable", KindModule, nil, object))

	exception := newScope("Exception", KindClass, object, object)
	object.set("Exception", exception)
	object.set("StandardError", newScope("StandardError", KindClass, exception, object))

	io := newScope("IO", KindClass, object, object)
	object.set("IO", io)
	object.set("File", newScope("File", KindClass, io, object))
	return ns
}

// NewWrapped returns an anonymous namespace layered over parent. Definitions
// made through it never reach parent.
func NewWrapped(parent *Namespace, label string) *Namespace {
	return &Namespace{
		root:   newScope("", KindModule, nil, nil),
		parent: parent,
		label:  label,
	}
}

// Wrapped reports whether the namespace is an anonymous wrapper.
func (ns *Namespace) Wrapped() bool { return ns.parent != nil }

// Parent returns the namespace a wrapper falls back to, or nil.
func (ns *Namespace) Parent() *Namespace { return ns.parent }

// Label is a human readable name for logs.
func (ns *Namespace) Label() string { return ns.label }

// Object returns the root class of the global namespace.
func (ns *Namespace) Object() *Constant {
	if ns.parent != nil {
		return ns.parent.Object()
	}
	return ns.root
}

// Lookup resolves a qualified name. Top-level names defined locally win over
// names inherited from a parent namespace.
func (ns *Namespace) Lookup(name string) (*Constant, bool) {
	ns.mu.RLock()
	c, ok := walk(ns.root, name)
	ns.mu.RUnlock()
	if ok {
		return c, true
	}
	if ns.parent != nil {
		return ns.parent.Lookup(name)
	}
	return nil, false
}

// Defined reports whether name resolves.
func (ns *Namespace) Defined(name string) bool {
	_, ok := ns.Lookup(name)
	return ok
}

// Names lists the top-level constants defined directly in this namespace,
// sorted.
func (ns *Namespace) Names() []string {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	names := ns.root.ChildNames()
	sort.Strings(names)
	return names
}

// SetConst binds a value constant, replacing an existing binding of the same
// name. The enclosing scope must exist.
func (ns *Namespace) SetConst(name string, value any) (*Constant, error) {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	scope, leaf, err := ns.scopeFor(name)
	if err != nil {
		return nil, err
	}
	c := &Constant{name: name, kind: KindValue, value: value, parent: scope}
	scope.set(leaf, c)
	return c, nil
}

// DefineModule opens module name, creating it if needed. An existing
// constant of another kind is a TypeError.
func (ns *Namespace) DefineModule(name string) (*Constant, error) {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	scope, leaf, err := ns.scopeFor(name)
	if err != nil {
		return nil, err
	}
	if existing, ok := scope.Child(leaf); ok {
		if existing.kind != KindModule {
			return nil, &TypeError{Name: name, Message: fmt.Sprintf("%s is not a module", name)}
		}
		return existing, nil
	}
	m := newScope(name, KindModule, nil, scope)
	scope.set(leaf, m)
	return m, nil
}

// DefineClass opens class name, creating it with superclass super (Object
// when nil). Reopening with a different explicit superclass is a TypeError.
func (ns *Namespace) DefineClass(name string, super *Constant) (*Constant, error) {
	if super != nil && super.kind != KindClass {
		return nil, &TypeError{Name: super.name, Message: "superclass must be a class"}
	}

	ns.mu.Lock()
	defer ns.mu.Unlock()

	scope, leaf, err := ns.scopeFor(name)
	if err != nil {
		return nil, err
	}
	if existing, ok := scope.Child(leaf); ok {
		if existing.kind != KindClass {
			return nil, &TypeError{Name: name, Message: fmt.Sprintf("%s is not a class", name)}
		}
		if super != nil && existing.super != super {
			return nil, &TypeError{Name: name, Message: fmt.Sprintf("superclass mismatch for class %s", name)}
		}
		return existing, nil
	}
	if super == nil {
		super = ns.Object()
	}
	c := newScope(name, KindClass, super, scope)
	scope.set(leaf, c)
	return c, nil
}

// scopeFor returns the scope that will hold name and the leaf segment.
// Caller holds ns.mu.
func (ns *Namespace) scopeFor(name string) (*Constant, string, error) {
	if err := ValidateName(name); err != nil {
		return nil, "", err
	}
	outer, leaf := Split(name)
	if outer == "" {
		return ns.root, leaf, nil
	}

	var scope *Constant
	for _, prefix := range Prefixes(outer) {
		c, ok := walk(ns.root, prefix)
		if !ok && ns.parent != nil {
			c, ok = ns.parent.Lookup(prefix)
		}
		if !ok {
			return nil, "", missingScope(prefix)
		}
		if !c.IsScope() {
			return nil, "", notAScope(prefix)
		}
		scope = c
	}
	return scope, leaf, nil
}

// Prefixes lists the enclosing names of a qualified name, outermost first:
// "A::B::C" -> ["A", "A::B", "A::B::C"].
func Prefixes(name string) []string {
	segs := strings.Split(name, Separator)
	out := make([]string, len(segs))
	for i := range segs {
		out[i] = strings.Join(segs[:i+1], Separator)
	}
	return out
}

func missingScope(name string) error {
	return &NameError{Name: name, Message: "uninitialized constant " + name}
}

func notAScope(name string) error {
	return &TypeError{Name: name, Message: fmt.Sprintf("%s is not a class/module", name)}
}

func walk(root *Constant, name string) (*Constant, bool) {
	if name == "" {
		return nil, false
	}
	cur := root
	for _, seg := range strings.Split(name, Separator) {
		if !cur.IsScope() {
			return nil, false
		}
		next, ok := cur.Child(seg)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// Split separates a qualified name into its enclosing scope and leaf:
// "Zlib::Error" -> ("Zlib", "Error"); "Zlib" -> ("", "Zlib").
func Split(name string) (outer, leaf string) {
	i := strings.LastIndex(name, Separator)
	if i < 0 {
		return "", name
	}
	return name[:i], name[i+len(Separator):]
}

// ValidateName checks that every segment of name is a constant name: it
// starts with an uppercase ASCII letter followed by letters, digits or
// underscores.
func ValidateName(name string) error {
	if name == "" {
		return &NameError{Name: name, Message: "empty constant name"}
	}
	for _, seg := range strings.Split(name, Separator) {
		if !isConstName(seg) {
			return &NameError{Name: name, Message: fmt.Sprintf("wrong constant name %s", name)}
		}
	}
	return nil
}

func isConstName(s string) bool {
	if s == "" || s[0] < 'A' || s[0] > 'Z' {
		return false
	}
	for _, r := range s[1:] {
		if !(r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return true
}
