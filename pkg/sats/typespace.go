package sats

import "fmt"

// RecursiveTypeRefError is returned when inlining type references discovers
// a cycle: a ref that (directly or through intermediate refs) resolves back
// to itself. SpacetimeDB's row format cannot represent recursive types, so
// this is always a hard error, never a lazily-resolved value.
type RecursiveTypeRefError struct {
	Ref TypeRef
}

func (e *RecursiveTypeRefError) Error() string {
	return fmt.Sprintf("found recursive type reference %s", e.Ref)
}

// InvalidTypeRefError is returned when a TypeRef points outside the bounds
// of its Typespace.
type InvalidTypeRefError struct {
	Ref TypeRef
}

func (e *InvalidTypeRefError) Error() string {
	return fmt.Sprintf("type reference %s out of bounds", e.Ref)
}

// Typespace is the typing context (the "Δ" or "Γ") that gives meaning to
// TypeRefs appearing inside AlgebraicTypes belonging to one module. Types
// are addressed by position using deBruijn-style indices rather than names.
type Typespace struct {
	Types []AlgebraicType
}

// NewTypespace wraps an existing slice of types as a Typespace.
func NewTypespace(types []AlgebraicType) *Typespace {
	return &Typespace{Types: types}
}

// Add inserts ty into the typespace and returns a TypeRef addressing it.
// Passing the returned ref back as a nested AlgebraicType lets callers
// build self-referential or mutually-recursive type graphs before they are
// fully defined.
func (ts *Typespace) Add(ty AlgebraicType) TypeRef {
	idx := uint32(len(ts.Types))
	ts.Types = append(ts.Types, ty)
	return TypeRef(idx)
}

// Get returns the type addressed by r, or false if r is out of bounds.
func (ts *Typespace) Get(r TypeRef) (AlgebraicType, bool) {
	idx := int(r)
	if idx < 0 || idx >= len(ts.Types) {
		return AlgebraicType{}, false
	}
	return ts.Types[idx], true
}

// Resolve returns the type addressed by r. It panics if r is out of
// bounds, matching Typespace::resolve in the original implementation,
// which is only ever called with refs already validated by
// InlineAllTyperefs.
func (ts *Typespace) Resolve(r TypeRef) AlgebraicType {
	ty, ok := ts.Get(r)
	if !ok {
		panic(fmt.Sprintf("sats: %s not in typespace of length %d", r, len(ts.Types)))
	}
	return ty
}

// InlineAllTyperefs walks every type in the typespace and recursively
// replaces nested TypeRefs with the fully-resolved type they point to,
// detecting cycles along the way.
//
// The cycle-detection strategy is ported directly from
// Typespace::inline_typerefs_in_ref in the original Rust implementation:
// rather than track a separate "currently visiting" set, the slot at index
// r is swapped out for a sentinel `Ref(r)` value for the duration of the
// recursive call. If recursion walks back into that same slot, it will
// observe the sentinel Ref and report a cycle; otherwise the slot is
// restored with the fully-inlined type once the recursive call returns.
func (ts *Typespace) InlineAllTyperefs() error {
	for i := range ts.Types {
		if _, err := ts.inlineTyperefsInRef(TypeRef(uint32(i))); err != nil {
			return err
		}
	}
	return nil
}

func (ts *Typespace) inlineTyperefsInRef(r TypeRef) (*AlgebraicType, error) {
	idx := int(r)
	if idx < 0 || idx >= len(ts.Types) {
		return nil, &InvalidTypeRefError{Ref: r}
	}

	current := ts.Types[idx]
	if current.Kind == KindRef {
		// A parent call already swapped this slot out for a sentinel
		// Ref(r); walking back into it means r is part of a cycle.
		return nil, &RecursiveTypeRefError{Ref: r}
	}

	// Swap the slot for a sentinel so a recursive visit of this same
	// index is detectable without a separate visited-set.
	ts.Types[idx] = Ref(r)

	resolved := current
	if err := ts.inlineTyperefsInType(&resolved); err != nil {
		return nil, err
	}

	ts.Types[idx] = resolved
	return &ts.Types[idx], nil
}

func (ts *Typespace) inlineTyperefsInType(ty *AlgebraicType) error {
	switch ty.Kind {
	case KindSum:
		for i := range ty.Sum.Variants {
			if err := ts.inlineTyperefsInType(&ty.Sum.Variants[i].Type); err != nil {
				return err
			}
		}
	case KindProduct:
		for i := range ty.Product.Elements {
			if err := ts.inlineTyperefsInType(&ty.Product.Elements[i].Type); err != nil {
				return err
			}
		}
	case KindArray:
		if err := ts.inlineTyperefsInType(ty.Array.Elem); err != nil {
			return err
		}
	case KindRef:
		resolved, err := ts.inlineTyperefsInRef(ty.Ref)
		if err != nil {
			return err
		}
		*ty = *resolved
	}
	return nil
}

// RefsWithTypes returns every (TypeRef, AlgebraicType) pair in the
// typespace, in index order.
func (ts *Typespace) RefsWithTypes() []struct {
	Ref  TypeRef
	Type AlgebraicType
} {
	out := make([]struct {
		Ref  TypeRef
		Type AlgebraicType
	}, len(ts.Types))
	for i, ty := range ts.Types {
		out[i] = struct {
			Ref  TypeRef
			Type AlgebraicType
		}{TypeRef(uint32(i)), ty}
	}
	return out
}

// IsValidForClientCodeGeneration reports whether every type in the
// typespace is usable either as a top-level client type definition or
// nested as a use within another type, per
// AlgebraicType.IsValidForClientTypeDefinition/IsValidForClientTypeUse.
func (ts *Typespace) IsValidForClientCodeGeneration() bool {
	for _, ty := range ts.Types {
		if !ty.IsValidForClientTypeDefinition() && !ty.IsValidForClientTypeUse() {
			return false
		}
	}
	return true
}
