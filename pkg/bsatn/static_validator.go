package bsatn

import (
	"github.com/cuemby/spacetimedb-core/pkg/bflatn"
	"github.com/cuemby/spacetimedb-core/pkg/sats"
)

// StaticLayout carries the expected total BSATN length of a row type that
// has a known, fixed encoding size. Both the fast encoder
// (KnownBsatnLayout) and the fast decoder (StaticBsatnValidator) are built
// against one of these, and a mismatched length is always the first check
// validate performs.
type StaticLayout struct {
	BsatnLength int
}

// insnOp is the opcode of one instruction in a compiled
// StaticBsatnValidator program.
type insnOp uint8

const (
	opCheckBool insnOp = iota
	opCheckTag
	opCheckReadTagRelBranch
	opGoto
)

type insn struct {
	op          insnOp
	offset      uint16 // CheckBool/CheckTag/CheckReadTagRelBranch: byte offset of the value/tag
	numVariants uint8  // CheckTag/CheckReadTagRelBranch: tag must be < numVariants
	target      uint16 // Goto: next instruction pointer
}

// StaticBsatnValidator is a compiled bytecode program that checks a BSATN
// buffer satisfies a row type's invariants (valid bools, valid sum tags)
// without walking the type tree at validation time. Compiled once per row
// type and reused for every row validated against it.
type StaticBsatnValidator struct {
	insns []insn
}

// treeKind discriminates the rose-tree nodes used to build the flat
// instruction program compiled down to insns below.
type treeKind int

const (
	treeEmpty treeKind = iota
	treeSequence
	treeCheckBool
	treeCheckTag
	treeSum
)

type tree struct {
	kind        treeKind
	offset      uint16
	numVariants uint8
	subTrees    []*tree // treeSequence: steps in order. treeSum: one sub-tree per variant.
}

// ForRowType builds the StaticLayout, fast encoder and fast decoder for
// layout, or ok=false if layout contains a var-len member or a sum whose
// variants don't share one live BSATN length — in either case the caller
// must fall back to the recursive slow path.
func ForRowType(layout bflatn.Layout) (*StaticLayout, *KnownBsatnLayout, *StaticBsatnValidator, bool) {
	known, ok := BuildKnownBsatnLayout(layout)
	if !ok {
		return nil, nil, nil, false
	}

	t := buildTreeForProduct(layout)
	insns := treeToInsns(t)
	validator := &StaticBsatnValidator{insns: insns}
	static := &StaticLayout{BsatnLength: known.BsatnLength}
	return static, known, validator, true
}

// bsatnSize returns the packed BSATN width of l: no alignment padding
// between product fields, and a sum's tag counted once (not once per
// variant, and not padded out to the payload's alignment the way BFLATN
// pads it). Only called on layouts ForRowType has already confirmed have
// one fixed BSATN length via BuildKnownBsatnLayout, so a sum's variants
// are guaranteed to all share the same packed payload size.
func bsatnSize(l bflatn.Layout) uint16 {
	switch l.Kind {
	case sats.KindProduct:
		var size uint16
		for _, f := range l.Fields {
			size += bsatnSize(f.Layout)
		}
		return size
	case sats.KindSum:
		if len(l.Variants) == 0 {
			return 0
		}
		return 1 + bsatnSize(l.Variants[0])
	default:
		return uint16(l.Size)
	}
}

// buildTreeForProduct walks product's fields left to right, threading a
// running BSATN (packed, unpadded) offset rather than reading product's
// own BFLATN field offsets: the two coordinate spaces diverge as soon as
// any field needs alignment padding or the layout contains a sum, whose
// BFLATN encoding puts the tag after the payload while BSATN puts it
// first.
func buildTreeForProduct(product bflatn.Layout) *tree {
	var subTrees []*tree
	var offset uint16
	for _, f := range product.Fields {
		extendTreesForValue(f.Layout, offset, &subTrees)
		offset += bsatnSize(f.Layout)
	}
	return subTreesToTree(subTrees)
}

func subTreesToTree(sub []*tree) *tree {
	switch len(sub) {
	case 0:
		return &tree{kind: treeEmpty}
	case 1:
		return sub[0]
	default:
		return &tree{kind: treeSequence, subTrees: sub}
	}
}

func extendTreesForValue(l bflatn.Layout, offset uint16, sub *[]*tree) {
	switch l.Kind {
	case sats.KindBool:
		*sub = append(*sub, &tree{kind: treeCheckBool, offset: offset})
	case sats.KindProduct:
		var productSub []*tree
		inner := offset
		for _, f := range l.Fields {
			extendTreesForValue(f.Layout, inner, &productSub)
			inner += bsatnSize(f.Layout)
		}
		if t := subTreesToTree(productSub); t.kind != treeEmpty {
			*sub = append(*sub, t)
		}
	case sats.KindSum:
		// BSATN writes a sum as its one-byte tag followed immediately by
		// the payload, the reverse of BFLATN's payload-then-tag layout,
		// so the tag sits at offset and every variant's payload starts
		// at offset+1 regardless of where BFLATN's TagOffset falls.
		numVariants := uint8(len(l.Variants))
		tagOffset := offset

		variantTrees := make([]*tree, len(l.Variants))
		for i, v := range l.Variants {
			var variantSub []*tree
			extendTreesForValue(v, offset+1, &variantSub)
			variantTrees[i] = subTreesToTree(variantSub)
		}

		if allTreesEqual(variantTrees) {
			*sub = append(*sub, &tree{kind: treeCheckTag, offset: tagOffset, numVariants: numVariants})
			if len(variantTrees) > 0 {
				last := variantTrees[len(variantTrees)-1]
				if last.kind != treeEmpty {
					*sub = append(*sub, last)
				}
			}
		} else {
			*sub = append(*sub, &tree{kind: treeSum, offset: tagOffset, numVariants: numVariants, subTrees: variantTrees})
		}
	default:
		// Primitive, non-bool: no padding, no invalid bit patterns, so
		// nothing to check.
	}
}

func allTreesEqual(trees []*tree) bool {
	if len(trees) == 0 {
		return true
	}
	for _, t := range trees[1:] {
		if !treesEqual(trees[0], t) {
			return false
		}
	}
	return true
}

func treesEqual(a, b *tree) bool {
	if a.kind != b.kind || a.offset != b.offset || a.numVariants != b.numVariants {
		return false
	}
	if len(a.subTrees) != len(b.subTrees) {
		return false
	}
	for i := range a.subTrees {
		if !treesEqual(a.subTrees[i], b.subTrees[i]) {
			return false
		}
	}
	return true
}

const fixupTarget = 0xFFFF

// treeToInsns flattens the rose tree to a forward-progress-only bytecode
// program, using a placeholder Goto(0xFFFF) for forward jumps that get
// fixed up once the jump target is known.
func treeToInsns(t *tree) []insn {
	var program []insn
	compileTree(t, &program)
	return removeTrailingGotos(program)
}

func compileTree(t *tree, into *[]insn) {
	switch t.kind {
	case treeEmpty:
	case treeCheckBool:
		*into = append(*into, insn{op: opCheckBool, offset: t.offset})
	case treeCheckTag:
		*into = append(*into, insn{op: opCheckTag, offset: t.offset, numVariants: t.numVariants})
	case treeSequence:
		for _, sub := range t.subTrees {
			compileTree(sub, into)
		}
	case treeSum:
		numVariants := len(t.subTrees)
		*into = append(*into, insn{op: opCheckReadTagRelBranch, offset: t.offset, numVariants: uint8(numVariants)})
		toBranches := len(*into)
		for i := 0; i < numVariants; i++ {
			*into = append(*into, insn{op: opGoto, target: fixupTarget})
		}
		fromVariantGotos := make([]int, 0, numVariants)
		for tag, branch := range t.subTrees {
			(*into)[toBranches+tag] = insn{op: opGoto, target: uint16(len(*into))}
			compileTree(branch, into)
			fromVariantGotos = append(fromVariantGotos, len(*into))
			*into = append(*into, insn{op: opGoto, target: fixupTarget})
		}
		gotoAddr := uint16(len(*into))
		for _, idx := range fromVariantGotos {
			(*into)[idx] = insn{op: opGoto, target: gotoAddr}
		}
	}
}

// removeTrailingGotos strips Goto instructions from the end of the
// program: they only ever jump to the end, which is where execution falls
// off to anyway.
func removeTrailingGotos(program []insn) []insn {
	for len(program) > 0 && program[len(program)-1].op == opGoto {
		program = program[:len(program)-1]
	}
	return program
}

// Validate checks that bytes is a valid BSATN encoding of the row type v
// was compiled for: the length matches static.BsatnLength, every bool byte
// is 0 or 1, and every sum tag is in range.
func Validate(v *StaticBsatnValidator, static *StaticLayout, bytes []byte) error {
	if len(bytes) != static.BsatnLength {
		return &InvalidLenError{Expected: static.BsatnLength, Given: len(bytes)}
	}

	ip := uint16(0)
	for int(ip) < len(v.insns) {
		in := v.insns[ip]
		switch in.op {
		case opCheckBool:
			ip++
			b := bytes[in.offset]
			if b > 1 {
				return &InvalidBoolError{Byte: b}
			}
		case opGoto:
			ip = in.target
		case opCheckTag:
			if _, err := checkTag(bytes, in.offset, in.numVariants); err != nil {
				return err
			}
			ip++
		case opCheckReadTagRelBranch:
			tag, err := checkTag(bytes, in.offset, in.numVariants)
			if err != nil {
				return err
			}
			ip += uint16(tag) + 1
		}
	}
	return nil
}

func checkTag(bytes []byte, offset uint16, numVariants uint8) (uint8, error) {
	tag := bytes[offset]
	if tag >= numVariants {
		return 0, &InvalidTagError{Tag: tag, NumVariants: numVariants}
	}
	return tag, nil
}
