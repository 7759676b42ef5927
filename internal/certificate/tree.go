package certificate

import (
	"crypto/sha256"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Node is one vertex of a hash tree.
type Node interface {
	// Digest returns the domain-separated hash of the subtree.
	Digest() [32]byte
	cborValue() []any
}

// Hash tree node tags on the wire.
const (
	tagEmpty   = 0
	tagFork    = 1
	tagLabeled = 2
	tagLeaf    = 3
	tagPruned  = 4
)

var (
	sepEmpty   = []byte("\x11ic-hashtree-empty")
	sepFork    = []byte("\x10ic-hashtree-fork")
	sepLabeled = []byte("\x13ic-hashtree-labeled")
	sepLeaf    = []byte("\x10ic-hashtree-leaf")
)

// Empty is a tree with no values.
type Empty struct{}

// Fork joins two subtrees; labels in Left sort before labels in Right.
type Fork struct{ Left, Right Node }

// Labeled attaches a label to a subtree.
type Labeled struct {
	Label []byte
	Child Node
}

// Leaf holds a value.
type Leaf []byte

// Pruned stands for a subtree known only by its digest.
type Pruned [32]byte

func digest(parts ...[]byte) [32]byte {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func (Empty) Digest() [32]byte { return digest(sepEmpty) }

func (f Fork) Digest() [32]byte {
	l, r := f.Left.Digest(), f.Right.Digest()
	return digest(sepFork, l[:], r[:])
}

func (n Labeled) Digest() [32]byte {
	c := n.Child.Digest()
	return digest(sepLabeled, n.Label, c[:])
}

func (l Leaf) Digest() [32]byte { return digest(sepLeaf, l) }

func (p Pruned) Digest() [32]byte { return p }

func (Empty) cborValue() []any     { return []any{uint64(tagEmpty)} }
func (f Fork) cborValue() []any    { return []any{uint64(tagFork), f.Left.cborValue(), f.Right.cborValue()} }
func (n Labeled) cborValue() []any { return []any{uint64(tagLabeled), n.Label, n.Child.cborValue()} }
func (l Leaf) cborValue() []any    { return []any{uint64(tagLeaf), []byte(l)} }
func (p Pruned) cborValue() []any  { return []any{uint64(tagPruned), p[:]} }

// EncodeTree returns the CBOR encoding of n.
func EncodeTree(n Node) ([]byte, error) {
	return cbor.Marshal(n.cborValue())
}

// DecodeTree parses a CBOR-encoded hash tree.
func DecodeTree(data []byte) (Node, error) {
	var raw any
	if err := cbor.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode tree: %w", err)
	}
	return fromCBOR(raw, 0)
}

const maxTreeDepth = 128

func fromCBOR(v any, depth int) (Node, error) {
	if depth > maxTreeDepth {
		return nil, fmt.Errorf("tree deeper than %d", maxTreeDepth)
	}
	arr, ok := v.([]any)
	if !ok || len(arr) == 0 {
		return nil, fmt.Errorf("tree node is %T, want non-empty array", v)
	}
	tag, ok := arr[0].(uint64)
	if !ok {
		return nil, fmt.Errorf("tree node tag is %T", arr[0])
	}
	want := map[uint64]int{tagEmpty: 1, tagFork: 3, tagLabeled: 3, tagLeaf: 2, tagPruned: 2}
	n, known := want[tag]
	if !known {
		return nil, fmt.Errorf("unknown tree node tag %d", tag)
	}
	if len(arr) != n {
		return nil, fmt.Errorf("tree node tag %d has %d elements, want %d", tag, len(arr), n)
	}

	switch tag {
	case tagEmpty:
		return Empty{}, nil
	case tagFork:
		l, err := fromCBOR(arr[1], depth+1)
		if err != nil {
			return nil, err
		}
		r, err := fromCBOR(arr[2], depth+1)
		if err != nil {
			return nil, err
		}
		return Fork{Left: l, Right: r}, nil
	case tagLabeled:
		label, ok := arr[1].([]byte)
		if !ok {
			return nil, fmt.Errorf("label is %T", arr[1])
		}
		c, err := fromCBOR(arr[2], depth+1)
		if err != nil {
			return nil, err
		}
		return Labeled{Label: label, Child: c}, nil
	case tagLeaf:
		b, ok := arr[1].([]byte)
		if !ok {
			return nil, fmt.Errorf("leaf is %T", arr[1])
		}
		return Leaf(b), nil
	default:
		b, ok := arr[1].([]byte)
		if !ok || len(b) != 32 {
			return nil, fmt.Errorf("pruned digest malformed")
		}
		var p Pruned
		copy(p[:], b)
		return p, nil
	}
}
