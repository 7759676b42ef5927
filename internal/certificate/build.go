package certificate

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/fxamacker/cbor/v2"

	"certagent/internal/crypto"
	"certagent/internal/domain"
)

// Subtree describes a labeled tree to build. Values are []byte (a leaf) or
// a nested Subtree.
type Subtree map[string]any

// Build returns the hash tree for s with labels in sorted order.
func Build(s Subtree) (Node, error) {
	labels := make([]string, 0, len(s))
	for k := range s {
		labels = append(labels, k)
	}
	sort.Slice(labels, func(i, j int) bool { return bytes.Compare([]byte(labels[i]), []byte(labels[j])) < 0 })

	nodes := make([]Node, 0, len(labels))
	for _, l := range labels {
		var child Node
		switch v := s[l].(type) {
		case []byte:
			child = Leaf(v)
		case string:
			child = Leaf(v)
		case Subtree:
			n, err := Build(v)
			if err != nil {
				return nil, err
			}
			child = n
		case Node:
			child = v
		default:
			return nil, fmt.Errorf("subtree %q: unsupported value %T", l, v)
		}
		nodes = append(nodes, Labeled{Label: []byte(l), Child: child})
	}
	return balance(nodes), nil
}

func balance(nodes []Node) Node {
	switch len(nodes) {
	case 0:
		return Empty{}
	case 1:
		return nodes[0]
	default:
		mid := len(nodes) / 2
		return Fork{Left: balance(nodes[:mid]), Right: balance(nodes[mid:])}
	}
}

// Prune keeps the subtrees under paths and replaces everything else with its
// digest. The root digest is unchanged.
func Prune(n Node, paths []domain.Path) Node {
	for _, p := range paths {
		if len(p) == 0 {
			return n
		}
	}
	if len(paths) == 0 {
		return Pruned(n.Digest())
	}
	switch t := n.(type) {
	case Fork:
		l, r := Prune(t.Left, paths), Prune(t.Right, paths)
		_, lp := l.(Pruned)
		_, rp := r.(Pruned)
		if lp && rp {
			return Pruned(t.Digest())
		}
		return Fork{Left: l, Right: r}
	case Labeled:
		var tails []domain.Path
		for _, p := range paths {
			if bytes.Equal(p[0], t.Label) {
				tails = append(tails, p[1:])
			}
		}
		if len(tails) == 0 {
			return Pruned(t.Digest())
		}
		return Labeled{Label: t.Label, Child: Prune(t.Child, tails)}
	case Empty:
		return t
	default:
		return Pruned(n.Digest())
	}
}

// SignFunc signs a message with a certifying key.
type SignFunc func(msg []byte) ([]byte, error)

// Sign certifies tree and returns the encoded certificate.
func Sign(tree Node, sign SignFunc, delegation *Delegation) ([]byte, error) {
	root := tree.Digest()
	sig, err := sign(crypto.StateRootSignable(root[:]))
	if err != nil {
		return nil, fmt.Errorf("sign state root: %w", err)
	}
	c := &Certificate{Tree: tree, Signature: sig, Delegation: delegation}
	return c.Encode()
}

// EncodeCanisterRanges encodes inclusive [low, high] scope ranges.
func EncodeCanisterRanges(ranges [][2]domain.Principal) ([]byte, error) {
	out := make([][2][]byte, len(ranges))
	for i, r := range ranges {
		out[i] = [2][]byte{r[0], r[1]}
	}
	return cbor.Marshal(out)
}
