package certificate

import (
	"bytes"

	"certagent/internal/domain"
)

// LookupStatus tags the outcome of resolving a path.
type LookupStatus int

const (
	// Found means the path resolves to a leaf value.
	Found LookupStatus = iota
	// Absent means the tree proves the path does not exist.
	Absent
	// Unknown means the path runs into a pruned subtree.
	Unknown
	// Error means the path resolves to something other than a leaf.
	Error
)

func (s LookupStatus) String() string {
	switch s {
	case Found:
		return "found"
	case Absent:
		return "absent"
	case Unknown:
		return "unknown"
	default:
		return "error"
	}
}

// LookupResult is the tagged result of a path lookup. Value is set only when
// Status is Found.
type LookupResult struct {
	Status LookupStatus
	Value  []byte
}

// labelResult extends LookupStatus with the ordering hints used while
// walking forks.
type labelResult int

const (
	labelFound labelResult = iota
	labelAbsent
	labelUnknown
	labelLess
	labelGreater
)

// LookupPath resolves path in tree.
func LookupPath(tree Node, path domain.Path) LookupResult {
	status, node := lookupNode(tree, path)
	if status != Found {
		return LookupResult{Status: status}
	}
	switch n := node.(type) {
	case Leaf:
		return LookupResult{Status: Found, Value: []byte(n)}
	case Pruned:
		return LookupResult{Status: Unknown}
	default:
		return LookupResult{Status: Error}
	}
}

// LookupSubtree returns the node found at path, for callers that need to
// inspect a whole subtree.
func LookupSubtree(tree Node, path domain.Path) (LookupStatus, Node) {
	return lookupNode(tree, path)
}

func lookupNode(tree Node, path domain.Path) (LookupStatus, Node) {
	for _, label := range path {
		res, next := findLabel(label, tree)
		switch res {
		case labelFound:
			tree = next
		case labelUnknown:
			return Unknown, nil
		default:
			return Absent, nil
		}
	}
	return Found, tree
}

func findLabel(label []byte, tree Node) (labelResult, Node) {
	switch n := tree.(type) {
	case Labeled:
		switch c := bytes.Compare(label, n.Label); {
		case c == 0:
			return labelFound, n.Child
		case c < 0:
			return labelLess, nil
		default:
			return labelGreater, nil
		}
	case Fork:
		left, node := findLabel(label, n.Left)
		switch left {
		case labelGreater:
			right, rnode := findLabel(label, n.Right)
			if right == labelLess {
				return labelAbsent, nil
			}
			return right, rnode
		case labelAbsent:
			return findLabel(label, n.Right)
		case labelUnknown:
			right, rnode := findLabel(label, n.Right)
			if right == labelLess {
				return labelUnknown, nil
			}
			return right, rnode
		default:
			return left, node
		}
	case Pruned:
		return labelUnknown, nil
	default:
		return labelAbsent, nil
	}
}
