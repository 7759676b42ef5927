package types

import (
	"encoding/hex"
	"fmt"
)

// RequestID identifies one asynchronous call. It is the 32-byte
// representation-independent hash of the call content.
type RequestID [32]byte

// Hex returns the lowercase hex form of the id.
func (id RequestID) Hex() string { return hex.EncodeToString(id[:]) }

// String returns the hex form of the id.
func (id RequestID) String() string { return id.Hex() }

// ParseRequestID decodes a 64-character hex request id.
func ParseRequestID(s string) (RequestID, error) {
	var id RequestID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("request id: %w", err)
	}
	if len(b) != len(id) {
		return id, fmt.Errorf("request id: want %d bytes, got %d", len(id), len(b))
	}
	copy(id[:], b)
	return id, nil
}

// Label is one segment of a certified tree path.
type Label []byte

// Path locates a value inside the certified tree.
type Path []Label

// NewPath builds a path from string and byte segments.
func NewPath(segments ...any) Path {
	out := make(Path, 0, len(segments))
	for _, s := range segments {
		switch v := s.(type) {
		case string:
			out = append(out, Label(v))
		case []byte:
			out = append(out, Label(v))
		case Label:
			out = append(out, v)
		case RequestID:
			out = append(out, Label(v[:]))
		case Principal:
			out = append(out, Label(v))
		default:
			panic(fmt.Sprintf("path segment of unsupported type %T", s))
		}
	}
	return out
}

// Child returns a copy of p extended with label.
func (p Path) Child(label string) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, Label(label))
}

// String renders the path for logs, hex-encoding non-printable labels.
func (p Path) String() string {
	s := ""
	for _, l := range p {
		s += "/" + printable(l)
	}
	return s
}

func printable(l Label) string {
	for _, c := range l {
		if c < 0x20 || c > 0x7e {
			return hex.EncodeToString(l)
		}
	}
	return string(l)
}

// RequestStatusPath returns ["request_status", id].
func RequestStatusPath(id RequestID) Path {
	return NewPath("request_status", id)
}
