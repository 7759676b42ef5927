package crypto

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"sort"

	"certagent/internal/domain"
)

// Domain separators prepended to signed payloads.
var (
	SepRequest    = []byte("\x0Aic-request")
	SepDelegation = []byte("\x1Aic-request-auth-delegation")
	SepStateRoot  = []byte("\x0Dic-state-root")
)

// HashOfMap returns the representation-independent hash of m: the sha256 of
// the sorted concatenation of sha256(key)||hash(value) pairs. Nil values are
// skipped.
func HashOfMap(m map[string]any) ([32]byte, error) {
	pairs := make([][]byte, 0, len(m))
	for k, v := range m {
		if v == nil {
			continue
		}
		hv, err := hashValue(v)
		if err != nil {
			return [32]byte{}, fmt.Errorf("hash field %q: %w", k, err)
		}
		hk := sha256.Sum256([]byte(k))
		pairs = append(pairs, append(hk[:], hv[:]...))
	}
	sort.Slice(pairs, func(i, j int) bool { return bytes.Compare(pairs[i], pairs[j]) < 0 })

	h := sha256.New()
	for _, p := range pairs {
		h.Write(p)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out, nil
}

func hashValue(v any) ([32]byte, error) {
	switch x := v.(type) {
	case []byte:
		return sha256.Sum256(x), nil
	case domain.Principal:
		return sha256.Sum256(x), nil
	case domain.Label:
		return sha256.Sum256(x), nil
	case string:
		return sha256.Sum256([]byte(x)), nil
	case uint64:
		return sha256.Sum256(EncodeULEB128(x)), nil
	case int:
		if x < 0 {
			return [32]byte{}, fmt.Errorf("negative integer %d", x)
		}
		return sha256.Sum256(EncodeULEB128(uint64(x))), nil
	case map[string]any:
		return HashOfMap(x)
	case []any:
		return hashArray(len(x), func(i int) any { return x[i] })
	case []domain.Principal:
		return hashArray(len(x), func(i int) any { return x[i] })
	case [][]byte:
		return hashArray(len(x), func(i int) any { return x[i] })
	case domain.Path:
		return hashArray(len(x), func(i int) any { return x[i] })
	case []domain.Path:
		return hashArray(len(x), func(i int) any { return x[i] })
	default:
		return [32]byte{}, fmt.Errorf("unsupported value type %T", v)
	}
}

func hashArray(n int, at func(int) any) ([32]byte, error) {
	h := sha256.New()
	for i := 0; i < n; i++ {
		hv, err := hashValue(at(i))
		if err != nil {
			return [32]byte{}, err
		}
		h.Write(hv[:])
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out, nil
}

// DelegationMap returns the hashable field map of d. Targets are included
// only when set, so a nil restriction and an empty one hash differently.
func DelegationMap(d domain.Delegation) map[string]any {
	m := map[string]any{
		"pubkey":     d.PublicKey,
		"expiration": d.Expiration,
	}
	if d.Targets != nil {
		m["targets"] = d.Targets
	}
	return m
}

// DelegationSignable returns the bytes a delegating key signs for d.
func DelegationSignable(d domain.Delegation) ([]byte, error) {
	h, err := HashOfMap(DelegationMap(d))
	if err != nil {
		return nil, fmt.Errorf("delegation hash: %w", err)
	}
	return withSeparator(SepDelegation, h[:]), nil
}

// RequestID returns the representation-independent hash of call content.
func RequestID(content map[string]any) (domain.RequestID, error) {
	h, err := HashOfMap(content)
	if err != nil {
		return domain.RequestID{}, fmt.Errorf("request id: %w", err)
	}
	return domain.RequestID(h), nil
}

// RequestSignable returns the bytes a sender signs for a request id.
func RequestSignable(id domain.RequestID) []byte {
	return withSeparator(SepRequest, id[:])
}

// StateRootSignable returns the bytes signed for a certified tree root.
func StateRootSignable(root []byte) []byte {
	return withSeparator(SepStateRoot, root)
}

func withSeparator(sep, payload []byte) []byte {
	out := make([]byte, 0, len(sep)+len(payload))
	out = append(out, sep...)
	return append(out, payload...)
}
