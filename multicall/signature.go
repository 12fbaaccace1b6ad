package multicall

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrInvalidSignature is returned for call signatures that do not follow the
// name(inputs)(outputs) form.
var ErrInvalidSignature = errors.New("multicall: invalid call signature")

// Signature is a parsed call signature such as "ilks(bytes32)(uint256,uint48)".
type Signature struct {
	Name     string
	Inputs   abi.Arguments
	Outputs  abi.Arguments
	Selector [4]byte
}

var signatureCache sync.Map // string -> *Signature

// ParseSignature parses and caches a call signature.
func ParseSignature(raw string) (*Signature, error) {
	raw = strings.TrimSpace(raw)
	if cached, ok := signatureCache.Load(raw); ok {
		return cached.(*Signature), nil
	}
	sig, err := parseSignature(raw)
	if err != nil {
		return nil, err
	}
	signatureCache.Store(raw, sig)
	return sig, nil
}

func parseSignature(raw string) (*Signature, error) {
	open := strings.IndexByte(raw, '(')
	if open <= 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSignature, raw)
	}
	name := raw[:open]
	inputs, rest, err := splitGroup(raw[open:])
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidSignature, raw, err)
	}
	var outputs string
	if rest != "" {
		outputs, rest, err = splitGroup(rest)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidSignature, raw, err)
		}
	}
	if rest != "" {
		return nil, fmt.Errorf("%w: %q: trailing %q", ErrInvalidSignature, raw, rest)
	}

	inArgs, err := arguments(inputs)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidSignature, raw, err)
	}
	outArgs, err := arguments(outputs)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidSignature, raw, err)
	}

	sig := &Signature{Name: name, Inputs: inArgs, Outputs: outArgs}
	copy(sig.Selector[:], crypto.Keccak256([]byte(name + "(" + inputs + ")"))[:4])
	return sig, nil
}

// splitGroup consumes one balanced parenthesised group from the head of s and
// returns its contents plus the remainder.
func splitGroup(s string) (string, string, error) {
	if !strings.HasPrefix(s, "(") {
		return "", "", fmt.Errorf("expected '(' at %q", s)
	}
	depth := 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return s[1:i], s[i+1:], nil
			}
		}
	}
	return "", "", fmt.Errorf("unbalanced parentheses in %q", s)
}

func arguments(list string) (abi.Arguments, error) {
	list = strings.ReplaceAll(list, " ", "")
	if list == "" {
		return abi.Arguments{}, nil
	}
	parts := splitTopLevel(list)
	args := make(abi.Arguments, 0, len(parts))
	for _, part := range parts {
		if strings.HasPrefix(part, "(") {
			return nil, fmt.Errorf("tuple type %q not supported", part)
		}
		typ, err := abi.NewType(part, "", nil)
		if err != nil {
			return nil, fmt.Errorf("type %q: %w", part, err)
		}
		args = append(args, abi.Argument{Type: typ})
	}
	return args, nil
}

func splitTopLevel(list string) []string {
	var (
		parts []string
		depth int
		start int
	)
	for i, r := range list {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, list[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, list[start:])
}

// String renders the canonical method signature used for the selector.
func (s *Signature) String() string {
	types := make([]string, len(s.Inputs))
	for i, arg := range s.Inputs {
		types[i] = arg.Type.String()
	}
	return s.Name + "(" + strings.Join(types, ",") + ")"
}
