// Package compare implements the structural, order-insensitive comparison
// used to verify JSON payloads.
//
// Objects are compared as maps: keys present on only one side and keys whose
// values differ are reported. Nested values are compared as opaque wholes,
// not diffed recursively. Arrays are compared as sets, and a repeated
// top-level element on either side is reported as a duplicate violation
// before any set difference is computed.
package compare

import (
	"fmt"
	"strings"

	"github.com/sophialabs/fixturemock/internal/domain/jsonvalue"
)

// Kind classifies the outcome of a comparison.
type Kind int

const (
	KindEqual Kind = iota
	KindTypeMismatch
	KindMismatch
	KindDuplicate
)

func (k Kind) String() string {
	switch k {
	case KindEqual:
		return "equal"
	case KindTypeMismatch:
		return "type_mismatch"
	case KindMismatch:
		return "mismatch"
	case KindDuplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

// Verdict is the result of comparing a received value with an expected one.
// Reason is empty iff Kind is KindEqual.
type Verdict struct {
	Kind   Kind
	Reason string
}

// IsEqual reports whether the compared values matched.
func (v Verdict) IsEqual() bool { return v.Kind == KindEqual }

func equal() Verdict { return Verdict{Kind: KindEqual} }

func mismatch(kind Kind, format string, args ...any) Verdict {
	return Verdict{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// Compare compares received against expected.
func Compare(received, expected jsonvalue.Value) Verdict {
	if received.Kind() != expected.Kind() {
		return typeMismatch(received, expected)
	}
	switch expected.Kind() {
	case jsonvalue.KindObject:
		return CompareObjects(received, expected)
	case jsonvalue.KindArray:
		return CompareArrays(received, expected)
	default:
		if jsonvalue.Equal(received, expected) {
			return equal()
		}
		return mismatch(KindMismatch, "expected %s but received %s", expected, received)
	}
}

// CompareObjects compares two objects key by key. A non-object on either
// side yields a type mismatch.
func CompareObjects(received, expected jsonvalue.Value) Verdict {
	if received.Kind() != jsonvalue.KindObject || expected.Kind() != jsonvalue.KindObject {
		return typeMismatch(received, expected)
	}

	var onlyReceived, onlyExpected []jsonvalue.Member
	var differing []string

	for _, m := range received.Members() {
		exp, ok := expected.Get(m.Key)
		if !ok {
			onlyReceived = append(onlyReceived, m)
			continue
		}
		if !jsonvalue.Equal(m.Value, exp) {
			differing = append(differing, fmt.Sprintf("%q: expected %s but received %s", m.Key, exp, m.Value))
		}
	}
	for _, m := range expected.Members() {
		if _, ok := received.Get(m.Key); !ok {
			onlyExpected = append(onlyExpected, m)
		}
	}

	var parts []string
	if len(onlyReceived) > 0 {
		parts = append(parts, jsonvalue.Object(onlyReceived...).String()+" was provided but not expected")
	}
	if len(onlyExpected) > 0 {
		parts = append(parts, jsonvalue.Object(onlyExpected...).String()+" was expected but not received")
	}
	if len(differing) > 0 {
		parts = append(parts, "values differ: "+strings.Join(differing, ", "))
	}
	if len(parts) == 0 {
		return equal()
	}
	return Verdict{Kind: KindMismatch, Reason: strings.Join(parts, "; ")}
}

// CompareArrays compares two arrays as sets of elements.
func CompareArrays(received, expected jsonvalue.Value) Verdict {
	if received.Kind() != jsonvalue.KindArray || expected.Kind() != jsonvalue.KindArray {
		return typeMismatch(received, expected)
	}

	receivedItems := received.Items()
	expectedItems := expected.Items()

	receivedSet, dup := index(receivedItems)
	if dup != nil {
		return mismatch(KindDuplicate, "received result has top level duplicates which is not allowed: %s", *dup)
	}
	expectedSet, dup := index(expectedItems)
	if dup != nil {
		return mismatch(KindDuplicate, "expected result has top level duplicates which is not allowed: %s", *dup)
	}

	var missingInExpected, missingInReceived []jsonvalue.Value
	for _, item := range receivedItems {
		if _, ok := expectedSet[item.Key()]; !ok {
			missingInExpected = append(missingInExpected, item)
		}
	}
	for _, item := range expectedItems {
		if _, ok := receivedSet[item.Key()]; !ok {
			missingInReceived = append(missingInReceived, item)
		}
	}

	var parts []string
	if len(missingInExpected) > 0 {
		parts = append(parts, jsonvalue.Array(missingInExpected...).String()+" was provided but not expected")
	}
	if len(missingInReceived) > 0 {
		parts = append(parts, jsonvalue.Array(missingInReceived...).String()+" was expected but not received")
	}
	if len(parts) == 0 {
		return equal()
	}
	return Verdict{Kind: KindMismatch, Reason: strings.Join(parts, "; ")}
}

// index builds a set of canonical keys and returns the first repeated element.
func index(items []jsonvalue.Value) (map[string]struct{}, *jsonvalue.Value) {
	set := make(map[string]struct{}, len(items))
	for i := range items {
		k := items[i].Key()
		if _, ok := set[k]; ok {
			return nil, &items[i]
		}
		set[k] = struct{}{}
	}
	return set, nil
}

func typeMismatch(received, expected jsonvalue.Value) Verdict {
	return mismatch(KindTypeMismatch, "expected %s %s but received %s %s",
		article(expected.Kind()), expected.Kind(), article(received.Kind()), received.Kind())
}

func article(k jsonvalue.Kind) string {
	switch k {
	case jsonvalue.KindArray, jsonvalue.KindObject:
		return "an"
	default:
		return "a"
	}
}
