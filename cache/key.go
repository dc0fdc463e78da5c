package cache

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

var keySerializer = &defaultKeySerializer{}

// QueryKey identifies a cacheable request and its parameters. It is an ordered
// tuple of serialized segments; two keys are equal iff their segment tuples are.
// The zero value is not a valid key.
type QueryKey struct {
	segments []string
	raw      string
	id       string
}

// BuildKey derives the key for resource parameterized by params. The resource name
// is normalized to snake_case and every param goes through the default serializer,
// so map insertion order and call site never change the result.
//
// Malformed input is a programming error: BuildKey panics on an empty resource or
// on params holding funcs, channels or unsafe pointers.
func BuildKey(resource string, params ...any) QueryKey {
	name := toSnake(resource)
	if name == "" {
		panic("cache: BuildKey requires a non-empty resource name")
	}

	segments := make([]string, 0, len(params)+1)
	segments = append(segments, name)
	for i, p := range params {
		if kind, bad := unstableKind(p); bad {
			panic(fmt.Sprintf("cache: BuildKey(%q) param %d has unserializable kind %s", resource, i, kind))
		}
		segments = append(segments, keySerializer.serializeValue(p))
	}

	return QueryKey{
		segments: segments,
		raw:      strings.Join(segments, KeySeparator),
		id:       encodeSegments(segments),
	}
}

// encodeSegments length-prefixes every segment so that no two tuples share an
// encoding, whatever separators the segments contain.
func encodeSegments(segments []string) string {
	var b strings.Builder
	for _, s := range segments {
		b.WriteString(strconv.Itoa(len(s)))
		b.WriteByte(':')
		b.WriteString(s)
	}
	return b.String()
}

// Extend returns a new key with params appended to k.
func (k QueryKey) Extend(params ...any) QueryKey {
	if k.IsZero() {
		panic("cache: Extend called on a zero QueryKey")
	}
	args := make([]any, 0, len(k.segments)-1+len(params))
	for _, s := range k.segments[1:] {
		args = append(args, rawSegment(s))
	}
	args = append(args, params...)
	return BuildKey(k.segments[0], args...)
}

// rawSegment is an already serialized segment; it implements TextMarshaler so the
// serializer passes it through untouched.
type rawSegment string

func (r rawSegment) MarshalText() ([]byte, error) { return []byte(r), nil }

// Resource returns the first segment of the key.
func (k QueryKey) Resource() string {
	if len(k.segments) == 0 {
		return ""
	}
	return k.segments[0]
}

// Segments returns a copy of the serialized segments.
func (k QueryKey) Segments() []string {
	return append([]string(nil), k.segments...)
}

// Len returns the number of segments in the key.
func (k QueryKey) Len() int { return len(k.segments) }

// String returns the serialized key joined with KeySeparator. It is meant for
// display; segments holding the separator can render alike, so use ID for identity.
func (k QueryKey) String() string { return k.raw }

// ID returns an unambiguous encoding of the segment tuple.
func (k QueryKey) ID() string { return k.id }

// IsZero reports whether k was never built.
func (k QueryKey) IsZero() bool { return len(k.segments) == 0 }

// Equal reports whether both keys hold the same segments.
func (k QueryKey) Equal(other QueryKey) bool { return k.id == other.id }

// HasPrefix reports whether prefix's segments are a leading subsequence of k's.
func (k QueryKey) HasPrefix(prefix QueryKey) bool {
	if prefix.IsZero() || len(prefix.segments) > len(k.segments) {
		return false
	}
	for i, s := range prefix.segments {
		if k.segments[i] != s {
			return false
		}
	}
	return true
}

// Hash returns the xxhash64 fingerprint of the key's ID.
func (k QueryKey) Hash() uint64 { return xxhash.Sum64String(k.id) }

// Fingerprint is Hash rendered as a fixed-width hex string.
func (k QueryKey) Fingerprint() string {
	s := strconv.FormatUint(k.Hash(), 16)
	return strings.Repeat("0", 16-len(s)) + s
}

// MarshalText renders the serialized key.
func (k QueryKey) MarshalText() ([]byte, error) { return []byte(k.raw), nil }

// KeyPredicate selects query keys, typically for invalidation.
type KeyPredicate func(QueryKey) bool

// MatchExact selects exactly key.
func MatchExact(key QueryKey) KeyPredicate {
	return func(k QueryKey) bool { return k.Equal(key) }
}

// MatchPrefix selects key and every key extending it.
func MatchPrefix(key QueryKey) KeyPredicate {
	return func(k QueryKey) bool { return k.HasPrefix(key) }
}

// MatchResource selects every key whose resource is name.
func MatchResource(name string) KeyPredicate {
	normalized := toSnake(name)
	return func(k QueryKey) bool { return k.Resource() == normalized }
}

// MatchAny selects keys matched by at least one of preds.
func MatchAny(preds ...KeyPredicate) KeyPredicate {
	return func(k QueryKey) bool {
		for _, p := range preds {
			if p != nil && p(k) {
				return true
			}
		}
		return false
	}
}

// toSnake converts the provided string to snake_case using ASCII-aware rules and
// strips punctuation so resource names stay usable as prefix segments.
func toSnake(s string) string {
	if s == "" {
		return ""
	}

	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(runes) + len(runes)/2)

	lastUnderscore := false

	for i := 0; i < len(runes); i++ {
		r := runes[i]

		switch {
		case unicode.IsUpper(r):
			if b.Len() > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if (unicode.IsLower(prev) || unicode.IsDigit(prev) || nextLower) && !lastUnderscore {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
			lastUnderscore = false

		case unicode.IsLower(r), unicode.IsDigit(r):
			b.WriteRune(r)
			lastUnderscore = false

		default:
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}

	return strings.Trim(b.String(), "_")
}
