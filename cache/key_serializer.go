package cache

import (
	"encoding"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"
)

// KeySeparator defines the delimiter used between cache key segments.
const KeySeparator = "::"

// defaultKeySerializer implements KeySerializer using reflection-based serialization.
// Maps are emitted with sorted keys and structs by exported field name, so two
// logically identical parameter sets produce the same key whatever order they
// were assembled in.
type defaultKeySerializer struct{}

// NewDefaultKeySerializer creates a new instance of the default key serializer.
func NewDefaultKeySerializer() KeySerializer {
	return &defaultKeySerializer{}
}

// SerializeKey builds a cache key from a resource name and args.
func (s *defaultKeySerializer) SerializeKey(resource string, args ...any) string {
	if len(args) == 0 {
		return resource
	}

	parts := make([]string, 0, len(args)+1)
	parts = append(parts, resource)

	for _, arg := range args {
		parts = append(parts, s.serializeValue(arg))
	}

	return strings.Join(parts, KeySeparator)
}

// serializeValue handles individual argument serialization based on type.
func (s *defaultKeySerializer) serializeValue(v any) string {
	if v == nil {
		return "nil"
	}

	rv := reflect.ValueOf(v)
	rt := rv.Type()

	if rt.Kind() == reflect.Ptr && rv.IsNil() {
		return "nil"
	}

	switch tv := v.(type) {
	case time.Time:
		return "time:" + tv.UTC().Format(time.RFC3339Nano)
	case time.Duration:
		return tv.String()
	case encoding.TextMarshaler:
		if text, err := tv.MarshalText(); err == nil {
			return string(text)
		}
	}

	switch rt.Kind() {
	case reflect.Func:
		return fmt.Sprintf("func:%p", v)
	case reflect.Chan:
		return fmt.Sprintf("chan:%p", v)
	case reflect.Ptr:
		if rv.IsNil() {
			return "nil"
		}
		return s.serializeValue(rv.Elem().Interface())
	case reflect.Interface:
		if rv.IsNil() {
			return "interface:nil"
		}
		return s.serializeValue(rv.Elem().Interface())
	case reflect.Slice:
		if rv.IsNil() {
			return "slice:nil"
		}
		return "slice" + s.serializeSequence(rv)
	case reflect.Array:
		return "array" + s.serializeSequence(rv)
	case reflect.Map:
		if rv.IsNil() {
			return "map:nil"
		}
		return s.serializeMap(rv)
	case reflect.Struct:
		return s.serializeStruct(rv, rt)
	}

	if isBasicKind(rt.Kind()) {
		return fmt.Sprintf("%v", v)
	}

	return s.jsonFallback(v)
}

func (s *defaultKeySerializer) serializeSequence(rv reflect.Value) string {
	length := rv.Len()
	parts := make([]string, length)
	for i := 0; i < length; i++ {
		parts[i] = s.serializeValue(rv.Index(i).Interface())
	}
	return fmt.Sprintf("[%d]:{%s}", length, strings.Join(parts, ","))
}

// serializeMap sorts on the serialized key so insertion order never leaks into the key.
func (s *defaultKeySerializer) serializeMap(rv reflect.Value) string {
	pairs := make([]string, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		k := s.serializeValue(iter.Key().Interface())
		v := s.serializeValue(iter.Value().Interface())
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)

	return fmt.Sprintf("map[%d]:{%s}", len(pairs), strings.Join(pairs, ","))
}

func (s *defaultKeySerializer) serializeStruct(rv reflect.Value, rt reflect.Type) string {
	parts := make([]string, 0, rv.NumField())

	for i := 0; i < rv.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}

		fieldValue := rv.Field(i)
		if !fieldValue.CanInterface() {
			continue
		}

		parts = append(parts, field.Name+":"+s.serializeValue(fieldValue.Interface()))
	}

	return fmt.Sprintf("struct:{%s}", strings.Join(parts, ","))
}

func isBasicKind(kind reflect.Kind) bool {
	switch kind {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64,
		reflect.Complex64, reflect.Complex128,
		reflect.String:
		return true
	default:
		return false
	}
}

func (s *defaultKeySerializer) jsonFallback(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "fallback:" + reflect.TypeOf(v).String()
	}
	return "json:" + string(data)
}

// unstableKind reports the first value kind that cannot produce a key stable across
// processes: funcs, channels and unsafe pointers serialize by address.
func unstableKind(v any) (reflect.Kind, bool) {
	if v == nil {
		return reflect.Invalid, false
	}
	switch v.(type) {
	case time.Time, time.Duration, encoding.TextMarshaler:
		return reflect.Invalid, false
	}
	return unstableValue(reflect.ValueOf(v))
}

func unstableValue(rv reflect.Value) (reflect.Kind, bool) {
	switch rv.Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return rv.Kind(), true
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return reflect.Invalid, false
		}
		return unstableKind(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if k, bad := unstableKind(rv.Index(i).Interface()); bad {
				return k, true
			}
		}
	case reflect.Map:
		iter := rv.MapRange()
		for iter.Next() {
			if k, bad := unstableKind(iter.Key().Interface()); bad {
				return k, true
			}
			if k, bad := unstableKind(iter.Value().Interface()); bad {
				return k, true
			}
		}
	case reflect.Struct:
		for i := 0; i < rv.NumField(); i++ {
			if !rv.Type().Field(i).IsExported() || !rv.Field(i).CanInterface() {
				continue
			}
			if k, bad := unstableKind(rv.Field(i).Interface()); bad {
				return k, true
			}
		}
	}
	return reflect.Invalid, false
}
