package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"reflect"
	"slices"

	"github.com/vmihailenco/msgpack/v5"
)

// KeyFor derives a deterministic cache key from request parameters:
// prefix followed by the hex SHA-256 of their canonical encoding.
//
// The canonical encoding is msgpack with map entries sorted by their encoded
// key at every level, whatever the map's key and value types, and numbers in
// their most compact form. Insertion order and numeric Go types (int vs
// float64 from a JSON body) do not change the key.
func KeyFor(prefix string, params map[string]any) (string, error) {
	b, err := canonicalBytes(params)
	if err != nil {
		return "", fmt.Errorf("cache: encode key params: %w", err)
	}

	sum := sha256.Sum256(b)
	return prefix + hex.EncodeToString(sum[:]), nil
}

func canonicalBytes(v any) ([]byte, error) {
	c, err := canonicalize(reflect.ValueOf(v))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.UseCompactInts(true)
	enc.UseCompactFloats(true)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// canonicalize rewrites maps, at any depth, into sortedMap values.
func canonicalize(v reflect.Value) (any, error) {
	if !v.IsValid() {
		return nil, nil
	}

	switch v.Kind() {
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return nil, nil
		}
		return canonicalize(v.Elem())

	case reflect.Map:
		if v.IsNil() {
			return nil, nil
		}
		m := make(sortedMap, 0, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			k, err := canonicalBytes(iter.Key().Interface())
			if err != nil {
				return nil, err
			}
			val, err := canonicalBytes(iter.Value().Interface())
			if err != nil {
				return nil, err
			}
			m = append(m, mapEntry{key: k, value: val})
		}
		slices.SortFunc(m, func(a, b mapEntry) int {
			if c := bytes.Compare(a.key, b.key); c != 0 {
				return c
			}
			return bytes.Compare(a.value, b.value)
		})
		return m, nil

	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice && v.IsNil() {
			return nil, nil
		}
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return v.Interface(), nil
		}
		out := make([]any, v.Len())
		for i := range out {
			c, err := canonicalize(v.Index(i))
			if err != nil {
				return nil, err
			}
			out[i] = c
		}
		return out, nil

	case reflect.Struct:
		if !v.CanInterface() {
			return nil, fmt.Errorf("unexported value of type %s", v.Type())
		}
		// Round trip through msgpack so map fields become plain maps.
		raw, err := msgpack.Marshal(v.Interface())
		if err != nil {
			return nil, err
		}
		var decoded any
		if err := msgpack.Unmarshal(raw, &decoded); err != nil {
			return nil, err
		}
		d := reflect.ValueOf(decoded)
		if d.Kind() == reflect.Struct {
			return decoded, nil
		}
		return canonicalize(d)
	}

	if !v.CanInterface() {
		return nil, fmt.Errorf("unexported value of type %s", v.Type())
	}
	return v.Interface(), nil
}

type mapEntry struct {
	key, value []byte
}

// sortedMap is a map already encoded entry by entry, in sorted order.
type sortedMap []mapEntry

func (m sortedMap) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeMapLen(len(m)); err != nil {
		return err
	}
	for _, e := range m {
		if err := enc.Encode(msgpack.RawMessage(e.key)); err != nil {
			return err
		}
		if err := enc.Encode(msgpack.RawMessage(e.value)); err != nil {
			return err
		}
	}
	return nil
}
