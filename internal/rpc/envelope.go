package rpc

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
)

const (
	// bufferRefKey is the single member of a buffer placeholder object.
	bufferRefKey = "$buf"
	// escapeKey wraps a value object that would otherwise read as a
	// placeholder, so {"$buf":0} written by the caller travels as
	// {"$buf$":{"$buf":0}}.
	escapeKey = "$buf$"
)

// Buffer is an opaque binary payload. Buffers inside a value passed to Wrap
// travel outside the JSON text, so they are never base64 encoded. A nil
// Buffer encodes as JSON null.
type Buffer []byte

// Envelope is a serialized payload: JSON text plus the binary buffers its
// placeholders refer to. Placeholder {"$buf":N} in Data stands for
// Buffers[N]. An object whose only member is "$buf$" carries its member
// verbatim. Buffers are not copied; callers must not modify a buffer after
// handing it to Wrap.
type Envelope struct {
	Data    jsontext.Value
	Buffers [][]byte
}

// Wrap serializes v into an envelope. Every Buffer reachable from v is
// extracted into Buffers in the order it is encountered, so the first buffer
// is index 0. Objects in v shaped like a placeholder or an escape are
// escaped, so Unwrap returns them unchanged.
func Wrap(v any) (*Envelope, error) {
	env := &Envelope{}
	refs := make(map[int64]bool)
	extract := json.MarshalToFunc(func(enc *jsontext.Encoder, b Buffer) error {
		if b == nil {
			return enc.WriteToken(jsontext.Null)
		}
		idx := len(env.Buffers)
		env.Buffers = append(env.Buffers, b)
		ref := `{"` + bufferRefKey + `":` + strconv.Itoa(idx) + `}`
		if err := enc.WriteValue(jsontext.Value(ref)); err != nil {
			return err
		}
		refs[enc.OutputOffset()] = true
		return nil
	})

	data, err := json.Marshal(v, json.WithMarshalers(extract), json.Deterministic(true))
	if err != nil {
		return nil, fmt.Errorf("wrap: %w", err)
	}
	if mayHoldMarkers(data) {
		esc := &escaper{refs: refs}
		if data, err = esc.value(nil, data, 0); err != nil {
			return nil, fmt.Errorf("wrap: %w", err)
		}
	}
	env.Data = data
	return env, nil
}

// Unwrap decodes env into out, which must be a non-nil pointer. Placeholders
// decoded into Buffer-typed positions are substituted directly. Placeholders
// that land in dynamically typed positions (any, map[string]any, []any) are
// revived into Buffer values after decoding. Any placeholder whose index is
// outside the buffer list fails the whole decode with a *BufferRefError.
func Unwrap(env *Envelope, out any) error {
	if env == nil || len(env.Data) == 0 {
		return nil
	}
	data := []byte(env.Data)
	u := &unescaper{key: bufferRefKey + "#0", count: len(env.Buffers)}
	if mayHoldMarkers(data) {
		key, err := freshKey(data)
		if err != nil {
			return fmt.Errorf("unwrap: %w", err)
		}
		u.key = key
		if data, err = u.value(nil, data, false); err != nil {
			var refErr *BufferRefError
			if errors.As(err, &refErr) {
				return refErr
			}
			return fmt.Errorf("unwrap: %w", err)
		}
	}

	substitute := json.UnmarshalFunc(func(raw []byte, b *Buffer) error {
		if string(raw) == "null" {
			*b = nil
			return nil
		}
		idx, err := parseBufferRef(raw, u.key)
		if err != nil {
			return err
		}
		buf, err := lookupBuffer(env.Buffers, idx)
		if err != nil {
			return err
		}
		*b = buf
		return nil
	})

	if err := json.Unmarshal(data, out, json.WithUnmarshalers(substitute)); err != nil {
		var refErr *BufferRefError
		if errors.As(err, &refErr) {
			return refErr
		}
		return fmt.Errorf("unwrap: %w", err)
	}
	return revive(reflect.ValueOf(out), u.key, env.Buffers)
}

// mayHoldMarkers reports whether data can contain a placeholder or escape
// object. Text without "$buf" and without \u escapes cannot.
func mayHoldMarkers(data []byte) bool {
	return bytes.Contains(data, []byte(bufferRefKey)) || bytes.Contains(data, []byte(`\u`))
}

type member struct {
	name  string
	value jsontext.Value
	start int64
}

// splitElems returns the members of the object or the elements of the array
// raw, whose first byte sits at offset start of the enclosing text. Elements
// have an empty name.
func splitElems(raw jsontext.Value, start int64) ([]member, error) {
	dec := jsontext.NewDecoder(bytes.NewReader(raw))
	open, err := dec.ReadToken()
	if err != nil {
		return nil, err
	}
	closer := jsontext.Kind(']')
	if open.Kind() == '{' {
		closer = '}'
	}
	var ms []member
	for dec.PeekKind() != closer {
		var m member
		if closer == '}' {
			name, err := dec.ReadToken()
			if err != nil {
				return nil, err
			}
			m.name = name.String()
		}
		val, err := dec.ReadValue()
		if err != nil {
			return nil, err
		}
		m.value = val.Clone()
		m.start = start + dec.InputOffset() - int64(len(val))
		ms = append(ms, m)
	}
	return ms, nil
}

// appendElems writes ms back as an object or array, rewriting each value
// with fn.
func appendElems(dst []byte, kind jsontext.Kind, ms []member, fn func([]byte, member) ([]byte, error)) ([]byte, error) {
	closer := byte(']')
	if kind == '{' {
		closer = '}'
	}
	dst = append(dst, byte(kind))
	for i, m := range ms {
		if i > 0 {
			dst = append(dst, ',')
		}
		var err error
		if kind == '{' {
			if dst, err = jsontext.AppendQuote(dst, m.name); err != nil {
				return nil, err
			}
			dst = append(dst, ':')
		}
		if dst, err = fn(dst, m); err != nil {
			return nil, err
		}
	}
	return append(dst, closer), nil
}

func markerShaped(ms []member) bool {
	return len(ms) == 1 && (ms[0].name == bufferRefKey || ms[0].name == escapeKey)
}

// escaper wraps placeholder-shaped value objects in an escape. refs holds
// the end offsets of the real placeholders in the marshaled text.
type escaper struct {
	refs map[int64]bool
}

func (e *escaper) value(dst []byte, raw jsontext.Value, start int64) ([]byte, error) {
	kind := raw.Kind()
	if kind != '{' && kind != '[' {
		return append(dst, raw...), nil
	}
	if kind == '{' && e.refs[start+int64(len(raw))] {
		return append(dst, raw...), nil
	}
	ms, err := splitElems(raw, start)
	if err != nil {
		return nil, err
	}
	escape := kind == '{' && markerShaped(ms)
	if escape {
		dst = append(dst, `{"`+escapeKey+`":`...)
	}
	dst, err = appendElems(dst, kind, ms, func(dst []byte, m member) ([]byte, error) {
		return e.value(dst, m.value, m.start)
	})
	if err != nil {
		return nil, err
	}
	if escape {
		dst = append(dst, '}')
	}
	return dst, nil
}

// unescaper strips escapes and renames every placeholder member to key, a
// name that appears nowhere else in the text, so placeholders stay
// distinguishable from value objects once decoded.
type unescaper struct {
	key   string
	count int
}

func (u *unescaper) value(dst []byte, raw jsontext.Value, literal bool) ([]byte, error) {
	kind := raw.Kind()
	if kind != '{' && kind != '[' {
		return append(dst, raw...), nil
	}
	ms, err := splitElems(raw, 0)
	if err != nil {
		return nil, err
	}
	if kind == '{' && !literal && markerShaped(ms) {
		m := ms[0]
		if m.name == escapeKey {
			if m.value.Kind() != '{' {
				return nil, fmt.Errorf("%w: escape holds %s, want an object", ErrBufferRef, m.value.Kind())
			}
			return u.value(dst, m.value, true)
		}
		var f float64
		if err := json.Unmarshal(m.value, &f); err != nil {
			return nil, fmt.Errorf("%w: non-numeric index %s", ErrBufferRef, m.value)
		}
		idx, err := refIndex(f)
		if err != nil {
			return nil, err
		}
		if idx >= u.count {
			return nil, &BufferRefError{Index: idx, Count: u.count}
		}
		if dst, err = jsontext.AppendQuote(append(dst, '{'), u.key); err != nil {
			return nil, err
		}
		return append(strconv.AppendInt(append(dst, ':'), int64(idx), 10), '}'), nil
	}
	return appendElems(dst, kind, ms, func(dst []byte, m member) ([]byte, error) {
		return u.value(dst, m.value, false)
	})
}

// freshKey picks a member name that no string in data uses.
func freshKey(data []byte) (string, error) {
	used := make(map[string]bool)
	dec := jsontext.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.ReadToken()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		if tok.Kind() == '"' {
			if s := tok.String(); strings.HasPrefix(s, bufferRefKey) {
				used[s] = true
			}
		}
	}
	for i := 0; ; i++ {
		if key := bufferRefKey + "#" + strconv.Itoa(i); !used[key] {
			return key, nil
		}
	}
}

func parseBufferRef(data []byte, key string) (int, error) {
	var ref map[string]any
	if err := json.Unmarshal(data, &ref); err != nil || len(ref) != 1 {
		return 0, fmt.Errorf("%w: %s is not a buffer placeholder", ErrBufferRef, data)
	}
	f, ok := ref[key].(float64)
	if !ok {
		return 0, fmt.Errorf("%w: %s is not a buffer placeholder", ErrBufferRef, data)
	}
	return refIndex(f)
}

func refIndex(f float64) (int, error) {
	if f != math.Trunc(f) || f < 0 || f > math.MaxInt32 {
		return 0, fmt.Errorf("%w: index %v", ErrBufferRef, f)
	}
	return int(f), nil
}

func lookupBuffer(bufs [][]byte, idx int) (Buffer, error) {
	if idx < 0 || idx >= len(bufs) {
		return nil, &BufferRefError{Index: idx, Count: len(bufs)}
	}
	return Buffer(bufs[idx]), nil
}

var (
	bufferType    = reflect.TypeFor[Buffer]()
	genericObject = reflect.TypeFor[map[string]any]()
)

// placeholder reports whether v holds a decoded placeholder object, whose
// only member is key, and if so the buffer it refers to.
func placeholder(v reflect.Value, key string, bufs [][]byte) (Buffer, bool, error) {
	if v.Kind() != reflect.Interface || v.IsNil() {
		return nil, false, nil
	}
	elem := v.Elem()
	if elem.Type() != genericObject || elem.Len() != 1 {
		return nil, false, nil
	}
	raw, ok := elem.Interface().(map[string]any)[key]
	if !ok {
		return nil, false, nil
	}
	f, ok := raw.(float64)
	if !ok {
		return nil, false, fmt.Errorf("%w: non-numeric index %v", ErrBufferRef, raw)
	}
	idx, err := refIndex(f)
	if err != nil {
		return nil, false, err
	}
	buf, err := lookupBuffer(bufs, idx)
	if err != nil {
		return nil, false, err
	}
	return buf, true, nil
}

// revive walks a decoded value and replaces placeholder objects found in
// interface-typed positions with Buffer values.
func revive(v reflect.Value, key string, bufs [][]byte) error {
	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			return nil
		}
		return revive(v.Elem(), key, bufs)

	case reflect.Interface:
		if v.IsNil() {
			return nil
		}
		buf, ok, err := placeholder(v, key, bufs)
		if err != nil {
			return err
		}
		if ok {
			if v.CanSet() {
				v.Set(reflect.ValueOf(buf))
			}
			return nil
		}
		return revive(v.Elem(), key, bufs)

	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			if !v.Type().Field(i).IsExported() {
				continue
			}
			if err := revive(v.Field(i), key, bufs); err != nil {
				return err
			}
		}

	case reflect.Slice, reflect.Array:
		if v.Type() == bufferType || v.Type().Elem().Kind() == reflect.Uint8 {
			return nil
		}
		for i := 0; i < v.Len(); i++ {
			if err := revive(v.Index(i), key, bufs); err != nil {
				return err
			}
		}

	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			val := iter.Value()
			buf, ok, err := placeholder(val, key, bufs)
			if err != nil {
				return err
			}
			if ok {
				v.SetMapIndex(iter.Key(), reflect.ValueOf(buf))
				continue
			}
			if err := revive(val, key, bufs); err != nil {
				return err
			}
		}
	}
	return nil
}

// Value is the result of a successful call. It keeps the raw envelope so the
// caller decides the Go type to decode into.
type Value struct {
	Envelope
}

// NewValue wraps v as a Value, for handlers and tests that need to fabricate
// a result locally.
func NewValue(v any) (Value, error) {
	env, err := Wrap(v)
	if err != nil {
		return Value{}, err
	}
	return Value{Envelope: *env}, nil
}

// Decode decodes the value into out.
func (v Value) Decode(out any) error {
	return Unwrap(&v.Envelope, out)
}

// IsNull reports whether the callee returned no value.
func (v Value) IsNull() bool {
	return len(v.Data) == 0 || string(v.Data) == "null"
}

// Args is the positional argument list of an invocation.
type Args struct {
	items   []jsontext.Value
	buffers [][]byte
}

// NewArgs splits an envelope holding a JSON array into positional arguments.
// An empty or null payload yields zero arguments.
func NewArgs(env *Envelope) (*Args, error) {
	a := &Args{}
	if env == nil {
		return a, nil
	}
	a.buffers = env.Buffers
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return a, nil
	}
	if err := json.Unmarshal(env.Data, &a.items); err != nil {
		return nil, fmt.Errorf("%w: arguments are not an array: %w", ErrInvalidParams, err)
	}
	return a, nil
}

// Len returns the number of arguments.
func (a *Args) Len() int {
	return len(a.items)
}

// Raw returns the JSON text of argument i, or nil when absent.
func (a *Args) Raw(i int) jsontext.Value {
	if i < 0 || i >= len(a.items) {
		return nil
	}
	return a.items[i]
}

// Decode decodes argument i into out. A missing trailing argument leaves out
// untouched, matching optional parameters.
func (a *Args) Decode(i int, out any) error {
	if i < 0 || i >= len(a.items) {
		return nil
	}
	err := Unwrap(&Envelope{Data: a.items[i], Buffers: a.buffers}, out)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrBufferRef) {
		return err
	}
	return fmt.Errorf("%w: argument %d: %w", ErrInvalidParams, i, err)
}

// Envelope re-wraps the arguments from index i onward as a JSON array that
// shares the original buffers, for forwarding variadic tails.
func (a *Args) Envelope(from int) *Envelope {
	if from > len(a.items) {
		from = len(a.items)
	}
	data := []byte{'['}
	for i, item := range a.items[from:] {
		if i > 0 {
			data = append(data, ',')
		}
		data = append(data, item...)
	}
	data = append(data, ']')
	return &Envelope{Data: data, Buffers: a.buffers}
}
