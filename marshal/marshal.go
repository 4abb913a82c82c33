package marshal

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/wippyai/uibridge/errors"
	"github.com/wippyai/uibridge/value"
)

// AnomalyFunc receives every value that fell back to its string representation.
type AnomalyFunc func(*errors.Error)

// Marshaler converts between interpreter values and native values.
// It is stateless apart from its diagnostics sinks and safe for concurrent use.
type Marshaler struct {
	logger    *zap.Logger
	onAnomaly AnomalyFunc
}

// Option configures a Marshaler.
type Option func(*Marshaler)

// WithLogger sets the logger used for anomaly warnings.
func WithLogger(l *zap.Logger) Option {
	return func(m *Marshaler) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithAnomalyFunc sets a callback invoked for each marshaling anomaly.
func WithAnomalyFunc(fn AnomalyFunc) Option {
	return func(m *Marshaler) { m.onAnomaly = fn }
}

// New creates a Marshaler.
func New(opts ...Option) *Marshaler {
	m := &Marshaler{logger: Logger()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ToNative converts with a marshaler using the package logger.
func ToNative(v value.Value) any { return New().ToNative(v) }

// ToInterpreter converts with a marshaler using the package logger.
func ToInterpreter(x any) value.Value { return New().ToInterpreter(x) }

// ToNative converts an interpreter value into a native value. It never fails;
// unrecognized shapes become their string representation and are reported.
func (m *Marshaler) ToNative(v value.Value) any {
	return m.toNative(v, nil)
}

func (m *Marshaler) toNative(v value.Value, path []string) any {
	switch x := v.(type) {
	case nil:
		return nil
	case value.Null:
		return nil
	case value.Logical:
		return unwrapVector(len(x), func(i int) any { return x[i] })
	case value.Integer:
		return unwrapVector(len(x), func(i int) any { return float64(x[i]) })
	case value.Double:
		return unwrapVector(len(x), func(i int) any { return x[i] })
	case value.Character:
		return unwrapVector(len(x), func(i int) any { return x[i] })
	case *value.List:
		if x == nil {
			return nil
		}
		if x.IsNamed() {
			out := make(map[string]any, len(x.Values))
			for i, elem := range x.Values {
				name := x.Names[i]
				out[name] = m.toNative(elem, appendPath(path, name))
			}
			return out
		}
		out := make([]any, len(x.Values))
		for i, elem := range x.Values {
			out[i] = m.toNative(elem, appendPath(path, strconv.Itoa(i)))
		}
		return out
	default:
		repr := v.String()
		m.anomaly(errors.MarshalingAnomaly(path, v.Type().String(), repr))
		return repr
	}
}

func unwrapVector(n int, elem func(int) any) any {
	if n == 1 {
		return elem(0)
	}
	out := make([]any, n)
	for i := range out {
		out[i] = elem(i)
	}
	return out
}

// ToInterpreter converts a native value into an interpreter value. It never
// fails; unrecognized Go types become a character vector of their printed form.
func (m *Marshaler) ToInterpreter(x any) value.Value {
	return m.toInterpreter(x, nil)
}

func (m *Marshaler) toInterpreter(x any, path []string) value.Value {
	switch v := x.(type) {
	case nil:
		return value.Null{}
	case value.Value:
		return v
	case string:
		return value.Character{v}
	case bool:
		return value.Logical{v}
	case float64:
		return value.Double{v}
	case float32:
		return value.Double{float64(v)}
	case int:
		return value.Integer{int64(v)}
	case int32:
		return value.Integer{int64(v)}
	case int64:
		return value.Integer{v}
	case uint32:
		return value.Integer{int64(v)}
	case uint64:
		if v > math.MaxInt64 {
			return value.Double{float64(v)}
		}
		return value.Integer{int64(v)}
	case []any:
		out := make([]value.Value, len(v))
		for i, elem := range v {
			out[i] = m.toInterpreter(elem, appendPath(path, strconv.Itoa(i)))
		}
		return value.NewList(out...)
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		vals := make([]value.Value, len(keys))
		for i, k := range keys {
			vals[i] = m.toInterpreter(v[k], appendPath(path, k))
		}
		return value.NewNamedList(keys, vals)
	}
	return m.reflectToInterpreter(x, path)
}

// reflectToInterpreter handles typed slices and string-keyed maps.
func (m *Marshaler) reflectToInterpreter(x any, path []string) value.Value {
	rv := reflect.ValueOf(x)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return value.Null{}
		}
		return m.toInterpreter(rv.Elem().Interface(), path)
	case reflect.Slice, reflect.Array:
		out := make([]value.Value, rv.Len())
		for i := range out {
			out[i] = m.toInterpreter(rv.Index(i).Interface(), appendPath(path, strconv.Itoa(i)))
		}
		return value.NewList(out...)
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		keys := make([]string, 0, rv.Len())
		for _, k := range rv.MapKeys() {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		vals := make([]value.Value, len(keys))
		for i, k := range keys {
			vals[i] = m.toInterpreter(rv.MapIndex(reflect.ValueOf(k).Convert(rv.Type().Key())).Interface(), appendPath(path, k))
		}
		return value.NewNamedList(keys, vals)
	case reflect.Int, reflect.Int8, reflect.Int16:
		return value.Integer{rv.Int()}
	case reflect.Uint, reflect.Uint8, reflect.Uint16:
		return value.Integer{int64(rv.Uint())}
	case reflect.String:
		return value.Character{rv.String()}
	case reflect.Bool:
		return value.Logical{rv.Bool()}
	}
	repr := fmt.Sprint(x)
	err := errors.MarshalingAnomaly(path, "", repr)
	err.GoType = fmt.Sprintf("%T", x)
	m.anomaly(err)
	return value.Character{repr}
}

func (m *Marshaler) anomaly(err *errors.Error) {
	m.logger.Warn("marshaling anomaly",
		zap.Strings("path", err.Path),
		zap.String("script_type", err.ScriptType),
		zap.String("go_type", err.GoType),
		zap.Any("fallback", err.Value))
	if m.onAnomaly != nil {
		m.onAnomaly(err)
	}
}

func appendPath(path []string, elem string) []string {
	out := make([]string, len(path)+1)
	copy(out, path)
	out[len(path)] = elem
	return out
}
