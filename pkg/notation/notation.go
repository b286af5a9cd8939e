// Package notation implements the brace-delimited plan notation used to
// exchange analytical plans with text-generation backends. A document is a
// single typed object, @type{ field:value ... }, where values are strings,
// numbers, booleans, null, arrays, or nested typed objects. The format is a
// token-lean alternative to JSON for model output.
package notation

import "fmt"

// Recognized top-level document types.
const (
	TypePlan      = "plan"
	TypePanel     = "panel"
	TypeDashboard = "dashboard"
	TypeRefusal   = "refusal"
)

// Object is a parsed notation object. Field values are one of: string, bool,
// int64, float64, nil, []any, or *Object.
type Object struct {
	Type   string
	Fields map[string]any
}

// ParseError reports malformed notation input: unbalanced braces,
// unterminated strings, missing separators. Offset is a byte position into
// the original input.
type ParseError struct {
	Offset int
	Msg    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("notation: parse error at offset %d: %s", e.Offset, e.Msg)
}

// UnknownTypeError reports a structurally valid document whose type tag is
// not one of the recognized document types. Callers treat this differently
// from a ParseError when deciding how to re-prompt a backend.
type UnknownTypeError struct {
	Tag string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("notation: unrecognized type tag %q", e.Tag)
}

func knownType(tag string) bool {
	switch tag {
	case TypePlan, TypePanel, TypeDashboard, TypeRefusal:
		return true
	}
	return false
}

// Str returns the string value for key, or "" when absent or not a string.
func (o *Object) Str(key string) string {
	s, _ := o.Fields[key].(string)
	return s
}

// Bool returns the boolean value for key, defaulting to false.
func (o *Object) Bool(key string) bool {
	b, _ := o.Fields[key].(bool)
	return b
}

// Float returns the numeric value for key, accepting both integer and float
// representations.
func (o *Object) Float(key string) (float64, bool) {
	switch v := o.Fields[key].(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// Int returns the integer value for key. Floats with no fractional part are
// accepted; model output is not strict about numeric kinds.
func (o *Object) Int(key string) (int64, bool) {
	switch v := o.Fields[key].(type) {
	case int64:
		return v, true
	case float64:
		if v == float64(int64(v)) {
			return int64(v), true
		}
	}
	return 0, false
}

// Strings returns the array value for key flattened to its string elements.
func (o *Object) Strings(key string) []string {
	arr, ok := o.Fields[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, v := range arr {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Objects returns the array value for key flattened to its object elements.
func (o *Object) Objects(key string) []*Object {
	arr, ok := o.Fields[key].([]any)
	if !ok {
		return nil
	}
	out := make([]*Object, 0, len(arr))
	for _, v := range arr {
		if c, ok := v.(*Object); ok {
			out = append(out, c)
		}
	}
	return out
}

// Child returns the nested object value for key, or nil.
func (o *Object) Child(key string) *Object {
	c, _ := o.Fields[key].(*Object)
	return c
}
