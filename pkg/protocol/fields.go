// ABOUTME: Strict field reader over gjson results
// ABOUTME: Records the first missing or mistyped field as a PayloadError
package protocol

import (
	"github.com/tidwall/gjson"
)

// Fields reads typed values out of a JSON object and remembers the first
// failure. Callers read every field they need, then check Err once.
type Fields struct {
	root gjson.Result
	err  error
}

// ParseFields validates data as a JSON object and returns a reader over it.
func ParseFields(data []byte) (*Fields, error) {
	if !gjson.ValidBytes(data) {
		return nil, &PayloadError{Reason: "is not valid JSON"}
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, &PayloadError{Reason: "is not a JSON object"}
	}
	return &Fields{root: root}, nil
}

// FieldsOf returns a reader over an already parsed value.
func FieldsOf(root gjson.Result) *Fields {
	f := &Fields{root: root}
	if !root.IsObject() {
		f.err = &PayloadError{Reason: "is not a JSON object"}
	}
	return f
}

// Err returns the first decoding failure, if any.
func (f *Fields) Err() error {
	return f.err
}

// Root returns the underlying value.
func (f *Fields) Root() gjson.Result {
	return f.root
}

func (f *Fields) lookup(path string, want ...gjson.Type) (gjson.Result, bool) {
	if f.err != nil {
		return gjson.Result{}, false
	}
	v := f.root.Get(path)
	if !v.Exists() {
		f.err = &PayloadError{Field: path, Reason: "is missing"}
		return v, false
	}
	for _, t := range want {
		if v.Type == t {
			return v, true
		}
	}
	f.err = &PayloadError{Field: path, Reason: "has type " + v.Type.String()}
	return v, false
}

// String reads a required string field.
func (f *Fields) String(path string) string {
	v, ok := f.lookup(path, gjson.String)
	if !ok {
		return ""
	}
	return v.Str
}

// Int reads a required numeric field as an integer.
func (f *Fields) Int(path string) int64 {
	v, ok := f.lookup(path, gjson.Number)
	if !ok {
		return 0
	}
	return v.Int()
}

// Float reads a required numeric field.
func (f *Fields) Float(path string) float64 {
	v, ok := f.lookup(path, gjson.Number)
	if !ok {
		return 0
	}
	return v.Float()
}

// Bool reads a required boolean field.
func (f *Fields) Bool(path string) bool {
	v, ok := f.lookup(path, gjson.True, gjson.False)
	if !ok {
		return false
	}
	return v.Bool()
}

// OptInt reads an optional numeric field, returning def when it is absent
// or null. A present value of another type is still an error.
func (f *Fields) OptInt(path string, def int64) int64 {
	if f.err != nil {
		return def
	}
	v := f.root.Get(path)
	if !v.Exists() || v.Type == gjson.Null {
		return def
	}
	return f.Int(path)
}
