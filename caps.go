// Caps values describe media formats the way the engine negotiates them.
package gstkit

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Fraction is an exact rational, used for framerates.
type Fraction struct {
	Num int // Numerator
	Den int // Denominator
}

// IsZero reports whether the fraction is unset.
func (f Fraction) IsZero() bool {
	return f.Num == 0
}

func (f Fraction) String() string {
	den := f.Den
	if den == 0 {
		den = 1
	}
	return strconv.Itoa(f.Num) + "/" + strconv.Itoa(den)
}

// FractionFromFloat converts a framerate to a fraction. Whole rates map
// to n/1, fractional rates to round(v*1000)/1000.
func FractionFromFloat(v float64) Fraction {
	if v <= 0 {
		return Fraction{}
	}
	if v == math.Trunc(v) {
		return Fraction{Num: int(v), Den: 1}
	}
	return Fraction{Num: int(math.Round(v * 1000)), Den: 1000}
}

// ParseFraction parses "num/den". A bare integer parses as n/1.
func ParseFraction(s string) (Fraction, error) {
	num, den, ok := strings.Cut(s, "/")
	n, err := strconv.Atoi(strings.TrimSpace(num))
	if err != nil {
		return Fraction{}, fmt.Errorf("invalid fraction %q: %w", s, err)
	}
	if !ok {
		return Fraction{Num: n, Den: 1}, nil
	}
	d, err := strconv.Atoi(strings.TrimSpace(den))
	if err != nil || d == 0 {
		return Fraction{}, fmt.Errorf("invalid fraction denominator %q", s)
	}
	return Fraction{Num: n, Den: d}, nil
}

type capsField struct {
	key   string
	value string
}

// Caps is a media type name plus ordered fields, serialized in the
// engine's launch syntax: "video/x-raw,format=RGB,width=640". The zero
// value means "unconstrained". Caps values are immutable; With returns
// a modified copy.
type Caps struct {
	name   string
	fields []capsField
}

// NewCaps returns caps with the given media type and no fields.
func NewCaps(name string) Caps {
	return Caps{name: name}
}

// Name returns the media type, e.g. "video/x-raw".
func (c Caps) Name() string { return c.name }

// IsEmpty reports whether the caps constrain nothing.
func (c Caps) IsEmpty() bool { return c.name == "" }

// With returns a copy of c with key set to value. An existing key is
// replaced in place; a new key appends, preserving field order.
func (c Caps) With(key, value string) Caps {
	fields := make([]capsField, len(c.fields), len(c.fields)+1)
	copy(fields, c.fields)
	for i := range fields {
		if fields[i].key == key {
			fields[i].value = value
			return Caps{name: c.name, fields: fields}
		}
	}
	return Caps{name: c.name, fields: append(fields, capsField{key, value})}
}

// WithInt is With for integer values.
func (c Caps) WithInt(key string, v int) Caps {
	return c.With(key, strconv.Itoa(v))
}

// WithFraction is With for fraction values.
func (c Caps) WithFraction(key string, f Fraction) Caps {
	return c.With(key, f.String())
}

// Get returns the raw value of a field.
func (c Caps) Get(key string) (string, bool) {
	for _, f := range c.fields {
		if f.key == key {
			return f.value, true
		}
	}
	return "", false
}

// Has reports whether the field is present.
func (c Caps) Has(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// Int returns a field parsed as an integer.
func (c Caps) Int(key string) (int, bool) {
	v, ok := c.Get(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Fraction returns a field parsed as a fraction.
func (c Caps) Fraction(key string) (Fraction, bool) {
	v, ok := c.Get(key)
	if !ok {
		return Fraction{}, false
	}
	f, err := ParseFraction(v)
	if err != nil {
		return Fraction{}, false
	}
	return f, true
}

// Equal reports whether two caps have the same name and fields in the
// same order.
func (c Caps) Equal(o Caps) bool {
	if c.name != o.name || len(c.fields) != len(o.fields) {
		return false
	}
	for i := range c.fields {
		if c.fields[i] != o.fields[i] {
			return false
		}
	}
	return true
}

func (c Caps) String() string {
	if c.IsEmpty() {
		return ""
	}
	var b strings.Builder
	b.WriteString(c.name)
	for _, f := range c.fields {
		b.WriteByte(',')
		b.WriteString(f.key)
		b.WriteByte('=')
		b.WriteString(f.value)
	}
	return b.String()
}

// ParseCaps parses the engine's serialized caps form. Type annotations
// like "width=(int)640" and surrounding whitespace are tolerated; only
// the first structure of a multi-structure caps string is kept.
func ParseCaps(s string) (Caps, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Caps{}, nil
	}
	if i := strings.IndexByte(s, ';'); i >= 0 {
		s = s[:i]
	}
	parts := strings.Split(s, ",")
	name := strings.TrimSpace(parts[0])
	if name == "" || strings.ContainsRune(name, '=') {
		return Caps{}, fmt.Errorf("invalid caps %q: missing media type", s)
	}
	c := NewCaps(name)
	for _, p := range parts[1:] {
		key, value, ok := strings.Cut(p, "=")
		if !ok {
			return Caps{}, fmt.Errorf("invalid caps field %q", p)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		// Strip "(int)", "(string)" style annotations.
		if strings.HasPrefix(value, "(") {
			if i := strings.IndexByte(value, ')'); i >= 0 {
				value = value[i+1:]
			}
		}
		value = strings.Trim(value, `"`)
		if key == "" {
			return Caps{}, fmt.Errorf("invalid caps field %q", p)
		}
		c = c.With(key, value)
	}
	return c, nil
}
