package sdk

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Kind is the type a field accepts.
type Kind int

const (
	KindAny Kind = iota
	KindString
	KindNumber
	KindInteger
	KindBoolean
	KindDateTime
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindInteger:
		return "integer"
	case KindBoolean:
		return "boolean"
	case KindDateTime:
		return "datetime"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "any"
	}
}

// Field describes one schema field. Modifiers return a new Field and never
// change the receiver.
//
// Example:
//
//	fields := sdk.Fields{
//	    "title":  sdk.String().Rules("min=1,max=200"),
//	    "status": sdk.String().Rules("oneof=todo doing done").Default("todo"),
//	    "tags":   sdk.Array(sdk.String()).Optional(),
//	}
type Field struct {
	Kind       Kind
	IsOptional bool
	IsNullable bool
	HasDefault bool
	DefaultVal any
	Tag        string
	Elem       *Field
	Fields     Fields
}

// Fields maps field names to their definitions.
type Fields map[string]*Field

// String accepts JSON strings.
func String() *Field { return &Field{Kind: KindString} }

// Number accepts any JSON number.
func Number() *Field { return &Field{Kind: KindNumber} }

// Integer accepts JSON numbers without a fractional part.
func Integer() *Field { return &Field{Kind: KindInteger} }

// Boolean accepts true and false.
func Boolean() *Field { return &Field{Kind: KindBoolean} }

// DateTime accepts RFC 3339 timestamps.
func DateTime() *Field { return &Field{Kind: KindDateTime} }

// Array accepts arrays whose elements satisfy of.
func Array(of *Field) *Field { return &Field{Kind: KindArray, Elem: of} }

// Object accepts nested objects described by fields.
func Object(fields Fields) *Field { return &Field{Kind: KindObject, Fields: fields.clone()} }

// Any accepts every value.
func Any() *Field { return &Field{Kind: KindAny} }

// Optional allows the field to be absent.
func (f *Field) Optional() *Field {
	c := f.clone()
	c.IsOptional = true
	return c
}

// Nullable allows an explicit null.
func (f *Field) Nullable() *Field {
	c := f.clone()
	c.IsNullable = true
	return c
}

// Default fills v in when the field is absent.
func (f *Field) Default(v any) *Field {
	c := f.clone()
	c.HasDefault = true
	c.DefaultVal = v
	return c
}

// Rules adds validator tags checked after the type, such as
// "email", "min=1,max=255" or "oneof=a b c".
func (f *Field) Rules(tag string) *Field {
	c := f.clone()
	if c.Tag != "" {
		c.Tag += "," + tag
	} else {
		c.Tag = tag
	}
	return c
}

func (f *Field) clone() *Field {
	if f == nil {
		return nil
	}
	c := *f
	c.Elem = f.Elem.clone()
	c.Fields = f.Fields.clone()
	return &c
}

func (fs Fields) clone() Fields {
	if fs == nil {
		return nil
	}
	out := make(Fields, len(fs))
	for k, f := range fs {
		out[k] = f.clone()
	}
	return out
}

// UnknownPolicy decides what happens to input keys the schema does not
// declare.
type UnknownPolicy int

const (
	// UnknownStrip drops undeclared keys.
	UnknownStrip UnknownPolicy = iota
	// UnknownPassthrough keeps undeclared keys unchecked.
	UnknownPassthrough
	// UnknownReject reports undeclared keys as errors.
	UnknownReject
)

// SchemaConfig declares a schema.
type SchemaConfig struct {
	Name       string
	Fields     Fields
	Timestamps bool
	SoftDelete bool
	Unknown    UnknownPolicy
}

// Schema validates payloads before they are sent to a bridge resource.
// It is immutable; Partial and Extend return new schemas.
//
// Example:
//
//	tasks := sdk.NewSchema(sdk.SchemaConfig{
//	    Name:       "tasks",
//	    Timestamps: true,
//	    Fields: sdk.Fields{
//	        "title":  sdk.String().Rules("min=1"),
//	        "status": sdk.String().Rules("oneof=todo done").Default("todo"),
//	    },
//	})
//	clean, err := tasks.Validate(map[string]any{"title": "Buy milk"})
type Schema struct {
	def      SchemaConfig
	validate *validator.Validate
}

// NewSchema builds a schema. An optional string id is always present;
// Timestamps adds created_at and updated_at, SoftDelete adds a nullable
// deleted_at.
func NewSchema(cfg SchemaConfig) *Schema {
	fields := cfg.Fields.clone()
	if fields == nil {
		fields = make(Fields)
	}
	if _, ok := fields["id"]; !ok {
		fields["id"] = String().Optional()
	}
	if cfg.Timestamps {
		setIfAbsent(fields, "created_at", DateTime().Optional())
		setIfAbsent(fields, "updated_at", DateTime().Optional())
	}
	if cfg.SoftDelete {
		setIfAbsent(fields, "deleted_at", DateTime().Optional().Nullable())
	}
	cfg.Fields = fields
	return &Schema{def: cfg, validate: validator.New()}
}

func setIfAbsent(fs Fields, name string, f *Field) {
	if _, ok := fs[name]; !ok {
		fs[name] = f
	}
}

// Name returns the schema name.
func (s *Schema) Name() string {
	return s.def.Name
}

// Definition returns a copy of the schema definition, implicit fields
// included.
func (s *Schema) Definition() SchemaConfig {
	def := s.def
	def.Fields = s.def.Fields.clone()
	return def
}

// Partial returns a schema where every field is optional and has no
// default, for update payloads.
func (s *Schema) Partial() *Schema {
	def := s.Definition()
	for name, f := range def.Fields {
		c := f.Optional()
		c.HasDefault = false
		c.DefaultVal = nil
		def.Fields[name] = c
	}
	return &Schema{def: def, validate: s.validate}
}

// Extend returns a new schema with fields added. Fields with an existing
// name replace the receiver's definition in the new schema only.
func (s *Schema) Extend(fields Fields) *Schema {
	def := s.Definition()
	for name, f := range fields {
		def.Fields[name] = f.clone()
	}
	return &Schema{def: def, validate: s.validate}
}

// Validate checks data and returns the normalized payload: defaults
// applied, numbers coerced, unknown keys handled per policy. data may be a
// map or any JSON-encodable struct.
func (s *Schema) Validate(data any) (map[string]any, error) {
	input, err := toObject(data)
	if err != nil {
		ve := &ValidationError{}
		ve.add("$", err.Error())
		return nil, newValidationError(s.def.Name, ve)
	}

	ve := &ValidationError{}
	out := s.object(s.def.Fields, input, "", ve)
	if !ve.empty() {
		return nil, newValidationError(s.def.Name, ve)
	}
	return out, nil
}

func toObject(data any) (map[string]any, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("cannot encode payload: %v", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil || obj == nil {
		return nil, errors.New("payload must be an object")
	}
	return obj, nil
}

func (s *Schema) object(fields Fields, input map[string]any, prefix string, ve *ValidationError) map[string]any {
	out := make(map[string]any, len(fields))

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		f := fields[name]
		path := joinPath(prefix, name)
		v, present := input[name]

		switch {
		case !present && f.HasDefault:
			out[name] = f.DefaultVal
		case !present && f.IsOptional:
		case !present:
			ve.add(path, "is required")
		case v == nil && f.IsNullable:
			out[name] = nil
		case v == nil:
			ve.add(path, "must not be null")
		default:
			if val, ok := s.value(f, v, path, ve); ok {
				out[name] = val
			}
		}
	}

	for key, v := range input {
		if _, declared := fields[key]; declared {
			continue
		}
		switch s.def.Unknown {
		case UnknownPassthrough:
			out[key] = plain(v)
		case UnknownReject:
			ve.add(joinPath(prefix, key), "is not allowed")
		}
	}
	return out
}

func (s *Schema) value(f *Field, v any, path string, ve *ValidationError) (any, bool) {
	var out any
	switch f.Kind {
	case KindString:
		str, ok := v.(string)
		if !ok {
			ve.add(path, "must be a string")
			return nil, false
		}
		out = str
	case KindNumber:
		n, ok := v.(json.Number)
		if !ok {
			ve.add(path, "must be a number")
			return nil, false
		}
		fv, err := n.Float64()
		if err != nil {
			ve.add(path, "must be a number")
			return nil, false
		}
		out = fv
	case KindInteger:
		n, ok := v.(json.Number)
		if !ok {
			ve.add(path, "must be an integer")
			return nil, false
		}
		iv, err := strconv.ParseInt(n.String(), 10, 64)
		if err != nil {
			fv, ferr := n.Float64()
			if ferr != nil || fv != float64(int64(fv)) {
				ve.add(path, "must be an integer")
				return nil, false
			}
			iv = int64(fv)
		}
		out = iv
	case KindBoolean:
		b, ok := v.(bool)
		if !ok {
			ve.add(path, "must be a boolean")
			return nil, false
		}
		out = b
	case KindDateTime:
		str, ok := v.(string)
		if !ok {
			ve.add(path, "must be an RFC 3339 date-time")
			return nil, false
		}
		if _, err := time.Parse(time.RFC3339, str); err != nil {
			ve.add(path, "must be an RFC 3339 date-time")
			return nil, false
		}
		out = str
	case KindArray:
		items, ok := v.([]any)
		if !ok {
			ve.add(path, "must be an array")
			return nil, false
		}
		before := len(ve.Fields)
		list := make([]any, 0, len(items))
		for i, item := range items {
			itemPath := fmt.Sprintf("%s.%d", path, i)
			if item == nil {
				if f.Elem != nil && !f.Elem.IsNullable {
					ve.add(itemPath, "must not be null")
					continue
				}
				list = append(list, nil)
				continue
			}
			if f.Elem == nil {
				list = append(list, plain(item))
				continue
			}
			if val, ok := s.value(f.Elem, item, itemPath, ve); ok {
				list = append(list, val)
			}
		}
		if len(ve.Fields) != before {
			return nil, false
		}
		out = list
	case KindObject:
		obj, ok := v.(map[string]any)
		if !ok {
			ve.add(path, "must be an object")
			return nil, false
		}
		before := len(ve.Fields)
		nested := s.object(f.Fields, obj, path, ve)
		if len(ve.Fields) != before {
			return nil, false
		}
		out = nested
	default:
		out = plain(v)
	}

	if f.Tag != "" {
		if msgs := s.rules(out, f.Tag); len(msgs) > 0 {
			for _, m := range msgs {
				ve.add(path, m)
			}
			return nil, false
		}
	}
	return out, true
}

// rules runs validator tags against v. An unknown tag is reported as a
// field error instead of panicking.
func (s *Schema) rules(v any, tag string) (msgs []string) {
	defer func() {
		if r := recover(); r != nil {
			msgs = []string{fmt.Sprintf("has an invalid rule %q", tag)}
		}
	}()

	err := s.validate.Var(v, tag)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	for _, fe := range verrs {
		msgs = append(msgs, ruleMessage(fe))
	}
	return msgs
}

func ruleMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email"
	case "url", "http_url":
		return "must be a valid URL"
	case "uuid", "uuid4":
		return "must be a valid UUID"
	case "min", "gte":
		return "must be at least " + fe.Param()
	case "max", "lte":
		return "must be at most " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "lt":
		return "must be less than " + fe.Param()
	case "len":
		return "must have length " + fe.Param()
	case "oneof":
		return "must be one of [" + fe.Param() + "]"
	default:
		return "failed " + fe.Tag() + " validation"
	}
}

// plain converts decoded JSON numbers back to float64.
func plain(v any) any {
	switch t := v.(type) {
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = plain(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = plain(item)
		}
		return out
	default:
		return v
	}
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

// FieldErrors extracts field errors from a client-side validation error
// or from a server error whose details map fields to messages, so callers
// render both the same way.
func FieldErrors(err error) (map[string][]string, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		out := make(map[string][]string, len(ve.Fields))
		for k, v := range ve.Fields {
			out[k] = append([]string(nil), v...)
		}
		return out, true
	}

	var sdkErr *Error
	if !errors.As(err, &sdkErr) || sdkErr.Details == nil {
		return nil, false
	}
	switch d := sdkErr.Details.(type) {
	case map[string][]string:
		return d, len(d) > 0
	case map[string]any:
		if nested, ok := d["fields"].(map[string]any); ok {
			d = nested
		}
		out := make(map[string][]string, len(d))
		for k, v := range d {
			switch msgs := v.(type) {
			case string:
				out[k] = []string{msgs}
			case []any:
				for _, m := range msgs {
					out[k] = append(out[k], fmt.Sprint(m))
				}
			default:
				return nil, false
			}
		}
		return out, len(out) > 0
	}
	return nil, false
}

// String renders the field definition, for example "string(optional email)".
func (f *Field) String() string {
	var mods []string
	if f.IsOptional {
		mods = append(mods, "optional")
	}
	if f.IsNullable {
		mods = append(mods, "nullable")
	}
	if f.Tag != "" {
		mods = append(mods, f.Tag)
	}
	if len(mods) == 0 {
		return f.Kind.String()
	}
	return f.Kind.String() + "(" + strings.Join(mods, " ") + ")"
}
