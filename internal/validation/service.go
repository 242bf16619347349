// Package validation compiles declarative schemas into reusable checkers and
// evaluates payloads against them.
//
// Field rules are expressed in go-playground/validator tag syntax. Compiled
// checkers are cached by the canonical serialization of their schema, so the
// cost of compiling a schema is paid once per process.
package validation

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidSchema is returned when a schema definition cannot be compiled.
var ErrInvalidSchema = errors.New("invalid validation schema")

// CheckContext is handed to custom checks.
type CheckContext struct {
	Field     string
	Params    map[string]any
	Parent    map[string]any
	Meta      map[string]any
	Validator *Service
}

// CheckFunc is a custom check registered under an alias. It returns the
// errors found for value; a nil or empty result means the value passed.
type CheckFunc func(ctx context.Context, value any, cc CheckContext) []FieldError

// Service compiles and caches schemas. It is safe for concurrent use.
type Service struct {
	validate *validator.Validate

	mu    sync.Mutex
	cache map[string]*Checker

	aliasMu sync.RWMutex
	aliases map[string]CheckFunc
}

// NewService creates a validation service with an empty cache.
func NewService() *Service {
	return &Service{
		validate: validator.New(validator.WithRequiredStructEnabled()),
		cache:    make(map[string]*Checker),
		aliases:  make(map[string]CheckFunc),
	}
}

// Alias registers a custom check that fields reference through Field.Check.
func (s *Service) Alias(name string, fn CheckFunc) {
	s.aliasMu.Lock()
	defer s.aliasMu.Unlock()
	s.aliases[name] = fn
}

// RegisterRule adds a validator tag usable in Field.Rules. The check can read
// the validation meta with MetaFromContext. Register rules before serving.
func (s *Service) RegisterRule(tag string, fn validator.FuncCtx) error {
	if err := s.validate.RegisterValidationCtx(tag, fn); err != nil {
		return fmt.Errorf("failed to register rule %q: %w", tag, err)
	}
	return nil
}

// Compile returns the checker for schema, compiling it on first use.
// Structurally identical schemas share a single checker instance.
func (s *Service) Compile(schema Schema) (*Checker, error) {
	key, err := schema.key()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if checker, ok := s.cache[key]; ok {
		return checker, nil
	}

	fields, err := s.compileFields(schema, "")
	if err != nil {
		return nil, err
	}

	checker := &Checker{svc: s, fields: fields}
	s.cache[key] = checker
	return checker, nil
}

// Validate checks value against schema in strict mode: keys that the schema
// does not declare are rejected. It returns an empty list when value is valid.
// The error result is reserved for schemas that cannot be compiled.
func (s *Service) Validate(ctx context.Context, value any, schema Schema, meta map[string]any) ([]FieldError, error) {
	checker, err := s.Compile(schema)
	if err != nil {
		return nil, err
	}
	return checker.Check(ctx, value, meta), nil
}

func (s *Service) alias(name string) (CheckFunc, bool) {
	s.aliasMu.RLock()
	defer s.aliasMu.RUnlock()
	fn, ok := s.aliases[name]
	return fn, ok
}

type compiledField struct {
	name  string
	def   Field
	props []compiledField
	items *compiledField
}

func (s *Service) compileFields(schema Schema, prefix string) ([]compiledField, error) {
	names := make([]string, 0, len(schema))
	for name := range schema {
		names = append(names, name)
	}
	sort.Strings(names)

	fields := make([]compiledField, 0, len(names))
	for _, name := range names {
		cf, err := s.compileField(name, schema[name], joinPath(prefix, name))
		if err != nil {
			return nil, err
		}
		fields = append(fields, cf)
	}
	return fields, nil
}

func (s *Service) compileField(name string, def Field, path string) (compiledField, error) {
	if !knownType(def.Type) {
		return compiledField{}, fmt.Errorf("%w: field %q has unknown type %q", ErrInvalidSchema, path, def.Type)
	}
	if def.Rules != "" {
		if err := s.probeRules(def.Type, def.Rules); err != nil {
			return compiledField{}, fmt.Errorf("%w: field %q: %v", ErrInvalidSchema, path, err)
		}
	}
	if def.Check != "" {
		if _, ok := s.alias(def.Check); !ok {
			return compiledField{}, fmt.Errorf("%w: field %q references unknown check %q", ErrInvalidSchema, path, def.Check)
		}
	}

	cf := compiledField{name: name, def: def}
	if def.Props != nil {
		if def.Type != "" && def.Type != TypeObject {
			return compiledField{}, fmt.Errorf("%w: field %q declares props but has type %q", ErrInvalidSchema, path, def.Type)
		}
		props, err := s.compileFields(def.Props, path)
		if err != nil {
			return compiledField{}, err
		}
		cf.props = props
	}
	if def.Items != nil {
		if def.Type != "" && def.Type != TypeArray {
			return compiledField{}, fmt.Errorf("%w: field %q declares items but has type %q", ErrInvalidSchema, path, def.Type)
		}
		items, err := s.compileField("", *def.Items, path+"[]")
		if err != nil {
			return compiledField{}, err
		}
		cf.items = &items
	}
	return cf, nil
}

// probeRules runs the tag once against a zero value of the field type so that
// unknown tags and malformed parameters fail at compile time.
func (s *Service) probeRules(fieldType, tag string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed rules %q: %v", tag, r)
		}
	}()
	_ = s.validate.Var(probeValue(fieldType), tag)
	return nil
}

func probeValue(fieldType string) any {
	switch fieldType {
	case TypeNumber:
		return 0
	case TypeBoolean:
		return false
	case TypeObject:
		return map[string]any{}
	case TypeArray:
		return []any{}
	default:
		return ""
	}
}

// Checker is a compiled schema.
type Checker struct {
	svc    *Service
	fields []compiledField
}

// Check evaluates value, which must be an object, and returns every failed rule.
func (c *Checker) Check(ctx context.Context, value any, meta map[string]any) []FieldError {
	errs := []FieldError{}

	obj, ok := value.(map[string]any)
	if !ok {
		return append(errs, newError(TypeObject, "", value, nil))
	}

	ctx = ContextWithMeta(ctx, meta)
	c.checkObject(ctx, obj, c.fields, "", false, meta, &errs)
	return errs
}

func (c *Checker) checkObject(ctx context.Context, obj map[string]any, fields []compiledField, prefix string, allowUnknown bool, meta map[string]any, errs *[]FieldError) {
	declared := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		declared[f.name] = struct{}{}
		value, present := obj[f.name]
		c.checkValue(ctx, joinPath(prefix, f.name), value, present && value != nil, f, obj, meta, errs)
	}

	if allowUnknown {
		return
	}

	var unknown []string
	for key := range obj {
		if _, ok := declared[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		*errs = append(*errs, newError("objectStrict", prefix, strings.Join(unknown, ", "), nil))
	}
}

func (c *Checker) checkValue(ctx context.Context, path string, value any, present bool, f compiledField, parent map[string]any, meta map[string]any, errs *[]FieldError) {
	if !present {
		if !f.def.Optional {
			*errs = append(*errs, newError("required", path, nil, nil))
		}
		return
	}

	expectedType := f.def.Type
	if expectedType == "" && f.props != nil {
		expectedType = TypeObject
	}
	if expectedType == "" && f.items != nil {
		expectedType = TypeArray
	}
	if !matchesType(expectedType, value) {
		*errs = append(*errs, newError(expectedType, path, value, nil))
		return
	}

	if f.def.Rules != "" {
		if ruleErrs := c.svc.runRules(ctx, path, value, f.def.Rules); len(ruleErrs) > 0 {
			*errs = append(*errs, ruleErrs...)
			return
		}
	}

	if f.props != nil {
		c.checkObject(ctx, value.(map[string]any), f.props, path, f.def.AllowUnknown, meta, errs)
	}

	if f.items != nil {
		rv := reflect.ValueOf(value)
		for i := 0; i < rv.Len(); i++ {
			item := rv.Index(i).Interface()
			c.checkValue(ctx, fmt.Sprintf("%s[%d]", path, i), item, item != nil, *f.items, parent, meta, errs)
		}
	}

	if f.def.Check != "" {
		fn, ok := c.svc.alias(f.def.Check)
		if !ok {
			*errs = append(*errs, FieldError{Type: "check", Field: path, Message: fmt.Sprintf("The '%s' field references an unknown check '%s'.", path, f.def.Check)})
			return
		}
		*errs = append(*errs, fn(ctx, value, CheckContext{
			Field:     path,
			Params:    f.def.Params,
			Parent:    parent,
			Meta:      meta,
			Validator: c.svc,
		})...)
	}
}

func (s *Service) runRules(ctx context.Context, path string, value any, tag string) (errs []FieldError) {
	defer func() {
		if r := recover(); r != nil {
			errs = []FieldError{{
				Type:    "rules",
				Field:   path,
				Message: fmt.Sprintf("The '%s' field cannot be checked with '%s'.", path, tag),
				Actual:  value,
			}}
		}
	}()

	err := s.validate.VarCtx(ctx, value, tag)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []FieldError{{Type: "rules", Field: path, Message: err.Error(), Actual: value}}
	}
	for _, fe := range verrs {
		errs = append(errs, fromValidatorError(path, value, fe))
	}
	return errs
}

func matchesType(expected string, value any) bool {
	switch expected {
	case "", TypeAny:
		return true
	case TypeString:
		_, ok := value.(string)
		return ok
	case TypeBoolean:
		_, ok := value.(bool)
		return ok
	case TypeObject:
		_, ok := value.(map[string]any)
		return ok
	case TypeNumber:
		switch reflect.ValueOf(value).Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
			reflect.Float32, reflect.Float64:
			return true
		}
		return false
	case TypeArray:
		kind := reflect.ValueOf(value).Kind()
		return kind == reflect.Slice || kind == reflect.Array
	}
	return false
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	if name == "" {
		return prefix
	}
	return prefix + "." + name
}

type metaKey struct{}

// ContextWithMeta stores the validation meta in ctx.
func ContextWithMeta(ctx context.Context, meta map[string]any) context.Context {
	return context.WithValue(ctx, metaKey{}, meta)
}

// MetaFromContext returns the meta of the running validation, or nil.
func MetaFromContext(ctx context.Context) map[string]any {
	meta, _ := ctx.Value(metaKey{}).(map[string]any)
	return meta
}
