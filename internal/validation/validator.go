package validation

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Validator validates request structs against their `validate` tags.
// Supported rules: required, min=N, max=N (numeric bounds, or length for
// strings), oneof=a b c.
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// Validate validates a struct
func (v *Validator) Validate(s interface{}) error {
	val := reflect.ValueOf(s)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	if val.Kind() != reflect.Struct {
		return fmt.Errorf("validate expects a struct")
	}

	typ := val.Type()
	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)
		tag := fieldType.Tag.Get("validate")
		if tag == "" {
			continue
		}
		if err := v.validateField(field, tag); err != nil {
			return fmt.Errorf("%s: %w", fieldName(fieldType), err)
		}
	}
	return nil
}

func (v *Validator) validateField(field reflect.Value, tag string) error {
	for _, rule := range strings.Split(tag, ",") {
		parts := strings.SplitN(rule, "=", 2)
		arg := ""
		if len(parts) == 2 {
			arg = parts[1]
		}

		switch parts[0] {
		case "required":
			if field.IsZero() {
				return fmt.Errorf("is required")
			}
		case "min":
			bound, err := strconv.ParseFloat(arg, 64)
			if err != nil {
				return fmt.Errorf("bad min rule %q", arg)
			}
			if size(field) < bound {
				return fmt.Errorf("must be at least %s", arg)
			}
		case "max":
			bound, err := strconv.ParseFloat(arg, 64)
			if err != nil {
				return fmt.Errorf("bad max rule %q", arg)
			}
			if size(field) > bound {
				return fmt.Errorf("must be at most %s", arg)
			}
		case "oneof":
			allowed := strings.Fields(arg)
			got := fmt.Sprintf("%v", field.Interface())
			ok := false
			for _, a := range allowed {
				if got == a {
					ok = true
					break
				}
			}
			if !ok {
				return fmt.Errorf("must be one of %s", strings.Join(allowed, ", "))
			}
		}
	}
	return nil
}

// size is the value a numeric bound applies to: the number itself, or the
// length for strings and slices.
func size(field reflect.Value) float64 {
	switch field.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(field.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(field.Uint())
	case reflect.Float32, reflect.Float64:
		return field.Float()
	case reflect.String, reflect.Slice, reflect.Map, reflect.Array:
		return float64(field.Len())
	}
	return 0
}

func fieldName(f reflect.StructField) string {
	if tag := f.Tag.Get("json"); tag != "" {
		if name := strings.Split(tag, ",")[0]; name != "" && name != "-" {
			return name
		}
	}
	return f.Name
}
