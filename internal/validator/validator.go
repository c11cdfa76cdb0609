// Package validator provides constructor-time dependency checks so
// components fail fast instead of panicking on a nil dependency later.
package validator

import (
	"fmt"
	"reflect"
)

// Validate reports an error if any dep is nil or a zero value. name
// identifies the component being constructed for the error message.
func Validate(name string, deps ...any) error {
	for _, dep := range deps {
		v := reflect.ValueOf(dep)
		if !v.IsValid() {
			return fmt.Errorf("missing required deps for component: %s", name)
		}

		switch v.Kind() {
		case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func:
			if v.IsNil() {
				return fmt.Errorf("missing required deps for component: %s", name)
			}
		default:
			if v.IsZero() {
				return fmt.Errorf("missing required deps for component: %s", name)
			}
		}
	}

	return nil
}
