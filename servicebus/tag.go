package servicebus

import (
	"fmt"
	"reflect"

	berr "github.com/next-trace/scg-cqrs/contract/errors"
)

// TagOf returns the dispatch tag of a command, query or event: its dynamic type.
func TagOf(v any) reflect.Type { return reflect.TypeOf(v) }

func tagName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}

	return t.String()
}

// checkTag rejects tags TagOf can never return: nil and interface types.
func checkTag(kind string, t reflect.Type) error {
	if t == nil || t.Kind() == reflect.Interface {
		return fmt.Errorf("register %s %s: tag must be a concrete type: %w", kind, tagName(t), berr.ErrHandlerTypeMismatch)
	}

	return nil
}
