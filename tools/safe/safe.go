package safe

import (
	"fmt"
	"reflect"

	"PulseChat/logger"
)

// MustNotNil panics if the given value is nil.
// Useful for enforcing required fields during struct initialization.
func MustNotNil(v any, name string) {
	if v == nil || (reflect.ValueOf(v).Kind() == reflect.Ptr && reflect.ValueOf(v).IsNil()) {
		panic(fmt.Sprintf("%s must not be nil", name))
	}
}

// DefaultString returns the dereferenced value of a string pointer,
// or the fallback if the pointer is nil.
func DefaultString(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}

// SafeGo starts a new goroutine that recovers from panic,
// so that panics in adapter callbacks don't crash the process.
func SafeGo(f func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("[SafeGo] panic recovered: %v", r)
			}
		}()
		f()
	}()
}

// SafeCall runs f inline with panic recovery. Used on event-handler
// boundaries where a misbehaving callback must not take down the loop.
func SafeCall(f func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("[SafeCall] panic recovered: %v", r)
		}
	}()
	f()
}
