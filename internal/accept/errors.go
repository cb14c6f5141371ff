package accept

import (
	"errors"
	"strings"
)

// ErrNotAcceptable is matched (errors.Is) by every NotAcceptableError.
var ErrNotAcceptable = errors.New("not acceptable")

// NotAcceptableError reports a request whose preference cannot be honored.
type NotAcceptableError struct {
	Reason    string
	Supported []MediaType
	Err       error
}

func (e *NotAcceptableError) Error() string {
	var b strings.Builder
	b.WriteString("not acceptable: ")
	b.WriteString(e.Reason)
	if len(e.Supported) > 0 {
		b.WriteString(" (supported: ")
		for i, mt := range e.Supported {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(mt.String())
		}
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *NotAcceptableError) Unwrap() error { return e.Err }

func (e *NotAcceptableError) Is(target error) bool { return target == ErrNotAcceptable }
