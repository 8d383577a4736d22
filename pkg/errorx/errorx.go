// Package errorx provides errors that carry a registered business code.
// Codes map to an HTTP status and a stable user-facing message; handlers
// translate any error into the response envelope via ParseCoder.
package errorx

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
)

// Coder describes an error code's contract: the business code, the HTTP
// status it maps to, and the external message.
type Coder interface {
	Code() int
	HTTPStatus() int
	String() string
	Reference() string
}

type defaultCoder struct {
	code int
	http int
	msg  string
	ref  string
}

func (c defaultCoder) Code() int         { return c.code }
func (c defaultCoder) HTTPStatus() int   { return c.http }
func (c defaultCoder) String() string    { return c.msg }
func (c defaultCoder) Reference() string { return c.ref }

// NewCoder builds a Coder from its parts.
func NewCoder(code, httpStatus int, msg string) Coder {
	return defaultCoder{code: code, http: httpStatus, msg: msg}
}

var (
	codesMu sync.RWMutex
	codes   = map[int]Coder{}

	unknownCoder = defaultCoder{
		code: 50000,
		http: http.StatusInternalServerError,
		msg:  "Internal server error",
	}
)

// Register registers a Coder, replacing any previous registration.
func Register(coder Coder) {
	if coder.Code() == 0 {
		panic("code 0 is reserved for success")
	}
	codesMu.Lock()
	defer codesMu.Unlock()
	codes[coder.Code()] = coder
}

// MustRegister registers a Coder and panics if the code is already taken.
func MustRegister(coder Coder) {
	if coder.Code() == 0 {
		panic("code 0 is reserved for success")
	}
	codesMu.Lock()
	defer codesMu.Unlock()
	if _, ok := codes[coder.Code()]; ok {
		panic(fmt.Sprintf("code %d already registered", coder.Code()))
	}
	codes[coder.Code()] = coder
}

type withCode struct {
	code  int
	msg   string
	cause error
}

func (w *withCode) Error() string {
	if w.cause != nil {
		return w.msg + ": " + w.cause.Error()
	}
	return w.msg
}

func (w *withCode) Unwrap() error { return w.cause }

// WithCode creates a new error carrying the given business code.
func WithCode(code int, format string, args ...any) error {
	return &withCode{code: code, msg: fmt.Sprintf(format, args...)}
}

// WrapC wraps an existing error with a business code and context message.
// A nil err returns nil.
func WrapC(err error, code int, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &withCode{code: code, msg: fmt.Sprintf(format, args...), cause: err}
}

// ParseCoder extracts the Coder for err. Errors without a code, and codes
// never registered, parse as the unknown (50000) coder. A nil error has no
// coder and parses as nil.
func ParseCoder(err error) Coder {
	if err == nil {
		return nil
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		wc, ok := e.(*withCode)
		if !ok {
			continue
		}
		codesMu.RLock()
		coder, registered := codes[wc.code]
		codesMu.RUnlock()
		if registered {
			return coder
		}
		break
	}
	return unknownCoder
}

// IsCode reports whether any error in err's chain carries the given code.
func IsCode(err error, code int) bool {
	for e := err; e != nil; e = errors.Unwrap(e) {
		if wc, ok := e.(*withCode); ok && wc.code == code {
			return true
		}
	}
	return false
}
