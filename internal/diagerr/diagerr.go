// Package diagerr defines the stable error codes reported by diagram operations.
//
// Codes are part of the wire contract: they appear in operation results,
// relay responses and CLI JSON output, and clients may branch on them.
package diagerr

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable error identifier.
type Code string

const (
	// Reported in operation results and CLI JSON output.
	NoActiveDocument    Code = "NO_ACTIVE_DOCUMENT"
	FileNotFound        Code = "FILE_NOT_FOUND"
	DocumentOpenFailed  Code = "DOCUMENT_OPEN_FAILED"
	DocumentNotFound    Code = "DOCUMENT_NOT_FOUND"
	PageIndexOutOfRange Code = "PAGE_INDEX_OUT_OF_RANGE"
	ShapeNotFound       Code = "SHAPE_NOT_FOUND"
	FromShapeNotFound   Code = "FROM_SHAPE_NOT_FOUND"
	ToShapeNotFound     Code = "TO_SHAPE_NOT_FOUND"
	ConnectorNotFound   Code = "CONNECTOR_NOT_FOUND"
	MasterNotFound      Code = "MASTER_NOT_FOUND"
	NoUsableStencil     Code = "NO_USABLE_STENCIL"
	TemplateUnavailable Code = "TEMPLATE_UNAVAILABLE"
	UnknownOperation    Code = "UNKNOWN_OPERATION"
	UnsupportedFormat   Code = "UNSUPPORTED_FORMAT"
	InvalidParams       Code = "INVALID_PARAMS"
	EngineError         Code = "ENGINE_ERROR"
	RelayUnavailable    Code = "RELAY_UNAVAILABLE"
	Internal            Code = "INTERNAL_ERROR"
)

// Error is a coded error. Details carries optional structured context that
// is safe to hand back to callers.
type Error struct {
	Code    Code
	Message string
	Details map[string]interface{}
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns a coded error with a formatted message.
func New(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error. The original
// message is preserved in Error().
func Wrap(code Code, err error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// WithDetails sets a detail key and returns the receiver.
func (e *Error) WithDetails(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// CodeOf returns the code of the first *Error in err's chain, or Internal
// when there is none.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return Internal
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	var de *Error
	return errors.As(err, &de) && de.Code == code
}
