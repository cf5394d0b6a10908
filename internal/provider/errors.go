package provider

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind classifies a provider failure for the submission pipeline.
type Kind string

const (
	// KindAuth means token issuance or an authenticated call was rejected.
	KindAuth Kind = "AuthError"
	// KindUpload means a design asset upload failed or the payload could not be decoded.
	KindUpload Kind = "UploadError"
	// KindValidation means the provider rejected the payload shape or field values.
	KindValidation Kind = "ValidationError"
	// KindCatalog means a referenced product or variant does not exist on the provider side.
	KindCatalog Kind = "CatalogError"
	// KindUnknown covers every other provider failure with the raw message passed through.
	KindUnknown Kind = "UnknownProviderError"
)

// Error is a classified provider failure. Validation failures carry the
// provider's field paths verbatim in Fields.
type Error struct {
	Kind       Kind
	StatusCode int
	Message    string
	Fields     map[string][]string
	err        error
}

// Error renders the classified failure including any field paths.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if len(e.Fields) > 0 {
		paths := make([]string, 0, len(e.Fields))
		for path := range e.Fields {
			paths = append(paths, path)
		}
		sort.Strings(paths)
		fmt.Fprintf(&b, " [%s]", strings.Join(paths, ", "))
	}
	return b.String()
}

// Unwrap exposes the underlying transport error, if any.
func (e *Error) Unwrap() error {
	return e.err
}

// NewError constructs a classified provider error.
func NewError(kind Kind, status int, message string) *Error {
	return &Error{Kind: kind, StatusCode: status, Message: message}
}

// WrapError attaches an underlying cause to a classified provider error.
func WrapError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, err: err}
}

// KindOf extracts the classification from an error chain, defaulting to KindUnknown.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknown
}

// IsAuth reports whether the error chain carries an auth classification.
func IsAuth(err error) bool {
	return KindOf(err) == KindAuth
}

// IsUpload reports whether the error chain carries an upload classification.
func IsUpload(err error) bool {
	return KindOf(err) == KindUpload
}

// IsValidation reports whether the error chain carries a validation classification.
func IsValidation(err error) bool {
	return KindOf(err) == KindValidation
}

// IsCatalog reports whether the error chain carries a catalog classification.
func IsCatalog(err error) bool {
	return KindOf(err) == KindCatalog
}
