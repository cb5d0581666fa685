package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Kind represents the category of an error.
type Kind string

const (
	// KindNotFound means a requested template or preview function is not in the catalog.
	KindNotFound Kind = "NotFound"
	// KindRenderFault means the template source failed to execute or compile.
	KindRenderFault Kind = "RenderFault"
	// KindTransportFault means the live-reload connection dropped.
	KindTransportFault Kind = "TransportFault"
	KindValidation     Kind = "Validation"
	KindConfig         Kind = "Config"
	KindIO             Kind = "IO"
)

// PostcardError is a structured error type with preview context.
type PostcardError struct {
	Kind        Kind
	Code        string
	Message     string
	Cause       error
	Template    string
	Function    string
	FilePath    string
	Line        int
	TagName     string
	Recoverable bool
}

// Error implements the error interface.
func (e *PostcardError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Template != "" {
		preview := e.Template
		if e.Function != "" {
			preview += "#" + e.Function
		}
		parts = append(parts, "preview:"+preview)
	}

	if e.FilePath != "" {
		location := e.FilePath
		if e.Line > 0 {
			location += fmt.Sprintf(":%d", e.Line)
		}
		parts = append(parts, location)
	}

	if e.TagName != "" {
		parts = append(parts, "<"+e.TagName+">")
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *PostcardError) Unwrap() error {
	return e.Cause
}

// Is matches on kind and code.
func (e *PostcardError) Is(target error) bool {
	var t *PostcardError
	if errors.As(target, &t) {
		return e.Kind == t.Kind && e.Code == t.Code
	}

	return false
}

// WithPreview adds the template/function pair the error belongs to.
func (e *PostcardError) WithPreview(template, function string) *PostcardError {
	e.Template = template
	e.Function = function

	return e
}

// WithLocation adds file location information.
func (e *PostcardError) WithLocation(filePath string, line int) *PostcardError {
	e.FilePath = filePath
	e.Line = line

	return e
}

// WithTag records the MJML tag an error was reported against.
func (e *PostcardError) WithTag(tagName string) *PostcardError {
	e.TagName = tagName

	return e
}

// Common error codes.
const (
	ErrCodeTemplateNotFound  = "ERR_TEMPLATE_NOT_FOUND"
	ErrCodeFunctionNotFound  = "ERR_FUNCTION_NOT_FOUND"
	ErrCodePreviewInvalid    = "ERR_PREVIEW_INVALID"
	ErrCodeTemplateExec      = "ERR_TEMPLATE_EXEC"
	ErrCodeMJMLCompile       = "ERR_MJML_COMPILE"
	ErrCodeRenderPanic       = "ERR_RENDER_PANIC"
	ErrCodeRenderTimeout     = "ERR_RENDER_TIMEOUT"
	ErrCodeEmptyOutput       = "ERR_EMPTY_OUTPUT"
	ErrCodeConnectionLost    = "ERR_CONNECTION_LOST"
	ErrCodeRetriesExhausted  = "ERR_RETRIES_EXHAUSTED"
	ErrCodeHandshakeRejected = "ERR_HANDSHAKE_REJECTED"
	ErrCodeConfigInvalid     = "ERR_CONFIG_INVALID"
	ErrCodePathTraversal     = "ERR_PATH_TRAVERSAL"
	ErrCodeFileExists        = "ERR_FILE_EXISTS"
	ErrCodeFileRead          = "ERR_FILE_READ"
	ErrCodeFileWrite         = "ERR_FILE_WRITE"
	ErrCodeSendFailed        = "ERR_SEND_FAILED"
	ErrCodeUploadFailed      = "ERR_UPLOAD_FAILED"
)

// Error creation functions

// NewNotFoundError creates a catalog lookup error.
func NewNotFoundError(code, message string) *PostcardError {
	return &PostcardError{
		Kind:        KindNotFound,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewRenderFault creates an error for content that failed to render.
func NewRenderFault(code, message string, cause error) *PostcardError {
	return &PostcardError{
		Kind:        KindRenderFault,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewTransportFault creates a live-reload transport error.
func NewTransportFault(code, message string, cause error) *PostcardError {
	return &PostcardError{
		Kind:        KindTransportFault,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewValidationError creates a validation error.
func NewValidationError(code, message string) *PostcardError {
	return &PostcardError{
		Kind:        KindValidation,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *PostcardError {
	return &PostcardError{
		Kind:    KindConfig,
		Code:    code,
		Message: message,
	}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *PostcardError {
	return &PostcardError{
		Kind:    KindIO,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// KindOf returns the kind of the first PostcardError in the chain, or "".
func KindOf(err error) Kind {
	var pe *PostcardError
	if errors.As(err, &pe) {
		return pe.Kind
	}

	return ""
}

// IsNotFound checks if an error is a catalog lookup miss.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// IsRenderFault checks if an error originated in template content.
func IsRenderFault(err error) bool {
	return KindOf(err) == KindRenderFault
}

// IsTransportFault checks if an error originated in the reload transport.
func IsTransportFault(err error) bool {
	return KindOf(err) == KindTransportFault
}

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var pe *PostcardError
	if errors.As(err, &pe) {
		return pe.Recoverable
	}

	return false
}

// Helper functions for common errors

// ErrTemplateNotFound creates a missing template error.
func ErrTemplateNotFound(template string) *PostcardError {
	return NewNotFoundError(
		ErrCodeTemplateNotFound,
		"template not found: "+template,
	).WithPreview(template, "")
}

// ErrFunctionNotFound creates a missing preview function error.
func ErrFunctionNotFound(template, function string) *PostcardError {
	return NewNotFoundError(
		ErrCodeFunctionNotFound,
		fmt.Sprintf("preview function %q not found in %s", function, template),
	).WithPreview(template, function)
}

// ErrPathTraversal creates a path traversal validation error.
func ErrPathTraversal(path string) *PostcardError {
	return NewValidationError(ErrCodePathTraversal, "path traversal attempt: "+path)
}
