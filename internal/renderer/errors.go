package renderer

import (
	"errors"

	"github.com/Boostport/mjml-go"

	perrors "github.com/conneroisu/postcard/internal/errors"
)

// ToErrors converts a render failure into display errors. MJML validation
// details become one entry each, carrying line and tag.
func ToErrors(err error) []RenderError {
	if err == nil {
		return nil
	}

	var file string
	var pe *perrors.PostcardError
	if errors.As(err, &pe) {
		file = pe.FilePath
	}

	var mjmlErr mjml.Error
	if errors.As(err, &mjmlErr) {
		if len(mjmlErr.Details) == 0 {
			return []RenderError{{Kind: string(perrors.KindRenderFault), Message: mjmlErr.Message, File: file}}
		}
		out := make([]RenderError, 0, len(mjmlErr.Details))
		for _, d := range mjmlErr.Details {
			out = append(out, RenderError{
				Kind:    string(perrors.KindRenderFault),
				Message: d.Message,
				Line:    d.Line,
				TagName: d.TagName,
				File:    file,
			})
		}
		return out
	}

	if pe != nil {
		msg := pe.Message
		if pe.Cause != nil {
			msg += ": " + pe.Cause.Error()
		}
		kind := pe.Kind
		if kind != perrors.KindNotFound {
			kind = perrors.KindRenderFault
		}
		return []RenderError{{
			Kind:    string(kind),
			Message: msg,
			Line:    pe.Line,
			TagName: pe.TagName,
			File:    pe.FilePath,
		}}
	}

	return []RenderError{{Kind: string(perrors.KindRenderFault), Message: err.Error()}}
}
