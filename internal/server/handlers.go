package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/conneroisu/postcard/internal/catalog"
	perrors "github.com/conneroisu/postcard/internal/errors"
	"github.com/conneroisu/postcard/internal/monitoring"
	"github.com/conneroisu/postcard/internal/preview"
	"github.com/conneroisu/postcard/internal/send"
	"github.com/conneroisu/postcard/internal/version"
)

// urlParam returns a decoded route parameter. chi matches on the raw path
// when it contains escapes, so parameters may still be escaped.
func urlParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	if decoded, err := url.PathUnescape(raw); err == nil {
		return decoded
	}
	return raw
}

// PreviewURL returns the UI path of a preview.
func PreviewURL(template, function string) string {
	return "/previews/" + url.PathEscape(template) + "/" + url.PathEscape(function)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// statusFor maps a render result to an HTTP status for the page and raw
// HTML routes. Render faults are still a successful page: the body carries
// them for display.
func statusFor(result preview.Result) int {
	for _, e := range result.Errors {
		if e.Kind == string(perrors.KindNotFound) {
			return http.StatusNotFound
		}
	}
	return http.StatusOK
}

func (s *PreviewServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	c := s.service.Catalog(r.Context())
	if first, ok := c.First(); ok {
		http.Redirect(w, r, PreviewURL(first.Template, first.Function), http.StatusFound)
		return
	}
	s.renderPage(w, r, http.StatusOK, pageState{Previews: c})
}

func (s *PreviewServer) handlePreviewPage(w http.ResponseWriter, r *http.Request) {
	template, function := urlParam(r, "template"), urlParam(r, "function")
	result := s.service.Render(r.Context(), template, function)

	s.renderPage(w, r, statusFor(result), pageState{
		Template: template,
		Function: function,
		Previews: result.Previews,
		Result:   &result,
	})
}

func (s *PreviewServer) handleCatalog(w http.ResponseWriter, r *http.Request) {
	c := s.service.Catalog(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"previews":  c,
		"nullState": catalog.IsDefaultExampleCatalog(c, s.config.Static),
	})
}

// handleRender always answers 200. NotFound and render faults are data in
// the result; a non-200 status means the transport failed.
func (s *PreviewServer) handleRender(w http.ResponseWriter, r *http.Request) {
	result := s.service.Render(r.Context(), urlParam(r, "template"), urlParam(r, "function"))
	writeJSON(w, http.StatusOK, result)
}

func (s *PreviewServer) handleRenderHTML(w http.ResponseWriter, r *http.Request) {
	result := s.service.Render(r.Context(), urlParam(r, "template"), urlParam(r, "function"))
	if !result.OK() {
		status := statusFor(result)
		if status == http.StatusOK {
			status = http.StatusUnprocessableEntity
		}
		writeJSON(w, status, result)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write([]byte(*result.HTML))
}

type sendRequest struct {
	To string `json:"to"`
}

func (s *PreviewServer) handleSend(w http.ResponseWriter, r *http.Request) {
	if s.sender == nil {
		writeJSONError(w, http.StatusNotImplemented, "sending is not configured; set POSTMARK_SERVER_TOKEN and send.from")
		return
	}
	if !sameOrigin(r, s.allowedOrigins()) {
		writeJSONError(w, http.StatusForbidden, "cross-origin request rejected")
		return
	}

	var req sendRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if _, err := mail.ParseAddress(req.To); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid recipient address")
		return
	}

	template, function := urlParam(r, "template"), urlParam(r, "function")
	p, html, err := s.service.RenderPreview(r.Context(), template, function)
	if err != nil {
		status := http.StatusUnprocessableEntity
		if perrors.IsNotFound(err) {
			status = http.StatusNotFound
		}
		writeJSONError(w, status, err.Error())
		return
	}

	msg := send.Compose(p, req.To, html)
	if err := s.sender.Send(r.Context(), msg); err != nil {
		status := http.StatusBadGateway
		var pe *perrors.PostcardError
		if errors.As(err, &pe) && pe.Kind == perrors.KindValidation {
			status = http.StatusBadRequest
		}
		s.logger.Warn(r.Context(), err, "Test send failed", "template", template, "function", function)
		writeJSONError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "sent", "to": req.To, "subject": msg.Subject})
}

// newHealthMonitor registers the checks served on /health.
func (s *PreviewServer) newHealthMonitor() *monitoring.HealthMonitor {
	hm := monitoring.NewHealthMonitor(version.GetShortVersion(), s.config.Server.Environment, s.logger)
	hm.RegisterCheck(monitoring.EmailsDirHealthChecker(s.config.Emails.Dir))
	hm.RegisterCheck(monitoring.PreviewFilesHealthChecker(s.service.Catalog))
	hm.RegisterCheck(monitoring.LiveReloadHealthChecker(s.hub, s.config.Development.HotReload))
	hm.RegisterCheck(monitoring.GoroutineHealthChecker())
	return hm
}
