package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/postcard/internal/catalog"
	perrors "github.com/conneroisu/postcard/internal/errors"
	"github.com/conneroisu/postcard/internal/livereload"
	"github.com/conneroisu/postcard/internal/preview"
	"github.com/conneroisu/postcard/internal/send"
	"github.com/conneroisu/postcard/internal/testutils"
)

func newTestServer(t *testing.T, emailsDir string, opts ...Option) (*PreviewServer, *httptest.Server) {
	t.Helper()
	s := New(testutils.CreateTestConfig(emailsDir), testutils.NewTestService(emailsDir), opts...)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s, srv
}

func noRedirect() *http.Client {
	return &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
}

func getJSON(t *testing.T, url string, v any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestIndexRedirectsToFirstPreview(t *testing.T) {
	_, srv := newTestServer(t, testutils.ScaffoldEmails(t))

	resp, err := noRedirect().Get(srv.URL + "/")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/previews/TextEmail.yml/Default", resp.Header.Get("Location"))
}

func TestIndexShowsNullState(t *testing.T) {
	_, srv := newTestServer(t, filepath.Join(t.TempDir(), "missing"))

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	body := readBody(t, resp)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Build new email templates in")
	assert.NotContains(t, body, `id="null-state" hidden`)
	assert.Contains(t, body, "Select a preview.")
}

func TestPreviewPage(t *testing.T) {
	_, srv := newTestServer(t, testutils.ScaffoldEmails(t))

	resp, err := http.Get(srv.URL + "/previews/Welcome.yml/Default")
	require.NoError(t, err)
	body := readBody(t, resp)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	csp := resp.Header.Get("Content-Security-Policy")
	assert.Contains(t, csp, "script-src 'nonce-")
	assert.Equal(t, "SAMEORIGIN", resp.Header.Get("X-Frame-Options"))

	assert.Contains(t, body, "Welcome - Default")
	assert.Contains(t, body, `id="initial-data"`)
	assert.Contains(t, body, `"template":"Welcome.yml"`)
	assert.Contains(t, body, `class="selected"`)
	assert.Contains(t, body, "Jump to previews")
	// The fresh scaffold is the example catalog, so the banner shows.
	assert.NotContains(t, body, `id="null-state" hidden`)
}

func TestPreviewPageNotFound(t *testing.T) {
	_, srv := newTestServer(t, testutils.ScaffoldEmails(t))

	resp, err := http.Get(srv.URL + "/previews/Nope.yml/Default")
	require.NoError(t, err)
	body := readBody(t, resp)

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body, `"kind":"NotFound"`)
}

func TestCatalogAPI(t *testing.T) {
	_, srv := newTestServer(t, testutils.ScaffoldEmails(t))

	var body struct {
		Previews  catalog.Catalog `json:"previews"`
		NullState bool            `json:"nullState"`
	}
	resp := getJSON(t, srv.URL+"/api/previews", &body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body.Previews, 2)
	assert.Equal(t, "TextEmail.yml", body.Previews[0].Name)
	assert.Equal(t, []string{"Default", "NoButton"}, body.Previews[1].Functions)
	assert.True(t, body.NullState)
}

func TestRenderAPI(t *testing.T) {
	dir := testutils.ScaffoldEmails(t)
	_, srv := newTestServer(t, dir)

	tests := []struct {
		name     string
		path     string
		status   int
		html     bool
		errKind  string
		contains string
	}{
		{name: "mjml preview", path: "/api/previews/Welcome.yml/Default", status: http.StatusOK, html: true, contains: "Ada"},
		{name: "html preview", path: "/api/previews/TextEmail.yml/Default", status: http.StatusOK, html: true, contains: "A plain note"},
		{name: "escaped names", path: "/api/previews/Welcome%2Eyml/NoButton", status: http.StatusOK, html: true, contains: "Grace"},
		{name: "unknown template", path: "/api/previews/Nope.yml/Default", status: http.StatusOK, errKind: "NotFound"},
		{name: "unknown function", path: "/api/previews/Welcome.yml/Nope", status: http.StatusOK, errKind: "NotFound"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var result preview.Result
			resp := getJSON(t, srv.URL+tt.path, &result)

			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Len(t, result.Previews, 2, "every response carries the catalog")
			if tt.html {
				require.NotNil(t, result.HTML)
				assert.Empty(t, result.Errors)
				assert.Contains(t, *result.HTML, tt.contains)
				return
			}
			assert.Nil(t, result.HTML)
			require.NotEmpty(t, result.Errors)
			assert.Equal(t, tt.errKind, result.Errors[0].Kind)
		})
	}
}

func TestRenderAPIHostileNames(t *testing.T) {
	_, srv := newTestServer(t, testutils.ScaffoldEmails(t))

	names := append(append([]string{}, testutils.SecurityTestCases.PathTraversal...),
		testutils.SecurityTestCases.ScriptInjection...)
	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			resp, err := http.Get(srv.URL + "/api/previews/" + url.PathEscape(name) + "/Default")
			require.NoError(t, err)
			body := readBody(t, resp)

			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Contains(t, body, `"kind":"NotFound"`)
			assert.NotContains(t, body, "root:")
			assert.NotContains(t, body, "<script>")
		})
	}
}

func TestRenderAPIRenderFault(t *testing.T) {
	dir := testutils.ScaffoldEmails(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Welcome.mjml"), []byte("{{.name"), 0o644))
	_, srv := newTestServer(t, dir)

	var result preview.Result
	resp := getJSON(t, srv.URL+"/api/previews/Welcome.yml/Default", &result)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Nil(t, result.HTML)
	require.NotEmpty(t, result.Errors)
	assert.Equal(t, string(perrors.KindRenderFault), result.Errors[0].Kind)

	raw, err := http.Get(srv.URL + "/api/previews/Welcome.yml/Default/html")
	require.NoError(t, err)
	raw.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, raw.StatusCode)
}

func TestRenderHTML(t *testing.T) {
	_, srv := newTestServer(t, testutils.ScaffoldEmails(t))

	resp, err := http.Get(srv.URL + "/api/previews/TextEmail.yml/Default/html")
	require.NoError(t, err)
	body := readBody(t, resp)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.True(t, strings.HasPrefix(body, "<!doctype html>"))
}

type fakeSender struct {
	mu   sync.Mutex
	sent []send.Message
	err  error
}

func (f *fakeSender) Send(_ context.Context, msg send.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return f.err
}

func postSend(t *testing.T, url, origin, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	return resp
}

func TestSendEndpoint(t *testing.T) {
	dir := testutils.ScaffoldEmails(t)

	t.Run("not configured", func(t *testing.T) {
		_, srv := newTestServer(t, dir)
		resp := postSend(t, srv.URL+"/api/previews/Welcome.yml/Default/send", "", `{"to":"dev@example.com"}`)
		assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
	})

	sender := &fakeSender{}
	_, srv := newTestServer(t, dir, WithSender(sender))
	url := srv.URL + "/api/previews/Welcome.yml/Default/send"

	tests := []struct {
		name   string
		url    string
		origin string
		body   string
		status int
	}{
		{"same origin", url, srv.URL, `{"to":"dev@example.com"}`, http.StatusOK},
		{"no origin", url, "", `{"to":"dev@example.com"}`, http.StatusOK},
		{"cross origin", url, "http://evil.example", `{"to":"dev@example.com"}`, http.StatusForbidden},
		{"bad body", url, "", `{`, http.StatusBadRequest},
		{"bad address", url, "", `{"to":"nope"}`, http.StatusBadRequest},
		{"unknown preview", srv.URL + "/api/previews/Nope.yml/Default/send", "", `{"to":"dev@example.com"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postSend(t, tt.url, tt.origin, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}

	require.Len(t, sender.sent, 2)
	assert.Equal(t, "Welcome to Postcard", sender.sent[0].Subject)
	assert.Contains(t, sender.sent[0].Text, "Ada")

	sender.err = perrors.NewTransportFault(perrors.ErrCodeSendFailed, "postmark down", errors.New("503"))
	resp := postSend(t, url, "", `{"to":"dev@example.com"}`)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	_, srv := newTestServer(t, testutils.ScaffoldEmails(t))

	var body map[string]any
	resp := getJSON(t, srv.URL+"/health", &body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])

	checks, ok := body["checks"].(map[string]any)
	require.True(t, ok)
	previews := checks["preview_files"].(map[string]any)
	assert.Equal(t, "healthy", previews["status"])
	assert.EqualValues(t, 2, previews["metadata"].(map[string]any)["templates"])
	assert.Contains(t, checks, "emails_dir")
	assert.Contains(t, checks, "live_reload")
}

func TestHealthMissingEmailsDir(t *testing.T) {
	dir := testutils.ScaffoldEmails(t)
	_, srv := newTestServer(t, dir)
	require.NoError(t, os.RemoveAll(dir))

	var body map[string]any
	resp := getJSON(t, srv.URL+"/health", &body)

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "unhealthy", body["status"])
}

func readReload(t *testing.T, ctx context.Context, conn *websocket.Conn) livereload.Message {
	t.Helper()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var msg livereload.Message
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, livereload.MessageTypeReload, msg.Type)
	return msg
}

func TestWebSocketReload(t *testing.T) {
	s, srv := newTestServer(t, testutils.ScaffoldEmails(t))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{srv.URL}},
	})
	require.NoError(t, err)
	defer conn.CloseNow()

	first := readReload(t, ctx, conn)

	require.Eventually(t, func() bool { return s.Hub().Subscribers() == 1 }, time.Second, 5*time.Millisecond)
	s.Hub().Notify()

	second := readReload(t, ctx, conn)
	assert.Greater(t, second.Generation, first.Generation)
}

// A saved template reaches connected clients through the watcher.
func TestStartWatchesEmailsDir(t *testing.T) {
	dir := testutils.ScaffoldEmails(t)
	s := New(testutils.CreateTestConfig(dir), testutils.NewTestService(dir))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- s.Start(ctx) }()
	require.Eventually(t, func() bool { return s.Addr() != nil }, 2*time.Second, 5*time.Millisecond)

	changed := make(chan struct{}, 10)
	unsubscribe := s.Hub().Subscribe(func() { changed <- struct{}{} })
	defer unsubscribe()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "Welcome.mjml"), []byte("<mjml></mjml>"), 0o644))

	select {
	case <-changed:
	case <-time.After(3 * time.Second):
		t.Fatal("template change never notified the hub")
	}

	resp, err := http.Get("http://" + s.Addr().String() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestStartOpensBrowser(t *testing.T) {
	dir := testutils.ScaffoldEmails(t)
	cfg := testutils.CreateTestConfig(dir)
	cfg.Server.Open = true
	cfg.Development.HotReload = false

	opened := make(chan string, 1)
	s := New(cfg, testutils.NewTestService(dir), WithBrowserOpener(func(url string) error {
		opened <- url
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Start(ctx) }()

	select {
	case url := <-opened:
		require.NotNil(t, s.Addr())
		assert.Equal(t, "http://"+s.Addr().String(), url)
	case <-time.After(3 * time.Second):
		t.Fatal("browser was never opened")
	}

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestOpenBrowserRejectsUnsafeURLs(t *testing.T) {
	for _, url := range []string{"javascript:alert(1)", "file:///etc/passwd", "http://localhost:3883;id"} {
		assert.Error(t, openBrowser(url), url)
	}
}

func TestPreviewURL(t *testing.T) {
	assert.Equal(t, "/previews/Welcome.yml/Default", PreviewURL("Welcome.yml", "Default"))
	assert.Equal(t, "/previews/My%20Email.yml/A%2FB", PreviewURL("My Email.yml", "A/B"))
}
