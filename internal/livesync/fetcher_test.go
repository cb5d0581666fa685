package livesync_test

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/conneroisu/postcard/internal/errors"
	. "github.com/conneroisu/postcard/internal/livesync"
	"github.com/conneroisu/postcard/internal/server"
	"github.com/conneroisu/postcard/internal/testutils"
)

func newPreviewServer(t *testing.T) *HTTPFetcher {
	t.Helper()
	dir := testutils.ScaffoldEmails(t)
	s := server.New(testutils.CreateTestConfig(dir), testutils.NewTestService(dir))
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return &HTTPFetcher{BaseURL: srv.URL}
}

func TestHTTPFetcherAgainstServer(t *testing.T) {
	f := newPreviewServer(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		template string
		function string
		errKind  perrors.Kind
		contains string
	}{
		{name: "rendered", template: "Welcome.yml", function: "Default", contains: "Ada"},
		{name: "unknown function", template: "Welcome.yml", function: "Missing", errKind: perrors.KindNotFound},
		{name: "unknown template", template: "Nope.yml", function: "Default", errKind: perrors.KindNotFound},
		{name: "escaped name", template: "../../etc/passwd", function: "Default", errKind: perrors.KindNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.Fetch(ctx, tt.template, tt.function)
			require.NoError(t, err, "NotFound is data, not a transport failure")
			assert.Len(t, res.Previews, 2)

			if tt.errKind == "" {
				require.NotNil(t, res.HTML)
				assert.Contains(t, *res.HTML, tt.contains)
				return
			}
			assert.Nil(t, res.HTML)
			require.Len(t, res.Errors, 1)
			assert.Equal(t, string(tt.errKind), res.Errors[0].Kind)
		})
	}
}

func TestHTTPFetcherCatalog(t *testing.T) {
	f := newPreviewServer(t)

	c, err := f.Catalog(context.Background())
	require.NoError(t, err)
	require.Len(t, c, 2)
	assert.True(t, c.Has("Welcome.yml", "Default"))
}

func TestSessionOverHTTPLoadsNotFound(t *testing.T) {
	f := newPreviewServer(t)
	sub := &ManualSubscriber{}

	s := NewSession(Options{Template: "Welcome.yml", Function: "Missing", Fetcher: f, Subscriber: sub})
	defer s.Close()
	s.Start()

	snap := WaitState(t, s, Loaded)
	assert.NoError(t, snap.Err)
	require.NotNil(t, snap.Result)
	require.NotEmpty(t, snap.Result.Errors)
	assert.Equal(t, string(perrors.KindNotFound), snap.Result.Errors[0].Kind)
}
