package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestJarRoundTrip(t *testing.T) {
	target, err := url.Parse("https://didattica.polito.it/")
	require.NoError(t, err)

	jar, err := newPersistentJar()
	require.NoError(t, err)
	jar.SetCookies(target, []*http.Cookie{
		{Name: "session", Value: "abc", Path: "/"},
		{Name: "stale", Value: "old", Path: "/", Expires: time.Now().Add(-time.Hour)},
	})

	path := filepath.Join(t.TempDir(), "cookies")
	require.NoError(t, jar.Save(path))

	restored, err := newPersistentJar()
	require.NoError(t, err)
	require.NoError(t, restored.Load(path))

	cookies := restored.Cookies(target)
	require.Len(t, cookies, 1)
	require.Equal(t, "session", cookies[0].Name)
	require.Equal(t, "abc", cookies[0].Value)
}

func TestJarDeletesOnNegativeMaxAge(t *testing.T) {
	target, err := url.Parse("https://didattica.polito.it/")
	require.NoError(t, err)

	jar, err := newPersistentJar()
	require.NoError(t, err)
	jar.SetCookies(target, []*http.Cookie{{Name: "session", Value: "abc", Path: "/"}})
	jar.SetCookies(target, []*http.Cookie{{Name: "session", Path: "/", MaxAge: -1}})

	path := filepath.Join(t.TempDir(), "cookies")
	require.NoError(t, jar.Save(path))

	restored, err := newPersistentJar()
	require.NoError(t, err)
	require.NoError(t, restored.Load(path))
	require.Empty(t, restored.Cookies(target))
}

func TestSessionCookiesPersistAcrossRuns(t *testing.T) {
	portal := &fakePortal{username: "s123456", password: "hunter2"}
	srv := httptest.NewServer(portal)
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "cookies")

	first := newTestSession(t, srv)
	err := first.Signin(context.Background(), "s123456", "hunter2", path)
	require.NoError(t, err)
	require.Equal(t, 1, portal.attempts())

	// a fresh session picks the cookie up from disk and never hits the IDP
	second := newTestSession(t, srv)
	err = second.Signin(context.Background(), "s123456", "hunter2", path)
	require.NoError(t, err)
	require.Equal(t, 1, portal.attempts())
}
