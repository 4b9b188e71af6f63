package session

import (
	"bytes"
	"encoding/gob"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

type savedCookie struct {
	Name     string
	Value    string
	Domain   string
	Path     string
	Expires  time.Time
	Secure   bool
	HttpOnly bool
}

// persistentJar wraps the stdlib cookie jar with a snapshot of every
// cookie it has seen, keyed domain -> path -> name, so the jar can be
// serialized to disk after each exchange and replayed on the next run.
type persistentJar struct {
	mu      sync.Mutex
	inner   http.CookieJar
	entries map[string]map[string]map[string]savedCookie
}

func newPersistentJar() (*persistentJar, error) {
	inner, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &persistentJar{
		inner:   inner,
		entries: map[string]map[string]map[string]savedCookie{},
	}, nil
}

func (j *persistentJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.inner.SetCookies(u, cookies)

	j.mu.Lock()
	defer j.mu.Unlock()
	for _, c := range cookies {
		domain := c.Domain
		if domain == "" {
			domain = u.Hostname()
		}
		path := c.Path
		if path == "" {
			path = "/"
		}

		if c.MaxAge < 0 {
			delete(j.pathEntries(domain, path), c.Name)
			continue
		}
		saved := savedCookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   domain,
			Path:     path,
			Expires:  c.Expires,
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
		}
		if c.MaxAge > 0 {
			saved.Expires = time.Now().Add(time.Duration(c.MaxAge) * time.Second)
		}
		j.pathEntries(domain, path)[c.Name] = saved
	}
	j.purgeExpiredLocked()
}

func (j *persistentJar) Cookies(u *url.URL) []*http.Cookie {
	return j.inner.Cookies(u)
}

func (j *persistentJar) pathEntries(domain, path string) map[string]savedCookie {
	byPath, ok := j.entries[domain]
	if !ok {
		byPath = map[string]map[string]savedCookie{}
		j.entries[domain] = byPath
	}
	byName, ok := byPath[path]
	if !ok {
		byName = map[string]savedCookie{}
		byPath[path] = byName
	}
	return byName
}

func (j *persistentJar) purgeExpiredLocked() {
	now := time.Now()
	for domain, byPath := range j.entries {
		for path, byName := range byPath {
			for name, c := range byName {
				if !c.Expires.IsZero() && c.Expires.Before(now) {
					delete(byName, name)
				}
			}
			if len(byName) == 0 {
				delete(byPath, path)
			}
		}
		if len(byPath) == 0 {
			delete(j.entries, domain)
		}
	}
}

// Save serializes the jar snapshot to path. It is called after every
// exchange, which is wasteful but keeps the on-disk state from ever
// missing a session cookie.
func (j *persistentJar) Save(path string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	var buffer bytes.Buffer
	err := gob.NewEncoder(&buffer).Encode(j.entries)
	if err != nil {
		return err
	}
	return os.WriteFile(path, buffer.Bytes(), 0600)
}

// Load reads a snapshot written by Save, drops expired cookies and
// replays the remainder into the live jar.
func (j *persistentJar) Load(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	entries := map[string]map[string]map[string]savedCookie{}
	err = gob.NewDecoder(bytes.NewReader(raw)).Decode(&entries)
	if err != nil {
		return err
	}

	j.mu.Lock()
	j.entries = entries
	j.purgeExpiredLocked()
	for domain, byPath := range j.entries {
		host := strings.TrimPrefix(domain, ".")
		for path, byName := range byPath {
			u := &url.URL{Scheme: "https", Host: host, Path: path}
			var cookies []*http.Cookie
			for _, c := range byName {
				cookies = append(cookies, &http.Cookie{
					Name:     c.Name,
					Value:    c.Value,
					Path:     c.Path,
					Expires:  c.Expires,
					Secure:   c.Secure,
					HttpOnly: c.HttpOnly,
				})
			}
			j.inner.SetCookies(u, cookies)
		}
	}
	j.mu.Unlock()
	return nil
}
