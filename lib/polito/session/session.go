package session

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"politodown/lib/restyutil"

	"github.com/go-resty/resty/v2"
)

const (
	DefaultDidattica = "https://didattica.polito.it/"
	DefaultIDP       = "https://idp.polito.it/"
	DefaultElearning = "https://elearning.polito.it/"

	loginPagePath   = "idp/x509mixed-login"
	loginSubmitPath = "idp/Authn/X509Mixed/UserPasswordLogin"
	homepagePath    = "pls/portal30/sviluppo.pagina_studente_2016.main"
)

// every synthetic redirect of the hook chain counts against this;
// running over it means the login chain never settled
const maxRedirects = 30

type Options struct {
	Didattica string
	IDP       string
	Elearning string
	Timeout   time.Duration
}

// Session is an HTTP client specialized for the PoliTo portal. A
// single exchange may transparently perform extra round trips to walk
// the federated login chain before the requested response is returned.
//
// You must call Signin(...) before anything that needs credentials.
type Session struct {
	Didattica *url.URL
	IDP       *url.URL
	Elearning *url.URL

	http *resty.Client
	jar  *persistentJar

	loginPage   *url.URL
	loginSubmit *url.URL

	// serializes every exchange: the hook chain mutates shared
	// session state (cookie jar, pending redirect resolution)
	mu sync.Mutex

	signedIn   bool
	username   string
	password   string
	cookiePath string
}

func New(opts Options) (*Session, error) {
	if opts.Didattica == "" {
		opts.Didattica = DefaultDidattica
	}
	if opts.IDP == "" {
		opts.IDP = DefaultIDP
	}
	if opts.Elearning == "" {
		opts.Elearning = DefaultElearning
	}
	if opts.Timeout == 0 {
		opts.Timeout = time.Second * 10
	}

	didattica, err := url.Parse(opts.Didattica)
	if err != nil {
		return nil, err
	}
	idp, err := url.Parse(opts.IDP)
	if err != nil {
		return nil, err
	}
	elearning, err := url.Parse(opts.Elearning)
	if err != nil {
		return nil, err
	}

	jar, err := newPersistentJar()
	if err != nil {
		return nil, err
	}

	client := resty.New()
	client.SetCookieJar(jar)
	client.SetDoNotParseResponse(true)
	client.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
	// redirects are followed by the hook chain, not the transport
	client.GetClient().CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}
	// the timeout bounds each exchange up to the response headers;
	// body streaming is bounded by the caller's context instead, so
	// large downloads don't get cut off mid-stream
	client.GetClient().Transport = &http.Transport{
		ResponseHeaderTimeout: opts.Timeout,
		TLSHandshakeTimeout:   opts.Timeout,
		Proxy:                 http.ProxyFromEnvironment,
	}

	restyutil.InstrumentClient(client, tracer, outputProxy{})

	s := &Session{
		Didattica:   didattica,
		IDP:         idp,
		Elearning:   elearning,
		http:        client,
		jar:         jar,
		loginPage:   idp.JoinPath(loginPagePath),
		loginSubmit: idp.JoinPath(loginSubmitPath),
	}
	return s, nil
}

// Signin stores the credentials, loads persisted cookies when
// cookiePath is non-empty and performs one request against the student
// homepage so any pending login is resolved right away. An *AuthError
// is returned when the portal rejects the credentials.
func (s *Session) Signin(ctx context.Context, username, password, cookiePath string) error {
	s.mu.Lock()
	s.username = username
	s.password = password
	s.cookiePath = cookiePath
	s.signedIn = true
	if cookiePath != "" {
		err := s.jar.Load(cookiePath)
		if os.IsNotExist(err) {
			slog.WarnContext(ctx, "cookie file not found", "path", cookiePath)
		} else if err != nil {
			s.mu.Unlock()
			return err
		}
	}
	s.mu.Unlock()

	stream, err := s.Stream(ctx, http.MethodGet, s.Didattica.JoinPath(homepagePath).String())
	if err != nil {
		return err
	}
	// the body is irrelevant, resolving the login chain is the point
	return stream.Close()
}

// Username returns the signed-in username, ErrNotSignedIn before Signin.
func (s *Session) Username() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.signedIn {
		return "", ErrNotSignedIn
	}
	return s.username, nil
}

// Password returns the signed-in password, ErrNotSignedIn before Signin.
func (s *Session) Password() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.signedIn {
		return "", ErrNotSignedIn
	}
	return s.password, nil
}

type Response struct {
	StatusCode int
	Header     http.Header
	URL        *url.URL
	Body       []byte
}

func (r *Response) Err() error {
	if r.StatusCode >= 400 {
		return &StatusError{StatusCode: r.StatusCode, URL: r.URL.String()}
	}
	return nil
}

type Stream struct {
	StatusCode int
	Header     http.Header
	URL        *url.URL
	Body       io.ReadCloser
}

func (r *Stream) Err() error {
	if r.StatusCode >= 400 {
		return &StatusError{StatusCode: r.StatusCode, URL: r.URL.String()}
	}
	return nil
}

func (r *Stream) Close() error {
	io.Copy(io.Discard, r.Body)
	return r.Body.Close()
}

// Send performs one exchange and buffers the whole response body.
// A non-nil form turns the request into a POST with a form body.
func (s *Session) Send(ctx context.Context, method, rawurl string, form url.Values) (*Response, error) {
	target, err := url.Parse(rawurl)
	if err != nil {
		return nil, err
	}

	res, err := s.do(ctx, &request{method: method, url: target, form: form})
	if err != nil {
		return nil, err
	}
	defer res.RawBody().Close()

	body, err := io.ReadAll(res.RawBody())
	if err != nil {
		return nil, err
	}
	return &Response{
		StatusCode: res.StatusCode(),
		Header:     res.Header(),
		URL:        responseURL(res),
		Body:       body,
	}, nil
}

// Stream performs one exchange and hands the un-read body to the
// caller, who owns closing it.
func (s *Session) Stream(ctx context.Context, method, rawurl string) (*Stream, error) {
	target, err := url.Parse(rawurl)
	if err != nil {
		return nil, err
	}

	res, err := s.do(ctx, &request{method: method, url: target})
	if err != nil {
		return nil, err
	}
	return &Stream{
		StatusCode: res.StatusCode(),
		Header:     res.Header(),
		URL:        responseURL(res),
		Body:       res.RawBody(),
	}, nil
}

func (s *Session) do(ctx context.Context, pending *request) (*resty.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exchange(ctx, pending)
}

// exchange drives the hook chain: execute the pending request, let the
// ordered response hooks vote, interpret the first non-continue action
// and loop until a response passes through untouched.
func (s *Session) exchange(ctx context.Context, pending *request) (*resty.Response, error) {
	redirects := 0
	for {
		s.rewriteToPost(pending)

		res, err := s.execute(ctx, pending)
		if err != nil {
			return nil, err
		}

		if s.cookiePath != "" {
			err = s.jar.Save(s.cookiePath)
			if err != nil {
				discard(res)
				return nil, err
			}
		}

		act := s.applyHooks(ctx, res)
		switch act.kind {
		case actionContinue:
			return res, nil
		case actionFail:
			discard(res)
			return nil, act.err
		case actionRedirect:
			discard(res)
			if !act.throttled {
				redirects++
				if redirects > maxRedirects {
					return nil, &AuthError{Message: "login chain never settled"}
				}
			}
			pending = act.redirect
		}
	}
}

func (s *Session) execute(ctx context.Context, pending *request) (*resty.Response, error) {
	req := s.http.R().SetContext(ctx)
	method := pending.method
	if pending.form != nil {
		req.SetFormDataFromValues(pending.form)
		method = http.MethodPost
	}
	return req.Execute(method, pending.url.String())
}

func responseURL(res *resty.Response) *url.URL {
	return res.RawResponse.Request.URL
}

func discard(res *resty.Response) {
	body := res.RawBody()
	if body == nil {
		return
	}
	io.Copy(io.Discard, body)
	body.Close()
}
