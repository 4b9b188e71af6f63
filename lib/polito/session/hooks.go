package session

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"politodown/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
)

// overridable so the throttling tests don't take 15 seconds
var throttleDelay = time.Second * 5

type request struct {
	method string
	url    *url.URL
	// non-nil form means POST with the form as body
	form url.Values
}

type actionKind int

const (
	actionContinue actionKind = iota
	actionRedirect
	actionFail
)

// action is the verdict of a response hook: pass the response through,
// replace the exchange with a synthesized redirect, or fail it.
type action struct {
	kind     actionKind
	redirect *request
	err      error
	// throttle retries are deliberately unbounded and must not count
	// against the redirect cap
	throttled bool
}

func proceed() action {
	return action{kind: actionContinue}
}

func redirectTo(target *url.URL, params url.Values) action {
	withParams := *target
	if params != nil {
		withParams.RawQuery = params.Encode()
	}
	return action{
		kind:     actionRedirect,
		redirect: &request{method: http.MethodGet, url: &withParams},
	}
}

func fail(err error) action {
	return action{kind: actionFail, err: err}
}

type responseHook func(ctx context.Context, res *resty.Response) action

// rewriteToPost converts a GET carrying query parameters for the login
// submission endpoint, or any request to the SAML POST binding, into a
// POST whose body is those parameters. The portal synthesizes its
// redirects as GETs but both receiving endpoints insist on POST.
func (s *Session) rewriteToPost(pending *request) {
	if pending.form != nil {
		return
	}

	stripped := *pending.url
	stripped.RawQuery = ""

	isLoginSubmit := stripped.String() == s.loginSubmit.String() && pending.url.RawQuery != ""
	isSAMLBinding := pending.url.Path == "/Shibboleth.sso/SAML2/POST"
	if !isLoginSubmit && !isSAMLBinding {
		return
	}

	pending.form = pending.url.Query()
	pending.url = &stripped
	pending.method = http.MethodPost
}

func (s *Session) applyHooks(ctx context.Context, res *resty.Response) action {
	hooks := []responseHook{
		s.handleThrottling,
		s.handleLoginRequest,
		s.handleExpiringPassword,
		s.handleSSORequest,
		s.checkAuth,
		s.followRedirect,
	}
	for _, hook := range hooks {
		act := hook(ctx, res)
		if act.kind != actionContinue {
			return act
		}
	}
	return proceed()
}

// handleThrottling absorbs the 502s the portal answers with when it is
// overloaded: wait a fixed five seconds and replay the same request.
// There is no retry cap, the portal is trusted to recover.
func (s *Session) handleThrottling(ctx context.Context, res *resty.Response) action {
	if res.StatusCode() != http.StatusBadGateway {
		return proceed()
	}

	slog.InfoContext(
		ctx, "throttled by the portal, retrying",
		"url", responseURL(res).String(),
		"delay", throttleDelay,
	)
	select {
	case <-time.After(throttleDelay):
	case <-ctx.Done():
		return fail(ctx.Err())
	}

	// a POSTed form is carried into the retry so the replay really is
	// the identical request
	var form url.Values
	if len(res.Request.FormData) > 0 {
		form = res.Request.FormData
	}

	retry := *responseURL(res)
	return action{
		kind:      actionRedirect,
		redirect:  &request{method: res.Request.Method, url: &retry, form: form},
		throttled: true,
	}
}

// handleLoginRequest reacts to the IDP presenting its login page by
// redirecting to the submission endpoint with the credentials as query
// parameters; rewriteToPost turns that into the required POST.
func (s *Session) handleLoginRequest(ctx context.Context, res *resty.Response) action {
	if responseURL(res).String() != s.loginPage.String() {
		return proceed()
	}

	return redirectTo(s.loginSubmit, url.Values{
		"j_username": {s.username},
		"j_password": {s.password},
	})
}

// handleExpiringPassword bypasses the password-expiry interstitial the
// portal shows after login when the password is about to expire.
func (s *Session) handleExpiringPassword(ctx context.Context, res *resty.Response) action {
	if responseURL(res).Path != "/Chpass/chpassservlet/main.htm" {
		return proceed()
	}

	slog.InfoContext(ctx, "password is expiring soon")
	return redirectTo(s.loginSubmit, url.Values{
		"j_username":   {s.username},
		"j_password":   {s.password},
		"p_username":   {s.username},
		"p_locale":     {"it"},
		"j_bypassScad": {"S"},
	})
}

// handleSSORequest resolves the SAML redirect-binding step: the IDP
// answers with a self-submitting form whose inputs must be POSTed to
// the service provider. The inputs travel as query parameters and are
// converted back to a POST body by rewriteToPost.
func (s *Session) handleSSORequest(ctx context.Context, res *resty.Response) action {
	ok := res.StatusCode() >= 200 && res.StatusCode() < 300
	if !ok || responseURL(res).Path != "/idp/profile/SAML2/Redirect/SSO" {
		return proceed()
	}

	slog.DebugContext(ctx, "resolving sso request", "url", responseURL(res).String())

	doc, err := goquery.NewDocumentFromReader(res.RawBody())
	res.RawBody().Close()
	if err != nil {
		return fail(err)
	}

	rawAction, params, found := htmlutil.FormInputs(doc)
	if !found || rawAction == "" {
		return fail(&AuthError{Message: "sso response carried no form"})
	}
	target, err := responseURL(res).Parse(rawAction)
	if err != nil {
		return fail(err)
	}
	return redirectTo(target, params)
}

// checkAuth fails the exchange when, with every redirect resolved, the
// final response still sits on the login submission endpoint: the
// portal rejected the credentials.
func (s *Session) checkAuth(ctx context.Context, res *resty.Response) action {
	if isRedirect(res.StatusCode()) {
		return proceed()
	}
	if responseURL(res).String() != s.loginSubmit.String() {
		return proceed()
	}

	message := "invalid credentials"
	doc, err := goquery.NewDocumentFromReader(res.RawBody())
	res.RawBody().Close()
	if err == nil {
		text := htmlutil.CleanText(doc.Find("span#loginerror").Text())
		if text != "" {
			message = text
		}
	}

	slog.ErrorContext(ctx, "login failed", "message", message)
	return fail(&AuthError{Message: message})
}

// followRedirect walks plain HTTP redirects, which includes every
// synthetic redirect issued by the other hooks on the previous pass.
func (s *Session) followRedirect(ctx context.Context, res *resty.Response) action {
	status := res.StatusCode()
	if !isRedirect(status) {
		return proceed()
	}

	location := res.Header().Get("Location")
	if location == "" {
		return proceed()
	}
	target, err := responseURL(res).Parse(location)
	if err != nil {
		return fail(err)
	}

	method := http.MethodGet
	if status == http.StatusTemporaryRedirect || status == http.StatusPermanentRedirect {
		method = res.Request.Method
	}
	return action{
		kind:     actionRedirect,
		redirect: &request{method: method, url: target},
	}
}

func isRedirect(status int) bool {
	return status >= 300 && status < 400
}
