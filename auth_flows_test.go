package authgate_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"

	authgate "github.com/trainlog/authgate"
	oa2 "github.com/trainlog/authgate/oauth2"
	"github.com/trainlog/authgate/stores"
)

// captureMailer records verification mails instead of sending them
type captureMailer struct {
	sent []capturedMail
	fail bool
}

type capturedMail struct {
	to   string
	link string
}

func (m *captureMailer) SendVerificationEmail(to, link string) error {
	if m.fail {
		return fmt.Errorf("%w: smtp unreachable", authgate.ErrDeliveryFailed)
	}
	m.sent = append(m.sent, capturedMail{to: to, link: link})
	return nil
}

func (m *captureMailer) lastToken(t *testing.T) string {
	t.Helper()
	if len(m.sent) == 0 {
		t.Fatal("no verification mail was sent")
	}
	u, err := url.Parse(m.sent[len(m.sent)-1].link)
	if err != nil {
		t.Fatalf("bad verification link: %v", err)
	}
	token := u.Query().Get("token")
	if token == "" {
		t.Fatalf("verification link carries no token: %s", u)
	}
	return token
}

// stubProvider is a federated login variant with canned responses
type stubProvider struct {
	name        string
	identity    *oa2.Identity
	exchangeErr error
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) AuthCodeURL(state string) string {
	return "https://stub.example.com/authorize?state=" + url.QueryEscape(state)
}

func (p *stubProvider) ExchangeCodeForIdentity(ctx context.Context, code string) (*oa2.Identity, error) {
	if p.exchangeErr != nil {
		return nil, p.exchangeErr
	}
	return p.identity, nil
}

type testEnv struct {
	auth   *authgate.Auth
	mailer *captureMailer
	server *httptest.Server
	client *http.Client
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := &authgate.Config{
		BaseURL:         "http://auth.test",
		LoginURL:        "/auth/login",
		SecretKey:       "test-secret-key",
		JwtIssuer:       "authgate-test",
		SessionTTL:      time.Hour,
		VerificationTTL: time.Hour,
	}
	mailer := &captureMailer{}
	sessions := authgate.NewSCSSessions(cfg.SessionTTL)
	a := authgate.New(cfg,
		stores.NewFSUserStore(t.TempDir()),
		stores.NewFSTokenStore(t.TempDir()),
		mailer, sessions)

	r := mux.NewRouter()
	a.Routes(r)
	r.Handle("/dashboard", a.EnsureUser(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		fmt.Fprint(w, authgate.UserIDFromRequest(req))
	})))

	server := httptest.NewServer(sessions.Middleware(r))
	t.Cleanup(server.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	client := &http.Client{
		Jar: jar,
		// redirects are part of what the tests assert on
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return &testEnv{auth: a, mailer: mailer, server: server, client: client}
}

func (e *testEnv) postForm(t *testing.T, path string, form url.Values) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := e.client.PostForm(e.server.URL+path, form)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp, decodeBody(t, resp)
}

func (e *testEnv) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := e.client.Get(e.server.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		return nil
	}
	var body map[string]any
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("invalid JSON response: %v\n%s", err, data)
	}
	return body
}

func checkStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("status = %d, want %d", resp.StatusCode, want)
	}
}

func registerForm(email, username, password string) url.Values {
	return url.Values{
		"email":            {email},
		"username":         {username},
		"password":         {password},
		"confirm_password": {password},
	}
}

func TestRegisterVerifyLoginFlow(t *testing.T) {
	env := newTestEnv(t)

	// register: account created pending verification, mail sent
	resp, body := env.postForm(t, "/auth/register", registerForm("alice@example.com", "alice", "s3cretpass"))
	checkStatus(t, resp, http.StatusCreated)
	if body["email_sent"] != true {
		t.Fatalf("email_sent = %v, want true", body["email_sent"])
	}
	userID, _ := body["user_id"].(string)
	if userID == "" {
		t.Fatal("no user_id in register response")
	}

	// login before verification is refused, no session
	resp, body = env.postForm(t, "/auth/login", url.Values{
		"email": {"alice@example.com"}, "password": {"s3cretpass"},
	})
	checkStatus(t, resp, http.StatusForbidden)
	if body["code"] != authgate.ErrCodeNotVerified {
		t.Fatalf("code = %v, want %s", body["code"], authgate.ErrCodeNotVerified)
	}
	checkStatus(t, env.get(t, "/dashboard"), http.StatusFound)

	// follow the verification link
	token := env.mailer.lastToken(t)
	resp = env.get(t, "/auth/verify?token="+token)
	checkStatus(t, resp, http.StatusOK)
	decodeBody(t, resp)

	// the token is single use
	resp = env.get(t, "/auth/verify?token="+token)
	checkStatus(t, resp, http.StatusBadRequest)

	// login now succeeds and establishes a session
	resp, body = env.postForm(t, "/auth/login", url.Values{
		"email": {"alice@example.com"}, "password": {"s3cretpass"},
	})
	checkStatus(t, resp, http.StatusOK)
	if body["token"] == "" {
		t.Fatal("login response carries no auth token")
	}
	user, _ := body["user"].(map[string]any)
	if user["email"] != "alice@example.com" || user["username"] != "alice" {
		t.Fatalf("unexpected user in login response: %v", user)
	}

	// the session cookie grants access
	resp = env.get(t, "/dashboard")
	checkStatus(t, resp, http.StatusOK)
	got, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(got) != userID {
		t.Fatalf("dashboard saw user %q, want %q", got, userID)
	}

	// logout drops the session
	resp, _ = env.postForm(t, "/auth/logout", nil)
	checkStatus(t, resp, http.StatusOK)
	resp = env.get(t, "/dashboard")
	checkStatus(t, resp, http.StatusFound)
	if loc := resp.Header.Get("Location"); !strings.Contains(loc, "callbackURL=%2Fdashboard") {
		t.Fatalf("unexpected post-logout redirect: %s", loc)
	}
}

func TestRegisterValidation(t *testing.T) {
	tests := []struct {
		name     string
		form     url.Values
		wantCode string
	}{
		{"invalid email", registerForm("not-an-email", "bob", "longenough"), authgate.ErrCodeInvalidEmail},
		{"missing email", registerForm("", "bob", "longenough"), authgate.ErrCodeMissingField},
		{"username too short", registerForm("bob@example.com", "bo", "longenough"), authgate.ErrCodeInvalidUsername},
		{"username bad chars", registerForm("bob@example.com", "bob smith", "longenough"), authgate.ErrCodeInvalidUsername},
		{"password too short", registerForm("bob@example.com", "bob", "short"), authgate.ErrCodeWeakPassword},
		{"password mismatch", url.Values{
			"email":            {"bob@example.com"},
			"username":         {"bob"},
			"password":         {"longenough"},
			"confirm_password": {"different11"},
		}, authgate.ErrCodeMissingField},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			resp, body := env.postForm(t, "/auth/register", tt.form)
			checkStatus(t, resp, http.StatusBadRequest)
			if body["code"] != tt.wantCode {
				t.Fatalf("code = %v, want %s", body["code"], tt.wantCode)
			}
		})
	}
}

func TestRegisterDuplicates(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.postForm(t, "/auth/register", registerForm("carol@example.com", "carol", "longenough"))
	checkStatus(t, resp, http.StatusCreated)

	// same email, different case and username
	resp, body := env.postForm(t, "/auth/register", registerForm("Carol@Example.com", "carol2", "longenough"))
	checkStatus(t, resp, http.StatusConflict)
	if body["code"] != authgate.ErrCodeEmailExists || body["field"] != "email" {
		t.Fatalf("unexpected duplicate-email response: %v", body)
	}

	// same username, different email
	resp, body = env.postForm(t, "/auth/register", registerForm("other@example.com", "carol", "longenough"))
	checkStatus(t, resp, http.StatusConflict)
	if body["code"] != authgate.ErrCodeUsernameTaken || body["field"] != "username" {
		t.Fatalf("unexpected duplicate-username response: %v", body)
	}
}

func TestRegisterWithJSONBody(t *testing.T) {
	env := newTestEnv(t)

	payload := `{"email":"dave@example.com","username":"dave","password":"longenough"}`
	resp, err := env.client.Post(env.server.URL+"/auth/register", "application/json", strings.NewReader(payload))
	if err != nil {
		t.Fatal(err)
	}
	checkStatus(t, resp, http.StatusCreated)
	decodeBody(t, resp)
}

func TestRegisterWhenMailerDown(t *testing.T) {
	env := newTestEnv(t)
	env.mailer.fail = true

	// the account is still created; the delivery failure is reported
	resp, body := env.postForm(t, "/auth/register", registerForm("eve@example.com", "eve", "longenough"))
	checkStatus(t, resp, http.StatusCreated)
	if body["email_sent"] != false {
		t.Fatalf("email_sent = %v, want false", body["email_sent"])
	}
	if body["email_error"] == nil {
		t.Fatal("expected email_error in response")
	}

	// resend works once the mailer recovers
	env.mailer.fail = false
	resp, _ = env.postForm(t, "/auth/resend-verification", url.Values{"email": {"eve@example.com"}})
	checkStatus(t, resp, http.StatusOK)

	resp = env.get(t, "/auth/verify?token="+env.mailer.lastToken(t))
	checkStatus(t, resp, http.StatusOK)
}

func TestLoginFailures(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.postForm(t, "/auth/register", registerForm("frank@example.com", "frank", "longenough"))
	checkStatus(t, resp, http.StatusCreated)
	resp = env.get(t, "/auth/verify?token="+env.mailer.lastToken(t))
	checkStatus(t, resp, http.StatusOK)

	tests := []struct {
		name       string
		email      string
		password   string
		wantStatus int
		wantCode   string
	}{
		{"wrong password", "frank@example.com", "wrongwrong", http.StatusUnauthorized, authgate.ErrCodeInvalidCreds},
		{"unknown email", "nobody@example.com", "longenough", http.StatusUnauthorized, authgate.ErrCodeInvalidCreds},
		{"missing password", "frank@example.com", "", http.StatusBadRequest, authgate.ErrCodeMissingField},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := env.postForm(t, "/auth/login", url.Values{
				"email": {tt.email}, "password": {tt.password},
			})
			checkStatus(t, resp, tt.wantStatus)
			if body["code"] != tt.wantCode {
				t.Fatalf("code = %v, want %s", body["code"], tt.wantCode)
			}
		})
	}
}

func TestResendVerification(t *testing.T) {
	env := newTestEnv(t)

	// unknown addresses are not revealed
	resp, body := env.postForm(t, "/auth/resend-verification", url.Values{"email": {"ghost@example.com"}})
	checkStatus(t, resp, http.StatusOK)
	if body["success"] != true {
		t.Fatalf("unexpected response: %v", body)
	}

	resp, _ = env.postForm(t, "/auth/register", registerForm("gina@example.com", "gina", "longenough"))
	checkStatus(t, resp, http.StatusCreated)
	mails := len(env.mailer.sent)

	// unverified account gets a fresh mail
	resp, _ = env.postForm(t, "/auth/resend-verification", url.Values{"email": {"gina@example.com"}})
	checkStatus(t, resp, http.StatusOK)
	if len(env.mailer.sent) != mails+1 {
		t.Fatalf("sent %d mails, want %d", len(env.mailer.sent), mails+1)
	}

	// verified account is a no-op
	resp = env.get(t, "/auth/verify?token="+env.mailer.lastToken(t))
	checkStatus(t, resp, http.StatusOK)
	mails = len(env.mailer.sent)
	resp, _ = env.postForm(t, "/auth/resend-verification", url.Values{"email": {"gina@example.com"}})
	checkStatus(t, resp, http.StatusOK)
	if len(env.mailer.sent) != mails {
		t.Fatalf("resend for a verified account sent a mail")
	}
}

func TestAuthTokenGrantsAPIAccess(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.postForm(t, "/auth/register", registerForm("hank@example.com", "hank", "longenough"))
	checkStatus(t, resp, http.StatusCreated)
	resp = env.get(t, "/auth/verify?token="+env.mailer.lastToken(t))
	checkStatus(t, resp, http.StatusOK)
	_, body := env.postForm(t, "/auth/login", url.Values{
		"email": {"hank@example.com"}, "password": {"longenough"},
	})
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatal("no token in login response")
	}

	// a cookie-less API client authenticates with the bearer token alone
	req, _ := http.NewRequest("GET", env.server.URL+"/dashboard", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultTransport.RoundTrip(req)
	if err != nil {
		t.Fatal(err)
	}
	checkStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	// a forged token does not
	req, _ = http.NewRequest("GET", env.server.URL+"/dashboard", nil)
	req.Header.Set("Authorization", "Bearer "+token+"tampered")
	resp, err = http.DefaultTransport.RoundTrip(req)
	if err != nil {
		t.Fatal(err)
	}
	checkStatus(t, resp, http.StatusFound)
	resp.Body.Close()
}

// startOAuth walks the authorization redirect and returns the state the
// handler bound to the browser
func startOAuth(t *testing.T, env *testEnv, provider string) string {
	t.Helper()
	resp := env.get(t, "/auth/"+provider)
	checkStatus(t, resp, http.StatusFound)
	loc, err := url.Parse(resp.Header.Get("Location"))
	if err != nil {
		t.Fatal(err)
	}
	state := loc.Query().Get("state")
	if state == "" {
		t.Fatal("authorization redirect carries no state")
	}
	return state
}

func TestOAuthCallbackFlow(t *testing.T) {
	env := newTestEnv(t)
	stub := &stubProvider{
		name: "stub",
		identity: &oa2.Identity{
			SubjectID:   "stub-123",
			Email:       "ida@example.com",
			DisplayName: "Ida",
		},
	}
	env.auth.AddProvider(stub)

	state := startOAuth(t, env, "stub")

	resp := env.get(t, "/auth/stub/callback?state="+url.QueryEscape(state)+"&code=ok")
	checkStatus(t, resp, http.StatusFound)
	if loc := resp.Header.Get("Location"); loc != "/" {
		t.Fatalf("callback redirected to %q, want /", loc)
	}

	// the session from the callback grants access
	resp = env.get(t, "/dashboard")
	checkStatus(t, resp, http.StatusOK)
	first, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	// a second login with the same subject resolves to the same account
	resp, _ = env.postForm(t, "/auth/logout", nil)
	checkStatus(t, resp, http.StatusOK)
	state = startOAuth(t, env, "stub")
	resp = env.get(t, "/auth/stub/callback?state="+url.QueryEscape(state)+"&code=ok")
	checkStatus(t, resp, http.StatusFound)

	resp = env.get(t, "/dashboard")
	checkStatus(t, resp, http.StatusOK)
	second, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(first) != string(second) {
		t.Fatalf("same subject produced two accounts: %s then %s", first, second)
	}
}

func TestOAuthCallbackRejectsForgedState(t *testing.T) {
	env := newTestEnv(t)
	env.auth.AddProvider(&stubProvider{
		name:     "stub",
		identity: &oa2.Identity{SubjectID: "stub-1", Email: "x@example.com"},
	})

	startOAuth(t, env, "stub")

	resp := env.get(t, "/auth/stub/callback?state=forged&code=ok")
	checkStatus(t, resp, http.StatusBadRequest)
	body := decodeBody(t, resp)
	if body["code"] != authgate.ErrCodeInvalidState {
		t.Fatalf("code = %v, want %s", body["code"], authgate.ErrCodeInvalidState)
	}

	// no session was established
	checkStatus(t, env.get(t, "/dashboard"), http.StatusFound)
}

func TestOAuthCallbackProviderFailures(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"private email", oa2.ErrMissingEmailClaim, authgate.ErrCodeMissingEmail},
		{"exchange failed", oa2.ErrCodeExchangeFailed, authgate.ErrCodeOAuthFailed},
		{"profile fetch failed", oa2.ErrProfileFetchFailed, authgate.ErrCodeOAuthFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.auth.AddProvider(&stubProvider{name: "stub", exchangeErr: tt.err})

			state := startOAuth(t, env, "stub")
			resp := env.get(t, "/auth/stub/callback?state="+url.QueryEscape(state)+"&code=bad")
			checkStatus(t, resp, http.StatusBadGateway)
			body := decodeBody(t, resp)
			if body["code"] != tt.wantCode {
				t.Fatalf("code = %v, want %s", body["code"], tt.wantCode)
			}
			checkStatus(t, env.get(t, "/dashboard"), http.StatusFound)
		})
	}
}

func TestOAuthUnknownProvider(t *testing.T) {
	env := newTestEnv(t)
	checkStatus(t, env.get(t, "/auth/nosuch"), http.StatusNotFound)
	checkStatus(t, env.get(t, "/auth/nosuch/callback?state=x&code=y"), http.StatusNotFound)
}

func TestOAuthLinksExistingLocalAccount(t *testing.T) {
	env := newTestEnv(t)

	// a verified local account exists first
	resp, body := env.postForm(t, "/auth/register", registerForm("judy@example.com", "judy", "longenough"))
	checkStatus(t, resp, http.StatusCreated)
	localID, _ := body["user_id"].(string)
	resp = env.get(t, "/auth/verify?token="+env.mailer.lastToken(t))
	checkStatus(t, resp, http.StatusOK)

	// federated login with the same email links rather than duplicating
	env.auth.AddProvider(&stubProvider{
		name:     "stub",
		identity: &oa2.Identity{SubjectID: "stub-judy", Email: "judy@example.com", DisplayName: "Judy"},
	})
	state := startOAuth(t, env, "stub")
	resp = env.get(t, "/auth/stub/callback?state="+url.QueryEscape(state)+"&code=ok")
	checkStatus(t, resp, http.StatusFound)

	resp = env.get(t, "/dashboard")
	checkStatus(t, resp, http.StatusOK)
	got, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(got) != localID {
		t.Fatalf("federated login resolved to %s, want existing account %s", got, localID)
	}
}

func TestVerifyTokenFailureCodes(t *testing.T) {
	env := newTestEnv(t)

	resp := env.get(t, "/auth/verify?token=no-such-token")
	checkStatus(t, resp, http.StatusBadRequest)
	body := decodeBody(t, resp)
	if body["code"] != authgate.ErrCodeTokenNotFound {
		t.Fatalf("code = %v, want %s", body["code"], authgate.ErrCodeTokenNotFound)
	}

	resp = env.get(t, "/auth/verify")
	checkStatus(t, resp, http.StatusBadRequest)
}

func TestErrorsWrapCleanly(t *testing.T) {
	wrapped := fmt.Errorf("store: %w", authgate.ErrDuplicateEmail)
	if !errors.Is(wrapped, authgate.ErrDuplicateEmail) {
		t.Fatal("wrapped sentinel lost its identity")
	}
}
