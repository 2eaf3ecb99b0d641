package e2e_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/plcgate/authd/internal/auth"
	"github.com/plcgate/authd/internal/models"
	"github.com/plcgate/authd/internal/server"
)

const (
	testUsername = "user1"
	testPassword = "password123"
	testClientID = "web-app-client-id"
	testSecret   = "web-app-client-secret"
	redirectURI  = "http://localhost:8000/callback"

	plcClientID = "plc-client-id"
	plcSecret   = "plc-client-secret"
)

// harness holds the full e2e stack: a real HTTP server wired exactly
// like the production mux, with an in-memory code store.
type harness struct {
	URL    string
	Client *http.Client
}

// newHarness seeds one user and two clients (one browser client with a
// redirect URI, one machine client without), wires the full HTTP stack
// via server.NewMux, and starts an httptest server.
func newHarness(t *testing.T) *harness {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)

	dir := auth.NewStaticDirectory(
		[]models.Principal{{
			Username:     testUsername,
			FullName:     "Taro Yamada",
			Email:        "user1@example.com",
			PasswordHash: string(hash),
		}},
		[]models.Client{
			{ClientID: testClientID, ClientSecret: testSecret, RedirectURI: redirectURI},
			{ClientID: plcClientID, ClientSecret: plcSecret},
		},
	)

	codes := auth.NewMemoryCodeStore()
	t.Cleanup(codes.Stop)

	logger := slog.New(slog.DiscardHandler)

	ledger := auth.NewLedger(codes, 5*time.Minute)
	issuer := auth.NewTokenIssuer([]byte("e2e-secret-e2e-secret-e2e-secret"), 15*time.Minute)
	dispatcher := auth.NewDispatcher(dir, ledger, issuer, 30*time.Minute)

	ts := httptest.NewServer(server.NewMux(server.MuxConfig{
		Directory:  dir,
		Ledger:     ledger,
		Dispatcher: dispatcher,
		Issuer:     issuer,
		Logger:     logger,
	}))
	t.Cleanup(ts.Close)

	return &harness{URL: ts.URL, Client: ts.Client()}
}

// tokenResponse is the JSON body returned by POST /token.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// passwordToken obtains a token via the password grant.
func (h *harness) passwordToken(t *testing.T, username, password string) tokenResponse {
	t.Helper()

	resp := h.doPostForm(t, "/token", url.Values{
		"grant_type": {"password"},
		"username":   {username},
		"password":   {password},
	})
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var tr tokenResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tr))

	return tr
}

// clientCredentialsToken obtains a token via the client_credentials grant.
func (h *harness) clientCredentialsToken(t *testing.T, clientID, secret string) tokenResponse {
	t.Helper()

	resp := h.doPostForm(t, "/token", url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {clientID},
		"client_secret": {secret},
	})
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var tr tokenResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tr))

	return tr
}

// authorizeForCode performs the browser half of the authorization code
// flow: GET the login form, scrape the CSRF token, POST credentials,
// and pull the code out of the redirect Location.
func (h *harness) authorizeForCode(t *testing.T) string {
	t.Helper()

	authURL := h.URL + "/authorize?" + url.Values{
		"client_id":    {testClientID},
		"redirect_uri": {redirectURI},
	}.Encode()

	resp := h.doGet(t, authURL, "")
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	bodyBytes, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	form := url.Values{
		"username":     {testUsername},
		"password":     {testPassword},
		"csrf_token":   {extractCSRF(t, string(bodyBytes))},
		"client_id":    {testClientID},
		"redirect_uri": {redirectURI},
	}

	postResp := h.doPostFormNoRedirect(t, "/authorize", form)
	defer postResp.Body.Close()

	require.Equal(t, http.StatusFound, postResp.StatusCode)

	loc, err := url.Parse(postResp.Header.Get("Location"))
	require.NoError(t, err)

	code := loc.Query().Get("code")
	require.NotEmpty(t, code, "authorization code missing from redirect")

	return code
}

// exchangeCode exchanges an authorization code at the token endpoint and
// returns the raw response for status assertions.
func (h *harness) exchangeCode(t *testing.T, code string) *http.Response {
	t.Helper()

	return h.doPostForm(t, "/token", url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {testClientID},
		"client_secret": {testSecret},
		"code":          {code},
	})
}

// doGet performs a GET request, optionally with a Bearer token.
func (h *harness) doGet(t *testing.T, fullURL, token string) *http.Response {
	t.Helper()

	req, err := http.NewRequestWithContext(t.Context(), "GET", fullURL, nil)
	require.NoError(t, err)

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := h.Client.Do(req)
	require.NoError(t, err)

	return resp
}

// doPostForm performs a POST with form-encoded body and t.Context().
func (h *harness) doPostForm(t *testing.T, path string, form url.Values) *http.Response {
	t.Helper()

	req, err := http.NewRequestWithContext(
		t.Context(), "POST", h.URL+path,
		bytes.NewBufferString(form.Encode()),
	)
	require.NoError(t, err)

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := h.Client.Do(req)
	require.NoError(t, err)

	return resp
}

// doPostFormNoRedirect performs a form POST that does not follow redirects.
func (h *harness) doPostFormNoRedirect(t *testing.T, path string, form url.Values) *http.Response {
	t.Helper()

	noRedirect := *h.Client
	noRedirect.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}

	req, err := http.NewRequestWithContext(
		t.Context(), "POST", h.URL+path,
		bytes.NewBufferString(form.Encode()),
	)
	require.NoError(t, err)

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := noRedirect.Do(req)
	require.NoError(t, err)

	return resp
}

// doPostJSON performs a POST with JSON body and a Bearer token.
func (h *harness) doPostJSON(t *testing.T, path, token string, body []byte) *http.Response {
	t.Helper()

	req, err := http.NewRequestWithContext(
		t.Context(), "POST", h.URL+path,
		bytes.NewReader(body),
	)
	require.NoError(t, err)

	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := h.Client.Do(req)
	require.NoError(t, err)

	return resp
}

// readBody drains and closes a response body.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()

	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return string(b)
}

// extractCSRF scrapes the CSRF token from the login form HTML.
func extractCSRF(t *testing.T, body string) string {
	t.Helper()

	re := regexp.MustCompile(`name="csrf_token" value="([A-Za-z0-9_-]+)"`)
	matches := re.FindStringSubmatch(body)
	require.Len(t, matches, 2, "CSRF token not found in form HTML")

	return matches[1]
}
