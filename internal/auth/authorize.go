package auth

import (
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	// csrfTokenBytes is the number of random bytes in a CSRF token.
	csrfTokenBytes = 16

	// csrfExpiry controls how long a login form stays submittable.
	csrfExpiry = 10 * time.Minute

	rateLimitWindow  = 5 * time.Minute
	rateLimitMaxFail = 10

	// rateLimitPruneThreshold is the number of tracked IPs above which
	// the rate limiter prunes expired entries to prevent unbounded growth.
	rateLimitPruneThreshold = 1000
)

// loginPage renders the login/consent form. The csrf_token hidden field
// prevents cross-site form submission.
var loginPage = template.Must(template.New("login").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>authd</title>
<style>
  body {
    font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
    background: #f5f5f5;
    color: #1a1a1a;
    display: flex;
    align-items: center;
    justify-content: center;
    min-height: 100vh;
    margin: 0;
  }
  .card {
    background: #fff;
    border: 1px solid #e0e0e0;
    border-radius: 8px;
    padding: 2.5rem 2rem;
    width: 100%;
    max-width: 380px;
  }
  .card h1 { font-size: 1.25rem; margin: 0 0 0.25rem; }
  .card p.sub { font-size: 0.85rem; color: #666; margin: 0 0 1.5rem; }
  .consent, .error {
    border: 1px solid #e0e0e0;
    border-radius: 6px;
    padding: 0.6rem 0.75rem;
    font-size: 0.85rem;
    margin-bottom: 1rem;
  }
  .consent { background: #f8f9fa; }
  .consent .redirect { color: #666; word-break: break-all; }
  .error { background: #fef2f2; color: #991b1b; border-color: #fecaca; }
  label { display: block; font-size: 0.85rem; margin-bottom: 0.35rem; }
  input[type="text"], input[type="password"] {
    width: 100%;
    box-sizing: border-box;
    padding: 0.55rem 0.7rem;
    border: 1px solid #d0d0d0;
    border-radius: 6px;
    margin-bottom: 1rem;
  }
  button {
    width: 100%;
    padding: 0.6rem;
    background: #1a1a1a;
    color: #fff;
    border: none;
    border-radius: 6px;
    cursor: pointer;
  }
</style>
</head>
<body>
<div class="card">
  <h1>authd</h1>
  <p class="sub">Sign in to authorize access.</p>
  <div class="consent">
    <p><strong>{{.ClientID}}</strong> is requesting access.</p>
    <p class="redirect">You will be redirected to: <code>{{.RedirectURI}}</code></p>
  </div>
  {{if .Error}}<div class="error">{{.Error}}</div>{{end}}
  <form method="POST">
    <input type="hidden" name="csrf_token" value="{{.CSRFToken}}">
    <input type="hidden" name="client_id" value="{{.ClientID}}">
    <input type="hidden" name="redirect_uri" value="{{.RedirectURI}}">
    <label for="username">Username</label>
    <input type="text" id="username" name="username" autocomplete="username" required autofocus>
    <label for="password">Password</label>
    <input type="password" id="password" name="password" autocomplete="current-password" required>
    <button type="submit">Sign in</button>
  </form>
</div>
</body>
</html>`))

type loginData struct {
	CSRFToken   string
	ClientID    string
	RedirectURI string
	Error       string
}

// remoteIP extracts the IP address from r.RemoteAddr, stripping the
// port. Falls back to the raw value if parsing fails.
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}

// csrfEntry binds a CSRF token to the authorization parameters it was
// issued for, so a token from one consent form cannot authorize a
// submission naming a different client or redirect target.
type csrfEntry struct {
	clientID    string
	redirectURI string
	expiresAt   time.Time
}

type csrfStore struct {
	mu     sync.Mutex
	tokens map[string]csrfEntry
}

func newCSRFStore() *csrfStore {
	return &csrfStore{tokens: make(map[string]csrfEntry)}
}

// issue creates a random token bound to the given parameters. Expired
// entries are pruned opportunistically on issue.
func (c *csrfStore) issue(clientID, redirectURI string) string {
	token := randomToken(csrfTokenBytes)
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	for k, e := range c.tokens {
		if now.After(e.expiresAt) {
			delete(c.tokens, k)
		}
	}

	c.tokens[token] = csrfEntry{
		clientID:    clientID,
		redirectURI: redirectURI,
		expiresAt:   now.Add(csrfExpiry),
	}

	return token
}

// consume retrieves and deletes a token. Returns false if the token is
// missing, expired, or bound to different parameters.
func (c *csrfStore) consume(token, clientID, redirectURI string) bool {
	if token == "" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.tokens[token]
	if !ok {
		return false
	}
	delete(c.tokens, token)

	if time.Now().After(e.expiresAt) {
		return false
	}

	return e.clientID == clientID && e.redirectURI == redirectURI
}

// loginRateLimiter tracks failed login attempts per IP with a sliding
// window. After maxFailures within the window, further attempts are
// rejected until the window expires.
type loginRateLimiter struct {
	mu       sync.Mutex
	failures map[string][]time.Time
}

func newLoginRateLimiter() *loginRateLimiter {
	return &loginRateLimiter{failures: make(map[string][]time.Time)}
}

// check returns true if the IP is currently rate-limited.
func (rl *loginRateLimiter) check(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-rateLimitWindow)

	// Prevent unbounded growth from many distinct source IPs. When the
	// map gets large, prune all IPs whose most recent failure has
	// expired beyond the window.
	if len(rl.failures) > rateLimitPruneThreshold {
		for k, times := range rl.failures {
			if len(times) == 0 || times[len(times)-1].Before(cutoff) {
				delete(rl.failures, k)
			}
		}
	}

	recent := rl.failures[ip][:0]
	for _, t := range rl.failures[ip] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) == 0 {
		delete(rl.failures, ip)
	} else {
		rl.failures[ip] = recent
	}

	return len(recent) >= rateLimitMaxFail
}

// record adds a failed attempt for the IP.
func (rl *loginRateLimiter) record(ip string) {
	rl.mu.Lock()
	rl.failures[ip] = append(rl.failures[ip], time.Now())
	rl.mu.Unlock()
}

// HandleAuthorize returns the /authorize handler: GET renders the login
// form after validating the client, POST checks credentials and redirects
// back to the client with a fresh authorization code.
func HandleAuthorize(dir Directory, ledger *Ledger, logger *slog.Logger) http.HandlerFunc {
	csrf := newCSRFStore()
	limiter := newLoginRateLimiter()

	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			handleAuthorizeGET(w, r, dir, csrf)
		case http.MethodPost:
			handleAuthorizePOST(w, r, dir, ledger, csrf, limiter, logger)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

// validateAuthClient checks that the client exists and that the supplied
// redirect_uri exactly equals the registered one. Prefix or partial
// matches are not accepted; a client with no registered redirect URI
// cannot use the authorization flow at all.
func validateAuthClient(dir Directory, clientID, redirectURI string) bool {
	client, ok := dir.FindClient(clientID)
	if !ok {
		return false
	}

	return client.RedirectURI != "" && client.RedirectURI == redirectURI
}

func renderLoginPage(w http.ResponseWriter, status int, data loginData) {
	w.Header().Set("Content-Type", "text/html")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Content-Security-Policy", "frame-ancestors 'none'")
	w.WriteHeader(status)
	_ = loginPage.Execute(w, data)
}

func handleAuthorizeGET(w http.ResponseWriter, r *http.Request, dir Directory, csrf *csrfStore) {
	q := r.URL.Query()

	clientID := q.Get("client_id")
	redirectURI := q.Get("redirect_uri")

	if !validateAuthClient(dir, clientID, redirectURI) {
		http.Error(w, "invalid client or redirect URI", http.StatusBadRequest)
		return
	}

	renderLoginPage(w, http.StatusOK, loginData{
		CSRFToken:   csrf.issue(clientID, redirectURI),
		ClientID:    clientID,
		RedirectURI: redirectURI,
	})
}

func handleAuthorizePOST(w http.ResponseWriter, r *http.Request, dir Directory, ledger *Ledger, csrf *csrfStore, limiter *loginRateLimiter, logger *slog.Logger) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)

	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form data", http.StatusBadRequest)
		return
	}

	clientID := r.FormValue("client_id")
	redirectURI := r.FormValue("redirect_uri")
	username := r.FormValue("username")
	password := r.FormValue("password")

	if !validateAuthClient(dir, clientID, redirectURI) {
		http.Error(w, "invalid client or redirect URI", http.StatusBadRequest)
		return
	}

	// Rate limiting by remote IP. Check before consuming CSRF so a
	// rate-limited request does not destroy the user's CSRF token.
	ip := remoteIP(r)
	if limiter.check(ip) {
		logger.Warn("login rate limited", slog.String("ip", ip))
		http.Error(w, "too many failed login attempts, try again later", http.StatusTooManyRequests)

		return
	}

	// A failed CSRF check may indicate a cross-site attack, so return a
	// plain error rather than redirecting to the client (which could be
	// the attacker's URI in a forged form).
	if !csrf.consume(r.FormValue("csrf_token"), clientID, redirectURI) {
		http.Error(w, "invalid or expired CSRF token", http.StatusForbidden)
		return
	}

	principal, found := dir.FindPrincipal(username)
	hash := principal.PasswordHash
	if !found {
		hash = dummyHash
	}

	if !VerifyPassword(hash, password) || !found || principal.Disabled {
		logger.Warn("login failed", slog.String("username", username))
		limiter.record(ip)

		renderLoginPage(w, http.StatusUnauthorized, loginData{
			CSRFToken:   csrf.issue(clientID, redirectURI),
			ClientID:    clientID,
			RedirectURI: redirectURI,
			Error:       "Invalid username or password",
		})

		return
	}

	code, err := ledger.Issue(username, clientID)
	if err != nil {
		logger.Error("issuing authorization code", slog.String("error", err.Error()))
		http.Error(w, "internal error", http.StatusInternalServerError)

		return
	}

	logger.Info("login successful",
		slog.String("username", username),
		slog.String("client_id", clientID),
	)

	// Build the redirect URL with proper encoding. Use "&" if the
	// redirect URI already contains a query component.
	params := url.Values{}
	params.Set("code", code)

	sep := "?"
	if strings.Contains(redirectURI, "?") {
		sep = "&"
	}

	http.Redirect(w, r, redirectURI+sep+params.Encode(), http.StatusFound)
}
