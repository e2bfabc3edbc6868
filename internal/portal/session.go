package portal

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/opencourtdata/judgment-crawler/internal/crawler"
)

const (
	sessionCookieName = "JUDGEMENTSSEARCH_SESSID"
	portalTokenCookie = "JSESSION"

	handshakePath   = "/pdfsearch/"
	searchPath      = "/pdfsearch/?p=pdf_search/home/"
	tokenCheckPath  = "/pdfsearch/?p=pdf_search/checkCaptcha"
	linkCaptchaPath = "/pdfsearch/?p=pdf_search/openpdfcaptcha"
	linkDirectPath  = "/pdfsearch/?p=pdf_search/openpdf"
	captchaImage    = "/pdfsearch/vendor/securimage/securimage_show.php"

	notSolvedMessage = "Captcha not solved"
)

// ErrNoPortalToken means the handshake set no portal token cookie, which
// the portal only does when it has blocked the caller's address. There is
// no point retrying from the same host.
var ErrNoPortalToken = errors.New("handshake returned no portal token, address likely blocked")

// ErrAuthExhausted means a request kept failing with recoverable auth
// errors after the configured number of refresh-and-retry rounds.
var ErrAuthExhausted = errors.New("authorized request retries exhausted")

// Config carries the portal client settings.
type Config struct {
	BaseURL         string
	UserAgent       string
	SearchTimeout   time.Duration
	RequestTimeout  time.Duration
	DownloadTimeout time.Duration
	AuthRetries     int
}

// Session is one crawl task's identity against the portal: the session
// cookie pair from the handshake plus the rotating app token. It
// implements crawler.Portal. Methods are safe for the single-goroutine
// use each task gives them; CookieHeader alone may be called concurrently
// by the captcha solver, so credential state is mutex guarded.
type Session struct {
	cfg    Config
	solver crawler.CaptchaSolver
	client *http.Client
	logger *zap.Logger

	mu          sync.Mutex
	sessionID   string
	portalToken string
	appToken    string
}

// NewSession constructs a Session. No network traffic happens until
// Establish is called.
func NewSession(cfg Config, solver crawler.CaptchaSolver, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		cfg:    cfg,
		solver: solver,
		client: &http.Client{
			Transport: &http.Transport{
				// The portal's certificate chain does not verify.
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
			},
		},
		logger: logger,
	}
}

// Establish performs the unauthenticated handshake and captures the
// session cookie pair. A handshake that yields no portal token is fatal.
func (s *Session) Establish(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.BaseURL+handshakePath, nil)
	if err != nil {
		return fmt.Errorf("build handshake request: %w", err)
	}
	req.Header.Set("User-Agent", s.cfg.UserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("handshake: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	var sessionID, portalToken string
	for _, c := range resp.Cookies() {
		switch c.Name {
		case sessionCookieName:
			sessionID = c.Value
		case portalTokenCookie:
			portalToken = c.Value
		}
	}
	if portalToken == "" {
		return ErrNoPortalToken
	}

	s.mu.Lock()
	s.sessionID = sessionID
	s.portalToken = portalToken
	s.mu.Unlock()

	s.logger.Debug("session established")
	return nil
}

// Rotate replaces the session identity with a fresh handshake. The app
// token is kept; the next authorized request revalidates it.
func (s *Session) Rotate(ctx context.Context) error {
	if err := s.Establish(ctx); err != nil {
		return fmt.Errorf("rotate session: %w", err)
	}
	crawler.TotalSessionRotations.Inc()
	s.logger.Info("session rotated")
	return nil
}

// Refresh solves the portal's session captcha to obtain a fresh app
// token. withToken controls whether the stale token accompanies the
// check, which the portal requires on some expiry paths.
func (s *Session) Refresh(ctx context.Context, withToken bool) error {
	answer, err := s.solver.Solve(ctx, s.cfg.BaseURL+captchaImage, s.CookieHeader())
	if err != nil {
		return fmt.Errorf("solve session captcha: %w", err)
	}

	form := url.Values{
		"captcha":    {answer},
		"search_opt": {"PHRASE"},
		"ajax_req":   {"true"},
	}
	if withToken {
		form.Set("app_token", s.token())
	}

	env, err := s.post(ctx, s.cfg.BaseURL+tokenCheckPath, form, s.cfg.RequestTimeout)
	if err != nil {
		return fmt.Errorf("check captcha: %w", err)
	}
	if env.AppToken == "" {
		return fmt.Errorf("token refresh returned no app token")
	}

	crawler.TotalSessionRefreshes.Inc()
	s.logger.Debug("app token refreshed")
	return nil
}

// Search posts one listing request and returns the page's rows.
func (s *Session) Search(ctx context.Context, q crawler.SearchQuery) ([]crawler.ResultRow, error) {
	env, err := s.do(ctx, s.cfg.BaseURL+searchPath, searchForm(q), s.cfg.SearchTimeout)
	if err != nil {
		return nil, err
	}
	if env.outcome == outcomeCaptchaChallenge {
		return nil, fmt.Errorf("unexpected captcha challenge on listing request")
	}
	return env.Rows, nil
}

// ResolveLink asks for a document's download link. The portal may answer
// with the link, or with an inline captcha challenge page.
func (s *Session) ResolveLink(ctx context.Context, ref string, rowIndex int) (crawler.Resolution, error) {
	env, err := s.do(ctx, s.cfg.BaseURL+linkCaptchaPath, linkForm(ref, rowIndex), s.cfg.RequestTimeout)
	if err != nil {
		return crawler.Resolution{}, err
	}
	return resolutionFromEnvelope(env), nil
}

// SubmitLinkCaptcha resubmits a link resolution with a solved answer.
// The answer goes to the direct openpdf endpoint; the captcha-gated
// endpoint would answer with another challenge. The token issued
// alongside the challenge is adopted as the session's current app token
// before dispatch.
func (s *Session) SubmitLinkCaptcha(ctx context.Context, ref string, rowIndex int, answer, appToken string) (crawler.Resolution, error) {
	if appToken != "" {
		s.setToken(appToken)
	}
	form := linkForm(ref, rowIndex)
	form.Set("captcha1", answer)

	env, err := s.do(ctx, s.cfg.BaseURL+linkDirectPath, form, s.cfg.RequestTimeout)
	if err != nil {
		return crawler.Resolution{}, err
	}
	return resolutionFromEnvelope(env), nil
}

// DownloadDocument fetches the bytes behind a resolved link.
func (s *Session) DownloadDocument(ctx context.Context, link string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.DownloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.BaseURL+"/"+strings.TrimLeft(link, "/"), nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	s.setHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download: unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// CookieHeader renders the current session cookie pair for requests made
// outside this client.
func (s *Session) CookieHeader() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("%s=%s; %s=%s", portalTokenCookie, s.portalToken, sessionCookieName, s.sessionID)
}

// do dispatches one authorized request. Recoverable failures (expired
// session, application error, transport error) trigger a token refresh
// and a retry with backoff, up to cfg.AuthRetries rounds.
func (s *Session) do(ctx context.Context, rawURL string, form url.Values, timeout time.Duration) (envelope, error) {
	for attempt := 0; ; attempt++ {
		form.Set("app_token", s.token())

		env, err := s.post(ctx, rawURL, form, timeout)
		if err == nil && (env.outcome == outcomeOK || env.outcome == outcomeCaptchaChallenge) {
			return env, nil
		}

		if attempt >= s.cfg.AuthRetries {
			if err != nil {
				return envelope{}, fmt.Errorf("%w: %v", ErrAuthExhausted, err)
			}
			return envelope{}, fmt.Errorf("%w: %s", ErrAuthExhausted, env.ErrorMsg)
		}

		if err != nil {
			s.logger.Warn("portal request failed, retrying",
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
		} else {
			s.logger.Warn("portal rejected request, refreshing token",
				zap.Int("attempt", attempt+1),
				zap.String("errormsg", env.ErrorMsg),
				zap.Bool("session_expired", env.outcome == outcomeSessionExpired),
			)
		}

		if err := sleep(ctx, backoff(attempt)); err != nil {
			return envelope{}, err
		}
		if err := s.Refresh(ctx, false); err != nil {
			return envelope{}, fmt.Errorf("refresh during retry: %w", err)
		}
	}
}

// post sends one form POST and classifies the response. Any app token or
// session cookie the portal issues is adopted opportunistically.
func (s *Session) post(ctx context.Context, rawURL string, form url.Values, timeout time.Duration) (envelope, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return envelope{}, fmt.Errorf("build request: %w", err)
	}
	s.setHeaders(req)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")

	resp, err := s.client.Do(req)
	if err != nil {
		return envelope{}, fmt.Errorf("post %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return envelope{}, fmt.Errorf("read response: %w", err)
	}

	env := classify(body)
	s.adopt(resp, env)
	return env, nil
}

// adopt updates credential state from whatever the portal handed back.
func (s *Session) adopt(resp *http.Response, env envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if env.AppToken != "" {
		s.appToken = env.AppToken
	}
	for _, c := range resp.Cookies() {
		switch c.Name {
		case sessionCookieName:
			s.sessionID = c.Value
		case portalTokenCookie:
			s.portalToken = c.Value
		}
	}
}

func (s *Session) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json, text/javascript, */*; q=0.01")
	req.Header.Set("User-Agent", s.cfg.UserAgent)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Origin", s.cfg.BaseURL)
	req.Header.Set("Referer", s.cfg.BaseURL+handshakePath)
	req.Header.Set("Cookie", s.CookieHeader())
}

func (s *Session) token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appToken
}

func (s *Session) setToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appToken = token
}

// resolutionFromEnvelope maps a classified link-resolution response onto
// the caller-facing Resolution.
func resolutionFromEnvelope(env envelope) crawler.Resolution {
	if env.outcome == outcomeCaptchaChallenge {
		return crawler.Resolution{
			Challenge: &crawler.CaptchaChallenge{
				PageHTML: env.Filename,
				AppToken: env.AppToken,
			},
		}
	}
	if strings.Contains(env.Message, notSolvedMessage) {
		return crawler.Resolution{NotSolved: true}
	}
	return crawler.Resolution{Link: env.OutputFile}
}
