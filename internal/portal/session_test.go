package portal

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencourtdata/judgment-crawler/internal/crawler"
)

// stubSolver answers every captcha with a fixed string.
type stubSolver struct {
	answer string
	calls  int
	mu     sync.Mutex
}

func (s *stubSolver) Solve(context.Context, string, string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.answer, nil
}

// portalStub emulates the judgment portal's endpoints for tests.
type portalStub struct {
	t *testing.T

	mu           sync.Mutex
	handshakes   int
	tokenChecks  int
	searches     []map[string]string
	searchBodies []string
	linkForms    []map[string]string
	linkBodies   []string
	openForms    []map[string]string
	openBodies   []string
	withSession  bool
}

func newPortalStub(t *testing.T) *portalStub {
	return &portalStub{t: t, withSession: true}
}

func (p *portalStub) queueSearchResponse(body string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.searchBodies = append(p.searchBodies, body)
}

func (p *portalStub) queueLinkResponse(body string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.linkBodies = append(p.linkBodies, body)
}

func (p *portalStub) queueOpenResponse(body string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.openBodies = append(p.openBodies, body)
}

func formMap(t *testing.T, r *http.Request) map[string]string {
	t.Helper()
	require.NoError(t, r.ParseForm())
	form := make(map[string]string, len(r.PostForm))
	for k := range r.PostForm {
		form[k] = r.PostForm.Get(k)
	}
	return form
}

func (p *portalStub) server() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/pdfsearch/vendor/securimage/securimage_show.php", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("png"))
	})
	mux.HandleFunc("/pdfsearch/", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("p") {
		case "":
			p.mu.Lock()
			p.handshakes++
			session := p.withSession
			p.mu.Unlock()
			http.SetCookie(w, &http.Cookie{Name: "JUDGEMENTSSEARCH_SESSID", Value: "sid-1"})
			if session {
				http.SetCookie(w, &http.Cookie{Name: "JSESSION", Value: "jtok-1"})
			}
			_, _ = w.Write([]byte("<html>search page</html>"))
		case "pdf_search/checkCaptcha":
			p.mu.Lock()
			p.tokenChecks++
			n := p.tokenChecks
			p.mu.Unlock()
			fmt.Fprintf(w, `{"app_token":"refreshed-%d"}`, n)
		case "pdf_search/home/":
			form := formMap(p.t, r)
			p.mu.Lock()
			p.searches = append(p.searches, form)
			body := `{"reportrow":{"aaData":[]}}`
			if len(p.searchBodies) > 0 {
				body = p.searchBodies[0]
				p.searchBodies = p.searchBodies[1:]
			}
			p.mu.Unlock()
			_, _ = w.Write([]byte(body))
		case "pdf_search/openpdfcaptcha":
			form := formMap(p.t, r)
			p.mu.Lock()
			p.linkForms = append(p.linkForms, form)
			body := `{"outputfile":""}`
			if len(p.linkBodies) > 0 {
				body = p.linkBodies[0]
				p.linkBodies = p.linkBodies[1:]
			}
			p.mu.Unlock()
			_, _ = w.Write([]byte(body))
		case "pdf_search/openpdf":
			form := formMap(p.t, r)
			p.mu.Lock()
			p.openForms = append(p.openForms, form)
			body := `{"outputfile":""}`
			if len(p.openBodies) > 0 {
				body = p.openBodies[0]
				p.openBodies = p.openBodies[1:]
			}
			p.mu.Unlock()
			_, _ = w.Write([]byte(body))
		default:
			http.NotFound(w, r)
		}
	})
	srv := httptest.NewServer(mux)
	p.t.Cleanup(srv.Close)
	return srv
}

func testConfig(baseURL string) Config {
	return Config{
		BaseURL:         baseURL,
		UserAgent:       "test-agent",
		SearchTimeout:   5 * time.Second,
		RequestTimeout:  5 * time.Second,
		DownloadTimeout: 5 * time.Second,
		AuthRetries:     1,
	}
}

func TestEstablishCapturesSessionCookies(t *testing.T) {
	stub := newPortalStub(t)
	srv := stub.server()
	s := NewSession(testConfig(srv.URL), &stubSolver{}, nil)

	require.NoError(t, s.Establish(context.Background()))
	assert.Equal(t, "JSESSION=jtok-1; JUDGEMENTSSEARCH_SESSID=sid-1", s.CookieHeader())
}

func TestEstablishWithoutPortalTokenIsFatal(t *testing.T) {
	stub := newPortalStub(t)
	stub.withSession = false
	srv := stub.server()
	s := NewSession(testConfig(srv.URL), &stubSolver{}, nil)

	err := s.Establish(context.Background())
	require.ErrorIs(t, err, ErrNoPortalToken)
}

func TestRotatePerformsFreshHandshake(t *testing.T) {
	stub := newPortalStub(t)
	srv := stub.server()
	s := NewSession(testConfig(srv.URL), &stubSolver{}, nil)

	require.NoError(t, s.Establish(context.Background()))
	require.NoError(t, s.Rotate(context.Background()))
	assert.Equal(t, 2, stub.handshakes)
}

func TestSearchSendsCursorAndDecodesRows(t *testing.T) {
	stub := newPortalStub(t)
	stub.queueSearchResponse(`{"app_token":"tok-2","reportrow":{"aaData":[["1","<td>row one</td>"],["2","<td>row two</td>"]]}}`)
	srv := stub.server()
	s := NewSession(testConfig(srv.URL), &stubSolver{}, nil)
	require.NoError(t, s.Establish(context.Background()))

	rows, err := s.Search(context.Background(), crawler.SearchQuery{
		CourtCode: "27~1",
		FromDate:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		ToDate:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Echo:      3,
		Start:     10000,
		Length:    5000,
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "1", rows[0].Serial)
	assert.Equal(t, "<td>row one</td>", rows[0].HTML)

	require.Len(t, stub.searches, 1)
	form := stub.searches[0]
	assert.Equal(t, "3", form["sEcho"])
	assert.Equal(t, "10000", form["iDisplayStart"])
	assert.Equal(t, "5000", form["iDisplayLength"])
	assert.Equal(t, "27~1", form["state_code"])
	assert.Equal(t, "2024-01-01", form["from_date"])
	assert.Equal(t, "2024-01-01", form["to_date"])
	assert.Equal(t, "true", form["ajax_req"])
}

func TestSearchAdoptsIssuedAppToken(t *testing.T) {
	stub := newPortalStub(t)
	stub.queueSearchResponse(`{"app_token":"tok-next","reportrow":{"aaData":[["1","<td>r</td>"]]}}`)
	stub.queueSearchResponse(`{"reportrow":{"aaData":[]}}`)
	srv := stub.server()
	s := NewSession(testConfig(srv.URL), &stubSolver{}, nil)
	require.NoError(t, s.Establish(context.Background()))

	_, err := s.Search(context.Background(), crawler.SearchQuery{Echo: 1, Length: 5000})
	require.NoError(t, err)
	_, err = s.Search(context.Background(), crawler.SearchQuery{Echo: 2, Length: 5000})
	require.NoError(t, err)

	require.Len(t, stub.searches, 2)
	assert.Equal(t, "tok-next", stub.searches[1]["app_token"])
}

func TestSearchRefreshesTokenOnSessionExpiry(t *testing.T) {
	stub := newPortalStub(t)
	stub.queueSearchResponse(`{"session_expire":"Y"}`)
	stub.queueSearchResponse(`{"reportrow":{"aaData":[["1","<td>r</td>"]]}}`)
	srv := stub.server()
	solver := &stubSolver{answer: "q2w3e4"}
	s := NewSession(testConfig(srv.URL), solver, nil)
	require.NoError(t, s.Establish(context.Background()))

	rows, err := s.Search(context.Background(), crawler.SearchQuery{Echo: 1, Length: 5000})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	assert.Equal(t, 1, solver.calls)
	assert.Equal(t, 1, stub.tokenChecks)
	require.Len(t, stub.searches, 2)
	// The retried request carries the refreshed token.
	assert.Equal(t, "refreshed-1", stub.searches[1]["app_token"])
}

func TestSearchGivesUpAfterAuthRetries(t *testing.T) {
	stub := newPortalStub(t)
	stub.queueSearchResponse(`{"errormsg":"invalid token"}`)
	stub.queueSearchResponse(`{"errormsg":"invalid token"}`)
	srv := stub.server()
	s := NewSession(testConfig(srv.URL), &stubSolver{answer: "q2w3e4"}, nil)
	require.NoError(t, s.Establish(context.Background()))

	_, err := s.Search(context.Background(), crawler.SearchQuery{Echo: 1, Length: 5000})
	require.ErrorIs(t, err, ErrAuthExhausted)
	assert.Len(t, stub.searches, 2)
}

func TestClassifyOutcomes(t *testing.T) {
	cases := []struct {
		name string
		body string
		want outcomeKind
	}{
		{"ok", `{"outputfile":"x.pdf"}`, outcomeOK},
		{"expired", `{"session_expire":"Y"}`, outcomeSessionExpired},
		{"app error", `{"errormsg":"something broke"}`, outcomeAppError},
		{"challenge", `{"filename":"<img src=\"securimage_show.php\"/>"}`, outcomeCaptchaChallenge},
		{"challenge wins over error", `{"errormsg":"x","filename":"securimage_show.php"}`, outcomeCaptchaChallenge},
		{"non-json", `<html>maintenance</html>`, outcomeOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, classify([]byte(tc.body)).outcome)
		})
	}
}

func TestSubmitLinkCaptchaUsesDirectEndpoint(t *testing.T) {
	stub := newPortalStub(t)
	stub.queueLinkResponse(`{"app_token":"tok-9","filename":"<img id=\"captcha_image_pdf\" src=\"securimage_show.php\"/>"}`)
	stub.queueOpenResponse(`{"outputfile":"cnrorders/taphc/orders/2024/doc.pdf"}`)
	srv := stub.server()
	s := NewSession(testConfig(srv.URL), &stubSolver{}, nil)
	require.NoError(t, s.Establish(context.Background()))

	ref := "cnrorders/taphc/orders/2024/doc.pdf"
	res, err := s.ResolveLink(context.Background(), ref, 3)
	require.NoError(t, err)
	require.NotNil(t, res.Challenge)

	res, err = s.SubmitLinkCaptcha(context.Background(), ref, 3, "q2w3e4", "tok-9")
	require.NoError(t, err)
	assert.Equal(t, ref, res.Link)

	// The bare resolution goes to the captcha-gated endpoint, the solved
	// answer to the direct one; answering on the gated endpoint would
	// only yield another challenge.
	require.Len(t, stub.linkForms, 1)
	assert.NotContains(t, stub.linkForms[0], "captcha1")
	require.Len(t, stub.openForms, 1)
	answer := stub.openForms[0]
	assert.Equal(t, "q2w3e4", answer["captcha1"])
	assert.Equal(t, ref, answer["path"])
	assert.Equal(t, "3", answer["val"])
	assert.Equal(t, "tok-9", answer["app_token"])
}

func TestResolutionFromEnvelope(t *testing.T) {
	challenge := resolutionFromEnvelope(classify([]byte(
		`{"app_token":"tok-9","filename":"<img id=\"captcha_image_pdf\" src=\"securimage_show.php\"/>"}`,
	)))
	require.NotNil(t, challenge.Challenge)
	assert.Equal(t, "tok-9", challenge.Challenge.AppToken)
	assert.Contains(t, challenge.Challenge.PageHTML, "captcha_image_pdf")

	notSolved := resolutionFromEnvelope(classify([]byte(`{"message":"Captcha not solved"}`)))
	assert.True(t, notSolved.NotSolved)
	assert.Nil(t, notSolved.Challenge)

	resolved := resolutionFromEnvelope(classify([]byte(`{"outputfile":"cnrorders/taphc/orders/2024/doc.pdf"}`)))
	assert.Equal(t, "cnrorders/taphc/orders/2024/doc.pdf", resolved.Link)
}

func TestDownloadDocumentSendsSessionCookies(t *testing.T) {
	var gotCookie string
	mux := http.NewServeMux()
	mux.HandleFunc("/pdfsearch/", func(w http.ResponseWriter, _ *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "JUDGEMENTSSEARCH_SESSID", Value: "sid-1"})
		http.SetCookie(w, &http.Cookie{Name: "JSESSION", Value: "jtok-1"})
	})
	mux.HandleFunc("/cnrorders/taphc/orders/2024/doc.pdf", func(w http.ResponseWriter, r *http.Request) {
		gotCookie = r.Header.Get("Cookie")
		_, _ = w.Write([]byte("%PDF-1.4"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s := NewSession(testConfig(srv.URL), &stubSolver{}, nil)
	require.NoError(t, s.Establish(context.Background()))

	data, err := s.DownloadDocument(context.Background(), "cnrorders/taphc/orders/2024/doc.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.4"), data)
	assert.Equal(t, "JSESSION=jtok-1; JUDGEMENTSSEARCH_SESSID=sid-1", gotCookie)
}
