package captcha

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedRecognizer returns one pre-built result set per call.
type scriptedRecognizer struct {
	results [][]Recognition
	calls   int
}

func (r *scriptedRecognizer) Recognize(context.Context, string) ([]Recognition, error) {
	i := r.calls
	r.calls++
	if i < len(r.results) {
		return r.results[i], nil
	}
	return nil, nil
}

func imageServer(t *testing.T, wantCookie string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if wantCookie != "" {
			assert.Equal(t, wantCookie, r.Header.Get("Cookie"))
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png-bytes"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testSolver(t *testing.T, cfg Config, rec Recognizer) *Solver {
	t.Helper()
	if cfg.TmpDir == "" {
		cfg.TmpDir = t.TempDir()
	}
	n := 0
	return NewSolver(cfg, rec, func() string {
		n++
		return "img" + strconv.Itoa(n)
	}, nil)
}

func TestSolveTextMode(t *testing.T) {
	srv := imageServer(t, "JSESSION=tok; JUDGEMENTSSEARCH_SESSID=sid")
	rec := &scriptedRecognizer{results: [][]Recognition{
		{{Text: "x7 k2m q!", Confidence: 0.9}},
	}}
	s := testSolver(t, Config{MaxAttempts: 10, AnswerLength: 6}, rec)

	answer, err := s.Solve(context.Background(), srv.URL, "JSESSION=tok; JUDGEMENTSSEARCH_SESSID=sid")
	require.NoError(t, err)
	assert.Equal(t, "x7k2mq", answer)
}

func TestSolveRetriesWrongLengthReads(t *testing.T) {
	srv := imageServer(t, "")
	rec := &scriptedRecognizer{results: [][]Recognition{
		{{Text: "abc", Confidence: 0.9}},
		{{Text: "toolong99", Confidence: 0.9}},
		{{Text: "q2w3e4", Confidence: 0.9}},
	}}
	s := testSolver(t, Config{MaxAttempts: 10, AnswerLength: 6}, rec)

	answer, err := s.Solve(context.Background(), srv.URL, "")
	require.NoError(t, err)
	assert.Equal(t, "q2w3e4", answer)
	assert.Equal(t, 3, rec.calls)
}

func TestSolveTakesTopRankedRead(t *testing.T) {
	srv := imageServer(t, "")
	// Ranked best-first by the service; a trailing read with higher raw
	// confidence must not win over the top-ranked one.
	rec := &scriptedRecognizer{results: [][]Recognition{
		{
			{Box: []int{2, 4, 118, 38}, Text: "a1b2c3", Confidence: 0.61},
			{Box: []int{5, 6, 90, 30}, Text: "zzzzzz", Confidence: 0.88},
		},
	}}
	s := testSolver(t, Config{MaxAttempts: 10, AnswerLength: 6}, rec)

	answer, err := s.Solve(context.Background(), srv.URL, "")
	require.NoError(t, err)
	assert.Equal(t, "a1b2c3", answer)
}

func TestSolveSkipsEmptyReads(t *testing.T) {
	srv := imageServer(t, "")
	rec := &scriptedRecognizer{results: [][]Recognition{
		{
			{Text: "", Confidence: 0.99},
			{Text: "q2w3e4", Confidence: 0.5},
		},
	}}
	s := testSolver(t, Config{MaxAttempts: 10, AnswerLength: 6}, rec)

	answer, err := s.Solve(context.Background(), srv.URL, "")
	require.NoError(t, err)
	assert.Equal(t, "q2w3e4", answer)
}

func TestSolveStopsAtAttemptCeiling(t *testing.T) {
	srv := imageServer(t, "")
	rec := &scriptedRecognizer{} // never yields text
	s := testSolver(t, Config{MaxAttempts: 10, AnswerLength: 6}, rec)

	_, err := s.Solve(context.Background(), srv.URL, "")
	require.ErrorIs(t, err, ErrUnsolved)
	assert.Equal(t, 10, rec.calls)
}

func TestSolveMathMode(t *testing.T) {
	srv := imageServer(t, "")
	rec := &scriptedRecognizer{results: [][]Recognition{
		{{Text: "7×3", Confidence: 0.9}},
	}}
	s := testSolver(t, Config{MathMode: true, MaxAttempts: 10}, rec)

	answer, err := s.Solve(context.Background(), srv.URL, "")
	require.NoError(t, err)
	assert.Equal(t, "21", answer)
}

func TestSolveMathModeQuarantinesUnreadableImages(t *testing.T) {
	srv := imageServer(t, "")
	failures := t.TempDir()
	rec := &scriptedRecognizer{results: [][]Recognition{
		{{Text: "scribble", Confidence: 0.4}},
		{{Text: "8-3", Confidence: 0.9}},
	}}
	s := testSolver(t, Config{MathMode: true, MaxAttempts: 10, FailuresDir: failures}, rec)

	answer, err := s.Solve(context.Background(), srv.URL, "")
	require.NoError(t, err)
	assert.Equal(t, "5", answer)

	kept, err := os.ReadDir(failures)
	require.NoError(t, err)
	require.Len(t, kept, 1)
	assert.Equal(t, "captcha_img1.png", kept[0].Name())
}

func TestSolveCleansUpTempImages(t *testing.T) {
	srv := imageServer(t, "")
	tmp := t.TempDir()
	rec := &scriptedRecognizer{results: [][]Recognition{
		{{Text: "a1b2c3", Confidence: 0.9}},
	}}
	s := testSolver(t, Config{MaxAttempts: 10, AnswerLength: 6, TmpDir: tmp}, rec)

	_, err := s.Solve(context.Background(), srv.URL, "")
	require.NoError(t, err)

	left, err := os.ReadDir(tmp)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestHTTPRecognizerDecodesResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		_, header, err := r.FormFile("image")
		require.NoError(t, err)
		assert.NotEmpty(t, header.Filename)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[{"box":[2,4,118,38],"text":"a1b2c3","confidence":0.93}]}`))
	}))
	defer srv.Close()

	img := filepath.Join(t.TempDir(), "captcha_x.png")
	require.NoError(t, os.WriteFile(img, []byte("png-bytes"), 0o600))

	rec := NewHTTPRecognizer(srv.URL, 0)
	results, err := rec.Recognize(context.Background(), img)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a1b2c3", results[0].Text)
	assert.Equal(t, []int{2, 4, 118, 38}, results[0].Box)
	assert.InDelta(t, 0.93, results[0].Confidence, 1e-9)
}
