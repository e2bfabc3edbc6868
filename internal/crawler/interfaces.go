package crawler

import (
	"context"
	"time"
)

// Portal is the authorized request surface of one crawl session. One
// instance is owned by exactly one task; implementations keep the session
// cookie and app token current across calls.
type Portal interface {
	// Establish performs the unauthenticated handshake that yields the
	// initial session cookie and portal token.
	Establish(ctx context.Context) error
	// Rotate discards the current session identity and establishes a
	// fresh one, used for rate-limit evasion.
	Rotate(ctx context.Context) error
	// Search posts one listing request and returns the page's rows.
	// Session expiry and application errors are refreshed and retried
	// internally; an empty slice means the date range is exhausted.
	Search(ctx context.Context, q SearchQuery) ([]ResultRow, error)
	// ResolveLink asks the portal for a document's download link.
	ResolveLink(ctx context.Context, ref string, rowIndex int) (Resolution, error)
	// SubmitLinkCaptcha resubmits a link resolution with a solved
	// captcha answer and the token issued alongside the challenge.
	SubmitLinkCaptcha(ctx context.Context, ref string, rowIndex int, answer, appToken string) (Resolution, error)
	// DownloadDocument fetches the bytes behind a resolved link.
	DownloadDocument(ctx context.Context, link string) ([]byte, error)
	// CookieHeader exposes the session cookies for collaborator requests
	// made outside the portal client (captcha image downloads).
	CookieHeader() string
}

// CaptchaSolver turns a challenge image URL into answer text.
type CaptchaSolver interface {
	Solve(ctx context.Context, imageURL, cookieHeader string) (string, error)
}

// ProgressTracker persists per-court crawl progress.
type ProgressTracker interface {
	Get(court string) (CourtProgress, error)
	Checkpoint(court string, p CourtProgress) error
}

// DocumentStore persists document bytes and sidecar descriptors keyed by
// the portal's document reference path.
type DocumentStore interface {
	Downloaded(ref string) bool
	PutDocument(ref string, data []byte) (string, error)
	ReadDescriptor(ref string) (Descriptor, bool, error)
	WriteDescriptor(ref string, d Descriptor) (string, error)
}

// RowProcessor handles one listing row and reports whether it produced a
// fresh download.
type RowProcessor interface {
	ProcessRow(ctx context.Context, task CourtTask, row ResultRow, pos int) (bool, error)
}

// DocumentFetcher resolves a document reference and streams the bytes to
// storage. A false return with nil error is a soft failure (row recorded
// as not downloaded).
type DocumentFetcher interface {
	Download(ctx context.Context, courtCode, ref string, rowIndex int) (bool, error)
}

// TaskRunner executes one court/date-range unit of work.
type TaskRunner interface {
	Run(ctx context.Context, task CourtTask) error
}

// CourtNamer resolves a court code to its display name.
type CourtNamer interface {
	Name(code string) (string, bool)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces task IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
