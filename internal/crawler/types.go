package crawler

import (
	"fmt"
	"time"
)

// DateLayout is the wire format for every date exchanged with the portal
// and persisted in the progress file.
const DateLayout = "2006-01-02"

// CourtTask identifies one unit of crawl work: a single court and a
// contiguous date range. Immutable once created.
type CourtTask struct {
	ID        string
	CourtCode string
	FromDate  time.Time
	ToDate    time.Time
}

// String renders the task for log output.
func (t CourtTask) String() string {
	return fmt.Sprintf("task %s court=%s %s..%s",
		t.ID, t.CourtCode, t.FromDate.Format(DateLayout), t.ToDate.Format(DateLayout))
}

// CourtProgress is the persisted crawl progress for one court. LastDate is
// monotonically non-decreasing; FailedDates accumulates range start dates
// whose processing raised an unrecovered error and is never pruned
// automatically.
type CourtProgress struct {
	LastDate    string   `json:"last_date,omitempty"`
	FailedDates []string `json:"failed_dates,omitempty"`
}

// ResultRow is one raw listing entry returned by the search endpoint:
// a serial field and an HTML snippet carrying the document action.
type ResultRow struct {
	Serial string
	HTML   string
}

// Descriptor is the sidecar record persisted next to each document. The
// Downloaded flag is the source of truth for deduplication.
type Descriptor struct {
	CourtCode  string `json:"court_code"`
	CourtName  string `json:"court_name"`
	RawHTML    string `json:"raw_html"`
	PDFLink    string `json:"pdf_link"`
	Downloaded bool   `json:"downloaded"`
}

// SearchQuery carries the pagination cursor and filters for one listing
// request. Echo is the protocol's request counter; Start/Length form the
// paging window.
type SearchQuery struct {
	CourtCode string
	FromDate  time.Time
	ToDate    time.Time
	Echo      int
	Start     int
	Length    int
}

// CaptchaChallenge is the portal's embedded challenge page returned in
// place of a download link.
type CaptchaChallenge struct {
	PageHTML string
	AppToken string
}

// Resolution is the outcome of a document link-resolution request.
// Exactly one of Link or Challenge is meaningful; NotSolved reports that a
// submitted captcha answer was rejected.
type Resolution struct {
	Link      string
	Challenge *CaptchaChallenge
	NotSolved bool
}
