package portal

import (
	"encoding/json"
	"strings"

	"github.com/opencourtdata/judgment-crawler/internal/crawler"
)

// outcomeKind tags the classified shape of a portal response.
type outcomeKind int

const (
	outcomeOK outcomeKind = iota
	outcomeSessionExpired
	outcomeAppError
	outcomeCaptchaChallenge
)

// envelope is the classified form of a portal API response. Exactly one
// classification is produced per response, replacing the portal's ad hoc
// key probing with a single dispatch point.
type envelope struct {
	outcome    outcomeKind
	AppToken   string
	OutputFile string
	Filename   string
	Message    string
	ErrorMsg   string
	Rows       []crawler.ResultRow
}

// apiResponse mirrors the portal's JSON response surface. Endpoints share
// one envelope; which fields are populated depends on the call.
type apiResponse struct {
	AppToken      string `json:"app_token"`
	OutputFile    string `json:"outputfile"`
	Filename      string `json:"filename"`
	Message       string `json:"message"`
	ErrorMsg      string `json:"errormsg"`
	SessionExpire string `json:"session_expire"`
	ReportRow     *struct {
		AaData [][]json.RawMessage `json:"aaData"`
	} `json:"reportrow"`
}

// classify decodes and tags a response body. Non-JSON bodies classify as
// OK with no rows, which ends the current date range exactly like an
// empty listing.
func classify(body []byte) envelope {
	var r apiResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return envelope{outcome: outcomeOK}
	}

	env := envelope{
		AppToken:   r.AppToken,
		OutputFile: r.OutputFile,
		Filename:   r.Filename,
		Message:    r.Message,
		ErrorMsg:   r.ErrorMsg,
	}
	switch {
	case strings.Contains(r.Filename, "securimage_show"):
		env.outcome = outcomeCaptchaChallenge
	case r.SessionExpire == "Y":
		env.outcome = outcomeSessionExpired
	case r.ErrorMsg != "":
		env.outcome = outcomeAppError
	default:
		env.outcome = outcomeOK
	}

	if r.ReportRow != nil {
		for _, raw := range r.ReportRow.AaData {
			if len(raw) < 2 {
				continue
			}
			env.Rows = append(env.Rows, crawler.ResultRow{
				Serial: rawToString(raw[0]),
				HTML:   rawToString(raw[1]),
			})
		}
	}
	return env
}

// rawToString renders a JSON scalar as text whether the portal sent a
// string or a number.
func rawToString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}
