// Package captcha solves the portal's image captchas by fetching the
// challenge image with the caller's session cookies and running it
// through an OCR recognizer, with bounded retries.
package captcha
