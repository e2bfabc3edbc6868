// Package portal implements the judgment portal's rotating session
// protocol: the unauthenticated handshake, captcha-gated token refresh,
// opportunistic credential adoption, and classified request dispatch.
package portal
