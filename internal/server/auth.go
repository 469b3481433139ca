package server

import "github.com/kisshan13/evstream/internal/sse"

// AuthDecision is the outcome of the caller-supplied token verifier.
type AuthDecision int

const (
	// AuthUnconfigured passes the request through without verification.
	AuthUnconfigured AuthDecision = iota
	// AuthRejected sends one error event and closes the stream.
	AuthRejected
	// AuthAccepted admits the connection.
	AuthAccepted
	// AuthAcceptedWithMessage admits the connection and sends the verdict's
	// message verbatim.
	AuthAcceptedWithMessage
)

// AuthResult is the verifier's verdict for one token.
type AuthResult struct {
	Decision AuthDecision
	Message  *sse.Message
}

// AuthVerifier checks the token extracted from the configured query
// parameter. A nil verifier means authentication is unconfigured.
type AuthVerifier func(token string) AuthResult

func Accept() AuthResult {
	return AuthResult{Decision: AuthAccepted}
}

func Reject() AuthResult {
	return AuthResult{Decision: AuthRejected}
}

func AcceptWithMessage(msg sse.Message) AuthResult {
	return AuthResult{Decision: AuthAcceptedWithMessage, Message: &msg}
}

// authenticate runs the verifier for a token. Authentication is a
// pass-through when no query parameter is configured or no verifier is set.
func (s *Server) authenticate(token string) AuthResult {
	if s.config.AuthQueryParam == "" || s.verifier == nil {
		return AuthResult{Decision: AuthUnconfigured}
	}
	return s.verifier(token)
}
