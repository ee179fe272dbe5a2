package connection

import "errors"

var (
	// ErrValidation indicates malformed caller input such as missing query parameters.
	ErrValidation = errors.New("connection: invalid request")
	// ErrInvalidSignature indicates the callback query string failed HMAC verification.
	ErrInvalidSignature = errors.New("connection: invalid signature")
	// ErrUnknownHandshake signals that no pending record matches the returned state.
	ErrUnknownHandshake = errors.New("connection: unknown handshake")
	// ErrAlreadyCompleted signals a replayed callback against a completed record.
	ErrAlreadyCompleted = errors.New("connection: already completed")
	// ErrNotFound signals that a record no longer exists or was superseded.
	ErrNotFound = errors.New("connection: not found")
	// ErrStorage wraps backing store failures and constraint violations.
	ErrStorage = errors.New("connection: storage failure")
	// ErrNetwork indicates the remote token endpoint was unreachable or timed out.
	ErrNetwork = errors.New("connection: network failure")
	// ErrInvalidResponse indicates a non-2xx status or an unparsable exchange body.
	ErrInvalidResponse = errors.New("connection: invalid exchange response")
	// ErrEmptyResponse indicates the exchange body carried no access token.
	ErrEmptyResponse = errors.New("connection: empty exchange response")
	// ErrConsentDelegate indicates a failed call to the identity provider admin API.
	ErrConsentDelegate = errors.New("connection: consent delegate failure")
)
