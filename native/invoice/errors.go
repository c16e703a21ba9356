package invoice

import "errors"

var (
	// ErrNilState marks an engine used before its state backend was wired.
	ErrNilState = errors.New("invoice engine: state not configured")
	// ErrNotFound is returned when no invoice exists at the address.
	ErrNotFound = errors.New("invoice engine: invoice not found")
	// ErrAlreadyInitialized rejects a second Init at the same address.
	ErrAlreadyInitialized = errors.New("invoice engine: already initialized")
	// ErrUnauthorized rejects a caller without authority for the operation.
	ErrUnauthorized = errors.New("invoice engine: unauthorized caller")
	// ErrLocked rejects operations suspended while a dispute is open.
	ErrLocked = errors.New("invoice engine: invoice locked")
	// ErrNotLocked rejects dispute settlement with no dispute open.
	ErrNotLocked = errors.New("invoice engine: invoice not locked")
	// ErrInvalidResolverType marks an unknown arbitration capability tag, or
	// a settlement path invoked against the wrong variant.
	ErrInvalidResolverType = errors.New("invoice engine: invalid resolver type")
	// ErrInvalidDAO rejects a non-zero fee split with a zero fee recipient.
	ErrInvalidDAO = errors.New("invoice engine: dao required when dao fee is set")
	// ErrInvalidWrappedNative rejects a zero wrapped-native token address.
	ErrInvalidWrappedNative = errors.New("invoice engine: invalid wrapped native token")
	// ErrMilestonesExhausted rejects a release past the end of the schedule.
	ErrMilestonesExhausted = errors.New("invoice engine: milestones exhausted")
	// ErrInsufficientBalance rejects a payout the held balance cannot cover.
	ErrInsufficientBalance = errors.New("invoice engine: insufficient held balance")
	// ErrNothingToDispute rejects a lock with no held balance left.
	ErrNothingToDispute = errors.New("invoice engine: nothing to dispute")
	// ErrAwardMismatch rejects a resolution that does not exactly exhaust the
	// held balance.
	ErrAwardMismatch = errors.New("invoice engine: awards must exhaust held balance")
	// ErrDisputeMismatch rejects a ruling for a stale or unknown dispute id.
	ErrDisputeMismatch = errors.New("invoice engine: dispute id mismatch")
	// ErrInvalidRuling marks a verdict outside the ruling table.
	ErrInvalidRuling = errors.New("invoice engine: invalid ruling")
	// ErrTerminationNotReached gates the safety valve before its deadline.
	ErrTerminationNotReached = errors.New("invoice engine: termination time not reached")
	// ErrDepositNotAllowed rejects third-party deposits on unverified invoices.
	ErrDepositNotAllowed = errors.New("invoice engine: deposit requires client or verification")
	// ErrTokenMismatch rejects a native deposit on an invoice not denominated
	// in the wrapped native token.
	ErrTokenMismatch = errors.New("invoice engine: invoice not denominated in wrapped native token")
	// ErrRedirectUnsupported rejects authority or receiver updates on
	// templates without the redirect capability.
	ErrRedirectUnsupported = errors.New("invoice engine: template does not support updates")
)
