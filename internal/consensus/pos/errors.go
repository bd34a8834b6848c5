package pos

import "errors"

// DoS score bands. The exact score assigned to each error is part of the
// consensus contract: independent implementations must agree so that peer
// banning stays consistent network-wide.
const (
	DoSFatal     = 100 // peer-malicious; block rejected, peer penalized
	DoSSoft      = 1   // possibly-sync; block rejected, peer not penalized
	DoSTransient = 0   // local I/O; not a consensus verdict, caller may retry
)

// Fatal, peer-malicious errors (DoS 100).
var (
	ErrNotCoinstake           = errors.New("pos: second transaction is not a coinstake")
	ErrMissingStakePrevout    = errors.New("pos: stake prevout not found in coin view")
	ErrImmature               = errors.New("pos: staked coin has not reached coinbase maturity")
	ErrMissingAncestor        = errors.New("pos: block-from ancestor not found on active chain")
	ErrBadSignature           = errors.New("pos: coinstake input signature is invalid")
	ErrMalformedCoinstake     = errors.New("pos: coinstake output shape is malformed")
	ErrInputOutputKeyMismatch = errors.New("pos: coinstake input and reward output keys do not correspond")
	ErrBlockNotProofOfStake   = errors.New("pos: mpos recipient height is not a proof-of-stake block")
)

// Soft, possibly-sync errors (DoS 1).
var (
	ErrKernelFailed        = errors.New("pos: kernel hash does not meet weighted target")
	ErrTimestampViolation  = errors.New("pos: block time precedes stake source block time")
)

// Transient, local errors (not a consensus verdict).
var (
	ErrCoinLookupIO = errors.New("pos: coin view lookup failed")
	ErrBlockReadIO  = errors.New("pos: block store read failed")
)

// DoSScore classifies an error returned by this package into its consensus
// ban-scoring band. Errors not recognized by this package score 0 (no
// classification opinion — the caller's own fallback applies).
func DoSScore(err error) int {
	switch {
	case errors.Is(err, ErrNotCoinstake),
		errors.Is(err, ErrMissingStakePrevout),
		errors.Is(err, ErrImmature),
		errors.Is(err, ErrMissingAncestor),
		errors.Is(err, ErrBadSignature),
		errors.Is(err, ErrMalformedCoinstake),
		errors.Is(err, ErrInputOutputKeyMismatch),
		errors.Is(err, ErrBlockNotProofOfStake):
		return DoSFatal
	case errors.Is(err, ErrKernelFailed), errors.Is(err, ErrTimestampViolation):
		return DoSSoft
	case errors.Is(err, ErrCoinLookupIO), errors.Is(err, ErrBlockReadIO):
		return DoSTransient
	default:
		return 0
	}
}
