package leaderboard

import "errors"

// Sentinel kinds for leaderboard errors.
var (
	ErrAppend       = errors.New("leaderboard append failed")
	ErrRead         = errors.New("leaderboard read failed")
	ErrMalformedRow = errors.New("malformed leaderboard row")
)
