package session

import "errors"

// ErrNoStore is returned for persists attempted without a leaderboard store.
var ErrNoStore = errors.New("session: no leaderboard store configured")
