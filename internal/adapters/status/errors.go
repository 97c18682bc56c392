package status

import "errors"

// ErrWrite wraps any failure to produce the snapshot file.
var ErrWrite = errors.New("status: snapshot write failed")
