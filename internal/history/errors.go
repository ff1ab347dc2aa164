package history

import "errors"

var errMemoryOnly = errors.New("history: no database path configured")
