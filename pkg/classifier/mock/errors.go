package mock

import "errors"

// ErrNotFound is returned for resources or types the mock has no model for.
var ErrNotFound = errors.New("mock: model not found")
