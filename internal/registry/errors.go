// Copyright 2025 James Ross
package registry

import "errors"

var ErrUnknownOperation = errors.New("unknown operation")
