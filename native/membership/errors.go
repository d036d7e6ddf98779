package membership

import "errors"

var ErrUnauthorized = errors.New("membership: unauthorized")
