package connectivity

import "errors"

var ErrOffline = errors.New("backend unreachable")
