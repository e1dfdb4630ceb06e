package ohlc

import "errors"

// errInvalidRange guards the one undefined mode combination: an end
// bound given without a start (§4.6 only names three modes).
var errInvalidRange = errors.New("ohlc: end given without start is not a defined regeneration mode")
