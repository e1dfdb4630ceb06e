package registry

import "errors"

// ErrUnknownExchange is returned by Lookup for any key not present in
// the registry. There is no silent default exchange (§4.1).
var ErrUnknownExchange = errors.New("unknown exchange")
