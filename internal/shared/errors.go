package shared

import "errors"

// ErrActorMissing occurs when an operation requires an acting user and the
// request carried no identity.
var ErrActorMissing = errors.New("acting user missing")
