package coherence

import "errors"

// ErrUnknownVariable is returned by BeforeRead/BeforeWrite when no record
// exists for the given variable id on this node.
var ErrUnknownVariable = errors.New("coherence: unknown variable")
