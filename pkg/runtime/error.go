package runtime

import "errors"

// ErrIntentDenied is returned by BeginTurn when the policy engine rejects the
// turn's intent. The returned Turn carries the decision.
var ErrIntentDenied = errors.New("intent denied by policy")
