package agent

import "errors"

// ErrInvocationTimeout means the model call exceeded the configured
// invocation deadline. The conversation is left exactly as it was
// before the request; retrying with a more specific request usually
// helps.
var ErrInvocationTimeout = errors.New("agent took too long to respond, try a more specific request")
