package auth

// AuthError means the supplied room secret did not match. Fatal to the join
// attempt; the connection is refused.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string { return "auth: " + e.Reason }

// LoginRequiredError means server policy mandates a verified identity and
// none was presented.
type LoginRequiredError struct{}

func (e *LoginRequiredError) Error() string { return "auth: login required" }

// UnverifiedEmailError means server policy mandates a verified email and the
// identity lacks one.
type UnverifiedEmailError struct{}

func (e *UnverifiedEmailError) Error() string { return "auth: email not verified" }
