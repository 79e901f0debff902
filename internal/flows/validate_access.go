package flows

// ValidateAccessFailureKind classifies access verification failures.
type ValidateAccessFailureKind int

const (
	ValidateAccessFailureNone ValidateAccessFailureKind = iota
	ValidateAccessFailureVerify
)

// ValidateAccessResult carries verified claims on success.
type ValidateAccessResult struct {
	Failure ValidateAccessFailureKind
	Err     error
	Claims  Claims
}

// ValidateAccessDeps captures access verification dependencies.
type ValidateAccessDeps struct {
	// VerifyAccess checks signature, expiry and that the kind is access.
	VerifyAccess func(string) (Claims, error)
}

// RunValidateAccess verifies an access credential. It is stateless and
// touches no store.
func RunValidateAccess(token string, deps ValidateAccessDeps) ValidateAccessResult {
	claims, err := deps.VerifyAccess(token)
	if err != nil {
		return ValidateAccessResult{Failure: ValidateAccessFailureVerify, Err: err}
	}
	return ValidateAccessResult{Failure: ValidateAccessFailureNone, Claims: claims}
}
