package account

import "errors"

// Error taxonomy shared across the store, provisioner and lifecycle
// manager. Callers classify with errors.Is; wrapping adds context.
var (
	ErrDuplicateAccount            = errors.New("account already exists")
	ErrAccountNotFound             = errors.New("account not found")
	ErrProvisionFailed             = errors.New("provisioning failed")
	ErrProvisionVerificationFailed = errors.New("provisioned resource not found after creation")
	ErrMalformedURI                = errors.New("malformed connection URI")
	ErrStoreUnavailable            = errors.New("store unavailable")
)
