package sigil

import "errors"

var (
	// ErrMissingAuthToken is returned when a request carries no signature at all
	ErrMissingAuthToken = errors.New("missing authentication token")
	// ErrMalformedRequest is returned when the signature material is present but unparseable
	ErrMalformedRequest = errors.New("malformed request")
	// ErrMethodNotAllowed is returned when the request method is not in the allow list
	ErrMethodNotAllowed = errors.New("request method not allowed")
	// ErrContentTypeNotAllowed is returned when the content type is not in the allow list
	ErrContentTypeNotAllowed = errors.New("content type not allowed")
	// ErrUnknownAccessKey is returned when no credential exists for the presented access key
	ErrUnknownAccessKey = errors.New("unknown access key")
	// ErrSignatureMismatch is returned when the computed signature differs from the presented one
	ErrSignatureMismatch = errors.New("signature mismatch")
	// ErrRequestExpired is returned when the request timestamp is outside the allowed
	// window or a presigned request is past its expiry
	ErrRequestExpired = errors.New("request expired")
	// ErrStoreUnavailable is returned when the credential backend cannot be reached
	ErrStoreUnavailable = errors.New("credential store unavailable")
	// ErrInternal is returned when an internal error occurs
	ErrInternal = errors.New("internal error")

	// ErrKeyExists is returned when provisioning an access key that already exists
	ErrKeyExists = errors.New("access key already exists")
	// ErrKeyNotFound is returned when a provisioning operation names an absent access key
	ErrKeyNotFound = errors.New("access key not found")
)
