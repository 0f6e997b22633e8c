package http

import (
	"errors"
	"net/http"

	"github.com/sagarc03/sigil"
)

// awsError is the outward form of a failed request. The message is fixed
// per error class; whatever detail the pipeline attached stays in the log.
type awsError struct {
	Status  int
	Code    string
	Message string
}

var errorTable = []struct {
	sentinel error
	out      awsError
}{
	{sigil.ErrMissingAuthToken, awsError{http.StatusForbidden, "MissingAuthenticationToken", "Request is missing Authentication Token"}},
	{sigil.ErrMalformedRequest, awsError{http.StatusBadRequest, "IncompleteSignature", "Authorization header or query parameters are incomplete or malformed"}},
	{sigil.ErrMethodNotAllowed, awsError{http.StatusBadRequest, "InvalidRequestMethod", "The requested method is not supported by this service"}},
	{sigil.ErrContentTypeNotAllowed, awsError{http.StatusBadRequest, "InvalidContentType", "The content-type of the request is unsupported"}},
	{sigil.ErrUnknownAccessKey, awsError{http.StatusForbidden, "InvalidClientTokenId", "The AWS access key provided does not exist in our records."}},
	{sigil.ErrSignatureMismatch, awsError{http.StatusForbidden, "SignatureDoesNotMatch", "The request signature we calculated does not match the signature you provided. Check your AWS Secret Access Key and signing method. Consult the service documentation for details."}},
	{sigil.ErrRequestExpired, awsError{http.StatusForbidden, "RequestExpired", "Request has expired or its timestamp is outside the allowed window"}},
	{sigil.ErrStoreUnavailable, awsError{http.StatusInternalServerError, "ServiceFailure", "The request could not be authenticated because a backing service is unavailable. Please try again."}},
}

var internalError = awsError{http.StatusInternalServerError, "InternalFailure", "An internal error occurred"}

// classify maps err onto its outward representation. Anything the table
// does not name is reported as an internal failure.
func classify(err error) awsError {
	for _, entry := range errorTable {
		if errors.Is(err, entry.sentinel) {
			return entry.out
		}
	}
	return internalError
}
