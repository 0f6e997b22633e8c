package http

import (
	"encoding/json"
	"encoding/xml"
	"log/slog"
	"net/http"
)

// DefaultNamespace is the xmlns stamped on error documents when the
// configuration does not name one. It matches the namespace AWS STS uses
// for its ErrorResponse documents.
const DefaultNamespace = "https://sts.amazonaws.com/doc/2011-06-15/"

const requestIDHeader = "x-amz-request-id"

// ErrorResponse is the AWS-style XML error document.
type ErrorResponse struct {
	XMLName   xml.Name    `xml:"ErrorResponse"`
	Namespace string      `xml:"xmlns,attr"`
	Error     ErrorDetail `xml:"Error"`
	RequestID string      `xml:"RequestId"`
}

// ErrorDetail carries the error class. Type is "Sender" for client faults
// and "Receiver" for server faults, following the AWS query protocol.
type ErrorDetail struct {
	Type    string `xml:"Type"`
	Code    string `xml:"Code"`
	Message string `xml:"Message"`
}

// WriteError writes an AWS-style XML error document. An empty namespace
// falls back to DefaultNamespace.
func WriteError(w http.ResponseWriter, namespace, requestID string, status int, code, message string) {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	faultType := "Sender"
	if status >= http.StatusInternalServerError {
		faultType = "Receiver"
	}

	doc := ErrorResponse{
		Namespace: namespace,
		Error:     ErrorDetail{Type: faultType, Code: code, Message: message},
		RequestID: requestID,
	}

	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	if requestID != "" {
		w.Header().Set(requestIDHeader, requestID)
	}
	w.WriteHeader(status)

	if _, err := w.Write([]byte(xml.Header)); err != nil {
		slog.Error("failed to write error response", "error", err)
		return
	}
	if err := xml.NewEncoder(w).Encode(doc); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

// HandleError classifies err and writes the matching XML error document.
// The outward message is fixed per error class; err itself only reaches
// the log.
func HandleError(w http.ResponseWriter, namespace, requestID string, err error) {
	out := classify(err)
	slog.Error("request failed",
		"status", out.Status,
		"code", out.Code,
		"request_id", requestID,
		"error", err,
	)

	WriteError(w, namespace, requestID, out.Status, out.Code, out.Message)
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, code int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	return json.NewEncoder(w).Encode(data)
}
