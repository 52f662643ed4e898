// errors.go provides unified error response handling for the web layer,
// generalizing the teacher's pattern-matched core.MapError (which scans an
// error string for substrings like "duplicate key") into a lookup over the
// closed errtax sentinel set, since every fault this pipeline raises is
// already a typed sentinel rather than a driver error string to pattern-
// match against.
package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/landtenure/intake/internal/intake/errtax"
)

// userMessage is the user-facing shape of a mapped error, mirroring the
// teacher's core.UserMessage (Message/Action/Code).
type userMessage struct {
	Message string
	Action  string
	Code    string
}

type errorMapping struct {
	err    error
	status int
	msg    userMessage
}

// errorMappings is checked in order; the first errors.Is match wins, same
// "specific before general" ordering contract as the teacher's
// errorPatterns table.
var errorMappings = []errorMapping{
	{errtax.ErrNotAuthenticated, http.StatusUnauthorized, userMessage{
		Message: "no authenticated user for this request", Action: "Include a valid API key", Code: "AUTH001"}},
	{errtax.ErrPackageBusy, http.StatusConflict, userMessage{
		Message: "this package is busy with another operation", Action: "Retry shortly", Code: "PKG001"}},
	{errtax.ErrStateTransitionInvalid, http.StatusConflict, userMessage{
		Message: "this operation is not valid for the package's current status", Action: "Check the package status and retry the correct stage", Code: "PKG002"}},
	{errtax.ErrConflictAlreadyResolved, http.StatusConflict, userMessage{
		Message: "this conflict was already resolved", Action: "Reload the conflict list", Code: "PKG003"}},
	{errtax.ErrConflictUnresolved, http.StatusConflict, userMessage{
		Message: "open conflicts remain unresolved", Action: "Resolve every conflict before committing", Code: "PKG004"}},
	{errtax.ErrChecksumMismatch, http.StatusUnprocessableEntity, userMessage{
		Message: "archive checksum does not match its contents", Action: "Re-export the archive from the source device", Code: "INT001"}},
	{errtax.ErrSignatureInvalid, http.StatusUnprocessableEntity, userMessage{
		Message: "archive signature failed verification", Action: "Re-export the archive from a trusted device", Code: "INT002"}},
	{errtax.ErrVocabularyIncompatible, http.StatusUnprocessableEntity, userMessage{
		Message: "archive vocabulary version is incompatible with this server", Action: "Update the collection device's vocabulary bundle", Code: "INT003"}},
	{errtax.ErrManifestInvalid, http.StatusUnprocessableEntity, userMessage{
		Message: "archive could not be opened or its manifest is invalid", Action: "Verify the file is an unmodified .uhc export", Code: "INT004"}},
	{errtax.ErrValidationFailed, http.StatusUnprocessableEntity, userMessage{
		Message: "one or more staged rows failed validation", Action: "Review the staged entities and diagnostics", Code: "VAL001"}},
	{errtax.ErrFKUnresolvable, http.StatusUnprocessableEntity, userMessage{
		Message: "a staged row references an entity that could not be resolved", Action: "Check the referenced record was staged or linked", Code: "VAL002"}},
	{errtax.ErrDuplicateBusinessIdentifier, http.StatusUnprocessableEntity, userMessage{
		Message: "a committed row collided with an existing business identifier", Action: "Review the commit report for the conflicting row", Code: "VAL003"}},
	{errtax.ErrTransport, http.StatusBadRequest, userMessage{
		Message: "the archive stream could not be read", Action: "Retry the upload", Code: "IO001"}},
	{errtax.ErrNotFound, http.StatusNotFound, userMessage{
		Message: "resource not found", Action: "Verify the id and retry", Code: "NF001"}},
	{errtax.ErrBlobStore, http.StatusInternalServerError, userMessage{
		Message: "attachment storage failed", Action: "Try again or contact support", Code: "SYS001"}},
	{errtax.ErrArchive, http.StatusInternalServerError, userMessage{
		Message: "archival of the source file failed", Action: "Try again or contact support", Code: "SYS002"}},
}

var defaultMapping = userMessage{
	Message: "an unexpected error occurred", Action: "Try again or contact support", Code: "ERR000",
}

// mapError resolves err against the errtax sentinel set, returning the
// HTTP status and the user-facing message to send.
func mapError(err error) (int, userMessage) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.status, m.msg
		}
	}
	return http.StatusInternalServerError, defaultMapping
}

// respondError logs the technical error with request correlation and
// writes a sanitized JSON error body.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := mapError(err)
	requestID := middleware.GetReqID(r.Context())

	slog.Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"code", msg.Code,
		"error", err.Error(),
		"request_id", requestID,
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{
		Success: false,
		Errors:  []string{msg.Message + ": " + msg.Action},
	})
}
