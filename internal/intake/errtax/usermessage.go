package errtax

import (
	"errors"
	"fmt"
	"strings"
)

// UserMessage is a support-facing rendering of a fault: what happened, what
// to do about it, and a short code an operator can quote back to the team.
type UserMessage struct {
	Message string
	Action  string
	Code    string
}

// taxonomyMessages maps each named sentinel to its operator-facing
// rendering. Unlike the driver-string pattern matcher below, these are
// exact matches: the component that detects the fault already knows which
// sentinel it hit, so there is no ambiguity to resolve by substring.
var taxonomyMessages = []struct {
	err error
	msg UserMessage
}{
	{ErrTransport, UserMessage{"The upload stream could not be read", "Retry the upload; if it persists, check the network path to the server", "INT-TRANSPORT"}},
	{ErrManifestInvalid, UserMessage{"The archive could not be opened or its manifest is missing", "Re-export the package from the field device", "INT-MANIFEST"}},
	{ErrChecksumMismatch, UserMessage{"The archive's contents do not match its recorded checksum", "The file may be corrupted or tampered with; re-export and re-upload", "INT-CHECKSUM"}},
	{ErrSignatureInvalid, UserMessage{"The archive's digital signature did not verify", "Confirm the exporting device is registered and re-export", "INT-SIGNATURE"}},
	{ErrVocabularyIncompatible, UserMessage{"The archive uses a vocabulary version the server cannot accept", "Update the field device's vocabulary data and re-export", "INT-VOCAB"}},
	{ErrValidationFailed, UserMessage{"One or more staged rows failed validation", "Review the validation report before committing", "INT-VALIDATION"}},
	{ErrConflictUnresolved, UserMessage{"Open conflicts remain for this package", "Resolve all conflicts before committing", "INT-CONFLICT"}},
	{ErrFKUnresolvable, UserMessage{"A staged row references an entity that could not be found", "Check that all referenced rows were included in the archive or already linked", "INT-FK"}},
	{ErrDuplicateBusinessIdentifier, UserMessage{"A business identifier collided with an existing record", "Review the conflicting entity and retry the commit", "INT-BIZID"}},
	{ErrBlobStore, UserMessage{"An attachment could not be stored", "Check blob store connectivity and retry", "INT-BLOB"}},
	{ErrArchive, UserMessage{"The archive could not be moved to long-term storage", "Data was committed; archival can be retried separately", "INT-ARCHIVE"}},
	{ErrStateTransitionInvalid, UserMessage{"That action is not valid for the package's current status", "Refresh the package status and try the appropriate next step", "INT-STATE"}},
	{ErrPackageBusy, UserMessage{"Another operation is already running for this package", "Wait for the in-progress operation to finish and retry", "INT-BUSY"}},
	{ErrConflictAlreadyResolved, UserMessage{"This conflict already has a decision recorded", "Refresh the conflict list; decisions cannot be changed", "INT-RESOLVED"}},
	{ErrNotAuthenticated, UserMessage{"No authenticated user was found for this request", "Sign in and retry", "INT-AUTH"}},
	{ErrNotFound, UserMessage{"The requested package, row, or conflict was not found", "Verify the id and try again", "INT-404"}},
}

// driverPatterns handles faults that surface from a lower layer (the raw
// pgx/driver error bubbling out of a repository call) rather than being
// detected by our own code — there is no sentinel to match exactly, so we
// fall back to the teacher's substring-matching approach
// (internal/core/error_messages.go) for this residual case only.
var driverPatterns = []struct {
	pattern string
	msg     UserMessage
}{
	{"duplicate key", UserMessage{"A record with this identifier already exists", "This is usually caused by re-running a commit; check the package status first", "DB-001"}},
	{"violates foreign key", UserMessage{"A referenced record does not exist", "Check that parent entities were staged or already exist in production", "DB-002"}},
	{"connection refused", UserMessage{"The database is unreachable", "Try again in a few moments", "DB-003"}},
	{"deadlock", UserMessage{"The database detected a conflicting concurrent operation", "Retry the operation", "DB-004"}},
	{"context deadline exceeded", UserMessage{"The operation timed out", "Retry with a smaller package or during lower load", "DB-005"}},
}

var defaultMessage = UserMessage{"An unexpected error occurred", "Retry or contact support with the request id", "INT-000"}

// Describe converts an error into an operator-facing UserMessage. It first
// checks for an exact taxonomy sentinel via errors.Is, then falls back to
// substring matching against known driver error text, then a generic
// fallback.
func Describe(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, tm := range taxonomyMessages {
		if errors.Is(err, tm.err) {
			return tm.msg
		}
	}

	lower := strings.ToLower(err.Error())
	for _, dp := range driverPatterns {
		if strings.Contains(lower, dp.pattern) {
			return dp.msg
		}
	}

	return defaultMessage
}

// Format renders a UserMessage as "<message> (Code: <code>). <action>", the
// same layout the teacher uses for FormatUserError.
func Format(err error) string {
	msg := Describe(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}
