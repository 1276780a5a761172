// Package errors provides structured error handling with i18n support.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Authorization errors
	CodeUnauthorized Code = "UNAUTHORIZED"

	// Registry errors
	CodeNamespaceNotFound       Code = "NAMESPACE_NOT_FOUND"
	CodeNamespaceAlreadyClaimed Code = "NAMESPACE_ALREADY_CLAIMED"
	CodeModuleNotFound          Code = "MODULE_NOT_FOUND"
	CodeModuleNotApproved       Code = "MODULE_NOT_APPROVED"
	CodeModuleAlreadyApproved   Code = "MODULE_ALREADY_APPROVED"
	CodeModuleAlreadyRegistered Code = "MODULE_ALREADY_REGISTERED"
	CodeInvalidFilter           Code = "INVALID_FILTER"
	CodeInvalidCursor           Code = "INVALID_CURSOR"

	// Account creation errors
	CodeAccountNotFound    Code = "ACCOUNT_NOT_FOUND"
	CodeCreationFeeInvalid Code = "CREATION_FEE_INVALID"
	CodeCreationStepFailed Code = "CREATION_STEP_FAILED"
	CodeCreationInFlight   Code = "CREATION_IN_FLIGHT"
	CodeUnexpectedReply    Code = "UNEXPECTED_REPLY"

	// Module installation errors
	CodeModuleAlreadyInstalled Code = "MODULE_ALREADY_INSTALLED"
	CodeProhibitedReinstall    Code = "PROHIBITED_REINSTALL"
	CodeDependencyNotMet       Code = "DEPENDENCY_NOT_MET"

	// Cross-chain routing errors
	CodeWrongModuleAction     Code = "WRONG_MODULE_ACTION"
	CodeAccountIdNotSpecified Code = "ACCOUNT_ID_NOT_SPECIFIED"
	CodeMissingModule         Code = "MISSING_MODULE"
	CodePacketGrantInvalid    Code = "PACKET_GRANT_INVALID"
	CodePacketGrantExpired    Code = "PACKET_GRANT_EXPIRED"
	CodePacketRateLimited     Code = "PACKET_RATE_LIMITED"
	CodeUnknownCounterparty   Code = "UNKNOWN_COUNTERPARTY"
	CodeUnsupportedHostAction Code = "UNSUPPORTED_HOST_ACTION"

	// Runtime errors
	CodeContractNotFound  Code = "CONTRACT_NOT_FOUND"
	CodeCodeNotFound      Code = "CODE_NOT_FOUND"
	CodeInsufficientFunds Code = "INSUFFICIENT_FUNDS"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeCreationFeeInvalid,
		CodeWrongModuleAction,
		CodeAccountIdNotSpecified,
		CodeInvalidFilter,
		CodeInvalidCursor:
		return codes.InvalidArgument

	// Unauthenticated - the caller presented no valid credential
	case CodePacketGrantInvalid,
		CodePacketGrantExpired:
		return codes.Unauthenticated

	// PermissionDenied - authenticated but not allowed
	case CodeUnauthorized:
		return codes.PermissionDenied

	// NotFound - missing resources
	case CodeNamespaceNotFound,
		CodeModuleNotFound,
		CodeAccountNotFound,
		CodeMissingModule,
		CodeContractNotFound,
		CodeCodeNotFound,
		CodeUnknownCounterparty,
		CodeNotFound:
		return codes.NotFound

	// AlreadyExists - duplicate registration conflicts
	case CodeNamespaceAlreadyClaimed,
		CodeModuleAlreadyRegistered,
		CodeModuleAlreadyInstalled:
		return codes.AlreadyExists

	// FailedPrecondition - the request is valid but state disallows it
	case CodeModuleNotApproved,
		CodeModuleAlreadyApproved,
		CodeProhibitedReinstall,
		CodeDependencyNotMet,
		CodeInsufficientFunds,
		CodeUnsupportedHostAction:
		return codes.FailedPrecondition

	// ResourceExhausted - throttled inbound traffic
	case CodePacketRateLimited:
		return codes.ResourceExhausted

	// Aborted - an in-flight workflow conflicted or was cut short
	case CodeCreationInFlight,
		CodeCreationStepFailed,
		CodeUnexpectedReply:
		return codes.Aborted

	default:
		return codes.Internal
	}
}
