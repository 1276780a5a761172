package i18n

// Error codes must match the codes defined in internal/platform/errors/codes.go.
// These are duplicated as strings to avoid an import cycle.
const (
	CodeUnauthorized            = "UNAUTHORIZED"
	CodeNamespaceNotFound       = "NAMESPACE_NOT_FOUND"
	CodeNamespaceAlreadyClaimed = "NAMESPACE_ALREADY_CLAIMED"
	CodeModuleNotFound          = "MODULE_NOT_FOUND"
	CodeModuleNotApproved       = "MODULE_NOT_APPROVED"
	CodeModuleAlreadyApproved   = "MODULE_ALREADY_APPROVED"
	CodeModuleAlreadyRegistered = "MODULE_ALREADY_REGISTERED"
	CodeInvalidFilter           = "INVALID_FILTER"
	CodeInvalidCursor           = "INVALID_CURSOR"
	CodeAccountNotFound         = "ACCOUNT_NOT_FOUND"
	CodeCreationFeeInvalid      = "CREATION_FEE_INVALID"
	CodeCreationStepFailed      = "CREATION_STEP_FAILED"
	CodeCreationInFlight        = "CREATION_IN_FLIGHT"
	CodeUnexpectedReply         = "UNEXPECTED_REPLY"
	CodeModuleAlreadyInstalled  = "MODULE_ALREADY_INSTALLED"
	CodeProhibitedReinstall     = "PROHIBITED_REINSTALL"
	CodeDependencyNotMet        = "DEPENDENCY_NOT_MET"
	CodeWrongModuleAction       = "WRONG_MODULE_ACTION"
	CodeAccountIdNotSpecified   = "ACCOUNT_ID_NOT_SPECIFIED"
	CodeMissingModule           = "MISSING_MODULE"
	CodePacketGrantInvalid      = "PACKET_GRANT_INVALID"
	CodePacketGrantExpired      = "PACKET_GRANT_EXPIRED"
	CodePacketRateLimited       = "PACKET_RATE_LIMITED"
	CodeUnknownCounterparty     = "UNKNOWN_COUNTERPARTY"
	CodeUnsupportedHostAction   = "UNSUPPORTED_HOST_ACTION"
	CodeContractNotFound        = "CONTRACT_NOT_FOUND"
	CodeCodeNotFound            = "CODE_NOT_FOUND"
	CodeInsufficientFunds       = "INSUFFICIENT_FUNDS"
	CodeNotFound                = "NOT_FOUND"
)

var enUSCatalog = &Catalog{
	locale: "en-US",
	messages: map[Code]string{
		// Authorization errors
		CodeUnauthorized: "Caller is not authorized to perform this action",

		// Registry errors
		CodeNamespaceNotFound:       "Namespace {{.Namespace}} is not claimed",
		CodeNamespaceAlreadyClaimed: "Namespace {{.Namespace}} is already claimed by another account",
		CodeModuleNotFound:          "Module {{.Module}} is not registered",
		CodeModuleNotApproved:       "Module {{.Module}} has not been approved",
		CodeModuleAlreadyApproved:   "Module {{.Module}} is already approved and cannot be overwritten",
		CodeModuleAlreadyRegistered: "Module {{.Module}} is already registered",
		CodeInvalidFilter:           "List filter expression is invalid",
		CodeInvalidCursor:           "Pagination cursor is invalid or expired",

		// Account creation errors
		CodeAccountNotFound:    "Account {{.AccountId}} does not exist",
		CodeCreationFeeInvalid: "Account creation requires a fee of {{.Required}}",
		CodeCreationStepFailed: "Account creation failed at the {{.Step}} step",
		CodeCreationInFlight:   "Another creation for account {{.AccountId}} is already in flight",
		CodeUnexpectedReply:    "Received a reply with an unknown correlation id",

		// Module installation errors
		CodeModuleAlreadyInstalled: "Module {{.Module}} is already installed on this account",
		CodeProhibitedReinstall:    "Module {{.Module}} was previously uninstalled and cannot be reinstalled",
		CodeDependencyNotMet:       "Module {{.Module}} requires {{.Dependency}} at version {{.MinVersion}} or newer",

		// Cross-chain routing errors
		CodeWrongModuleAction:     "Module {{.Module}} cannot be the target of a cross-chain module action",
		CodeAccountIdNotSpecified: "An account id is required to target this module kind",
		CodeMissingModule:         "Module {{.Module}} is not installed on account {{.AccountId}}",
		CodePacketGrantInvalid:    "Packet relay grant is invalid",
		CodePacketGrantExpired:    "Packet relay grant has expired",
		CodePacketRateLimited:     "Inbound packets from {{.Chain}} are rate limited",
		CodeUnknownCounterparty:   "Chain {{.Chain}} is not a known counterparty",
		CodeUnsupportedHostAction: "The host does not support this action",

		// Runtime errors
		CodeContractNotFound:  "No contract exists at address {{.Address}}",
		CodeCodeNotFound:      "No code is stored under id {{.CodeID}}",
		CodeInsufficientFunds: "Insufficient {{.Denom}} balance: have {{.Have}}, need {{.Need}}",

		// Storage errors
		CodeNotFound: "The requested resource was not found",
	},
}
