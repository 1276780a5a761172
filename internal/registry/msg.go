package registry

import (
	"encoding/json"

	"github.com/louisbranch/accord/internal/objects"
)

// DeployStrategy controls how register treats an existing record.
// Publishing is decentralized and often re-run by CI, so idempotent
// semantics are selectable by the publisher.
type DeployStrategy string

const (
	// DeployTry registers if absent and succeeds without change when the
	// same reference is already pending.
	DeployTry DeployStrategy = "try"
	// DeployError fails when any record for the version already exists.
	DeployError DeployStrategy = "error"
	// DeployForce overwrites an existing record unless the version has
	// been approved and locked.
	DeployForce DeployStrategy = "force"
)

// Status is a registry record's approval state.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// InstantiateMsg configures a fresh registry.
type InstantiateMsg struct {
	// Admin may approve and reject records. Defaults to the instantiator.
	Admin objects.Address `json:"admin,omitempty"`
}

// ExecuteMsg is the closed union of registry mutations. Exactly one
// field must be set.
type ExecuteMsg struct {
	ClaimNamespace   *ClaimNamespaceMsg   `json:"claim_namespace,omitempty"`
	ReleaseNamespace *ReleaseNamespaceMsg `json:"release_namespace,omitempty"`
	Register         *RegisterMsg         `json:"register,omitempty"`
	Approve          *ApproveMsg          `json:"approve,omitempty"`
	Reject           *RejectMsg           `json:"reject,omitempty"`
	RegisterAccount  *RegisterAccountMsg  `json:"register_account,omitempty"`
	UpdateConfig     *UpdateConfigMsg     `json:"update_config,omitempty"`
}

// ClaimNamespaceMsg claims an unowned namespace for the caller.
type ClaimNamespaceMsg struct {
	Namespace string `json:"namespace"`
}

// ReleaseNamespaceMsg releases a namespace. Owner or admin only.
type ReleaseNamespaceMsg struct {
	Namespace string `json:"namespace"`
}

// RegisterMsg submits a module version for approval. Namespace owner only.
type RegisterMsg struct {
	Info         objects.ModuleInfo    `json:"info"`
	Reference    json.RawMessage       `json:"reference"`
	Dependencies []objects.Dependency  `json:"dependencies,omitempty"`
	Strategy     DeployStrategy        `json:"strategy,omitempty"`
}

// ApproveMsg transitions pending records to approved. Admin only.
type ApproveMsg struct {
	Modules []objects.ModuleInfo `json:"modules"`
}

// RejectMsg rejects pending records, removing their references so the
// versions can never resolve. Admin only.
type RejectMsg struct {
	Modules []objects.ModuleInfo `json:"modules"`
}

// RegisterAccountMsg records a finalized account pair in the directory.
// Factory only.
type RegisterAccountMsg struct {
	AccountID  objects.AccountId `json:"account_id"`
	Controller objects.Address   `json:"controller"`
	Holder     objects.Address   `json:"holder"`
}

// UpdateConfigMsg changes the registry configuration. Admin only.
type UpdateConfigMsg struct {
	Admin   *objects.Address `json:"admin,omitempty"`
	Factory *objects.Address `json:"factory,omitempty"`
}

// QueryMsg is the closed union of registry reads.
type QueryMsg struct {
	Config    *ConfigQuery    `json:"config,omitempty"`
	Resolve   *ResolveQuery   `json:"resolve,omitempty"`
	Modules   *ModulesQuery   `json:"modules,omitempty"`
	Namespace *NamespaceQuery `json:"namespace,omitempty"`
	Account   *AccountQuery   `json:"account,omitempty"`
}

// ConfigQuery requests the registry configuration.
type ConfigQuery struct{}

// ResolveQuery resolves a module selector to its approved reference.
type ResolveQuery struct {
	Info objects.ModuleInfo `json:"info"`
}

// ModulesQuery lists registry records with optional filtering.
// Filter is an AIP-160 expression over namespace, name, version, status.
type ModulesQuery struct {
	Filter    string `json:"filter,omitempty"`
	PageToken string `json:"page_token,omitempty"`
	PageSize  int    `json:"page_size,omitempty"`
}

// NamespaceQuery looks up a namespace's owner.
type NamespaceQuery struct {
	Namespace string `json:"namespace"`
}

// AccountQuery looks up an account's base addresses by id.
type AccountQuery struct {
	AccountID objects.AccountId `json:"account_id"`
}

// ConfigResponse answers ConfigQuery.
type ConfigResponse struct {
	Admin   objects.Address `json:"admin"`
	Factory objects.Address `json:"factory,omitempty"`
}

// ResolveResponse answers ResolveQuery with the concrete version that
// matched the selector.
type ResolveResponse struct {
	Info         objects.ModuleInfo   `json:"info"`
	Reference    json.RawMessage      `json:"reference"`
	Dependencies []objects.Dependency `json:"dependencies,omitempty"`
}

// DecodeReference unpacks the resolved reference envelope.
func (r ResolveResponse) DecodeReference() (objects.ModuleReference, error) {
	return objects.UnmarshalReference(r.Reference)
}

// RecordView is one listing row.
type RecordView struct {
	Info      objects.ModuleInfo `json:"info"`
	Status    Status             `json:"status"`
	Reference json.RawMessage    `json:"reference,omitempty"`
}

// ModulesResponse answers ModulesQuery.
type ModulesResponse struct {
	Records       []RecordView `json:"records"`
	NextPageToken string       `json:"next_page_token,omitempty"`
}

// NamespaceResponse answers NamespaceQuery.
type NamespaceResponse struct {
	Namespace string          `json:"namespace"`
	Owner     objects.Address `json:"owner"`
}

// AccountResponse answers AccountQuery.
type AccountResponse struct {
	Controller objects.Address `json:"controller"`
	Holder     objects.Address `json:"holder"`
}
