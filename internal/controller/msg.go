package controller

import (
	"encoding/json"

	"github.com/louisbranch/accord/internal/objects"
	"github.com/louisbranch/accord/internal/runtime"
)

// InstantiateMsg configures a fresh controller. The instantiator (the
// factory) is recorded and may later bind the holder address.
type InstantiateMsg struct {
	AccountID objects.AccountId `json:"account_id"`
	Owner     objects.Address   `json:"owner"`
	Registry  objects.Address   `json:"registry"`
}

// ExecuteMsg is the closed union of controller calls. Exactly one field
// must be set.
type ExecuteMsg struct {
	Install      *InstallMsg      `json:"install,omitempty"`
	Uninstall    *UninstallMsg    `json:"uninstall,omitempty"`
	ExecOnModule *ExecOnModuleMsg `json:"exec_on_module,omitempty"`
	ExecOnHolder *ExecOnHolderMsg `json:"exec_on_holder,omitempty"`
	SendAll      *SendAllMsg      `json:"send_all,omitempty"`
	UpdateHolder *UpdateHolderMsg `json:"update_holder,omitempty"`
	UpdateOwner  *UpdateOwnerMsg  `json:"update_owner,omitempty"`
}

// InstallMsg installs one or more modules. Owner only. Each entry
// resolves through the registry (approved versions only) and must have
// its declared dependencies already installed.
type InstallMsg struct {
	Modules []InstallEntry `json:"modules"`
}

// InstallEntry pairs a module selector with its instantiation message.
// InitMsg is ignored for address-backed kinds (native, adapter).
type InstallEntry struct {
	Info    objects.ModuleInfo `json:"info"`
	InitMsg json.RawMessage    `json:"init_msg,omitempty"`
}

// UninstallMsg removes an installed module and tombstones its id.
// Owner only.
type UninstallMsg struct {
	ModuleID string `json:"module_id"`
}

// ExecOnModuleMsg forwards a message to an installed module. Owner only.
type ExecOnModuleMsg struct {
	ModuleID string          `json:"module_id"`
	Msg      json.RawMessage `json:"msg"`
}

// ExecOnHolderMsg forwards an ordered action list to the asset-holder.
// Owner only.
type ExecOnHolderMsg struct {
	Actions []runtime.Msg `json:"actions"`
}

// SendAllMsg tells the asset-holder to transfer its entire balance.
// Owner only; the cross-chain host uses this for fund returns.
type SendAllMsg struct {
	To objects.Address `json:"to"`
}

// UpdateHolderMsg binds the asset-holder address. Factory only, once.
type UpdateHolderMsg struct {
	Holder objects.Address `json:"holder"`
}

// UpdateOwnerMsg transfers account ownership. Owner only.
type UpdateOwnerMsg struct {
	Owner objects.Address `json:"owner"`
}

// QueryMsg is the closed union of controller reads.
type QueryMsg struct {
	Config          *ConfigQuery          `json:"config,omitempty"`
	Modules         *ModulesQuery         `json:"modules,omitempty"`
	ModuleAddresses *ModuleAddressesQuery `json:"module_addresses,omitempty"`
}

// ConfigQuery requests the controller configuration.
type ConfigQuery struct{}

// ModulesQuery lists installed modules.
type ModulesQuery struct{}

// ModuleAddressesQuery resolves installed module ids to addresses.
// Missing ids are omitted from the response.
type ModuleAddressesQuery struct {
	IDs []string `json:"ids"`
}

// ConfigResponse answers ConfigQuery.
type ConfigResponse struct {
	AccountID objects.AccountId `json:"account_id"`
	Owner     objects.Address   `json:"owner"`
	Registry  objects.Address   `json:"registry"`
	Holder    objects.Address   `json:"holder,omitempty"`
}

// InstalledModule is one row of the controller's module table.
type InstalledModule struct {
	Info    objects.ModuleInfo `json:"info"`
	Address objects.Address    `json:"address"`
}

// ModulesResponse answers ModulesQuery.
type ModulesResponse struct {
	Modules []InstalledModule `json:"modules"`
}

// ModuleAddressesResponse answers ModuleAddressesQuery.
type ModuleAddressesResponse struct {
	Addresses map[string]objects.Address `json:"addresses"`
}
