package host

import (
	"github.com/louisbranch/accord/internal/objects"
)

// InstantiateMsg configures a fresh host.
type InstantiateMsg struct {
	Registry objects.Address `json:"registry"`
	Factory  objects.Address `json:"factory"`
	// Transport is the only address allowed to deliver packets. The
	// relay authenticates the source chain before calling in.
	Transport objects.Address `json:"transport"`
}

// ExecuteMsg is the closed union of host calls.
type ExecuteMsg struct {
	ReceivePacket  *ReceivePacketMsg  `json:"receive_packet,omitempty"`
	AccountCreated *AccountCreatedMsg `json:"account_created,omitempty"`
	UpdateConfig   *UpdateConfigMsg   `json:"update_config,omitempty"`
}

// ReceivePacketMsg delivers an authenticated inbound packet. Transport
// only. SourceChain is taken from the verified relayer grant, never
// from the packet body.
type ReceivePacketMsg struct {
	SourceChain objects.ChainName `json:"source_chain"`
	Packet      Packet            `json:"packet"`
}

// AccountCreatedMsg is the factory's creation callback. Factory only.
// It consumes the deferred action cached for the account and replays it.
type AccountCreatedMsg struct {
	AccountID objects.AccountId `json:"account_id"`
}

// UpdateConfigMsg changes host settings. Admin only.
type UpdateConfigMsg struct {
	Transport *objects.Address `json:"transport,omitempty"`
	Factory   *objects.Address `json:"factory,omitempty"`
}

// QueryMsg is the closed union of host reads.
type QueryMsg struct {
	Config        *ConfigQuery        `json:"config,omitempty"`
	PendingAction *PendingActionQuery `json:"pending_action,omitempty"`
}

// ConfigQuery requests the host configuration.
type ConfigQuery struct{}

// PendingActionQuery looks up the deferred action cached for a local
// account id, if any.
type PendingActionQuery struct {
	AccountID objects.AccountId `json:"account_id"`
}

// PendingActionResponse answers PendingActionQuery.
type PendingActionResponse struct {
	SourceChain  objects.ChainName `json:"source_chain"`
	SourceHolder objects.Address   `json:"source_holder,omitempty"`
	Action       Action            `json:"action"`
}
