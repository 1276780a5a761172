package host

import (
	"encoding/json"
	"fmt"

	"github.com/louisbranch/accord/internal/objects"
	"github.com/louisbranch/accord/internal/platform/errors"
)

// Packet is the inbound cross-chain envelope. AccountID is the id as
// known on the source chain; the host appends the source chain to the
// trace to derive the local id. SourceHolder is the asset-holder on the
// source chain, recorded for fund-return paths.
type Packet struct {
	AccountID    *objects.AccountId `json:"account_id,omitempty"`
	SourceHolder objects.Address    `json:"source_holder,omitempty"`
	Action       Action             `json:"action"`
}

// Action is the closed union of packet actions. Exactly one field must
// be set.
type Action struct {
	Register     *RegisterAction   `json:"register,omitempty"`
	Dispatch     *DispatchAction   `json:"dispatch,omitempty"`
	ModuleAction *ModuleActionMsg  `json:"module_action,omitempty"`
	SendAllBack  *SendAllBackAction `json:"send_all_back,omitempty"`
}

// RegisterAction provisions the local account pair. Registration is the
// creation itself, so it never defers a replay.
type RegisterAction struct{}

// DispatchAction executes a serialized controller-level message against
// the account's controller.
type DispatchAction struct {
	Msg json.RawMessage `json:"msg"`
}

// ModuleActionMsg routes an opaque payload to a module resolved through
// the registry. Adapters are singletons and need no account; app and
// standalone targets require an explicit account id.
type ModuleActionMsg struct {
	Source  *objects.ModuleInfo `json:"source,omitempty"`
	Target  objects.ModuleInfo  `json:"target"`
	Payload json.RawMessage     `json:"payload"`
}

// SendAllBackAction drains the account's asset-holder back to the
// source chain's holder address.
type SendAllBackAction struct{}

// Validate checks that exactly one action variant is set.
func (a Action) Validate() error {
	count := 0
	if a.Register != nil {
		count++
	}
	if a.Dispatch != nil {
		count++
	}
	if a.ModuleAction != nil {
		count++
	}
	if a.SendAllBack != nil {
		count++
	}
	if count != 1 {
		return errors.New(errors.CodeUnsupportedHostAction,
			fmt.Sprintf("packet must carry exactly one action, got %d", count))
	}
	return nil
}
