// Package holder implements the asset-holder: the only component of an
// account allowed to hold funds and originate outbound effects. It
// trusts exactly one controller, recorded at instantiation, plus a
// whitelist of module addresses the controller maintains.
package holder

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/louisbranch/accord/internal/objects"
	"github.com/louisbranch/accord/internal/platform/errors"
	"github.com/louisbranch/accord/internal/runtime"
)

const (
	keyConfig       = "config"
	whitelistPrefix = "wl/"
)

// Config is the holder's persisted configuration. Controller never
// changes after instantiation.
type Config struct {
	Controller objects.Address   `json:"controller"`
	AccountID  objects.AccountId `json:"account_id"`
}

// InstantiateMsg configures a fresh holder with its single trusted
// caller. The factory embeds the controller address it learned from the
// controller-creation reply.
type InstantiateMsg struct {
	Controller objects.Address   `json:"controller"`
	AccountID  objects.AccountId `json:"account_id"`
}

// ExecuteMsg is the closed union of holder calls.
type ExecuteMsg struct {
	Execute      *ExecuteActionsMsg `json:"execute,omitempty"`
	AddCaller    *AddCallerMsg      `json:"add_caller,omitempty"`
	RemoveCaller *RemoveCallerMsg   `json:"remove_caller,omitempty"`
	SendAll      *SendAllMsg        `json:"send_all,omitempty"`
}

// ExecuteActionsMsg runs an ordered action list on the account's behalf.
// Controller or whitelisted callers only.
type ExecuteActionsMsg struct {
	Actions []runtime.Msg `json:"actions"`
}

// AddCallerMsg whitelists a module address. Controller only.
type AddCallerMsg struct {
	Address objects.Address `json:"address"`
}

// RemoveCallerMsg removes a module address from the whitelist.
// Controller only.
type RemoveCallerMsg struct {
	Address objects.Address `json:"address"`
}

// SendAllMsg transfers the holder's entire balance to one address.
// Controller only; used by the cross-chain fund-return path.
type SendAllMsg struct {
	To objects.Address `json:"to"`
}

// QueryMsg is the closed union of holder reads.
type QueryMsg struct {
	Config  *ConfigQuery  `json:"config,omitempty"`
	Callers *CallersQuery `json:"callers,omitempty"`
}

// ConfigQuery requests the holder configuration.
type ConfigQuery struct{}

// CallersQuery lists the whitelisted caller addresses.
type CallersQuery struct{}

// CallersResponse answers CallersQuery.
type CallersResponse struct {
	Callers []objects.Address `json:"callers"`
}

// Holder is the asset-holder contract.
type Holder struct {
	runtime.NoReply
}

// Contract returns a holder constructor for runtime code registration.
func Contract() runtime.Contract {
	return &Holder{}
}

// Instantiate records the controller and account id.
func (h *Holder) Instantiate(ctx context.Context, deps runtime.Deps, env runtime.Env, info runtime.MsgInfo, msg []byte) (runtime.Response, error) {
	var init InstantiateMsg
	if err := json.Unmarshal(msg, &init); err != nil {
		return runtime.Response{}, fmt.Errorf("unmarshal instantiate msg: %w", err)
	}
	if init.Controller == "" {
		return runtime.Response{}, fmt.Errorf("holder requires a controller address")
	}
	if err := saveConfig(deps, Config{Controller: init.Controller, AccountID: init.AccountID}); err != nil {
		return runtime.Response{}, err
	}
	return runtime.NewResponse().
		AddAttribute("action", "instantiate").
		AddAttribute("controller", string(init.Controller)), nil
}

// Execute dispatches a holder call after the caller check.
func (h *Holder) Execute(ctx context.Context, deps runtime.Deps, env runtime.Env, info runtime.MsgInfo, msg []byte) (runtime.Response, error) {
	var exec ExecuteMsg
	if err := json.Unmarshal(msg, &exec); err != nil {
		return runtime.Response{}, fmt.Errorf("unmarshal execute msg: %w", err)
	}
	cfg, err := loadConfig(deps)
	if err != nil {
		return runtime.Response{}, err
	}

	switch {
	case exec.Execute != nil:
		if err := h.requireActor(deps, cfg, info.Sender); err != nil {
			return runtime.Response{}, err
		}
		resp := runtime.NewResponse().AddAttribute("action", "execute")
		for _, action := range exec.Execute.Actions {
			resp = resp.AddMessage(action)
		}
		return resp, nil

	case exec.AddCaller != nil:
		if err := requireController(cfg, info.Sender); err != nil {
			return runtime.Response{}, err
		}
		if err := deps.Store.Set(whitelistKey(exec.AddCaller.Address), []byte{1}); err != nil {
			return runtime.Response{}, err
		}
		return runtime.NewResponse().
			AddAttribute("action", "add_caller").
			AddAttribute("caller", string(exec.AddCaller.Address)), nil

	case exec.RemoveCaller != nil:
		if err := requireController(cfg, info.Sender); err != nil {
			return runtime.Response{}, err
		}
		if err := deps.Store.Delete(whitelistKey(exec.RemoveCaller.Address)); err != nil {
			return runtime.Response{}, err
		}
		return runtime.NewResponse().
			AddAttribute("action", "remove_caller").
			AddAttribute("caller", string(exec.RemoveCaller.Address)), nil

	case exec.SendAll != nil:
		if err := requireController(cfg, info.Sender); err != nil {
			return runtime.Response{}, err
		}
		coins, err := deps.Querier.QueryAllBalances(ctx, env.Contract)
		if err != nil {
			return runtime.Response{}, err
		}
		resp := runtime.NewResponse().
			AddAttribute("action", "send_all").
			AddAttribute("to", string(exec.SendAll.To))
		if len(coins) == 0 {
			return resp, nil
		}
		return resp.AddMessage(runtime.SendMsg(exec.SendAll.To, coins...)), nil

	default:
		return runtime.Response{}, fmt.Errorf("empty holder execute msg")
	}
}

// Query dispatches a holder read.
func (h *Holder) Query(ctx context.Context, deps runtime.Deps, env runtime.Env, msg []byte) ([]byte, error) {
	var query QueryMsg
	if err := json.Unmarshal(msg, &query); err != nil {
		return nil, fmt.Errorf("unmarshal query msg: %w", err)
	}
	switch {
	case query.Config != nil:
		cfg, err := loadConfig(deps)
		if err != nil {
			return nil, err
		}
		return json.Marshal(cfg)
	case query.Callers != nil:
		resp := CallersResponse{}
		err := deps.Store.Iterate([]byte(whitelistPrefix), func(key, value []byte) (bool, error) {
			resp.Callers = append(resp.Callers, objects.Address(key[len(whitelistPrefix):]))
			return true, nil
		})
		if err != nil {
			return nil, err
		}
		return json.Marshal(resp)
	default:
		return nil, fmt.Errorf("empty holder query msg")
	}
}

// requireActor admits the controller and whitelisted module addresses.
func (h *Holder) requireActor(deps runtime.Deps, cfg Config, sender objects.Address) error {
	if sender == cfg.Controller {
		return nil
	}
	listed, err := deps.Store.Get(whitelistKey(sender))
	if err != nil {
		return err
	}
	if listed == nil {
		return errors.New(errors.CodeUnauthorized,
			fmt.Sprintf("%s is neither the controller nor whitelisted", sender))
	}
	return nil
}

func requireController(cfg Config, sender objects.Address) error {
	if sender != cfg.Controller {
		return errors.New(errors.CodeUnauthorized,
			fmt.Sprintf("%s is not the controller", sender))
	}
	return nil
}

func whitelistKey(addr objects.Address) []byte {
	return []byte(whitelistPrefix + string(addr))
}

func loadConfig(deps runtime.Deps) (Config, error) {
	raw, err := deps.Store.Get([]byte(keyConfig))
	if err != nil {
		return Config{}, err
	}
	if raw == nil {
		return Config{}, fmt.Errorf("holder config not initialized")
	}
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal holder config: %w", err)
	}
	return cfg, nil
}

func saveConfig(deps runtime.Deps, cfg Config) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal holder config: %w", err)
	}
	return deps.Store.Set([]byte(keyConfig), raw)
}
