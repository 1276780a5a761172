// Package controller implements the admin-facing half of an account: it
// owns the installed-module table, enforces ownership checks, and
// dispatches calls to modules and to the asset-holder.
package controller

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/louisbranch/accord/internal/holder"
	"github.com/louisbranch/accord/internal/kv"
	"github.com/louisbranch/accord/internal/objects"
	"github.com/louisbranch/accord/internal/platform/errors"
	"github.com/louisbranch/accord/internal/runtime"
)

const (
	keyConfig   = "config"
	keyReplySeq = "replyseq"

	modPrefix     = "mod/"
	tombPrefix    = "tomb/"
	pendingPrefix = "pending/"
)

// Config is the controller's persisted configuration.
type Config struct {
	AccountID objects.AccountId `json:"account_id"`
	Owner     objects.Address   `json:"owner"`
	Registry  objects.Address   `json:"registry"`
	// Factory instantiated this controller and is the only address
	// allowed to bind the holder.
	Factory objects.Address `json:"factory"`
	Holder  objects.Address `json:"holder,omitempty"`
}

// pendingInstall is persisted between the install invocation and the
// instantiate reply that records the module address.
type pendingInstall struct {
	Info objects.ModuleInfo `json:"info"`
}

// Controller is the account controller contract.
type Controller struct{}

// Contract returns a controller constructor for runtime code registration.
func Contract() runtime.Contract {
	return &Controller{}
}

// Instantiate records configuration and the instantiating factory.
func (c *Controller) Instantiate(ctx context.Context, deps runtime.Deps, env runtime.Env, info runtime.MsgInfo, msg []byte) (runtime.Response, error) {
	var init InstantiateMsg
	if err := json.Unmarshal(msg, &init); err != nil {
		return runtime.Response{}, fmt.Errorf("unmarshal instantiate msg: %w", err)
	}
	if init.Owner == "" {
		return runtime.Response{}, fmt.Errorf("controller requires an owner")
	}
	if init.Registry == "" {
		return runtime.Response{}, fmt.Errorf("controller requires a registry address")
	}
	cfg := Config{
		AccountID: init.AccountID,
		Owner:     init.Owner,
		Registry:  init.Registry,
		Factory:   info.Sender,
	}
	if err := saveConfig(deps.Store, cfg); err != nil {
		return runtime.Response{}, err
	}
	return runtime.NewResponse().
		AddAttribute("action", "instantiate").
		AddAttribute("account_id", init.AccountID.String()), nil
}

// Execute dispatches a controller call.
func (c *Controller) Execute(ctx context.Context, deps runtime.Deps, env runtime.Env, info runtime.MsgInfo, msg []byte) (runtime.Response, error) {
	var exec ExecuteMsg
	if err := json.Unmarshal(msg, &exec); err != nil {
		return runtime.Response{}, fmt.Errorf("unmarshal execute msg: %w", err)
	}
	cfg, err := loadConfig(deps.Store)
	if err != nil {
		return runtime.Response{}, err
	}

	switch {
	case exec.Install != nil:
		if err := requireOwner(cfg, info.Sender); err != nil {
			return runtime.Response{}, err
		}
		return c.install(ctx, deps, cfg, *exec.Install)

	case exec.Uninstall != nil:
		if err := requireOwner(cfg, info.Sender); err != nil {
			return runtime.Response{}, err
		}
		return c.uninstall(deps, cfg, *exec.Uninstall)

	case exec.ExecOnModule != nil:
		if err := requireOwner(cfg, info.Sender); err != nil {
			return runtime.Response{}, err
		}
		installed, found, err := loadModule(deps.Store, exec.ExecOnModule.ModuleID)
		if err != nil {
			return runtime.Response{}, err
		}
		if !found {
			return runtime.Response{}, errMissingModule(exec.ExecOnModule.ModuleID, cfg.AccountID)
		}
		return runtime.NewResponse().
			AddAttribute("action", "exec_on_module").
			AddAttribute("module", exec.ExecOnModule.ModuleID).
			AddMessage(runtime.ExecuteMsg(installed.Address, exec.ExecOnModule.Msg)), nil

	case exec.ExecOnHolder != nil:
		if err := requireOwner(cfg, info.Sender); err != nil {
			return runtime.Response{}, err
		}
		return c.forwardToHolder(cfg, holder.ExecuteMsg{
			Execute: &holder.ExecuteActionsMsg{Actions: exec.ExecOnHolder.Actions},
		}, "exec_on_holder")

	case exec.SendAll != nil:
		if err := requireOwner(cfg, info.Sender); err != nil {
			return runtime.Response{}, err
		}
		return c.forwardToHolder(cfg, holder.ExecuteMsg{
			SendAll: &holder.SendAllMsg{To: exec.SendAll.To},
		}, "send_all")

	case exec.UpdateHolder != nil:
		if info.Sender != cfg.Factory {
			return runtime.Response{}, errors.New(errors.CodeUnauthorized,
				"only the factory may bind the holder")
		}
		if cfg.Holder != "" {
			return runtime.Response{}, fmt.Errorf("holder is already bound to %s", cfg.Holder)
		}
		cfg.Holder = exec.UpdateHolder.Holder
		if err := saveConfig(deps.Store, cfg); err != nil {
			return runtime.Response{}, err
		}
		return runtime.NewResponse().
			AddAttribute("action", "update_holder").
			AddAttribute("holder", string(cfg.Holder)), nil

	case exec.UpdateOwner != nil:
		if err := requireOwner(cfg, info.Sender); err != nil {
			return runtime.Response{}, err
		}
		cfg.Owner = exec.UpdateOwner.Owner
		if err := saveConfig(deps.Store, cfg); err != nil {
			return runtime.Response{}, err
		}
		return runtime.NewResponse().AddAttribute("action", "update_owner"), nil

	default:
		return runtime.Response{}, fmt.Errorf("empty controller execute msg")
	}
}

// Reply records a module address once its instantiate sub-message
// completes, then whitelists it on the holder.
func (c *Controller) Reply(ctx context.Context, deps runtime.Deps, env runtime.Env, reply runtime.Reply) (runtime.Response, error) {
	raw, err := deps.Store.Get(pendingKey(reply.ID))
	if err != nil {
		return runtime.Response{}, err
	}
	if raw == nil {
		return runtime.Response{}, errors.WithMetadata(errors.CodeUnexpectedReply,
			fmt.Sprintf("no pending install for reply id %d", reply.ID),
			map[string]string{"ID": fmt.Sprintf("%d", reply.ID)})
	}
	var pending pendingInstall
	if err := json.Unmarshal(raw, &pending); err != nil {
		return runtime.Response{}, fmt.Errorf("unmarshal pending install: %w", err)
	}
	if err := deps.Store.Delete(pendingKey(reply.ID)); err != nil {
		return runtime.Response{}, err
	}
	if !reply.Succeeded() {
		return runtime.Response{}, fmt.Errorf("instantiate %s failed: %s", pending.Info, reply.Err)
	}

	cfg, err := loadConfig(deps.Store)
	if err != nil {
		return runtime.Response{}, err
	}
	if err := saveModule(deps.Store, InstalledModule{Info: pending.Info, Address: reply.Ok.ContractAddress}); err != nil {
		return runtime.Response{}, err
	}
	return c.whitelistOnHolder(cfg, reply.Ok.ContractAddress, runtime.NewResponse().
		AddAttribute("action", "module_installed").
		AddAttribute("module", pending.Info.String()).
		AddAttribute("address", string(reply.Ok.ContractAddress)))
}

// Query dispatches a controller read.
func (c *Controller) Query(ctx context.Context, deps runtime.Deps, env runtime.Env, msg []byte) ([]byte, error) {
	var query QueryMsg
	if err := json.Unmarshal(msg, &query); err != nil {
		return nil, fmt.Errorf("unmarshal query msg: %w", err)
	}
	switch {
	case query.Config != nil:
		cfg, err := loadConfig(deps.Store)
		if err != nil {
			return nil, err
		}
		return json.Marshal(ConfigResponse{
			AccountID: cfg.AccountID,
			Owner:     cfg.Owner,
			Registry:  cfg.Registry,
			Holder:    cfg.Holder,
		})
	case query.Modules != nil:
		resp := ModulesResponse{}
		err := deps.Store.Iterate([]byte(modPrefix), func(key, value []byte) (bool, error) {
			var m InstalledModule
			if err := json.Unmarshal(value, &m); err != nil {
				return false, fmt.Errorf("unmarshal module at %q: %w", key, err)
			}
			resp.Modules = append(resp.Modules, m)
			return true, nil
		})
		if err != nil {
			return nil, err
		}
		return json.Marshal(resp)
	case query.ModuleAddresses != nil:
		resp := ModuleAddressesResponse{Addresses: make(map[string]objects.Address)}
		for _, id := range query.ModuleAddresses.IDs {
			installed, found, err := loadModule(deps.Store, id)
			if err != nil {
				return nil, err
			}
			if found {
				resp.Addresses[id] = installed.Address
			}
		}
		return json.Marshal(resp)
	default:
		return nil, fmt.Errorf("empty controller query msg")
	}
}

func (c *Controller) forwardToHolder(cfg Config, msg holder.ExecuteMsg, action string) (runtime.Response, error) {
	if cfg.Holder == "" {
		return runtime.Response{}, fmt.Errorf("holder is not bound yet")
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return runtime.Response{}, fmt.Errorf("marshal holder msg: %w", err)
	}
	return runtime.NewResponse().
		AddAttribute("action", action).
		AddMessage(runtime.ExecuteMsg(cfg.Holder, raw)), nil
}

func (c *Controller) whitelistOnHolder(cfg Config, addr objects.Address, resp runtime.Response) (runtime.Response, error) {
	if cfg.Holder == "" {
		return runtime.Response{}, fmt.Errorf("holder is not bound yet")
	}
	raw, err := json.Marshal(holder.ExecuteMsg{AddCaller: &holder.AddCallerMsg{Address: addr}})
	if err != nil {
		return runtime.Response{}, fmt.Errorf("marshal holder msg: %w", err)
	}
	return resp.AddMessage(runtime.ExecuteMsg(cfg.Holder, raw)), nil
}

func requireOwner(cfg Config, sender objects.Address) error {
	if sender != cfg.Owner {
		return errors.New(errors.CodeUnauthorized,
			fmt.Sprintf("%s is not the account owner", sender))
	}
	return nil
}

func errMissingModule(moduleID string, accountID objects.AccountId) error {
	return errors.WithMetadata(errors.CodeMissingModule,
		fmt.Sprintf("module %s is not installed on account %s", moduleID, accountID),
		map[string]string{"Module": moduleID, "AccountId": accountID.String()})
}

func pendingKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%d", pendingPrefix, id))
}

func modKey(moduleID string) []byte {
	return []byte(modPrefix + moduleID)
}

func tombKey(moduleID string) []byte {
	return []byte(tombPrefix + moduleID)
}

func loadConfig(store kv.Store) (Config, error) {
	raw, err := store.Get([]byte(keyConfig))
	if err != nil {
		return Config{}, err
	}
	if raw == nil {
		return Config{}, fmt.Errorf("controller config not initialized")
	}
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal controller config: %w", err)
	}
	return cfg, nil
}

func saveConfig(store kv.Store, cfg Config) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal controller config: %w", err)
	}
	return store.Set([]byte(keyConfig), raw)
}

func loadModule(store kv.Store, moduleID string) (InstalledModule, bool, error) {
	raw, err := store.Get(modKey(moduleID))
	if err != nil {
		return InstalledModule{}, false, err
	}
	if raw == nil {
		return InstalledModule{}, false, nil
	}
	var m InstalledModule
	if err := json.Unmarshal(raw, &m); err != nil {
		return InstalledModule{}, false, fmt.Errorf("unmarshal module %s: %w", moduleID, err)
	}
	return m, true, nil
}

func saveModule(store kv.Store, m InstalledModule) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal module %s: %w", m.Info.ID(), err)
	}
	return store.Set(modKey(m.Info.ID()), raw)
}

func nextReplyID(store kv.Store) (uint64, error) {
	raw, err := store.Get([]byte(keyReplySeq))
	if err != nil {
		return 0, err
	}
	var seq uint64
	if len(raw) == 8 {
		seq = binary.BigEndian.Uint64(raw)
	}
	seq++
	var next [8]byte
	binary.BigEndian.PutUint64(next[:], seq)
	if err := store.Set([]byte(keyReplySeq), next[:]); err != nil {
		return 0, err
	}
	return seq, nil
}
