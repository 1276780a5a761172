// Package host receives inbound cross-chain packets addressed to
// (possibly not-yet-existing) local accounts. Existing accounts get
// their action dispatched directly; missing ones are provisioned
// through the account factory with the action cached and replayed
// exactly once after the pair is bound.
package host

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/louisbranch/accord/internal/controller"
	"github.com/louisbranch/accord/internal/factory"
	"github.com/louisbranch/accord/internal/kv"
	"github.com/louisbranch/accord/internal/objects"
	"github.com/louisbranch/accord/internal/platform/errors"
	"github.com/louisbranch/accord/internal/registry"
	"github.com/louisbranch/accord/internal/runtime"
)

const (
	keyConfig   = "config"
	cachePrefix = "cache/"
)

// Config is the host's persisted configuration.
type Config struct {
	Admin     objects.Address `json:"admin"`
	Registry  objects.Address `json:"registry"`
	Factory   objects.Address `json:"factory"`
	Transport objects.Address `json:"transport"`
}

// cacheEntry is one deferred action, keyed by the local account id it
// waits for. Written before the creation message is emitted, consumed
// exactly once by the factory's creation callback.
type cacheEntry struct {
	SourceChain  objects.ChainName `json:"source_chain"`
	SourceHolder objects.Address   `json:"source_holder,omitempty"`
	Action       Action            `json:"action"`
}

// Host is the cross-chain host contract.
type Host struct {
	runtime.NoReply
}

// Contract returns a host constructor for runtime code registration.
func Contract() runtime.Contract {
	return &Host{}
}

// Instantiate stores the initial configuration. The instantiator
// becomes the admin.
func (h *Host) Instantiate(ctx context.Context, deps runtime.Deps, env runtime.Env, info runtime.MsgInfo, msg []byte) (runtime.Response, error) {
	var init InstantiateMsg
	if err := json.Unmarshal(msg, &init); err != nil {
		return runtime.Response{}, fmt.Errorf("unmarshal instantiate msg: %w", err)
	}
	if init.Registry == "" || init.Factory == "" || init.Transport == "" {
		return runtime.Response{}, fmt.Errorf("host requires registry, factory, and transport addresses")
	}
	cfg := Config{
		Admin:     info.Sender,
		Registry:  init.Registry,
		Factory:   init.Factory,
		Transport: init.Transport,
	}
	if err := saveConfig(deps.Store, cfg); err != nil {
		return runtime.Response{}, err
	}
	return runtime.NewResponse().AddAttribute("action", "instantiate"), nil
}

// Execute dispatches a host call.
func (h *Host) Execute(ctx context.Context, deps runtime.Deps, env runtime.Env, info runtime.MsgInfo, msg []byte) (runtime.Response, error) {
	var exec ExecuteMsg
	if err := json.Unmarshal(msg, &exec); err != nil {
		return runtime.Response{}, fmt.Errorf("unmarshal execute msg: %w", err)
	}
	cfg, err := loadConfig(deps.Store)
	if err != nil {
		return runtime.Response{}, err
	}
	switch {
	case exec.ReceivePacket != nil:
		return h.receivePacket(ctx, deps, env, cfg, info, *exec.ReceivePacket)
	case exec.AccountCreated != nil:
		return h.accountCreated(ctx, deps, cfg, info, *exec.AccountCreated)
	case exec.UpdateConfig != nil:
		return h.updateConfig(deps, cfg, info, *exec.UpdateConfig)
	default:
		return runtime.Response{}, fmt.Errorf("empty host execute msg")
	}
}

// receivePacket handles one authenticated inbound packet. Adapters are
// singletons and route without an account; everything else resolves the
// local account, dispatching directly when it exists and deferring
// behind a creation otherwise.
func (h *Host) receivePacket(ctx context.Context, deps runtime.Deps, env runtime.Env, cfg Config, info runtime.MsgInfo, msg ReceivePacketMsg) (runtime.Response, error) {
	if info.Sender != cfg.Transport {
		return runtime.Response{}, errors.New(errors.CodeUnauthorized,
			"only the transport may deliver packets")
	}
	if err := msg.SourceChain.Validate(); err != nil {
		return runtime.Response{}, err
	}
	act := msg.Packet.Action
	if err := act.Validate(); err != nil {
		return runtime.Response{}, err
	}
	resp := runtime.NewResponse().
		AddAttribute("action", "receive_packet").
		AddAttribute("source_chain", string(msg.SourceChain))

	if act.ModuleAction != nil {
		ref, err := h.resolveTarget(ctx, deps, cfg, act.ModuleAction.Target)
		if err != nil {
			return runtime.Response{}, err
		}
		switch target := ref.(type) {
		case objects.AdapterRef:
			return resp.
				AddAttribute("routed", "adapter").
				AddMessage(runtime.ExecuteMsg(target.Address, act.ModuleAction.Payload)), nil
		case objects.NativeRef, objects.AccountBaseRef:
			return runtime.Response{}, errWrongModuleAction(act.ModuleAction.Target)
		}
		// App and standalone targets fall through to the account path.
	}

	if msg.Packet.AccountID == nil {
		return runtime.Response{}, errors.New(errors.CodeAccountIdNotSpecified,
			"packet action requires a target account id")
	}
	localID := msg.Packet.AccountID.PushChain(msg.SourceChain)
	resp = resp.AddAttribute("account_id", localID.String())

	acct, found, err := h.lookupAccount(ctx, deps, cfg, localID)
	if err != nil {
		return runtime.Response{}, err
	}

	if act.Register != nil {
		if found {
			return resp.AddAttribute("registered", "already"), nil
		}
		create, err := h.createAccountMsg(cfg, localID, env.Contract, nil)
		if err != nil {
			return runtime.Response{}, err
		}
		return resp.AddAttribute("registered", "created").AddMessage(create), nil
	}

	entry := cacheEntry{
		SourceChain:  msg.SourceChain,
		SourceHolder: msg.Packet.SourceHolder,
		Action:       act,
	}
	if found {
		return h.route(ctx, deps, cfg, entry, acct, resp)
	}
	return h.deferAction(deps, env, cfg, localID, entry, resp)
}

// deferAction caches the action under the local account id and kicks
// off the creation, tagging it so the factory calls back here.
func (h *Host) deferAction(deps runtime.Deps, env runtime.Env, cfg Config, localID objects.AccountId, entry cacheEntry, resp runtime.Response) (runtime.Response, error) {
	key := cacheKey(localID)
	if existing, err := deps.Store.Get(key); err != nil {
		return runtime.Response{}, err
	} else if existing != nil {
		return runtime.Response{}, errors.WithMetadata(errors.CodeCreationInFlight,
			fmt.Sprintf("account %s is already being created", localID),
			map[string]string{"AccountId": localID.String()})
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return runtime.Response{}, fmt.Errorf("marshal cache entry: %w", err)
	}
	if err := deps.Store.Set(key, raw); err != nil {
		return runtime.Response{}, err
	}

	notify, err := json.Marshal(ExecuteMsg{AccountCreated: &AccountCreatedMsg{AccountID: localID}})
	if err != nil {
		return runtime.Response{}, fmt.Errorf("marshal creation callback: %w", err)
	}
	create, err := h.createAccountMsg(cfg, localID, env.Contract, notify)
	if err != nil {
		return runtime.Response{}, err
	}
	return resp.AddAttribute("deferred", "true").AddMessage(create), nil
}

// accountCreated is the factory's callback after a deferred creation
// completed. The cached action is read once, deleted, and replayed.
func (h *Host) accountCreated(ctx context.Context, deps runtime.Deps, cfg Config, info runtime.MsgInfo, msg AccountCreatedMsg) (runtime.Response, error) {
	if info.Sender != cfg.Factory {
		return runtime.Response{}, errors.New(errors.CodeUnauthorized,
			"only the factory may report account creation")
	}
	key := cacheKey(msg.AccountID)
	raw, err := deps.Store.Get(key)
	if err != nil {
		return runtime.Response{}, err
	}
	if raw == nil {
		return runtime.Response{}, errors.New(errors.CodeUnexpectedReply,
			fmt.Sprintf("no deferred action cached for account %s", msg.AccountID))
	}
	var entry cacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return runtime.Response{}, fmt.Errorf("unmarshal cache entry: %w", err)
	}
	if err := deps.Store.Delete(key); err != nil {
		return runtime.Response{}, err
	}

	acct, found, err := h.lookupAccount(ctx, deps, cfg, msg.AccountID)
	if err != nil {
		return runtime.Response{}, err
	}
	if !found {
		return runtime.Response{}, fmt.Errorf("account %s reported created but not in the directory", msg.AccountID)
	}
	resp := runtime.NewResponse().
		AddAttribute("action", "replay_deferred").
		AddAttribute("account_id", msg.AccountID.String())
	return h.route(ctx, deps, cfg, entry, acct, resp)
}

// route turns an action into the message hitting the account.
func (h *Host) route(ctx context.Context, deps runtime.Deps, cfg Config, entry cacheEntry, acct registry.AccountResponse, resp runtime.Response) (runtime.Response, error) {
	switch {
	case entry.Action.Dispatch != nil:
		return resp.
			AddAttribute("routed", "dispatch").
			AddMessage(runtime.ExecuteMsg(acct.Controller, entry.Action.Dispatch.Msg)), nil

	case entry.Action.SendAllBack != nil:
		if entry.SourceHolder == "" {
			return runtime.Response{}, fmt.Errorf("send_all_back requires the packet's source holder address")
		}
		raw, err := json.Marshal(controller.ExecuteMsg{
			SendAll: &controller.SendAllMsg{To: entry.SourceHolder},
		})
		if err != nil {
			return runtime.Response{}, fmt.Errorf("marshal send_all msg: %w", err)
		}
		return resp.
			AddAttribute("routed", "send_all_back").
			AddMessage(runtime.ExecuteMsg(acct.Controller, raw)), nil

	case entry.Action.ModuleAction != nil:
		addr, err := h.moduleTarget(ctx, deps, cfg, acct, *entry.Action.ModuleAction)
		if err != nil {
			return runtime.Response{}, err
		}
		return resp.
			AddAttribute("routed", "module_action").
			AddMessage(runtime.ExecuteMsg(addr, entry.Action.ModuleAction.Payload)), nil

	default:
		return runtime.Response{}, errors.New(errors.CodeUnsupportedHostAction,
			"cached action carries no routable effect")
	}
}

// moduleTarget resolves the concrete address a module action hits.
func (h *Host) moduleTarget(ctx context.Context, deps runtime.Deps, cfg Config, acct registry.AccountResponse, ma ModuleActionMsg) (objects.Address, error) {
	ref, err := h.resolveTarget(ctx, deps, cfg, ma.Target)
	if err != nil {
		return "", err
	}
	switch target := ref.(type) {
	case objects.AdapterRef:
		return target.Address, nil
	case objects.AppRef, objects.StandaloneRef:
		return h.installedAddress(ctx, deps, acct.Controller, ma.Target)
	default:
		return "", errWrongModuleAction(ma.Target)
	}
}

// installedAddress finds the per-account instance through the
// controller's module table.
func (h *Host) installedAddress(ctx context.Context, deps runtime.Deps, ctrl objects.Address, target objects.ModuleInfo) (objects.Address, error) {
	query, err := json.Marshal(controller.QueryMsg{
		ModuleAddresses: &controller.ModuleAddressesQuery{IDs: []string{target.ID()}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal module address query: %w", err)
	}
	raw, err := deps.Querier.QueryContract(ctx, ctrl, query)
	if err != nil {
		return "", err
	}
	var found controller.ModuleAddressesResponse
	if err := json.Unmarshal(raw, &found); err != nil {
		return "", fmt.Errorf("unmarshal module address response: %w", err)
	}
	addr, ok := found.Addresses[target.ID()]
	if !ok {
		return "", errors.WithMetadata(errors.CodeMissingModule,
			fmt.Sprintf("module %s is not installed on the target account", target.ID()),
			map[string]string{"Module": target.ID()})
	}
	return addr, nil
}

// resolveTarget asks the registry for the approved reference.
func (h *Host) resolveTarget(ctx context.Context, deps runtime.Deps, cfg Config, target objects.ModuleInfo) (objects.ModuleReference, error) {
	query, err := json.Marshal(registry.QueryMsg{Resolve: &registry.ResolveQuery{Info: target}})
	if err != nil {
		return nil, fmt.Errorf("marshal resolve query: %w", err)
	}
	raw, err := deps.Querier.QueryContract(ctx, cfg.Registry, query)
	if err != nil {
		return nil, err
	}
	var resolved registry.ResolveResponse
	if err := json.Unmarshal(raw, &resolved); err != nil {
		return nil, fmt.Errorf("unmarshal resolve response: %w", err)
	}
	return resolved.DecodeReference()
}

// lookupAccount checks the registry's account directory.
func (h *Host) lookupAccount(ctx context.Context, deps runtime.Deps, cfg Config, id objects.AccountId) (registry.AccountResponse, bool, error) {
	query, err := json.Marshal(registry.QueryMsg{Account: &registry.AccountQuery{AccountID: id}})
	if err != nil {
		return registry.AccountResponse{}, false, fmt.Errorf("marshal account query: %w", err)
	}
	raw, err := deps.Querier.QueryContract(ctx, cfg.Registry, query)
	if err != nil {
		if errors.IsCode(err, errors.CodeAccountNotFound) {
			return registry.AccountResponse{}, false, nil
		}
		return registry.AccountResponse{}, false, err
	}
	var acct registry.AccountResponse
	if err := json.Unmarshal(raw, &acct); err != nil {
		return registry.AccountResponse{}, false, fmt.Errorf("unmarshal account response: %w", err)
	}
	return acct, true, nil
}

// createAccountMsg builds the factory call provisioning the local pair.
// The host owns remote-originated accounts; their actions arrive only
// through packets.
func (h *Host) createAccountMsg(cfg Config, id objects.AccountId, owner objects.Address, notifyMsg json.RawMessage) (runtime.Msg, error) {
	create := factory.CreateAccountMsg{Owner: owner, AccountID: &id}
	if notifyMsg != nil {
		create.Notify = owner
		create.NotifyMsg = notifyMsg
	}
	raw, err := json.Marshal(factory.ExecuteMsg{CreateAccount: &create})
	if err != nil {
		return runtime.Msg{}, fmt.Errorf("marshal create account msg: %w", err)
	}
	return runtime.ExecuteMsg(cfg.Factory, raw), nil
}

func (h *Host) updateConfig(deps runtime.Deps, cfg Config, info runtime.MsgInfo, msg UpdateConfigMsg) (runtime.Response, error) {
	if info.Sender != cfg.Admin {
		return runtime.Response{}, errors.New(errors.CodeUnauthorized,
			"only the admin may update the host config")
	}
	if msg.Transport != nil {
		cfg.Transport = *msg.Transport
	}
	if msg.Factory != nil {
		cfg.Factory = *msg.Factory
	}
	if err := saveConfig(deps.Store, cfg); err != nil {
		return runtime.Response{}, err
	}
	return runtime.NewResponse().AddAttribute("action", "update_config"), nil
}

// Query dispatches a host read.
func (h *Host) Query(ctx context.Context, deps runtime.Deps, env runtime.Env, msg []byte) ([]byte, error) {
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
		return json.Marshal(cfg)
	case query.PendingAction != nil:
		raw, err := deps.Store.Get(cacheKey(query.PendingAction.AccountID))
		if err != nil {
			return nil, err
		}
		if raw == nil {
			return nil, errors.New(errors.CodeNotFound,
				fmt.Sprintf("no deferred action for account %s", query.PendingAction.AccountID))
		}
		var entry cacheEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return nil, fmt.Errorf("unmarshal cache entry: %w", err)
		}
		return json.Marshal(PendingActionResponse{
			SourceChain:  entry.SourceChain,
			SourceHolder: entry.SourceHolder,
			Action:       entry.Action,
		})
	default:
		return nil, fmt.Errorf("empty host query msg")
	}
}

func errWrongModuleAction(target objects.ModuleInfo) error {
	return errors.WithMetadata(errors.CodeWrongModuleAction,
		fmt.Sprintf("module %s cannot be a packet dispatch target", target),
		map[string]string{"Module": target.String()})
}

func cacheKey(id objects.AccountId) []byte {
	return []byte(cachePrefix + id.String())
}

func loadConfig(store kv.Store) (Config, error) {
	raw, err := store.Get([]byte(keyConfig))
	if err != nil {
		return Config{}, err
	}
	if raw == nil {
		return Config{}, fmt.Errorf("host config not initialized")
	}
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal host config: %w", err)
	}
	return cfg, nil
}

func saveConfig(store kv.Store, cfg Config) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal host config: %w", err)
	}
	return store.Set([]byte(keyConfig), raw)
}
