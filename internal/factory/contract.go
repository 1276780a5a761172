// Package factory implements account creation: a two-phase,
// reply-correlated protocol that instantiates a controller, then an
// asset-holder that trusts it, then binds the pair and records it in
// the registry's account directory. Either phase failing aborts the
// whole creation; no partially created account is ever visible.
package factory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/louisbranch/accord/internal/controller"
	"github.com/louisbranch/accord/internal/kv"
	"github.com/louisbranch/accord/internal/objects"
	"github.com/louisbranch/accord/internal/platform/errors"
	"github.com/louisbranch/accord/internal/registry"
	"github.com/louisbranch/accord/internal/runtime"
)

// Reply ids for the two creation phases.
const (
	replyCreateController uint64 = 1
	replyCreateHolder     uint64 = 2
)

const (
	keyConfig  = "config"
	keyPending = "pending"
)

// Config is the factory's persisted configuration. Mutable only by the
// registry's admin.
type Config struct {
	Registry objects.Address `json:"registry"`
	// NameService is handed to modules that resolve human-readable
	// asset names; the factory itself never calls it.
	NameService objects.Address `json:"name_service,omitempty"`
	// AccountBase selects the registry record resolving to the
	// controller and holder code pair.
	AccountBase objects.ModuleInfo `json:"account_base"`
	CreationFee objects.Coin       `json:"creation_fee"`
	// Host may create accounts with explicit remote ids.
	Host    objects.Address `json:"host,omitempty"`
	NextSeq uint32          `json:"next_seq"`
}

// pendingCreation is persisted across the two reply boundaries of one
// creation. The runtime dispatches replies within the same transaction,
// so at most one creation is ever in flight.
type pendingCreation struct {
	AccountID  objects.AccountId `json:"account_id"`
	Owner      objects.Address   `json:"owner"`
	Controller objects.Address   `json:"controller,omitempty"`
	HolderCode runtime.CodeID    `json:"holder_code"`
	Notify     objects.Address   `json:"notify,omitempty"`
	NotifyMsg  json.RawMessage   `json:"notify_msg,omitempty"`
}

// InstantiateMsg configures a fresh factory.
type InstantiateMsg struct {
	Registry    objects.Address    `json:"registry"`
	NameService objects.Address    `json:"name_service,omitempty"`
	AccountBase objects.ModuleInfo `json:"account_base"`
	CreationFee objects.Coin       `json:"creation_fee"`
}

// ExecuteMsg is the closed union of factory calls.
type ExecuteMsg struct {
	CreateAccount *CreateAccountMsg `json:"create_account,omitempty"`
	UpdateConfig  *UpdateConfigMsg  `json:"update_config,omitempty"`
}

// CreateAccountMsg starts a creation. AccountID is only accepted from
// the configured host (remote provenance); local callers get the next
// sequence. Notify, when set, receives NotifyMsg once the pair is bound.
type CreateAccountMsg struct {
	Owner     objects.Address    `json:"owner"`
	AccountID *objects.AccountId `json:"account_id,omitempty"`
	Notify    objects.Address    `json:"notify,omitempty"`
	NotifyMsg json.RawMessage    `json:"notify_msg,omitempty"`
}

// UpdateConfigMsg changes factory settings. Registry admin only.
type UpdateConfigMsg struct {
	CreationFee *objects.Coin       `json:"creation_fee,omitempty"`
	Host        *objects.Address    `json:"host,omitempty"`
	NameService *objects.Address    `json:"name_service,omitempty"`
	AccountBase *objects.ModuleInfo `json:"account_base,omitempty"`
}

// QueryMsg is the closed union of factory reads.
type QueryMsg struct {
	Config *ConfigQuery `json:"config,omitempty"`
}

// ConfigQuery requests the factory configuration.
type ConfigQuery struct{}

// CreateAccountResponse is the data payload of a completed creation.
type CreateAccountResponse struct {
	AccountID  objects.AccountId `json:"account_id"`
	Controller objects.Address   `json:"controller"`
	Holder     objects.Address   `json:"holder"`
}

// Factory is the account factory contract.
type Factory struct{}

// Contract returns a factory constructor for runtime code registration.
func Contract() runtime.Contract {
	return &Factory{}
}

// Instantiate stores the initial configuration.
func (f *Factory) Instantiate(ctx context.Context, deps runtime.Deps, env runtime.Env, info runtime.MsgInfo, msg []byte) (runtime.Response, error) {
	var init InstantiateMsg
	if err := json.Unmarshal(msg, &init); err != nil {
		return runtime.Response{}, fmt.Errorf("unmarshal instantiate msg: %w", err)
	}
	if init.Registry == "" {
		return runtime.Response{}, fmt.Errorf("factory requires a registry address")
	}
	if err := init.AccountBase.Validate(); err != nil {
		return runtime.Response{}, fmt.Errorf("account base selector: %w", err)
	}
	cfg := Config{
		Registry:    init.Registry,
		NameService: init.NameService,
		AccountBase: init.AccountBase,
		CreationFee: init.CreationFee,
	}
	if err := saveConfig(deps.Store, cfg); err != nil {
		return runtime.Response{}, err
	}
	return runtime.NewResponse().AddAttribute("action", "instantiate"), nil
}

// Execute dispatches a factory call.
func (f *Factory) Execute(ctx context.Context, deps runtime.Deps, env runtime.Env, info runtime.MsgInfo, msg []byte) (runtime.Response, error) {
	var exec ExecuteMsg
	if err := json.Unmarshal(msg, &exec); err != nil {
		return runtime.Response{}, fmt.Errorf("unmarshal execute msg: %w", err)
	}
	switch {
	case exec.CreateAccount != nil:
		return f.createAccount(ctx, deps, info, *exec.CreateAccount)
	case exec.UpdateConfig != nil:
		return f.updateConfig(ctx, deps, info, *exec.UpdateConfig)
	default:
		return runtime.Response{}, fmt.Errorf("empty factory execute msg")
	}
}

// createAccount validates the fee, allocates the account id, and fires
// the first creation phase.
func (f *Factory) createAccount(ctx context.Context, deps runtime.Deps, info runtime.MsgInfo, msg CreateAccountMsg) (runtime.Response, error) {
	cfg, err := loadConfig(deps.Store)
	if err != nil {
		return runtime.Response{}, err
	}
	if msg.Owner == "" {
		return runtime.Response{}, fmt.Errorf("account owner is required")
	}

	if cfg.CreationFee.Amount > 0 {
		paid := objects.CoinsAmountOf(info.Funds, cfg.CreationFee.Denom)
		if paid < cfg.CreationFee.Amount {
			return runtime.Response{}, errors.WithMetadata(errors.CodeCreationFeeInvalid,
				fmt.Sprintf("creation requires %s, got %d%s", cfg.CreationFee, paid, cfg.CreationFee.Denom),
				map[string]string{"Required": cfg.CreationFee.String()})
		}
	}

	if raw, err := deps.Store.Get([]byte(keyPending)); err != nil {
		return runtime.Response{}, err
	} else if raw != nil {
		return runtime.Response{}, errors.New(errors.CodeCreationInFlight,
			"another account creation is already in flight")
	}

	var id objects.AccountId
	if msg.AccountID != nil {
		if cfg.Host == "" || info.Sender != cfg.Host {
			return runtime.Response{}, errors.New(errors.CodeUnauthorized,
				"only the host may create accounts with explicit ids")
		}
		id = *msg.AccountID
	} else {
		cfg.NextSeq++
		id = objects.LocalAccountId(cfg.NextSeq)
		if err := saveConfig(deps.Store, cfg); err != nil {
			return runtime.Response{}, err
		}
	}

	base, err := f.resolveAccountBase(ctx, deps, cfg)
	if err != nil {
		return runtime.Response{}, err
	}

	pending := pendingCreation{
		AccountID:  id,
		Owner:      msg.Owner,
		HolderCode: runtime.CodeID(base.HolderCodeID),
		Notify:     msg.Notify,
		NotifyMsg:  msg.NotifyMsg,
	}
	if err := savePending(deps.Store, pending); err != nil {
		return runtime.Response{}, err
	}

	ctrlInit, err := json.Marshal(controller.InstantiateMsg{
		AccountID: id,
		Owner:     msg.Owner,
		Registry:  cfg.Registry,
	})
	if err != nil {
		return runtime.Response{}, fmt.Errorf("marshal controller init: %w", err)
	}
	sub := runtime.ReplyOnAlways(replyCreateController,
		runtime.InstantiateMsg(runtime.CodeID(base.ControllerCodeID), ctrlInit, "controller "+id.String()))
	return runtime.NewResponse().
		AddAttribute("action", "create_account").
		AddAttribute("account_id", id.String()).
		AddSubMsg(sub), nil
}

// resolveAccountBase looks up the approved controller/holder code pair.
func (f *Factory) resolveAccountBase(ctx context.Context, deps runtime.Deps, cfg Config) (objects.AccountBaseRef, error) {
	query, err := json.Marshal(registry.QueryMsg{Resolve: &registry.ResolveQuery{Info: cfg.AccountBase}})
	if err != nil {
		return objects.AccountBaseRef{}, fmt.Errorf("marshal resolve query: %w", err)
	}
	raw, err := deps.Querier.QueryContract(ctx, cfg.Registry, query)
	if err != nil {
		return objects.AccountBaseRef{}, err
	}
	var resolved registry.ResolveResponse
	if err := json.Unmarshal(raw, &resolved); err != nil {
		return objects.AccountBaseRef{}, fmt.Errorf("unmarshal resolve response: %w", err)
	}
	ref, err := resolved.DecodeReference()
	if err != nil {
		return objects.AccountBaseRef{}, err
	}
	base, ok := ref.(objects.AccountBaseRef)
	if !ok {
		return objects.AccountBaseRef{}, fmt.Errorf("module %s does not resolve to an account base", cfg.AccountBase)
	}
	return base, nil
}

func (f *Factory) updateConfig(ctx context.Context, deps runtime.Deps, info runtime.MsgInfo, msg UpdateConfigMsg) (runtime.Response, error) {
	cfg, err := loadConfig(deps.Store)
	if err != nil {
		return runtime.Response{}, err
	}
	admin, err := f.registryAdmin(ctx, deps, cfg)
	if err != nil {
		return runtime.Response{}, err
	}
	if info.Sender != admin {
		return runtime.Response{}, errors.New(errors.CodeUnauthorized,
			"only the registry admin may update the factory config")
	}
	if msg.CreationFee != nil {
		cfg.CreationFee = *msg.CreationFee
	}
	if msg.Host != nil {
		cfg.Host = *msg.Host
	}
	if msg.NameService != nil {
		cfg.NameService = *msg.NameService
	}
	if msg.AccountBase != nil {
		if err := msg.AccountBase.Validate(); err != nil {
			return runtime.Response{}, err
		}
		cfg.AccountBase = *msg.AccountBase
	}
	if err := saveConfig(deps.Store, cfg); err != nil {
		return runtime.Response{}, err
	}
	return runtime.NewResponse().AddAttribute("action", "update_config"), nil
}

func (f *Factory) registryAdmin(ctx context.Context, deps runtime.Deps, cfg Config) (objects.Address, error) {
	query, err := json.Marshal(registry.QueryMsg{Config: &registry.ConfigQuery{}})
	if err != nil {
		return "", fmt.Errorf("marshal config query: %w", err)
	}
	raw, err := deps.Querier.QueryContract(ctx, cfg.Registry, query)
	if err != nil {
		return "", err
	}
	var resp registry.ConfigResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("unmarshal registry config: %w", err)
	}
	return resp.Admin, nil
}

// Query dispatches a factory read.
func (f *Factory) Query(ctx context.Context, deps runtime.Deps, env runtime.Env, msg []byte) ([]byte, error) {
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
	default:
		return nil, fmt.Errorf("empty factory query msg")
	}
}

func loadConfig(store kv.Store) (Config, error) {
	raw, err := store.Get([]byte(keyConfig))
	if err != nil {
		return Config{}, err
	}
	if raw == nil {
		return Config{}, fmt.Errorf("factory config not initialized")
	}
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal factory config: %w", err)
	}
	return cfg, nil
}

func saveConfig(store kv.Store, cfg Config) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal factory config: %w", err)
	}
	return store.Set([]byte(keyConfig), raw)
}

func loadPending(store kv.Store) (pendingCreation, bool, error) {
	raw, err := store.Get([]byte(keyPending))
	if err != nil {
		return pendingCreation{}, false, err
	}
	if raw == nil {
		return pendingCreation{}, false, nil
	}
	var pending pendingCreation
	if err := json.Unmarshal(raw, &pending); err != nil {
		return pendingCreation{}, false, fmt.Errorf("unmarshal pending creation: %w", err)
	}
	return pending, true, nil
}

func savePending(store kv.Store, pending pendingCreation) error {
	raw, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("marshal pending creation: %w", err)
	}
	return store.Set([]byte(keyPending), raw)
}
