// Package registry implements the module catalog: namespace ownership,
// the register/approve/reject state machine, version resolution, and the
// account directory mapping account ids to their base address pairs.
package registry

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/louisbranch/accord/internal/objects"
	"github.com/louisbranch/accord/internal/platform/errors"
	"github.com/louisbranch/accord/internal/runtime"
)

// Registry is the catalog contract. All state lives in contract storage;
// the struct itself is stateless.
type Registry struct {
	runtime.NoReply
}

// Contract returns a registry constructor for runtime code registration.
func Contract() runtime.Contract {
	return &Registry{}
}

// Instantiate stores the initial configuration.
func (r *Registry) Instantiate(ctx context.Context, deps runtime.Deps, env runtime.Env, info runtime.MsgInfo, msg []byte) (runtime.Response, error) {
	var init InstantiateMsg
	if len(msg) > 0 {
		if err := json.Unmarshal(msg, &init); err != nil {
			return runtime.Response{}, fmt.Errorf("unmarshal instantiate msg: %w", err)
		}
	}
	admin := init.Admin
	if admin == "" {
		admin = info.Sender
	}
	if err := saveConfig(deps.Store, Config{Admin: admin}); err != nil {
		return runtime.Response{}, err
	}
	return runtime.NewResponse().AddAttribute("action", "instantiate"), nil
}

// Execute dispatches a registry mutation.
func (r *Registry) Execute(ctx context.Context, deps runtime.Deps, env runtime.Env, info runtime.MsgInfo, msg []byte) (runtime.Response, error) {
	var exec ExecuteMsg
	if err := json.Unmarshal(msg, &exec); err != nil {
		return runtime.Response{}, fmt.Errorf("unmarshal execute msg: %w", err)
	}

	switch {
	case exec.ClaimNamespace != nil:
		return r.claimNamespace(deps, info, *exec.ClaimNamespace)
	case exec.ReleaseNamespace != nil:
		return r.releaseNamespace(deps, info, *exec.ReleaseNamespace)
	case exec.Register != nil:
		return r.register(deps, info, *exec.Register)
	case exec.Approve != nil:
		return r.approve(deps, info, *exec.Approve)
	case exec.Reject != nil:
		return r.reject(deps, info, *exec.Reject)
	case exec.RegisterAccount != nil:
		return r.registerAccount(deps, info, *exec.RegisterAccount)
	case exec.UpdateConfig != nil:
		return r.updateConfig(deps, info, *exec.UpdateConfig)
	default:
		return runtime.Response{}, fmt.Errorf("empty registry execute msg")
	}
}

func (r *Registry) claimNamespace(deps runtime.Deps, info runtime.MsgInfo, msg ClaimNamespaceMsg) (runtime.Response, error) {
	if msg.Namespace == "" {
		return runtime.Response{}, fmt.Errorf("namespace is required")
	}
	owner, claimed, err := loadNamespaceOwner(deps.Store, msg.Namespace)
	if err != nil {
		return runtime.Response{}, err
	}
	if claimed {
		if owner == info.Sender {
			return runtime.NewResponse().AddAttribute("action", "claim_namespace"), nil
		}
		return runtime.Response{}, errors.WithMetadata(errors.CodeNamespaceAlreadyClaimed,
			fmt.Sprintf("namespace %s is owned by %s", msg.Namespace, owner),
			map[string]string{"Namespace": msg.Namespace})
	}
	if err := deps.Store.Set(nsKey(msg.Namespace), []byte(info.Sender)); err != nil {
		return runtime.Response{}, err
	}
	return runtime.NewResponse().
		AddAttribute("action", "claim_namespace").
		AddAttribute("namespace", msg.Namespace), nil
}

func (r *Registry) releaseNamespace(deps runtime.Deps, info runtime.MsgInfo, msg ReleaseNamespaceMsg) (runtime.Response, error) {
	cfg, err := loadConfig(deps.Store)
	if err != nil {
		return runtime.Response{}, err
	}
	owner, claimed, err := loadNamespaceOwner(deps.Store, msg.Namespace)
	if err != nil {
		return runtime.Response{}, err
	}
	if !claimed {
		return runtime.Response{}, errNamespaceNotFound(msg.Namespace)
	}
	if info.Sender != owner && info.Sender != cfg.Admin {
		return runtime.Response{}, errUnauthorized("only the namespace owner or admin may release it")
	}
	if err := deps.Store.Delete(nsKey(msg.Namespace)); err != nil {
		return runtime.Response{}, err
	}
	return runtime.NewResponse().
		AddAttribute("action", "release_namespace").
		AddAttribute("namespace", msg.Namespace), nil
}

func (r *Registry) register(deps runtime.Deps, info runtime.MsgInfo, msg RegisterMsg) (runtime.Response, error) {
	if err := msg.Info.Validate(); err != nil {
		return runtime.Response{}, err
	}
	if msg.Info.IsLatest() {
		return runtime.Response{}, fmt.Errorf("register requires an exact version, not %q", objects.VersionLatest)
	}
	if _, err := objects.UnmarshalReference(msg.Reference); err != nil {
		return runtime.Response{}, err
	}

	owner, claimed, err := loadNamespaceOwner(deps.Store, msg.Info.Namespace)
	if err != nil {
		return runtime.Response{}, err
	}
	if !claimed {
		return runtime.Response{}, errNamespaceNotFound(msg.Info.Namespace)
	}
	if owner != info.Sender {
		return runtime.Response{}, errUnauthorized(
			fmt.Sprintf("namespace %s is owned by another account", msg.Info.Namespace))
	}

	strategy := msg.Strategy
	if strategy == "" {
		strategy = DeployTry
	}

	existing, found, err := loadRecord(deps.Store, msg.Info)
	if err != nil {
		return runtime.Response{}, err
	}
	if found {
		done, resp, err := applyStrategy(msg, existing, strategy)
		if err != nil {
			return runtime.Response{}, err
		}
		if done {
			return resp, nil
		}
	}

	seq := existing.Seq
	if !found {
		seq, err = nextModSeq(deps.Store)
		if err != nil {
			return runtime.Response{}, err
		}
	}
	rec := Record{
		Info:         msg.Info,
		Reference:    msg.Reference,
		Dependencies: msg.Dependencies,
		Status:       StatusPending,
		Seq:          seq,
	}
	if err := saveRecord(deps.Store, rec); err != nil {
		return runtime.Response{}, err
	}
	return runtime.NewResponse().
		AddAttribute("action", "register").
		AddAttribute("module", msg.Info.String()), nil
}

// applyStrategy decides what register does with an existing record:
// done=true short-circuits with an idempotent success, done=false means
// proceed with the overwrite.
func applyStrategy(msg RegisterMsg, existing Record, strategy DeployStrategy) (bool, runtime.Response, error) {
	if existing.Status == StatusApproved {
		return false, runtime.Response{}, errors.WithMetadata(errors.CodeModuleAlreadyApproved,
			fmt.Sprintf("module %s is approved and locked", msg.Info),
			map[string]string{"Module": msg.Info.String()})
	}

	switch strategy {
	case DeployForce:
		return false, runtime.Response{}, nil
	case DeployTry:
		if existing.Status == StatusPending && sameReference(existing.Reference, msg.Reference) {
			resp := runtime.NewResponse().
				AddAttribute("action", "register").
				AddAttribute("module", msg.Info.String()).
				AddAttribute("unchanged", "true")
			return true, resp, nil
		}
		return false, runtime.Response{}, errAlreadyRegistered(msg.Info)
	case DeployError:
		return false, runtime.Response{}, errAlreadyRegistered(msg.Info)
	default:
		return false, runtime.Response{}, fmt.Errorf("unknown deploy strategy %q", strategy)
	}
}

func sameReference(a, b json.RawMessage) bool {
	refA, errA := objects.UnmarshalReference(a)
	refB, errB := objects.UnmarshalReference(b)
	if errA != nil || errB != nil {
		return false
	}
	return objects.ReferenceEqual(refA, refB)
}

func (r *Registry) approve(deps runtime.Deps, info runtime.MsgInfo, msg ApproveMsg) (runtime.Response, error) {
	if err := r.requireAdmin(deps, info); err != nil {
		return runtime.Response{}, err
	}
	resp := runtime.NewResponse().AddAttribute("action", "approve")
	for _, target := range msg.Modules {
		rec, found, err := loadRecord(deps.Store, target)
		if err != nil {
			return runtime.Response{}, err
		}
		if !found || rec.Status == StatusRejected {
			return runtime.Response{}, errModuleNotFound(target)
		}
		if rec.Status == StatusApproved {
			return runtime.Response{}, errors.WithMetadata(errors.CodeModuleAlreadyApproved,
				fmt.Sprintf("module %s is already approved", target),
				map[string]string{"Module": target.String()})
		}
		rec.Status = StatusApproved
		if err := saveRecord(deps.Store, rec); err != nil {
			return runtime.Response{}, err
		}
		resp = resp.AddAttribute("module", target.String())
	}
	return resp, nil
}

func (r *Registry) reject(deps runtime.Deps, info runtime.MsgInfo, msg RejectMsg) (runtime.Response, error) {
	if err := r.requireAdmin(deps, info); err != nil {
		return runtime.Response{}, err
	}
	resp := runtime.NewResponse().AddAttribute("action", "reject")
	for _, target := range msg.Modules {
		rec, found, err := loadRecord(deps.Store, target)
		if err != nil {
			return runtime.Response{}, err
		}
		if !found {
			return runtime.Response{}, errModuleNotFound(target)
		}
		if rec.Status == StatusApproved {
			return runtime.Response{}, errors.WithMetadata(errors.CodeModuleAlreadyApproved,
				fmt.Sprintf("module %s is approved and cannot be rejected", target),
				map[string]string{"Module": target.String()})
		}
		rec.Status = StatusRejected
		rec.Reference = nil
		rec.Dependencies = nil
		if err := saveRecord(deps.Store, rec); err != nil {
			return runtime.Response{}, err
		}
		resp = resp.AddAttribute("module", target.String())
	}
	return resp, nil
}

func (r *Registry) registerAccount(deps runtime.Deps, info runtime.MsgInfo, msg RegisterAccountMsg) (runtime.Response, error) {
	cfg, err := loadConfig(deps.Store)
	if err != nil {
		return runtime.Response{}, err
	}
	if cfg.Factory == "" || info.Sender != cfg.Factory {
		return runtime.Response{}, errUnauthorized("only the account factory may register accounts")
	}
	if _, exists, err := loadAccount(deps.Store, msg.AccountID); err != nil {
		return runtime.Response{}, err
	} else if exists {
		return runtime.Response{}, fmt.Errorf("account %s is already registered", msg.AccountID)
	}
	rec := accountRecord{Controller: msg.Controller, Holder: msg.Holder}
	if err := saveAccount(deps.Store, msg.AccountID, rec); err != nil {
		return runtime.Response{}, err
	}
	return runtime.NewResponse().
		AddAttribute("action", "register_account").
		AddAttribute("account_id", msg.AccountID.String()), nil
}

func (r *Registry) updateConfig(deps runtime.Deps, info runtime.MsgInfo, msg UpdateConfigMsg) (runtime.Response, error) {
	cfg, err := loadConfig(deps.Store)
	if err != nil {
		return runtime.Response{}, err
	}
	if info.Sender != cfg.Admin {
		return runtime.Response{}, errUnauthorized("only the admin may update the registry config")
	}
	if msg.Admin != nil {
		cfg.Admin = *msg.Admin
	}
	if msg.Factory != nil {
		cfg.Factory = *msg.Factory
	}
	if err := saveConfig(deps.Store, cfg); err != nil {
		return runtime.Response{}, err
	}
	return runtime.NewResponse().AddAttribute("action", "update_config"), nil
}

func (r *Registry) requireAdmin(deps runtime.Deps, info runtime.MsgInfo) error {
	cfg, err := loadConfig(deps.Store)
	if err != nil {
		return err
	}
	if info.Sender != cfg.Admin {
		return errUnauthorized("admin only")
	}
	return nil
}

// Query dispatches a registry read.
func (r *Registry) Query(ctx context.Context, deps runtime.Deps, env runtime.Env, msg []byte) ([]byte, error) {
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
		return json.Marshal(ConfigResponse{Admin: cfg.Admin, Factory: cfg.Factory})
	case query.Resolve != nil:
		return r.resolve(deps, query.Resolve.Info)
	case query.Modules != nil:
		return r.listModules(deps, *query.Modules)
	case query.Namespace != nil:
		owner, claimed, err := loadNamespaceOwner(deps.Store, query.Namespace.Namespace)
		if err != nil {
			return nil, err
		}
		if !claimed {
			return nil, errNamespaceNotFound(query.Namespace.Namespace)
		}
		return json.Marshal(NamespaceResponse{Namespace: query.Namespace.Namespace, Owner: owner})
	case query.Account != nil:
		rec, exists, err := loadAccount(deps.Store, query.Account.AccountID)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, errors.WithMetadata(errors.CodeAccountNotFound,
				fmt.Sprintf("account %s is not registered", query.Account.AccountID),
				map[string]string{"AccountId": query.Account.AccountID.String()})
		}
		return json.Marshal(AccountResponse{Controller: rec.Controller, Holder: rec.Holder})
	default:
		return nil, fmt.Errorf("empty registry query msg")
	}
}

// resolve maps a module selector to its approved reference. Exact
// selectors return that version regardless of newer approvals; latest
// returns the highest approved version.
func (r *Registry) resolve(deps runtime.Deps, info objects.ModuleInfo) ([]byte, error) {
	if err := info.Validate(); err != nil {
		return nil, err
	}

	if !info.IsLatest() {
		rec, found, err := loadRecord(deps.Store, info)
		if err != nil {
			return nil, err
		}
		if !found || rec.Status == StatusRejected {
			return nil, errModuleNotFound(info)
		}
		if rec.Status != StatusApproved {
			return nil, errModuleNotApproved(info)
		}
		return json.Marshal(ResolveResponse{
			Info:         rec.Info,
			Reference:    rec.Reference,
			Dependencies: rec.Dependencies,
		})
	}

	var (
		best        Record
		bestVersion objects.Version
		anyRecord   bool
		anyApproved bool
	)
	err := deps.Store.Iterate(modVersionsPrefix(info.Namespace, info.Name), func(key, value []byte) (bool, error) {
		anyRecord = true
		var rec Record
		if err := json.Unmarshal(value, &rec); err != nil {
			return false, fmt.Errorf("unmarshal record at %q: %w", key, err)
		}
		if rec.Status != StatusApproved {
			return true, nil
		}
		version, err := objects.ParseVersion(rec.Info.Version)
		if err != nil {
			return false, err
		}
		if !anyApproved || version.Compare(bestVersion) > 0 {
			best = rec
			bestVersion = version
			anyApproved = true
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if !anyRecord {
		return nil, errModuleNotFound(info)
	}
	if !anyApproved {
		return nil, errModuleNotApproved(info)
	}
	return json.Marshal(ResolveResponse{
		Info:         best.Info,
		Reference:    best.Reference,
		Dependencies: best.Dependencies,
	})
}

func errUnauthorized(message string) error {
	return errors.New(errors.CodeUnauthorized, message)
}

func errNamespaceNotFound(namespace string) error {
	return errors.WithMetadata(errors.CodeNamespaceNotFound,
		fmt.Sprintf("namespace %s is not claimed", namespace),
		map[string]string{"Namespace": namespace})
}

func errModuleNotFound(info objects.ModuleInfo) error {
	return errors.WithMetadata(errors.CodeModuleNotFound,
		fmt.Sprintf("module %s is not registered", info),
		map[string]string{"Module": info.String()})
}

func errModuleNotApproved(info objects.ModuleInfo) error {
	return errors.WithMetadata(errors.CodeModuleNotApproved,
		fmt.Sprintf("module %s is not approved", info),
		map[string]string{"Module": info.String()})
}

func errAlreadyRegistered(info objects.ModuleInfo) error {
	return errors.WithMetadata(errors.CodeModuleAlreadyRegistered,
		fmt.Sprintf("module %s is already registered", info),
		map[string]string{"Module": info.String()})
}
