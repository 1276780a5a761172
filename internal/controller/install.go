package controller

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/louisbranch/accord/internal/holder"
	"github.com/louisbranch/accord/internal/objects"
	"github.com/louisbranch/accord/internal/platform/errors"
	"github.com/louisbranch/accord/internal/registry"
	"github.com/louisbranch/accord/internal/runtime"
)

// install resolves each entry through the registry, verifies its
// dependencies against the installed table, and either records the
// module directly (address-backed kinds) or emits a reply-correlated
// instantiate sub-message (code-backed kinds). Dependency checks run
// against the table as it stood before this batch; a batch cannot
// satisfy its own dependencies.
func (c *Controller) install(ctx context.Context, deps runtime.Deps, cfg Config, msg InstallMsg) (runtime.Response, error) {
	if cfg.Holder == "" {
		return runtime.Response{}, fmt.Errorf("cannot install modules before the holder is bound")
	}
	resp := runtime.NewResponse().AddAttribute("action", "install")

	for _, entry := range msg.Modules {
		if err := entry.Info.Validate(); err != nil {
			return runtime.Response{}, err
		}
		moduleID := entry.Info.ID()

		tomb, err := deps.Store.Get(tombKey(moduleID))
		if err != nil {
			return runtime.Response{}, err
		}
		if tomb != nil {
			return runtime.Response{}, errors.WithMetadata(errors.CodeProhibitedReinstall,
				fmt.Sprintf("module %s was uninstalled from account %s and cannot return", moduleID, cfg.AccountID),
				map[string]string{"Module": moduleID})
		}
		if _, found, err := loadModule(deps.Store, moduleID); err != nil {
			return runtime.Response{}, err
		} else if found {
			return runtime.Response{}, errors.WithMetadata(errors.CodeModuleAlreadyInstalled,
				fmt.Sprintf("module %s is already installed on account %s", moduleID, cfg.AccountID),
				map[string]string{"Module": moduleID})
		}

		resolved, err := c.resolveModule(ctx, deps, cfg, entry.Info)
		if err != nil {
			return runtime.Response{}, err
		}
		if err := c.checkDependencies(deps, resolved); err != nil {
			return runtime.Response{}, err
		}

		ref, err := resolved.DecodeReference()
		if err != nil {
			return runtime.Response{}, err
		}
		switch target := ref.(type) {
		case objects.NativeRef:
			resp, err = c.recordInstalled(deps, cfg, resolved.Info, target.Address, resp)
		case objects.AdapterRef:
			resp, err = c.recordInstalled(deps, cfg, resolved.Info, target.Address, resp)
		case objects.AppRef:
			resp, err = c.queueInstantiate(deps, resolved.Info, runtime.CodeID(target.CodeID), entry.InitMsg, resp)
		case objects.StandaloneRef:
			resp, err = c.queueInstantiate(deps, resolved.Info, runtime.CodeID(target.CodeID), entry.InitMsg, resp)
		case objects.AccountBaseRef:
			err = fmt.Errorf("module %s resolves to an account base and cannot be installed", moduleID)
		}
		if err != nil {
			return runtime.Response{}, err
		}
	}
	return resp, nil
}

// resolveModule asks the registry for the approved reference.
func (c *Controller) resolveModule(ctx context.Context, deps runtime.Deps, cfg Config, info objects.ModuleInfo) (registry.ResolveResponse, error) {
	query, err := json.Marshal(registry.QueryMsg{Resolve: &registry.ResolveQuery{Info: info}})
	if err != nil {
		return registry.ResolveResponse{}, fmt.Errorf("marshal resolve query: %w", err)
	}
	raw, err := deps.Querier.QueryContract(ctx, cfg.Registry, query)
	if err != nil {
		return registry.ResolveResponse{}, err
	}
	var resolved registry.ResolveResponse
	if err := json.Unmarshal(raw, &resolved); err != nil {
		return registry.ResolveResponse{}, fmt.Errorf("unmarshal resolve response: %w", err)
	}
	return resolved, nil
}

func (c *Controller) checkDependencies(deps runtime.Deps, resolved registry.ResolveResponse) error {
	for _, dep := range resolved.Dependencies {
		installed, found, err := loadModule(deps.Store, dep.ModuleID)
		if err != nil {
			return err
		}
		if !found {
			return errDependencyNotMet(resolved.Info, dep, "not installed")
		}
		ok, err := dep.SatisfiedBy(installed.Info.Version)
		if err != nil {
			return err
		}
		if !ok {
			return errDependencyNotMet(resolved.Info, dep,
				fmt.Sprintf("installed version %s is too old", installed.Info.Version))
		}
	}
	return nil
}

// recordInstalled handles address-backed kinds: no instantiation, the
// shared contract address goes straight into the table and onto the
// holder whitelist.
func (c *Controller) recordInstalled(deps runtime.Deps, cfg Config, info objects.ModuleInfo, addr objects.Address, resp runtime.Response) (runtime.Response, error) {
	if err := saveModule(deps.Store, InstalledModule{Info: info, Address: addr}); err != nil {
		return runtime.Response{}, err
	}
	resp = resp.
		AddAttribute("module", info.String()).
		AddAttribute("address", string(addr))
	return c.whitelistOnHolder(cfg, addr, resp)
}

// queueInstantiate handles code-backed kinds: the module address is not
// known until the instantiate reply arrives.
func (c *Controller) queueInstantiate(deps runtime.Deps, info objects.ModuleInfo, codeID runtime.CodeID, initMsg json.RawMessage, resp runtime.Response) (runtime.Response, error) {
	replyID, err := nextReplyID(deps.Store)
	if err != nil {
		return runtime.Response{}, err
	}
	pending, err := json.Marshal(pendingInstall{Info: info})
	if err != nil {
		return runtime.Response{}, fmt.Errorf("marshal pending install: %w", err)
	}
	if err := deps.Store.Set(pendingKey(replyID), pending); err != nil {
		return runtime.Response{}, err
	}
	sub := runtime.ReplyOnSuccess(replyID, runtime.InstantiateMsg(codeID, initMsg, info.String()))
	return resp.AddSubMsg(sub).AddAttribute("module", info.String()), nil
}

// uninstall removes the module and leaves a tombstone so the same id can
// never be installed again on this account.
func (c *Controller) uninstall(deps runtime.Deps, cfg Config, msg UninstallMsg) (runtime.Response, error) {
	installed, found, err := loadModule(deps.Store, msg.ModuleID)
	if err != nil {
		return runtime.Response{}, err
	}
	if !found {
		return runtime.Response{}, errMissingModule(msg.ModuleID, cfg.AccountID)
	}
	if err := deps.Store.Delete(modKey(msg.ModuleID)); err != nil {
		return runtime.Response{}, err
	}
	if err := deps.Store.Set(tombKey(msg.ModuleID), []byte{1}); err != nil {
		return runtime.Response{}, err
	}

	resp := runtime.NewResponse().
		AddAttribute("action", "uninstall").
		AddAttribute("module", msg.ModuleID)
	if cfg.Holder == "" {
		return resp, nil
	}
	raw, err := json.Marshal(holderRemoveCaller(installed.Address))
	if err != nil {
		return runtime.Response{}, err
	}
	return resp.AddMessage(runtime.ExecuteMsg(cfg.Holder, raw)), nil
}

func holderRemoveCaller(addr objects.Address) holder.ExecuteMsg {
	return holder.ExecuteMsg{RemoveCaller: &holder.RemoveCallerMsg{Address: addr}}
}

func errDependencyNotMet(info objects.ModuleInfo, dep objects.Dependency, reason string) error {
	return errors.WithMetadata(errors.CodeDependencyNotMet,
		fmt.Sprintf("module %s requires %s (%s)", info, dep.ModuleID, reason),
		map[string]string{
			"Module":     info.String(),
			"Dependency": dep.ModuleID,
			"MinVersion": dep.MinVersion,
		})
}
