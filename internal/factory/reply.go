package factory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/louisbranch/accord/internal/controller"
	"github.com/louisbranch/accord/internal/holder"
	"github.com/louisbranch/accord/internal/platform/errors"
	"github.com/louisbranch/accord/internal/registry"
	"github.com/louisbranch/accord/internal/runtime"
)

// Reply advances the creation state machine. Phase one's reply carries
// the controller address the holder needs as its trusted caller; phase
// two's reply binds the pair, registers it in the account directory,
// and fires the optional notification.
func (f *Factory) Reply(ctx context.Context, deps runtime.Deps, env runtime.Env, reply runtime.Reply) (runtime.Response, error) {
	pending, found, err := loadPending(deps.Store)
	if err != nil {
		return runtime.Response{}, err
	}
	if !found {
		return runtime.Response{}, errors.WithMetadata(errors.CodeUnexpectedReply,
			fmt.Sprintf("no creation in flight for reply id %d", reply.ID),
			map[string]string{"ID": fmt.Sprintf("%d", reply.ID)})
	}

	switch reply.ID {
	case replyCreateController:
		return f.onControllerCreated(deps, pending, reply)
	case replyCreateHolder:
		return f.onHolderCreated(deps, pending, reply)
	default:
		return runtime.Response{}, errors.WithMetadata(errors.CodeUnexpectedReply,
			fmt.Sprintf("unknown reply id %d", reply.ID),
			map[string]string{"ID": fmt.Sprintf("%d", reply.ID)})
	}
}

func (f *Factory) onControllerCreated(deps runtime.Deps, pending pendingCreation, reply runtime.Reply) (runtime.Response, error) {
	if !reply.Succeeded() {
		if err := deps.Store.Delete([]byte(keyPending)); err != nil {
			return runtime.Response{}, err
		}
		return runtime.Response{}, errCreationStep("controller", pending, reply.Err)
	}

	pending.Controller = reply.Ok.ContractAddress
	if err := savePending(deps.Store, pending); err != nil {
		return runtime.Response{}, err
	}

	holdInit, err := json.Marshal(holder.InstantiateMsg{
		Controller: pending.Controller,
		AccountID:  pending.AccountID,
	})
	if err != nil {
		return runtime.Response{}, fmt.Errorf("marshal holder init: %w", err)
	}
	sub := runtime.ReplyOnAlways(replyCreateHolder,
		runtime.InstantiateMsg(pending.HolderCode, holdInit, "holder "+pending.AccountID.String()))
	return runtime.NewResponse().
		AddAttribute("controller", string(pending.Controller)).
		AddSubMsg(sub), nil
}

func (f *Factory) onHolderCreated(deps runtime.Deps, pending pendingCreation, reply runtime.Reply) (runtime.Response, error) {
	if err := deps.Store.Delete([]byte(keyPending)); err != nil {
		return runtime.Response{}, err
	}
	if !reply.Succeeded() {
		return runtime.Response{}, errCreationStep("asset_holder", pending, reply.Err)
	}
	holderAddr := reply.Ok.ContractAddress

	cfg, err := loadConfig(deps.Store)
	if err != nil {
		return runtime.Response{}, err
	}

	bind, err := json.Marshal(controller.ExecuteMsg{
		UpdateHolder: &controller.UpdateHolderMsg{Holder: holderAddr},
	})
	if err != nil {
		return runtime.Response{}, fmt.Errorf("marshal bind msg: %w", err)
	}
	record, err := json.Marshal(registry.ExecuteMsg{
		RegisterAccount: &registry.RegisterAccountMsg{
			AccountID:  pending.AccountID,
			Controller: pending.Controller,
			Holder:     holderAddr,
		},
	})
	if err != nil {
		return runtime.Response{}, fmt.Errorf("marshal directory msg: %w", err)
	}
	data, err := json.Marshal(CreateAccountResponse{
		AccountID:  pending.AccountID,
		Controller: pending.Controller,
		Holder:     holderAddr,
	})
	if err != nil {
		return runtime.Response{}, fmt.Errorf("marshal creation response: %w", err)
	}

	resp := runtime.NewResponse().
		AddAttribute("action", "account_created").
		AddAttribute("account_id", pending.AccountID.String()).
		AddAttribute("holder", string(holderAddr)).
		AddMessage(runtime.ExecuteMsg(pending.Controller, bind)).
		AddMessage(runtime.ExecuteMsg(cfg.Registry, record)).
		WithData(data)
	if pending.Notify != "" {
		resp = resp.AddMessage(runtime.ExecuteMsg(pending.Notify, pending.NotifyMsg))
	}
	return resp, nil
}

func errCreationStep(step string, pending pendingCreation, cause string) error {
	return errors.WithMetadata(errors.CodeCreationStepFailed,
		fmt.Sprintf("creating account %s failed at the %s step: %s", pending.AccountID, step, cause),
		map[string]string{"Step": step, "AccountId": pending.AccountID.String()})
}
