package runtime

import (
	"context"
	"time"

	"github.com/louisbranch/accord/internal/kv"
	"github.com/louisbranch/accord/internal/objects"
)

// CodeID identifies stored contract code.
type CodeID uint64

// Env describes the invocation environment handed to every entrypoint.
type Env struct {
	Chain    objects.ChainName
	Contract objects.Address
	Height   uint64
	Time     time.Time
}

// MsgInfo carries the caller identity and attached funds. Funds have
// already been credited to the contract when the entrypoint runs.
type MsgInfo struct {
	Sender objects.Address
	Funds  []objects.Coin
}

// Deps gives an entrypoint access to its own state and read-only views
// of the rest of the chain. Store is namespaced per contract.
type Deps struct {
	Store   kv.Store
	Querier Querier
}

// Querier answers synchronous read-only queries during an invocation.
// Queries see the state of the current write layer, including the
// invocation's own uncommitted writes.
type Querier interface {
	// QueryContract runs a contract's Query entrypoint.
	QueryContract(ctx context.Context, contract objects.Address, msg []byte) ([]byte, error)
	// QueryBalance returns the balance a contract holds in denom.
	QueryBalance(ctx context.Context, addr objects.Address, denom string) (objects.Coin, error)
	// QueryAllBalances returns every denomination addr holds.
	QueryAllBalances(ctx context.Context, addr objects.Address) ([]objects.Coin, error)
}

// Contract is the set of entrypoints every deployed contract implements.
// Implementations hold no mutable state of their own; all state lives in
// Deps.Store so an instance can be rebuilt from its code id at any time.
type Contract interface {
	Instantiate(ctx context.Context, deps Deps, env Env, info MsgInfo, msg []byte) (Response, error)
	Execute(ctx context.Context, deps Deps, env Env, info MsgInfo, msg []byte) (Response, error)
	Reply(ctx context.Context, deps Deps, env Env, reply Reply) (Response, error)
	Query(ctx context.Context, deps Deps, env Env, msg []byte) ([]byte, error)
}

// NoReply is embedded by contracts that never emit reply-correlated
// sub-messages.
type NoReply struct{}

// Reply rejects any reply delivery.
func (NoReply) Reply(ctx context.Context, deps Deps, env Env, reply Reply) (Response, error) {
	return Response{}, errUnexpectedReply(reply.ID)
}
