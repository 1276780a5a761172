package runtime

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/louisbranch/accord/internal/kv"
	"github.com/louisbranch/accord/internal/objects"
	"github.com/louisbranch/accord/internal/platform/errors"
	"github.com/louisbranch/accord/internal/platform/metrics"
)

const maxCallDepth = 32

// Runtime owns the chain store, the code registry, and the dispatch
// loop. It processes one top-level message at a time.
type Runtime struct {
	chain   objects.ChainName
	base    kv.Store
	codes   map[CodeID]func() Contract
	nextID  CodeID
	height  uint64
	now     func() time.Time
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithMetrics attaches operational counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runtime) { r.metrics = m }
}

// WithClock overrides the block time source.
func WithClock(now func() time.Time) Option {
	return func(r *Runtime) { r.now = now }
}

// New builds a runtime over the given chain store.
func New(chain objects.ChainName, store kv.Store, opts ...Option) *Runtime {
	r := &Runtime{
		chain:  chain,
		base:   store,
		codes:  make(map[CodeID]func() Contract),
		nextID: 1,
		now:    time.Now,
		tracer: otel.Tracer("accord/runtime"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Chain returns the runtime's chain name.
func (r *Runtime) Chain() objects.ChainName {
	return r.chain
}

// StoreCode registers contract code and returns its id. Register codes
// in a fixed order so address derivation stays deterministic across
// process restarts.
func (r *Runtime) StoreCode(factory func() Contract) CodeID {
	id := r.nextID
	r.nextID++
	r.codes[id] = factory
	return id
}

// ExecResult is the outcome of a committed top-level invocation.
type ExecResult struct {
	Data       []byte
	Attributes []Attribute
}

// Instantiate deploys a new instance of codeID at a derived address,
// running its Instantiate entrypoint and every effect it emits inside
// one transaction.
func (r *Runtime) Instantiate(ctx context.Context, sender objects.Address, codeID CodeID, msg []byte, funds ...objects.Coin) (objects.Address, ExecResult, error) {
	ctx, span := r.tracer.Start(ctx, "runtime.Instantiate")
	defer span.End()

	r.height++
	layer := kv.NewCache(r.base)
	st := &execState{r: r}
	addr, data, err := r.callInstantiate(ctx, layer, st, sender, codeID, msg, funds)
	if err != nil {
		layer.Discard()
		return "", ExecResult{}, err
	}
	if err := layer.Commit(); err != nil {
		return "", ExecResult{}, fmt.Errorf("commit instantiate: %w", err)
	}
	r.metrics.MessageHandled()
	return addr, ExecResult{Data: data, Attributes: st.attrs}, nil
}

// Execute runs a contract's Execute entrypoint as one transaction. All
// sub-messages the contract emits, and their replies, complete before
// Execute returns; nothing is committed if any uncaught error surfaces.
func (r *Runtime) Execute(ctx context.Context, sender, contract objects.Address, msg []byte, funds ...objects.Coin) (ExecResult, error) {
	ctx, span := r.tracer.Start(ctx, "runtime.Execute")
	defer span.End()

	r.height++
	layer := kv.NewCache(r.base)
	st := &execState{r: r}
	data, err := r.callExecute(ctx, layer, st, sender, contract, msg, funds)
	if err != nil {
		layer.Discard()
		return ExecResult{}, err
	}
	if err := layer.Commit(); err != nil {
		return ExecResult{}, fmt.Errorf("commit execute: %w", err)
	}
	r.metrics.MessageHandled()
	return ExecResult{Data: data, Attributes: st.attrs}, nil
}

// Query runs a contract's Query entrypoint against committed state.
func (r *Runtime) Query(ctx context.Context, contract objects.Address, msg []byte) ([]byte, error) {
	q := querier{r: r, store: r.base}
	return q.QueryContract(ctx, contract, msg)
}

// Fund credits coins to an address outside any contract invocation.
// Genesis setup and tests use it to seed balances.
func (r *Runtime) Fund(to objects.Address, coins ...objects.Coin) error {
	return bank{store: r.base}.mint(to, coins)
}

// Balance returns the committed balance addr holds in denom.
func (r *Runtime) Balance(addr objects.Address, denom string) (objects.Coin, error) {
	amount, err := bank{store: r.base}.balance(addr, denom)
	if err != nil {
		return objects.Coin{}, err
	}
	return objects.Coin{Denom: denom, Amount: amount}, nil
}

// Balances returns every committed balance addr holds.
func (r *Runtime) Balances(addr objects.Address) ([]objects.Coin, error) {
	return bank{store: r.base}.balances(addr)
}

func contractKey(addr objects.Address) []byte {
	return []byte("sys/contract/" + string(addr))
}

func contractStatePrefix(addr objects.Address) []byte {
	return []byte("c/" + string(addr) + "/")
}

func (r *Runtime) codeAt(store kv.Store, addr objects.Address) (Contract, error) {
	raw, err := store.Get(contractKey(addr))
	if err != nil {
		return nil, err
	}
	if len(raw) != 8 {
		return nil, errors.WithMetadata(errors.CodeContractNotFound,
			fmt.Sprintf("no contract at %s", addr),
			map[string]string{"Address": string(addr)})
	}
	codeID := CodeID(binary.BigEndian.Uint64(raw))
	factory, ok := r.codes[codeID]
	if !ok {
		return nil, errCodeNotFound(codeID)
	}
	return factory(), nil
}

func errCodeNotFound(codeID CodeID) error {
	return errors.WithMetadata(errors.CodeCodeNotFound,
		fmt.Sprintf("code %d is not registered", codeID),
		map[string]string{"CodeID": fmt.Sprintf("%d", codeID)})
}

func (r *Runtime) deps(store kv.Store, addr objects.Address) Deps {
	return Deps{
		Store:   kv.NewPrefixStore(store, contractStatePrefix(addr)),
		Querier: querier{r: r, store: store},
	}
}

func (r *Runtime) env(addr objects.Address) Env {
	return Env{Chain: r.chain, Contract: addr, Height: r.height, Time: r.now()}
}

func errUnexpectedReply(id uint64) error {
	return errors.WithMetadata(errors.CodeUnexpectedReply,
		fmt.Sprintf("unexpected reply id %d", id),
		map[string]string{"ID": fmt.Sprintf("%d", id)})
}

// querier resolves queries against a specific store layer, so queries
// issued mid-invocation observe that invocation's uncommitted writes.
type querier struct {
	r     *Runtime
	store kv.Store
}

// QueryContract implements Querier.
func (q querier) QueryContract(ctx context.Context, contract objects.Address, msg []byte) ([]byte, error) {
	c, err := q.r.codeAt(q.store, contract)
	if err != nil {
		return nil, err
	}
	return c.Query(ctx, q.r.deps(q.store, contract), q.r.env(contract), msg)
}

// QueryBalance implements Querier.
func (q querier) QueryBalance(ctx context.Context, addr objects.Address, denom string) (objects.Coin, error) {
	amount, err := bank{store: q.store}.balance(addr, denom)
	if err != nil {
		return objects.Coin{}, err
	}
	return objects.Coin{Denom: denom, Amount: amount}, nil
}

// QueryAllBalances implements Querier.
func (q querier) QueryAllBalances(ctx context.Context, addr objects.Address) ([]objects.Coin, error) {
	return bank{store: q.store}.balances(addr)
}
