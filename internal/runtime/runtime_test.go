package runtime_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/louisbranch/accord/internal/kv/memory"
	"github.com/louisbranch/accord/internal/objects"
	"github.com/louisbranch/accord/internal/platform/errors"
	"github.com/louisbranch/accord/internal/runtime"
)

// testContract adapts closures to the Contract interface so each test
// can script behavior inline.
type testContract struct {
	instantiate func(ctx context.Context, deps runtime.Deps, env runtime.Env, info runtime.MsgInfo, msg []byte) (runtime.Response, error)
	execute     func(ctx context.Context, deps runtime.Deps, env runtime.Env, info runtime.MsgInfo, msg []byte) (runtime.Response, error)
	reply       func(ctx context.Context, deps runtime.Deps, env runtime.Env, reply runtime.Reply) (runtime.Response, error)
	query       func(ctx context.Context, deps runtime.Deps, env runtime.Env, msg []byte) ([]byte, error)
}

func (c *testContract) Instantiate(ctx context.Context, deps runtime.Deps, env runtime.Env, info runtime.MsgInfo, msg []byte) (runtime.Response, error) {
	if c.instantiate == nil {
		return runtime.Response{}, nil
	}
	return c.instantiate(ctx, deps, env, info, msg)
}

func (c *testContract) Execute(ctx context.Context, deps runtime.Deps, env runtime.Env, info runtime.MsgInfo, msg []byte) (runtime.Response, error) {
	if c.execute == nil {
		return runtime.Response{}, nil
	}
	return c.execute(ctx, deps, env, info, msg)
}

func (c *testContract) Reply(ctx context.Context, deps runtime.Deps, env runtime.Env, reply runtime.Reply) (runtime.Response, error) {
	if c.reply == nil {
		return runtime.Response{}, fmt.Errorf("unexpected reply %d", reply.ID)
	}
	return c.reply(ctx, deps, env, reply)
}

func (c *testContract) Query(ctx context.Context, deps runtime.Deps, env runtime.Env, msg []byte) ([]byte, error) {
	if c.query == nil {
		return nil, fmt.Errorf("query not supported")
	}
	return c.query(ctx, deps, env, msg)
}

func factoryOf(c *testContract) func() runtime.Contract {
	return func() runtime.Contract { return c }
}

// kvContract writes its execute message under a fixed key and serves it
// back on query. An execute message of "fail" errors after writing.
func kvContract() *testContract {
	return &testContract{
		execute: func(ctx context.Context, deps runtime.Deps, env runtime.Env, info runtime.MsgInfo, msg []byte) (runtime.Response, error) {
			if err := deps.Store.Set([]byte("value"), msg); err != nil {
				return runtime.Response{}, err
			}
			if string(msg) == "fail" {
				return runtime.Response{}, fmt.Errorf("scripted failure")
			}
			return runtime.NewResponse().WithData(msg), nil
		},
		query: func(ctx context.Context, deps runtime.Deps, env runtime.Env, msg []byte) ([]byte, error) {
			return deps.Store.Get([]byte("value"))
		},
	}
}

func TestDeterministicAddresses(t *testing.T) {
	ctx := context.Background()

	deploy := func() (objects.Address, objects.Address) {
		rt := runtime.New("neutron", memory.NewStore())
		code := rt.StoreCode(factoryOf(kvContract()))
		first, _, err := rt.Instantiate(ctx, "deployer", code, nil)
		if err != nil {
			t.Fatalf("instantiate first: %v", err)
		}
		second, _, err := rt.Instantiate(ctx, "deployer", code, nil)
		if err != nil {
			t.Fatalf("instantiate second: %v", err)
		}
		return first, second
	}

	a1, a2 := deploy()
	b1, b2 := deploy()
	if a1 != b1 || a2 != b2 {
		t.Fatalf("addresses diverged across identical deploys: %s/%s vs %s/%s", a1, a2, b1, b2)
	}
	if a1 == a2 {
		t.Fatalf("distinct instances share address %s", a1)
	}
}

func TestExecuteRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	rt := runtime.New("neutron", memory.NewStore())
	code := rt.StoreCode(factoryOf(kvContract()))
	addr, _, err := rt.Instantiate(ctx, "deployer", code, nil)
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}

	if _, err := rt.Execute(ctx, "caller", addr, []byte("before")); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if _, err := rt.Execute(ctx, "caller", addr, []byte("fail")); err == nil {
		t.Fatal("expected scripted failure")
	}

	got, err := rt.Query(ctx, addr, nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if string(got) != "before" {
		t.Fatalf("failed execute leaked state: got %q", got)
	}
}

func TestSubMsgFailureIsolatedByErrorReply(t *testing.T) {
	ctx := context.Background()
	rt := runtime.New("neutron", memory.NewStore())

	childCode := rt.StoreCode(factoryOf(kvContract()))
	child, _, err := rt.Instantiate(ctx, "deployer", childCode, nil)
	if err != nil {
		t.Fatalf("instantiate child: %v", err)
	}

	var gotReply runtime.Reply
	parent := &testContract{
		execute: func(ctx context.Context, deps runtime.Deps, env runtime.Env, info runtime.MsgInfo, msg []byte) (runtime.Response, error) {
			if err := deps.Store.Set([]byte("value"), []byte("parent-write")); err != nil {
				return runtime.Response{}, err
			}
			sub := runtime.SubMsg{ID: 7, Msg: runtime.ExecuteMsg(child, []byte("fail")), ReplyOn: runtime.ReplyError}
			return runtime.NewResponse().AddSubMsg(sub), nil
		},
		reply: func(ctx context.Context, deps runtime.Deps, env runtime.Env, reply runtime.Reply) (runtime.Response, error) {
			gotReply = reply
			return runtime.Response{}, nil
		},
		query: func(ctx context.Context, deps runtime.Deps, env runtime.Env, msg []byte) ([]byte, error) {
			return deps.Store.Get([]byte("value"))
		},
	}
	parentCode := rt.StoreCode(factoryOf(parent))
	parentAddr, _, err := rt.Instantiate(ctx, "deployer", parentCode, nil)
	if err != nil {
		t.Fatalf("instantiate parent: %v", err)
	}

	if _, err := rt.Execute(ctx, "caller", parentAddr, nil); err != nil {
		t.Fatalf("execute parent: %v", err)
	}

	if gotReply.ID != 7 || gotReply.Succeeded() {
		t.Fatalf("expected error reply with id 7, got %+v", gotReply)
	}
	parentState, err := rt.Query(ctx, parentAddr, nil)
	if err != nil {
		t.Fatalf("query parent: %v", err)
	}
	if string(parentState) != "parent-write" {
		t.Fatalf("parent write lost: got %q", parentState)
	}
	childState, err := rt.Query(ctx, child, nil)
	if err != nil {
		t.Fatalf("query child: %v", err)
	}
	if childState != nil {
		t.Fatalf("failed sub-message leaked child state: got %q", childState)
	}
}

func TestSubMsgFailureWithoutReplyFailsParent(t *testing.T) {
	ctx := context.Background()
	rt := runtime.New("neutron", memory.NewStore())

	childCode := rt.StoreCode(factoryOf(kvContract()))
	child, _, err := rt.Instantiate(ctx, "deployer", childCode, nil)
	if err != nil {
		t.Fatalf("instantiate child: %v", err)
	}

	parent := &testContract{
		execute: func(ctx context.Context, deps runtime.Deps, env runtime.Env, info runtime.MsgInfo, msg []byte) (runtime.Response, error) {
			if err := deps.Store.Set([]byte("value"), []byte("parent-write")); err != nil {
				return runtime.Response{}, err
			}
			return runtime.NewResponse().AddMessage(runtime.ExecuteMsg(child, []byte("fail"))), nil
		},
		query: func(ctx context.Context, deps runtime.Deps, env runtime.Env, msg []byte) ([]byte, error) {
			return deps.Store.Get([]byte("value"))
		},
	}
	parentCode := rt.StoreCode(factoryOf(parent))
	parentAddr, _, err := rt.Instantiate(ctx, "deployer", parentCode, nil)
	if err != nil {
		t.Fatalf("instantiate parent: %v", err)
	}

	if _, err := rt.Execute(ctx, "caller", parentAddr, nil); err == nil {
		t.Fatal("expected parent execution to fail")
	}
	parentState, err := rt.Query(ctx, parentAddr, nil)
	if err != nil {
		t.Fatalf("query parent: %v", err)
	}
	if parentState != nil {
		t.Fatalf("failed execution leaked parent state: got %q", parentState)
	}
}

func TestSubMsgEmissionOrderAndReplies(t *testing.T) {
	ctx := context.Background()
	rt := runtime.New("neutron", memory.NewStore())

	var events []string
	recorder := &testContract{
		execute: func(ctx context.Context, deps runtime.Deps, env runtime.Env, info runtime.MsgInfo, msg []byte) (runtime.Response, error) {
			events = append(events, "child:"+string(msg))
			return runtime.Response{}, nil
		},
	}
	childCode := rt.StoreCode(factoryOf(recorder))
	child, _, err := rt.Instantiate(ctx, "deployer", childCode, nil)
	if err != nil {
		t.Fatalf("instantiate child: %v", err)
	}

	parent := &testContract{
		execute: func(ctx context.Context, deps runtime.Deps, env runtime.Env, info runtime.MsgInfo, msg []byte) (runtime.Response, error) {
			events = append(events, "parent")
			return runtime.NewResponse().
				AddSubMsg(runtime.ReplyOnSuccess(1, runtime.ExecuteMsg(child, []byte("a")))).
				AddSubMsg(runtime.ReplyOnSuccess(2, runtime.ExecuteMsg(child, []byte("b")))), nil
		},
		reply: func(ctx context.Context, deps runtime.Deps, env runtime.Env, reply runtime.Reply) (runtime.Response, error) {
			events = append(events, fmt.Sprintf("reply:%d", reply.ID))
			return runtime.Response{}, nil
		},
	}
	parentCode := rt.StoreCode(factoryOf(parent))
	parentAddr, _, err := rt.Instantiate(ctx, "deployer", parentCode, nil)
	if err != nil {
		t.Fatalf("instantiate parent: %v", err)
	}

	if _, err := rt.Execute(ctx, "caller", parentAddr, nil); err != nil {
		t.Fatalf("execute: %v", err)
	}

	want := []string{"parent", "child:a", "reply:1", "child:b", "reply:2"}
	if len(events) != len(want) {
		t.Fatalf("event count: got %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("event %d: got %q, want %q (all: %v)", i, events[i], want[i], events)
		}
	}
}

func TestInstantiateSubMsgReportsAddress(t *testing.T) {
	ctx := context.Background()
	rt := runtime.New("neutron", memory.NewStore())

	childCode := rt.StoreCode(factoryOf(kvContract()))

	var created objects.Address
	parent := &testContract{
		execute: func(ctx context.Context, deps runtime.Deps, env runtime.Env, info runtime.MsgInfo, msg []byte) (runtime.Response, error) {
			sub := runtime.ReplyOnSuccess(1, runtime.InstantiateMsg(childCode, nil, "child"))
			return runtime.NewResponse().AddSubMsg(sub), nil
		},
		reply: func(ctx context.Context, deps runtime.Deps, env runtime.Env, reply runtime.Reply) (runtime.Response, error) {
			if !reply.Succeeded() {
				return runtime.Response{}, fmt.Errorf("instantiate failed: %s", reply.Err)
			}
			created = reply.Ok.ContractAddress
			return runtime.Response{}, nil
		},
	}
	parentCode := rt.StoreCode(factoryOf(parent))
	parentAddr, _, err := rt.Instantiate(ctx, "deployer", parentCode, nil)
	if err != nil {
		t.Fatalf("instantiate parent: %v", err)
	}

	if _, err := rt.Execute(ctx, "caller", parentAddr, nil); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if created == "" {
		t.Fatal("reply carried no contract address")
	}
	if _, err := rt.Query(ctx, created, nil); err != nil {
		t.Fatalf("created contract not queryable: %v", err)
	}
}

func TestBankSendRequiresFunds(t *testing.T) {
	ctx := context.Background()
	rt := runtime.New("neutron", memory.NewStore())

	spender := &testContract{
		execute: func(ctx context.Context, deps runtime.Deps, env runtime.Env, info runtime.MsgInfo, msg []byte) (runtime.Response, error) {
			return runtime.NewResponse().AddMessage(runtime.SendMsg("receiver", objects.NewCoin("utoken", 100))), nil
		},
	}
	code := rt.StoreCode(factoryOf(spender))
	addr, _, err := rt.Instantiate(ctx, "deployer", code, nil)
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}

	_, err = rt.Execute(ctx, "caller", addr, nil)
	if !errors.IsCode(err, errors.CodeInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}

	if err := rt.Fund(addr, objects.NewCoin("utoken", 150)); err != nil {
		t.Fatalf("fund: %v", err)
	}
	if _, err := rt.Execute(ctx, "caller", addr, nil); err != nil {
		t.Fatalf("execute with funds: %v", err)
	}
	got, err := rt.Balance("receiver", "utoken")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if got.Amount != 100 {
		t.Fatalf("receiver balance: got %d, want 100", got.Amount)
	}
	left, err := rt.Balance(addr, "utoken")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if left.Amount != 50 {
		t.Fatalf("spender balance: got %d, want 50", left.Amount)
	}
}

func TestExecuteTransfersAttachedFunds(t *testing.T) {
	ctx := context.Background()
	rt := runtime.New("neutron", memory.NewStore())

	var seen []objects.Coin
	receiver := &testContract{
		execute: func(ctx context.Context, deps runtime.Deps, env runtime.Env, info runtime.MsgInfo, msg []byte) (runtime.Response, error) {
			seen = info.Funds
			balance, err := deps.Querier.QueryBalance(ctx, env.Contract, "utoken")
			if err != nil {
				return runtime.Response{}, err
			}
			if balance.Amount != 25 {
				return runtime.Response{}, fmt.Errorf("funds not credited before entrypoint: %d", balance.Amount)
			}
			return runtime.Response{}, nil
		},
	}
	code := rt.StoreCode(factoryOf(receiver))
	addr, _, err := rt.Instantiate(ctx, "deployer", code, nil)
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}

	if err := rt.Fund("caller", objects.NewCoin("utoken", 25)); err != nil {
		t.Fatalf("fund: %v", err)
	}
	if _, err := rt.Execute(ctx, "caller", addr, nil, objects.NewCoin("utoken", 25)); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(seen) != 1 || seen[0].Amount != 25 {
		t.Fatalf("funds not delivered in MsgInfo: %v", seen)
	}
}
