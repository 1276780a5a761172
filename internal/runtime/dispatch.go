package runtime

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/louisbranch/accord/internal/kv"
	"github.com/louisbranch/accord/internal/objects"
)

// execState threads per-invocation bookkeeping through the dispatch
// recursion: the flattened attribute log and the call depth guard.
type execState struct {
	r     *Runtime
	attrs []Attribute
	depth int
}

func (st *execState) enter() error {
	st.depth++
	if st.depth > maxCallDepth {
		return fmt.Errorf("message dispatch exceeded depth %d", maxCallDepth)
	}
	return nil
}

func (st *execState) leave() {
	st.depth--
}

func (st *execState) record(attrs []Attribute) {
	st.attrs = append(st.attrs, attrs...)
}

// callExecute runs a contract's Execute entrypoint plus everything it
// emits, against the given store layer. It returns the response data,
// possibly overridden by a reply handler further up the emission chain.
func (r *Runtime) callExecute(ctx context.Context, store kv.Store, st *execState, sender, addr objects.Address, msg []byte, funds []objects.Coin) ([]byte, error) {
	if err := st.enter(); err != nil {
		return nil, err
	}
	defer st.leave()

	c, err := r.codeAt(store, addr)
	if err != nil {
		return nil, err
	}
	if len(funds) > 0 {
		if err := (bank{store: store}).send(sender, addr, funds); err != nil {
			return nil, err
		}
	}

	resp, err := c.Execute(ctx, r.deps(store, addr), r.env(addr), MsgInfo{Sender: sender, Funds: funds}, msg)
	if err != nil {
		return nil, err
	}
	st.record(resp.Attributes)

	return r.processMessages(ctx, store, st, addr, resp.Messages, resp.Data)
}

// callInstantiate deploys a fresh instance of codeID and runs its
// Instantiate entrypoint plus everything it emits.
func (r *Runtime) callInstantiate(ctx context.Context, store kv.Store, st *execState, sender objects.Address, codeID CodeID, msg []byte, funds []objects.Coin) (objects.Address, []byte, error) {
	if err := st.enter(); err != nil {
		return "", nil, err
	}
	defer st.leave()

	factory, ok := r.codes[codeID]
	if !ok {
		return "", nil, errCodeNotFound(codeID)
	}

	seq, err := nextInstanceSeq(store)
	if err != nil {
		return "", nil, err
	}
	addr := DeriveAddress(codeID, seq)

	var codeRef [8]byte
	binary.BigEndian.PutUint64(codeRef[:], uint64(codeID))
	if err := store.Set(contractKey(addr), codeRef[:]); err != nil {
		return "", nil, err
	}
	if len(funds) > 0 {
		if err := (bank{store: store}).send(sender, addr, funds); err != nil {
			return "", nil, err
		}
	}

	resp, err := factory().Instantiate(ctx, r.deps(store, addr), r.env(addr), MsgInfo{Sender: sender, Funds: funds}, msg)
	if err != nil {
		return "", nil, err
	}
	st.record(resp.Attributes)

	data, err := r.processMessages(ctx, store, st, addr, resp.Messages, resp.Data)
	if err != nil {
		return "", nil, err
	}
	return addr, data, nil
}

// callReply resumes the emitter after one of its sub-messages settled.
// Replies can emit further sub-messages, which dispatch the same way.
func (r *Runtime) callReply(ctx context.Context, store kv.Store, st *execState, addr objects.Address, reply Reply) ([]byte, error) {
	if err := st.enter(); err != nil {
		return nil, err
	}
	defer st.leave()

	c, err := r.codeAt(store, addr)
	if err != nil {
		return nil, err
	}
	resp, err := c.Reply(ctx, r.deps(store, addr), r.env(addr), reply)
	if err != nil {
		return nil, err
	}
	st.record(resp.Attributes)

	return r.processMessages(ctx, store, st, addr, resp.Messages, resp.Data)
}

// processMessages dispatches emitted sub-messages in emission order.
// Each sub-message runs in its own nested cache layer: on success the
// layer commits into the emitter's layer and a success reply may fire;
// on failure the layer is dropped and, depending on the reply policy,
// either an error reply fires or the failure propagates to the emitter.
// Reply handlers run against the emitter's layer and their non-nil data
// overrides the emitter's response data, last writer wins.
func (r *Runtime) processMessages(ctx context.Context, store kv.Store, st *execState, emitter objects.Address, msgs []SubMsg, data []byte) ([]byte, error) {
	for _, sub := range msgs {
		nested := kv.NewCache(store)
		res, err := r.dispatchMsg(ctx, nested, st, emitter, sub.Msg)
		if err == nil {
			if commitErr := nested.Commit(); commitErr != nil {
				return nil, commitErr
			}
			if sub.ReplyOn == ReplyAlways || sub.ReplyOn == ReplySuccess {
				replyData, replyErr := r.callReply(ctx, store, st, emitter, Reply{ID: sub.ID, Ok: res})
				if replyErr != nil {
					return nil, replyErr
				}
				if replyData != nil {
					data = replyData
				}
			}
			continue
		}

		nested.Discard()
		if sub.ReplyOn != ReplyAlways && sub.ReplyOn != ReplyError {
			return nil, err
		}
		replyData, replyErr := r.callReply(ctx, store, st, emitter, Reply{ID: sub.ID, Err: err.Error()})
		if replyErr != nil {
			return nil, replyErr
		}
		if replyData != nil {
			data = replyData
		}
	}
	return data, nil
}

// dispatchMsg executes a single effect against the given layer.
func (r *Runtime) dispatchMsg(ctx context.Context, store kv.Store, st *execState, emitter objects.Address, msg Msg) (*SubMsgResponse, error) {
	switch {
	case msg.Wasm != nil && msg.Wasm.Execute != nil:
		m := msg.Wasm.Execute
		out, err := r.callExecute(ctx, store, st, emitter, m.Contract, m.Msg, m.Funds)
		if err != nil {
			return nil, err
		}
		return &SubMsgResponse{Data: out}, nil

	case msg.Wasm != nil && msg.Wasm.Instantiate != nil:
		m := msg.Wasm.Instantiate
		addr, out, err := r.callInstantiate(ctx, store, st, emitter, m.CodeID, m.Msg, m.Funds)
		if err != nil {
			return nil, err
		}
		return &SubMsgResponse{ContractAddress: addr, Data: out}, nil

	case msg.Bank != nil && msg.Bank.Send != nil:
		m := msg.Bank.Send
		if err := (bank{store: store}).send(emitter, m.ToAddress, m.Amount); err != nil {
			return nil, err
		}
		return &SubMsgResponse{}, nil

	default:
		return nil, fmt.Errorf("sub-message from %s carries no effect", emitter)
	}
}

const instanceSeqKey = "sys/instance_seq"

func nextInstanceSeq(store kv.Store) (uint64, error) {
	raw, err := store.Get([]byte(instanceSeqKey))
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
	if err := store.Set([]byte(instanceSeqKey), next[:]); err != nil {
		return 0, err
	}
	return seq, nil
}
