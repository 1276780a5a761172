package objects

import (
	"fmt"
	"strconv"
	"strings"
)

// TraceLocal is the rendered trace of an account created on the local chain.
const TraceLocal = "local"

// traceSeparator joins chain names in a rendered remote trace.
const traceSeparator = ">"

// ChainName identifies a chain in an account trace.
type ChainName string

// Validate checks that the chain name is non-empty lowercase alphanumeric
// (dashes allowed), matching the naming used in relay channel manifests.
func (c ChainName) Validate() error {
	name := string(c)
	if name == "" {
		return fmt.Errorf("chain name is required")
	}
	if name == TraceLocal {
		return fmt.Errorf("chain name %q is reserved", TraceLocal)
	}
	for _, r := range name {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '-' {
			return fmt.Errorf("chain name %q contains invalid character %q", name, r)
		}
	}
	return nil
}

// AccountId uniquely identifies a logical account. Sequence numbers are
// allocated locally by the account factory; the trace records the ordered
// chain path for accounts that originated on a remote chain. An empty
// trace means the account is owned by the local chain.
//
// AccountIds are allocated once, are immutable afterward, and are never
// reused even when an account is abandoned.
type AccountId struct {
	Seq   uint32      `json:"seq"`
	Trace []ChainName `json:"trace,omitempty"`
}

// LocalAccountId returns an account id with an empty trace.
func LocalAccountId(seq uint32) AccountId {
	return AccountId{Seq: seq}
}

// RemoteAccountId returns an account id carrying the provided trace.
func RemoteAccountId(seq uint32, trace ...ChainName) AccountId {
	return AccountId{Seq: seq, Trace: append([]ChainName(nil), trace...)}
}

// Validate checks the trace entries.
func (id AccountId) Validate() error {
	for _, chain := range id.Trace {
		if err := chain.Validate(); err != nil {
			return fmt.Errorf("account trace: %w", err)
		}
	}
	return nil
}

// IsLocal reports whether the account originated on the chain asking.
func (id AccountId) IsLocal() bool {
	return len(id.Trace) == 0
}

// IsRemote reports whether the account originated on another chain.
func (id AccountId) IsRemote() bool {
	return !id.IsLocal()
}

// Equal reports whether two account ids match on both sequence and trace.
func (id AccountId) Equal(other AccountId) bool {
	if id.Seq != other.Seq || len(id.Trace) != len(other.Trace) {
		return false
	}
	for i := range id.Trace {
		if id.Trace[i] != other.Trace[i] {
			return false
		}
	}
	return true
}

// PushChain returns a copy of the id with chain appended to the trace.
// The host calls this on inbound packets so the local id records the
// full provenance path ending at the sending chain.
func (id AccountId) PushChain(chain ChainName) AccountId {
	trace := make([]ChainName, 0, len(id.Trace)+1)
	trace = append(trace, id.Trace...)
	trace = append(trace, chain)
	return AccountId{Seq: id.Seq, Trace: trace}
}

// String renders the id as "<trace>-<seq>", e.g. "local-4" or
// "juno>osmosis-4".
func (id AccountId) String() string {
	return id.traceString() + "-" + strconv.FormatUint(uint64(id.Seq), 10)
}

func (id AccountId) traceString() string {
	if id.IsLocal() {
		return TraceLocal
	}
	parts := make([]string, len(id.Trace))
	for i, chain := range id.Trace {
		parts[i] = string(chain)
	}
	return strings.Join(parts, traceSeparator)
}

// ParseAccountId reverses String.
func ParseAccountId(value string) (AccountId, error) {
	sep := strings.LastIndex(value, "-")
	if sep < 0 {
		return AccountId{}, fmt.Errorf("account id %q is missing a sequence", value)
	}
	seq, err := strconv.ParseUint(value[sep+1:], 10, 32)
	if err != nil {
		return AccountId{}, fmt.Errorf("account id %q has invalid sequence: %w", value, err)
	}
	tracePart := value[:sep]
	id := AccountId{Seq: uint32(seq)}
	if tracePart != TraceLocal {
		for _, chain := range strings.Split(tracePart, traceSeparator) {
			id.Trace = append(id.Trace, ChainName(chain))
		}
	}
	if err := id.Validate(); err != nil {
		return AccountId{}, err
	}
	return id, nil
}
