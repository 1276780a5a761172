package objects

import (
	"encoding/json"
	"fmt"
)

// Address is a runtime contract address (base58-encoded hash, allocated
// by the runtime at instantiation time).
type Address string

// ModuleReference is the closed set of deployment targets a registry
// record can resolve to. Consumers switch exhaustively over the concrete
// types; adding a new kind must break compilation at every consumption
// site rather than fall through to a runtime default.
type ModuleReference interface {
	refKind() string
}

// NativeRef points at a platform-provided contract shared by all accounts.
type NativeRef struct {
	Address Address `json:"address"`
}

// AdapterRef points at a singleton adapter contract shared across accounts.
type AdapterRef struct {
	Address Address `json:"address"`
}

// AppRef names a code reference instantiated once per installing account.
type AppRef struct {
	CodeID uint64 `json:"code_id"`
}

// StandaloneRef names a code reference instantiated per account without
// the app base plumbing.
type StandaloneRef struct {
	CodeID uint64 `json:"code_id"`
}

// AccountBaseRef names the code pair used to create the account base
// itself (controller and asset-holder).
type AccountBaseRef struct {
	ControllerCodeID uint64 `json:"controller_code_id"`
	HolderCodeID     uint64 `json:"holder_code_id"`
}

func (NativeRef) refKind() string      { return refKindNative }
func (AdapterRef) refKind() string     { return refKindAdapter }
func (AppRef) refKind() string         { return refKindApp }
func (StandaloneRef) refKind() string  { return refKindStandalone }
func (AccountBaseRef) refKind() string { return refKindAccountBase }

const (
	refKindNative      = "native"
	refKindAdapter     = "adapter"
	refKindApp         = "app"
	refKindStandalone  = "standalone"
	refKindAccountBase = "account_base"
)

type refEnvelope struct {
	Kind string          `json:"kind"`
	Ref  json.RawMessage `json:"ref"`
}

// MarshalReference encodes a reference as a tagged JSON envelope for
// storage in registry records.
func MarshalReference(ref ModuleReference) ([]byte, error) {
	if ref == nil {
		return nil, fmt.Errorf("module reference is required")
	}
	raw, err := json.Marshal(ref)
	if err != nil {
		return nil, fmt.Errorf("marshal module reference: %w", err)
	}
	return json.Marshal(refEnvelope{Kind: ref.refKind(), Ref: raw})
}

// UnmarshalReference reverses MarshalReference.
func UnmarshalReference(data []byte) (ModuleReference, error) {
	var env refEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal module reference envelope: %w", err)
	}
	var (
		ref ModuleReference
		err error
	)
	switch env.Kind {
	case refKindNative:
		var r NativeRef
		err = json.Unmarshal(env.Ref, &r)
		ref = r
	case refKindAdapter:
		var r AdapterRef
		err = json.Unmarshal(env.Ref, &r)
		ref = r
	case refKindApp:
		var r AppRef
		err = json.Unmarshal(env.Ref, &r)
		ref = r
	case refKindStandalone:
		var r StandaloneRef
		err = json.Unmarshal(env.Ref, &r)
		ref = r
	case refKindAccountBase:
		var r AccountBaseRef
		err = json.Unmarshal(env.Ref, &r)
		ref = r
	default:
		return nil, fmt.Errorf("unknown module reference kind %q", env.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("unmarshal %s reference: %w", env.Kind, err)
	}
	return ref, nil
}

// ReferenceEqual reports whether two references are the same kind and target.
func ReferenceEqual(a, b ModuleReference) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a == b
}
