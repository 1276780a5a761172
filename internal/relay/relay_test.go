package relay_test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"testing"
	"time"

	"github.com/louisbranch/accord/internal/controller"
	"github.com/louisbranch/accord/internal/factory"
	"github.com/louisbranch/accord/internal/holder"
	"github.com/louisbranch/accord/internal/host"
	"github.com/louisbranch/accord/internal/kv/memory"
	"github.com/louisbranch/accord/internal/objects"
	"github.com/louisbranch/accord/internal/platform/errors"
	"github.com/louisbranch/accord/internal/platform/errors/i18n"
	"github.com/louisbranch/accord/internal/registry"
	"github.com/louisbranch/accord/internal/relay"
	"github.com/louisbranch/accord/internal/runtime"
)

const admin = objects.Address("admin")

type chain struct {
	name      objects.ChainName
	rt        *runtime.Runtime
	registry  objects.Address
	host      objects.Address
	transport objects.Address
	pub       ed25519.PublicKey
	priv      ed25519.PrivateKey
}

func newChain(t *testing.T, name objects.ChainName) *chain {
	t.Helper()
	ctx := context.Background()
	rt := runtime.New(name, memory.NewStore())

	registryCode := rt.StoreCode(registry.Contract)
	controllerCode := rt.StoreCode(controller.Contract)
	holderCode := rt.StoreCode(holder.Contract)
	factoryCode := rt.StoreCode(factory.Contract)
	hostCode := rt.StoreCode(host.Contract)

	init, _ := json.Marshal(registry.InstantiateMsg{Admin: admin})
	regAddr, _, err := rt.Instantiate(ctx, admin, registryCode, init)
	if err != nil {
		t.Fatalf("instantiate registry on %s: %v", name, err)
	}

	ref, err := objects.MarshalReference(objects.AccountBaseRef{
		ControllerCodeID: uint64(controllerCode),
		HolderCodeID:     uint64(holderCode),
	})
	if err != nil {
		t.Fatalf("marshal base reference: %v", err)
	}
	base := objects.NewModuleInfo("abstract", "account-base", "1.0.0")
	execReg := func(sender objects.Address, msg registry.ExecuteMsg) {
		raw, _ := json.Marshal(msg)
		if _, err := rt.Execute(ctx, sender, regAddr, raw); err != nil {
			t.Fatalf("registry execute on %s: %v", name, err)
		}
	}
	execReg(admin, registry.ExecuteMsg{ClaimNamespace: &registry.ClaimNamespaceMsg{Namespace: "abstract"}})
	execReg(admin, registry.ExecuteMsg{Register: &registry.RegisterMsg{Info: base, Reference: ref}})
	execReg(admin, registry.ExecuteMsg{Approve: &registry.ApproveMsg{Modules: []objects.ModuleInfo{base}}})

	facInit, _ := json.Marshal(factory.InstantiateMsg{
		Registry:    regAddr,
		AccountBase: objects.LatestModuleInfo("abstract", "account-base"),
		CreationFee: objects.Coin{Denom: "utoken"},
	})
	facAddr, _, err := rt.Instantiate(ctx, admin, factoryCode, facInit)
	if err != nil {
		t.Fatalf("instantiate factory on %s: %v", name, err)
	}

	transport := objects.Address("relayer-" + string(name))
	hostInit, _ := json.Marshal(host.InstantiateMsg{
		Registry:  regAddr,
		Factory:   facAddr,
		Transport: transport,
	})
	hostAddr, _, err := rt.Instantiate(ctx, admin, hostCode, hostInit)
	if err != nil {
		t.Fatalf("instantiate host on %s: %v", name, err)
	}

	execReg(admin, registry.ExecuteMsg{UpdateConfig: &registry.UpdateConfigMsg{Factory: &facAddr}})
	bind, _ := json.Marshal(factory.ExecuteMsg{UpdateConfig: &factory.UpdateConfigMsg{Host: &hostAddr}})
	if _, err := rt.Execute(ctx, admin, facAddr, bind); err != nil {
		t.Fatalf("bind host to factory on %s: %v", name, err)
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate relayer key: %v", err)
	}
	return &chain{
		name:      name,
		rt:        rt,
		registry:  regAddr,
		host:      hostAddr,
		transport: transport,
		pub:       pub,
		priv:      priv,
	}
}

func (c *chain) endpoint() relay.Endpoint {
	return relay.Endpoint{Runtime: c.rt, Host: c.host, Transport: c.transport}
}

func (c *chain) hasAccount(t *testing.T, id objects.AccountId) bool {
	t.Helper()
	query, _ := json.Marshal(registry.QueryMsg{Account: &registry.AccountQuery{AccountID: id}})
	_, err := c.rt.Query(context.Background(), c.registry, query)
	if err != nil && !errors.IsCode(err, errors.CodeAccountNotFound) {
		t.Fatalf("account query: %v", err)
	}
	return err == nil
}

func connect(t *testing.T, r *relay.Relay, chains ...*chain) {
	t.Helper()
	for _, c := range chains {
		if err := r.AddChain(c.name, c.endpoint(), c.pub); err != nil {
			t.Fatalf("connect %s: %v", c.name, err)
		}
	}
}

func registerPacket(seq uint32) host.Packet {
	id := objects.LocalAccountId(seq)
	return host.Packet{
		AccountID: &id,
		Action:    host.Action{Register: &host.RegisterAction{}},
	}
}

func TestDeliverAcrossChains(t *testing.T) {
	juno := newChain(t, "juno")
	neutron := newChain(t, "neutron")
	r := relay.New()
	connect(t, r, juno, neutron)

	grant, err := relay.MintGrant(juno.priv, "juno", "neutron", time.Hour, time.Now())
	if err != nil {
		t.Fatalf("mint grant: %v", err)
	}
	ack, err := r.Deliver(context.Background(), "juno", "neutron", grant, registerPacket(5))
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if !ack.Success {
		t.Fatalf("ack: %+v", ack)
	}
	if !neutron.hasAccount(t, objects.RemoteAccountId(5, "juno")) {
		t.Fatalf("remote account missing on neutron")
	}
	if juno.hasAccount(t, objects.RemoteAccountId(5, "juno")) {
		t.Fatalf("account leaked onto the source chain")
	}
}

func TestGrantChecks(t *testing.T) {
	juno := newChain(t, "juno")
	neutron := newChain(t, "neutron")
	r := relay.New()
	connect(t, r, juno, neutron)
	ctx := context.Background()

	// Signed by the wrong chain's key.
	forged, err := relay.MintGrant(neutron.priv, "juno", "neutron", time.Hour, time.Now())
	if err != nil {
		t.Fatalf("mint grant: %v", err)
	}
	if _, err := r.Deliver(ctx, "juno", "neutron", forged, registerPacket(1)); !errors.IsCode(err, errors.CodePacketGrantInvalid) {
		t.Fatalf("forged grant: got %v", err)
	}

	// Expired.
	stale, err := relay.MintGrant(juno.priv, "juno", "neutron", time.Hour, time.Now().Add(-2*time.Hour))
	if err != nil {
		t.Fatalf("mint grant: %v", err)
	}
	if _, err := r.Deliver(ctx, "juno", "neutron", stale, registerPacket(1)); !errors.IsCode(err, errors.CodePacketGrantExpired) {
		t.Fatalf("expired grant: got %v", err)
	}

	// Wrong audience.
	misrouted, err := relay.MintGrant(juno.priv, "juno", "osmosis", time.Hour, time.Now())
	if err != nil {
		t.Fatalf("mint grant: %v", err)
	}
	if _, err := r.Deliver(ctx, "juno", "neutron", misrouted, registerPacket(1)); !errors.IsCode(err, errors.CodePacketGrantInvalid) {
		t.Fatalf("misrouted grant: got %v", err)
	}

	// Nothing was created by any rejected delivery.
	if neutron.hasAccount(t, objects.RemoteAccountId(1, "juno")) {
		t.Fatalf("rejected packets created an account")
	}
}

func TestUnknownCounterparty(t *testing.T) {
	neutron := newChain(t, "neutron")
	r := relay.New()
	connect(t, r, neutron)

	_, err := r.Deliver(context.Background(), "osmosis", "neutron", "whatever", registerPacket(1))
	if !errors.IsCode(err, errors.CodeUnknownCounterparty) {
		t.Fatalf("unknown source: got %v", err)
	}
}

func TestRateLimitPerSourceChain(t *testing.T) {
	juno := newChain(t, "juno")
	neutron := newChain(t, "neutron")
	r := relay.New(relay.WithRateLimit(1, 1))
	connect(t, r, juno, neutron)
	ctx := context.Background()

	grant, err := relay.MintGrant(juno.priv, "juno", "neutron", time.Hour, time.Now())
	if err != nil {
		t.Fatalf("mint grant: %v", err)
	}
	if _, err := r.Deliver(ctx, "juno", "neutron", grant, registerPacket(1)); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	_, err = r.Deliver(ctx, "juno", "neutron", grant, registerPacket(2))
	if !errors.IsCode(err, errors.CodePacketRateLimited) {
		t.Fatalf("second delivery: got %v", err)
	}
}

func TestHostErrorSurfacesInAck(t *testing.T) {
	juno := newChain(t, "juno")
	neutron := newChain(t, "neutron")
	r := relay.New()
	connect(t, r, juno, neutron)

	grant, err := relay.MintGrant(juno.priv, "juno", "neutron", time.Hour, time.Now())
	if err != nil {
		t.Fatalf("mint grant: %v", err)
	}
	id := objects.LocalAccountId(1)
	ack, err := r.Deliver(context.Background(), "juno", "neutron", grant, host.Packet{AccountID: &id})
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if ack.Success || ack.Error == "" {
		t.Fatalf("ack for empty action: %+v", ack)
	}
	// The ack carries the error code and the localized catalog message,
	// not the host's internal error text.
	if ack.Code != string(errors.CodeUnsupportedHostAction) {
		t.Fatalf("ack code: %q", ack.Code)
	}
	want := i18n.GetCatalog("en-US").Format(ack.Code, nil)
	if ack.Error != want {
		t.Fatalf("ack error: got %q, want %q", ack.Error, want)
	}
}

func TestKeyFromMnemonicDeterministic(t *testing.T) {
	mnemonic, err := relay.NewMnemonic()
	if err != nil {
		t.Fatalf("new mnemonic: %v", err)
	}
	first, err := relay.KeyFromMnemonic(mnemonic, "")
	if err != nil {
		t.Fatalf("derive key: %v", err)
	}
	second, err := relay.KeyFromMnemonic(mnemonic, "")
	if err != nil {
		t.Fatalf("derive key again: %v", err)
	}
	if !first.Equal(second) {
		t.Fatalf("same mnemonic produced different keys")
	}
	other, err := relay.KeyFromMnemonic(mnemonic, "different-passphrase")
	if err != nil {
		t.Fatalf("derive with passphrase: %v", err)
	}
	if first.Equal(other) {
		t.Fatalf("passphrase did not change the key")
	}
	if _, err := relay.KeyFromMnemonic("not a mnemonic", ""); err == nil {
		t.Fatalf("invalid mnemonic accepted")
	}
}
