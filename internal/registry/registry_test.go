package registry

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/louisbranch/accord/internal/kv/memory"
	"github.com/louisbranch/accord/internal/objects"
	"github.com/louisbranch/accord/internal/platform/errors"
	"github.com/louisbranch/accord/internal/runtime"
)

const (
	admin     = objects.Address("admin")
	publisher = objects.Address("publisher")
	factory   = objects.Address("factory")
)

func newRegistry(t *testing.T) (*Registry, runtime.Deps) {
	t.Helper()
	reg := &Registry{}
	deps := runtime.Deps{Store: memory.NewStore()}
	init, _ := json.Marshal(InstantiateMsg{Admin: admin})
	if _, err := reg.Instantiate(context.Background(), deps, runtime.Env{}, runtime.MsgInfo{Sender: admin}, init); err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	return reg, deps
}

func exec(t *testing.T, reg *Registry, deps runtime.Deps, sender objects.Address, msg ExecuteMsg) error {
	t.Helper()
	raw, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal execute msg: %v", err)
	}
	_, err = reg.Execute(context.Background(), deps, runtime.Env{}, runtime.MsgInfo{Sender: sender}, raw)
	return err
}

func query(t *testing.T, reg *Registry, deps runtime.Deps, msg QueryMsg, out any) error {
	t.Helper()
	raw, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal query msg: %v", err)
	}
	data, err := reg.Query(context.Background(), deps, runtime.Env{}, raw)
	if err != nil {
		return err
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			t.Fatalf("unmarshal query response: %v", err)
		}
	}
	return nil
}

func mustRef(t *testing.T, ref objects.ModuleReference) json.RawMessage {
	t.Helper()
	raw, err := objects.MarshalReference(ref)
	if err != nil {
		t.Fatalf("marshal reference: %v", err)
	}
	return raw
}

func claimAndRegister(t *testing.T, reg *Registry, deps runtime.Deps, info objects.ModuleInfo, ref objects.ModuleReference) {
	t.Helper()
	if err := exec(t, reg, deps, publisher, ExecuteMsg{ClaimNamespace: &ClaimNamespaceMsg{Namespace: info.Namespace}}); err != nil {
		if !errors.IsCode(err, errors.CodeNamespaceAlreadyClaimed) {
			t.Fatalf("claim namespace: %v", err)
		}
	}
	err := exec(t, reg, deps, publisher, ExecuteMsg{Register: &RegisterMsg{
		Info:      info,
		Reference: mustRef(t, ref),
		Strategy:  DeployTry,
	}})
	if err != nil {
		t.Fatalf("register %s: %v", info, err)
	}
}

func TestNamespaceClaim(t *testing.T) {
	reg, deps := newRegistry(t)

	if err := exec(t, reg, deps, publisher, ExecuteMsg{ClaimNamespace: &ClaimNamespaceMsg{Namespace: "abstract"}}); err != nil {
		t.Fatalf("claim: %v", err)
	}
	// Re-claiming your own namespace is a no-op.
	if err := exec(t, reg, deps, publisher, ExecuteMsg{ClaimNamespace: &ClaimNamespaceMsg{Namespace: "abstract"}}); err != nil {
		t.Fatalf("re-claim by owner: %v", err)
	}
	err := exec(t, reg, deps, "intruder", ExecuteMsg{ClaimNamespace: &ClaimNamespaceMsg{Namespace: "abstract"}})
	if !errors.IsCode(err, errors.CodeNamespaceAlreadyClaimed) {
		t.Fatalf("claim of owned namespace: got %v", err)
	}

	var ns NamespaceResponse
	if err := query(t, reg, deps, QueryMsg{Namespace: &NamespaceQuery{Namespace: "abstract"}}, &ns); err != nil {
		t.Fatalf("namespace query: %v", err)
	}
	if ns.Owner != publisher {
		t.Fatalf("owner: got %s, want %s", ns.Owner, publisher)
	}
}

func TestRegisterRequiresNamespaceOwnership(t *testing.T) {
	reg, deps := newRegistry(t)
	info := objects.NewModuleInfo("abstract", "staking", "1.0.0")

	err := exec(t, reg, deps, publisher, ExecuteMsg{Register: &RegisterMsg{
		Info: info, Reference: mustRef(t, objects.AdapterRef{Address: "adapter1"}),
	}})
	if !errors.IsCode(err, errors.CodeNamespaceNotFound) {
		t.Fatalf("register into unclaimed namespace: got %v", err)
	}

	if err := exec(t, reg, deps, publisher, ExecuteMsg{ClaimNamespace: &ClaimNamespaceMsg{Namespace: "abstract"}}); err != nil {
		t.Fatalf("claim: %v", err)
	}
	err = exec(t, reg, deps, "intruder", ExecuteMsg{Register: &RegisterMsg{
		Info: info, Reference: mustRef(t, objects.AdapterRef{Address: "adapter1"}),
	}})
	if !errors.IsCode(err, errors.CodeUnauthorized) {
		t.Fatalf("register by non-owner: got %v", err)
	}
}

func TestDeployStrategies(t *testing.T) {
	reg, deps := newRegistry(t)
	info := objects.NewModuleInfo("abstract", "staking", "1.0.0")
	ref := objects.AdapterRef{Address: "adapter1"}
	claimAndRegister(t, reg, deps, info, ref)

	register := func(strategy DeployStrategy, target objects.ModuleReference) error {
		return exec(t, reg, deps, publisher, ExecuteMsg{Register: &RegisterMsg{
			Info: info, Reference: mustRef(t, target), Strategy: strategy,
		}})
	}

	// Try with the same reference is idempotent.
	if err := register(DeployTry, ref); err != nil {
		t.Fatalf("try re-register same reference: %v", err)
	}
	// Try with a different reference conflicts.
	if err := register(DeployTry, objects.AdapterRef{Address: "other"}); !errors.IsCode(err, errors.CodeModuleAlreadyRegistered) {
		t.Fatalf("try with different reference: got %v", err)
	}
	// Error always conflicts on an existing record.
	if err := register(DeployError, ref); !errors.IsCode(err, errors.CodeModuleAlreadyRegistered) {
		t.Fatalf("error strategy on existing: got %v", err)
	}
	// Force overwrites a pending record.
	if err := register(DeployForce, objects.AdapterRef{Address: "forced"}); err != nil {
		t.Fatalf("force overwrite pending: %v", err)
	}

	if err := exec(t, reg, deps, admin, ExecuteMsg{Approve: &ApproveMsg{Modules: []objects.ModuleInfo{info}}}); err != nil {
		t.Fatalf("approve: %v", err)
	}
	// Approved versions are locked against every strategy.
	if err := register(DeployForce, ref); !errors.IsCode(err, errors.CodeModuleAlreadyApproved) {
		t.Fatalf("force on approved: got %v", err)
	}
	if err := register(DeployTry, objects.AdapterRef{Address: "forced"}); !errors.IsCode(err, errors.CodeModuleAlreadyApproved) {
		t.Fatalf("try on approved: got %v", err)
	}
}

func TestRegisterDefaultsToTry(t *testing.T) {
	reg, deps := newRegistry(t)
	info := objects.NewModuleInfo("abstract", "staking", "1.0.0")
	ref := objects.AdapterRef{Address: "adapter1"}
	claimAndRegister(t, reg, deps, info, ref)

	register := func(target objects.ModuleReference) error {
		return exec(t, reg, deps, publisher, ExecuteMsg{Register: &RegisterMsg{
			Info: info, Reference: mustRef(t, target),
		}})
	}

	// Re-submitting an identical pending registration succeeds, so a
	// deployment pipeline can re-run without tracking what it already sent.
	if err := register(ref); err != nil {
		t.Fatalf("re-register same reference without strategy: %v", err)
	}
	// A different reference still conflicts without an explicit strategy.
	if err := register(objects.AdapterRef{Address: "other"}); !errors.IsCode(err, errors.CodeModuleAlreadyRegistered) {
		t.Fatalf("re-register different reference: got %v", err)
	}

	// The record is still pending, not silently approved or replaced.
	err := query(t, reg, deps, QueryMsg{Resolve: &ResolveQuery{Info: info}}, nil)
	if !errors.IsCode(err, errors.CodeModuleNotApproved) {
		t.Fatalf("resolve after re-register: got %v", err)
	}
}

func TestApproveRejectStateMachine(t *testing.T) {
	reg, deps := newRegistry(t)
	info := objects.NewModuleInfo("abstract", "staking", "1.0.0")
	claimAndRegister(t, reg, deps, info, objects.AdapterRef{Address: "adapter1"})

	// Pending records do not resolve.
	err := query(t, reg, deps, QueryMsg{Resolve: &ResolveQuery{Info: info}}, nil)
	if !errors.IsCode(err, errors.CodeModuleNotApproved) {
		t.Fatalf("resolve pending: got %v", err)
	}

	// Only the admin may approve.
	err = exec(t, reg, deps, publisher, ExecuteMsg{Approve: &ApproveMsg{Modules: []objects.ModuleInfo{info}}})
	if !errors.IsCode(err, errors.CodeUnauthorized) {
		t.Fatalf("approve by non-admin: got %v", err)
	}
	if err := exec(t, reg, deps, admin, ExecuteMsg{Approve: &ApproveMsg{Modules: []objects.ModuleInfo{info}}}); err != nil {
		t.Fatalf("approve: %v", err)
	}
	err = exec(t, reg, deps, admin, ExecuteMsg{Approve: &ApproveMsg{Modules: []objects.ModuleInfo{info}}})
	if !errors.IsCode(err, errors.CodeModuleAlreadyApproved) {
		t.Fatalf("double approve: got %v", err)
	}
	// Approved records cannot be rejected.
	err = exec(t, reg, deps, admin, ExecuteMsg{Reject: &RejectMsg{Modules: []objects.ModuleInfo{info}}})
	if !errors.IsCode(err, errors.CodeModuleAlreadyApproved) {
		t.Fatalf("reject approved: got %v", err)
	}

	var resolved ResolveResponse
	if err := query(t, reg, deps, QueryMsg{Resolve: &ResolveQuery{Info: info}}, &resolved); err != nil {
		t.Fatalf("resolve approved: %v", err)
	}
	ref, err := resolved.DecodeReference()
	if err != nil {
		t.Fatalf("decode reference: %v", err)
	}
	if adapter, ok := ref.(objects.AdapterRef); !ok || adapter.Address != "adapter1" {
		t.Fatalf("resolved reference: got %#v", ref)
	}

	// Rejecting a pending version burns it for good.
	rejected := objects.NewModuleInfo("abstract", "staking", "1.1.0")
	claimAndRegister(t, reg, deps, rejected, objects.AdapterRef{Address: "adapter2"})
	if err := exec(t, reg, deps, admin, ExecuteMsg{Reject: &RejectMsg{Modules: []objects.ModuleInfo{rejected}}}); err != nil {
		t.Fatalf("reject: %v", err)
	}
	err = query(t, reg, deps, QueryMsg{Resolve: &ResolveQuery{Info: rejected}}, nil)
	if !errors.IsCode(err, errors.CodeModuleNotFound) {
		t.Fatalf("resolve rejected: got %v", err)
	}
}

func TestResolveLatest(t *testing.T) {
	reg, deps := newRegistry(t)

	versions := []string{"1.0.0", "1.1.0", "2.0.0", "10.0.0"}
	for _, v := range versions {
		claimAndRegister(t, reg, deps,
			objects.NewModuleInfo("abstract", "oracle", v),
			objects.AdapterRef{Address: objects.Address("adapter-" + v)})
	}
	approved := []objects.ModuleInfo{
		objects.NewModuleInfo("abstract", "oracle", "1.0.0"),
		objects.NewModuleInfo("abstract", "oracle", "10.0.0"),
		objects.NewModuleInfo("abstract", "oracle", "2.0.0"),
	}
	if err := exec(t, reg, deps, admin, ExecuteMsg{Approve: &ApproveMsg{Modules: approved}}); err != nil {
		t.Fatalf("approve: %v", err)
	}

	var resolved ResolveResponse
	if err := query(t, reg, deps, QueryMsg{Resolve: &ResolveQuery{Info: objects.LatestModuleInfo("abstract", "oracle")}}, &resolved); err != nil {
		t.Fatalf("resolve latest: %v", err)
	}
	// Numeric comparison, not lexicographic: 10.0.0 beats 2.0.0.
	if resolved.Info.Version != "10.0.0" {
		t.Fatalf("latest version: got %s, want 10.0.0", resolved.Info.Version)
	}

	// Exact resolution of an older approved version still works.
	if err := query(t, reg, deps, QueryMsg{Resolve: &ResolveQuery{Info: objects.NewModuleInfo("abstract", "oracle", "1.0.0")}}, &resolved); err != nil {
		t.Fatalf("resolve exact old: %v", err)
	}
	if resolved.Info.Version != "1.0.0" {
		t.Fatalf("exact version: got %s, want 1.0.0", resolved.Info.Version)
	}

	// Pending versions never win latest.
	err := query(t, reg, deps, QueryMsg{Resolve: &ResolveQuery{Info: objects.NewModuleInfo("abstract", "oracle", "1.1.0")}}, nil)
	if !errors.IsCode(err, errors.CodeModuleNotApproved) {
		t.Fatalf("resolve pending exact: got %v", err)
	}
}

func TestListModules(t *testing.T) {
	reg, deps := newRegistry(t)

	for _, name := range []string{"staking", "oracle", "payments"} {
		claimAndRegister(t, reg, deps,
			objects.NewModuleInfo("abstract", name, "1.0.0"),
			objects.AdapterRef{Address: objects.Address("adapter-" + name)})
	}
	if err := exec(t, reg, deps, admin, ExecuteMsg{Approve: &ApproveMsg{
		Modules: []objects.ModuleInfo{objects.NewModuleInfo("abstract", "staking", "1.0.0")},
	}}); err != nil {
		t.Fatalf("approve: %v", err)
	}

	var resp ModulesResponse
	if err := query(t, reg, deps, QueryMsg{Modules: &ModulesQuery{Filter: `status = "approved"`}}, &resp); err != nil {
		t.Fatalf("list approved: %v", err)
	}
	if len(resp.Records) != 1 || resp.Records[0].Info.Name != "staking" {
		t.Fatalf("approved listing: got %+v", resp.Records)
	}

	// Page through all records one at a time.
	var seen []string
	token := ""
	for {
		resp = ModulesResponse{}
		if err := query(t, reg, deps, QueryMsg{Modules: &ModulesQuery{PageSize: 1, PageToken: token}}, &resp); err != nil {
			t.Fatalf("list page: %v", err)
		}
		for _, rec := range resp.Records {
			seen = append(seen, rec.Info.Name)
		}
		if resp.NextPageToken == "" {
			break
		}
		token = resp.NextPageToken
	}
	if len(seen) != 3 {
		t.Fatalf("paged records: got %v", seen)
	}
	// Registration order is preserved across pages.
	want := []string{"staking", "oracle", "payments"}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("page order: got %v, want %v", seen, want)
		}
	}

	// A cursor from one filter cannot continue a different listing.
	if err := query(t, reg, deps, QueryMsg{Modules: &ModulesQuery{PageSize: 1}}, &resp); err != nil {
		t.Fatalf("first page: %v", err)
	}
	err := query(t, reg, deps, QueryMsg{Modules: &ModulesQuery{Filter: `status = "approved"`, PageToken: resp.NextPageToken}}, nil)
	if !errors.IsCode(err, errors.CodeInvalidCursor) {
		t.Fatalf("cursor across filters: got %v", err)
	}

	err = query(t, reg, deps, QueryMsg{Modules: &ModulesQuery{Filter: `bogus ~ "x"`}}, nil)
	if !errors.IsCode(err, errors.CodeInvalidFilter) {
		t.Fatalf("invalid filter: got %v", err)
	}
}

func TestAccountDirectory(t *testing.T) {
	reg, deps := newRegistry(t)
	id := objects.LocalAccountId(1)

	msg := ExecuteMsg{RegisterAccount: &RegisterAccountMsg{
		AccountID: id, Controller: "ctrl1", Holder: "hold1",
	}}
	// No factory configured yet.
	if err := exec(t, reg, deps, factory, msg); !errors.IsCode(err, errors.CodeUnauthorized) {
		t.Fatalf("register account without factory: got %v", err)
	}

	fac := factory
	if err := exec(t, reg, deps, admin, ExecuteMsg{UpdateConfig: &UpdateConfigMsg{Factory: &fac}}); err != nil {
		t.Fatalf("update config: %v", err)
	}
	if err := exec(t, reg, deps, "intruder", msg); !errors.IsCode(err, errors.CodeUnauthorized) {
		t.Fatalf("register account by non-factory: got %v", err)
	}
	if err := exec(t, reg, deps, factory, msg); err != nil {
		t.Fatalf("register account: %v", err)
	}
	if err := exec(t, reg, deps, factory, msg); err == nil {
		t.Fatal("duplicate account registration accepted")
	}

	var acct AccountResponse
	if err := query(t, reg, deps, QueryMsg{Account: &AccountQuery{AccountID: id}}, &acct); err != nil {
		t.Fatalf("account query: %v", err)
	}
	if acct.Controller != "ctrl1" || acct.Holder != "hold1" {
		t.Fatalf("account record: got %+v", acct)
	}

	err := query(t, reg, deps, QueryMsg{Account: &AccountQuery{AccountID: objects.LocalAccountId(99)}}, nil)
	if !errors.IsCode(err, errors.CodeAccountNotFound) {
		t.Fatalf("missing account: got %v", err)
	}
}
