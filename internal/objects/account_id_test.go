package objects

import "testing"

func TestAccountIdEqualMatchesSeqAndTrace(t *testing.T) {
	a := RemoteAccountId(4, "juno", "osmosis")
	b := RemoteAccountId(4, "juno", "osmosis")
	if !a.Equal(b) {
		t.Fatal("expected equal ids")
	}
	if a.Equal(RemoteAccountId(4, "juno")) {
		t.Fatal("expected trace mismatch to differ")
	}
	if a.Equal(RemoteAccountId(5, "juno", "osmosis")) {
		t.Fatal("expected seq mismatch to differ")
	}
}

func TestAccountIdLocality(t *testing.T) {
	local := LocalAccountId(1)
	if !local.IsLocal() || local.IsRemote() {
		t.Fatal("empty trace must be local")
	}
	remote := local.PushChain("juno")
	if !remote.IsRemote() {
		t.Fatal("pushed trace must be remote")
	}
	if local.IsRemote() {
		t.Fatal("push must not mutate the receiver")
	}
}

func TestAccountIdStringRoundTrip(t *testing.T) {
	cases := []AccountId{
		LocalAccountId(0),
		LocalAccountId(42),
		RemoteAccountId(7, "juno"),
		RemoteAccountId(9, "juno", "osmosis"),
	}
	for _, id := range cases {
		parsed, err := ParseAccountId(id.String())
		if err != nil {
			t.Fatalf("parse %q: %v", id.String(), err)
		}
		if !parsed.Equal(id) {
			t.Fatalf("round trip mismatch: %v != %v", parsed, id)
		}
	}
}

func TestAccountIdStringFormat(t *testing.T) {
	if got := LocalAccountId(3).String(); got != "local-3" {
		t.Fatalf("unexpected local format %q", got)
	}
	if got := RemoteAccountId(3, "juno", "osmosis").String(); got != "juno>osmosis-3" {
		t.Fatalf("unexpected remote format %q", got)
	}
}

func TestChainNameValidate(t *testing.T) {
	if err := ChainName("juno-1").Validate(); err != nil {
		t.Fatalf("valid chain name rejected: %v", err)
	}
	if err := ChainName("").Validate(); err == nil {
		t.Fatal("expected empty chain name to fail")
	}
	if err := ChainName("local").Validate(); err == nil {
		t.Fatal("expected reserved name to fail")
	}
	if err := ChainName("Juno").Validate(); err == nil {
		t.Fatal("expected uppercase to fail")
	}
}
