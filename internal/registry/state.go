package registry

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/louisbranch/accord/internal/kv"
	"github.com/louisbranch/accord/internal/objects"
)

const (
	keyConfig = "config"
	keyModSeq = "modseq"

	nsPrefix   = "ns/"
	modPrefix  = "mod/"
	acctPrefix = "acct/"
)

// Config is the registry's persisted configuration.
type Config struct {
	Admin objects.Address `json:"admin"`
	// Factory is the only address allowed to register account pairs in
	// the directory. Set after the factory is instantiated.
	Factory objects.Address `json:"factory,omitempty"`
}

// Record is one registered module version. Rejected records keep their
// row (the version number stays burned) but lose the reference.
type Record struct {
	Info         objects.ModuleInfo   `json:"info"`
	Reference    json.RawMessage      `json:"reference,omitempty"`
	Dependencies []objects.Dependency `json:"dependencies,omitempty"`
	Status       Status               `json:"status"`
	// Seq orders records for cursor pagination, assigned at first
	// registration.
	Seq uint64 `json:"seq"`
}

// accountRecord is one directory entry binding an account id to its pair.
type accountRecord struct {
	Controller objects.Address `json:"controller"`
	Holder     objects.Address `json:"holder"`
}

func modKey(info objects.ModuleInfo) []byte {
	return []byte(modPrefix + info.Namespace + "/" + info.Name + "/" + info.Version)
}

func modVersionsPrefix(namespace, name string) []byte {
	return []byte(modPrefix + namespace + "/" + name + "/")
}

func nsKey(namespace string) []byte {
	return []byte(nsPrefix + namespace)
}

func acctKey(id objects.AccountId) []byte {
	return []byte(acctPrefix + id.String())
}

func loadConfig(store kv.Store) (Config, error) {
	raw, err := store.Get([]byte(keyConfig))
	if err != nil {
		return Config{}, err
	}
	if raw == nil {
		return Config{}, fmt.Errorf("registry config not initialized")
	}
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal registry config: %w", err)
	}
	return cfg, nil
}

func saveConfig(store kv.Store, cfg Config) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal registry config: %w", err)
	}
	return store.Set([]byte(keyConfig), raw)
}

func loadRecord(store kv.Store, info objects.ModuleInfo) (Record, bool, error) {
	raw, err := store.Get(modKey(info))
	if err != nil {
		return Record{}, false, err
	}
	if raw == nil {
		return Record{}, false, nil
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, false, fmt.Errorf("unmarshal record %s: %w", info, err)
	}
	return rec, true, nil
}

func saveRecord(store kv.Store, rec Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record %s: %w", rec.Info, err)
	}
	return store.Set(modKey(rec.Info), raw)
}

func nextModSeq(store kv.Store) (uint64, error) {
	raw, err := store.Get([]byte(keyModSeq))
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
	if err := store.Set([]byte(keyModSeq), next[:]); err != nil {
		return 0, err
	}
	return seq, nil
}

func loadNamespaceOwner(store kv.Store, namespace string) (objects.Address, bool, error) {
	raw, err := store.Get(nsKey(namespace))
	if err != nil {
		return "", false, err
	}
	if raw == nil {
		return "", false, nil
	}
	return objects.Address(raw), true, nil
}

func loadAccount(store kv.Store, id objects.AccountId) (accountRecord, bool, error) {
	raw, err := store.Get(acctKey(id))
	if err != nil {
		return accountRecord{}, false, err
	}
	if raw == nil {
		return accountRecord{}, false, nil
	}
	var rec accountRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return accountRecord{}, false, fmt.Errorf("unmarshal account %s: %w", id, err)
	}
	return rec, true, nil
}

func saveAccount(store kv.Store, id objects.AccountId, rec accountRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal account %s: %w", id, err)
	}
	return store.Set(acctKey(id), raw)
}
