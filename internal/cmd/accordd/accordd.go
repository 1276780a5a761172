// Package accordd parses daemon configuration and runs a loopback
// topology: two chain runtimes wired through the in-process relay, with
// the full account stack deployed on each.
package accordd

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/louisbranch/accord/internal/controller"
	"github.com/louisbranch/accord/internal/factory"
	"github.com/louisbranch/accord/internal/holder"
	"github.com/louisbranch/accord/internal/host"
	"github.com/louisbranch/accord/internal/kv"
	"github.com/louisbranch/accord/internal/kv/sqlite"
	"github.com/louisbranch/accord/internal/objects"
	entrypoint "github.com/louisbranch/accord/internal/platform/cmd"
	"github.com/louisbranch/accord/internal/platform/metrics"
	"github.com/louisbranch/accord/internal/registry"
	"github.com/louisbranch/accord/internal/relay"
	"github.com/louisbranch/accord/internal/runtime"
)

// Config holds daemon configuration.
type Config struct {
	Chain           string  `env:"ACCORD_CHAIN" envDefault:"neutron"`
	Counterparty    string  `env:"ACCORD_COUNTERPARTY" envDefault:"juno"`
	DataDir         string  `env:"ACCORD_DATA_DIR" envDefault:"data"`
	ChainManifest   string  `env:"ACCORD_CHAIN_MANIFEST"`
	RelayerMnemonic string  `env:"ACCORD_RELAYER_MNEMONIC"`
	MetricsAddr     string  `env:"ACCORD_METRICS_ADDR" envDefault:":9464"`
	RelayRate       float64 `env:"ACCORD_RELAY_RATE" envDefault:"10"`
	RelayBurst      int     `env:"ACCORD_RELAY_BURST" envDefault:"20"`
	CreationFee     uint64  `env:"ACCORD_CREATION_FEE" envDefault:"0"`
	FeeDenom        string  `env:"ACCORD_FEE_DENOM" envDefault:"utoken"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.Chain, "chain", cfg.Chain, "Local chain name")
	fs.StringVar(&cfg.Counterparty, "counterparty", cfg.Counterparty, "Loopback counterparty chain name")
	fs.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "Directory for per-chain SQLite state")
	fs.StringVar(&cfg.ChainManifest, "manifest", cfg.ChainManifest, "Chain manifest YAML path")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Prometheus listen address")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the daemon and blocks until the context is cancelled.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceDaemon, func(ctx context.Context) error {
		return run(ctx, cfg)
	})
}

// adminAddr is the operator address used for registry governance on
// daemon-managed chains.
const adminAddr = objects.Address("accord-admin")

// chainStack is one deployed chain: its runtime plus the core contract
// addresses.
type chainStack struct {
	name objects.ChainName
	rt   *runtime.Runtime

	Registry objects.Address `json:"registry"`
	Factory  objects.Address `json:"factory"`
	Host     objects.Address `json:"host"`

	transport objects.Address
}

func run(ctx context.Context, cfg Config) error {
	local := objects.ChainName(cfg.Chain)
	remote := objects.ChainName(cfg.Counterparty)
	if err := local.Validate(); err != nil {
		return fmt.Errorf("local chain: %w", err)
	}
	if err := remote.Validate(); err != nil {
		return fmt.Errorf("counterparty chain: %w", err)
	}
	if local == remote {
		return fmt.Errorf("counterparty must differ from the local chain")
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	stopMetrics := serveMetrics(ctx, cfg.MetricsAddr)
	defer stopMetrics()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	fee := objects.Coin{Denom: cfg.FeeDenom, Amount: cfg.CreationFee}

	chains := make([]*chainStack, 0, 2)
	for _, name := range []objects.ChainName{local, remote} {
		store, err := sqlite.Open(filepath.Join(cfg.DataDir, string(name)+".db"))
		if err != nil {
			return fmt.Errorf("open store for %s: %w", name, err)
		}
		defer store.Close()
		stack, err := deployChain(ctx, name, store, m, fee)
		if err != nil {
			return fmt.Errorf("deploy %s: %w", name, err)
		}
		chains = append(chains, stack)
		log.Printf("chain %s ready: registry=%s factory=%s host=%s",
			name, stack.Registry, stack.Factory, stack.Host)
	}

	mnemonic := cfg.RelayerMnemonic
	if mnemonic == "" {
		generated, err := relay.NewMnemonic()
		if err != nil {
			return err
		}
		mnemonic = generated
		log.Printf("generated relayer mnemonic (set ACCORD_RELAYER_MNEMONIC to persist): %s", mnemonic)
	}

	var manifest *relay.Manifest
	if cfg.ChainManifest != "" {
		loaded, err := relay.LoadManifest(cfg.ChainManifest)
		if err != nil {
			return err
		}
		manifest = &loaded
	}

	r := relay.New(
		relay.WithRateLimit(cfg.RelayRate, cfg.RelayBurst),
		relay.WithMetrics(m),
	)
	for _, stack := range chains {
		key, err := relay.KeyFromMnemonic(mnemonic, string(stack.name))
		if err != nil {
			return err
		}
		pub := key.Public().(ed25519.PublicKey)
		if manifest != nil {
			if manifestKey, ok := manifest.GrantKey(stack.name); ok {
				pub = manifestKey
			}
		}
		ep := relay.Endpoint{Runtime: stack.rt, Host: stack.Host, Transport: stack.transport}
		if err := r.AddChain(stack.name, ep, pub); err != nil {
			return err
		}
	}
	log.Printf("loopback relay connected: %s <-> %s", local, remote)

	<-ctx.Done()
	return nil
}

const deploymentKey = "sys/deployment"

// deployChain boots the account stack on a chain, or reloads the
// addresses if the backing store already holds a deployment.
func deployChain(ctx context.Context, name objects.ChainName, store kv.Store, m *metrics.Metrics, fee objects.Coin) (*chainStack, error) {
	rt := runtime.New(name, store, runtime.WithMetrics(m))
	registryCode := rt.StoreCode(registry.Contract)
	controllerCode := rt.StoreCode(controller.Contract)
	holderCode := rt.StoreCode(holder.Contract)
	factoryCode := rt.StoreCode(factory.Contract)
	hostCode := rt.StoreCode(host.Contract)

	stack := &chainStack{name: name, rt: rt, transport: objects.Address("relayer-" + string(name))}
	if raw, err := store.Get([]byte(deploymentKey)); err != nil {
		return nil, err
	} else if raw != nil {
		if err := json.Unmarshal(raw, stack); err != nil {
			return nil, fmt.Errorf("unmarshal deployment record: %w", err)
		}
		return stack, nil
	}

	init, err := json.Marshal(registry.InstantiateMsg{Admin: adminAddr})
	if err != nil {
		return nil, err
	}
	regAddr, _, err := rt.Instantiate(ctx, adminAddr, registryCode, init)
	if err != nil {
		return nil, fmt.Errorf("instantiate registry: %w", err)
	}

	execReg := func(msg registry.ExecuteMsg) error {
		raw, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		_, err = rt.Execute(ctx, adminAddr, regAddr, raw)
		return err
	}

	ref, err := objects.MarshalReference(objects.AccountBaseRef{
		ControllerCodeID: uint64(controllerCode),
		HolderCodeID:     uint64(holderCode),
	})
	if err != nil {
		return nil, err
	}
	base := objects.NewModuleInfo("accord", "account-base", "1.0.0")
	if err := execReg(registry.ExecuteMsg{ClaimNamespace: &registry.ClaimNamespaceMsg{Namespace: "accord"}}); err != nil {
		return nil, fmt.Errorf("claim namespace: %w", err)
	}
	if err := execReg(registry.ExecuteMsg{Register: &registry.RegisterMsg{Info: base, Reference: ref}}); err != nil {
		return nil, fmt.Errorf("register account base: %w", err)
	}
	if err := execReg(registry.ExecuteMsg{Approve: &registry.ApproveMsg{Modules: []objects.ModuleInfo{base}}}); err != nil {
		return nil, fmt.Errorf("approve account base: %w", err)
	}

	facInit, err := json.Marshal(factory.InstantiateMsg{
		Registry:    regAddr,
		AccountBase: objects.LatestModuleInfo("accord", "account-base"),
		CreationFee: fee,
	})
	if err != nil {
		return nil, err
	}
	facAddr, _, err := rt.Instantiate(ctx, adminAddr, factoryCode, facInit)
	if err != nil {
		return nil, fmt.Errorf("instantiate factory: %w", err)
	}

	hostInit, err := json.Marshal(host.InstantiateMsg{
		Registry:  regAddr,
		Factory:   facAddr,
		Transport: stack.transport,
	})
	if err != nil {
		return nil, err
	}
	hostAddr, _, err := rt.Instantiate(ctx, adminAddr, hostCode, hostInit)
	if err != nil {
		return nil, fmt.Errorf("instantiate host: %w", err)
	}

	if err := execReg(registry.ExecuteMsg{UpdateConfig: &registry.UpdateConfigMsg{Factory: &facAddr}}); err != nil {
		return nil, fmt.Errorf("bind factory to registry: %w", err)
	}
	bind, err := json.Marshal(factory.ExecuteMsg{UpdateConfig: &factory.UpdateConfigMsg{Host: &hostAddr}})
	if err != nil {
		return nil, err
	}
	if _, err := rt.Execute(ctx, adminAddr, facAddr, bind); err != nil {
		return nil, fmt.Errorf("bind host to factory: %w", err)
	}

	stack.Registry = regAddr
	stack.Factory = facAddr
	stack.Host = hostAddr
	record, err := json.Marshal(stack)
	if err != nil {
		return nil, err
	}
	if err := store.Set([]byte(deploymentKey), record); err != nil {
		return nil, err
	}
	return stack, nil
}

// serveMetrics exposes the Prometheus endpoint until ctx is cancelled.
func serveMetrics(ctx context.Context, addr string) func() {
	if addr == "" {
		return func() {}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("metrics server: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("metrics shutdown: %v", err)
		}
	}()
	return func() { _ = srv.Close() }
}
