// Package relay moves packets between chain runtimes. The loopback
// relay here connects in-process runtimes for tests and the demo
// daemon; the wire format and the grant checks are what a networked
// relayer would carry.
package relay

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/status"

	"github.com/louisbranch/accord/internal/host"
	"github.com/louisbranch/accord/internal/objects"
	"github.com/louisbranch/accord/internal/platform/errors"
	"github.com/louisbranch/accord/internal/platform/metrics"
	"github.com/louisbranch/accord/internal/runtime"
)

// Endpoint is one chain's delivery surface: its runtime, its host
// contract, and the transport address the host trusts.
type Endpoint struct {
	Runtime   *runtime.Runtime
	Host      objects.Address
	Transport objects.Address
}

// Ack is the delivery acknowledgement returned to the source side.
// Host-level failures surface here; they do not fail Deliver. Code is
// the machine-readable error code and Error the localized message, so
// the source side can react without parsing text.
type Ack struct {
	Success bool   `json:"success"`
	Data    []byte `json:"data,omitempty"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error,omitempty"`
}

type chainLink struct {
	endpoint Endpoint
	grantKey ed25519.PublicKey
	limiter  *rate.Limiter
}

// Relay connects chains and delivers authenticated packets between them.
type Relay struct {
	mu      sync.Mutex
	chains  map[objects.ChainName]*chainLink
	limit   rate.Limit
	burst   int
	locale  string
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures a Relay.
type Option func(*Relay)

// WithRateLimit caps inbound packets per source chain.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(r *Relay) {
		r.limit = rate.Limit(perSecond)
		r.burst = burst
	}
}

// WithMetrics attaches packet counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Relay) { r.metrics = m }
}

// WithLocale selects the message catalog locale for ack errors.
func WithLocale(locale string) Option {
	return func(r *Relay) { r.locale = locale }
}

// WithClock overrides the wall clock, for grant expiry tests.
func WithClock(now func() time.Time) Option {
	return func(r *Relay) { r.now = now }
}

// New returns an empty relay. Without WithRateLimit, delivery is
// unthrottled.
func New(opts ...Option) *Relay {
	r := &Relay{
		chains: make(map[objects.ChainName]*chainLink),
		limit:  rate.Inf,
		locale: errors.DefaultLocale,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AddChain registers a chain endpoint and the public key verifying
// grants minted by that chain's relayer.
func (r *Relay) AddChain(chain objects.ChainName, ep Endpoint, grantKey ed25519.PublicKey) error {
	if err := chain.Validate(); err != nil {
		return err
	}
	if ep.Runtime == nil || ep.Host == "" || ep.Transport == "" {
		return fmt.Errorf("endpoint for %s requires runtime, host, and transport", chain)
	}
	if len(grantKey) != ed25519.PublicKeySize {
		return fmt.Errorf("grant key for %s must be %d bytes", chain, ed25519.PublicKeySize)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.chains[chain]; exists {
		return fmt.Errorf("chain %s is already connected", chain)
	}
	r.chains[chain] = &chainLink{
		endpoint: ep,
		grantKey: grantKey,
		limiter:  rate.NewLimiter(r.limit, r.burst),
	}
	return nil
}

// Deliver carries one packet from source to dest. Transport-level
// failures (unknown chains, throttling, bad grants) return an error;
// host execution failures return a non-success Ack.
func (r *Relay) Deliver(ctx context.Context, source, dest objects.ChainName, grant string, pkt host.Packet) (Ack, error) {
	r.mu.Lock()
	src, srcOK := r.chains[source]
	dst, dstOK := r.chains[dest]
	r.mu.Unlock()
	if !srcOK {
		return Ack{}, errUnknownCounterparty(source)
	}
	if !dstOK {
		return Ack{}, errUnknownCounterparty(dest)
	}

	now := r.now()
	if !src.limiter.AllowN(now, 1) {
		return Ack{}, errors.WithMetadata(errors.CodePacketRateLimited,
			fmt.Sprintf("chain %s exceeded its delivery rate", source),
			map[string]string{"Chain": string(source)})
	}
	if err := VerifyGrant(grant, source, dest, src.grantKey, now); err != nil {
		return Ack{}, err
	}
	r.metrics.PacketReceived(string(source))

	raw, err := json.Marshal(host.ExecuteMsg{ReceivePacket: &host.ReceivePacketMsg{
		SourceChain: source,
		Packet:      pkt,
	}})
	if err != nil {
		return Ack{}, fmt.Errorf("marshal packet delivery: %w", err)
	}
	res, err := dst.endpoint.Runtime.Execute(ctx, dst.endpoint.Transport, dst.endpoint.Host, raw)
	if err != nil {
		r.metrics.PacketFailed(string(source))
		return r.failureAck(err), nil
	}
	return Ack{Success: true, Data: res.Data}, nil
}

// failureAck converts a host execution failure into a coded ack. The
// error passes through the status conversion the platform uses for
// client-facing errors, so the ack carries the error code and the
// message localized for the relay's locale.
func (r *Relay) failureAck(err error) Ack {
	st := status.Convert(errors.HandleError(err, r.locale))
	ack := Ack{Error: st.Message()}
	for _, detail := range st.Details() {
		switch d := detail.(type) {
		case *errdetails.ErrorInfo:
			ack.Code = d.Reason
		case *errdetails.LocalizedMessage:
			ack.Error = d.Message
		}
	}
	return ack
}

func errUnknownCounterparty(chain objects.ChainName) error {
	return errors.WithMetadata(errors.CodeUnknownCounterparty,
		fmt.Sprintf("chain %s is not a known counterparty", chain),
		map[string]string{"Chain": string(chain)})
}
