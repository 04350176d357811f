// Package servicetest holds in-memory collaborators for service tests.
package servicetest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fatflowers/casperflow/internal/platform/cache"
	"github.com/fatflowers/casperflow/internal/platform/casper"
	"github.com/fatflowers/casperflow/internal/platform/events"
	"github.com/fatflowers/casperflow/pkg/types"
)

// FakeClock is a manually advanced clock.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// FakeChain records submissions and answers status queries from a script.
// New submissions settle as Outcome after PendingPolls pending answers.
type FakeChain struct {
	mu sync.Mutex

	Outcome      types.TxStatus
	ErrorMessage string
	PendingPolls int
	SubmitErr    error
	StatusErr    error
	Balances     map[string]string

	Transfers []casper.TransferRequest
	Calls     []casper.ContractCall
	polls     map[string]int
	outcomes  map[string]casper.TxOutcome
	seq       int
}

var _ casper.Client = (*FakeChain)(nil)

func NewFakeChain() *FakeChain {
	return &FakeChain{
		Outcome:  types.TxStatusSucceeded,
		Balances: map[string]string{},
		polls:    map[string]int{},
		outcomes: map[string]casper.TxOutcome{},
	}
}

func (c *FakeChain) register() string {
	c.seq++
	hash := fmt.Sprintf("deploy-%04d", c.seq)
	c.polls[hash] = c.PendingPolls
	c.outcomes[hash] = casper.TxOutcome{Status: c.Outcome, ErrorMessage: c.ErrorMessage, BlockHash: "block-" + hash}
	return hash
}

func (c *FakeChain) SubmitTransfer(_ context.Context, req casper.TransferRequest) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SubmitErr != nil {
		return "", c.SubmitErr
	}
	c.Transfers = append(c.Transfers, req)
	return c.register(), nil
}

func (c *FakeChain) SubmitContractCall(_ context.Context, call casper.ContractCall) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SubmitErr != nil {
		return "", c.SubmitErr
	}
	c.Calls = append(c.Calls, call)
	return c.register(), nil
}

func (c *FakeChain) TransactionStatus(_ context.Context, hash string) (casper.TxOutcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.StatusErr != nil {
		return casper.TxOutcome{}, c.StatusErr
	}
	out, ok := c.outcomes[hash]
	if !ok {
		return casper.TxOutcome{Status: types.TxStatusPending}, nil
	}
	if c.polls[hash] > 0 {
		c.polls[hash]--
		return casper.TxOutcome{Status: types.TxStatusPending}, nil
	}
	return out, nil
}

// Settle overrides the outcome of a submitted transaction and makes it final.
func (c *FakeChain) Settle(hash string, status types.TxStatus, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.polls[hash] = 0
	c.outcomes[hash] = casper.TxOutcome{Status: status, ErrorMessage: msg}
}

func (c *FakeChain) Balance(_ context.Context, publicKey, _ string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.Balances[publicKey]; ok {
		return b, nil
	}
	return "0", nil
}

func (c *FakeChain) Submissions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Transfers) + len(c.Calls)
}

// Recorder is an events.Publisher that keeps everything it is given.
type Recorder struct {
	mu     sync.Mutex
	events []events.Event
}

var _ events.Publisher = (*Recorder)(nil)

func (r *Recorder) Publish(_ context.Context, ev events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *Recorder) Close() error { return nil }

func (r *Recorder) Events() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

// Types lists the published event types in order.
func (r *Recorder) Types() []string {
	evs := r.Events()
	out := make([]string, len(evs))
	for i, ev := range evs {
		out[i] = ev.Type
	}
	return out
}

// MemCache is a map-backed cache.Cache that ignores TTLs.
type MemCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

var _ cache.Cache = (*MemCache)(nil)

func NewMemCache() *MemCache {
	return &MemCache{data: map[string][]byte{}}
}

func (c *MemCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *MemCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = append([]byte(nil), value...)
	return nil
}

func (c *MemCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.data, k)
	}
	return nil
}

func (c *MemCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}
