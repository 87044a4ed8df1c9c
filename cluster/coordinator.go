// Copyright (c) 2026 Amun AI AB
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package cluster

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/amun-ai/hypha-go/hyphaerrors"
	"github.com/amun-ai/hypha-go/internal/backoff"
	"github.com/amun-ai/hypha-go/internal/lifecycle"
)

const (
	keyServers       = "cluster:servers:"
	keyActiveServers = "cluster:active_servers"
	keyClients       = "cluster:clients:"
	chanForward      = "cluster:forward:"

	// Consecutive store failures before the coordinator marks itself
	// inactive; a later success re-enables it.
	failureThreshold = 3

	storeAttempts = 3
)

// DeliverFunc hands a forwarded frame to a locally connected client. It
// reports whether the client was found.
type DeliverFunc func(workspace, clientID string, data []byte) bool

// CoordinatorConfig carries the identity and timing of one cluster member.
type CoordinatorConfig struct {
	ServerID string
	URL      string
	Port     int

	HeartbeatInterval time.Duration
	CleanupInterval   time.Duration
	ServerTTL         time.Duration
}

// serverRecord is the JSON value stored under cluster:servers:{id}.
type serverRecord struct {
	ServerID string `json:"server_id"`
	URL      string `json:"url,omitempty"`
	Port     int    `json:"port,omitempty"`
	Started  int64  `json:"started"`
}

// forwardEnvelope is the pub/sub message carrying one frame to another
// instance.
type forwardEnvelope struct {
	Type         string `json:"type"`
	TargetClient string `json:"target_client"`
	Message      string `json:"message"` // base64 frame bytes
	FromServer   string `json:"from_server,omitempty"`
}

const envelopeForward = "forward_message"

// Coordinator keeps this instance registered in the shared store, tracks
// where clients live, and forwards frames between instances. A store outage
// degrades it to inactive rather than failing the router.
type Coordinator struct {
	config  CoordinatorConfig
	store   Store
	deliver DeliverFunc
	logger  *zap.Logger
	retry   backoff.Exponential

	once     lifecycle.Once
	active   atomic.Bool
	failures atomic.Int32

	mu      sync.Mutex
	clients map[string]struct{} // local "workspace/client" ids to keep alive

	sub  Subscription
	stop chan struct{}
	done sync.WaitGroup
}

// NewCoordinator builds a coordinator; it does nothing until Start.
func NewCoordinator(cfg CoordinatorConfig, store Store, deliver DeliverFunc, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		config:  cfg,
		store:   store,
		deliver: deliver,
		logger:  logger,
		retry:   backoff.Exponential{Base: 50 * time.Millisecond, Max: time.Second},
		clients: make(map[string]struct{}),
		stop:    make(chan struct{}),
	}
}

// Active reports whether the coordinator currently trusts the store.
func (c *Coordinator) Active() bool { return c.active.Load() }

// Start registers this server and begins heartbeating, stale-server
// cleanup, and forwarded-frame consumption.
func (c *Coordinator) Start() error {
	return c.once.Start(func() error {
		if err := c.store.Ping(); err != nil {
			return hyphaerrors.StoreUnavailableErrorf("coordination store unreachable: %v", err)
		}
		if err := c.registerServer(); err != nil {
			return err
		}
		sub, err := c.store.Subscribe(chanForward + c.config.ServerID)
		if err != nil {
			return hyphaerrors.StoreUnavailableErrorf("subscribing forward channel: %v", err)
		}
		c.sub = sub
		c.active.Store(true)

		c.done.Add(3)
		go c.heartbeatLoop()
		go c.cleanupLoop()
		go c.consumeLoop()
		c.logger.Info("cluster coordinator started", zap.String("server_id", c.config.ServerID))
		return nil
	})
}

// Stop deregisters the server and halts all background loops.
func (c *Coordinator) Stop() error {
	return c.once.Stop(func() error {
		close(c.stop)
		var err error
		if c.sub != nil {
			err = multierr.Append(err, c.sub.Close())
		}
		c.done.Wait()
		c.active.Store(false)
		err = multierr.Append(err, c.store.SetRemove(keyActiveServers, c.config.ServerID))
		err = multierr.Append(err, c.store.Delete(
			keyServers+c.config.ServerID,
			keyServers+c.config.ServerID+":clients",
		))
		return err
	})
}

func (c *Coordinator) registerServer() error {
	rec, err := json.Marshal(serverRecord{
		ServerID: c.config.ServerID,
		URL:      c.config.URL,
		Port:     c.config.Port,
		Started:  time.Now().Unix(),
	})
	if err != nil {
		return err
	}
	if err := c.withRetry(func() error {
		return c.store.SetWithTTL(keyServers+c.config.ServerID, string(rec), c.config.ServerTTL)
	}); err != nil {
		return hyphaerrors.StoreUnavailableErrorf("registering server: %v", err)
	}
	if err := c.withRetry(func() error {
		return c.store.SetAdd(keyActiveServers, c.config.ServerID)
	}); err != nil {
		return hyphaerrors.StoreUnavailableErrorf("joining active set: %v", err)
	}
	return nil
}

// RegisterClient records that a client now lives on this instance.
func (c *Coordinator) RegisterClient(workspace, clientID string) {
	fullID := workspace + "/" + clientID
	c.mu.Lock()
	c.clients[fullID] = struct{}{}
	c.mu.Unlock()
	c.storeOp(func() error {
		if err := c.store.SetWithTTL(keyClients+fullID, c.config.ServerID, c.config.ServerTTL); err != nil {
			return err
		}
		return c.store.SetAdd(keyServers+c.config.ServerID+":clients", fullID)
	})
}

// UnregisterClient removes the client's placement record.
func (c *Coordinator) UnregisterClient(workspace, clientID string) {
	fullID := workspace + "/" + clientID
	c.mu.Lock()
	delete(c.clients, fullID)
	c.mu.Unlock()
	c.storeOp(func() error {
		if err := c.store.Delete(keyClients + fullID); err != nil {
			return err
		}
		return c.store.SetRemove(keyServers+c.config.ServerID+":clients", fullID)
	})
}

// Find looks up which instance hosts workspace/clientID. It reports false
// for unknown clients and for clients hosted here.
func (c *Coordinator) Find(workspace, clientID string) (string, bool) {
	var serverID string
	var found bool
	err := c.withRetry(func() error {
		var err error
		serverID, found, err = c.store.Get(keyClients + workspace + "/" + clientID)
		return err
	})
	if err != nil {
		c.recordFailure(err)
		return "", false
	}
	c.recordSuccess()
	if !found || serverID == c.config.ServerID {
		return "", false
	}
	return serverID, true
}

// Forward publishes a frame to the instance hosting the recipient.
func (c *Coordinator) Forward(serverID, recipientFullID string, data []byte) error {
	body, err := json.Marshal(forwardEnvelope{
		Type:         envelopeForward,
		TargetClient: recipientFullID,
		Message:      base64.StdEncoding.EncodeToString(data),
		FromServer:   c.config.ServerID,
	})
	if err != nil {
		return err
	}
	if err := c.withRetry(func() error {
		return c.store.Publish(chanForward+serverID, body)
	}); err != nil {
		c.recordFailure(err)
		return hyphaerrors.StoreUnavailableErrorf("forwarding to %q: %v", serverID, err)
	}
	c.recordSuccess()
	return nil
}

// Broadcast publishes payload to every active instance's forward channel.
func (c *Coordinator) Broadcast(payload []byte) error {
	servers, err := c.store.SetMembers(keyActiveServers)
	if err != nil {
		c.recordFailure(err)
		return hyphaerrors.StoreUnavailableErrorf("listing active servers: %v", err)
	}
	var errs error
	for _, id := range servers {
		if id == c.config.ServerID {
			continue
		}
		errs = multierr.Append(errs, c.store.Publish(chanForward+id, payload))
	}
	return errs
}

// ---------------------------------------------------------------------------
// Background loops

func (c *Coordinator) heartbeatLoop() {
	defer c.done.Done()
	ticker := time.NewTicker(c.config.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.heartbeat()
		}
	}
}

func (c *Coordinator) heartbeat() {
	err := c.registerServer()
	if err == nil {
		c.mu.Lock()
		clients := make([]string, 0, len(c.clients))
		for id := range c.clients {
			clients = append(clients, id)
		}
		c.mu.Unlock()
		for _, id := range clients {
			if e := c.store.SetWithTTL(keyClients+id, c.config.ServerID, c.config.ServerTTL); e != nil {
				err = e
				break
			}
		}
	}
	if err != nil {
		c.recordFailure(err)
		return
	}
	c.recordSuccess()
}

func (c *Coordinator) cleanupLoop() {
	defer c.done.Done()
	ticker := time.NewTicker(c.config.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.cleanupStaleServers()
		}
	}
}

// cleanupStaleServers evicts servers whose heartbeat key expired, together
// with the client placements they left behind.
func (c *Coordinator) cleanupStaleServers() {
	servers, err := c.store.SetMembers(keyActiveServers)
	if err != nil {
		c.recordFailure(err)
		return
	}
	c.recordSuccess()
	for _, id := range servers {
		if id == c.config.ServerID {
			continue
		}
		_, alive, err := c.store.Get(keyServers + id)
		if err != nil || alive {
			continue
		}
		clients, err := c.store.SetMembers(keyServers + id + ":clients")
		if err != nil {
			continue
		}
		for _, fullID := range clients {
			_ = c.store.Delete(keyClients + fullID)
		}
		_ = c.store.Delete(keyServers + id + ":clients")
		_ = c.store.SetRemove(keyActiveServers, id)
		c.logger.Info("evicted stale cluster server", zap.String("server_id", id))
	}
}

func (c *Coordinator) consumeLoop() {
	defer c.done.Done()
	for msg := range c.sub.Messages() {
		var env forwardEnvelope
		if err := json.Unmarshal(msg, &env); err != nil {
			c.logger.Warn("malformed forwarded envelope", zap.Error(err))
			continue
		}
		if env.Type != envelopeForward {
			c.logger.Debug("ignoring channel message", zap.String("type", env.Type))
			continue
		}
		data, err := base64.StdEncoding.DecodeString(env.Message)
		if err != nil {
			c.logger.Warn("malformed forwarded payload", zap.Error(err))
			continue
		}
		workspace, clientID, ok := strings.Cut(env.TargetClient, "/")
		if !ok {
			c.logger.Warn("malformed forwarded recipient", zap.String("to", env.TargetClient))
			continue
		}
		if !c.deliver(workspace, clientID, data) {
			// The placement record is stale; drop it so senders stop
			// targeting this instance.
			c.logger.Warn("forwarded frame for unknown local client", zap.String("to", env.TargetClient))
			_ = c.store.Delete(keyClients + env.TargetClient)
		}
	}
}

// ---------------------------------------------------------------------------
// Store failure accounting

func (c *Coordinator) withRetry(op func() error) error {
	var err error
	for attempt := uint(0); attempt < storeAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(c.retry.Duration(attempt - 1))
		}
		if err = op(); err == nil {
			return nil
		}
	}
	return err
}

// storeOp runs a best-effort store mutation with retries, tracking health.
func (c *Coordinator) storeOp(op func() error) {
	if err := c.withRetry(op); err != nil {
		c.recordFailure(err)
		return
	}
	c.recordSuccess()
}

func (c *Coordinator) recordFailure(err error) {
	n := c.failures.Inc()
	if n >= failureThreshold && c.active.CAS(true, false) {
		c.logger.Warn("coordination store unhealthy; cluster routing disabled", zap.Error(err))
	}
}

func (c *Coordinator) recordSuccess() {
	c.failures.Store(0)
	if c.active.CAS(false, true) {
		c.logger.Info("coordination store recovered; cluster routing enabled")
	}
}
