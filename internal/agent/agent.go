// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package agent is the userspace side of the usbfilter protocol. It owns
// the transport to the kernel peer, the receive queue and the rule store,
// and turns each operation into one request/acknowledgement exchange.
package agent

import (
	"context"
	"sync"
	"time"

	"grimm.is/usbwall/internal/errors"
	"grimm.is/usbwall/internal/logging"
	"grimm.is/usbwall/internal/metrics"
	"grimm.is/usbwall/internal/nlm"
	"grimm.is/usbwall/internal/rule"
	"grimm.is/usbwall/internal/state"
	"grimm.is/usbwall/internal/transport"
)

const (
	DefaultAckTimeout   = 5 * time.Second
	DefaultPollInterval = 10 * time.Millisecond
)

// Options configures an Agent. Zero values select defaults; Store may be
// nil, in which case nothing is persisted and Reconcile is unavailable.
type Options struct {
	AckTimeout   time.Duration
	PollInterval time.Duration
	Logger       *logging.Logger
	Metrics      *metrics.Metrics
	Store        *state.Store
}

// Agent exchanges protocol messages with the kernel peer.
type Agent struct {
	tr      transport.Transport
	queue   *nlm.Queue
	store   *state.Store
	metrics *metrics.Metrics
	logger  *logging.Logger

	ackTimeout   time.Duration
	pollInterval time.Duration

	// reqMu keeps one request in flight at a time.
	reqMu sync.Mutex

	mu       sync.RWMutex
	session  string
	enabled  *bool
	behavior *rule.Action
	lastAck  time.Time
}

// New returns an agent speaking over tr. Run must be started before any
// request is made.
func New(tr transport.Transport, opts Options) *Agent {
	if opts.AckTimeout <= 0 {
		opts.AckTimeout = DefaultAckTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Logger == nil {
		opts.Logger = logging.WithComponent("agent")
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}

	q := nlm.NewQueue()
	q.Init()
	return &Agent{
		tr:           tr,
		queue:        q,
		store:        opts.Store,
		metrics:      opts.Metrics,
		logger:       opts.Logger,
		ackTimeout:   opts.AckTimeout,
		pollInterval: opts.PollInterval,
	}
}

// Run receives frames from the kernel peer and queues them until ctx is
// cancelled or the transport is closed. Frames that fail to decode are
// logged and counted; they never reach the queue.
func (a *Agent) Run(ctx context.Context) error {
	a.logger.Info("receiver started")
	defer a.logger.Info("receiver stopped")

	for {
		frame, err := a.tr.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, transport.ErrClosed) {
				return nil
			}
			return errors.Wrap(err, errors.KindUnavailable, "receive failed")
		}

		env, err := nlm.Decode(frame)
		if err != nil {
			a.metrics.DecodeErrors.WithLabelValues(decodeReason(err)).Inc()
			a.logger.WithError(err).Warn("dropping undecodable frame", "len", len(frame))
			a.logger.Debug("undecodable frame", "hex", nlm.HexDump(frame))
			continue
		}

		a.metrics.FramesReceived.WithLabelValues(env.Opcode.String()).Inc()
		if env.Opcode == nlm.OpAck {
			a.metrics.Acks.WithLabelValues(env.Result.String()).Inc()
		}
		a.logger.Debug("received", "msg", env.String())

		if err := a.enqueue(ctx, env); err != nil {
			return nil
		}
	}
}

// enqueue retries a full queue every poll interval; the consumer drains it
// as it waits for its acknowledgement.
func (a *Agent) enqueue(ctx context.Context, env nlm.Envelope) error {
	for {
		err := a.queue.Add(env)
		if err == nil {
			a.metrics.QueueDepth.Set(float64(a.queue.Count()))
			return nil
		}
		if !errors.Is(err, nlm.ErrQueueFull) {
			return err
		}
		a.metrics.QueueFull.Inc()
		a.logger.Debug("queue full, retrying", "msg", env.String())

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(a.pollInterval):
		}
	}
}

func decodeReason(err error) string {
	switch {
	case errors.Is(err, nlm.ErrMalformedFrame):
		return "malformed"
	case errors.Is(err, nlm.ErrUnknownOpcode):
		return "opcode"
	case errors.Is(err, nlm.ErrUnknownPayloadKind):
		return "payload_kind"
	}
	return "other"
}
