// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package kernel

import (
	"context"
	"sync"

	"grimm.is/usbwall/internal/logging"
	"grimm.is/usbwall/internal/nlm"
	"grimm.is/usbwall/internal/rule"
	"grimm.is/usbwall/internal/transport"
)

// SimPeer is a stateful in-memory kernel peer. It implements
// transport.Transport: frames passed to Send are decoded and applied, and
// the replies the kernel module would send come back from Receive. Like the
// kernel, Send never waits for the reader.
type SimPeer struct {
	mu sync.RWMutex

	table    table
	enabled  bool
	behavior rule.Action
	sessions int

	replyMu   sync.Mutex
	replies   [][]byte
	notify    chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	logger *logging.Logger
}

var _ transport.Transport = (*SimPeer)(nil)

// NewSimPeer returns an enabled peer with an empty table and ALLOW as the
// default behavior.
func NewSimPeer(logger *logging.Logger) *SimPeer {
	if logger == nil {
		logger = logging.WithComponent("sim")
	}
	return &SimPeer{
		enabled:  true,
		behavior: rule.Allow,
		notify:   make(chan struct{}, 1),
		done:     make(chan struct{}),
		logger:   logger,
	}
}

// Send applies one request frame.
func (s *SimPeer) Send(ctx context.Context, frame []byte) error {
	select {
	case <-s.done:
		return transport.ErrClosed
	default:
	}

	env, err := nlm.Decode(frame)
	if err != nil {
		s.logger.Warn("rejecting malformed frame", "error", err, "len", len(frame))
		s.reply(nlm.NewAck(nlm.ResultFailure))
		return nil
	}
	s.logger.Debug("request", "msg", env.String())

	s.reply(s.handle(env)...)
	return nil
}

// Receive returns the next reply frame.
func (s *SimPeer) Receive(ctx context.Context) ([]byte, error) {
	for {
		select {
		case <-s.done:
			return nil, transport.ErrClosed
		default:
		}
		if f, ok := s.popReply(); ok {
			return f, nil
		}
		select {
		case <-s.notify:
		case <-s.done:
			return nil, transport.ErrClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Close stops the peer. Pending replies are discarded.
func (s *SimPeer) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

func (s *SimPeer) reply(envs ...nlm.Envelope) {
	if len(envs) == 0 {
		return
	}
	s.replyMu.Lock()
	for _, env := range envs {
		s.replies = append(s.replies, nlm.Encode(env))
	}
	s.replyMu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *SimPeer) popReply() ([]byte, bool) {
	s.replyMu.Lock()
	defer s.replyMu.Unlock()
	if len(s.replies) == 0 {
		return nil, false
	}
	f := s.replies[0]
	s.replies = s.replies[1:]
	return f, true
}

func (s *SimPeer) handle(env nlm.Envelope) []nlm.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()

	ok := nlm.NewAck(nlm.ResultSuccess)
	fail := nlm.NewAck(nlm.ResultFailure)

	switch env.Opcode {
	case nlm.OpInit:
		s.sessions++
		return []nlm.Envelope{ok}

	case nlm.OpAdd:
		if env.Payload == nil || env.Payload.Validate() != nil {
			return []nlm.Envelope{fail}
		}
		if !s.table.add(env.Payload) {
			s.logger.Info("duplicate rule", "name", env.Payload.PolicyName())
			return []nlm.Envelope{fail}
		}
		return []nlm.Envelope{ok}

	case nlm.OpDel:
		if env.Payload == nil || !s.table.remove(env.Payload) {
			return []nlm.Envelope{fail}
		}
		return []nlm.Envelope{ok}

	case nlm.OpEna, nlm.OpDis:
		s.enabled = env.Opcode == nlm.OpEna
		return []nlm.Envelope{ok}

	case nlm.OpChg:
		if !env.Behavior.Known() {
			return []nlm.Envelope{fail}
		}
		s.behavior = env.Behavior
		return []nlm.Envelope{ok}

	case nlm.OpSyn, nlm.OpDmp:
		policies := s.table.policies()
		out := make([]nlm.Envelope, 0, len(policies)+1)
		for _, p := range policies {
			if env.Opcode == nlm.OpSyn {
				out = append(out, nlm.NewAdd(p))
			} else {
				item := nlm.NewAck(nlm.ResultSuccess)
				item.Payload = p
				out = append(out, item)
			}
		}
		return append(out, nlm.NewAck(nlm.ResultLast))

	case nlm.OpAck:
		return nil
	}
	return []nlm.Envelope{fail}
}

// Check returns the verdict for e. A disabled filter allows everything;
// otherwise the first matching rule decides and the default behavior
// covers the rest.
func (s *SimPeer) Check(e rule.Event) rule.Action {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.enabled {
		return rule.Allow
	}
	if a, ok := s.table.verdict(e); ok {
		return a
	}
	return s.behavior
}

// Policies returns the installed rules in dump order.
func (s *SimPeer) Policies() []rule.Policy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.table.policies()
}

// State returns a snapshot of the peer's switches and table sizes.
func (s *SimPeer) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return State{
		Enabled:  s.enabled,
		Behavior: s.behavior,
		Sessions: s.sessions,
		Rules:    len(s.table.rules),
		Simple:   len(s.table.simple),
	}
}

var _ Enforcer = (*SimPeer)(nil)
