// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package agent

import (
	"context"
	"time"

	"grimm.is/usbwall/internal/errors"
	"grimm.is/usbwall/internal/nlm"
)

var (
	// ErrRejected is returned when the kernel peer answers ACK FAILURE.
	ErrRejected = errors.New(errors.KindRejected, "request rejected by kernel")
	// ErrAckTimeout is returned when no acknowledgement arrives in time.
	ErrAckTimeout = errors.New(errors.KindTimeout, "timed out waiting for acknowledgement")
)

// request sends env and waits for its acknowledgement.
func (a *Agent) request(ctx context.Context, env nlm.Envelope) error {
	_, err := a.exchange(ctx, env, false)
	return err
}

// stream sends env and collects payload-bearing replies until ACK LAST.
func (a *Agent) stream(ctx context.Context, env nlm.Envelope) ([]nlm.Envelope, error) {
	return a.exchange(ctx, env, true)
}

func (a *Agent) exchange(ctx context.Context, env nlm.Envelope, streaming bool) ([]nlm.Envelope, error) {
	if err := env.Validate(); err != nil {
		return nil, err
	}

	a.reqMu.Lock()
	defer a.reqMu.Unlock()

	// Anything queued now belongs to an earlier, finished exchange.
	a.queue.Clear()
	a.metrics.QueueDepth.Set(0)

	frame := nlm.Encode(env)
	a.logger.Debug("sending", "msg", env.String(), "hex", nlm.HexDump(frame))
	if err := a.tr.Send(ctx, frame); err != nil {
		return nil, errors.Attr(errors.Wrapf(err, errors.KindUnavailable, "send %s", env.Opcode), "opcode", env.Opcode.String())
	}
	a.metrics.FramesSent.WithLabelValues(env.Opcode.String()).Inc()

	ctx, cancel := context.WithTimeout(ctx, a.ackTimeout)
	defer cancel()
	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	var items []nlm.Envelope
	for {
		msgs := a.queue.Drain()
		if len(msgs) > 0 {
			a.metrics.QueueDepth.Set(0)
		}
		for _, m := range msgs {
			// FAILURE and LAST end the exchange whatever the union holds;
			// kernels reuse message buffers and leave stale payloads behind.
			if m.Opcode == nlm.OpAck {
				switch m.Result {
				case nlm.ResultFailure:
					a.noteAck()
					return nil, errors.Attr(ErrRejected, "opcode", env.Opcode.String())
				case nlm.ResultLast:
					a.noteAck()
					return items, nil
				}
			}

			switch {
			case streaming && m.Payload != nil:
				items = append(items, m)
			case m.Opcode != nlm.OpAck:
				a.logger.Debug("ignoring unsolicited message", "msg", m.String())
			case !streaming:
				a.noteAck()
				return nil, nil
			}
		}

		select {
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return nil, errors.Attr(ErrAckTimeout, "opcode", env.Opcode.String())
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (a *Agent) noteAck() {
	a.mu.Lock()
	a.lastAck = time.Now()
	a.mu.Unlock()
}
