// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package agent

import (
	"context"
	"strconv"
	"time"

	"grimm.is/usbwall/internal/errors"
	"grimm.is/usbwall/internal/rule"
)

// Status is the agent's view of the kernel filter. Enabled and Behavior are
// nil until this agent has set them.
type Status struct {
	Session     string    `json:"session,omitempty"`
	Enabled     *bool     `json:"enabled,omitempty"`
	Behavior    string    `json:"behavior,omitempty"`
	StoredRules int       `json:"stored_rules"`
	QueueDepth  int       `json:"queue_depth"`
	LastAck     time.Time `json:"last_ack,omitempty"`
}

// Status returns a snapshot of the agent state.
func (a *Agent) Status() Status {
	a.mu.RLock()
	st := Status{
		Session:    a.session,
		Enabled:    a.enabled,
		LastAck:    a.lastAck,
		QueueDepth: a.queue.Count(),
	}
	if a.behavior != nil {
		st.Behavior = a.behavior.String()
	}
	a.mu.RUnlock()

	if a.store != nil {
		recs, err := a.store.List()
		if err != nil {
			a.logger.WithError(err).Warn("failed to count stored rules")
		}
		st.StoredRules = len(recs)
	}
	return st
}

// Policies returns the rules in the state store, or nil without one.
func (a *Agent) Policies() ([]rule.Policy, error) {
	if a.store == nil {
		return nil, nil
	}
	return a.store.Policies()
}

// Restore reapplies the enabled flag and default behavior recorded in the
// store, if any.
func (a *Agent) Restore(ctx context.Context) error {
	if a.store == nil {
		return nil
	}
	if v, ok, err := a.store.Setting(settingBehavior); err != nil {
		return err
	} else if ok {
		b, err := rule.ParseAction(v)
		if err != nil {
			return err
		}
		if err := a.ChangeBehavior(ctx, b); err != nil {
			return err
		}
	}
	if v, ok, err := a.store.Setting(settingEnabled); err != nil {
		return err
	} else if ok {
		on, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrapf(err, errors.KindValidation, "stored enabled flag %q", v)
		}
		return a.setEnabled(ctx, on)
	}
	return nil
}
