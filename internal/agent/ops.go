// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package agent

import (
	"context"
	"strconv"

	"github.com/google/uuid"

	"grimm.is/usbwall/internal/errors"
	"grimm.is/usbwall/internal/nlm"
	"grimm.is/usbwall/internal/rule"
)

// Setting keys in the state store.
const (
	settingEnabled  = "enabled"
	settingBehavior = "behavior"
)

// Init announces this agent to the kernel peer and starts a new session.
func (a *Agent) Init(ctx context.Context) error {
	if err := a.request(ctx, nlm.NewInit()); err != nil {
		return err
	}
	id := uuid.New().String()
	a.mu.Lock()
	a.session = id
	a.mu.Unlock()
	a.logger.Info("session established", "session", id)
	return nil
}

// Add installs p in the kernel and records it in the store.
func (a *Agent) Add(ctx context.Context, p rule.Policy) error {
	p, ok := rule.Value(p)
	if !ok {
		return errors.New(errors.KindValidation, "no rule given")
	}
	if err := a.request(ctx, nlm.NewAdd(p)); err != nil {
		return errors.Attr(err, "rule", p.PolicyName())
	}
	a.logger.Info("rule added", "kind", nlm.TypeOf(p).String(), "name", p.PolicyName(), "action", p.PolicyAction().String())
	if a.store != nil {
		if err := a.store.Put(p); err != nil {
			return err
		}
	}
	a.refreshRuleGauge()
	return nil
}

// Delete removes the rule with p's kind and name. Only the name is sent;
// rule.Ref and rule.SimpleRef build suitable references.
func (a *Agent) Delete(ctx context.Context, p rule.Policy) error {
	p, ok := rule.Value(p)
	if !ok {
		return errors.New(errors.KindValidation, "no rule given")
	}
	if err := a.request(ctx, nlm.NewDel(p)); err != nil {
		return errors.Attr(err, "rule", p.PolicyName())
	}
	a.logger.Info("rule deleted", "kind", nlm.TypeOf(p).String(), "name", p.PolicyName())
	if a.store != nil {
		if err := a.store.Delete(p); err != nil {
			return err
		}
	}
	a.refreshRuleGauge()
	return nil
}

// Enable turns kernel filtering on.
func (a *Agent) Enable(ctx context.Context) error {
	return a.setEnabled(ctx, true)
}

// Disable turns kernel filtering off; every operation is then allowed.
func (a *Agent) Disable(ctx context.Context) error {
	return a.setEnabled(ctx, false)
}

func (a *Agent) setEnabled(ctx context.Context, on bool) error {
	env := nlm.NewDisable()
	if on {
		env = nlm.NewEnable()
	}
	if err := a.request(ctx, env); err != nil {
		return err
	}

	a.mu.Lock()
	a.enabled = &on
	a.mu.Unlock()
	if on {
		a.metrics.Enabled.Set(1)
	} else {
		a.metrics.Enabled.Set(0)
	}
	a.logger.Info("filter switched", "enabled", on)

	if a.store != nil {
		return a.store.SetSetting(settingEnabled, strconv.FormatBool(on))
	}
	return nil
}

// ChangeBehavior sets the verdict for operations no rule matches.
func (a *Agent) ChangeBehavior(ctx context.Context, behavior rule.Action) error {
	if err := a.request(ctx, nlm.NewChange(behavior)); err != nil {
		return err
	}

	a.mu.Lock()
	a.behavior = &behavior
	a.mu.Unlock()
	a.logger.Info("default behavior changed", "behavior", behavior.String())

	if a.store != nil {
		return a.store.SetSetting(settingBehavior, behavior.String())
	}
	return nil
}

// Dump returns the rules installed in the kernel.
func (a *Agent) Dump(ctx context.Context) ([]rule.Policy, error) {
	return a.collect(ctx, nlm.NewDump())
}

// Sync asks the kernel to replay its rule set as ADD messages and returns
// the replayed rules.
func (a *Agent) Sync(ctx context.Context) ([]rule.Policy, error) {
	return a.collect(ctx, nlm.NewSync())
}

func (a *Agent) collect(ctx context.Context, env nlm.Envelope) ([]rule.Policy, error) {
	items, err := a.stream(ctx, env)
	if err != nil {
		return nil, err
	}
	out := make([]rule.Policy, 0, len(items))
	for _, it := range items {
		out = append(out, it.Payload)
	}
	a.logger.Debug("stream complete", "opcode", env.Opcode.String(), "rules", len(out))
	return out, nil
}

// Apply installs every policy, replacing any installed rule of the same
// kind and name. It stops at the first failure. A replaced rule whose
// successor fails to install is put back.
func (a *Agent) Apply(ctx context.Context, policies []rule.Policy) error {
	installed, err := a.Dump(ctx)
	if err != nil {
		return err
	}
	have := make(map[key]rule.Policy, len(installed))
	for _, p := range installed {
		have[keyOf(p)] = p
	}

	for _, p := range policies {
		old, replacing := have[keyOf(p)]
		if replacing {
			if err := a.Delete(ctx, p); err != nil {
				return err
			}
		}
		if err := a.Add(ctx, p); err != nil {
			if replacing {
				if rerr := a.Add(ctx, old); rerr != nil {
					a.logger.WithError(rerr).Error("failed to restore replaced rule", "name", old.PolicyName())
				}
			}
			return err
		}
	}
	return nil
}

// key identifies a rule in the kernel: names are unique per payload kind.
type key struct {
	kind nlm.PayloadType
	name string
}

func keyOf(p rule.Policy) key {
	return key{kind: nlm.TypeOf(p), name: rule.Clip(p.PolicyName(), rule.NameLen)}
}

func (a *Agent) refreshRuleGauge() {
	if a.store == nil {
		return
	}
	recs, err := a.store.List()
	if err != nil {
		a.logger.WithError(err).Warn("failed to count stored rules")
		return
	}
	counts := map[nlm.PayloadType]int{nlm.TypeRule: 0, nlm.TypeSimpleRule: 0}
	for _, r := range recs {
		counts[nlm.TypeOf(r.Policy)]++
	}
	for t, n := range counts {
		a.metrics.Rules.WithLabelValues(t.String()).Set(float64(n))
	}
}
