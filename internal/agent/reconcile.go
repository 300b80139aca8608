// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package agent

import (
	"context"
	"fmt"
	"sort"

	"github.com/pmezard/go-difflib/difflib"

	"grimm.is/usbwall/internal/errors"
	"grimm.is/usbwall/internal/rule"
)

// ErrNoStore is returned by operations that need the state store when the
// agent was built without one.
var ErrNoStore = errors.New(errors.KindValidation, "no state store configured")

// Report describes what Reconcile found and did.
type Report struct {
	// Pushed lists the stored rules that were missing from the kernel and
	// have been added, as kind/name.
	Pushed []string `json:"pushed"`
	// Diff is a unified diff of stored against installed rule names,
	// taken before anything was pushed. Empty when they agree.
	Diff string `json:"diff"`
}

// Reconcile re-installs stored rules the kernel no longer has, such as
// after the module was reloaded. Rules present only in the kernel are
// left alone and show up in the diff.
func (a *Agent) Reconcile(ctx context.Context) (Report, error) {
	if a.store == nil {
		return Report{}, ErrNoStore
	}

	stored, err := a.store.Policies()
	if err != nil {
		return Report{}, err
	}
	installed, err := a.Dump(ctx)
	if err != nil {
		return Report{}, err
	}

	var rep Report
	rep.Diff, err = nameDiff(stored, installed)
	if err != nil {
		return Report{}, errors.Wrap(err, errors.KindInternal, "failed to diff rule sets")
	}

	have := make(map[key]bool, len(installed))
	for _, p := range installed {
		have[keyOf(p)] = true
	}
	for _, p := range stored {
		if have[keyOf(p)] {
			continue
		}
		if err := a.Add(ctx, p); err != nil {
			return rep, err
		}
		rep.Pushed = append(rep.Pushed, describe(p))
	}

	if len(rep.Pushed) > 0 {
		a.logger.Info("reconciled kernel rules", "pushed", len(rep.Pushed))
	}
	return rep, nil
}

func nameDiff(stored, installed []rule.Policy) (string, error) {
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        nameLines(stored),
		B:        nameLines(installed),
		FromFile: "stored",
		ToFile:   "kernel",
		Context:  3,
	})
}

func nameLines(ps []rule.Policy) []string {
	lines := make([]string, len(ps))
	for i, p := range ps {
		lines[i] = describe(p) + "\n"
	}
	sort.Strings(lines)
	return lines
}

func describe(p rule.Policy) string {
	k := keyOf(p)
	return fmt.Sprintf("%s/%s", k.kind, k.name)
}
