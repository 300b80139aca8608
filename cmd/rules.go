// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cmd

import (
	"bytes"
	"context"
	"os"
	"strings"

	"grimm.is/usbwall/internal/config"
	"grimm.is/usbwall/internal/errors"
	"grimm.is/usbwall/internal/nlm"
	"grimm.is/usbwall/internal/rule"
)

// RunInit connects to the kernel peer and prints the new session id.
func RunInit(ctx context.Context, opts Options) error {
	s, err := openSession(ctx, opts)
	if err != nil {
		return err
	}
	defer s.Close()

	Printer.Fprintf(opts.stdout(), "Session %s established.\n", s.agent.Status().Session)
	return nil
}

// RunApply installs the rules from policyPath, or from the config file's
// own rule blocks when policyPath is empty, then sets the configured
// default behavior.
func RunApply(ctx context.Context, opts Options, policyPath string) error {
	s, err := openSession(ctx, opts)
	if err != nil {
		return err
	}
	defer s.Close()

	var policies []rule.Policy
	if policyPath != "" {
		policies, err = config.LoadPolicies(policyPath)
	} else {
		policies, err = s.cfg.Policies()
	}
	if err != nil {
		return err
	}

	if err := s.agent.Apply(ctx, policies); err != nil {
		return err
	}
	if b, ok := s.cfg.Behavior(); ok {
		if err := s.agent.ChangeBehavior(ctx, b); err != nil {
			return err
		}
	}

	Printer.Fprintf(opts.stdout(), "Applied %d rules.\n", len(policies))
	return nil
}

// RunDel deletes the rule of the given kind ("rule" or "simple_rule") and
// name.
func RunDel(ctx context.Context, opts Options, kind, name string) error {
	var ref rule.Policy
	switch strings.ToLower(kind) {
	case "rule":
		ref = rule.Ref(name)
	case "simple_rule", "simple":
		ref = rule.SimpleRef(name)
	default:
		return errors.Errorf(errors.KindValidation, "unknown rule kind %q (want rule or simple_rule)", kind)
	}

	s, err := openSession(ctx, opts)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.agent.Delete(ctx, ref); err != nil {
		return err
	}
	Printer.Fprintf(opts.stdout(), "Deleted %s %q.\n", nlm.TypeOf(ref), name)
	return nil
}

// RunEnable turns kernel filtering on.
func RunEnable(ctx context.Context, opts Options) error {
	return runSwitch(ctx, opts, true)
}

// RunDisable turns kernel filtering off.
func RunDisable(ctx context.Context, opts Options) error {
	return runSwitch(ctx, opts, false)
}

func runSwitch(ctx context.Context, opts Options, on bool) error {
	s, err := openSession(ctx, opts)
	if err != nil {
		return err
	}
	defer s.Close()

	if on {
		err = s.agent.Enable(ctx)
	} else {
		err = s.agent.Disable(ctx)
	}
	if err != nil {
		return err
	}
	state := "disabled"
	if on {
		state = "enabled"
	}
	Printer.Fprintf(opts.stdout(), "Filtering %s.\n", state)
	return nil
}

// RunBehavior sets the default behavior to "allow" or "drop".
func RunBehavior(ctx context.Context, opts Options, behavior string) error {
	b, err := rule.ParseAction(behavior)
	if err != nil {
		return err
	}

	s, err := openSession(ctx, opts)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.agent.ChangeBehavior(ctx, b); err != nil {
		return err
	}
	Printer.Fprintf(opts.stdout(), "Default behavior set to %s.\n", b)
	return nil
}

// RunDump writes the kernel's installed rules to out ("-" for stdout; empty
// uses the configured dump_file) as HCL or, with format "yaml", YAML.
func RunDump(ctx context.Context, opts Options, out, format string) error {
	s, err := openSession(ctx, opts)
	if err != nil {
		return err
	}
	defer s.Close()

	policies, err := s.agent.Dump(ctx)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	switch strings.ToLower(format) {
	case "", "hcl":
		err = config.WritePolicyHCL(&buf, policies)
	case "yaml", "yml":
		var data []byte
		data, err = config.MarshalPolicyYAML(policies)
		buf.Write(data)
	default:
		return errors.Errorf(errors.KindValidation, "unknown dump format %q", format)
	}
	if err != nil {
		return err
	}

	if out == "" {
		out = s.cfg.DumpFile
	}
	if out == "-" {
		_, err := opts.stdout().Write(buf.Bytes())
		return err
	}
	if err := os.WriteFile(out, buf.Bytes(), 0o644); err != nil {
		return errors.Wrapf(err, errors.KindInternal, "failed to write %s", out)
	}
	Printer.Fprintf(opts.stdout(), "Dumped %d rules to %s.\n", len(policies), out)
	return nil
}

// RunSync asks the kernel to replay its rules and lists them.
func RunSync(ctx context.Context, opts Options) error {
	s, err := openSession(ctx, opts)
	if err != nil {
		return err
	}
	defer s.Close()

	policies, err := s.agent.Sync(ctx)
	if err != nil {
		return err
	}
	w := opts.stdout()
	for _, p := range policies {
		Printer.Fprintf(w, "%-12s %-32s %s\n", nlm.TypeOf(p), p.PolicyName(), p.PolicyAction())
	}
	Printer.Fprintf(w, "%d rules installed.\n", len(policies))
	return nil
}
