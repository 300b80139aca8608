// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Command usbwall manages the usbfilter kernel module's rule set.
package main

import (
	"context"
	"flag"
	"os"

	"grimm.is/usbwall/cmd"
)

const usage = `Usage: usbwall [-config file] [-simulate] <command> [args]

Commands:
  daemon                      keep rules reconciled and serve the status API
  init                        open a session with the kernel module
  apply [-f policy]           install rules from a policy file or the config
  del <rule|simple_rule> <name>
  enable | disable            switch filtering on or off
  behavior <allow|drop>       set the default verdict
  dump [-o file] [-format hcl|yaml]
  sync                        list the kernel's rules
  reload                      validate the config and signal the daemon
  stop                        stop the daemon
`

func main() {
	configPath := flag.String("config", "", "Path to HCL config file")
	simulate := flag.Bool("simulate", false, "Use an in-memory kernel peer")
	flag.Usage = func() { cmd.Printer.Fprint(os.Stderr, usage) }
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	opts := cmd.Options{ConfigPath: *configPath, Simulate: *simulate}
	ctx := context.Background()
	if err := run(ctx, opts, args[0], args[1:]); err != nil {
		cmd.Printer.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts cmd.Options, name string, args []string) error {
	switch name {
	case "daemon":
		return cmd.RunDaemon(ctx, opts)
	case "init":
		return cmd.RunInit(ctx, opts)
	case "apply":
		fs := flag.NewFlagSet("apply", flag.ExitOnError)
		policy := fs.String("f", "", "Policy file (HCL or YAML); defaults to the config's rules")
		fs.Parse(args)
		return cmd.RunApply(ctx, opts, *policy)
	case "del":
		if len(args) != 2 {
			return usageError("del <rule|simple_rule> <name>")
		}
		return cmd.RunDel(ctx, opts, args[0], args[1])
	case "enable":
		return cmd.RunEnable(ctx, opts)
	case "disable":
		return cmd.RunDisable(ctx, opts)
	case "behavior":
		if len(args) != 1 {
			return usageError("behavior <allow|drop>")
		}
		return cmd.RunBehavior(ctx, opts, args[0])
	case "dump":
		fs := flag.NewFlagSet("dump", flag.ExitOnError)
		out := fs.String("o", "", "Output file, - for stdout (default: dump_file from config)")
		format := fs.String("format", "hcl", "Output format: hcl or yaml")
		fs.Parse(args)
		return cmd.RunDump(ctx, opts, *out, *format)
	case "sync":
		return cmd.RunSync(ctx, opts)
	case "reload":
		return cmd.RunReload(opts)
	case "stop":
		return cmd.RunStop(opts)
	}
	flag.Usage()
	os.Exit(2)
	return nil
}

type usageError string

func (u usageError) Error() string { return "usage: usbwall " + string(u) }
