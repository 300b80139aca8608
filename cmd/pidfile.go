// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cmd

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"grimm.is/usbwall/internal/errors"
)

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, errors.KindInternal, "failed to create run directory")
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return errors.Wrapf(err, errors.KindInternal, "failed to write PID file %s", path)
	}
	return nil
}

func readPIDFile(path string) (*os.Process, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Errorf(errors.KindNotFound, "no PID file found at %s (is the daemon running?)", path)
		}
		return nil, errors.Wrap(err, errors.KindInternal, "failed to read PID file")
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, errors.Errorf(errors.KindValidation, "invalid PID in %s", path)
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindNotFound, "failed to find process %d", pid)
	}
	return process, nil
}

// RunReload validates the config and asks the running daemon to re-apply it.
func RunReload(opts Options) error {
	Printer.Fprintf(opts.stdout(), "Validating configuration: %s\n", opts.ConfigPath)
	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return errors.Wrap(err, errors.GetKind(err), "configuration validation failed")
	}
	if _, err := cfg.Policies(); err != nil {
		return err
	}

	process, err := readPIDFile(cfg.PIDFile)
	if err != nil {
		return err
	}
	Printer.Fprintf(opts.stdout(), "Sending SIGHUP to process %d...\n", process.Pid)
	if err := process.Signal(syscall.SIGHUP); err != nil {
		return errors.Wrap(err, errors.KindUnavailable, "failed to signal process")
	}
	return nil
}

// RunStop asks the running daemon to exit and waits for it to remove its
// PID file.
func RunStop(opts Options) error {
	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return err
	}
	process, err := readPIDFile(cfg.PIDFile)
	if err != nil {
		return err
	}

	Printer.Fprintf(opts.stdout(), "Stopping usbwall (PID: %d)...\n", process.Pid)
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return errors.Wrap(err, errors.KindUnavailable, "failed to send SIGTERM")
	}

	for i := 0; i < 50; i++ {
		if _, err := os.Stat(cfg.PIDFile); os.IsNotExist(err) {
			Printer.Fprintln(opts.stdout(), "Stopped.")
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	Printer.Fprintln(opts.stdout(), "Warning: PID file still exists. Process might be stuck or slow to shutdown.")
	return nil
}
