// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"grimm.is/usbwall/internal/api"
)

// RunDaemon keeps a session open: it re-installs stored rules the kernel
// lost, applies the config's policy, serves the status API when
// metrics.listen is set, and re-applies the config on SIGHUP. It returns
// on SIGINT, SIGTERM or when ctx ends.
func RunDaemon(ctx context.Context, opts Options) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openSession(ctx, opts)
	if err != nil {
		return err
	}
	defer s.Close()
	logger := s.logger.WithComponent("daemon")

	if err := writePIDFile(s.cfg.PIDFile); err != nil {
		return err
	}
	defer os.Remove(s.cfg.PIDFile)

	rep, err := s.agent.Reconcile(ctx)
	if err != nil {
		return err
	}
	if rep.Diff != "" {
		logger.Info("kernel rules differed from store", "pushed", len(rep.Pushed), "diff", rep.Diff)
	}
	if err := s.agent.Restore(ctx); err != nil {
		return err
	}
	if err := s.applyConfig(ctx); err != nil {
		return err
	}

	if s.cfg.Metrics != nil && s.cfg.Metrics.Listen != "" {
		srv := api.NewServer(s.agent, s.metrics, s.logger.WithComponent("api"))
		addr := s.cfg.Metrics.Listen
		s.group.Go(func() error { return srv.ListenAndServe(s.ctx, addr) })
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	logger.Info("daemon running", "session", s.agent.Status().Session)
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return nil
		case <-s.ctx.Done():
			return s.group.Wait()
		case <-hup:
			logger.Info("reloading configuration")
			if err := s.reload(ctx, opts.ConfigPath); err != nil {
				logger.WithError(err).Error("reload failed")
			}
		}
	}
}

func (s *session) applyConfig(ctx context.Context) error {
	policies, err := s.cfg.Policies()
	if err != nil {
		return err
	}
	if len(policies) > 0 {
		if err := s.agent.Apply(ctx, policies); err != nil {
			return err
		}
	}
	if b, ok := s.cfg.Behavior(); ok {
		return s.agent.ChangeBehavior(ctx, b)
	}
	return nil
}

func (s *session) reload(ctx context.Context, path string) error {
	cfg, err := loadConfig(path)
	if err != nil {
		return err
	}
	s.cfg = cfg
	return s.applyConfig(ctx)
}
