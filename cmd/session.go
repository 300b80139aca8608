// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cmd

import (
	"context"
	"io"
	"os"

	"golang.org/x/sync/errgroup"

	"grimm.is/usbwall/internal/agent"
	"grimm.is/usbwall/internal/config"
	"grimm.is/usbwall/internal/errors"
	"grimm.is/usbwall/internal/kernel"
	"grimm.is/usbwall/internal/logging"
	"grimm.is/usbwall/internal/metrics"
	"grimm.is/usbwall/internal/state"
	"grimm.is/usbwall/internal/transport"
)

// Options are the global CLI flags.
type Options struct {
	// ConfigPath is the agent config file; empty uses defaults.
	ConfigPath string
	// Simulate talks to an in-memory kernel peer instead of netlink.
	Simulate bool
	// Stdout receives command output; nil means os.Stdout.
	Stdout io.Writer
}

func (o Options) stdout() io.Writer {
	if o.Stdout == nil {
		return os.Stdout
	}
	return o.Stdout
}

// session is a connected agent with its receiver running.
type session struct {
	cfg     *config.Config
	agent   *agent.Agent
	metrics *metrics.Metrics
	logger  *logging.Logger

	tr     transport.Transport
	store  *state.Store
	closer io.Closer

	// ctx ends when the session is closed or a member of group fails.
	ctx    context.Context
	group  *errgroup.Group
	cancel context.CancelFunc
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.DefaultConfig(), nil
	}
	return config.Load(path)
}

// openSession loads the config, connects to the kernel peer and sends INIT.
func openSession(ctx context.Context, opts Options) (*session, error) {
	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	logger, closer, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	logging.SetDefault(logger)

	store, err := state.Open(cfg.Database)
	if err != nil {
		closeQuietly(closer)
		return nil, err
	}

	var tr transport.Transport
	if opts.Simulate {
		tr = kernel.NewSimPeer(logger.WithComponent("sim"))
	} else {
		nl, err := transport.DialNetlink(cfg.NetlinkProtocol, logger.WithComponent("netlink"))
		if err != nil {
			store.Close()
			closeQuietly(closer)
			return nil, err
		}
		tr = nl
	}

	m := metrics.New()
	a := agent.New(tr, agent.Options{
		AckTimeout:   cfg.AckTimeoutDuration(),
		PollInterval: cfg.PollIntervalDuration(),
		Logger:       logger.WithComponent("agent"),
		Metrics:      m,
		Store:        store,
	})

	runCtx, cancel := context.WithCancel(ctx)
	g, runCtx := errgroup.WithContext(runCtx)
	g.Go(func() error { return a.Run(runCtx) })

	s := &session{
		cfg:     cfg,
		agent:   a,
		metrics: m,
		logger:  logger,
		tr:      tr,
		store:   store,
		closer:  closer,
		ctx:     runCtx,
		group:   g,
		cancel:  cancel,
	}

	if err := a.Init(ctx); err != nil {
		s.Close()
		return nil, errors.Wrap(err, errors.GetKind(err), "kernel peer did not answer INIT")
	}

	// A simulated kernel starts empty each run; seed it from the store so
	// one-shot commands see what earlier ones installed.
	if opts.Simulate {
		if _, err := a.Reconcile(ctx); err != nil {
			s.Close()
			return nil, err
		}
		if err := a.Restore(ctx); err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

// Close stops the receiver and releases the transport and store.
func (s *session) Close() error {
	s.cancel()
	s.tr.Close()
	err := s.group.Wait()
	s.store.Close()
	closeQuietly(s.closer)
	return err
}

func newLogger(cfg *config.Config) (*logging.Logger, io.Closer, error) {
	lc := cfg.LoggingConfig()
	if cfg.Log == nil || cfg.Log.Syslog == nil || !cfg.Log.Syslog.Enabled {
		return logging.New(lc), nil, nil
	}
	w, err := dialSyslog(*cfg.Log.Syslog)
	if err != nil {
		return nil, nil, err
	}
	lc.Output = io.MultiWriter(os.Stderr, w)
	return logging.New(lc), w, nil
}

func closeQuietly(c io.Closer) {
	if c != nil {
		c.Close()
	}
}
