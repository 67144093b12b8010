package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"time"

	"xdao.co/gep/archive"
	"xdao.co/gep/bounty"
	"xdao.co/gep/config"
	"xdao.co/gep/node"
	"xdao.co/gep/profile"
	"xdao.co/gep/publisher"
	"xdao.co/gep/transport"
)

type commonFlags struct {
	configPath string
	envPath    string
	hub        string
	nodeID     string
	profile    string
	stateDir   string
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "YAML configuration file")
	fs.StringVar(&c.envPath, "env", ".env", "dotenv file")
	fs.StringVar(&c.hub, "hub", "", "Exchange base URL")
	fs.StringVar(&c.nodeID, "node-id", "", "Previously assigned node id")
	fs.StringVar(&c.profile, "profile", profile.DefaultName, "Profile the assigned node id is remembered under")
	fs.StringVar(&c.stateDir, "state-dir", "", "Profile directory (default ~/.gep/profiles)")
}

// client is one wired node: session, publisher, task workflow and archive.
type client struct {
	cfg       config.Config
	logger    *slog.Logger
	transport transport.Transport
	http      *transport.HTTP
	session   *node.Session
	archive   *archive.Archive
	publisher *publisher.Publisher
	bounty    *bounty.Workflow

	profiles    *profile.Store
	profileName string

	closers []func() error
}

func (c *commonFlags) open(errOut io.Writer) (*client, error) {
	cfg, err := config.Load(c.configPath, c.envPath)
	if err != nil {
		return nil, err
	}
	if c.hub != "" {
		cfg.Hub.URL = c.hub
	}
	if c.nodeID != "" {
		cfg.Node.ID = c.nodeID
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := profile.CheckName(c.profile); err != nil {
		return nil, err
	}
	profiles, err := profile.Open(c.stateDir)
	if err != nil {
		return nil, err
	}
	if cfg.Node.ID == "" {
		rec, err := profiles.Load(c.profile, cfg.Hub.URL)
		switch {
		case err == nil:
			cfg.Node.ID = rec.NodeID
		case !errors.Is(err, profile.ErrNoRecord):
			return nil, err
		}
	}
	cl, err := wire(cfg, errOut)
	if err != nil {
		return nil, err
	}
	cl.profiles = profiles
	cl.profileName = c.profile
	return cl, nil
}

func wire(cfg config.Config, errOut io.Writer) (*client, error) {
	logger := cfg.Log.NewLogger(errOut)
	cl := &client{cfg: cfg, logger: logger}

	var tr transport.Transport
	switch cfg.Hub.Transport {
	case config.TransportWebSocket:
		ws := transport.NewWebSocket(cfg.Hub.URL, cfg.Hub.Timeout, logger)
		cl.closers = append(cl.closers, ws.Close)
		tr = ws
	default:
		cl.http = transport.NewHTTP(cfg.Hub.URL, cfg.Hub.Timeout, logger)
		tr = cl.http
	}
	if cfg.Hub.Breaker.Enabled {
		tr = transport.NewBreaker(tr, transport.BreakerSettings{
			Failures: cfg.Hub.Breaker.Failures,
			Cooldown: cfg.Hub.Breaker.Cooldown,
		}, logger)
	}
	cl.transport = tr

	store, closeStore, err := cfg.Archive.Open("")
	if err != nil {
		return nil, err
	}
	cl.closers = append(cl.closers, closeStore)
	cl.archive = archive.New(store, logger)

	caps := cfg.Node.Capabilities
	cl.session = node.New(tr, node.Options{
		NodeID:   cfg.Node.ID,
		Referrer: cfg.Node.Referrer,
		Capabilities: node.Capabilities{
			GenePublishing:    caps.GenePublishing,
			CapsulePublishing: caps.CapsulePublishing,
			BountyClaiming:    caps.BountyClaiming,
		},
		FailureThreshold: cfg.Node.FailureThreshold,
		Reconnect:        cfg.Node.Reconnect,
		ReconnectMin:     cfg.Node.ReconnectMin,
		ReconnectMax:     cfg.Node.ReconnectMax,
		Logger:           logger,
	})
	cl.publisher = publisher.New(cl.session, cl.archive, logger)
	cl.bounty = bounty.New(cl.session, cl.archive, logger)
	return cl, nil
}

func (cl *client) register(ctx context.Context) error {
	if _, err := cl.session.Register(ctx); err != nil {
		return fmt.Errorf("hello: %w", err)
	}
	if cl.profiles == nil {
		return nil
	}
	st := cl.session.Status()
	rec := profile.Record{
		NodeID:       st.NodeID,
		HubURL:       cl.cfg.Hub.URL,
		RegisteredAt: time.Now().UTC(),
		Credits:      st.Credits,
		Reputation:   st.Reputation,
	}
	if err := cl.profiles.Save(cl.profileName, rec); err != nil {
		cl.logger.Warn("could not remember node id", "profile", cl.profileName, "err", err)
	}
	return nil
}

func (cl *client) Close() error {
	var errs []error
	for i := len(cl.closers) - 1; i >= 0; i-- {
		if err := cl.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
