// Package agent implements the fieldsync announce command: a stand-in field
// host that advertises itself and streams synthetic telemetry.
package agent

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"fieldsync/cmd/node"
	"fieldsync/internal/beacon"
	"fieldsync/internal/sysinfo"
	"fieldsync/pkg/config"
	"fieldsync/pkg/logger"
)

// Run starts the test publisher.
func Run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log := logger.Init(cfg.Node.LogLevel)

	pcfg, err := node.PublisherSettings(cfg)
	if err != nil {
		return err
	}

	id := sysinfo.Collect()
	hostname := cfg.Announce.Hostname
	if hostname == "" {
		hostname = id.Hostname
	}
	instance := id.InstanceID()

	// The publisher has no control channel; clients must use multicast.
	adv := beacon.HostAdvertisement{
		Hostname:   &hostname,
		InstanceID: &instance,
	}

	log.Info().
		Str("hostname", hostname).
		Uint32("instance_id", instance).
		Str("platform", id.Platform).
		Str("kernel", id.Kernel).
		Int("rate", pcfg.Rate).
		Msg("Starting test publisher")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return beacon.Announce(ctx, pcfg, adv, log)
	})
	g.Go(func() error {
		return beacon.PublishStatus(ctx, pcfg, log)
	})
	return g.Wait()
}
