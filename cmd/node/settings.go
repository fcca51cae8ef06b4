package node

import (
	"fmt"
	"net/netip"

	"fieldsync/internal/beacon"
	"fieldsync/internal/discovery"
	"fieldsync/internal/field"
	"fieldsync/internal/stream"
	"fieldsync/pkg/config"
)

// DiscoverySettings converts the [discovery] section.
func DiscoverySettings(cfg *config.Config) (discovery.Config, error) {
	d := discovery.Config{
		Port:      cfg.Discovery.Port,
		EmitOnNew: cfg.Discovery.EmitOnNew,
	}

	var err error
	if d.GroupV4, err = parseGroup(cfg.Discovery.GroupV4, false); err != nil {
		return d, err
	}
	if d.GroupV6, err = parseGroup(cfg.Discovery.GroupV6, true); err != nil {
		return d, err
	}
	if d.Window, err = cfg.Discovery.ParseWindow(); err != nil {
		return d, fmt.Errorf("parsing window: %w", err)
	}
	if d.Refresh, err = cfg.Discovery.ParseRefresh(); err != nil {
		return d, fmt.Errorf("parsing refresh: %w", err)
	}
	return d, nil
}

// StreamSettings converts the [stream] section.
func StreamSettings(cfg *config.Config) (stream.Config, error) {
	s := stream.Config{
		Transport: stream.Transport(cfg.Stream.Transport),
		DataPort:  cfg.Stream.DataPort,
		VisPort:   cfg.Stream.VisPort,
	}
	switch s.Transport {
	case stream.Multicast, stream.WebSocket:
	default:
		return s, fmt.Errorf("unknown transport %q (want multicast or websocket)", cfg.Stream.Transport)
	}

	var err error
	if s.GroupV4, err = parseGroup(cfg.Stream.GroupV4, false); err != nil {
		return s, err
	}
	if s.GroupV6, err = parseGroup(cfg.Stream.GroupV6, true); err != nil {
		return s, err
	}
	if s.Timeout, err = cfg.Stream.ParseTimeout(); err != nil {
		return s, fmt.Errorf("parsing timeout: %w", err)
	}
	if s.Rejoin, err = cfg.Stream.ParseRejoin(); err != nil {
		return s, fmt.Errorf("parsing rejoin: %w", err)
	}
	return s, nil
}

// FieldOptions converts the [stream] and [filter] sections.
func FieldOptions(cfg *config.Config) (field.Options, error) {
	opts := field.DefaultOptions()
	opts.Unfiltered = !cfg.Filter.Enabled

	var err error
	if opts.Stream, err = StreamSettings(cfg); err != nil {
		return opts, err
	}
	if opts.Filter.Retention, err = cfg.Filter.ParseRetention(); err != nil {
		return opts, fmt.Errorf("parsing retention: %w", err)
	}
	if opts.Filter.HealthPeriod, err = cfg.Filter.ParseHealthPeriod(); err != nil {
		return opts, fmt.Errorf("parsing health period: %w", err)
	}
	if opts.Filter.WarmUp, err = cfg.Filter.ParseWarmUp(); err != nil {
		return opts, fmt.Errorf("parsing warm up: %w", err)
	}
	if opts.Filter.TargetBuffer, err = cfg.Filter.ParseTargetBuffer(); err != nil {
		return opts, fmt.Errorf("parsing target buffer: %w", err)
	}
	return opts, nil
}

// PublisherSettings converts the [discovery], [stream] and [announce]
// sections into the test publisher configuration.
func PublisherSettings(cfg *config.Config) (beacon.PublisherConfig, error) {
	d, err := DiscoverySettings(cfg)
	if err != nil {
		return beacon.PublisherConfig{}, err
	}
	s, err := StreamSettings(cfg)
	if err != nil {
		return beacon.PublisherConfig{}, err
	}
	interval, err := cfg.Announce.ParseInterval()
	if err != nil {
		return beacon.PublisherConfig{}, fmt.Errorf("parsing interval: %w", err)
	}
	if cfg.Announce.Rate <= 0 {
		return beacon.PublisherConfig{}, fmt.Errorf("announce rate must be positive, got %d", cfg.Announce.Rate)
	}

	return beacon.PublisherConfig{
		DiscoveryPort: d.Port,
		GroupV4:       d.GroupV4,
		GroupV6:       d.GroupV6,
		DataPort:      s.DataPort,
		VisPort:       s.VisPort,
		StreamGroupV4: s.GroupV4,
		StreamGroupV6: s.GroupV6,
		Interval:      interval,
		Rate:          cfg.Announce.Rate,
	}, nil
}

func parseGroup(s string, v6 bool) (netip.Addr, error) {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("parsing group %q: %w", s, err)
	}
	family := "IPv4"
	if v6 {
		family = "IPv6"
	}
	if !addr.IsMulticast() || addr.Is6() != v6 {
		return netip.Addr{}, fmt.Errorf("group %s is not an %s multicast address", s, family)
	}
	return addr, nil
}
