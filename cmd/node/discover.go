package node

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"fieldsync/internal/discovery"
	"fieldsync/pkg/config"
	"fieldsync/pkg/logger"
)

const pollInterval = 100 * time.Millisecond

// Discover prints the host list every time it changes.
func Discover(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log := logger.Init(cfg.Node.LogLevel)

	dcfg, err := DiscoverySettings(cfg)
	if err != nil {
		return err
	}
	// Print hosts as soon as they show up.
	dcfg.EmitOnNew = true

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	h := discovery.Spawn(ctx, dcfg, log)
	defer h.Close()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var registry discovery.Registry
	printHosts(nil)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		for {
			hosts, ok := h.TryRecv()
			if !ok {
				break
			}
			if registry.Update(hosts) {
				printHosts(registry.Hosts())
			}
		}
		if h.Finished() {
			return fmt.Errorf("discovery error: %w", h.Err())
		}
	}
}

func printHosts(hosts []discovery.Host) {
	if len(hosts) == 0 {
		fmt.Fprintln(os.Stdout, "\n  No field hosts found yet.")
		return
	}

	fmt.Printf("\n  Field Hosts (%d found)\n\n", len(hosts))
	fmt.Printf("  %-4s %-24s %-40s %-8s %-12s\n", "#", "Hostname", "Address", "Control", "Interfaces")
	fmt.Printf("  %s %s %s %s %s\n",
		strings.Repeat("─", 4),
		strings.Repeat("─", 24),
		strings.Repeat("─", 40),
		strings.Repeat("─", 8),
		strings.Repeat("─", 12))
	for i, h := range hosts {
		control := "-"
		if h.ControlPort != 0 {
			control = fmt.Sprint(h.ControlPort)
		}
		ifaces := make([]string, len(h.Interfaces))
		for j, idx := range h.Interfaces {
			ifaces[j] = fmt.Sprint(idx)
		}
		fmt.Printf("  %-4d %-24s %-40s %-8s %-12s\n",
			i+1,
			truncate(h.Name(), 24),
			h.Addr.Addr().String(),
			control,
			strings.Join(ifaces, ","),
		)
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-1] + "…"
}
