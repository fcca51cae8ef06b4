// Package hosts implements the fieldsync hosts CLI: a table of the field
// hosts known to the running watch node.
package hosts

import (
	"fmt"
	"strings"
	"time"

	"fieldsync/internal/rpc"
	"fieldsync/internal/store"
	"fieldsync/pkg/config"
)

// Run prints the host table. With activeOnly, hosts marked stale are hidden.
func Run(configPath string, activeOnly bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Connect to RPC server
	client, err := rpc.NewClient(cfg.Node.RPCSocket)
	if err != nil {
		return fmt.Errorf("connecting to node: %w\nIs 'fieldsync watch' running?", err)
	}
	defer client.Close()

	var records []store.HostRecord
	if activeOnly {
		records, err = client.ListActiveHosts()
	} else {
		records, err = client.ListHosts()
	}
	if err != nil {
		return fmt.Errorf("fetching hosts: %w", err)
	}

	status, err := client.Status()
	if err != nil {
		return fmt.Errorf("fetching node status: %w", err)
	}

	if len(records) == 0 {
		fmt.Println("No field hosts discovered. Make sure a host or 'fieldsync announce' is running.")
	} else {
		fmt.Printf("\n  Field Hosts (%d found)\n\n", len(records))
		displayHostTable(records)
	}

	fmt.Println()
	if !status.Bound {
		fmt.Println("  Node is not bound to a field.")
		return nil
	}
	fmt.Printf("  Bound to %s (session %s): %d packets, %d buffered, offset %s, %d stutters\n",
		status.Host, status.Session, status.Received, status.Buffered, status.Offset, status.Stutters)
	return nil
}

func displayHostTable(hosts []store.HostRecord) {
	fmt.Printf("  %-4s %-24s %-30s %-10s %-8s %-10s %-6s\n",
		"#", "Hostname", "Control Address", "Seen", "Bound", "Last Seen", "State")
	fmt.Printf("  %s %s %s %s %s %s %s\n",
		strings.Repeat("─", 4),
		strings.Repeat("─", 24),
		strings.Repeat("─", 30),
		strings.Repeat("─", 10),
		strings.Repeat("─", 8),
		strings.Repeat("─", 10),
		strings.Repeat("─", 6))

	for i, host := range hosts {
		state := "✓"
		if !host.Active {
			state = "✗"
		}

		bound := "-"
		if host.BoundAt != nil {
			bound = host.BoundAt.Format("15:04:05")
		}

		hostname := host.Hostname
		if hostname == "" {
			hostname = "(unnamed)"
		}

		fmt.Printf("  %-4d %-24s %-30s %-10d %-8s %-10s %-6s\n",
			i+1,
			truncate(hostname, 24),
			truncate(host.Key, 30),
			host.Observations,
			bound,
			lastSeen(host.LastSeen),
			state,
		)
	}
}

func lastSeen(t time.Time) string {
	if time.Since(t) < 24*time.Hour {
		return t.Format("15:04:05")
	}
	return t.Format("2006-01-02")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-1] + "…"
}
