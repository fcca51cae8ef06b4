// fieldsync: field telemetry client for robot soccer hosts
//
// Usage:
//
//	fieldsync watch:    discover field hosts and follow one
//	fieldsync discover: print the field hosts on the LAN
//	fieldsync hosts:    list hosts known to the running watch node
//	fieldsync announce: run a stand-in field host
package main

import (
	"fmt"
	"os"

	"fieldsync/cmd/agent"
	"fieldsync/cmd/hosts"
	"fieldsync/cmd/node"
)

const (
	defaultSystemPath = "/etc/fieldsync/config.toml"
	defaultLocalPath  = "config.toml"
	version           = "0.3.0"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	configPath := ""
	hostName := ""
	activeOnly := false

	// Parse flags if present
	args := os.Args[1:]
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if value, n, ok := flagValue(args, i, "--config"); ok {
			configPath = value
			args = append(args[:i], args[i+n:]...)
			i--
			continue
		}
		if value, n, ok := flagValue(args, i, "--host"); ok {
			hostName = value
			args = append(args[:i], args[i+n:]...)
			i--
			continue
		}
		if arg == "--active" {
			activeOnly = true
			args = append(args[:i], args[i+1:]...)
			i--
			continue
		}
	}

	// Auto-discover config if not specified
	if configPath == "" {
		if _, err := os.Stat(defaultLocalPath); err == nil {
			configPath = defaultLocalPath
		} else {
			configPath = defaultSystemPath
		}
	}

	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	subcommand := args[0]
	var err error

	switch subcommand {
	case "watch":
		err = node.Run(configPath, hostName)
	case "discover":
		err = node.Discover(configPath)
	case "hosts":
		err = hosts.Run(configPath, activeOnly)
	case "announce":
		err = agent.Run(configPath)
	case "edit":
		err = node.EditConfig(configPath)
	case "version":
		fmt.Printf("fieldsync v%s\n", version)
		return
	case "help", "--help", "-h":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", subcommand)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// flagValue matches "--name value" and "--name=value" at args[i]. It returns
// the value and the number of arguments consumed.
func flagValue(args []string, i int, name string) (string, int, bool) {
	arg := args[i]
	if arg == name && i+1 < len(args) {
		return args[i+1], 2, true
	}
	if len(arg) > len(name)+1 && arg[:len(name)+1] == name+"=" {
		return arg[len(name)+1:], 1, true
	}
	return "", 0, false
}

func printUsage() {
	fmt.Printf(`fieldsync v%s - Field telemetry client for robot soccer hosts

Usage:
  fieldsync <command> [--config <path>]

Commands:
  watch     Discover field hosts, follow one and record host history
  discover  Print the field hosts on the LAN whenever the list changes
  hosts     List the hosts known to the running watch node
  announce  Run a stand-in field host streaming synthetic telemetry
  edit      Edit the configuration file in your system editor
  version   Print version information
  help      Show this help message

Options:
  --config <path>  Path to config file (default: looks for ./config.toml, then %s)
  --host <name>    Hostname or address to bind (watch)
  --active         Only list active hosts (hosts)

Examples:
  fieldsync watch                       # Follow the first host found
  fieldsync watch --host field-a        # Follow a specific host
  fieldsync hosts --active              # Hosts seen recently
  fieldsync announce                    # Stand-in host for testing

`, version, defaultSystemPath)
}
