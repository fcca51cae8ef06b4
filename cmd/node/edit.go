package node

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"fieldsync/pkg/config"
)

const defaultConfigTemplate = `[discovery]
  port        = 11000
  group_v4    = "239.1.1.1"
  group_v6    = "ff15::45:5246:6f72:6365:1"
  window      = "3s"
  refresh     = "3s"
  emit_on_new = false

[stream]
  transport = "websocket"   # or "multicast"
  data_port = 11001
  vis_port  = 11002
  group_v4  = "232.1.1.1"
  group_v6  = "ff15::45:5246:6f72:6365"
  timeout   = "1500ms"
  rejoin    = "3s"

[filter]
  enabled       = true
  retention     = "1s"
  health_period = "10s"
  warm_up       = "1s"
  target_buffer = "10ms"

[node]
  host            = ""      # hostname or address to bind; empty binds the first host found
  tick_rate       = 60
  db_path         = "/var/lib/fieldsync/hosts.db"
  rpc_socket      = "/run/fieldsync/node.sock"
  stale_threshold = "90s"
  log_level       = "info"

[announce]
  hostname = ""
  interval = "1s"
  rate     = 60
`

// EditConfig opens the configuration file in the system editor, creating it
// from the default template first. The edited file is validated afterwards.
func EditConfig(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", path, err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Printf("Creating new config file at %s...\n", path)
		if err := os.WriteFile(path, []byte(defaultConfigTemplate), 0644); err != nil {
			return fmt.Errorf("writing default config: %w", err)
		}
	}

	editor, err := findEditor()
	if err != nil {
		return err
	}

	cmd := exec.Command(editor, path)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("running %s: %w", editor, err)
	}

	return validate(path)
}

// validate loads the file and converts every section the commands use.
func validate(path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if _, err := FieldOptions(cfg); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if _, err := PublisherSettings(cfg); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	fmt.Printf("✓ %s is valid\n", path)
	return nil
}

func findEditor() (string, error) {
	if editor := os.Getenv("EDITOR"); editor != "" {
		return editor, nil
	}
	for _, e := range []string{"vi", "nano", "vim"} {
		if _, err := exec.LookPath(e); err == nil {
			return e, nil
		}
	}
	return "", fmt.Errorf("no editor found ($EDITOR not set, and vi/nano/vim not in PATH)")
}
