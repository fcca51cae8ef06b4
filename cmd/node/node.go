// Package node implements the fieldsync watch node and the commands that
// share its configuration.
package node

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"fieldsync/internal/discovery"
	"fieldsync/internal/field"
	"fieldsync/internal/rpc"
	"fieldsync/internal/store"
	"fieldsync/pkg/config"
	"fieldsync/pkg/logger"
)

const (
	rebindDelay  = time.Second
	restartDelay = 3 * time.Second
	summaryEvery = 5 * time.Second
)

// Run starts the watch node. hostName, when set, overrides the configured
// host to bind.
func Run(configPath, hostName string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log := logger.Init(cfg.Node.LogLevel)

	if hostName == "" {
		hostName = cfg.Node.Host
	}
	if cfg.Node.TickRate <= 0 {
		return fmt.Errorf("tick_rate must be positive, got %d", cfg.Node.TickRate)
	}

	dcfg, err := DiscoverySettings(cfg)
	if err != nil {
		return err
	}
	opts, err := FieldOptions(cfg)
	if err != nil {
		return err
	}

	// Ensure database directory exists
	dbDir := filepath.Dir(cfg.Node.DBPath)
	if err := os.MkdirAll(dbDir, 0700); err != nil {
		return fmt.Errorf("creating database directory %s: %w", dbDir, err)
	}

	// Ensure RPC socket directory exists
	sockDir := filepath.Dir(cfg.Node.RPCSocket)
	if err := os.MkdirAll(sockDir, 0700); err != nil {
		return fmt.Errorf("creating socket directory %s: %w", sockDir, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open store
	db, err := store.New(cfg.Node.DBPath, log)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer db.Close()

	// Start stale host expiry
	staleThreshold, err := cfg.Node.ParseStaleThreshold()
	if err != nil {
		return fmt.Errorf("parsing stale threshold: %w", err)
	}
	db.RunExpiry(ctx, 5*time.Second, staleThreshold)

	w := newWatcher(ctx, dcfg, opts, hostName, db, log)
	defer w.close()

	// Start RPC server (for 'fieldsync hosts' to query this node)
	srv, err := rpc.StartServer(cfg.Node.RPCSocket, db, w.Status, log)
	if err != nil {
		return fmt.Errorf("starting RPC server: %w", err)
	}
	defer srv.Close()

	log.Info().
		Str("db_path", cfg.Node.DBPath).
		Str("host", hostName).
		Int("tick_rate", cfg.Node.TickRate).
		Str("transport", cfg.Stream.Transport).
		Msg("Starting field watch node")

	ticker := time.NewTicker(time.Second / time.Duration(cfg.Node.TickRate))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Shutting down")
			return nil
		case now := <-ticker.C:
			w.tick(now)
		}
	}
}

// watcher is the tick loop state of the watch node. Everything but Status is
// called from the tick loop only.
type watcher struct {
	ctx      context.Context
	dcfg     discovery.Config
	opts     field.Options
	hostName string
	db       *store.Store
	log      zerolog.Logger

	disc          *discovery.Handle
	nextDiscovery time.Time
	registry      discovery.Registry
	field         *field.Field
	nextBind      time.Time

	lastSummary time.Time
	status      atomic.Pointer[rpc.NodeStatus]
}

func newWatcher(ctx context.Context, dcfg discovery.Config, opts field.Options, hostName string, db *store.Store, log zerolog.Logger) *watcher {
	w := &watcher{
		ctx:      ctx,
		dcfg:     dcfg,
		opts:     opts,
		hostName: hostName,
		db:       db,
		log:      log,
	}
	w.disc = discovery.Spawn(ctx, dcfg, log)
	w.status.Store(&rpc.NodeStatus{})
	return w
}

// Status returns the last published state. Safe for concurrent use.
func (w *watcher) Status() rpc.NodeStatus {
	return *w.status.Load()
}

func (w *watcher) tick(now time.Time) {
	w.pollDiscovery(now)

	if w.field == nil && !now.Before(w.nextBind) {
		w.bind(now)
	}

	if w.field != nil {
		if !w.field.Tick() {
			w.log.Warn().
				Err(w.field.Err()).
				Str("host", w.field.Host().Name()).
				Msg("Field stream ended, dropping field")
			w.field.Close()
			w.field = nil
			w.nextBind = now.Add(rebindDelay)
		} else {
			w.consume(now)
		}
	}

	w.publishStatus()
}

func (w *watcher) pollDiscovery(now time.Time) {
	if w.disc.Finished() {
		if w.nextDiscovery.IsZero() {
			w.log.Warn().Err(w.disc.Err()).Msg("Discovery task ended")
			w.nextDiscovery = now.Add(restartDelay)
		}
		if now.Before(w.nextDiscovery) {
			return
		}
		w.log.Info().Msg("Restarting discovery")
		w.disc = discovery.Spawn(w.ctx, w.dcfg, w.log)
		w.nextDiscovery = time.Time{}
		return
	}

	for {
		hosts, ok := w.disc.TryRecv()
		if !ok {
			return
		}
		if w.registry.Update(hosts) {
			names := make([]string, len(hosts))
			for i, h := range hosts {
				names[i] = h.Name()
			}
			w.log.Info().Strs("hosts", names).Msg("Host list changed")
		}
		if len(hosts) > 0 {
			if err := w.db.Upsert(hosts...); err != nil {
				w.log.Error().Err(err).Msg("Failed to record hosts")
			}
		}
	}
}

func (w *watcher) bind(now time.Time) {
	var (
		host discovery.Host
		ok   bool
	)
	if w.hostName != "" {
		host, ok = w.registry.Lookup(w.hostName)
	} else if hosts := w.registry.Hosts(); len(hosts) > 0 {
		host, ok = hosts[0], true
	}
	if !ok {
		return
	}

	f, err := field.Bind(w.ctx, host, w.opts, w.log)
	if err != nil {
		w.log.Error().Err(err).Str("host", host.Name()).Msg("Failed to bind field")
		w.nextBind = now.Add(rebindDelay)
		return
	}
	w.field = f
	w.lastSummary = now

	if err := w.db.MarkBound(store.KeyOf(host)); err != nil {
		w.log.Warn().Err(err).Msg("Failed to record binding")
	}
}

// consume pulls the per-tick state out of the field the way a renderer would.
func (w *watcher) consume(now time.Time) {
	world := w.field.WorldState()
	batch := w.field.VisualizationUpdates()

	if now.Sub(w.lastSummary) < summaryEvery {
		return
	}
	w.lastSummary = now

	game := w.field.GameState()
	geom := w.field.FieldGeometry()
	stats := w.field.Stats()

	ev := w.log.Info().
		Str("host", w.field.Host().Name()).
		Int("yellow", len(world.Yellow)).
		Int("blue", len(world.Blue)).
		Bool("ball", world.Ball != nil).
		Int("overlays", len(batch.Entries)).
		Int("mapped_overlays", len(w.field.Mappings().Visualizations)).
		Str("yellow_team", game.YellowTeam).
		Str("blue_team", game.BlueTeam).
		Float64("field_x", geom.PlayArea.X).
		Float64("field_y", geom.PlayArea.Y).
		Int("buffered", stats.Samples).
		Dur("offset", stats.Offset).
		Int("stutters", stats.Stutters)
	if world.Ball != nil {
		ev = ev.Float64("ball_x", world.Ball.X).Float64("ball_y", world.Ball.Y)
	}
	ev.Msg("Field summary")
}

func (w *watcher) publishStatus() {
	st := &rpc.NodeStatus{}
	if f := w.field; f != nil {
		stats := f.Stats()
		st.Bound = true
		st.Host = f.Host().Name()
		st.Session = f.Session().String()
		st.Received = uint64(f.Received())
		st.Buffered = stats.Samples
		st.Offset = stats.Offset
		st.Stutters = stats.Stutters
	}
	w.status.Store(st)
}

func (w *watcher) close() {
	if w.field != nil {
		w.field.Close()
	}
	w.disc.Close()
}
