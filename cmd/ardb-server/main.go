// ardb-server is a Redis-compatible key-value server whose centerpiece is
// the HyperLogLog command family (PFADD, PFCOUNT, PFMERGE). Sketches are
// stored bit-for-bit in the Redis HLL string format, so dumps move freely
// between this server and a stock Redis.
//
// Startup loads the snapshot file (when persistence is enabled) before the
// listener opens, then rebuilds the keyspace index from the restored store.
// A single background goroutine handles maintenance afterwards: every 100ms
// it sweeps the expiry heap and evicts lapsed keys, and on the configured
// interval it writes a fresh snapshot. A final snapshot is taken on
// graceful shutdown.

package main

import (
	"bufio"
	"flag"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/Zarmi/ardb/internal/ardb/hyperloglog"
	"github.com/Zarmi/ardb/internal/ardb/keycache"
	"github.com/Zarmi/ardb/internal/ardb/lock"
)

// keyIndex is the concrete keyspace index the server runs with.
type keyIndex = keycache.Concurrent

type config struct {
	port             int
	maxConnections   int
	shutdownTimeout  time.Duration
	idleTimeout      time.Duration
	sparseMaxBytes   int
	snapshotPath     string
	snapshotInterval time.Duration
}

type application struct {
	config      config
	logger      *slog.Logger
	listener    net.Listener
	store       *Store
	keys        *keyIndex
	hll         *hyperloglog.DB
	router      *Router
	metrics     *Metrics
	readyCh     chan struct{}
	wg          sync.WaitGroup
	connLimiter chan struct{}
	snapshotMu  sync.Mutex
}

func main() {
	var cfg config

	flag.IntVar(&cfg.port, "port", 6379, "TCP server port")
	flag.IntVar(&cfg.maxConnections, "max-conn", 100, "Maximum concurrent connections")
	flag.DurationVar(&cfg.shutdownTimeout, "shutdown-timeout", 5*time.Second, "Graceful shutdown timeout")
	flag.DurationVar(&cfg.idleTimeout, "idle-timeout", 0, "Idle client connection timeout (0 disables)")
	flag.IntVar(&cfg.sparseMaxBytes, "hll-sparse-max-bytes", hyperloglog.DefaultSparseMaxBytes,
		"Max serialized size of a sparse HLL before promotion to dense")
	flag.StringVar(&cfg.snapshotPath, "snapshot", "dump.ardb", "Snapshot file path (empty disables persistence)")
	flag.DurationVar(&cfg.snapshotInterval, "snapshot-interval", 5*time.Minute, "Interval between background snapshots")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	app := newApplication(cfg, logger)

	if cfg.snapshotPath != "" {
		if err := app.loadSnapshotFile(); err != nil {
			logger.Error("failed to load snapshot", "path", cfg.snapshotPath, "error", err)
			os.Exit(1)
		}
	}

	stopMaintenance := app.startMaintenance()

	err := app.serve()

	stopMaintenance()

	// Best effort: persist the final state so a clean restart loses
	// nothing.
	if cfg.snapshotPath != "" {
		if serr := app.saveSnapshotFile(); serr != nil {
			logger.Error("final snapshot failed", "error", serr)
		}
	}

	if err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func newApplication(cfg config, logger *slog.Logger) *application {
	store := NewStore()
	keys := keycache.NewConcurrent()

	app := &application{
		config:      cfg,
		logger:      logger,
		store:       store,
		keys:        keys,
		metrics:     NewMetrics(),
		connLimiter: make(chan struct{}, cfg.maxConnections),
	}
	app.hll = hyperloglog.NewDB(
		&storeBackend{store: store, keys: keys},
		lock.New(),
		cfg.sparseMaxBytes,
	)
	app.router = app.commands()
	return app
}

// startMaintenance launches the background loop and returns its stop
// function.
func (app *application) startMaintenance() func() {
	stop := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)

		expiry := time.NewTicker(100 * time.Millisecond)
		defer expiry.Stop()

		var snapshot <-chan time.Time
		if app.config.snapshotPath != "" && app.config.snapshotInterval > 0 {
			t := time.NewTicker(app.config.snapshotInterval)
			defer t.Stop()
			snapshot = t.C
		}

		for {
			select {
			case <-stop:
				return
			case <-expiry.C:
				app.sweepExpired()
			case <-snapshot:
				if err := app.saveSnapshotFile(); err != nil {
					app.logger.Error("background snapshot failed", "error", err)
				}
			}
		}
	}()

	return func() {
		close(stop)
		<-done
	}
}

// sweepExpired drains lapsed keys from the expiry heap and evicts their
// values from the store. The heap hands over exactly the expired keys, so
// no sampling or scanning is involved.
func (app *application) sweepExpired() {
	expired := app.keys.Sweep(time.Now().UnixMilli())
	for _, key := range expired {
		app.store.Delete(key)
	}
	if n := len(expired); n > 0 {
		app.metrics.ExpiredKeys.Add(uint64(n))
		app.logger.Debug("expired keys reaped", "count", n)
	}
}

// saveSnapshotFile writes a snapshot to a temporary file and renames it
// into place, so a crash mid-write never clobbers the previous snapshot.
// Serialized by snapshotMu: SAVE and the background timer must not write
// the same temp file concurrently.
func (app *application) saveSnapshotFile() error {
	app.snapshotMu.Lock()
	defer app.snapshotMu.Unlock()

	tmp := app.config.snapshotPath + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(f)
	if err := app.store.SaveSnapshot(w); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}

	if err := os.Rename(tmp, app.config.snapshotPath); err != nil {
		_ = os.Remove(tmp)
		return err
	}

	app.metrics.Snapshots.Add(1)
	return nil
}

// loadSnapshotFile restores the store from disk and rebuilds the keyspace
// index to match. A missing snapshot file is a normal first boot.
func (app *application) loadSnapshotFile() error {
	f, err := os.Open(app.config.snapshotPath)
	if err != nil {
		if os.IsNotExist(err) {
			app.logger.Info("no snapshot found, starting empty", "path", app.config.snapshotPath)
			return nil
		}
		return err
	}
	defer func() { _ = f.Close() }()

	if err := app.store.LoadSnapshot(bufio.NewReader(f)); err != nil {
		return err
	}

	app.store.Range(func(key string, deadline int64) {
		if deadline != 0 {
			app.keys.PutWithDeadline(key, deadline)
		} else {
			app.keys.Put(key)
		}
	})

	app.logger.Info("snapshot loaded", "path", app.config.snapshotPath, "keys", app.store.Len())
	return nil
}
