// Command fileguard is the kernel-mediated content-aware file-access
// guard: a fanotify permission-event loop that allows or denies opens
// under a watched scope based on regex matches against extracted file
// content, backed by a two-tier decision cache.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fileguard/fileguard/cache"
	"github.com/fileguard/fileguard/config"
	"github.com/fileguard/fileguard/extractor"
	"github.com/fileguard/fileguard/kernel"
	"github.com/fileguard/fileguard/logsink"
	"github.com/fileguard/fileguard/matcher"
	"github.com/fileguard/fileguard/ruleset"
	"github.com/fileguard/fileguard/scanpool"
	"github.com/fileguard/fileguard/stats"
	"github.com/fileguard/fileguard/warmup"
)

const (
	defaultConfigPath = "config/config.json"
	configEnvVar      = "FILEGUARD_CONFIG"

	logsinkChildFlag = "-logsink-child"

	numScanWorkers = 4

	warmupPatternLimit     = 20000
	warmupPatternFillRatio = 0.80

	simulationWindowSize   = 2000
	simulationHopSize      = 1000
	simulationSafetyFactor = 1.2
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: fileguard [blocking|statistic|simulation <trace_file>|-h|--help]")
}

func main() {
	// Re-exec entry point for the forked logging child; never reached
	// through normal CLI dispatch below.
	if len(os.Args) > 1 && os.Args[1] == logsinkChildFlag {
		if err := logsink.RunChild(); err != nil {
			fmt.Fprintf(os.Stderr, "logsink child: %v\n", err)
			os.Exit(1)
		}
		return
	}

	mode := "blocking"
	if len(os.Args) > 1 {
		mode = os.Args[1]
	}

	var err error
	switch mode {
	case "-h", "--help":
		usage()
		os.Exit(0)
	case "blocking":
		err = runBlocking()
	case "statistic":
		err = runStatistic()
	case "simulation":
		if len(os.Args) < 3 {
			usage()
			os.Exit(1)
		}
		err = runSimulation(os.Args[2])
	default:
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "fileguard: %v\n", err)
		os.Exit(1)
	}
}

func configPath() string {
	if p := os.Getenv(configEnvVar); p != "" {
		return p
	}
	return defaultConfigPath
}

// runBlocking is the default CLI mode: arm the kernel source, open the
// cache, and drive the event loop until a signal or a fatal error.
func runBlocking() error {
	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	sink, childPID, err := logsink.Start(logsinkChildFlag)
	if err != nil {
		return fmt.Errorf("start logsink: %w", err)
	}
	defer sink.Close()
	logf := sink.Logf

	c, err := cache.Open(cfg.CachePath, cfg.CacheCapacityBytes, cache.PolicyLFUSize)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer c.Close()

	initialVersion, err := initRuleset(c, cfg)
	if err != nil {
		return fmt.Errorf("initialize ruleset: %w", err)
	}
	var version atomic.Uint64
	version.Store(initialVersion)
	rulesetVersion := func() uint64 { return version.Load() }

	initialMatcher, err := matcher.New(cfg.Patterns)
	if err != nil {
		return fmt.Errorf("build matcher: %w", err)
	}
	m := matcher.NewReloadable(initialMatcher)
	ex := extractor.PlainText{}

	source, err := kernel.NewLinuxSource(cfg.WatchTarget, cfg.WatchMode == config.WatchModeMount)
	if err != nil {
		return fmt.Errorf("arm kernel source: %w", err)
	}
	defer source.Close()

	pool := scanpool.New(numScanWorkers, c, m, ex, rulesetVersion, logf)
	pool.Start()
	defer pool.Shutdown()

	watcher, err := startConfigWatcher(configPath(), c, m, &version, logf)
	if err != nil {
		logf("config reload: disabled: %v", err)
	} else {
		defer watcher.Close()
	}

	scope := warmup.NewScopeTracker(pool, 0, 0, 0, logf)
	internal := newInternalPIDs(int32(os.Getpid()), childPID)
	loop := NewLoop(source, c, m, ex, pool, scope, internal, rulesetVersion, cfg.MaxFileSizeSyncScan, logf)

	go func() {
		byteBudget := int64(float64(cfg.CacheCapacityBytes) * warmupPatternFillRatio)
		if err := warmup.RunPatternMode(c, pool, cfg.WatchTarget, warmupPatternLimit, byteBudget, logf); err != nil {
			logf("warmup: pattern mode failed: %v", err)
		}
	}()

	errCh := make(chan error, 1)
	go func() { errCh <- loop.Run() }()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sig:
		logf("fileguard: shutting down")
		source.Close()
		return nil
	}
}

// initRuleset computes the current scope/pattern hashes, transitions
// the persisted RulesetMeta per §4.5, persists the result, and deletes
// L1 rows left over from a stale ruleset version in one transaction.
func initRuleset(c *cache.Cache, cfg *config.Config) (uint64, error) {
	scopeHash, err := ruleset.ScopeHash(string(cfg.WatchMode), cfg.WatchTarget)
	if err != nil {
		return 0, err
	}
	patternsHash, err := ruleset.PatternsHash(cfg.Patterns)
	if err != nil {
		return 0, err
	}

	prev, found, err := c.LoadRulesetMeta()
	if err != nil {
		return 0, err
	}

	next := ruleset.Transition(prev, found, scopeHash, patternsHash)
	if err := c.SaveRulesetMeta(next); err != nil {
		return 0, err
	}
	if _, err := c.InvalidateStaleRuleset(next.RulesetVersion); err != nil {
		return 0, err
	}
	return next.RulesetVersion, nil
}

// runStatistic arms a non-permission notification source and records a
// trace for the configured duration, per §4.6.
func runStatistic() error {
	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Statistical.DurationSec <= 0 {
		return fmt.Errorf("statistic mode requires statistical.duration_sec > 0")
	}

	source, err := kernel.NewLinuxNotifySource(cfg.WatchTarget, cfg.WatchMode == config.WatchModeMount)
	if err != nil {
		return fmt.Errorf("arm notify source: %w", err)
	}
	defer source.Close()

	trace, err := stats.Record(source, cfg.WatchTarget, time.Duration(cfg.Statistical.DurationSec)*time.Second)
	if err != nil {
		return fmt.Errorf("record trace: %w", err)
	}

	outPath := defaultTracePath(cfg.WatchTarget)
	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return fmt.Errorf("create trace directory: %w", err)
	}
	if err := stats.Save(outPath, trace); err != nil {
		return fmt.Errorf("save trace: %w", err)
	}
	fmt.Printf("fileguard: wrote trace to %s (%d events, %d distinct files)\n", outPath, len(trace.Events), len(trace.Size))
	return nil
}

func defaultTracePath(watchTarget string) string {
	return filepath.Join("trace", filepath.Base(watchTarget)+".trace")
}

// runSimulation loads a persisted trace and reports the parameter
// recommendations of §4.6's analytical functions. It sweeps the EMA
// smoothing factor alpha across the standard 0.1..0.9 grid rather than
// evaluating a single fixed alpha, since the right smoothing factor for
// a workload is itself part of what a simulation run is meant to
// surface.
func runSimulation(tracePath string) error {
	trace, err := stats.Load(tracePath)
	if err != nil {
		return fmt.Errorf("load trace: %w", err)
	}

	size95ByCount := stats.ComputeMaxFileSizeByCount95(trace.Size)
	size95Weighted := stats.ComputeMaxFileSize95(trace.Access, trace.Size)

	fmt.Printf("max_file_size_by_count_95: %d bytes\n", size95ByCount)
	fmt.Printf("max_file_size_95 (hit-weighted): %d bytes\n", size95Weighted)

	for i := 1; i < 10; i++ {
		alpha := 0.1 * float64(i)
		k95Report := stats.TestK95EMAOnline(trace.Events, simulationWindowSize, simulationHopSize, alpha, simulationSafetyFactor)
		size95Report := stats.TestSize95EMAOnline(trace.Events, simulationWindowSize, simulationHopSize, alpha, simulationSafetyFactor)
		fmt.Printf("[alpha=%.1f] k95 EMA: final=%.2f pass=%d/%d windows | size95 EMA: final=%.2f pass=%d/%d windows\n",
			alpha,
			k95Report.FinalEMA, k95Report.PassCount, len(k95Report.Windows),
			size95Report.FinalEMA, size95Report.PassCount, len(size95Report.Windows))
	}
	return nil
}
