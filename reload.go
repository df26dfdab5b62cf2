package main

import (
	"fmt"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/fileguard/fileguard/cache"
	"github.com/fileguard/fileguard/config"
	"github.com/fileguard/fileguard/matcher"
	"github.com/fileguard/fileguard/ruleset"
)

// configWatcher applies the ruleset transition of §4.5 whenever the
// config file changes on disk, swapping the live matcher and cache
// ruleset version in place rather than requiring a restart. Modeled on
// the teacher's fsnotify-driven rule-file reload in sigma.go, generalized
// from a single detection-rule file to this guard's config file.
type configWatcher struct {
	watcher *fsnotify.Watcher
	path    string
	c       *cache.Cache
	m       *matcher.Reloadable
	version *atomic.Uint64
	logf    func(string, ...interface{})
}

// startConfigWatcher watches path's parent directory rather than path
// itself, since editors commonly replace a config file by renaming a
// temp file over it, which most filesystems surface as events on the
// containing directory rather than on the original inode.
func startConfigWatcher(path string, c *cache.Cache, m *matcher.Reloadable, version *atomic.Uint64, logf func(string, ...interface{})) (*configWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("start config watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch config directory: %w", err)
	}
	cw := &configWatcher{watcher: w, path: filepath.Clean(path), c: c, m: m, version: version, logf: logf}
	go cw.run()
	return cw, nil
}

func (cw *configWatcher) run() {
	for {
		select {
		case ev, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != cw.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cw.reload()
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.logf("config watch: %v", err)
		}
	}
}

func (cw *configWatcher) reload() {
	cfg, err := config.Load(cw.path)
	if err != nil {
		cw.logf("config reload: %v", err)
		return
	}
	newMatcher, err := matcher.New(cfg.Patterns)
	if err != nil {
		cw.logf("config reload: rebuild matcher: %v", err)
		return
	}

	scopeHash, err := ruleset.ScopeHash(string(cfg.WatchMode), cfg.WatchTarget)
	if err != nil {
		cw.logf("config reload: scope hash: %v", err)
		return
	}
	patternsHash, err := ruleset.PatternsHash(cfg.Patterns)
	if err != nil {
		cw.logf("config reload: patterns hash: %v", err)
		return
	}

	prev, found, err := cw.c.LoadRulesetMeta()
	if err != nil {
		cw.logf("config reload: load ruleset meta: %v", err)
		return
	}
	next := ruleset.Transition(prev, found, scopeHash, patternsHash)
	if found && next.RulesetVersion == prev.RulesetVersion {
		return // scope and patterns unchanged, nothing to swap
	}
	if err := cw.c.SaveRulesetMeta(next); err != nil {
		cw.logf("config reload: save ruleset meta: %v", err)
		return
	}
	if _, err := cw.c.InvalidateRuntimeReload(next.RulesetVersion); err != nil {
		cw.logf("config reload: invalidate stale entries: %v", err)
		return
	}

	cw.m.Store(newMatcher)
	cw.version.Store(next.RulesetVersion)
	cw.logf("config reload: ruleset bumped to version %d", next.RulesetVersion)
}

func (cw *configWatcher) Close() error {
	return cw.watcher.Close()
}
