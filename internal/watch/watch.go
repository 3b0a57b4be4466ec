// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package watch hot-reloads a RuleSet file: it watches the file's
// directory with fsnotify and atomically swaps in a freshly parsed
// RuleSet whenever the file changes and still parses/validates
// successfully. A failed reload leaves the previously loaded RuleSet in
// place and is reported through the OnError callback (spec §4.5).
package watch

import (
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"netpolicy.dev/netpolicy/internal/dsl"
	"netpolicy.dev/netpolicy/internal/logging"
	"netpolicy.dev/netpolicy/internal/rules"
)

// Loader holds the current RuleSet and refreshes it on file change.
type Loader struct {
	path    string
	current atomic.Pointer[rules.RuleSet]

	watcher *fsnotify.Watcher
	done    chan struct{}

	// OnReload, if set, is called after every successful reload.
	OnReload func(*rules.RuleSet)
	// OnError, if set, is called whenever a reload attempt fails; the
	// previously loaded RuleSet remains active.
	OnError func(error)
}

// Load reads and parses path once, returning a Loader seeded with the
// result. Format is inferred from the file extension: ".yaml"/".yml" uses
// the YAML decoder, anything else uses the DSL.
func Load(path string) (*Loader, error) {
	l := &Loader{path: path}
	rs, err := parseFile(path)
	if err != nil {
		return nil, err
	}
	l.current.Store(rs)
	return l, nil
}

// RuleSet returns the currently active, validated RuleSet.
func (l *Loader) RuleSet() *rules.RuleSet {
	return l.current.Load()
}

// Watch starts watching the ruleset file's parent directory for changes
// and reloading on write/rename/create events targeting path. It returns
// immediately; call Close to stop.
func (l *Loader) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	dir := filepath.Dir(l.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}
	l.watcher = watcher
	l.done = make(chan struct{})

	go l.loop()
	return nil
}

func (l *Loader) loop() {
	target := filepath.Clean(l.path)
	for {
		select {
		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			l.reload()
		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			logging.Warn("ruleset watch error", "err", err)
		case <-l.done:
			return
		}
	}
}

func (l *Loader) reload() {
	rs, err := parseFile(l.path)
	if err != nil {
		logging.Warn("ruleset reload failed, keeping previous ruleset", "err", err)
		if l.OnError != nil {
			l.OnError(err)
		}
		return
	}
	l.current.Store(rs)
	logging.Info("ruleset reloaded", "path", l.path, "rules", len(rs.Rules))
	if l.OnReload != nil {
		l.OnReload(rs)
	}
}

// Close stops watching.
func (l *Loader) Close() error {
	if l.watcher == nil {
		return nil
	}
	close(l.done)
	return l.watcher.Close()
}

func parseFile(path string) (*rules.RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if isYAML(path) {
		return rules.ParseYAML(string(data))
	}
	return dsl.Parse(string(data))
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
