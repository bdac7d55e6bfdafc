package safety

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// PolicyWatcher monitors the policy file for changes and swaps the active
// patterns on the Gate when it is rewritten.
type PolicyWatcher struct {
	gate        *Gate
	policyPath  string
	watcher     *fsnotify.Watcher
	stopChan    chan struct{}
	stopOnce    sync.Once
	lastModTime time.Time
	mu          sync.Mutex
}

// NewPolicyWatcher creates a watcher for the given policy path. The initial
// policy is loaded and applied before the watcher starts.
func NewPolicyWatcher(gate *Gate, policyPath string) (*PolicyWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	pw := &PolicyWatcher{
		gate:       gate,
		policyPath: policyPath,
		watcher:    watcher,
		stopChan:   make(chan struct{}),
	}

	if stat, err := os.Stat(policyPath); err == nil {
		pw.lastModTime = stat.ModTime()
	}

	pw.Reload()
	return pw, nil
}

// Start begins watching the policy file's directory. When the directory
// cannot be watched the watcher falls back to polling.
func (pw *PolicyWatcher) Start() error {
	dir := filepath.Dir(pw.policyPath)
	if err := pw.watcher.Add(dir); err != nil {
		log.Warn().Err(err).Str("path", dir).Msg("Failed to watch policy directory, falling back to polling")
		go pw.pollForChanges()
		return nil
	}

	go pw.watchForChanges()
	log.Info().Str("policy_path", pw.policyPath).Msg("Started watching policy file for changes")
	return nil
}

// Stop stops the watcher.
func (pw *PolicyWatcher) Stop() {
	pw.stopOnce.Do(func() {
		close(pw.stopChan)
		pw.watcher.Close()
	})
}

// Reload loads the policy file and applies it to the gate. Used at startup,
// on file change, and on SIGHUP. A load failure keeps the previous policy.
func (pw *PolicyWatcher) Reload() {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	policy, err := LoadPolicy(pw.policyPath)
	if err != nil {
		log.Warn().Err(err).Str("path", pw.policyPath).Msg("Policy reload failed, keeping previous policy")
		return
	}

	pw.gate.SetPolicy(policy)
	literals, globs := pw.gate.PatternCount()
	log.Info().
		Str("path", pw.policyPath).
		Int("literals", literals).
		Int("globs", globs).
		Msg("Applied command policy")
}

func (pw *PolicyWatcher) watchForChanges() {
	for {
		select {
		case event, ok := <-pw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(pw.policyPath) && event.Name != pw.policyPath {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			// Debounce so a partially written file is not parsed
			time.Sleep(100 * time.Millisecond)
			log.Info().Str("event", event.Op.String()).Msg("Detected policy file change")
			pw.Reload()

		case err, ok := <-pw.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Policy watcher error")

		case <-pw.stopChan:
			return
		}
	}
}

func (pw *PolicyWatcher) pollForChanges() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stat, err := os.Stat(pw.policyPath)
			if err != nil {
				continue
			}
			if stat.ModTime().After(pw.lastModTime) {
				pw.lastModTime = stat.ModTime()
				log.Info().Msg("Detected policy file change via polling")
				pw.Reload()
			}

		case <-pw.stopChan:
			return
		}
	}
}
