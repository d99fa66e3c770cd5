package notify

import (
	"context"
	"io/ioutil"

	"github.com/naoina/toml"
	"github.com/pkg/errors"
	"github.com/rjeczalik/notify"

	"github.com/chainwallet/syncer/log"
)

// webhookMapping is the on-disk TOML shape: address -> list of webhook URLs.
type webhookMapping struct {
	Watch map[string][]string `toml:"watch"`
}

// ConfigWatcher watches a webhook-mapping TOML file with
// github.com/rjeczalik/notify and re-applies StartWatchingAddr/
// StopWatchingAddr calls on every edit (§4.8 NEW) — an operational
// convenience for redeploying the mapping without restarting the process,
// not a spec-core behavior.
type ConfigWatcher struct {
	path       string
	dispatcher *Dispatcher
	log        log.Logger

	last map[string]map[string]struct{} // addr -> set of urls, as last applied
}

// NewConfigWatcher prepares a watcher for path, to be driven by Run.
func NewConfigWatcher(path string, dispatcher *Dispatcher) *ConfigWatcher {
	return &ConfigWatcher{
		path:       path,
		dispatcher: dispatcher,
		log:        log.NewModuleLogger(log.Notify),
		last:       make(map[string]map[string]struct{}),
	}
}

// Run applies the file's current contents once, then blocks reconciling
// every subsequent write event until ctx is cancelled.
func (w *ConfigWatcher) Run(ctx context.Context) error {
	if err := w.reload(); err != nil {
		w.log.Error("failed to load webhook mapping file", "path", w.path, "err", err)
	}

	events := make(chan notify.EventInfo, 8)
	if err := notify.Watch(w.path, events, notify.Write, notify.Rename); err != nil {
		return errors.Wrapf(err, "watch webhook mapping file %s", w.path)
	}
	defer notify.Stop(events)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-events:
			if err := w.reload(); err != nil {
				w.log.Error("failed to reload webhook mapping file", "path", w.path, "err", err)
			}
		}
	}
}

// reload reads the mapping file and diffs it against the last-applied set,
// issuing only the Start/Stop calls needed to converge.
func (w *ConfigWatcher) reload() error {
	data, err := ioutil.ReadFile(w.path)
	if err != nil {
		return errors.Wrap(err, "read webhook mapping file")
	}
	var parsed webhookMapping
	if err := toml.Unmarshal(data, &parsed); err != nil {
		return errors.Wrap(err, "parse webhook mapping file")
	}

	next := make(map[string]map[string]struct{}, len(parsed.Watch))
	for addr, urls := range parsed.Watch {
		set := make(map[string]struct{}, len(urls))
		for _, u := range urls {
			set[u] = struct{}{}
		}
		next[addr] = set
	}

	for addr, urls := range next {
		for url := range urls {
			if _, existed := w.last[addr][url]; !existed {
				if err := w.dispatcher.StartWatchingAddr(addr, url); err != nil {
					w.log.Warn("failed to apply new watch entry", "addr", addr, "url", url, "err", err)
				}
			}
		}
	}
	for addr, urls := range w.last {
		for url := range urls {
			if _, stillPresent := next[addr][url]; !stillPresent {
				if err := w.dispatcher.StopWatchingAddr(addr, url); err != nil {
					w.log.Warn("failed to remove stale watch entry", "addr", addr, "url", url, "err", err)
				}
			}
		}
	}

	w.last = next
	return nil
}
