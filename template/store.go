package template

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/calmerge/calmerge-server/errors"
	"github.com/calmerge/calmerge-server/logging"
)

// Store loads all templates from a directory and optionally watches it for
// changes. Processing runs pin the *Template value they started with, so a
// reload never changes a run halfway through.
type Store struct {
	dir         string
	defaultName string
	mu          sync.RWMutex
	templates   map[string]*Template
	watcher     *fsnotify.Watcher
}

// NewStore creates a Store for the given directory and performs the initial
// load. defaultName is the template used when callers do not name one.
func NewStore(dir string, defaultName string) (*Store, error) {
	s := &Store{
		dir:         dir,
		defaultName: defaultName,
	}
	templates, err := s.load()
	if err != nil {
		return nil, errors.Wrap(err, "initial template load", errors.Details{"dir": dir})
	}
	s.templates = templates
	if _, ok := templates[defaultName]; !ok {
		return nil, errors.NewUnknownTemplateError(defaultName)
	}
	return s, nil
}

// ByName returns the template with the given name. An empty name resolves to
// the configured default.
func (s *Store) ByName(name string) (*Template, error) {
	if name == "" {
		name = s.defaultName
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	tpl, ok := s.templates[name]
	if !ok {
		return nil, errors.NewUnknownTemplateError(name)
	}
	return tpl, nil
}

// Names returns the names of all loaded templates.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.templates))
	for name := range s.templates {
		names = append(names, name)
	}
	return names
}

// Watch starts a background goroutine that reloads the template directory on
// file changes. A reload that fails keeps the previous templates. Call the
// returned stop function to clean up.
func (s *Store) Watch() (stop func(), err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.NewInternalError("create template watcher", errors.Details{"err": err.Error()})
	}
	if err := w.Add(s.dir); err != nil {
		_ = w.Close()
		return nil, errors.NewInternalError("watch template dir", errors.Details{
			"dir": s.dir,
			"err": err.Error(),
		})
	}
	s.watcher = w

	done := make(chan struct{})
	go func() {
		defer func() { _ = w.Close() }()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) {
					continue
				}
				templates, err := s.load()
				if err != nil {
					errors.Log(logging.TemplateLogger, errors.Wrap(err, "reload templates", nil))
					continue
				}
				if _, ok := templates[s.defaultName]; !ok {
					errors.Log(logging.TemplateLogger, errors.NewUnknownTemplateError(s.defaultName))
					continue
				}
				s.mu.Lock()
				s.templates = templates
				s.mu.Unlock()
				logging.TemplateLogger.Info("templates reloaded",
					zap.Int("template_count", len(templates)))
			case <-w.Errors:
				// Ignore watcher errors, the next event will retry.
			case <-done:
				return
			}
		}
	}()

	return func() { close(done) }, nil
}

// load reads all *.yaml and *.yml files in the store directory.
func (s *Store) load() (map[string]*Template, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errors.NewInternalError("read template dir", errors.Details{
			"dir": s.dir,
			"err": err.Error(),
		})
	}
	templates := make(map[string]*Template)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			return nil, errors.NewInternalError("read template file", errors.Details{
				"file": entry.Name(),
				"err":  err.Error(),
			})
		}
		tpl, err := Parse(raw)
		if err != nil {
			return nil, errors.Wrap(err, "parse template", errors.Details{"file": entry.Name()})
		}
		if _, ok := templates[tpl.Name]; ok {
			return nil, errors.NewInvalidTemplateError("duplicate template name", nil,
				errors.Details{"template": tpl.Name, "file": entry.Name()})
		}
		templates[tpl.Name] = tpl
	}
	return templates, nil
}
