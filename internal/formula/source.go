package formula

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"main/internal/model"

	"github.com/fsnotify/fsnotify"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

// calcDefFile mirrors the JSON layout of the calc definition file.
type calcDefFile struct {
	Calcs []calcDefEntry `json:"calcs"`
}

type calcDefEntry struct {
	RateName   string             `json:"rateName"`
	BidFormula string             `json:"bidFormula"`
	AskFormula string             `json:"askFormula"`
	Consts     map[string]float64 `json:"consts"`
	DependsOn  []string           `json:"dependsOn"`
}

// FileSource loads calc definitions from a JSON file and re-parses lazily
// when the file's modification time changes.
type FileSource struct {
	mu    sync.Mutex
	path  string
	mtime time.Time
	defs  []model.CalcDef
}

// NewFileSource creates a source for the given path. The file is read on
// the first Load call.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Load returns the current definitions, re-parsing the file only when its
// modification time moved. A parse failure keeps the previous definitions.
func (s *FileSource) Load() ([]model.CalcDef, error) {
	if s == nil {
		return nil, errors.New("nil file source")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := os.Stat(s.path)
	if err != nil {
		return nil, errors.Wrap(err, "stat calc file").With("path", s.path)
	}
	if !info.ModTime().After(s.mtime) {
		return s.defs, nil
	}

	defs, err := parseFile(s.path)
	if err != nil {
		if s.defs != nil {
			logs.Warnf("calc file reload failed, keeping %d previous defs: %+v", len(s.defs), err)
			return s.defs, nil
		}
		return nil, err
	}
	s.mtime = info.ModTime()
	s.defs = defs
	return defs, nil
}

// Watch re-loads on file-system events, falling back to mtime polling when
// the watcher cannot be created. onChange receives each new definition set.
func (s *FileSource) Watch(ctx context.Context, interval time.Duration, onChange func([]model.CalcDef)) {
	if s == nil || onChange == nil {
		return
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}

	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		err = watcher.Add(s.path)
	}
	if err != nil {
		logs.Warnf("calc file watch unavailable, polling every %s: %+v", interval, err)
		s.poll(ctx, interval, onChange)
		return
	}
	defer watcher.Close()

	// Polling continues alongside the watcher; editors that replace the
	// file can drop the watch on some platforms.
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			s.reload(onChange)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logs.Warnf("calc file watcher error: %+v", err)
		case <-ticker.C:
			s.reload(onChange)
		}
	}
}

func (s *FileSource) poll(ctx context.Context, interval time.Duration, onChange func([]model.CalcDef)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.reload(onChange)
		}
	}
}

func (s *FileSource) reload(onChange func([]model.CalcDef)) {
	s.mu.Lock()
	prev := s.mtime
	s.mu.Unlock()

	defs, err := s.Load()
	if err != nil {
		logs.Warnf("calc file reload: %+v", err)
		return
	}

	s.mu.Lock()
	changed := s.mtime != prev
	s.mu.Unlock()
	if changed {
		onChange(defs)
	}
}

func parseFile(path string) ([]model.CalcDef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read calc file").With("path", path)
	}
	var file calcDefFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrap(err, "unmarshal calc file").With("path", path)
	}

	defs := make([]model.CalcDef, 0, len(file.Calcs))
	for _, c := range file.Calcs {
		if c.RateName == "" {
			return nil, errors.New("calc def with empty rateName")
		}
		if len(c.DependsOn) == 0 {
			return nil, errors.Errorf("calc def %s has no dependencies", c.RateName)
		}
		defs = append(defs, model.CalcDef{
			RateName:   c.RateName,
			BidFormula: c.BidFormula,
			AskFormula: c.AskFormula,
			Consts:     c.Consts,
			DependsOn:  c.DependsOn,
		})
	}
	return defs, nil
}
