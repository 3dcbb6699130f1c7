package topic

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	yaml "gopkg.in/yaml.v3"

	apperrors "github.com/openpolicylabs/govintel/internal/errors"
	"github.com/openpolicylabs/govintel/pkg/embedding"
	"github.com/openpolicylabs/govintel/pkg/shared/logging"
	"github.com/openpolicylabs/govintel/pkg/types"
)

// seedTopic is the YAML shape of one topic definition file under the
// seed directory.
type seedTopic struct {
	Key           string             `yaml:"key"`
	DisplayName   string             `yaml:"display_name"`
	Description   string             `yaml:"description"`
	Keywords      []string           `yaml:"keywords"`
	KeywordGroups []seedKeywordGroup `yaml:"keyword_groups"`
	Active        *bool              `yaml:"active"`
	Category      string             `yaml:"category"`
}

type seedKeywordGroup struct {
	Operator string   `yaml:"operator"`
	Terms    []string `yaml:"terms"`
}

// Registry holds the active Topic set, loaded once per process from a
// directory of YAML seed files and kept current by watching that
// directory for edits (spec 4.2: "Registry loads, once per process").
type Registry struct {
	mu          sync.RWMutex
	topics      map[string]types.Topic
	seedDir     string
	embedder    embedding.Provider
	logger      *logrus.Logger
	watcher     *fsnotify.Watcher
	debounceMap map[string]time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
}

// NewRegistry loads every *.yaml/*.yml file under seedDir. Topics whose
// seed omits an embedding get one generated via embedder (which may be
// nil, in which case such topics score on keywords only).
func NewRegistry(ctx context.Context, seedDir string, embedder embedding.Provider, logger *logrus.Logger) (*Registry, error) {
	if logger == nil {
		logger = logrus.New()
	}
	r := &Registry{
		topics:      make(map[string]types.Topic),
		seedDir:     seedDir,
		embedder:    embedder,
		logger:      logger,
		debounceMap: make(map[string]time.Time),
		debounceDur: 500 * time.Millisecond,
	}
	if err := r.reload(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// Active returns a snapshot of every topic currently flagged active.
func (r *Registry) Active() []types.Topic {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.Topic, 0, len(r.topics))
	for _, t := range r.topics {
		if t.Active {
			out = append(out, t)
		}
	}
	return out
}

// Get returns a single topic by key.
func (r *Registry) Get(key string) (types.Topic, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.topics[key]
	return t, ok
}

func (r *Registry) reload(ctx context.Context) error {
	entries, err := os.ReadDir(r.seedDir)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to read topic seed directory")
	}

	loaded := make(map[string]types.Topic)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		raw, err := os.ReadFile(filepath.Join(r.seedDir, name))
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to read topic seed file: "+name)
		}

		var seeds []seedTopic
		if err := yaml.Unmarshal(raw, &seeds); err != nil {
			return apperrors.Wrap(err, apperrors.ErrorTypeValidation, "failed to parse topic seed file: "+name)
		}

		for _, s := range seeds {
			t := types.Topic{
				Key:         s.Key,
				DisplayName: s.DisplayName,
				Description: s.Description,
				Keywords:    s.Keywords,
				Active:      s.Active == nil || *s.Active,
			}
			if s.Category != "" {
				t.Category = &s.Category
			}
			for _, g := range s.KeywordGroups {
				t.KeywordGroups = append(t.KeywordGroups, types.KeywordGroup{Operator: g.Operator, Terms: g.Terms})
			}

			if existing, ok := r.topics[t.Key]; ok && existing.Embedding != nil {
				t.Embedding = existing.Embedding
			} else if r.embedder != nil {
				vec, err := r.embedder.Embed(ctx, t.EmbeddingSeedText())
				if err != nil {
					r.logger.WithFields(logging.PipelineFields("topic_registry", "embed_seed").ToLogrus()).
						WithError(err).Warn("failed to generate topic embedding, topic will score on keywords only")
				} else {
					t.Embedding = vec.ToFloat64()
				}
			}

			loaded[t.Key] = t
		}
	}

	r.mu.Lock()
	r.topics = loaded
	r.mu.Unlock()

	r.logger.WithFields(logging.PipelineFields("topic_registry", "reload").Count(len(loaded)).ToLogrus()).
		Info("topic registry reloaded")
	return nil
}

// Watch starts a background fsnotify watcher over the seed directory,
// debouncing rapid edits and reloading the registry on settle. Non-
// blocking; call Stop to end it.
func (r *Registry) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to create topic seed watcher")
	}
	if err := watcher.Add(r.seedDir); err != nil {
		watcher.Close()
		return apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to watch topic seed directory")
	}

	r.watcher = watcher
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})

	go r.run(ctx)
	return nil
}

// Stop ends the background watcher started by Watch. A no-op if Watch was
// never called.
func (r *Registry) Stop() {
	if r.watcher == nil {
		return
	}
	close(r.stopCh)
	<-r.doneCh
	r.watcher.Close()
}

func (r *Registry) run(ctx context.Context) {
	defer close(r.doneCh)
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if strings.HasSuffix(event.Name, ".yaml") || strings.HasSuffix(event.Name, ".yml") {
				r.debounceMap[event.Name] = time.Now()
			}
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.logger.WithFields(logging.PipelineFields("topic_registry", "watch").Error(err).ToLogrus()).
				Warn("topic seed watcher error")
		case <-ticker.C:
			r.flushDebounced(ctx)
		}
	}
}

func (r *Registry) flushDebounced(ctx context.Context) {
	if len(r.debounceMap) == 0 {
		return
	}
	settled := false
	now := time.Now()
	for path, t := range r.debounceMap {
		if now.Sub(t) >= r.debounceDur {
			delete(r.debounceMap, path)
			settled = true
		}
	}
	if settled {
		if err := r.reload(ctx); err != nil {
			r.logger.WithFields(logging.PipelineFields("topic_registry", "reload").Error(err).ToLogrus()).
				Warn("topic registry reload failed after seed file change")
		}
	}
}
