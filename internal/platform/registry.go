package platform

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/socialpulse/crawl-ingest/internal/ingest"
)

// ErrUnknownPlatform is returned by Registry.Get for names with no
// registered profile.
var ErrUnknownPlatform = errors.New("unknown platform")

// Registry holds the loaded set of platform profiles. It is populated
// once at startup and read-only afterwards, so lookups need no locking.
type Registry struct {
	profiles map[string]Profile
	logger   *zap.Logger
}

// NewRegistry builds a registry from explicit configuration entries.
// Any invalid entry fails the whole load: a misconfigured platform at
// startup is a deploy error, not something to limp past.
func NewRegistry(logger *zap.Logger, configs []Config) (*Registry, error) {
	r := &Registry{
		profiles: make(map[string]Profile, len(configs)),
		logger:   logger.Named("platforms"),
	}
	for _, cfg := range configs {
		profile, err := NewProfile(cfg)
		if err != nil {
			return nil, fmt.Errorf("loading platform registry: %w", err)
		}
		key := strings.ToLower(cfg.Name)
		if _, dup := r.profiles[key]; dup {
			return nil, fmt.Errorf("loading platform registry: duplicate platform %q", key)
		}
		r.profiles[key] = profile
		r.logger.Info("registered platform",
			zap.String("platform", key),
			zap.String("provider", cfg.Provider),
			zap.String("dataset_id", cfg.DatasetID),
		)
	}
	return r, nil
}

// DefaultConfigs returns the builtin platform set used when configuration
// supplies none.
func DefaultConfigs() []Config {
	return []Config{
		{
			Name:      "facebook",
			Provider:  string(ingest.ProviderBrightData),
			DatasetID: DefaultFacebookDataset,
		},
		{
			Name:      "tiktok",
			Provider:  string(ingest.ProviderApify),
			DatasetID: DefaultTikTokActor,
		},
		{
			Name:      "youtube",
			Provider:  string(ingest.ProviderApify),
			DatasetID: DefaultYouTubeActor,
		},
	}
}

// Get resolves a platform by name, case-insensitively.
func (r *Registry) Get(name string) (Profile, error) {
	profile, ok := r.profiles[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w %q (known: %s)", ErrUnknownPlatform, name, strings.Join(r.Names(), ", "))
	}
	return profile, nil
}

// Names lists the registered platforms in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.profiles))
	for name := range r.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
