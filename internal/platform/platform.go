// Package platform maps social-media platforms onto provider datasets:
// parameter validation and whitelisting, media-metadata extraction, and
// hierarchical storage-path derivation.
package platform

import (
	"fmt"
	"strings"
	"time"

	"github.com/socialpulse/crawl-ingest/internal/ingest"
)

// Profile is the per-platform capability contract consumed by the crawl
// engine. Profiles are immutable after registry load and safe for
// concurrent use.
type Profile interface {
	// Name returns the canonical platform name, e.g. "facebook".
	Name() string

	// Provider identifies which provider adapter this platform uses.
	Provider() ingest.ProviderKind

	// DatasetID is the provider-side dataset or actor identifier.
	DatasetID() string

	// ValidateParams rejects requests before any network call. A nil
	// return means the params are acceptable for this platform.
	ValidateParams(params map[string]any) error

	// PrepareRequestParams whitelists only the fields the provider
	// expects, applies date-format conversion, and fills provider
	// defaults absent from caller input.
	PrepareRequestParams(params map[string]any) map[string]any

	// StoragePath derives the deterministic hierarchical object path for
	// a snapshot. Identical inputs always yield the identical path.
	StoragePath(externalID string, bc ingest.BusinessContext, ts time.Time) string

	// ExtractMediaInfo inspects one record for media. It never fails;
	// absent or malformed media fields yield a zero-media result.
	ExtractMediaInfo(record ingest.ParsedRecord) ingest.MediaInfo
}

// Config is the static per-platform configuration loaded at startup.
type Config struct {
	Name           string   `mapstructure:"name"`
	Provider       string   `mapstructure:"provider"`
	DatasetID      string   `mapstructure:"dataset_id"`
	DateFormat     string   `mapstructure:"date_format"`
	RequiredParams []string `mapstructure:"required_params"`
	OptionalParams []string `mapstructure:"optional_params"`
	MediaFields    []string `mapstructure:"media_fields"`
}

// Validate enforces the structural requirements for a registry entry.
func (c Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("platform name is required")
	}
	switch ingest.ProviderKind(c.Provider) {
	case ingest.ProviderBrightData, ingest.ProviderApify:
	default:
		return fmt.Errorf("platform %s: unknown provider %q", c.Name, c.Provider)
	}
	if c.DatasetID == "" {
		return fmt.Errorf("platform %s: dataset_id is required", c.Name)
	}
	return nil
}

// NewProfile builds the typed profile for a known platform name, falling
// back to a config-driven generic profile for platforms without bespoke
// handling.
func NewProfile(cfg Config) (Profile, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch strings.ToLower(cfg.Name) {
	case "facebook":
		return newFacebook(cfg), nil
	case "tiktok":
		return newTikTok(cfg), nil
	case "youtube":
		return newYouTube(cfg), nil
	default:
		return &baseProfile{cfg: cfg}, nil
	}
}

// baseProfile implements the generic behavior shared by all platforms;
// typed profiles embed it and override what differs.
type baseProfile struct {
	cfg Config
}

func (p *baseProfile) Name() string { return strings.ToLower(p.cfg.Name) }

func (p *baseProfile) Provider() ingest.ProviderKind {
	return ingest.ProviderKind(p.cfg.Provider)
}

func (p *baseProfile) DatasetID() string { return p.cfg.DatasetID }

// ValidateParams requires every configured required param to be present
// and non-empty.
func (p *baseProfile) ValidateParams(params map[string]any) error {
	for _, field := range p.cfg.RequiredParams {
		v, ok := params[field]
		if !ok || v == nil || v == "" {
			return &ingest.InvalidParamsError{
				Platform: p.Name(),
				Reason:   fmt.Sprintf("missing required parameter %q", field),
			}
		}
	}
	return nil
}

// PrepareRequestParams passes through only the configured required and
// optional params; everything else is dropped.
func (p *baseProfile) PrepareRequestParams(params map[string]any) map[string]any {
	out := make(map[string]any)
	for _, field := range p.cfg.RequiredParams {
		if v, ok := params[field]; ok {
			out[field] = v
		}
	}
	for _, field := range p.cfg.OptionalParams {
		if v, ok := params[field]; ok {
			out[field] = v
		}
	}
	return out
}

// StoragePath lays snapshots out under business-context partitions plus a
// calendar date, keyed by the external id. The layout is shared by every
// platform; only the platform segment differs.
func (p *baseProfile) StoragePath(externalID string, bc ingest.BusinessContext, ts time.Time) string {
	return fmt.Sprintf(
		"raw_snapshots/platform=%s/competitor=%s/brand=%s/category=%s/year=%d/month=%02d/day=%02d/snapshot_%s.json",
		p.Name(), bc.Competitor, bc.Brand, bc.Category,
		ts.Year(), int(ts.Month()), ts.Day(), externalID,
	)
}

// ExtractMediaInfo counts configured media fields that are present and
// non-empty on the record.
func (p *baseProfile) ExtractMediaInfo(record ingest.ParsedRecord) ingest.MediaInfo {
	info := ingest.MediaInfo{MediaTypes: []string{}}
	for _, field := range p.cfg.MediaFields {
		v, ok := record[field]
		if !ok || v == nil {
			continue
		}
		if s, isString := v.(string); isString && s == "" {
			continue
		}
		info.HasMedia = true
		info.MediaCount++
		info.MediaTypes = append(info.MediaTypes, field)
	}
	return info
}

// convertDate rewrites YYYY-MM-DD into MM-DD-YYYY, which BrightData
// datasets expect. Unparseable values pass through unchanged.
func convertDate(value any) any {
	s, ok := value.(string)
	if !ok {
		return value
	}
	parsed, err := time.Parse("2006-01-02", s)
	if err != nil {
		return value
	}
	return parsed.Format("01-02-2006")
}

func stringValue(params map[string]any, key string) string {
	s, _ := params[key].(string)
	return s
}
