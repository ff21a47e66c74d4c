package platform

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/socialpulse/crawl-ingest/internal/ingest"
)

// DefaultTikTokActor is the Apify actor used for TikTok profiles when
// configuration does not override it.
const DefaultTikTokActor = "clockworks/tiktok-scraper"

var (
	tiktokURLPattern    = regexp.MustCompile(`^https?://(www\.)?tiktok\.com/`)
	tiktokHandlePattern = regexp.MustCompile(`^@[\w.]+$`)
)

// tiktokProfile targets the Apify TikTok scraper actor.
type tiktokProfile struct {
	baseProfile
}

func newTikTok(cfg Config) *tiktokProfile {
	if len(cfg.RequiredParams) == 0 {
		cfg.RequiredParams = []string{"url"}
	}
	if len(cfg.OptionalParams) == 0 {
		cfg.OptionalParams = []string{"resultsPerPage", "oldestPostDateUnified", "newestPostDate"}
	}
	if len(cfg.MediaFields) == 0 {
		cfg.MediaFields = []string{"videoMeta"}
	}
	return &tiktokProfile{baseProfile{cfg: cfg}}
}

// ValidateParams accepts either a full tiktok.com URL or a bare @handle.
func (p *tiktokProfile) ValidateParams(params map[string]any) error {
	if err := p.baseProfile.ValidateParams(params); err != nil {
		return err
	}
	url := stringValue(params, "url")
	if !tiktokURLPattern.MatchString(url) && !tiktokHandlePattern.MatchString(url) {
		return &ingest.InvalidParamsError{
			Platform: p.Name(),
			Reason:   fmt.Sprintf("url %q is neither a tiktok.com address nor an @handle", url),
		}
	}
	return nil
}

// PrepareRequestParams rewrites the caller's url into the actor's
// profiles list and fills the actor's input defaults.
func (p *tiktokProfile) PrepareRequestParams(params map[string]any) map[string]any {
	out := map[string]any{
		"excludePinnedPosts":    true,
		"profileScrapeSections": []string{"videos"},
		"profileSorting":        "latest",
		"resultsPerPage":        10,
	}
	url := stringValue(params, "url")
	if strings.HasPrefix(url, "@") {
		url = "https://www.tiktok.com/" + url
	}
	out["profiles"] = []string{url}
	for _, field := range p.cfg.OptionalParams {
		if v, ok := params[field]; ok {
			out[field] = v
		}
	}
	if v, ok := params["num_of_posts"]; ok {
		out["resultsPerPage"] = v
	}
	return out
}

// ExtractMediaInfo reads the actor's videoMeta block; every TikTok item
// with one is a single video.
func (p *tiktokProfile) ExtractMediaInfo(record ingest.ParsedRecord) ingest.MediaInfo {
	info := ingest.MediaInfo{MediaTypes: []string{}}
	meta, ok := record["videoMeta"].(map[string]any)
	if !ok || len(meta) == 0 {
		return info
	}
	info.HasMedia = true
	info.MediaCount = 1
	info.MediaTypes = append(info.MediaTypes, "video")
	return info
}
