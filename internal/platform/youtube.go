package platform

import (
	"fmt"
	"regexp"

	"github.com/socialpulse/crawl-ingest/internal/ingest"
)

// DefaultYouTubeActor is the Apify actor used for YouTube channels when
// configuration does not override it.
const DefaultYouTubeActor = "streamers/youtube-scraper"

var youtubeURLPattern = regexp.MustCompile(`^https?://(www\.)?(youtube\.com|youtu\.be)/`)

// youtubeProfile targets the Apify YouTube scraper actor.
type youtubeProfile struct {
	baseProfile
}

func newYouTube(cfg Config) *youtubeProfile {
	if len(cfg.RequiredParams) == 0 {
		cfg.RequiredParams = []string{"url"}
	}
	if len(cfg.OptionalParams) == 0 {
		cfg.OptionalParams = []string{"sortVideosBy", "dateFilter", "videoType"}
	}
	if len(cfg.MediaFields) == 0 {
		cfg.MediaFields = []string{"thumbnailUrl", "url"}
	}
	return &youtubeProfile{baseProfile{cfg: cfg}}
}

// ValidateParams requires a youtube.com or youtu.be URL.
func (p *youtubeProfile) ValidateParams(params map[string]any) error {
	if err := p.baseProfile.ValidateParams(params); err != nil {
		return err
	}
	url := stringValue(params, "url")
	if !youtubeURLPattern.MatchString(url) {
		return &ingest.InvalidParamsError{
			Platform: p.Name(),
			Reason:   fmt.Sprintf("url %q is not a youtube.com or youtu.be address", url),
		}
	}
	return nil
}

// PrepareRequestParams rewrites the caller's url into the actor's
// startUrls list and maps the generic post count onto maxResults.
func (p *youtubeProfile) PrepareRequestParams(params map[string]any) map[string]any {
	out := map[string]any{
		"startUrls":  []map[string]any{{"url": stringValue(params, "url")}},
		"maxResults": 10,
	}
	for _, field := range p.cfg.OptionalParams {
		if v, ok := params[field]; ok {
			out[field] = v
		}
	}
	if v, ok := params["num_of_posts"]; ok {
		out["maxResults"] = v
	}
	return out
}
