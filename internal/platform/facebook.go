package platform

import (
	"fmt"
	"regexp"

	"github.com/socialpulse/crawl-ingest/internal/ingest"
)

// DefaultFacebookDataset is the BrightData Facebook-posts dataset used
// when configuration does not override it.
const DefaultFacebookDataset = "gd_lkaxegm826bjpoo9m5"

var facebookURLPattern = regexp.MustCompile(`^https?://(www\.)?(facebook\.com|fb\.com)/`)

// facebookProfile targets the BrightData Facebook-posts dataset.
type facebookProfile struct {
	baseProfile
}

func newFacebook(cfg Config) *facebookProfile {
	if len(cfg.RequiredParams) == 0 {
		cfg.RequiredParams = []string{"url"}
	}
	if len(cfg.OptionalParams) == 0 {
		cfg.OptionalParams = []string{
			"num_of_posts", "start_date", "end_date", "include_profile_data",
		}
	}
	if len(cfg.MediaFields) == 0 {
		cfg.MediaFields = []string{"attachments"}
	}
	return &facebookProfile{baseProfile{cfg: cfg}}
}

// ValidateParams requires a Facebook page or profile URL.
func (p *facebookProfile) ValidateParams(params map[string]any) error {
	if err := p.baseProfile.ValidateParams(params); err != nil {
		return err
	}
	url := stringValue(params, "url")
	if !facebookURLPattern.MatchString(url) {
		return &ingest.InvalidParamsError{
			Platform: p.Name(),
			Reason:   fmt.Sprintf("url %q is not a facebook.com or fb.com address", url),
		}
	}
	return nil
}

// PrepareRequestParams whitelists the dataset's fields and rewrites date
// boundaries into the MM-DD-YYYY shape BrightData expects.
func (p *facebookProfile) PrepareRequestParams(params map[string]any) map[string]any {
	out := p.baseProfile.PrepareRequestParams(params)
	for _, field := range []string{"start_date", "end_date"} {
		if v, ok := out[field]; ok {
			out[field] = convertDate(v)
		}
	}
	return out
}

// ExtractMediaInfo reads the attachments list BrightData returns on each
// post. Attachment entries carry a "type" discriminator when present.
func (p *facebookProfile) ExtractMediaInfo(record ingest.ParsedRecord) ingest.MediaInfo {
	info := ingest.MediaInfo{MediaTypes: []string{}}
	attachments, ok := record["attachments"].([]any)
	if !ok || len(attachments) == 0 {
		return info
	}
	for _, raw := range attachments {
		att, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		info.HasMedia = true
		info.MediaCount++
		if t, ok := att["type"].(string); ok && t != "" {
			info.MediaTypes = append(info.MediaTypes, t)
		} else {
			info.MediaTypes = append(info.MediaTypes, "attachment")
		}
	}
	return info
}
