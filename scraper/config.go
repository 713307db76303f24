package scraper

// PageConfig defines how to extract article metadata from a static
// interview/column page. Empty selectors fall back to the defaults.
type PageConfig struct {
	TitleSelector     string `json:"title_selector" yaml:"title_selector"`
	HeadingSelector   string `json:"heading_selector" yaml:"heading_selector"`
	ParagraphSelector string `json:"paragraph_selector" yaml:"paragraph_selector"`
	DateMetaSelector  string `json:"date_meta_selector" yaml:"date_meta_selector"`
	TimeSelector      string `json:"time_selector" yaml:"time_selector"`
	ImageSelector     string `json:"image_selector" yaml:"image_selector"`
}

// Default selectors for the column pages.
const (
	DefaultTitleSelector     = "title"
	DefaultHeadingSelector   = "h1"
	DefaultParagraphSelector = "p"
	DefaultDateMetaSelector  = `meta[name="date"]`
	DefaultTimeSelector      = "time[datetime]"
	DefaultImageSelector     = "figure.biography__image img"
)

// NewPageConfig returns a configuration with the default selectors.
func NewPageConfig() PageConfig {
	return PageConfig{}.WithDefaults()
}

// WithDefaults fills every empty selector with its default.
func (c PageConfig) WithDefaults() PageConfig {
	if c.TitleSelector == "" {
		c.TitleSelector = DefaultTitleSelector
	}
	if c.HeadingSelector == "" {
		c.HeadingSelector = DefaultHeadingSelector
	}
	if c.ParagraphSelector == "" {
		c.ParagraphSelector = DefaultParagraphSelector
	}
	if c.DateMetaSelector == "" {
		c.DateMetaSelector = DefaultDateMetaSelector
	}
	if c.TimeSelector == "" {
		c.TimeSelector = DefaultTimeSelector
	}
	if c.ImageSelector == "" {
		c.ImageSelector = DefaultImageSelector
	}
	return c
}
