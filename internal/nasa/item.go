package nasa

import (
	"encoding/json"

	"github.com/tidwall/gjson"

	"github.com/leonardcser/nasa-proxy/internal/sanitize"
)

// Item is the flattened view of one upstream collection item. Upstream
// keeps metadata under data[0] and the preview link under links[0].
type Item struct {
	NasaID       string `json:"nasa_id"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	Photographer string `json:"photographer"`
	MediaType    string `json:"media_type"`
	DateCreated  string `json:"date_created"`
	Preview      string `json:"preview"`
}

// Summarize flattens a raw item. Descriptions are converted from HTML to
// Markdown; the photographer falls back to secondary_creator and center.
func Summarize(raw json.RawMessage) Item {
	r := gjson.ParseBytes(raw)
	d := r.Get("data.0")
	photographer := d.Get("photographer").String()
	if photographer == "" {
		photographer = d.Get("secondary_creator").String()
	}
	if photographer == "" {
		photographer = d.Get("center").String()
	}
	return Item{
		NasaID:       d.Get("nasa_id").String(),
		Title:        sanitize.Text(d.Get("title").String()),
		Description:  sanitize.Markdown(d.Get("description").String()),
		Photographer: sanitize.Text(photographer),
		MediaType:    d.Get("media_type").String(),
		DateCreated:  d.Get("date_created").String(),
		Preview:      r.Get("links.0.href").String(),
	}
}
