// Package digest renders the curated items into the HTML document that is
// emailed out. The document carries the tracking pixel, click-wrapped links,
// and the unload hook that report engagement back to the tracking server.
package digest

import (
	"fmt"
	"html/template"
	"net/url"
	"strings"

	"daily-digest/internal/curated"
)

const (
	placeholderTitle        = "(untitled)"
	placeholderChineseTitle = "（无标题）"
	placeholderSummary      = "(summary unavailable)"
	placeholderChineseSum   = "（暂无摘要）"
	placeholderSource       = "unknown"
	placeholderDate         = "(no date)"
)

const digestTemplate = `<html>
<head><meta charset="utf-8"></head>
<body style="font-family: Arial, sans-serif;">
<h1>MENA/SEA News Today</h1>
<p>Date: {{.Date}}</p>
{{range .Items}}<div style="margin-bottom: 20px; padding: 15px; border: 1px solid #ddd;">
    <h2>{{.Title}}</h2>
    <h3 style="color: #666;">{{.ChineseTitle}}</h3>
    <p style="color: #888;">Source: {{.Source}} | Date: {{.ItemDate}}</p>
    <div style="margin: 10px 0;">
        <p><strong>English Summary:</strong><br>{{.EnglishSummary}}</p>
        <p><strong>Chinese Summary:</strong><br>{{.ChineseSummary}}</p>
    </div>
    {{if .LinkURL}}<p><a href="{{.LinkURL}}">Read full article</a></p>{{end}}
</div>
{{end}}<img src="{{.PixelURL}}" width="1" height="1" alt="" style="display:none">
{{.UnloadScript}}
</body>
</html>
`

// unloadScript reports elapsed reading seconds to the close endpoint when
// the page goes away. The URL is entirely server-built, so it is injected
// verbatim rather than routed through the template's JS escaper.
const unloadScript = `<script>
var opened = Date.now();
window.addEventListener("pagehide", function () {
    var seconds = Math.round((Date.now() - opened) / 1000);
    navigator.sendBeacon("%s" + seconds);
});
</script>`

type itemView struct {
	Title          string
	ChineseTitle   string
	Source         string
	ItemDate       string
	EnglishSummary string
	ChineseSummary string
	LinkURL        string
}

type digestView struct {
	Date         string
	Items        []itemView
	PixelURL     string
	UnloadScript template.HTML
}

// Renderer assembles digests against a fixed tracking base URL.
type Renderer struct {
	baseURL string
	tmpl    *template.Template
}

func NewRenderer(baseURL string) *Renderer {
	return &Renderer{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		tmpl:    template.Must(template.New("digest").Parse(digestTemplate)),
	}
}

// Render builds the HTML document for one send. Incomplete items get
// per-field placeholder text; a single bad item never fails the digest.
func (r *Renderer) Render(items []curated.Item, trackingID, date string) (string, error) {
	closeURL := fmt.Sprintf("%s/track/close/%s?time_spent=", r.baseURL, trackingID)

	view := digestView{
		Date:         date,
		Items:        make([]itemView, 0, len(items)),
		PixelURL:     fmt.Sprintf("%s/track/%s", r.baseURL, trackingID),
		UnloadScript: template.HTML(fmt.Sprintf(unloadScript, closeURL)),
	}

	for _, item := range items {
		view.Items = append(view.Items, r.itemView(item, trackingID))
	}

	var sb strings.Builder
	if err := r.tmpl.Execute(&sb, view); err != nil {
		return "", fmt.Errorf("render digest: %w", err)
	}
	return sb.String(), nil
}

func (r *Renderer) itemView(item curated.Item, trackingID string) itemView {
	v := itemView{
		Title:          orPlaceholder(item.ArticleInfo.Title, placeholderTitle),
		ChineseTitle:   orPlaceholder(item.ArticleInfo.ChineseTitle, placeholderChineseTitle),
		Source:         orPlaceholder(item.ArticleInfo.Source, placeholderSource),
		ItemDate:       orPlaceholder(item.ArticleInfo.Date, placeholderDate),
		EnglishSummary: orPlaceholder(item.EnglishSummary, placeholderSummary),
		ChineseSummary: orPlaceholder(item.ChineseSummary, placeholderChineseSum),
	}

	// Outbound links go through the click endpoint, which records the hit
	// and redirects so the recipient's navigation is not broken.
	if item.ArticleInfo.URL != "" {
		v.LinkURL = fmt.Sprintf("%s/track/click/%s?url=%s",
			r.baseURL, trackingID, url.QueryEscape(item.ArticleInfo.URL))
	}

	return v
}

func orPlaceholder(value, placeholder string) string {
	if strings.TrimSpace(value) == "" {
		return placeholder
	}
	return value
}
