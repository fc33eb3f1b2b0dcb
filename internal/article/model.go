package article

// Article is the source-of-truth input written by the ingestion crawlers.
// The collection is read-only to this service; dates are stored as strings
// in whatever form the crawler produced, so day matching is a prefix check.
type Article struct {
	ID           string `bson:"_id"`
	Title        string `bson:"title"`
	ChineseTitle string `bson:"chinese_title,omitempty"`
	Content      string `bson:"content"`
	Date         string `bson:"date"`
	Source       string `bson:"source"`
	SourceType   string `bson:"source_type,omitempty"`
	URL          string `bson:"url,omitempty"`
	ImageURL     string `bson:"image_url,omitempty"`
}

// Complete reports whether the article carries every field the curation
// pipeline requires. Incomplete articles are skipped, not fatal.
func (a Article) Complete() bool {
	return a.Title != "" && a.Date != "" && a.Content != "" && a.Source != ""
}
