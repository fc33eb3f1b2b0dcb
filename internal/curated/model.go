package curated

import (
	"fmt"
	"strings"
	"time"
)

// Item is one article selected and enriched for a given day's digest. The
// collection holding these is wiped and repopulated once per curation run,
// so exactly one Item exists per (target date, original article) afterwards.
type Item struct {
	ID             string         `bson:"_id"`
	ArticleInfo    ArticleInfo    `bson:"article_info"`
	ProcessingInfo ProcessingInfo `bson:"processing_info"`
	Metadata       Metadata       `bson:"metadata"`
	EnglishSummary string         `bson:"english_summary"`
	ChineseSummary string         `bson:"chinese_summary"`
}

type ArticleInfo struct {
	Title         string `bson:"title"`
	ChineseTitle  string `bson:"chinese_title,omitempty"`
	Date          string `bson:"date"`
	Content       string `bson:"content"`
	Source        string `bson:"source"`
	OriginalSrc   string `bson:"original_source"`
	OriginalDocID string `bson:"original_doc_id"`
	URL           string `bson:"url,omitempty"`
}

type ProcessingInfo struct {
	ProcessedAt string `bson:"processed_at"`
	Timezone    string `bson:"timezone"`
	TargetDate  string `bson:"target_date"`
	Status      string `bson:"status"`
}

type Metadata struct {
	WordCount     int    `bson:"word_count"`
	HasImage      bool   `bson:"has_image"`
	SourceType    string `bson:"source_type"`
	ArticleNumber int    `bson:"article_number"` // 1-based sequence within the source for this run
}

const crawlerSuffix = "Crawler"

// CleanSourceName strips the trailing suffix the automated ingestion agents
// append to their source field ("ABCCrawler" -> "ABC").
func CleanSourceName(source string) string {
	return strings.TrimSuffix(source, crawlerSuffix)
}

// DocumentID builds the deterministic id for an item. The creation timestamp
// keeps ids unique under concurrent writers, the sequence preserves
// per-source ordering for display.
func DocumentID(targetDate, cleanedSource string, createdAt time.Time, sequence int) string {
	return fmt.Sprintf("%s_%s_%d_%d", targetDate, cleanedSource, createdAt.UnixMilli(), sequence)
}
