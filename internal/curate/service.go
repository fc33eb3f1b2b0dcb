package curate

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"daily-digest/internal/article"
	"daily-digest/internal/curated"
	"daily-digest/internal/retry"
	"daily-digest/internal/summarize"
)

const (
	summaryAttempts = 3
	writeAttempts   = 3
	readAttempts    = 3

	// Delay after each saved article. Bounds the outbound request rate to
	// the generation service across the whole run; total run time is
	// intentionally linear in matched-article count.
	articleDelay = 5 * time.Second
	retryDelay   = 5 * time.Second
	readBackoff  = 2 * time.Second
)

// Summarizer produces the bilingual summaries for one article's content.
type Summarizer interface {
	Generate(ctx context.Context, content string) (summarize.Summaries, error)
}

// Result reports a run's counters. Success is measured by these, not by
// zero skips: individual articles may be dropped without failing the run.
type Result struct {
	TargetDate string
	Processed  int
	Matched    int
	Saved      int
	BySource   map[string]int
}

// Service runs the curation pipeline: wipe prior output, read all articles,
// then per matching article summarize and persist. Single-threaded; pacing
// sleeps block only this run, never the tracking handler.
type Service struct {
	articles   article.Repository
	curated    curated.Repository
	summarizer Summarizer
	location   *time.Location
	logger     *log.Logger

	now   func() time.Time
	sleep func(context.Context, time.Duration) error

	articleDelay time.Duration
	retryDelay   time.Duration
	readBackoff  time.Duration
}

func NewService(articles article.Repository, store curated.Repository, summarizer Summarizer, location *time.Location, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}

	return &Service{
		articles:   articles,
		curated:    store,
		summarizer: summarizer,
		location:   location,
		logger:     logger,
		now:        time.Now,
		sleep:      retry.Sleep,

		articleDelay: articleDelay,
		retryDelay:   retryDelay,
		readBackoff:  readBackoff,
	}
}

// Run executes one curation cycle. dateOverride selects the target day
// (YYYY-MM-DD); empty means "today" in the business timezone. Re-running for
// the same date fully replaces the prior output because the run starts with
// a whole-collection wipe.
func (s *Service) Run(ctx context.Context, dateOverride string) (Result, error) {
	targetDate := dateOverride
	if targetDate == "" {
		targetDate = s.now().In(s.location).Format("2006-01-02")
	}

	res := Result{
		TargetDate: targetDate,
		BySource:   make(map[string]int),
	}

	s.logger.Printf("looking for articles with date %s", targetDate)

	deleted, err := s.curated.DeleteAll(ctx)
	if err != nil {
		return res, fmt.Errorf("wipe prior curation: %w", err)
	}
	if deleted > 0 {
		s.logger.Printf("deleted %d documents from previous run", deleted)
	} else {
		s.logger.Println("no old documents to delete")
	}

	var articles []article.Article
	err = retry.Do(ctx, readAttempts, retry.Exponential(s.readBackoff), func() error {
		var readErr error
		articles, readErr = s.articles.FindAll(ctx)
		if readErr != nil {
			s.logger.Printf("article read failed, will retry: %v", readErr)
		}
		return readErr
	})
	if err != nil {
		return res, fmt.Errorf("fetch articles: %w", err)
	}

	if len(articles) == 0 {
		s.logger.Println("no documents found in articles collection")
		return res, nil
	}

	for _, a := range articles {
		res.Processed++
		if res.Processed%100 == 0 {
			s.logger.Printf("processed %d articles...", res.Processed)
		}

		if a.Date == "" {
			s.logger.Printf("no date found for article %s, skipping", a.ID)
			continue
		}
		if !strings.HasPrefix(a.Date, targetDate) {
			continue
		}
		res.Matched++
		s.logger.Printf("found matching article %d: %s with date %s", res.Matched, a.ID, a.Date)

		if !a.Complete() {
			s.logger.Printf("skipping article %s due to missing required fields", a.ID)
			continue
		}

		cleanedSource := curated.CleanSourceName(a.Source)
		res.BySource[cleanedSource]++
		sequence := res.BySource[cleanedSource]

		summaries, ok := s.summarize(ctx, a)
		if !ok {
			// Sequence stays consumed so display ordering is stable even
			// when an article drops out.
			continue
		}

		item := s.buildItem(a, targetDate, cleanedSource, sequence, summaries)
		if err := s.persist(ctx, item); err != nil {
			s.logger.Printf("failed to save article %s after %d attempts: %v", a.ID, writeAttempts, err)
			continue
		}
		res.Saved++
		s.logger.Printf("saved article %s (%d articles saved)", item.ID, res.Saved)

		if err := s.sleep(ctx, s.articleDelay); err != nil {
			return res, err
		}
	}

	s.logger.Printf("total articles processed: %d", res.Processed)
	s.logger.Printf("articles matching date %s: %d", targetDate, res.Matched)
	s.logger.Printf("articles successfully saved: %d", res.Saved)
	for source, count := range res.BySource {
		s.logger.Printf("%s: %d articles", source, count)
	}

	return res, nil
}

// summarize wraps generation in the bounded retry budget. Exhausting it, or
// getting an empty field back, skips the article rather than failing the run.
func (s *Service) summarize(ctx context.Context, a article.Article) (summarize.Summaries, bool) {
	var summaries summarize.Summaries

	err := retry.Do(ctx, summaryAttempts, retry.Fixed(s.retryDelay), func() error {
		out, genErr := s.summarizer.Generate(ctx, a.Content)
		if genErr != nil {
			s.logger.Printf("summary generation failed for %s, will retry: %v", a.ID, genErr)
			return genErr
		}
		if out.English == "" || out.Chinese == "" {
			return fmt.Errorf("empty summary")
		}
		summaries = out
		return nil
	})
	if err != nil {
		s.logger.Printf("skipping article %s - failed to generate summaries: %v", a.ID, err)
		return summarize.Summaries{}, false
	}

	return summaries, true
}

func (s *Service) buildItem(a article.Article, targetDate, cleanedSource string, sequence int, summaries summarize.Summaries) *curated.Item {
	now := s.now().In(s.location)

	return &curated.Item{
		ID: curated.DocumentID(targetDate, cleanedSource, now, sequence),
		ArticleInfo: curated.ArticleInfo{
			Title:         a.Title,
			ChineseTitle:  a.ChineseTitle,
			Date:          a.Date,
			Content:       a.Content,
			Source:        cleanedSource,
			OriginalSrc:   a.Source,
			OriginalDocID: a.ID,
			URL:           a.URL,
		},
		ProcessingInfo: curated.ProcessingInfo{
			ProcessedAt: now.Format("2006-01-02 15:04:05"),
			Timezone:    "UTC+4",
			TargetDate:  targetDate,
			Status:      "processed",
		},
		Metadata: curated.Metadata{
			WordCount:     len(strings.Fields(a.Content)),
			HasImage:      a.ImageURL != "",
			SourceType:    sourceTypeOrUnknown(a.SourceType),
			ArticleNumber: sequence,
		},
		EnglishSummary: summaries.English,
		ChineseSummary: summaries.Chinese,
	}
}

func (s *Service) persist(ctx context.Context, item *curated.Item) error {
	return retry.Do(ctx, writeAttempts, retry.Fixed(s.retryDelay), func() error {
		if err := s.curated.Save(ctx, item); err != nil {
			s.logger.Printf("save attempt failed for %s, will retry: %v", item.ID, err)
			return err
		}
		return nil
	})
}

func sourceTypeOrUnknown(t string) string {
	if t == "" {
		return "unknown"
	}
	return t
}
