package db

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names used across the digest pipeline. Articles is owned by the
// ingestion crawlers and read-only here; TodayNews is wiped and repopulated
// once per curation run; the email_* collections accumulate indefinitely.
const (
	Articles    = "articles"
	TodayNews   = "today_news"
	EmailSent   = "email_sent"
	EmailOpens  = "email_opens"
	EmailClicks = "email_clicks"
)

func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10*time.Second))
	if err != nil {
		return nil, err
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}

	return client, nil
}
