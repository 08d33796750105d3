package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulletinCanStart(t *testing.T) {
	withNews := func(status BulletinStatus) *Bulletin {
		b := &Bulletin{Status: status}
		require.NoError(t, b.SetArticles([]Article{{Title: "t", URL: "https://a.ec/1"}}))
		return b
	}
	withClassified := func(status BulletinStatus) *Bulletin {
		b := withNews(status)
		require.NoError(t, b.SetClassified([]ClassifiedArticle{{Category: "robos"}}))
		return b
	}

	tt := []struct {
		name     string
		bulletin *Bulletin
		stage    BulletinStatus
		wantErr  bool
	}{
		{"scrape from draft", &Bulletin{Status: BulletinDraft}, BulletinScraping, false},
		{"re-scrape after failure", &Bulletin{Status: BulletinFailed}, BulletinScraping, false},
		{"scrape while published", &Bulletin{Status: BulletinPublished}, BulletinScraping, true},
		{"classify without news", &Bulletin{Status: BulletinScraped}, BulletinClassifying, true},
		{"classify after scrape", withNews(BulletinScraped), BulletinClassifying, false},
		{"classify while scraping", withNews(BulletinScraping), BulletinClassifying, true},
		{"summarize without classification", withNews(BulletinScraped), BulletinSummarizing, true},
		{"summarize after classification", withClassified(BulletinClassified), BulletinSummarizing, false},
		{"publish ready", &Bulletin{Status: BulletinReady}, BulletinPublished, false},
		{"publish draft", &Bulletin{Status: BulletinDraft}, BulletinPublished, true},
		{"unknown stage", &Bulletin{Status: BulletinDraft}, BulletinReady, true},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.bulletin.CanStart(tc.stage)
			if tc.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidTransition), "got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBulletinCanGenerateVideo(t *testing.T) {
	assert.Error(t, (&Bulletin{Status: BulletinDraft}).CanGenerateVideo())
	assert.Error(t, (&Bulletin{Status: BulletinReady, VideoStatus: VideoProcessing}).CanGenerateVideo())
	assert.NoError(t, (&Bulletin{Status: BulletinPublished, VideoStatus: VideoFailed}).CanGenerateVideo())
}

func TestBulletinJSONFields(t *testing.T) {
	b := &Bulletin{}

	articles, err := b.Articles()
	require.NoError(t, err)
	assert.Empty(t, articles)

	require.NoError(t, b.SetArticles([]Article{{Title: "Robo en Quito"}, {Title: "Operativo en Guayaquil"}}))
	assert.Equal(t, 2, b.TotalNews)

	articles, err = b.Articles()
	require.NoError(t, err)
	assert.Equal(t, "Operativo en Guayaquil", articles[1].Title)

	require.NoError(t, b.SetSummaries(map[string]string{"robos": "Resumen"}))
	summaries, err := b.SummaryMap()
	require.NoError(t, err)
	assert.Equal(t, "Resumen", summaries["robos"])

	b.AppendError("scrape", errors.New("timeout"))
	b.AppendError("classify", errors.New("bad json"))
	entries := b.Errors()
	require.Len(t, entries, 2)
	assert.Equal(t, "classify", entries[1].Stage)
	assert.Equal(t, "bad json", entries[1].Message)
}

func TestSourceRecordResult(t *testing.T) {
	s := &Source{}
	now := time.Now()

	s.RecordResult(now, errors.New("403"))
	s.RecordResult(now, errors.New("403"))
	assert.Equal(t, SourceStatusFailed, s.LastStatus)
	assert.Equal(t, 2, s.ConsecutiveFailures)
	assert.Equal(t, "403", s.LastError)

	s.RecordResult(now, nil)
	assert.Equal(t, SourceStatusOK, s.LastStatus)
	assert.Zero(t, s.ConsecutiveFailures)
	assert.Empty(t, s.LastError)
	assert.Equal(t, now, *s.LastScrapedAt)
}
