package controller

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ottoseguridad_backend/internal/model"
	"ottoseguridad_backend/pkg/newsletter"
	"ottoseguridad_backend/pkg/pipeline"
)

type fakeSender struct {
	mu         sync.Mutex
	dispatched []uint
	tests      []string
	release    chan struct{}
}

func (f *fakeSender) Dispatch(ctx context.Context, id uint) (newsletter.Result, error) {
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return newsletter.Result{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dispatched = append(f.dispatched, id)
	return newsletter.Result{Total: 1, Sent: 1}, nil
}

func (f *fakeSender) SendTest(ctx context.Context, id uint, to string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tests = append(f.tests, to)
	return nil
}

func (f *fakeSender) Dispatched() []uint {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint(nil), f.dispatched...)
}

type blockingScraper struct {
	release chan struct{}
}

func (s *blockingScraper) Scrape(ctx context.Context, src model.Source) ([]model.Article, error) {
	select {
	case <-s.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return []model.Article{{Title: "Robo en Quito", URL: src.URL + "/robo", Content: "Detalle del robo."}}, nil
}

func createCategories(t *testing.T, e *testEnv) {
	t.Helper()
	require.NoError(t, e.db.Create(&model.Category{Name: "Robos", Slug: "robos", Color: "#d64933", Active: true, SortOrder: 1}).Error)
	require.NoError(t, e.db.Create(&model.Category{Name: "Otros", Slug: "otros", Active: true, SortOrder: 9}).Error)
}

func createBulletin(t *testing.T, e *testEnv, date string, status model.BulletinStatus) model.Bulletin {
	t.Helper()
	b := model.Bulletin{
		Date:            date,
		Status:          status,
		VideoStatus:     model.VideoNone,
		HeadlineSummary: "Jornada marcada por operativos en Guayaquil.",
	}
	article := model.Article{Title: "Robo en Quito", URL: "https://www.primicias.ec/robo", SourceName: "Primicias", Content: "Detalle"}
	require.NoError(t, b.SetArticles([]model.Article{article}))
	require.NoError(t, b.SetClassified([]model.ClassifiedArticle{{Article: article, Category: "robos", Relevance: 8}}))
	require.NoError(t, b.SetSummaries(map[string]string{"robos": "Se reportaron robos en la capital."}))
	require.NoError(t, e.db.Create(&b).Error)
	return b
}

func TestCreateBulletin(t *testing.T) {
	e := newTestEnv(t)
	token, user := e.login(t, "editor@otto.ec", model.RoleEditor)

	resp := e.request(t, "POST", "/api/bulletins", nil, token)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	var created model.Bulletin
	decode(t, resp, &created)
	assert.Equal(t, time.Now().UTC().Format(model.DateLayout), created.Date)
	assert.Equal(t, model.BulletinDraft, created.Status)
	require.NotNil(t, created.CreatedByID)
	assert.Equal(t, user.ID, *created.CreatedByID)

	resp = e.request(t, "POST", "/api/bulletins", nil, token)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	resp = e.request(t, "POST", "/api/bulletins", fiber.Map{"date": "2025-03-10", "title": "Edición especial"}, token)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	resp = e.request(t, "POST", "/api/bulletins", fiber.Map{"date": "10/03/2025"}, token)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	var list struct {
		Data  []model.Bulletin `json:"data"`
		Total int64            `json:"total"`
	}
	decode(t, e.request(t, "GET", "/api/bulletins?status=draft", nil, token), &list)
	assert.EqualValues(t, 2, list.Total)
	assert.Len(t, list.Data, 2)
}

func TestGetAndUpdateBulletin(t *testing.T) {
	e := newTestEnv(t)
	token, _ := e.login(t, "editor@otto.ec", model.RoleEditor)
	b := createBulletin(t, e, "2025-03-10", model.BulletinReady)

	resp := e.request(t, "PUT", fmt.Sprintf("/api/bulletins/%d", b.ID), fiber.Map{
		"title":     "Boletín corregido",
		"summaries": map[string]string{"robos": "Resumen editado."},
	}, token)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var stored model.Bulletin
	require.NoError(t, e.db.First(&stored, b.ID).Error)
	assert.Equal(t, "Boletín corregido", stored.Title)
	assert.Equal(t, b.HeadlineSummary, stored.HeadlineSummary)
	summaries, err := stored.SummaryMap()
	require.NoError(t, err)
	assert.Equal(t, "Resumen editado.", summaries["robos"])

	var got struct {
		Bulletin model.Bulletin `json:"bulletin"`
		Running  bool           `json:"running"`
	}
	decode(t, e.request(t, "GET", fmt.Sprintf("/api/bulletins/%d", b.ID), nil, token), &got)
	assert.Equal(t, "Boletín corregido", got.Bulletin.Title)
	assert.False(t, got.Running)

	assert.Equal(t, fiber.StatusNotFound, e.request(t, "GET", "/api/bulletins/999", nil, token).StatusCode)
	assert.Equal(t, fiber.StatusBadRequest, e.request(t, "GET", "/api/bulletins/abc", nil, token).StatusCode)
}

func TestStartStepGuards(t *testing.T) {
	e := newTestEnv(t)
	token, _ := e.login(t, "editor@otto.ec", model.RoleEditor)
	draft := model.Bulletin{Date: "2025-03-10", Status: model.BulletinDraft, VideoStatus: model.VideoNone}
	require.NoError(t, e.db.Create(&draft).Error)

	resp := e.request(t, "POST", fmt.Sprintf("/api/bulletins/%d/classify", draft.ID), nil, token)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	resp = e.request(t, "POST", fmt.Sprintf("/api/bulletins/%d/video", draft.ID), nil, token)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

	resp = e.request(t, "POST", "/api/bulletins/999/scrape", nil, token)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	_, running := pipeline.Default.Running(draft.ID)
	assert.False(t, running, "rejected steps release the bulletin")
}

func TestStartStepRejectsConcurrentJobs(t *testing.T) {
	e := newTestEnv(t)
	token, _ := e.login(t, "editor@otto.ec", model.RoleEditor)

	scr := &blockingScraper{release: make(chan struct{})}
	release := sync.OnceFunc(func() { close(scr.release) })
	t.Cleanup(release)
	pipeline.Default = pipeline.New(pipeline.Deps{DB: e.db, Scraper: scr}, pipeline.Options{})

	require.NoError(t, e.db.Create(&model.Source{Name: "Primicias", URL: "https://www.primicias.ec", Active: true, MaxArticles: 10}).Error)
	b := model.Bulletin{Date: "2025-03-10", Status: model.BulletinDraft, VideoStatus: model.VideoNone}
	require.NoError(t, e.db.Create(&b).Error)

	resp := e.request(t, "POST", fmt.Sprintf("/api/bulletins/%d/scrape", b.ID), nil, token)
	require.Equal(t, fiber.StatusAccepted, resp.StatusCode)

	resp = e.request(t, "POST", fmt.Sprintf("/api/bulletins/%d/run", b.ID), nil, token)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	resp = e.request(t, "PUT", fmt.Sprintf("/api/bulletins/%d", b.ID), fiber.Map{"title": "x"}, token)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	resp = e.request(t, "DELETE", fmt.Sprintf("/api/bulletins/%d", b.ID), nil, token)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	var status struct {
		Running bool   `json:"running"`
		Step    string `json:"step"`
	}
	decode(t, e.request(t, "GET", fmt.Sprintf("/api/bulletins/%d/status", b.ID), nil, token), &status)
	assert.True(t, status.Running)
	assert.Equal(t, string(pipeline.StepScrape), status.Step)

	release()
	pipeline.Default.Wait()

	var stored model.Bulletin
	require.NoError(t, e.db.First(&stored, b.ID).Error)
	assert.Equal(t, model.BulletinScraped, stored.Status)
	assert.Equal(t, 1, stored.TotalNews)
}

func TestPublishBulletin(t *testing.T) {
	e := newTestEnv(t)
	token, _ := e.login(t, "editor@otto.ec", model.RoleEditor)
	createCategories(t, e)

	draft := model.Bulletin{Date: "2025-03-09", Status: model.BulletinDraft, VideoStatus: model.VideoNone}
	require.NoError(t, e.db.Create(&draft).Error)
	resp := e.request(t, "POST", fmt.Sprintf("/api/bulletins/%d/publish", draft.ID), nil, token)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	t.Run("without email", func(t *testing.T) {
		b := createBulletin(t, e, "2025-03-10", model.BulletinReady)
		resp := e.request(t, "POST", fmt.Sprintf("/api/bulletins/%d/publish", b.ID), fiber.Map{"send_email": true}, token)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)

		var body struct {
			Bulletin    model.Bulletin `json:"bulletin"`
			SendStarted bool           `json:"send_started"`
		}
		decode(t, resp, &body)
		assert.Equal(t, model.BulletinPublished, body.Bulletin.Status)
		assert.NotNil(t, body.Bulletin.PublishedAt)
		assert.False(t, body.SendStarted, "no sender configured")

		resp = e.request(t, "POST", fmt.Sprintf("/api/bulletins/%d/publish", b.ID), nil, token)
		assert.Equal(t, fiber.StatusConflict, resp.StatusCode, "already published")
	})

	t.Run("with email", func(t *testing.T) {
		sender := &fakeSender{}
		InitBulletinController(sender, time.UTC, time.Minute)
		b := createBulletin(t, e, "2025-03-11", model.BulletinReady)

		resp := e.request(t, "POST", fmt.Sprintf("/api/bulletins/%d/publish", b.ID), fiber.Map{"send_email": true}, token)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
		var body struct {
			SendStarted bool `json:"send_started"`
		}
		decode(t, resp, &body)
		assert.True(t, body.SendStarted)

		WaitBackground()
		assert.Equal(t, []uint{b.ID}, sender.Dispatched())
	})
}

func TestSendBulletin(t *testing.T) {
	e := newTestEnv(t)
	token, _ := e.login(t, "editor@otto.ec", model.RoleEditor)

	ready := createBulletin(t, e, "2025-03-10", model.BulletinReady)
	resp := e.request(t, "POST", fmt.Sprintf("/api/bulletins/%d/send", ready.ID), nil, token)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	published := createBulletin(t, e, "2025-03-11", model.BulletinPublished)
	resp = e.request(t, "POST", fmt.Sprintf("/api/bulletins/%d/send", published.ID), nil, token)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

	sender := &fakeSender{release: make(chan struct{})}
	release := sync.OnceFunc(func() { close(sender.release) })
	t.Cleanup(release)
	InitBulletinController(sender, time.UTC, time.Minute)

	resp = e.request(t, "POST", fmt.Sprintf("/api/bulletins/%d/send", published.ID), nil, token)
	require.Equal(t, fiber.StatusAccepted, resp.StatusCode)

	resp = e.request(t, "POST", fmt.Sprintf("/api/bulletins/%d/send", published.ID), nil, token)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	var emails struct {
		Sending bool `json:"sending"`
	}
	decode(t, e.request(t, "GET", fmt.Sprintf("/api/bulletins/%d/emails", published.ID), nil, token), &emails)
	assert.True(t, emails.Sending)

	release()
	WaitBackground()
	assert.Equal(t, []uint{published.ID}, sender.Dispatched())
	assert.False(t, isSending(published.ID))
}

func TestSendTestBulletin(t *testing.T) {
	e := newTestEnv(t)
	token, _ := e.login(t, "editor@otto.ec", model.RoleEditor)
	b := createBulletin(t, e, "2025-03-10", model.BulletinReady)
	path := fmt.Sprintf("/api/bulletins/%d/send-test", b.ID)

	resp := e.request(t, "POST", path, fiber.Map{"email": "qa@otto.ec"}, token)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

	sender := &fakeSender{}
	InitBulletinController(sender, time.UTC, time.Minute)

	resp = e.request(t, "POST", path, fiber.Map{"email": "nope"}, token)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp = e.request(t, "POST", path, fiber.Map{"email": "qa@otto.ec"}, token)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"qa@otto.ec"}, sender.tests)
}

func TestBulletinEmailsAndDelete(t *testing.T) {
	e := newTestEnv(t)
	token, _ := e.login(t, "editor@otto.ec", model.RoleEditor)
	b := createBulletin(t, e, "2025-03-10", model.BulletinPublished)

	now := time.Now()
	for i, email := range []string{"ana@correo.ec", "luis@correo.ec"} {
		sub := model.Subscriber{Email: email}
		require.NoError(t, e.db.Create(&sub).Error)
		send := model.EmailSend{BulletinID: b.ID, SubscriberID: sub.ID, Status: model.EmailSent, SentAt: &now}
		if i == 0 {
			send.OpenedAt = &now
			send.OpenCount = 1
		}
		require.NoError(t, e.db.Create(&send).Error)
		if i == 0 {
			require.NoError(t, e.db.Create(&model.EmailClick{EmailSendID: send.ID, URL: "https://a.ec"}).Error)
		}
	}

	var body struct {
		Stats newsletter.SendStats `json:"stats"`
		Sends struct {
			Data  []model.EmailSend `json:"data"`
			Total int64             `json:"total"`
		} `json:"sends"`
	}
	decode(t, e.request(t, "GET", fmt.Sprintf("/api/bulletins/%d/emails", b.ID), nil, token), &body)
	assert.EqualValues(t, 2, body.Stats.Sent)
	assert.EqualValues(t, 1, body.Stats.Opened)
	assert.EqualValues(t, 2, body.Sends.Total)
	assert.Equal(t, "ana@correo.ec", body.Sends.Data[0].Subscriber.Email)

	resp := e.request(t, "DELETE", fmt.Sprintf("/api/bulletins/%d", b.ID), nil, token)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var count int64
	e.db.Model(&model.EmailSend{}).Count(&count)
	assert.Zero(t, count)
	e.db.Model(&model.EmailClick{}).Count(&count)
	assert.Zero(t, count)
	e.db.Unscoped().Model(&model.Bulletin{}).Count(&count)
	assert.Zero(t, count)
}
