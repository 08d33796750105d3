package controller

import (
	"io"
	"net/url"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ottoseguridad_backend/internal/model"
)

func createSend(t *testing.T, e *testEnv) model.EmailSend {
	t.Helper()
	b := model.Bulletin{Date: "2025-03-10", Status: model.BulletinPublished, VideoStatus: model.VideoNone}
	require.NoError(t, e.db.Create(&b).Error)
	sub := model.Subscriber{Email: "lector@correo.ec"}
	require.NoError(t, e.db.Create(&sub).Error)
	send := model.EmailSend{BulletinID: b.ID, SubscriberID: sub.ID, Status: model.EmailSent}
	require.NoError(t, e.db.Create(&send).Error)
	return send
}

func TestTrackOpen(t *testing.T) {
	e := newTestEnv(t)
	send := createSend(t, e)

	for i := 0; i < 2; i++ {
		resp := e.request(t, "GET", "/api/track/open/"+send.TrackingID, nil, "")
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, "image/gif", resp.Header.Get(fiber.HeaderContentType))
		assert.Contains(t, resp.Header.Get(fiber.HeaderCacheControl), "no-store")
		pixel, _ := io.ReadAll(resp.Body)
		assert.Equal(t, transparentGIF, pixel)
	}

	require.NoError(t, e.db.First(&send, send.ID).Error)
	assert.Equal(t, 2, send.OpenCount)
	assert.NotNil(t, send.OpenedAt)

	resp := e.request(t, "GET", "/api/track/open/does-not-exist", nil, "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/gif", resp.Header.Get(fiber.HeaderContentType))
}

func TestTrackClick(t *testing.T) {
	e := newTestEnv(t)
	send := createSend(t, e)
	target := "https://www.primicias.ec/seguridad/operativo-guayaquil?x=1"

	resp := e.request(t, "GET", "/api/track/click/"+send.TrackingID+"?url="+url.QueryEscape(target), nil, "")
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, target, resp.Header.Get(fiber.HeaderLocation))

	require.NoError(t, e.db.First(&send, send.ID).Error)
	assert.Equal(t, 1, send.ClickCount)
	assert.NotNil(t, send.OpenedAt, "a click counts as an open")

	var clicks []model.EmailClick
	require.NoError(t, e.db.Find(&clicks).Error)
	require.Len(t, clicks, 1)
	assert.Equal(t, target, clicks[0].URL)

	t.Run("unknown tracking id still redirects", func(t *testing.T) {
		resp := e.request(t, "GET", "/api/track/click/nope?url="+url.QueryEscape(target), nil, "")
		assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	})

	t.Run("rejects non http targets", func(t *testing.T) {
		for _, bad := range []string{"", "javascript:alert(1)", "/relative/path", "ftp://files.ec/a"} {
			resp := e.request(t, "GET", "/api/track/click/"+send.TrackingID+"?url="+url.QueryEscape(bad), nil, "")
			assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode, bad)
		}
	})
}
