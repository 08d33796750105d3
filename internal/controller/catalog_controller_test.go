package controller

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ottoseguridad_backend/internal/model"
	"ottoseguridad_backend/pkg/pipeline"
)

func TestCategories(t *testing.T) {
	e := newTestEnv(t)
	token, _ := e.login(t, "editor@otto.ec", model.RoleEditor)
	createCategories(t, e)

	resp := e.request(t, "POST", "/api/categories", fiber.Map{"name": "Crimen Organizado", "color": "#112233", "active": false}, token)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	var created model.Category
	decode(t, resp, &created)
	assert.Equal(t, "crimen-organizado", created.Slug)
	assert.False(t, created.Active)

	var stored model.Category
	require.NoError(t, e.db.First(&stored, created.ID).Error)
	assert.False(t, stored.Active, "inactive flag survives the insert")

	resp = e.request(t, "POST", "/api/categories", fiber.Map{"name": "Mal color", "color": "rojo"}, token)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	var list struct {
		Categories []model.Category `json:"categories"`
	}
	decode(t, e.request(t, "GET", "/api/categories?active=true", nil, token), &list)
	assert.Len(t, list.Categories, 2)

	var fallback model.Category
	require.NoError(t, e.db.Where("slug = ?", model.FallbackCategory).First(&fallback).Error)
	resp = e.request(t, "DELETE", fmt.Sprintf("/api/categories/%d", fallback.ID), nil, token)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	resp = e.request(t, "DELETE", fmt.Sprintf("/api/categories/%d", created.ID), nil, token)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestSources(t *testing.T) {
	e := newTestEnv(t)
	token, _ := e.login(t, "editor@otto.ec", model.RoleEditor)

	resp := e.request(t, "POST", "/api/sources", fiber.Map{"name": "El Universo", "url": "https://www.eluniverso.com/noticias/seguridad/"}, token)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	var created model.Source
	decode(t, resp, &created)
	assert.Equal(t, 15, created.MaxArticles)
	assert.True(t, created.Active)

	resp = e.request(t, "POST", "/api/sources", fiber.Map{"name": "Duplicado", "url": "https://www.eluniverso.com/noticias/seguridad/"}, token)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	resp = e.request(t, "POST", "/api/sources", fiber.Map{"name": "Extra", "url": "https://www.extra.ec", "max_articles": 500}, token)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp = e.request(t, "PUT", fmt.Sprintf("/api/sources/%d", created.ID), fiber.Map{
		"name": "El Universo", "url": "https://www.eluniverso.com/noticias/seguridad/", "max_articles": 5, "active": false,
	}, token)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var stored model.Source
	require.NoError(t, e.db.First(&stored, created.ID).Error)
	assert.Equal(t, 5, stored.MaxArticles)
	assert.False(t, stored.Active)

	resp = e.request(t, "DELETE", fmt.Sprintf("/api/sources/%d", created.ID), nil, token)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp = e.request(t, "DELETE", fmt.Sprintf("/api/sources/%d", created.ID), nil, token)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestCatalogRecreateAfterDelete(t *testing.T) {
	e := newTestEnv(t)
	token, _ := e.login(t, "editor@otto.ec", model.RoleEditor)

	category := fiber.Map{"name": "Extorsión"}
	resp := e.request(t, "POST", "/api/categories", category, token)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	var cat model.Category
	decode(t, resp, &cat)

	resp = e.request(t, "POST", "/api/categories", category, token)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode, "same slug")

	resp = e.request(t, "DELETE", fmt.Sprintf("/api/categories/%d", cat.ID), nil, token)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp = e.request(t, "POST", "/api/categories", category, token)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

	source := fiber.Map{"name": "Primicias", "url": "https://www.primicias.ec"}
	resp = e.request(t, "POST", "/api/sources", source, token)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	var src model.Source
	decode(t, resp, &src)

	resp = e.request(t, "DELETE", fmt.Sprintf("/api/sources/%d", src.ID), nil, token)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp = e.request(t, "POST", "/api/sources", source, token)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var count int64
	e.db.Unscoped().Model(&model.Source{}).Where("url = ?", "https://www.primicias.ec").Count(&count)
	assert.EqualValues(t, 1, count)

	resp = e.request(t, "POST", "/api/sources", fiber.Map{"name": "Extra", "url": "https://www.extra.ec"}, token)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	var extra model.Source
	decode(t, resp, &extra)
	resp = e.request(t, "PUT", fmt.Sprintf("/api/sources/%d", extra.ID), fiber.Map{"name": "Extra", "url": "https://www.primicias.ec"}, token)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
}

type failingScraper struct{}

func (failingScraper) Scrape(context.Context, model.Source) ([]model.Article, error) {
	return nil, errors.New("403 Forbidden")
}

func TestSourcePreview(t *testing.T) {
	e := newTestEnv(t)
	token, _ := e.login(t, "editor@otto.ec", model.RoleEditor)
	src := model.Source{Name: "Primicias", URL: "https://www.primicias.ec", Active: true, MaxArticles: 10}
	require.NoError(t, e.db.Create(&src).Error)
	path := fmt.Sprintf("/api/sources/%d/test", src.ID)

	open := &blockingScraper{release: make(chan struct{})}
	close(open.release)
	pipeline.Default = pipeline.New(pipeline.Deps{DB: e.db, Scraper: open}, pipeline.Options{})

	resp := e.request(t, "POST", path, nil, token)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var body struct {
		Count int `json:"count"`
	}
	decode(t, resp, &body)
	assert.Equal(t, 1, body.Count)

	pipeline.Default = pipeline.New(pipeline.Deps{DB: e.db, Scraper: failingScraper{}}, pipeline.Options{})
	resp = e.request(t, "POST", path, nil, token)
	assert.Equal(t, fiber.StatusBadGateway, resp.StatusCode)

	require.NoError(t, e.db.First(&src, src.ID).Error)
	assert.Equal(t, model.SourceStatusFailed, src.LastStatus)
	assert.Equal(t, 1, src.ConsecutiveFailures)
}
