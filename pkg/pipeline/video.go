package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"ottoseguridad_backend/internal/model"
	"ottoseguridad_backend/pkg/events"
	"ottoseguridad_backend/pkg/logger"
	"ottoseguridad_backend/pkg/storage"
	"ottoseguridad_backend/pkg/video"
)

var ErrVideoNotConfigured = errors.New("video rendering is not configured")

// GenerateVideo writes a narration script, synthesizes it, uploads the audio
// and waits for the remote render. Video failures never change the bulletin
// status; they land in video_status and the error log.
func (p *Pipeline) GenerateVideo(ctx context.Context, id uint) error {
	b, err := p.load(id)
	if err != nil {
		return err
	}
	if err := b.CanGenerateVideo(); err != nil {
		return err
	}
	if p.renderer == nil {
		return ErrVideoNotConfigured
	}
	if err := p.setVideo(b, map[string]interface{}{"video_status": model.VideoPending, "video_url": ""}); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, p.opts.VideoTimeout)
	defer cancel()

	categories, err := p.activeCategories()
	if err != nil {
		return p.failVideo(b, err)
	}
	data, err := newBulletinData(b, categories)
	if err != nil {
		return p.failVideo(b, err)
	}
	sections := Sections(data.Sections, nil)

	script, err := p.ai.Script(ctx, b.Date, b.HeadlineSummary, sections)
	if err != nil {
		return p.failVideo(b, fmt.Errorf("script: %w", err))
	}
	audio, err := p.ai.Speak(ctx, script)
	if err != nil {
		return p.failVideo(b, fmt.Errorf("speech: %w", err))
	}
	audioURL, err := p.store.Upload(ctx, storage.Key(".mp3", "bulletins", b.Date, "audio"), bytes.NewReader(audio), int64(len(audio)), "audio/mpeg")
	if err != nil {
		return p.failVideo(b, fmt.Errorf("upload audio: %w", err))
	}
	if err := p.setVideo(b, map[string]interface{}{
		"video_status": model.VideoProcessing,
		"video_script": script,
		"audio_url":    audioURL,
	}); err != nil {
		return err
	}

	scenes := make([]video.Scene, 0, len(sections))
	for _, s := range sections {
		scene := video.Scene{Title: s.Category.Name, Text: s.Summary, Color: s.Category.Color, Count: s.Count}
		for _, section := range data.Sections {
			if section.Slug == s.Category.Slug && len(section.Articles) > 0 {
				scene.ImageURL = section.Articles[0].ImageURL
			}
		}
		scenes = append(scenes, scene)
	}

	jobID, err := p.renderer.Render(ctx, video.RenderInput{
		Date:     b.Date,
		Title:    data.Title,
		Headline: b.HeadlineSummary,
		AudioURL: audioURL,
		Script:   script,
		Scenes:   scenes,
	})
	if err != nil {
		return p.failVideo(b, err)
	}
	logger.Log.Info("video render submitted", "bulletin", b.Date, "job", jobID)

	url, err := p.renderer.Wait(ctx, jobID, p.opts.VideoPollInterval)
	if err != nil {
		return p.failVideo(b, err)
	}
	if err := p.setVideo(b, map[string]interface{}{"video_status": model.VideoCompleted, "video_url": url}); err != nil {
		return err
	}
	logger.Log.Info("video ready", "bulletin", b.Date, "url", url)
	return nil
}

func (p *Pipeline) setVideo(b *model.Bulletin, updates map[string]interface{}) error {
	if err := p.db.Model(b).Updates(updates).Error; err != nil {
		return fmt.Errorf("update video fields: %w", err)
	}
	if status, ok := updates["video_status"].(model.VideoStatus); ok {
		b.VideoStatus = status
	}
	p.announceVideo(b, "")
	return nil
}

func (p *Pipeline) failVideo(b *model.Bulletin, cause error) error {
	b.VideoStatus = model.VideoFailed
	b.AppendError("video", cause)
	if err := p.db.Model(b).Select("video_status", "error_log").Updates(b).Error; err != nil {
		logger.Log.Error("failed to record video failure", "bulletin", b.ID, "err", err)
	}
	logger.Log.Error("video generation failed", "bulletin", b.Date, "err", cause)
	p.announceVideo(b, cause.Error())
	return fmt.Errorf("video: %w", cause)
}

func (p *Pipeline) announceVideo(b *model.Bulletin, errMsg string) {
	if p.cache != nil {
		p.cache.InvalidateBulletin(context.Background(), b.Date)
	}
	if err := p.events.Publish(events.SubjectVideoStatus, events.BulletinEvent{
		BulletinID: b.ID,
		Date:       b.Date,
		Status:     string(b.VideoStatus),
		Error:      errMsg,
		At:         p.now().UTC(),
	}); err != nil {
		logger.Log.Warn("video event not published", "bulletin", b.ID, "err", err)
	}
}
