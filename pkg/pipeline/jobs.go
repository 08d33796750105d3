package pipeline

import (
	"context"
	"errors"
	"fmt"

	"ottoseguridad_backend/internal/model"
	"ottoseguridad_backend/pkg/logger"
)

// Step names a background job.
type Step string

const (
	StepScrape    Step = "scrape"
	StepClassify  Step = "classify"
	StepSummarize Step = "summarize"
	StepRun       Step = "run"
	StepVideo     Step = "video"
	StepPublish   Step = "publish"
)

var ErrUnknownStep = errors.New("unknown pipeline step")

func (p *Pipeline) stepFunc(step Step) (func(context.Context, uint) error, error) {
	switch step {
	case StepScrape:
		return p.Scrape, nil
	case StepClassify:
		return p.Classify, nil
	case StepSummarize:
		return p.Summarize, nil
	case StepRun:
		return p.Run, nil
	case StepVideo:
		return p.GenerateVideo, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownStep, step)
}

// precheck rejects a step that would fail its status guard, so callers get
// the error before the job is queued.
func (p *Pipeline) precheck(b *model.Bulletin, step Step) error {
	switch step {
	case StepScrape, StepRun:
		return b.CanStart(model.BulletinScraping)
	case StepClassify:
		return b.CanStart(model.BulletinClassifying)
	case StepSummarize:
		return b.CanStart(model.BulletinSummarizing)
	case StepVideo:
		if p.renderer == nil {
			return ErrVideoNotConfigured
		}
		return b.CanGenerateVideo()
	}
	return fmt.Errorf("%w: %s", ErrUnknownStep, step)
}

// Start runs step for the bulletin in a goroutine bounded by the job timeout.
// Only one job per bulletin runs at a time.
func (p *Pipeline) Start(id uint, step Step) error {
	fn, err := p.stepFunc(step)
	if err != nil {
		return err
	}
	if err := p.acquire(id, step); err != nil {
		return err
	}
	b, err := p.load(id)
	if err == nil {
		err = p.precheck(b, step)
	}
	if err != nil {
		p.release(id)
		return err
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.release(id)

		ctx, cancel := context.WithTimeout(p.base, p.opts.JobTimeout)
		defer cancel()

		log := logger.With("bulletin", id, "step", step)
		log.Info("job started")
		if err := fn(ctx, id); err != nil {
			log.Error("job failed", "err", err)
			return
		}
		log.Info("job finished")
	}()
	return nil
}

// RunNow runs step synchronously while holding the bulletin lock. The cron
// job and CLI use it.
func (p *Pipeline) RunNow(ctx context.Context, id uint, step Step) error {
	fn, err := p.stepFunc(step)
	if err != nil {
		return err
	}
	if err := p.acquire(id, step); err != nil {
		return err
	}
	defer p.release(id)
	return fn(ctx, id)
}

func (p *Pipeline) acquire(id uint, step Step) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if current, busy := p.running[id]; busy {
		return fmt.Errorf("%w (%s)", ErrBusy, current)
	}
	p.running[id] = step
	return nil
}

func (p *Pipeline) release(id uint) {
	p.mu.Lock()
	delete(p.running, id)
	p.mu.Unlock()
}

// Running reports the job in flight for a bulletin, if any.
func (p *Pipeline) Running(id uint) (Step, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	step, ok := p.running[id]
	return step, ok
}

// Shutdown cancels running jobs and waits for them to record their outcome.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	p.cancel()
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until every background job has returned.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

var errInterrupted = errors.New("job interrupted by a restart")

// ResetInterrupted fails bulletins left in a running status by a previous
// process so they can be retried.
func (p *Pipeline) ResetInterrupted() (int, error) {
	var stuck []model.Bulletin
	err := p.db.Where("status IN ? OR video_status IN ?",
		[]model.BulletinStatus{model.BulletinScraping, model.BulletinClassifying, model.BulletinSummarizing},
		[]model.VideoStatus{model.VideoPending, model.VideoProcessing},
	).Find(&stuck).Error
	if err != nil {
		return 0, err
	}
	for i := range stuck {
		b := &stuck[i]
		if b.Status.InProgress() {
			_ = p.fail(b, string(b.Status), errInterrupted)
		}
		if b.VideoStatus == model.VideoPending || b.VideoStatus == model.VideoProcessing {
			_ = p.failVideo(b, errInterrupted)
		}
	}
	return len(stuck), nil
}
