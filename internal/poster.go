package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/go-multierror"
)

// ErrorPolicy decides what a failed publish does to the rest of the run.
type ErrorPolicy string

const (
	// OnErrorAbort ends the run at the first failed publish.
	OnErrorAbort ErrorPolicy = "abort"
	// OnErrorSkip moves the failed file to the failed directory and continues.
	OnErrorSkip ErrorPolicy = "skip"
)

func ParseErrorPolicy(s string) (ErrorPolicy, error) {
	switch ErrorPolicy(s) {
	case OnErrorAbort, OnErrorSkip:
		return ErrorPolicy(s), nil
	case "":
		return OnErrorAbort, nil
	default:
		return "", fmt.Errorf("invalid on_error policy %q (want %q or %q)", s, OnErrorAbort, OnErrorSkip)
	}
}

// RunState is the orchestrator's position in the posting loop
type RunState int

const (
	StateIdle RunState = iota
	StateAuthenticating
	StateSelecting
	StateSkipping
	StatePublishing
	StateArchiving
	StateDone
	StateAborted
)

var stateNames = [...]string{"idle", "authenticating", "selecting", "skipping", "publishing", "archiving", "done", "aborted"}

func (s RunState) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// RunConfig is fixed for the duration of a run.
type RunConfig struct {
	Count                  int
	DryRun                 bool
	Delay                  time.Duration
	OnError                ErrorPolicy
	MaxConsecutiveFailures int
}

func (c RunConfig) Validate() error {
	if c.Count <= 0 {
		return fmt.Errorf("count must be positive, got %d", c.Count)
	}
	if c.Delay < 0 {
		return fmt.Errorf("delay must not be negative, got %s", c.Delay)
	}
	if _, err := ParseErrorPolicy(string(c.OnError)); err != nil {
		return err
	}
	return nil
}

// RunResult summarizes a finished run
type RunResult struct {
	Posted     int
	Skipped    int
	Failed     int
	State      RunState
	StartedAt  time.Time
	FinishedAt time.Time
	Errors     *ErrorStats

	failures *multierror.Error
}

// Err combines every per-file failure recorded during the run.
func (r RunResult) Err() error {
	return r.failures.ErrorOrNil()
}

// MediaPublisher is satisfied by *Publisher.
type MediaPublisher interface {
	Publish(ctx context.Context, session Session, path, caption string) error
}

// PosterDeps are the collaborators a Poster drives. Platform and Publisher
// may be nil for dry runs; Quarantine is only used with OnErrorSkip.
type PosterDeps struct {
	Platform   Platform
	Selector   *Selector
	Publisher  MediaPublisher
	Archiver   *Archiver
	Quarantine *Archiver
	Session    *RunSession
	Logger     *slog.Logger
}

// Poster runs the select → publish → archive loop.
type Poster struct {
	cfg        RunConfig
	platform   Platform
	selector   *Selector
	publisher  MediaPublisher
	archiver   *Archiver
	quarantine *Archiver
	session    *RunSession
	logger     *slog.Logger
	sleep      func(context.Context, time.Duration) error

	state RunState
}

func NewPoster(cfg RunConfig, deps PosterDeps) *Poster {
	if cfg.OnError == "" {
		cfg.OnError = OnErrorAbort
	}
	logger := deps.Logger
	if logger == nil {
		logger = discardLogger()
	}
	return &Poster{
		cfg:        cfg,
		platform:   deps.Platform,
		selector:   deps.Selector,
		publisher:  deps.Publisher,
		archiver:   deps.Archiver,
		quarantine: deps.Quarantine,
		session:    deps.Session,
		logger:     logger,
		sleep:      sleepContext,
	}
}

// BuildCaption renders the fixed caption template for a candidate.
func BuildCaption(c MediaCandidate) string {
	return fmt.Sprintf("~\nFILENAME: %s\nDATE CREATED: %s", c.Filename, c.Timestamp.Format("01/02/2006"))
}

// Run posts up to Count files, oldest first. It returns a non-nil error when
// the run was aborted: authentication failed, a publish failed under
// OnErrorAbort, an archive move failed, or ctx was cancelled.
func (p *Poster) Run(ctx context.Context) (res RunResult, err error) {
	res = RunResult{StartedAt: time.Now(), Errors: NewErrorStats()}
	p.state = StateIdle

	if err := p.cfg.Validate(); err != nil {
		p.state = StateAborted
		res.State = p.state
		return res, err
	}

	p.logger.Info("starting poster run",
		"count", p.cfg.Count,
		"dry_run", p.cfg.DryRun,
		"delay", p.cfg.Delay,
		"on_error", p.cfg.OnError)
	if !p.cfg.DryRun {
		p.record(p.session.LogRunStart(p.cfg))
	}

	defer func() {
		res.State = p.state
		res.FinishedAt = time.Now()
		p.logger.Info("run complete",
			"state", res.State,
			"posted", res.Posted,
			"skipped", res.Skipped,
			"failed", res.Failed,
			"duration", res.FinishedAt.Sub(res.StartedAt).Round(time.Millisecond))
		if res.Errors.Total > 0 {
			p.logger.Warn(res.Errors.GenerateReport())
		}
		if !p.cfg.DryRun {
			p.record(p.session.LogRunEnd(res))
		}
	}()

	var session Session
	if p.cfg.DryRun {
		p.logger.Info("[dry-run] skipping authentication")
	} else {
		p.transition(StateAuthenticating)
		session, err = p.platform.Login(ctx)
		if err != nil {
			if !errors.Is(err, ErrAuth) {
				err = fmt.Errorf("%w: %v", ErrAuth, err)
			}
			procErr := NewProcessError("", err)
			res.Errors.Add(procErr)
			p.logger.Error("authentication failed", "error", err)
			p.transition(StateAborted)
			return res, procErr
		}
		p.logger.Info("authenticated")
	}

	// Dry runs move nothing, so files already previewed are excluded here
	// to keep each simulated iteration on a distinct file.
	simulated := make(map[string]bool)
	exclude := func(path string) bool { return simulated[path] }

	for res.Posted < p.cfg.Count {
		if err := ctx.Err(); err != nil {
			p.logger.Warn("run interrupted", "error", err)
			p.transition(StateAborted)
			return res, err
		}

		p.transition(StateSelecting)
		c, ok := p.selector.SelectOldest(exclude)
		if !ok {
			p.logger.Info("no more media to post")
			break
		}

		if c.Kind == KindUnsupported {
			p.transition(StateSkipping)
			p.logger.Info("skipping unsupported file", "file", c.Filename)
			res.Skipped++
			if !p.cfg.DryRun {
				p.record(p.session.LogSkipped(c))
			}
			if err := p.archive(c, simulated); err != nil {
				return res, p.abort(&res, c, err)
			}
			continue
		}

		p.transition(StatePublishing)
		caption := BuildCaption(c)
		p.logger.Info("prepared caption", "file", c.Filename, "caption", caption)

		if p.cfg.DryRun {
			p.logger.Info("[dry-run] would post", "file", c.Path, "kind", c.Kind)
		} else {
			p.logger.Info("publishing", "file", c.Path, "kind", c.Kind)
			if err := p.publisher.Publish(ctx, session, c.Path, caption); err != nil {
				procErr := NewProcessError(c.Path, err)
				res.Failed++
				res.Errors.Add(procErr)
				res.failures = multierror.Append(res.failures, procErr)
				p.logger.Error("publish failed", "file", c.Filename, "stage", procErr.Stage, "error", procErr.Err)
				p.record(p.session.LogFailed(c, procErr))

				if p.cfg.OnError == OnErrorAbort || ctx.Err() != nil {
					p.transition(StateAborted)
					return res, procErr
				}
				if err := p.quarantineFile(c); err != nil {
					return res, p.abort(&res, c, err)
				}
				if stop, reason := res.Errors.ShouldAbort(p.cfg.MaxConsecutiveFailures); stop {
					p.logger.Error("aborting run", "reason", reason)
					p.transition(StateAborted)
					return res, fmt.Errorf("%s: %w", reason, res.Err())
				}
				continue
			}
			res.Errors.ResetConsecutive()
			p.logger.Info("posted", "file", c.Path)
			p.record(p.session.LogPublished(c))
		}

		if err := p.archive(c, simulated); err != nil {
			return res, p.abort(&res, c, err)
		}
		res.Posted++

		if p.cfg.Delay > 0 && res.Posted < p.cfg.Count {
			p.logger.Info("waiting before next post", "delay", p.cfg.Delay)
			if err := p.sleep(ctx, p.cfg.Delay); err != nil {
				p.logger.Warn("run interrupted during delay", "error", err)
				p.transition(StateAborted)
				return res, err
			}
		}
	}

	p.transition(StateDone)
	return res, nil
}

func (p *Poster) archive(c MediaCandidate, simulated map[string]bool) error {
	p.transition(StateArchiving)
	if p.cfg.DryRun {
		p.logger.Info("[dry-run] would move file", "file", c.Filename, "dest", p.archiver.DestDir)
		simulated[c.Path] = true
		return nil
	}

	dest, err := p.archiver.Archive(c.Filename)
	if err != nil {
		return err
	}
	p.record(p.session.LogArchived(c.Path, dest))
	return nil
}

func (p *Poster) quarantineFile(c MediaCandidate) error {
	if p.quarantine == nil {
		return NewProcessError(c.Path, fmt.Errorf("%w: no failed directory configured", ErrArchival))
	}
	dest, err := p.quarantine.Archive(c.Filename)
	if err != nil {
		return err
	}
	p.logger.Info("moved failed file aside", "file", c.Filename, "dest", dest)
	p.record(p.session.LogArchived(c.Path, dest))
	return nil
}

// abort records a failed archival move, which always ends the run: leaving
// a processed file in the source directory would have it posted again.
func (p *Poster) abort(res *RunResult, c MediaCandidate, err error) error {
	procErr := NewProcessError(c.Path, err)
	res.Errors.Add(procErr)
	res.failures = multierror.Append(res.failures, procErr)
	p.record(p.session.LogFailed(c, procErr))
	p.logger.Error("archival failed, aborting run", "file", c.Filename, "error", procErr.Err)
	p.transition(StateAborted)
	return procErr
}

func (p *Poster) transition(to RunState) {
	p.logger.Debug("state transition", "from", p.state, "to", to)
	p.state = to
}

func (p *Poster) record(err error) {
	if err != nil {
		p.logger.Warn("failed to write manifest", "error", err)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
