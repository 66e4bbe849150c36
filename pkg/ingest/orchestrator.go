package ingest

import (
	"context"
	"time"

	"github.com/alim08/partner_events/pkg/cache"
	"github.com/alim08/partner_events/pkg/feed"
	"github.com/alim08/partner_events/pkg/logger"
	"github.com/alim08/partner_events/pkg/metrics"
	"github.com/alim08/partner_events/pkg/models"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Stage is a step of a single ingestion run.
type Stage string

const (
	StageIdle      Stage = "idle"
	StageFetching  Stage = "fetching"
	StageParsing   Stage = "parsing"
	StageFiltering Stage = "filtering"
	StageStoring   Stage = "storing"
	StageDone      Stage = "done"
)

// Fetcher retrieves the raw feed document. Its own client timeout bounds
// every fetch.
type Fetcher interface {
	Fetch(ctx context.Context) ([]byte, error)
	URL() string
}

// ParseFunc turns a raw document into events.
type ParseFunc func(data []byte) ([]models.PartnerEvent, error)

// Report summarizes one run. Stage is StageDone once Run returns; FailedAt
// is set when the run stopped early.
type Report struct {
	Window    models.Window `json:"window"`
	Stage     Stage         `json:"stage"`
	Parsed    int           `json:"parsed"`
	Stored    int           `json:"stored"`
	Discarded int           `json:"discarded"`
	FailedAt  Stage         `json:"failed_at,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Orchestrator runs fetch → parse → filter → upsert. It keeps no state
// between runs beyond the handles it was built with. Concurrent runs share a
// single in-flight fetch and parse of the feed, but each run is cancelled only
// by its own context.
type Orchestrator struct {
	fetcher    Fetcher
	parse      ParseFunc
	cache      cache.EventCache
	runTimeout time.Duration

	flight singleflight.Group
	wg     conc.WaitGroup
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithParser replaces feed.Parse.
func WithParser(p ParseFunc) Option {
	return func(o *Orchestrator) { o.parse = p }
}

// WithRunTimeout bounds each detached run started by Trigger.
func WithRunTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.runTimeout = d }
}

// New wires an orchestrator around one fetcher and one cache instance.
func New(fetcher Fetcher, c cache.EventCache, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		fetcher:    fetcher,
		parse:      feed.Parse,
		cache:      c,
		runTimeout: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Trigger starts a detached run for the window and returns immediately.
// Panics inside the run are recovered and logged.
func (o *Orchestrator) Trigger(w models.Window) {
	metrics.IngestInFlight.Inc()
	o.wg.Go(func() {
		defer metrics.IngestInFlight.Dec()
		recovered := panics.Try(func() {
			ctx, cancel := context.WithTimeout(context.Background(), o.runTimeout)
			defer cancel()
			o.Run(ctx, w)
		})
		if recovered != nil {
			metrics.IngestRuns.WithLabelValues("panic").Inc()
			logger.Log.Error("ingestion run panicked",
				zap.Stringer("window", w),
				zap.Error(recovered.AsError()))
		}
	})
}

// Close blocks until every run started by Trigger has finished.
func (o *Orchestrator) Close() {
	o.wg.Wait()
}

// Run performs one synchronous ingestion for the window. A fetch or parse
// failure is logged and returned and leaves the cache untouched. Surviving
// events are upserted one at a time.
func (o *Orchestrator) Run(ctx context.Context, w models.Window) (rep Report, err error) {
	start := time.Now()
	rep = Report{Window: w, Stage: StageIdle}

	defer func() {
		rep.advance(StageDone)
		rep.Duration = time.Since(start)
		metrics.IngestLatency.Observe(rep.Duration.Seconds())
		outcome := "success"
		if rep.FailedAt != "" {
			outcome = "failed_" + string(rep.FailedAt)
		}
		metrics.IngestRuns.WithLabelValues(outcome).Inc()
	}()

	if err := w.Validate(); err != nil {
		rep.FailedAt = StageIdle
		logger.Log.Error("rejecting ingestion window", zap.Stringer("window", w), zap.Error(err))
		return rep, err
	}

	rep.advance(StageFetching)
	events, failedAt, err := o.load(ctx)
	if err != nil {
		rep.FailedAt = failedAt
		logger.Log.Error("ingestion aborted",
			zap.Stringer("window", w),
			zap.String("stage", string(failedAt)),
			zap.Error(err))
		return rep, err
	}
	rep.Parsed = len(events)

	rep.advance(StageFiltering)
	selected := filterWindow(events, w)
	rep.Discarded = len(events) - len(selected)
	metrics.EventsDiscarded.Add(float64(rep.Discarded))

	rep.advance(StageStoring)
	for _, ev := range selected {
		if err := o.cache.Upsert(ctx, ev); err != nil {
			rep.FailedAt = StageStoring
			logger.Log.Error("cache upsert failed",
				zap.String("base_event_id", ev.BaseEventID),
				zap.String("event_id", ev.ID),
				zap.Int("stored", rep.Stored),
				zap.Error(err))
			return rep, err
		}
		rep.Stored++
		metrics.EventsStored.Inc()
	}

	logger.Log.Info("new events saved in storage",
		zap.Stringer("window", w),
		zap.Int("parsed", rep.Parsed),
		zap.Int("stored", rep.Stored),
		zap.Int("discarded", rep.Discarded))
	return rep, nil
}

func (r *Report) advance(next Stage) {
	logger.Log.Debug("ingestion stage",
		zap.Stringer("window", r.Window),
		zap.String("from", string(r.Stage)),
		zap.String("to", string(next)))
	r.Stage = next
}

// feedResult is shared between runs joined on the same singleflight call.
type feedResult struct {
	events   []models.PartnerEvent
	failedAt Stage
}

// load fetches and parses the feed, joining any call for the same feed
// already in flight. The shared fetch is detached from every caller's
// cancellation and bounded by the fetcher's timeout; each caller stops
// waiting when its own ctx is done. The returned slice is shared and must not
// be modified.
func (o *Orchestrator) load(ctx context.Context) ([]models.PartnerEvent, Stage, error) {
	fetchCtx := context.WithoutCancel(ctx)
	ch := o.flight.DoChan(o.fetcher.URL(), func() (interface{}, error) {
		res := feedResult{failedAt: StageFetching}
		var err error
		// DoChan re-panics on a goroutine nobody can recover
		recovered := panics.Try(func() {
			var data []byte
			if data, err = o.fetcher.Fetch(fetchCtx); err != nil {
				return
			}
			res.failedAt = StageParsing
			if res.events, err = o.parse(data); err != nil {
				return
			}
			res.failedAt = ""
		})
		if recovered != nil {
			return feedResult{failedAt: res.failedAt}, recovered.AsError()
		}
		return res, err
	})

	select {
	case <-ctx.Done():
		return nil, StageFetching, ctx.Err()
	case res := <-ch:
		fr := res.Val.(feedResult)
		return fr.events, fr.failedAt, res.Err
	}
}

// filterWindow returns a new slice holding the events fully inside w.
func filterWindow(events []models.PartnerEvent, w models.Window) []models.PartnerEvent {
	out := make([]models.PartnerEvent, 0, len(events))
	for _, ev := range events {
		if w.Contains(ev.Start, ev.End) {
			out = append(out, ev)
		}
	}
	return out
}
