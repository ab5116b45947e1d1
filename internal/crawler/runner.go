package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// RunConfig lists the work of one run.
type RunConfig struct {
	// RunID tags log lines and published notifications.
	RunID  string
	Topics []string
	Sites  []Descriptor
	// SiteParallelism bounds how many sites are searched at once for a
	// topic. Values below 1 mean sequential.
	SiteParallelism int
	// EscapeTopics query-escapes each topic before it is appended to a
	// search template.
	EscapeTopics bool
}

// Validate checks the run inputs, including every descriptor.
func (c RunConfig) Validate() error {
	if len(c.Topics) == 0 {
		return errors.New("at least one topic is required")
	}
	if len(c.Sites) == 0 {
		return errors.New("at least one site is required")
	}
	for _, site := range c.Sites {
		if err := site.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Summary reports what a run produced.
type Summary struct {
	RunID       string
	Pairs       int
	FailedPairs int
	Records     int
	Duration    time.Duration
}

// PairResult reports one finished (topic, site) search.
type PairResult struct {
	Topic   string
	Site    string
	Records int
	Err     error
}

// Runner drives topics × sites through a Searcher and hands the merged
// records to the configured sinks.
type Runner struct {
	cfg       RunConfig
	searcher  *Searcher
	sinks     []RecordSink
	optional  []RecordSink
	publisher Publisher
	logger    *zap.Logger
	onPair    func(PairResult)
}

// NewRunner constructs a Runner. publisher may be nil.
func NewRunner(
	cfg RunConfig,
	searcher *Searcher,
	sinks []RecordSink,
	publisher Publisher,
	logger *zap.Logger,
) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SiteParallelism < 1 {
		cfg.SiteParallelism = 1
	}
	return &Runner{
		cfg:       cfg,
		searcher:  searcher,
		sinks:     sinks,
		publisher: publisher,
		logger:    logger,
	}
}

// AddOptionalSinks registers sinks whose failures are logged but never
// returned from Run.
func (r *Runner) AddOptionalSinks(sinks ...RecordSink) {
	r.optional = append(r.optional, sinks...)
}

// OnPair registers fn to be called after every (topic, site) search. fn may
// be called from several goroutines at once.
func (r *Runner) OnPair(fn func(PairResult)) {
	r.onPair = fn
}

// Run searches every (topic, site) pair, then appends all records to every
// sink. Per-pair failures are logged and counted; the returned error only
// carries sink failures. Records gathered before ctx is canceled are still
// written.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	summary := Summary{RunID: r.cfg.RunID}
	logger := r.logger.With(zap.String("run_id", summary.RunID))

	var records []Content
	for _, topic := range r.cfg.Topics {
		if ctx.Err() != nil {
			break
		}
		logger.Info("searching topic", zap.String("topic", topic))
		results, failed := r.searchTopic(ctx, logger, topic)
		summary.Pairs += len(results)
		summary.FailedPairs += failed
		for _, batch := range results {
			records = append(records, batch...)
		}
	}
	summary.Records = len(records)

	// Sinks get the records even when the run itself was interrupted.
	writeCtx := context.WithoutCancel(ctx)
	r.publish(writeCtx, logger, summary.RunID, records)
	err := r.flush(writeCtx, logger, records)

	summary.Duration = time.Since(start)
	logger.Info("run complete",
		zap.Int("pairs", summary.Pairs),
		zap.Int("failed_pairs", summary.FailedPairs),
		zap.Int("records", summary.Records),
		zap.Duration("duration", summary.Duration),
	)
	return summary, err
}

// searchTopic runs every site for one topic. Results are indexed by site so
// the merge order is independent of completion order.
func (r *Runner) searchTopic(ctx context.Context, logger *zap.Logger, topic string) ([][]Content, int) {
	query := topic
	if r.cfg.EscapeTopics {
		query = url.QueryEscape(topic)
	}

	results := make([][]Content, len(r.cfg.Sites))
	failures := make([]bool, len(r.cfg.Sites))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.SiteParallelism)
	for i, site := range r.cfg.Sites {
		g.Go(func() error {
			records, err := r.searcher.SearchQuery(gctx, topic, query, site)
			if r.onPair != nil {
				r.onPair(PairResult{Topic: topic, Site: site.Name, Records: len(records), Err: err})
			}
			if err != nil {
				failures[i] = true
				logger.Error("search failed",
					zap.String("topic", topic),
					zap.String("site", site.Name),
					zap.String("url", site.SearchURL(query)),
					zap.String("error_kind", ErrorKind(err)),
					zap.Error(err),
				)
				return nil
			}
			results[i] = records
			return nil
		})
	}
	// Branches never return errors; a failed pair only marks its slot.
	_ = g.Wait()

	failed := 0
	for _, f := range failures {
		if f {
			failed++
		}
	}
	return results, failed
}

func (r *Runner) publish(ctx context.Context, logger *zap.Logger, runID string, records []Content) {
	if r.publisher == nil {
		return
	}
	for _, rec := range records {
		payload := map[string]any{
			"run_id":     runID,
			"topic":      rec.Topic,
			"site":       rec.Site,
			"title":      rec.Title,
			"url":        rec.URL,
			"fetched_at": rec.FetchedAt.Format(time.RFC3339),
		}
		if _, err := r.publisher.Publish(ctx, payload); err != nil {
			logger.Warn("publish record notification failed", zap.String("url", rec.URL), zap.Error(err))
		}
	}
}

func (r *Runner) flush(ctx context.Context, logger *zap.Logger, records []Content) error {
	var errs []error
	for _, sink := range r.sinks {
		if err := sink.Append(ctx, records); err != nil {
			logger.Error("sink append failed",
				zap.String("sink", sink.Name()),
				zap.String("error_kind", ErrorKind(err)),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("%s sink: %w", sink.Name(), err))
			continue
		}
		logger.Info("records written", zap.String("sink", sink.Name()), zap.Int("records", len(records)))
	}
	for _, sink := range r.optional {
		if err := sink.Append(ctx, records); err != nil {
			logger.Warn("optional sink append failed",
				zap.String("sink", sink.Name()),
				zap.String("error_kind", ErrorKind(err)),
				zap.Error(err),
			)
			continue
		}
		logger.Info("records written", zap.String("sink", sink.Name()), zap.Int("records", len(records)))
	}
	return errors.Join(errs...)
}
