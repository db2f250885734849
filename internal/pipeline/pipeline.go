package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"signalwatch/internal/alerts"
	"signalwatch/internal/cohort"
	"signalwatch/internal/config"
	"signalwatch/internal/dedup"
	"signalwatch/internal/event"
	"signalwatch/internal/journal"
	"signalwatch/internal/marketcap"
	"signalwatch/internal/metrics"
	"signalwatch/internal/normalizer"
	"signalwatch/internal/scoring"
	"signalwatch/internal/store"
	"signalwatch/internal/tier"
)

// sendTimeout bounds a single alert delivery after shutdown has begun.
const sendTimeout = 10 * time.Second

// ErrBufferFull is returned by Submit when the ingest buffer has no room.
var ErrBufferFull = errors.New("ingest buffer full")

// ErrClosed is returned by Submit after Drain has begun.
var ErrClosed = errors.New("pipeline closed")

// PricingSource is a live pricing lookup, satisfied by marketcap.Client.
type PricingSource interface {
	Lookup(ctx context.Context, contract string) (*marketcap.TokenData, error)
}

// Pipeline wires the full signal path: normalize, heat-list observation,
// cohort management, market-value resolution, tier classification or
// threshold scoring, dedup/rate-limit, then journal and delivery. A single
// consumer goroutine serializes processing; journal writes and sends run on
// tracked goroutines so Drain can wait for them.
type Pipeline struct {
	cfg   *config.Config
	rules *config.Rules
	log   *logrus.Logger

	store      *store.Store
	normalizer *normalizer.Normalizer
	cohorts    *cohort.Manager
	classifier *tier.Classifier
	resolver   *marketcap.Resolver
	engine     *scoring.Engine
	limiter    *dedup.Limiter
	journal    *journal.Journal
	sender     alerts.Sender
	pricing    PricingSource

	in   chan normalizer.Signal
	done chan struct{}

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// New assembles a Pipeline. pricing may be nil when live lookups are
// disabled.
func New(cfg *config.Config, rules *config.Rules, log *logrus.Logger, st *store.Store, jr *journal.Journal, sender alerts.Sender, pricing PricingSource) *Pipeline {
	resolver := marketcap.NewResolver(st, rules)
	return &Pipeline{
		cfg:        cfg,
		rules:      rules,
		log:        log,
		store:      st,
		normalizer: normalizer.New(st, rules, log),
		cohorts:    cohort.NewManager(st, rules, log),
		classifier: tier.New(rules),
		resolver:   resolver,
		engine:     scoring.NewEngine(rules, resolver),
		limiter:    dedup.New(st, rules, log),
		journal:    jr,
		sender:     sender,
		pricing:    pricing,
		in:         make(chan normalizer.Signal, cfg.IngestBuffer),
		done:       make(chan struct{}),
	}
}

// Submit queues a signal for processing without blocking.
func (p *Pipeline) Submit(sig normalizer.Signal) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	select {
	case p.in <- sig:
		return nil
	default:
		return ErrBufferFull
	}
}

// Run consumes the ingest buffer until it is closed by Drain or the context
// is cancelled. It is the only goroutine that mutates pipeline state.
func (p *Pipeline) Run(ctx context.Context) {
	defer close(p.done)

	for {
		select {
		case sig, ok := <-p.in:
			if !ok {
				return
			}
			p.handle(ctx, sig)
		case <-ctx.Done():
			return
		}
	}
}

// Drain closes the ingest buffer and waits up to grace for the consumer and
// any in-flight journal/send goroutines to finish.
func (p *Pipeline) Drain(grace time.Duration) {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.in)
	}
	p.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		<-p.done
		p.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		p.log.Info("Pipeline drained")
	case <-time.After(grace):
		p.log.Warn("Pipeline drain grace period expired with work still in flight")
	}
}

func (p *Pipeline) handle(ctx context.Context, sig normalizer.Signal) {
	start := time.Now()

	alert, err := p.Process(ctx, sig)

	status := "success"
	switch {
	case errors.Is(err, normalizer.ErrDuplicate):
		status = "duplicate"
	case err != nil:
		status = "error"
		p.log.WithError(err).WithFields(logrus.Fields{
			"feed":       sig.Feed,
			"message_id": sig.MessageID,
		}).Error("Signal processing failed")
	}
	metrics.RecordSignalProcessing(time.Since(start), status)

	if alert == nil {
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.deliver(alert)
	}()
}

// Process runs one signal through the full decision path. It returns a
// non-nil alert only when the alert passed dedup and must be journaled (and,
// for emittable severities, sent). Duplicate signals return
// normalizer.ErrDuplicate.
func (p *Pipeline) Process(ctx context.Context, sig normalizer.Signal) (*alerts.Alert, error) {
	ev, err := p.normalizer.Process(ctx, sig)
	if err != nil {
		return nil, err
	}

	if ev.Feed == p.rules.Tiers.HeatListFeed {
		p.classifier.Observe(ev)
		metrics.HeatlistReports.Inc()
	}

	coh, created, err := p.cohorts.Ensure(ctx, ev)
	if err != nil {
		return nil, err
	}
	if coh == nil {
		return nil, nil
	}
	if created {
		metrics.CohortsOpened.Inc()
	}

	events, err := p.store.EventsForToken(ctx, coh.Token)
	if err != nil {
		return nil, fmt.Errorf("load events for %s: %w", coh.Token, err)
	}

	if err := p.ensureEntryValue(ctx, coh, events); err != nil {
		return nil, err
	}

	result, err := p.engine.Score(ctx, coh, events)
	if err != nil {
		return nil, fmt.Errorf("score cohort for %s: %w", coh.Token, err)
	}
	metrics.RecordValueResolution(result.ValueSource)

	alert := p.buildAlert(coh, ev, result)

	var opp *tier.Opportunity
	if coh.EntryValueUSD != nil {
		opp = p.classifier.Evaluate(coh, *coh.EntryValueUSD, events)
	}

	if opp != nil {
		p.applyTier(alert, opp)
	} else {
		switch {
		case result.Score >= p.rules.Thresholds.High:
			alert.Severity = alerts.SeverityHigh
		case result.Score >= p.rules.Thresholds.Medium:
			alert.Severity = alerts.SeverityMedium
		default:
			return nil, nil
		}
	}

	alert.ID = alerts.AlertID(coh.Token, coh.Start, alert.Severity)

	outcome, err := p.limiter.Check(ctx, alert)
	if err != nil {
		return nil, err
	}
	if outcome.Suppressed != "" {
		metrics.RecordSuppression(outcome.Suppressed)
	}
	if !outcome.Record {
		p.log.WithFields(logrus.Fields{
			"token":  alert.Token,
			"reason": outcome.Suppressed,
		}).Debug("Alert suppressed")
		return nil, nil
	}

	metrics.RecordAlertTriggered(string(alert.Severity))
	p.log.WithFields(logrus.Fields{
		"token":    alert.Token,
		"severity": alert.Severity,
		"score":    alert.Score,
		"tier":     alert.Tier,
		"signals":  alert.MatchedSignals,
	}).Info("Alert triggered")

	return alert, nil
}

// ensureEntryValue back-fills the cohort's entry value when the trigger event
// did not carry one: first from the resolver at cohort start, then from a
// live pricing lookup when a contract is known.
func (p *Pipeline) ensureEntryValue(ctx context.Context, coh *cohort.Cohort, events []*event.Event) error {
	if coh.EntryValueUSD != nil {
		return nil
	}

	res, err := p.resolver.Resolve(ctx, coh.Token, coh.Start, events)
	if err != nil {
		return fmt.Errorf("resolve entry value for %s: %w", coh.Token, err)
	}

	var entry *float64
	if res != nil {
		entry = &res.ValueUSD
	} else if p.pricing != nil && coh.Contract != "" {
		entry = p.lookupLive(ctx, coh)
	}

	if entry == nil {
		return nil
	}

	coh.EntryValueUSD = entry
	if err := p.cohorts.Put(ctx, coh); err != nil {
		return err
	}
	return nil
}

// lookupLive fetches a live market value. Lookup failures degrade to an
// unknown entry value rather than failing the signal.
func (p *Pipeline) lookupLive(ctx context.Context, coh *cohort.Cohort) *float64 {
	start := time.Now()
	data, err := p.pricing.Lookup(ctx, coh.Contract)

	switch {
	case err != nil:
		metrics.RecordPricingRequest(time.Since(start), "error")
		p.log.WithError(err).WithField("token", coh.Token).Warn("Live pricing lookup failed")
		return nil
	case data == nil || data.ValueUSD == nil:
		metrics.RecordPricingRequest(time.Since(start), "empty")
		return nil
	}
	metrics.RecordPricingRequest(time.Since(start), "success")

	source := p.rules.Resolver.PrimarySource
	if err := p.store.SetLastValue(ctx, coh.Token, *data.ValueUSD, source, p.rules.Retention.ValueCacheTTL()); err != nil {
		p.log.WithError(err).WithField("token", coh.Token).Warn("Failed to cache live value")
	}
	return data.ValueUSD
}

func (p *Pipeline) buildAlert(coh *cohort.Cohort, ev *event.Event, result scoring.Result) *alerts.Alert {
	return &alerts.Alert{
		Severity:         alerts.SeverityIgnore,
		Token:            coh.Token,
		Contract:         coh.Contract,
		Score:            result.Score,
		CohortStart:      coh.Start,
		CohortMultiplier: coh.BaseMultiplier,
		TimeSinceCohort:  ev.Timestamp.Sub(coh.Start),
		ValueUSD:         result.ValueUSD,
		ValueSource:      result.ValueSource,
		EntryValueUSD:    coh.EntryValueUSD,
		LiquidityUSD:     result.LiquidityUSD,
		Callers:          result.Callers,
		Subs:             result.Subs,
		LastBuySOL:       result.LastBuySOL,
		TopBuySOL:        result.TopBuySOL,
		MatchedSignals:   result.MatchedSignals,
		Environment:      p.cfg.Environment,
		CreatedAt:        time.Now().UTC(),
	}
}

// applyTier overrides the threshold-scoring decision with the tiered one:
// tier 1 is HIGH, tiers 2 and 3 are MEDIUM, and the score becomes tier * 25.
func (p *Pipeline) applyTier(alert *alerts.Alert, opp *tier.Opportunity) {
	alert.Tier = opp.Tier
	alert.Confirmations = opp.Confirmations.Total
	alert.Score = float64(opp.Tier) * 25
	alert.MatchedSignals = opp.Confirmations.Details

	inTopFive := opp.InTopFive
	alert.InTopFive = &inTopFive
	if opp.HotList != tier.HotListUnknown {
		hot := opp.HotList == tier.HotListIn
		alert.HotList = &hot
	}

	if opp.Tier == 1 {
		alert.Severity = alerts.SeverityHigh
	} else {
		alert.Severity = alerts.SeverityMedium
	}
}

// deliver journals a recorded alert and, for emittable severities, sends it.
// Runs on a tracked goroutine with its own context so shutdown can wait.
func (p *Pipeline) deliver(alert *alerts.Alert) {
	start := time.Now()
	err := p.journal.Append(journal.FromAlert(alert))
	metrics.RecordJournalWrite(time.Since(start), err)
	if err != nil {
		p.log.WithError(err).WithField("token", alert.Token).Error("Failed to journal alert")
	}

	if !alert.Severity.Emittable() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	err = p.sender.Send(ctx, alert)
	metrics.RecordAlertSent(err)
	if err != nil {
		p.log.WithError(err).WithFields(logrus.Fields{
			"token":    alert.Token,
			"severity": alert.Severity,
		}).Error("Failed to send alert")
	}
}
