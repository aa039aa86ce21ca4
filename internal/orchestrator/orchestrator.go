// Package orchestrator runs the refresh cycle: locate the user, resolve the
// sensor directory, pick the nearest sensor, read it, compute the AQI and
// announce every step. One cycle is in flight at a time and each carries a
// generation number; results from a superseded generation are dropped.
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/nearair/nearair/internal/announce"
	"github.com/nearair/nearair/internal/aqi"
	"github.com/nearair/nearair/internal/directory"
	"github.com/nearair/nearair/internal/location"
	"github.com/nearair/nearair/internal/sensor"
	"github.com/nearair/nearair/pkg/geo"
)

const (
	// DefaultDwell is how long a result is displayed before the next cycle.
	DefaultDwell = 60 * time.Second

	instrumentationName = "github.com/nearair/nearair/internal/orchestrator"
	announceTimeout     = 5 * time.Second
)

// Cycle outcomes, used as metric attributes.
const (
	OutcomeDisplayed   = "displayed"
	OutcomeUnavailable = "unavailable"
	OutcomeDenied      = "location_denied"
	OutcomeFetchError  = "fetch_error"
	OutcomeNoSensors   = "no_sensors"
	OutcomeSuperseded  = "superseded"
)

var (
	// ErrAlreadyRunning is returned by Run when another Run is active.
	ErrAlreadyRunning = errors.New("orchestrator already running")

	// ErrSuperseded is returned by RunCycle when a reset replaced the cycle.
	ErrSuperseded = errors.New("cycle superseded")
)

// DirectoryCache is the persisted sensor directory.
type DirectoryCache interface {
	Load(ctx context.Context) (*directory.Entry, error)
	Save(ctx context.Context, list []sensor.Summary) error
	Clear(ctx context.Context) error
}

// Converter computes an AQI from a reading.
type Converter interface {
	Convert(r sensor.Reading) (aqi.Result, error)
}

// Config holds the orchestrator collaborators.
type Config struct {
	Locator   location.Locator
	Fetcher   sensor.Fetcher
	Cache     DirectoryCache
	Converter Converter
	Announcer announce.Announcer

	// Dwell defaults to DefaultDwell.
	Dwell time.Duration

	Logger zerolog.Logger
	Now    func() time.Time
	Tracer trace.Tracer
	Meter  metric.Meter
}

// State is a snapshot of the orchestrator.
type State struct {
	Generation   uint64
	Phase        Phase
	Coordinate   *geo.Coordinate
	Sensor       *sensor.Summary
	Result       *aqi.Result
	Announcement announce.Announcement
	UpdatedAt    time.Time
	NextCycleAt  *time.Time
}

// Orchestrator is the refresh state machine.
type Orchestrator struct {
	locator   location.Locator
	fetcher   sensor.Fetcher
	cache     DirectoryCache
	converter Converter
	announcer announce.Announcer
	dwell     time.Duration
	logger    zerolog.Logger
	now       func() time.Time
	tracer    trace.Tracer
	inst      *instruments

	mu          sync.Mutex
	generation  uint64
	cancelCycle context.CancelFunc
	state       State

	// announceMu serializes delivery. It is never taken while mu is held.
	announceMu sync.Mutex

	resetCh chan struct{}
	running atomic.Bool
}

// New creates an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Locator == nil || cfg.Fetcher == nil || cfg.Cache == nil {
		return nil, errors.New("orchestrator requires a locator, a fetcher and a cache")
	}
	if cfg.Converter == nil {
		cfg.Converter = aqi.NewConverter(aqi.Config{})
	}
	if cfg.Announcer == nil {
		cfg.Announcer = announce.NewLog(cfg.Logger)
	}
	if cfg.Dwell <= 0 {
		cfg.Dwell = DefaultDwell
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer(instrumentationName)
	}
	if cfg.Meter == nil {
		cfg.Meter = otel.Meter(instrumentationName)
	}

	inst, err := newInstruments(cfg.Meter)
	if err != nil {
		return nil, err
	}

	return &Orchestrator{
		locator:   cfg.Locator,
		fetcher:   cfg.Fetcher,
		cache:     cfg.Cache,
		converter: cfg.Converter,
		announcer: cfg.Announcer,
		dwell:     cfg.Dwell,
		logger:    cfg.Logger,
		now:       cfg.Now,
		tracer:    cfg.Tracer,
		inst:      inst,
		state:     State{Phase: PhaseIdle},
		resetCh:   make(chan struct{}, 1),
	}, nil
}

// State returns a snapshot of the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Generation returns the current cycle generation.
func (o *Orchestrator) Generation() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.generation
}

// Reset is the user "powerwash" command: the in-flight cycle is abandoned at
// once, then the running loop clears the directory cache and starts over from
// Locating. Repeated resets before the loop reacts coalesce.
func (o *Orchestrator) Reset() {
	o.supersede()
	select {
	case o.resetCh <- struct{}{}:
	default:
	}
}

type cycleDone struct {
	generation uint64
	result     cycleResult
}

// Run drives cycles until ctx is done. After a displayed result it waits
// Dwell and starts a full new cycle; halted phases wait for Reset.
func (o *Orchestrator) Run(ctx context.Context) error {
	if !o.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer o.running.Store(false)

	done := make(chan cycleDone, 1)
	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)
	stopTimer := func() {
		if timer != nil {
			timer.Stop()
		}
		timer, timerC = nil, nil
	}
	start := func() {
		stopTimer()
		gen, cycleCtx := o.begin(ctx)
		go func() {
			res := o.runCycle(cycleCtx, gen)
			select {
			case done <- cycleDone{generation: gen, result: res}:
			case <-ctx.Done():
			}
		}()
	}

	o.logger.Info().Dur("dwell", o.dwell).Msg("orchestrator started")
	start()

	for {
		select {
		case <-ctx.Done():
			stopTimer()
			o.supersede()
			o.logger.Info().Msg("orchestrator stopped")
			return nil

		case <-o.resetCh:
			stopTimer()
			o.supersede()
			if err := o.cache.Clear(ctx); err != nil {
				o.logger.Warn().Err(err).Msg("failed to clear sensor directory cache")
			}
			o.logger.Info().Msg("reset: sensor directory cache cleared")
			start()

		case d := <-done:
			if !d.result.scheduleNext || !o.scheduleNext(d.generation) {
				continue
			}
			timer = time.NewTimer(o.dwell)
			timerC = timer.C

		case <-timerC:
			timer, timerC = nil, nil
			start()
		}
	}
}

// RunCycle runs one cycle synchronously and returns the final state. The
// error is nil when a result (possibly unavailable) was displayed.
func (o *Orchestrator) RunCycle(ctx context.Context) (State, error) {
	gen, cycleCtx := o.begin(ctx)
	res := o.runCycle(cycleCtx, gen)

	o.mu.Lock()
	if gen == o.generation && o.cancelCycle != nil {
		o.cancelCycle()
		o.cancelCycle = nil
	}
	st := o.state
	o.mu.Unlock()

	return st, res.err
}

// begin starts a new generation, cancelling the previous cycle.
func (o *Orchestrator) begin(parent context.Context) (uint64, context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.cancelCycle != nil {
		o.cancelCycle()
	}
	o.generation++
	ctx, cancel := context.WithCancel(parent)
	o.cancelCycle = cancel
	o.state.Generation = o.generation
	o.state.NextCycleAt = nil
	return o.generation, ctx
}

// supersede invalidates the in-flight cycle without starting a new one.
func (o *Orchestrator) supersede() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.cancelCycle != nil {
		o.cancelCycle()
		o.cancelCycle = nil
	}
	o.generation++
	o.state.NextCycleAt = nil
}

func (o *Orchestrator) current(gen uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return gen == o.generation
}

func (o *Orchestrator) scheduleNext(gen uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if gen != o.generation {
		return false
	}
	next := o.now().Add(o.dwell)
	o.state.NextCycleAt = &next
	return true
}

// transition moves generation gen to phase and announces it. It returns false
// when gen has been superseded, before or while waiting to announce.
func (o *Orchestrator) transition(ctx context.Context, gen uint64, phase Phase, msg message, mutate func(*State)) bool {
	o.mu.Lock()
	if gen != o.generation {
		o.mu.Unlock()
		return false
	}

	if mutate != nil {
		mutate(&o.state)
	}
	o.state.Phase = phase
	o.state.UpdatedAt = o.now()
	a := o.announcement(msg)
	o.state.Announcement = a

	o.mu.Unlock()

	o.announceMu.Lock()
	defer o.announceMu.Unlock()

	// A newer generation may have announced while this one waited.
	if !o.current(gen) {
		return false
	}

	o.logger.Debug().
		Uint64("generation", gen).
		Str("phase", string(phase)).
		Msg("phase changed")

	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), announceTimeout)
	defer cancel()
	if err := o.announcer.Announce(actx, a); err != nil {
		o.logger.Warn().Err(err).Str("phase", string(phase)).Msg("announcement delivery failed")
	}
	return true
}

// announcement builds the announcement for the current state. Caller holds mu.
func (o *Orchestrator) announcement(msg message) announce.Announcement {
	a := announce.Announcement{
		Generation:  o.state.Generation,
		Phase:       string(o.state.Phase),
		Tag:         msg.tag,
		Headline:    msg.headline,
		Description: msg.description,
		Status:      msg.status,
		At:          o.state.UpdatedAt,
	}

	switch o.state.Phase {
	case PhaseFetchingReadings, PhaseComputingAQI, PhaseDisplaying:
		if s := o.state.Sensor; s != nil {
			a.SensorID = s.ID
			a.SensorURL = s.MapURL()
			a.DistanceKm = s.Distance
		}
	}
	if o.state.Phase == PhaseDisplaying && o.state.Result != nil && o.state.Result.Index.Available() {
		v := int(o.state.Result.Index)
		a.AQI = &v
	}
	return a
}

// commit runs fn only while gen is current, holding the state lock so a
// reset cannot interleave with it.
func (o *Orchestrator) commit(gen uint64, fn func() error) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if gen != o.generation {
		return false, nil
	}
	return true, fn()
}

type cycleResult struct {
	outcome      string
	scheduleNext bool
	err          error
}

func (o *Orchestrator) runCycle(ctx context.Context, gen uint64) cycleResult {
	ctx, span := o.tracer.Start(ctx, "orchestrator.cycle",
		trace.WithAttributes(attribute.Int64("nearair.generation", int64(gen))), //nolint:gosec // generation fits
	)
	defer span.End()

	start := time.Now()
	res := o.cycle(ctx, gen)

	span.SetAttributes(attribute.String("nearair.outcome", res.outcome))
	if res.err != nil && res.outcome != OutcomeSuperseded {
		span.RecordError(res.err)
		span.SetStatus(codes.Error, res.outcome)
	}
	o.inst.recordCycle(ctx, res.outcome)

	o.logger.Info().
		Uint64("generation", gen).
		Str("outcome", res.outcome).
		Dur("duration", time.Since(start)).
		Msg("cycle finished")
	return res
}

func (o *Orchestrator) cycle(ctx context.Context, gen uint64) cycleResult {
	superseded := cycleResult{outcome: OutcomeSuperseded, err: ErrSuperseded}

	if !o.transition(ctx, gen, PhaseLocating, locatingMessage(), nil) {
		return superseded
	}

	coord, err := o.locate(ctx)
	if err != nil {
		if !o.transition(ctx, gen, PhaseLocationDenied, deniedMessage(err), nil) {
			return superseded
		}
		return cycleResult{outcome: OutcomeDenied, err: err}
	}

	if !o.transition(ctx, gen, PhaseListingSensors, listingMessage(), func(s *State) {
		s.Coordinate = &coord
	}) {
		return superseded
	}

	sensors, err := o.resolveDirectory(ctx, gen)
	if err != nil {
		if !o.transition(ctx, gen, PhaseFetchError, fetchErrorMessage(err), nil) {
			return superseded
		}
		return cycleResult{outcome: OutcomeFetchError, err: err}
	}

	nearest, err := sensor.SelectNearest(coord, sensors)
	if err != nil {
		if !o.transition(ctx, gen, PhaseFetchError, noSensorsMessage(), func(s *State) {
			s.Sensor = nil
		}) {
			return superseded
		}
		return cycleResult{outcome: OutcomeNoSensors, err: err}
	}

	if !o.transition(ctx, gen, PhaseFetchingReadings, fetchingMessage(nearest), func(s *State) {
		s.Sensor = nearest
	}) {
		return superseded
	}

	reading, err := o.fetchReading(ctx, nearest.ID)
	if err != nil {
		if !o.transition(ctx, gen, PhaseFetchError, fetchErrorMessage(err), nil) {
			return superseded
		}
		return cycleResult{outcome: OutcomeFetchError, err: err}
	}

	if !o.transition(ctx, gen, PhaseComputingAQI, computingMessage(), nil) {
		return superseded
	}

	res, err := o.converter.Convert(*reading)
	outcome := OutcomeDisplayed
	if err != nil {
		o.logger.Info().Err(err).Str("sensor_id", nearest.ID).Msg("reading unavailable")
		outcome = OutcomeUnavailable
		res.Index = aqi.Unavailable
		res.Severity = aqi.SeverityUnknown
	}

	if !o.transition(ctx, gen, PhaseDisplaying, displayMessage(res, nearest, reading), func(s *State) {
		s.Result = &res
	}) {
		return superseded
	}
	o.inst.recordResult(ctx, res, nearest.DistanceKm())

	return cycleResult{outcome: outcome, scheduleNext: true}
}

func (o *Orchestrator) locate(ctx context.Context) (geo.Coordinate, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.locate")
	defer span.End()

	coord, err := o.locator.Locate(ctx)
	if err != nil {
		span.RecordError(err)
		if !errors.Is(err, location.ErrLocationDenied) {
			err = errors.Join(location.ErrLocationDenied, err)
		}
		return geo.Coordinate{}, err
	}
	if !coord.Valid() {
		return geo.Coordinate{}, location.ErrLocationDenied
	}
	return coord, nil
}

// resolveDirectory returns the cached directory when valid, otherwise fetches
// and saves it. Empty directories are not saved.
func (o *Orchestrator) resolveDirectory(ctx context.Context, gen uint64) ([]sensor.Summary, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.directory")
	defer span.End()

	entry, err := o.cache.Load(ctx)
	if err == nil {
		span.SetAttributes(attribute.String("nearair.directory.source", "cache"))
		o.inst.recordDirectory(ctx, "cache")
		o.logger.Debug().Int("sensors", len(entry.Data)).Msg("using cached sensor directory")
		return entry.Data, nil
	}
	o.logger.Debug().Err(err).Msg("sensor directory cache not usable, fetching")

	span.SetAttributes(attribute.String("nearair.directory.source", "network"))
	o.inst.recordDirectory(ctx, "network")

	sensors, err := o.fetcher.FetchDirectory(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if len(sensors) > 0 {
		if _, err := o.commit(gen, func() error { return o.cache.Save(ctx, sensors) }); err != nil {
			o.logger.Warn().Err(err).Msg("failed to save sensor directory")
		}
	}
	return sensors, nil
}

func (o *Orchestrator) fetchReading(ctx context.Context, id string) (*sensor.Reading, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.reading",
		trace.WithAttributes(attribute.String("nearair.sensor_id", id)),
	)
	defer span.End()

	reading, err := o.fetcher.FetchReading(ctx, id)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return reading, nil
}
