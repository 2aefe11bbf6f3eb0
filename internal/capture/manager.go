// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package capture drives a session from plan to verdict: it checks the
// device, supervises the encoder, aligns the footage against the
// reference and scores the result. One session runs at a time; the
// finished record stays visible until the next run replaces it.
package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/refcap/internal/align"
	"github.com/ManuGH/refcap/internal/config"
	"github.com/ManuGH/refcap/internal/device"
	"github.com/ManuGH/refcap/internal/history"
	"github.com/ManuGH/refcap/internal/log"
	"github.com/ManuGH/refcap/internal/metrics"
	"github.com/ManuGH/refcap/internal/model"
	"github.com/ManuGH/refcap/internal/pipeline/bus"
	"github.com/ManuGH/refcap/internal/pipeline/exec/ffmpeg"
	"github.com/ManuGH/refcap/internal/pipeline/fsm"
	"github.com/ManuGH/refcap/internal/telemetry"
	"github.com/ManuGH/refcap/internal/vmaf"
)

// Event drives the session state machine.
type Event string

const (
	EventStart       Event = "START"
	EventLaunched    Event = "LAUNCHED"
	EventEncoderDone Event = "ENCODER_DONE"
	EventProcessed   Event = "PROCESSED"
	EventFail        Event = "FAIL"
)

// ErrNoActiveSession is returned by Cancel when nothing is running.
var ErrNoActiveSession = errors.New("capture: no active session")

const (
	// watchdogFactor bounds the encoder wall clock at a multiple of the
	// planned duration before a hung process is force-stopped.
	watchdogFactor = 2
	// publishTimeout bounds every bus send so a stalled subscriber can
	// never stall the pipeline.
	publishTimeout = 250 * time.Millisecond
	// persistTimeout bounds history writes the same way.
	persistTimeout = 5 * time.Second
)

// Progress bands per stage. Encoder progress maps into
// [0,captureBandEnd), the alignment scan into [captureBandEnd,
// scanBandEnd]; 100 is emitted exactly once, on terminal success.
const (
	captureBandEnd = 70
	scanBandEnd    = 90
	alignedPct     = 95
	scoredPct      = 99
)

func transitions() []fsm.Transition[model.SessionState, Event] {
	return []fsm.Transition[model.SessionState, Event]{
		{From: model.SessionIdle, Event: EventStart, To: model.SessionInitializing},
		{From: model.SessionInitializing, Event: EventLaunched, To: model.SessionCapturing},
		{From: model.SessionCapturing, Event: EventEncoderDone, To: model.SessionProcessing},
		{From: model.SessionProcessing, Event: EventProcessed, To: model.SessionCompleted},
		{From: model.SessionInitializing, Event: EventFail, To: model.SessionError},
		{From: model.SessionCapturing, Event: EventFail, To: model.SessionError},
		{From: model.SessionProcessing, Event: EventFail, To: model.SessionError},
	}
}

// Session is one capture attempt from launch to terminal state.
type Session struct {
	ID         string
	Device     string
	OutputPath string
	Reference  model.VideoInfo
	Plan       model.CapturePlan

	machine *fsm.Machine[model.SessionState, Event]
	cancel  context.CancelFunc
	done    chan struct{}

	mu        sync.Mutex
	runner    *ffmpeg.Runner
	rec       model.SessionRecord
	lastPct   int
	cancelled bool
}

func newSession(id, deviceID, outputPath string, ref model.VideoInfo, plan model.CapturePlan, startedAt time.Time) (*Session, error) {
	machine, err := fsm.New(model.SessionIdle, transitions())
	if err != nil {
		return nil, fmt.Errorf("capture: session machine: %w", err)
	}
	p := plan
	return &Session{
		ID:         id,
		Device:     deviceID,
		OutputPath: outputPath,
		Reference:  ref,
		Plan:       plan,
		machine:    machine,
		done:       make(chan struct{}),
		rec: model.SessionRecord{
			SessionID:     id,
			Device:        deviceID,
			ReferencePath: ref.Path,
			CapturePath:   outputPath,
			State:         model.SessionIdle,
			Reason:        model.RNone,
			StartedAtMs:   startedAt.UnixMilli(),
			UpdatedAtMs:   startedAt.UnixMilli(),
			Plan:          &p,
		},
	}, nil
}

// State returns the current machine state.
func (s *Session) State() model.SessionState { return s.machine.State() }

// Record returns a copy of the session record. Nested pointers are
// written once and never mutated afterwards, so sharing them is safe.
func (s *Session) Record() model.SessionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec
}

// Done closes when the session worker has finished.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) markCancelled() {
	s.mu.Lock()
	s.cancelled = true
	s.mu.Unlock()
}

func (s *Session) isCancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

func (s *Session) setRunner(r *ffmpeg.Runner) {
	s.mu.Lock()
	s.runner = r
	s.mu.Unlock()
}

func (s *Session) currentRunner() *ffmpeg.Runner {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runner
}

// Manager owns the single active session and the collaborators every
// run needs. The stage functions are swappable so the lifecycle can be
// exercised without capture hardware.
type Manager struct {
	encoder         config.EncoderConfig
	capture         config.CaptureConfig
	strict          bool
	recoveryEnabled bool
	reportDir       string

	bus   bus.Bus
	store *history.Store

	newRunner func() *ffmpeg.Runner
	probeFn   func(ctx context.Context) device.Result
	recoverFn func(ctx context.Context) device.Result
	alignFn   func(ctx context.Context, referencePath, capturePath string, onScanProgress func(pct int)) (*model.AlignmentResult, error)
	scoreFn   func(ctx context.Context, distorted, reference string) (*model.Scores, error)
	killFn    func(ctx context.Context, processName string) error
	now       func() time.Time

	mu        sync.Mutex
	session   *Session
	reference *model.VideoInfo
}

// NewManager wires the capture pipeline from resolved configuration.
// store may be nil when history persistence is disabled.
func NewManager(cfg *config.Config, b bus.Bus, store *history.Store) *Manager {
	prober := device.NewProber(cfg.Encoder.Bin, cfg.Capture.Device, cfg.Capture.FormatCode, cfg.Probe.Timeout)
	service := ""
	if cfg.Recovery.RestartService {
		service = device.DefaultService
	}
	recovery := device.NewRecovery(prober, cfg.Recovery.SettleDelay, service)
	aligner := align.NewAligner(cfg.Encoder, cfg.Bookend)

	m := &Manager{
		encoder:         cfg.Encoder,
		capture:         cfg.Capture,
		strict:          cfg.Probe.Strict,
		recoveryEnabled: cfg.Recovery.Enabled,
		reportDir:       cfg.History.ReportDir,
		bus:             b,
		store:           store,
		newRunner: func() *ffmpeg.Runner {
			return ffmpeg.NewRunner(cfg.Encoder.Bin, "capture")
		},
		probeFn: func(ctx context.Context) device.Result {
			return prober.ProbeWithRetry(ctx, cfg.Probe.Attempts, time.Second)
		},
		recoverFn: recovery.Run,
		alignFn:   aligner.Run,
		killFn:    device.KillStaleEncoders,
		now:       time.Now,
	}
	if cfg.VMAF.Enabled {
		analyzer := vmaf.NewAnalyzer(cfg.Encoder, cfg.VMAF)
		m.scoreFn = analyzer.Run
	}
	return m
}

// SetReference probes the given file and installs it as the reference
// for subsequent captures. Allowed at any time; a session already
// running keeps the reference it started with.
func (m *Manager) SetReference(ctx context.Context, path string) (*model.VideoInfo, error) {
	info, err := ffmpeg.ProbeFile(ctx, m.encoder.FFprobeBin, path)
	if err != nil {
		return nil, err
	}
	if info.Duration <= 0 {
		return nil, fmt.Errorf("%w: reference %s has no duration", model.ErrMissingReference, path)
	}

	m.mu.Lock()
	m.reference = info
	m.mu.Unlock()

	l := log.WithComponentFromContext(ctx, "capture")
	l.Info().
		Str(log.FieldReference, path).
		Float64(log.FieldDuration, info.Duration).
		Float64(log.FieldFPS, info.FPS).
		Msg("reference loaded")
	return info, nil
}

// Reference returns the currently loaded reference, or nil.
func (m *Manager) Reference() *model.VideoInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reference
}

// Start begins a capture session against deviceID (empty selects the
// configured device). It returns once the session reached
// INITIALIZING; the pipeline continues on a worker that outlives the
// request context. Starting while a session is active is rejected.
func (m *Manager) Start(ctx context.Context, deviceID string) (model.SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s := m.session; s != nil && !s.State().IsTerminal() {
		metrics.SessionsRejectedTotal.Inc()
		return model.SessionRecord{}, fmt.Errorf("%w: session %s is %s", model.ErrConcurrentCapture, s.ID, s.State())
	}
	if m.reference == nil {
		return model.SessionRecord{}, fmt.Errorf("%w: no reference loaded", model.ErrMissingReference)
	}
	ref := *m.reference

	plan, err := PlanCapture(ref.Duration, m.capture)
	if err != nil {
		return model.SessionRecord{}, err
	}
	if deviceID == "" {
		deviceID = m.capture.Device
	}
	if err := os.MkdirAll(m.capture.OutputDir, 0o755); err != nil {
		return model.SessionRecord{}, fmt.Errorf("capture: create output dir: %w", err)
	}
	refBase := strings.TrimSuffix(filepath.Base(ref.Path), filepath.Ext(ref.Path))
	outputPath := filepath.Join(m.capture.OutputDir, refBase+"_capture.mp4")

	s, err := newSession(uuid.New().String(), deviceID, outputPath, ref, plan, m.now())
	if err != nil {
		return model.SessionRecord{}, err
	}

	// The worker runs on its own context: the session must survive the
	// HTTP request that started it. Cancel and Shutdown tear it down.
	wctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	wctx = log.ContextWithSessionID(wctx, s.ID)
	logger := log.WithComponentFromContext(wctx, "capture")
	wctx = logger.WithContext(wctx)

	if err := m.transition(wctx, s, EventStart, model.RNone, "", ""); err != nil {
		cancel()
		return model.SessionRecord{}, err
	}
	m.session = s
	metrics.SessionsStartedTotal.Inc()

	logger.Info().
		Str(log.FieldDevice, deviceID).
		Str(log.FieldReference, ref.Path).
		Int("planned_s", plan.PlannedDuration).
		Int("loops", plan.Loops).
		Msg("capture session started")

	go m.run(wctx, s)
	return s.Record(), nil
}

// Cancel stops the active session. It returns once the encoder is
// confirmed dead and the worker has reached its terminal state, or
// when ctx gives up waiting.
func (m *Manager) Cancel(ctx context.Context) error {
	m.mu.Lock()
	s := m.session
	m.mu.Unlock()
	if s == nil || s.State().IsTerminal() {
		return ErrNoActiveSession
	}

	logger := log.WithComponentFromContext(ctx, "capture")
	logger.Info().
		Str(log.FieldSessionID, s.ID).
		Msg("cancelling capture session")

	s.markCancelled()
	if r := s.currentRunner(); r != nil {
		if err := r.Stop(ctx, model.ExitCancelled); err != nil {
			logger.Warn().Err(err).Str(log.FieldSessionID, s.ID).Msg("encoder stop during cancel failed")
		}
	}
	s.cancel()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the record of the most recent session, or nil when
// none has run since startup.
func (m *Manager) Snapshot() *model.SessionRecord {
	m.mu.Lock()
	s := m.session
	m.mu.Unlock()
	if s == nil {
		return nil
	}
	rec := s.Record()
	return &rec
}

// Shutdown cancels any active session and waits for its worker,
// bounded by ctx.
func (m *Manager) Shutdown(ctx context.Context) error {
	err := m.Cancel(ctx)
	if errors.Is(err, ErrNoActiveSession) {
		return nil
	}
	return err
}

// run drives a session from INITIALIZING to a terminal state. It owns
// every transition after START.
func (m *Manager) run(ctx context.Context, s *Session) {
	defer close(s.done)
	defer s.cancel()

	ctx, span := telemetry.Tracer("refcap.capture").Start(ctx, "capture.session",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(telemetry.CaptureAttributes(
			s.Device, m.capture.FormatCode, s.Reference.FPS, s.Plan.PlannedDuration, s.Plan.Loops,
		)...),
	)
	defer func() {
		rec := s.Record()
		span.SetAttributes(telemetry.SessionAttributes(rec.SessionID, string(rec.State), string(rec.Reason))...)
		if rec.State == model.SessionError {
			span.SetStatus(codes.Error, string(rec.Reason))
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}()

	start := m.now()
	if err := m.launch(ctx, s); err != nil {
		m.fail(ctx, s, err)
		return
	}

	status, err := m.superviseEncoder(ctx, s)
	metrics.ObserveCaptureDuration(m.now().Sub(start))
	if err != nil {
		m.fail(ctx, s, err)
		return
	}
	if s.isCancelled() || ctx.Err() != nil {
		m.fail(ctx, s, context.Canceled)
		return
	}
	if err := m.transition(ctx, s, EventEncoderDone, model.RNone, "", ""); err != nil {
		m.fail(ctx, s, err)
		return
	}

	if err := m.process(ctx, s); err != nil {
		m.fail(ctx, s, err)
		return
	}
	m.finish(ctx, s, status)
}

// launch checks the device and starts the encoder. The probe verdict
// is advisory unless strict probing is configured: these cards fail
// functional probes while capturing fine, so an unverified device only
// blocks the run when the operator asked for that.
func (m *Manager) launch(ctx context.Context, s *Session) error {
	logger := log.FromContext(ctx)

	res := m.probeFn(ctx)
	if !res.OK() && m.recoveryEnabled {
		logger.Warn().
			Str(log.FieldDevice, s.Device).
			Str(log.FieldReason, res.Reason).
			Msg("device probe failed, attempting recovery")
		res = m.recoverFn(ctx)
	}
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(telemetry.ProbeAttributes(s.Device, string(res.State))...)
	if !res.OK() {
		if m.strict {
			return &model.DeviceUnavailableError{Device: s.Device, Reason: res.Reason}
		}
		logger.Warn().
			Str(log.FieldDevice, s.Device).
			Str("state", string(res.State)).
			Str(log.FieldReason, res.Reason).
			Msg("device unverified, proceeding anyway")
	}

	args, err := ffmpeg.BuildCaptureArgs(ffmpeg.CaptureSpec{
		Device:          s.Device,
		FormatCode:      m.capture.FormatCode,
		FPS:             s.Reference.FPS,
		Preset:          m.encoder.Preset,
		CRF:             m.encoder.CRF,
		CaptureAudio:    m.encoder.CaptureAudio,
		AudioBitrate:    m.encoder.AudioBitrate,
		DurationSeconds: s.Plan.PlannedDuration,
		OutputPath:      s.OutputPath,
	})
	if err != nil {
		return err
	}

	runner := m.newRunner()
	span.AddEvent("starting encoder")
	if err := runner.Start(ctx, args); err != nil {
		return err
	}
	s.setRunner(runner)

	return m.transition(ctx, s, EventLaunched, model.RNone, "", "")
}

// superviseEncoder relays encoder diagnostics and progress until the
// process exits. A watchdog at watchdogFactor times the planned
// duration force-stops a hung encoder; the run then proceeds into
// processing with whatever footage landed on disk.
func (m *Manager) superviseEncoder(ctx context.Context, s *Session) (model.ExitStatus, error) {
	logger := log.FromContext(ctx)
	runner := s.currentRunner()
	tracker := ffmpeg.NewProgressTracker(float64(s.Plan.PlannedDuration))

	watchdog := time.NewTimer(time.Duration(watchdogFactor*s.Plan.PlannedDuration) * time.Second)
	defer watchdog.Stop()

	lines := runner.Lines()
	wd := watchdog.C
	done := ctx.Done()
	for lines != nil {
		select {
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			m.publish(ctx, bus.TopicEncoderLine, EncoderLineEvent{SessionID: s.ID, Line: line})
			if p, ok := ffmpeg.ParseProgressLine(line); ok {
				if pct, changed := tracker.Observe(p); changed {
					m.publishProgress(ctx, s, pct*captureBandEnd/100)
				}
			}
		case <-wd:
			wd = nil
			metrics.WatchdogFiredTotal.Inc()
			logger.Error().
				Int("planned_s", s.Plan.PlannedDuration).
				Int64(log.FieldFrame, tracker.LastFrame()).
				Msg("watchdog fired, stopping encoder")
			if err := runner.Stop(ctx, model.ExitTimeout); err != nil {
				logger.Warn().Err(err).Msg("watchdog stop failed")
			}
		case <-done:
			done = nil
			// Cancel() already stops the runner; this covers shutdown,
			// where only the context dies.
			if err := runner.Stop(context.Background(), model.ExitCancelled); err != nil {
				logger.Warn().Err(err).Msg("encoder stop on cancellation failed")
			}
		}
	}

	// Lines closed, so the process has exited and Wait returns promptly.
	return runner.Wait(context.Background())
}

// process aligns the captured file against the reference, then scores
// it. Scoring failures degrade to a warning: the aligned capture is
// already the deliverable and a VMAF hiccup should not void it.
func (m *Manager) process(ctx context.Context, s *Session) error {
	logger := log.FromContext(ctx)

	result, err := m.alignFn(ctx, s.Reference.Path, s.OutputPath, func(pct int) {
		m.publishProgress(ctx, s, captureBandEnd+pct*(scanBandEnd-captureBandEnd)/100)
	})
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.rec.Result = result
	s.mu.Unlock()
	m.publishProgress(ctx, s, alignedPct)

	if m.scoreFn == nil {
		return nil
	}
	scores, err := m.scoreFn(ctx, result.AlignedCapturedPath, result.AlignedReferencePath)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		logger.Warn().Err(err).Msg("quality scoring failed, keeping aligned capture")
		s.mu.Lock()
		s.rec.Message = "scores unavailable: " + err.Error()
		s.mu.Unlock()
		return nil
	}
	s.mu.Lock()
	s.rec.Scores = scores
	s.mu.Unlock()
	m.publishProgress(ctx, s, scoredPct)
	return nil
}

// finish completes a successful session. A watchdog-stopped run still
// completes, flagged as a soft timeout, because its footage survived
// alignment.
func (m *Manager) finish(ctx context.Context, s *Session, status model.ExitStatus) {
	logger := log.FromContext(ctx)

	reason := model.RCompleted
	msg := ""
	if status.Reason == model.ExitTimeout {
		reason = model.RTimeoutSoft
		msg = "encoder stopped by watchdog, capture completed from partial footage"
	}

	s.mu.Lock()
	s.rec.Percent = 100
	s.lastPct = 100
	s.mu.Unlock()

	if err := m.transition(ctx, s, EventProcessed, reason, "", msg); err != nil {
		m.fail(ctx, s, err)
		return
	}
	metrics.CaptureProgress.Set(100)
	metrics.IncSessionFinished(string(reason))
	m.publish(ctx, bus.TopicProgress, ProgressEvent{SessionID: s.ID, Percent: 100, At: m.now()})

	rec := s.Record()
	if m.reportDir != "" {
		if path, err := history.WriteReport(ctx, m.reportDir, &rec); err != nil {
			logger.Warn().Err(err).Msg("report write failed")
		} else {
			logger.Info().Str(log.FieldPath, path).Msg("run report written")
		}
	}

	ev := logger.Info().
		Str(log.FieldReason, string(reason)).
		Str(log.FieldCapturePath, s.OutputPath)
	if rec.Scores != nil {
		ev = ev.Float64("vmaf", rec.Scores.VMAF)
	}
	ev.Msg("capture session completed")
}

// fail drives the session to ERROR and cleans up whatever the encoder
// left behind. Cancellation is not a defect: it maps to its own reason
// and drops the failure class.
func (m *Manager) fail(ctx context.Context, s *Session, cause error) {
	logger := log.FromContext(ctx)

	reason := model.ReasonOf(cause)
	class := model.ClassOf(cause)
	msg := cause.Error()
	if s.isCancelled() || errors.Is(cause, context.Canceled) {
		reason = model.RCancelled
		class = ""
		msg = "capture cancelled"
	} else {
		span := trace.SpanFromContext(ctx)
		span.RecordError(cause)
		span.SetAttributes(telemetry.ErrorAttributes(cause, string(class))...)
	}

	if r := s.currentRunner(); r != nil {
		if err := r.Stop(context.Background(), model.ExitCancelled); err != nil {
			logger.Warn().Err(err).Msg("encoder stop during failure cleanup failed")
		}
	}
	if err := m.killFn(context.Background(), m.processName()); err != nil {
		logger.Debug().Err(err).Msg("stale encoder sweep failed")
	}

	if err := m.transition(ctx, s, EventFail, reason, class, msg); err != nil {
		logger.Error().Err(err).Msg("error transition failed")
	}
	metrics.IncSessionFinished(string(reason))

	logger.Error().
		Err(cause).
		Str(log.FieldReason, string(reason)).
		Str("class", string(class)).
		Msg("capture session failed")
}

// transition fires ev on the session machine, mirrors the new state
// into the record, persists it and announces it on the bus.
func (m *Manager) transition(ctx context.Context, s *Session, ev Event, reason model.ReasonCode, class model.FailureClass, msg string) error {
	old := s.machine.State()
	next, err := s.machine.Fire(ev)
	if err != nil {
		return fmt.Errorf("capture: transition %s from %s: %w", ev, old, err)
	}

	now := m.now()
	s.mu.Lock()
	s.rec.State = next
	s.rec.UpdatedAtMs = now.UnixMilli()
	if reason != "" && reason != model.RNone {
		s.rec.Reason = reason
	}
	if msg != "" {
		s.rec.Message = msg
	}
	if next.IsTerminal() {
		s.rec.EndedAtMs = now.UnixMilli()
	}
	rec := s.rec
	s.mu.Unlock()

	log.FromContext(ctx).Info().
		Str(log.FieldOldState, string(old)).
		Str(log.FieldNewState, string(next)).
		Msg("session state changed")

	m.persist(ctx, &rec)
	m.publish(ctx, bus.TopicSessionState, StateEvent{
		SessionID: s.ID,
		OldState:  old,
		NewState:  next,
		Reason:    reason,
		Class:     class,
		Message:   msg,
		At:        now,
	})
	return nil
}

// publishProgress raises the session progress to pct. Values are
// monotonic per session and clamped below 100; only the terminal
// success path emits 100.
func (m *Manager) publishProgress(ctx context.Context, s *Session, pct int) {
	if pct > scoredPct {
		pct = scoredPct
	}
	s.mu.Lock()
	if pct <= s.lastPct {
		s.mu.Unlock()
		return
	}
	s.lastPct = pct
	s.rec.Percent = pct
	s.rec.UpdatedAtMs = m.now().UnixMilli()
	s.mu.Unlock()

	metrics.CaptureProgress.Set(float64(pct))
	m.publish(ctx, bus.TopicProgress, ProgressEvent{SessionID: s.ID, Percent: pct, At: m.now()})
}

// persist writes the record to the history store, best-effort and
// detached from the caller's cancellation so terminal states still
// land on disk.
func (m *Manager) persist(ctx context.Context, rec *model.SessionRecord) {
	if m.store == nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := m.store.Put(pctx, rec); err != nil {
		log.FromContext(ctx).Warn().Err(err).Msg("history write failed")
	}
}

// publish sends one bus message without ever blocking the pipeline:
// the send is detached from the caller's cancellation and bounded by
// publishTimeout, after which the bus drops it.
func (m *Manager) publish(ctx context.Context, topic string, msg bus.Message) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := m.bus.Publish(pctx, topic, msg); err != nil {
		log.FromContext(ctx).Debug().Err(err).Str("topic", topic).Msg("bus publish dropped")
	}
}

func (m *Manager) processName() string {
	if m.encoder.Bin == "" {
		return "ffmpeg"
	}
	return filepath.Base(m.encoder.Bin)
}
