package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/friendsincode/stellatune/internal/decodeworker"
	"github.com/friendsincode/stellatune/internal/eventhub"
	"github.com/friendsincode/stellatune/internal/model"
	"github.com/friendsincode/stellatune/internal/pipeline"
	"github.com/friendsincode/stellatune/internal/pluginhost"
	"github.com/friendsincode/stellatune/internal/sinkworker"
)

// OutputOptions mirrors the device/output selection fields whose change forces a
// session restart (spec §4.E "Device/output options changes").
type OutputOptions struct {
	Backend              string
	DeviceID             string
	MatchTrackSampleRate bool
	GaplessPlayback      bool
}

func (o OutputOptions) changed(other OutputOptions) bool {
	return o.Backend != other.Backend ||
		o.DeviceID != other.DeviceID ||
		o.MatchTrackSampleRate != other.MatchTrackSampleRate ||
		o.GaplessPlayback != other.GaplessPlayback
}

// ExternalCommand is a host-issued request arriving on Engine's external-command
// channel (spec §4.E "Contract": "selecting over ... external-command channel").
type ExternalCommand struct {
	Kind           ExternalCommandKind
	InputWire      string
	StartPlaying   bool
	PauseBehavior  decodeworker.PauseBehavior
	StopBehavior   decodeworker.StopBehavior
	PositionMS     int64
	QueueInputWire string
	Options        OutputOptions
	DesiredChain   []DesiredStage
	LfeMode        string
	ResampleQuality string
	PreloadPath    string
	PreloadPosMS   int64
	Resp           chan error
}

// ExternalCommandKind enumerates the requests the engine's public surface accepts.
type ExternalCommandKind int

const (
	ExtOpen ExternalCommandKind = iota
	ExtPlay
	ExtPause
	ExtStop
	ExtSeek
	ExtSwitchTrack
	ExtQueueNext
	ExtSetOutputOptions
	ExtSetDesiredDSPChain
	ExtSetLfeMode
	ExtSetResampleQuality
	ExtPreloadTrack
	ExtShutdown
)

// SessionFactory builds the decode worker + sink worker pair for a fresh Session once
// an output spec is known. Supplied by the process wiring this package into a runnable
// binary, since that wiring owns the platform sink target.
type SessionFactory func(spec model.StreamSpec, opts OutputOptions) (*decodeworker.Worker, *sinkworker.Worker, error)

// Engine is the single-threaded coordinator of spec §4.E: it owns at most one Session
// and drives a select loop over external commands, worker-emitted events (its event-hub
// subscription), and a periodic buffering tick. Prewarm replies are read inline by the
// code that requested them; preload replies are not read by the loop.
type Engine struct {
	host      *pluginhost.Host
	assembler *pipeline.PipelineAssembler
	hub       *eventhub.Hub
	logger    zerolog.Logger

	sessionFactory SessionFactory
	prewarmer      *Prewarmer
	preloader      *Preloader
	dspChain       *DSPChain

	exclusiveWM Watermarks
	sharedWM    Watermarks
	tickEvery   time.Duration

	extCh  chan ExternalCommand
	events eventhub.Subscriber

	mu             sync.Mutex
	session        *Session
	options        OutputOptions
	desiredStart   bool // whether the host wants playback once the output spec is ready
	pendingRestart bool // set by handleSetOutputOptions, cleared and acted on by the next tick

	done chan struct{}
}

// Config collects the tunables Engine needs beyond its collaborators.
type Config struct {
	ExclusiveWatermarks Watermarks
	SharedWatermarks    Watermarks
	TickEvery           time.Duration
}

// New constructs an Engine. factory is invoked each time a session must be (re)built.
func New(host *pluginhost.Host, assembler *pipeline.PipelineAssembler, hub *eventhub.Hub, prewarmer *Prewarmer, preloader *Preloader, factory SessionFactory, cfg Config, logger zerolog.Logger) *Engine {
	tick := cfg.TickEvery
	if tick <= 0 {
		tick = 50 * time.Millisecond
	}
	return &Engine{
		host:           host,
		assembler:      assembler,
		hub:            hub,
		logger:         logger.With().Str("component", "engine").Logger(),
		sessionFactory: factory,
		prewarmer:      prewarmer,
		preloader:      preloader,
		dspChain:       NewDSPChain(),
		exclusiveWM:    cfg.ExclusiveWatermarks,
		sharedWM:       cfg.SharedWatermarks,
		tickEvery:      tick,
		extCh:          make(chan ExternalCommand, 16),
		events:         hub.Subscribe(),
		done:           make(chan struct{}),
	}
}

// Submit sends cmd to the engine and blocks for its response.
func (e *Engine) Submit(cmd ExternalCommand) error {
	if cmd.Resp == nil {
		cmd.Resp = make(chan error, 1)
	}
	e.extCh <- cmd
	return <-cmd.Resp
}

// Run drives the coordinator loop until ExtShutdown. It is meant to run on its own
// dedicated goroutine (spec §5 "the engine's control loop is a dedicated OS thread").
func (e *Engine) Run() {
	defer close(e.done)
	ticker := time.NewTicker(e.tickEvery)
	defer ticker.Stop()
	defer e.hub.Unsubscribe(e.events)

	for {
		select {
		case cmd := <-e.extCh:
			if e.dispatch(cmd) {
				return
			}
		case ev := <-e.events:
			e.handleWorkerEvent(ev)
		case <-ticker.C:
			e.tick()
		}
	}
}

// Stopped reports when Run has returned.
func (e *Engine) Stopped() <-chan struct{} { return e.done }

func (e *Engine) dispatch(cmd ExternalCommand) (stop bool) {
	var err error
	switch cmd.Kind {
	case ExtOpen, ExtSwitchTrack:
		e.mu.Lock()
		e.desiredStart = cmd.StartPlaying
		e.mu.Unlock()
		err = e.handleOpen(cmd)
	case ExtPlay:
		e.mu.Lock()
		e.desiredStart = true
		e.mu.Unlock()
		err = e.forward(func(d *decodeworker.Worker) error {
			return d.Submit(decodeworker.Command{Kind: decodeworker.CmdPlay, Resp: make(chan error, 1)})
		})
	case ExtPause:
		err = e.forward(func(d *decodeworker.Worker) error {
			return d.Submit(decodeworker.Command{Kind: decodeworker.CmdPause, PauseBehavior: cmd.PauseBehavior, Resp: make(chan error, 1)})
		})
	case ExtStop:
		e.mu.Lock()
		e.desiredStart = false
		e.mu.Unlock()
		err = e.forward(func(d *decodeworker.Worker) error {
			return d.Submit(decodeworker.Command{Kind: decodeworker.CmdStop, StopBehavior: cmd.StopBehavior, Resp: make(chan error, 1)})
		})
	case ExtSeek:
		err = e.forward(func(d *decodeworker.Worker) error {
			return d.Submit(decodeworker.Command{Kind: decodeworker.CmdSeek, PositionMS: cmd.PositionMS, Resp: make(chan error, 1)})
		})
	case ExtQueueNext:
		err = e.forward(func(d *decodeworker.Worker) error {
			return d.Submit(decodeworker.Command{Kind: decodeworker.CmdQueueNext, QueueInputWire: cmd.QueueInputWire, Resp: make(chan error, 1)})
		})
	case ExtSetOutputOptions:
		err = e.handleSetOutputOptions(cmd.Options)
	case ExtSetDesiredDSPChain:
		e.dspChain.SetDesired(cmd.DesiredChain)
		err = e.reresolveDSPChain()
	case ExtSetLfeMode:
		err = e.forward(func(d *decodeworker.Worker) error {
			return d.Submit(decodeworker.Command{Kind: decodeworker.CmdSetLfeMode, LfeMode: cmd.LfeMode, Resp: make(chan error, 1)})
		})
	case ExtSetResampleQuality:
		err = e.forward(func(d *decodeworker.Worker) error {
			return d.Submit(decodeworker.Command{Kind: decodeworker.CmdSetResampleQuality, ResampleQuality: cmd.ResampleQuality, Resp: make(chan error, 1)})
		})
	case ExtPreloadTrack:
		e.preloader.Begin(cmd.PreloadPath, cmd.PreloadPosMS)
	case ExtShutdown:
		e.handleShutdown()
		cmd.Resp <- nil
		return true
	}
	cmd.Resp <- err
	return false
}

func (e *Engine) forward(f func(*decodeworker.Worker) error) error {
	e.mu.Lock()
	s := e.session
	e.mu.Unlock()
	if s == nil {
		return nil
	}
	return f(s.Decode)
}

// handleOpen queries the current output spec synchronously via the prewarmer, builds
// a session if none exists, then issues Open to the decode worker (spec §4.E
// "Session start waits for a fresh spec; a failure emits an error and returns to
// Stopped").
func (e *Engine) handleOpen(cmd ExternalCommand) error {
	e.mu.Lock()
	opts := e.options
	session := e.session
	e.mu.Unlock()

	if session == nil {
		tok, results := e.prewarmer.Begin(opts.Backend, opts.DeviceID)
		res := <-results
		if e.prewarmer.IsStale(PrewarmResult{Token: tok}) {
			return nil
		}
		if res.Err != nil {
			e.hub.Publish(eventhub.Event{Kind: eventhub.KindError, Message: res.Err.Error()})
			return res.Err
		}
		dec, sink, err := e.sessionFactory(res.Spec, opts)
		if err != nil {
			e.hub.Publish(eventhub.Event{Kind: eventhub.KindError, Message: err.Error()})
			return err
		}
		session = newSession(uuid.NewString(), dec, sink, res.Spec)
		e.mu.Lock()
		e.session = session
		e.mu.Unlock()
		go dec.Run()
	}

	if err := e.reresolveDSPChain(); err != nil {
		return err
	}

	return session.Decode.Submit(decodeworker.Command{
		Kind:         decodeworker.CmdOpen,
		InputWire:    cmd.InputWire,
		StartPlaying: cmd.StartPlaying,
		Resp:         make(chan error, 1),
	})
}

// handleSetOutputOptions records the new options and, if they differ in a way that
// forces a restart, marks pendingRestart rather than tearing the session down inline.
// Several device switches arriving within the same tick period collapse into the one
// restart the next tick actually performs (spec §4.E "Device/output options changes").
func (e *Engine) handleSetOutputOptions(opts OutputOptions) error {
	e.mu.Lock()
	prev := e.options
	e.options = opts
	if e.session != nil && prev.changed(opts) {
		e.pendingRestart = true
	}
	e.mu.Unlock()
	return nil
}

// restartSessionForOptions stops and drops the current session and, if playback was
// desired, begins a new prewarm against opts. It does not read that prewarm's result
// and does not start a new session; the next Open builds one.
func (e *Engine) restartSessionForOptions(opts OutputOptions) {
	e.mu.Lock()
	session := e.session
	e.mu.Unlock()
	if session == nil {
		return
	}

	wantRestart := false
	if session.Decode != nil {
		_ = session.Decode.Submit(decodeworker.Command{Kind: decodeworker.CmdStop, Resp: make(chan error, 1)})
		wantRestart = e.desiredStart
	}
	e.mu.Lock()
	e.session = nil
	e.mu.Unlock()

	if wantRestart {
		e.prewarmer.Begin(opts.Backend, opts.DeviceID)
	}
}

func (e *Engine) reresolveDSPChain() error {
	e.mu.Lock()
	session := e.session
	e.mu.Unlock()
	if session == nil {
		return nil
	}
	assembled, ok := e.assembler.Current()
	if !ok {
		return nil
	}
	graph := assembled.Plan.Transform.Clone()
	if err := e.dspChain.ApplyTo(graph, session.Spec); err != nil {
		return err
	}
	return session.Decode.Submit(decodeworker.Command{
		Kind: decodeworker.CmdApplyPipelinePlan,
		Plan: &pipeline.PipelinePlan{
			Source:    assembled.Plan.Source,
			Decoder:   assembled.Plan.Decoder,
			Transform: graph,
			Mixer:     assembled.Plan.Mixer,
			Resampler: assembled.Plan.Resampler,
			Sink:      assembled.Plan.Sink,
		},
		Resp: make(chan error, 1),
	})
}

func (e *Engine) handleShutdown() {
	e.mu.Lock()
	session := e.session
	e.session = nil
	e.mu.Unlock()
	if session == nil {
		return
	}
	_ = session.Decode.Submit(decodeworker.Command{Kind: decodeworker.CmdShutdown, Resp: make(chan error, 1)})
	session.MarkStopped()
}

// handleWorkerEvent reacts to events published by the decode/sink workers: EOF stops
// the session and emits PlaybackEnded (queued-next promotion is left to the caller's
// own policy, spec §4.E "EOF").
func (e *Engine) handleWorkerEvent(ev eventhub.Event) {
	switch ev.Kind {
	case eventhub.KindEOF:
		e.mu.Lock()
		session := e.session
		e.session = nil
		e.mu.Unlock()
		if session != nil {
			_ = session.Decode.Submit(decodeworker.Command{Kind: decodeworker.CmdStop, Resp: make(chan error, 1)})
			session.MarkStopped()
		}
		e.hub.Publish(eventhub.Event{Kind: eventhub.KindPlaybackEnded, Path: ev.Path})
	case eventhub.KindError:
		e.logger.Warn().Str("message", ev.Message).Msg("worker reported error")
	}
}

// tick applies any debounced output-options restart, then the watermark rule, once per
// period (spec §4.E "Buffering").
func (e *Engine) tick() {
	e.mu.Lock()
	pending := e.pendingRestart
	opts := e.options
	e.pendingRestart = false
	e.mu.Unlock()
	if pending {
		e.restartSessionForOptions(opts)
	}

	e.mu.Lock()
	session := e.session
	e.mu.Unlock()
	if session == nil {
		return
	}

	wm := e.sharedWM
	if e.options.MatchTrackSampleRate {
		wm = e.exclusiveWM
	}

	current := model.StateBuffering
	if session.OutputEnabled.Load() {
		current = model.StatePlaying
	}

	bufferedMS := session.BufferedMS()
	next, enabled := NextBufferingState(current, bufferedMS, wm)
	prevEnabled := session.OutputEnabled.Load()
	session.OutputEnabled.Store(enabled)
	if enabled != prevEnabled {
		e.hub.Publish(eventhub.Event{Kind: eventhub.KindStateChanged, State: next.String()})
	}
}
