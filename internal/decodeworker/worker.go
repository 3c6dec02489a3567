package decodeworker

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/stellatune/internal/eventhub"
	"github.com/friendsincode/stellatune/internal/model"
	"github.com/friendsincode/stellatune/internal/pipeline"
	"github.com/friendsincode/stellatune/internal/pluginhost"
	"github.com/friendsincode/stellatune/internal/sinkworker"
	"github.com/friendsincode/stellatune/internal/stellaerr"
	"github.com/friendsincode/stellatune/internal/track"
)

const (
	readBlockFrames           = 4096
	interruptMaxExtraWaitDefault = 250 * time.Millisecond
)

// Worker is the decode worker: one dedicated goroutine per session pulling decoded
// audio through the assembled pipeline and writing it to a sinkworker.Worker (spec
// §4.D).
type Worker struct {
	host      *pluginhost.Host
	assembler *pipeline.PipelineAssembler
	sink      *sinkworker.Worker
	hub       *eventhub.Hub
	logger    zerolog.Logger

	state *State

	cmdCh chan Command
	done  chan struct{}

	interruptMaxExtraWait time.Duration

	activeDecoder       *decoderHandle
	prewarmedNextDecoder *decoderHandle

	// masterGainRamp is the decode-side master_gain built-in stage's live ramp. It is
	// owned by the worker (not the per-generation ActiveRunner) so it survives runner
	// rebuilds, matching MasterGainHotControl's "process-wide snapshot" contract (spec
	// §4.D "Master-gain hot control").
	masterGainRamp *pipeline.GainRamp

	// TransitionLog records every fade request issued, for scenario-level testing of
	// the cross-fade/available-frames-hint wiring (spec §8 scenarios 1-3).
	TransitionLog []FadeLogEntry
}

// FadeLogEntry is one recorded fade request, capturing the resolved
// available_frames_hint alongside the requested target/policy (spec §8 scenario 2:
// "transition log contains exactly one request with target_gain <= ε and
// available_frames_hint = Some(3)").
type FadeLogEntry struct {
	TargetGain          float64
	Policy              TransitionTimePolicy
	AvailableFramesHint *uint64
	ResolvedRampMS       int64
}

type decoderHandle struct {
	pluginID   string
	inputRef   string
	decoder    Decoder
	sampleRate uint32
	channels   uint16
	closer     func()
}

// New constructs a Worker. sink must already be running its own Run loop (owned by the
// engine/session) — the decode worker only ever writes into sink.Sender().
func New(host *pluginhost.Host, assembler *pipeline.PipelineAssembler, sink *sinkworker.Worker, hub *eventhub.Hub, logger zerolog.Logger) *Worker {
	return &Worker{
		host:                  host,
		assembler:             assembler,
		sink:                  sink,
		hub:                   hub,
		logger:                logger.With().Str("component", "decodeworker").Logger(),
		state:                 NewState(),
		cmdCh:                 make(chan Command, 8),
		done:                  make(chan struct{}),
		interruptMaxExtraWait: interruptMaxExtraWaitDefault,
		masterGainRamp:        pipeline.NewGainRamp(1.0),
	}
}

// Commands returns the command-submission channel.
func (w *Worker) Commands() chan<- Command { return w.cmdCh }

// Submit sends cmd and blocks for its response.
func (w *Worker) Submit(cmd Command) error {
	if cmd.Resp == nil {
		cmd.Resp = make(chan error, 1)
	}
	w.cmdCh <- cmd
	return <-cmd.Resp
}

// Run drives the worker until Shutdown. While playing, each loop iteration pulls one
// block, runs it through the pipeline, and writes it to the sink, checking the command
// channel non-blockingly between iterations (spec §4.D "Pull loop").
func (w *Worker) Run() {
	defer close(w.done)
	for {
		if w.state.Player == model.StatePlaying && w.activeDecoder != nil {
			select {
			case cmd := <-w.cmdCh:
				if w.dispatch(cmd) {
					return
				}
			default:
				if err := w.pullOnce(); err != nil {
					w.hub.Publish(eventhub.Event{Kind: eventhub.KindError, Message: err.Error()})
					if stellaerr.Is(err, stellaerr.KindDecode) {
						w.state.Player = model.StateStopped
					}
				}
			}
			continue
		}

		cmd := <-w.cmdCh
		if w.dispatch(cmd) {
			return
		}
	}
}

// dispatch handles one command, replying on its Resp channel. Returns true if the
// worker should stop running (Shutdown).
func (w *Worker) dispatch(cmd Command) (stop bool) {
	var err error
	switch cmd.Kind {
	case CmdOpen, CmdSwitchTrack:
		err = w.handleOpen(cmd)
	case CmdPlay:
		err = w.handlePlay()
	case CmdPause:
		err = w.handlePause(cmd)
	case CmdStop:
		err = w.handleStop(cmd)
	case CmdSeek:
		err = w.handleSeek(cmd)
	case CmdQueueNext:
		w.state.QueuedNextInputWire = cmd.QueueInputWire
	case CmdApplyPipelinePlan:
		if cmd.Plan != nil {
			w.assembler.Ensure(*cmd.Plan)
			w.rebuildRunner()
		}
	case CmdApplyPipelineMutation:
		err = w.assembler.ApplyMutation(cmd.Mutation)
		if err == nil {
			w.rebuildRunner()
		}
	case CmdApplyStageControl:
		err = w.handleStageControl(cmd)
	case CmdSetLfeMode:
		w.state.LfeMode = cmd.LfeMode
	case CmdSetResampleQuality:
		w.state.ResampleQuality = cmd.ResampleQuality
	case CmdSetMasterGain:
		w.handleSetMasterGain(cmd)
	case CmdShutdown:
		w.handleShutdown()
		cmd.Resp <- nil
		return true
	}
	cmd.Resp <- err
	return false
}

// handleOpen resolves the input, selects a decoder, fades out any currently playing
// audio first (spec §4.D "Before executing Seek, Pause, Stop, or SwitchTrack, the
// worker issues a fade-out"), opens the new decoder, assembles a pipeline, and fades
// in if start_playing was requested.
func (w *Worker) handleOpen(cmd Command) error {
	if w.activeDecoder != nil {
		w.fadeOutAndWait(PolicyFitToAvailable, 0)
		w.activeDecoder.closer()
		w.activeDecoder = nil
	}

	tok := track.Parse(cmd.InputWire)
	gen, err := w.resolveDecoderGeneration(tok)
	if err != nil {
		return err
	}

	argsJSON := cmd.InputWire
	dec, closer, err := w.host.OpenDecoder(gen, argsJSON)
	if err != nil {
		causes := []error{err}
		return stellaerr.Aggregate(causes)
	}

	sourceStage := pipeline.SourceStage{InputRef: cmd.InputWire}
	decoderStage := pipeline.DecoderStage{PluginID: ""}
	sinkStage := pipeline.SinkStage{}
	plan := pipeline.NewPlan(sourceStage, decoderStage, sinkStage)
	w.assembler.Ensure(plan)
	w.rebuildRunner()

	sampleRate := uint32(0)
	channels := uint16(0)
	if info, infoErr := dec.GetInfo(); infoErr == nil {
		sampleRate = info.SampleRate
		channels = info.Channels
	}

	w.activeDecoder = &decoderHandle{
		inputRef:   cmd.InputWire,
		decoder:    dec,
		sampleRate: sampleRate,
		channels:   channels,
		closer:     func() { dec.Close(); closer() },
	}
	w.state.ActiveInputWire = cmd.InputWire
	w.hub.Publish(eventhub.Event{Kind: eventhub.KindTrackChanged, Path: cmd.InputWire})

	if cmd.StartPlaying {
		w.state.Player = model.StatePlaying
		w.fadeInAndWait(PolicyFixed)
		w.hub.Publish(eventhub.Event{Kind: eventhub.KindAudioStart})
	}
	return nil
}

// resolveDecoderGeneration picks a decoder generation for tok by probe-based scoring over
// every active plugin (spec §4.A). An explicit (plugin_id, type_id) selector is not
// consulted here.
func (w *Worker) resolveDecoderGeneration(tok track.Token) (*pluginhost.Generation, error) {
	ext := ""
	if tok.IsLocal() {
		ext = strings.TrimPrefix(filepath.Ext(tok.Path), ".")
	}

	candidates := w.host.SelectDecoder(ext, nil)
	if len(candidates) == 0 {
		return nil, stellaerr.New(stellaerr.KindUnsupported, "no decoder candidate for input")
	}
	best := candidates[0]
	gen, ok := w.host.ActiveGeneration(best.PluginID)
	if !ok {
		return nil, stellaerr.New(stellaerr.KindNotPrepared, "selected decoder plugin is no longer active")
	}
	return gen, nil
}

func (w *Worker) handlePlay() error {
	if w.activeDecoder == nil {
		return stellaerr.NoActivePipeline("Play")
	}
	w.state.Player = model.StatePlaying
	w.fadeInAndWait(PolicyFixed)
	return nil
}

func (w *Worker) handlePause(cmd Command) error {
	if cmd.PauseBehavior == PauseFadeThenHold {
		w.fadeOutAndWait(PolicyFitToAvailable, 0)
	}
	w.state.Player = model.StatePaused
	if cmd.PauseBehavior == PauseImmediate {
		w.sink.ResetForDisrupt()
	}
	return nil
}

func (w *Worker) handleStop(cmd Command) error {
	if cmd.StopBehavior == StopFadeThenStop {
		w.fadeOutAndWait(PolicyFitToAvailable, 0)
	}
	w.state.Player = model.StateStopped
	if w.activeDecoder != nil {
		w.activeDecoder.closer()
		w.activeDecoder = nil
	}
	w.sink.Shutdown(cmd.StopBehavior == StopFadeThenStop)
	return nil
}

func (w *Worker) handleSeek(cmd Command) error {
	if w.activeDecoder == nil {
		return stellaerr.NoActivePipeline("Seek")
	}
	w.fadeOutAndWait(PolicyFitToAvailable, 0)
	if err := w.activeDecoder.decoder.SeekMs(cmd.PositionMS); err != nil {
		return stellaerr.Wrap(stellaerr.KindDecode, "seek failed", err)
	}
	w.fadeInAndWait(PolicyFixed)
	return nil
}

func (w *Worker) handleStageControl(cmd Command) error {
	runner := w.currentRunner()
	if runner != nil && runner.HasStageKey(cmd.StageKey) {
		runner.applyCounts[cmd.StageKey]++
		return nil
	}
	w.state.StorePendingControl(cmd.StageKey, cmd.ControlJSON)
	return nil
}

// handleSetMasterGain updates the process-wide MasterGainHotControl snapshot and starts
// the live ramp toward it. The snapshot (and the ramp's settled value once it completes)
// survive Stop/Open and runner rebuilds, since both live on the Worker itself rather than
// on the per-generation ActiveRunner (spec §8: "set level 0.5 -> open -> stop -> level
// still 0.5").
func (w *Worker) handleSetMasterGain(cmd Command) {
	w.state.MasterGain = MasterGainHotControl{Level: cmd.MasterGainLevel, RampMS: cmd.MasterGainRampMS}

	sampleRate := int(44100)
	if w.activeDecoder != nil && w.activeDecoder.sampleRate != 0 {
		sampleRate = int(w.activeDecoder.sampleRate)
	}
	w.masterGainRamp.SetTarget(cmd.MasterGainLevel, sampleRate, cmd.MasterGainRampMS)
}

func (w *Worker) handleShutdown() {
	if w.activeDecoder != nil {
		w.activeDecoder.closer()
		w.activeDecoder = nil
	}
	w.sink.Shutdown(false)
}

// rebuildRunner (re)creates the ActiveRunner from the assembler's current pipeline and
// replays any pending stage controls whose key now exists in the new graph (spec §4.D
// "Stage-control routing").
func (w *Worker) rebuildRunner() {
	assembled, ok := w.assembler.Current()
	if !ok {
		return
	}
	runner := newRunner(assembled)
	for _, pc := range w.state.ReplayPendingControls(runner) {
		runner.applyCounts[pc.StageKey]++
	}
	w.state.Runner = runner
}

func (w *Worker) currentRunner() *ActiveRunner { return w.state.Runner }

// Metadata merges the active decoder's optionally-reported metadata over containerTags
// (spec's decoder capability get_metadata_json_utf8: merged rather than replacing
// file-level tags). Returns containerTags unchanged if there is no active decoder.
func (w *Worker) Metadata(containerTags map[string]string) map[string]string {
	if w.activeDecoder == nil {
		return containerTags
	}
	return pipeline.MergeMetadata(containerTags, w.activeDecoder.decoder.MetadataJSON())
}

func (w *Worker) fadeOutAndWait(policy TransitionTimePolicy, requestedRampMS int64) {
	w.fade(0.0, policy, requestedRampMS)
}

func (w *Worker) fadeInAndWait(policy TransitionTimePolicy) {
	w.fade(1.0, policy, 0)
}

func (w *Worker) fade(target float64, policy TransitionTimePolicy, requestedRampMS int64) {
	req := FadeRequest{TargetGain: target, RequestedRampMS: requestedRampMS, Policy: policy}

	var hintPtr *uint64
	rampMS := requestedRampMS
	if runner := w.currentRunner(); runner != nil && w.activeDecoder != nil && w.activeDecoder.decoder != nil {
		remaining := w.activeDecoder.decoder.EstimatedRemainingFrames()
		trim := runner.Assembled.Plan.Transform.GaplessTrim()
		hint := runner.Assembled.Plan.AvailableFramesHint(remaining, trim, w.activeDecoder.sampleRate)
		hintPtr = &hint
		rampMS = ResolveRampMS(req, runner.Assembled.Plan, remaining, trim, w.activeDecoder.sampleRate)
	}

	w.TransitionLog = append(w.TransitionLog, FadeLogEntry{
		TargetGain:          target,
		Policy:              policy,
		AvailableFramesHint: hintPtr,
		ResolvedRampMS:      rampMS,
	})

	w.sink.SetTransitionTarget(target, rampMS)
	WaitForFadeCompletion(rampMS, w.interruptMaxExtraWait.Milliseconds(), func() bool { return true }, time.Millisecond)
}

// pullOnce reads one block from the active decoder, runs it through the transform graph
// (gapless trim, optional mixer, optional resampler, master_gain), and hands it to the
// sink (spec §4.D "Pull loop": "source -> decode -> transform -> mix -> resample ->
// master-gain -> sink"). A zero-frame read is treated as end-of-stream.
func (w *Worker) pullOnce() error {
	runner := w.currentRunner()
	if runner == nil || w.activeDecoder == nil {
		return nil
	}

	channels := int(w.activeDecoder.channels)
	if channels <= 0 {
		channels = 2
	}

	buf := make([]float32, readBlockFrames*channels)
	n, err := w.activeDecoder.decoder.ReadInterleavedF32(buf, channels)
	if err != nil {
		return stellaerr.Wrap(stellaerr.KindDecode, "read failed", err)
	}
	if n == 0 {
		w.hub.Publish(eventhub.Event{Kind: eventhub.KindEOF, Path: w.activeDecoder.inputRef})
		w.state.Player = model.StateStopped
		w.hub.Publish(eventhub.Event{Kind: eventhub.KindPlaybackEnded, Path: w.activeDecoder.inputRef})
		return nil
	}

	block := model.AudioBlock{Channels: uint16(channels), Samples: buf[:n*channels]}

	if runner.trimmer == nil {
		trim := runner.Assembled.Plan.Transform.GaplessTrim()
		runner.trimmer = pipeline.NewGaplessTrimmer(trim, channels)
	}
	block = runner.trimmer.Process(block)

	if runner.Assembled.Plan.Mixer != nil {
		block = pipeline.ApplyMixer(*runner.Assembled.Plan.Mixer, block)
	}

	if runner.Assembled.Plan.Resampler != nil {
		if runner.resampler == nil {
			runner.resampler = pipeline.NewLinearResampler(*runner.Assembled.Plan.Resampler, w.activeDecoder.sampleRate, int(block.Channels))
		}
		block = runner.resampler.Process(block)
	}

	block = pipeline.ApplyGain(block, w.masterGainRamp)

	if len(block.Samples) == 0 {
		return nil
	}
	w.sink.Sender() <- block
	return nil
}

// Stopped returns a channel that is closed once Run has returned.
func (w *Worker) Stopped() <-chan struct{} { return w.done }
