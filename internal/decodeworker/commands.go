package decodeworker

import "github.com/friendsincode/stellatune/internal/pipeline"

// PauseBehavior / StopBehavior select whether queued audio is drained or dropped, and
// whether a fade-out runs first (spec §4.D commands carry these as enums).
type PauseBehavior int

const (
	PauseFadeThenHold PauseBehavior = iota
	PauseImmediate
)

type StopBehavior int

const (
	StopFadeThenStop StopBehavior = iota
	StopImmediate
)

// CommandKind enumerates the decode-worker command set verbatim from spec §4.D.
type CommandKind int

const (
	CmdOpen CommandKind = iota
	CmdPlay
	CmdPause
	CmdStop
	CmdSeek
	CmdSwitchTrack
	CmdQueueNext
	CmdApplyPipelinePlan
	CmdApplyPipelineMutation
	CmdApplyStageControl
	CmdSetLfeMode
	CmdSetResampleQuality
	CmdSetMasterGain
	CmdShutdown
)

// Command is a single worker command with its response channel (spec §4.D "each
// carries a response channel").
type Command struct {
	Kind CommandKind

	// Open / SwitchTrack
	InputWire     string
	StartPlaying  bool

	// Pause / Stop
	PauseBehavior PauseBehavior
	StopBehavior  StopBehavior

	// Seek
	PositionMS int64

	// QueueNext
	QueueInputWire string

	// ApplyPipelinePlan
	Plan *pipeline.PipelinePlan

	// ApplyPipelineMutation
	Mutation pipeline.Mutation

	// ApplyStageControl
	StageKey    string
	ControlJSON string

	// SetLfeMode
	LfeMode string

	// SetResampleQuality
	ResampleQuality string

	// SetMasterGain
	MasterGainLevel  float64
	MasterGainRampMS int64

	Resp chan error
}

func newCommand(kind CommandKind) Command {
	return Command{Kind: kind, Resp: make(chan error, 1)}
}
