package protocol

// Name identifies one of the composite operations that coordinate remote
// calls with local store changes.
type Name string

const (
	NameEdit        Name = "edit"
	NameRegenerate  Name = "regenerate"
	NameStopAndSave Name = "stop_and_save"
)

// Stage is a named step of a protocol run. A failed run reports the stage it
// stopped in.
type Stage string

const (
	StageLocating        Stage = "locating"
	StageDeletingFirst   Stage = "deleting_first"
	StageDeletingSecond  Stage = "deleting_second"
	StageCommittingLocal Stage = "committing_local"
	StageResubmitting    Stage = "resubmitting"
	StageStopping        Stage = "stopping"
	StagePersisting      Stage = "persisting"
	StageDone            Stage = "done"
)

// Sequences lists, per protocol, the stages in the only order they may run.
// A run may skip a stage (Edit without an assistant reply never enters
// deleting_second) but never go back.
var Sequences = map[Name][]Stage{
	NameEdit: {
		StageLocating, StageDeletingFirst, StageDeletingSecond,
		StageCommittingLocal, StageResubmitting, StageDone,
	},
	NameRegenerate: {
		StageLocating, StageDeletingFirst, StageDeletingSecond,
		StageCommittingLocal, StageResubmitting, StageDone,
	},
	NameStopAndSave: {
		StageLocating, StageStopping, StagePersisting, StageDone,
	},
}

func (n Name) position(s Stage) int {
	for i, st := range Sequences[n] {
		if st == s {
			return i
		}
	}
	return -1
}

// CanAdvance reports whether a run of n may move from one stage to the next.
func (n Name) CanAdvance(from, to Stage) bool {
	f, t := n.position(from), n.position(to)
	return f >= 0 && t > f
}

type Result string

const (
	ResultOK           Result = "ok"
	ResultFailed       Result = "failed"
	ResultPrecondition Result = "precondition"
)

// Outcome records how far a protocol run got.
type Outcome struct {
	Protocol Name   `json:"protocol"`
	Stage    Stage  `json:"stage"`
	Result   Result `json:"result"`
	Err      error  `json:"-"`
}

func (o Outcome) OK() bool { return o.Err == nil }

// Error is the failure text, empty for successful runs.
func (o Outcome) Error() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}
