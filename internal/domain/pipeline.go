package domain

// Pipeline identifies which stage set a lead moves through.
type Pipeline string

const (
	PipelineStaff  Pipeline = "staff"
	PipelineClient Pipeline = "client"
)

// Staff pipeline stages.
const (
	StageNew        = "new"
	StageQualifying = "qualifying"
	StageQualified  = "qualified"
	StageMatchReady = "match_ready"
	StageMatched    = "matched"
	StagePurchased  = "purchased"
)

// Client pipeline stages.
const (
	StageNewRecruit = "new_recruit"
	StageHotRecruit = "hot_recruit"
	StageBookedAppt = "booked_appt"
	StageNurture    = "nurture"
	StageHired      = "hired"
	StageDead       = "dead"
)

var pipelineStages = map[Pipeline][]string{
	PipelineStaff:  {StageNew, StageQualifying, StageQualified, StageMatchReady, StageMatched, StagePurchased},
	PipelineClient: {StageNewRecruit, StageHotRecruit, StageBookedAppt, StageNurture, StageHired, StageDead},
}

// Stages returns the ordered stage set of the pipeline, or nil if unknown.
func (p Pipeline) Stages() []string {
	s := pipelineStages[p]
	out := make([]string, len(s))
	copy(out, s)
	return out
}

// Valid reports whether p is a recognized pipeline.
func (p Pipeline) Valid() bool {
	_, ok := pipelineStages[p]
	return ok
}

// HasStage reports whether stage belongs to the pipeline.
func (p Pipeline) HasStage(stage string) bool {
	for _, s := range pipelineStages[p] {
		if s == stage {
			return true
		}
	}
	return false
}

// IsKnownStage reports whether stage belongs to any pipeline.
func IsKnownStage(stage string) bool {
	return PipelineStaff.HasStage(stage) || PipelineClient.HasStage(stage)
}

// PipelineOf returns the pipeline a stage belongs to.
func PipelineOf(stage string) (Pipeline, bool) {
	for p := range pipelineStages {
		if p.HasStage(stage) {
			return p, true
		}
	}
	return "", false
}
