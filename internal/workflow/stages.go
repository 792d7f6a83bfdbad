package workflow

import "fmt"

// StageID identifies one of the five fixed workflow stages.
type StageID string

const (
	StageProblemDefinition  StageID = "problem-definition"
	StageDataAnalysis       StageID = "data-analysis"
	StageDesignAlternatives StageID = "design-alternatives"
	StageDesignEvaluation   StageID = "design-evaluation"
	StageDesignDecision     StageID = "design-decision"
)

// StageConfig is the static configuration of one stage: its display title,
// the facilitator persona injected as the first message of every completion
// request, and the instruction used when the stage is summarized. Stages are
// immutable configuration, not persisted state.
type StageConfig struct {
	Title             string
	FacilitatorPrompt string
	SummaryPrompt     string
}

// stageOrder is the canonical progression of the design workflow.
var stageOrder = []StageID{
	StageProblemDefinition,
	StageDataAnalysis,
	StageDesignAlternatives,
	StageDesignEvaluation,
	StageDesignDecision,
}

var stageConfigs = map[StageID]StageConfig{
	StageProblemDefinition: {
		Title: "Problem Definition",
		FacilitatorPrompt: "You are a facilitation assistant guiding a proactive product-service system team. " +
			"Ask clarifying questions, suggest sustainability levers, and provide structured prompts that help define the strategic challenge.",
		SummaryPrompt: "Summarize the core problem definition, stakeholder needs, and sustainability ambitions. Keep the summary under 120 words.",
	},
	StageDataAnalysis: {
		Title: "Data Analysis",
		FacilitatorPrompt: "You are an analytical assistant. Help interpret qualitative and quantitative data, " +
			"highlight insights, and propose hypotheses for product-service innovation.",
		SummaryPrompt: "Summarize the key findings, trends, and implications captured in the data analysis discussion. Keep the summary under 120 words.",
	},
	StageDesignAlternatives: {
		Title: "Design/Plan Alternatives",
		FacilitatorPrompt: "You are a co-creation assistant. Offer alternative service concepts, test assumptions, " +
			"and synthesize emerging options.",
		SummaryPrompt: "Summarize the alternative concepts discussed, including differentiating features and evaluation criteria. Keep the summary under 120 words.",
	},
	StageDesignEvaluation: {
		Title: "Design/Plan Evaluation",
		FacilitatorPrompt: "You are an evaluation assistant. Compare alternatives, identify trade-offs, " +
			"and highlight insights to support decision-making.",
		SummaryPrompt: "Summarize the evaluation insights, trade-offs, and recommended refinements. Keep the summary under 120 words.",
	},
	StageDesignDecision: {
		Title: "Design/Plan Decision",
		FacilitatorPrompt: "You are a decision-support assistant. Assist with synthesis, scoring rationales, " +
			"and crisp recommendations.",
		SummaryPrompt: "Summarize the decision criteria, selected direction, and next steps. Keep the summary under 120 words.",
	},
}

// Stages returns the stage ids in workflow order.
func Stages() []StageID {
	out := make([]StageID, len(stageOrder))
	copy(out, stageOrder)
	return out
}

// Lookup returns the configuration for id, or false for an unknown stage.
func Lookup(id StageID) (StageConfig, bool) {
	cfg, ok := stageConfigs[id]
	return cfg, ok
}

// ValidateStages asserts the configuration table covers exactly the ordered
// stage set — no stage without config, no config without a stage. Called at
// startup so a drifting table fails fast instead of surfacing as a nil
// lookup mid-conversation.
func ValidateStages() error {
	if len(stageConfigs) != len(stageOrder) {
		return fmt.Errorf("stage config table has %d entries, want %d", len(stageConfigs), len(stageOrder))
	}
	for _, id := range stageOrder {
		cfg, ok := stageConfigs[id]
		if !ok {
			return fmt.Errorf("stage %q has no configuration", id)
		}
		if cfg.Title == "" || cfg.FacilitatorPrompt == "" || cfg.SummaryPrompt == "" {
			return fmt.Errorf("stage %q has incomplete configuration", id)
		}
	}
	return nil
}
