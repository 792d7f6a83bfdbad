package ranking

// Artifact is one concept in the evaluation gallery. The catalog is fixed;
// ranks attach to artifact IDs in workspace storage.
type Artifact struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Contributor string `json:"contributor"`
	Caption     string `json:"caption"`
}

var artifacts = []Artifact{
	{
		ID:          "prototype-shuttle",
		Title:       "Adaptive Shuttle Entry",
		Contributor: "Team Aurora",
		Caption:     "Live usability study on the adaptive shuttle entry sequence.",
	},
	{
		ID:          "telemetry-dashboard",
		Title:       "Telemetry Intelligence Wall",
		Contributor: "Data Studio Kilo",
		Caption:     "Integrated telemetry dashboard tracking energy consumption.",
	},
	{
		ID:          "accessibility-trials",
		Title:       "Inclusive Boarding Trials",
		Contributor: "Accessibility Guild",
		Caption:     "Accessibility trials focusing on seamless transfers.",
	},
	{
		ID:          "mobility-hub-render",
		Title:       "Regenerative Mobility Hub",
		Contributor: "Studio Meridian",
		Caption:     "Regenerative mobility hub with modular charging canopies.",
	},
	{
		ID:          "service-app-ui",
		Title:       "Service Orchestration UI",
		Contributor: "Transit Studio",
		Caption:     "Service orchestration app highlighting multimodal journeys.",
	},
	{
		ID:          "energy-dashboard",
		Title:       "Energy Intelligence Overlay",
		Contributor: "Fleet Ops",
		Caption:     "Energy intelligence overlay for service fleet dispatch.",
	},
	{
		ID:          "community-lab",
		Title:       "Community Co-design Lab",
		Contributor: "Outreach Collective",
		Caption:     "Community co-design lab capturing inclusive feedback.",
	},
}

// rankLabels maps each assignable rank to its gallery option label.
var rankLabels = map[int]string{
	1: "Leading Concept",
	2: "Strong Contender",
	3: "Needs Refinement",
	4: "Backup Option",
	5: "Limited Fit",
	6: "Low Alignment",
	7: "Retire Concept",
}

// Artifacts returns the evaluation gallery catalog in display order.
func Artifacts() []Artifact {
	out := make([]Artifact, len(artifacts))
	copy(out, artifacts)
	return out
}

// LookupArtifact returns the catalog entry for id.
func LookupArtifact(id string) (Artifact, bool) {
	for _, a := range artifacts {
		if a.ID == id {
			return a, true
		}
	}
	return Artifact{}, false
}

// RankLabel returns the option label for an assignable rank, or "" when the
// rank is outside 1..7.
func RankLabel(rank int) string {
	return rankLabels[rank]
}
