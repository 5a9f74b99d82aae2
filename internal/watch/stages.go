package watch

import "math"

// Stage is a user-facing label for a range of job progress.
type Stage struct {
	Threshold float64
	Label     string
}

// CompletionLabel is shown once the job reports complete.
const CompletionLabel = "Analysis complete! Loading dashboard..."

var stages = []Stage{
	{10, "Initializing analysis..."},
	{25, "Identifying competitors..."},
	{45, "Analyzing market signals..."},
	{65, "Diagnosing category fit..."},
	{85, "Generating strategic recommendations..."},
	{95, "Finalizing your report..."},
}

// StageFor returns the label of the last stage whose threshold progress has
// reached. Progress below the first threshold maps to the first stage.
func StageFor(progress float64) string {
	if progress >= 100 {
		return CompletionLabel
	}
	label := stages[0].Label
	for _, s := range stages {
		if progress >= s.Threshold {
			label = s.Label
		}
	}
	return label
}

// EstimatedMinutesRemaining is a rough ETA, two percent per minute.
func EstimatedMinutesRemaining(progress float64) int {
	if progress >= 100 {
		return 0
	}
	if progress < 0 {
		progress = 0
	}
	return int(math.Ceil((100 - progress) / 2))
}
