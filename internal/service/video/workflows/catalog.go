package workflows

import domainwf "meridian/internal/domain/services/workflow"

// Catalog returns the full set of workflow definitions this module
// exposes, ready to hand to Runtime.Register (spec.md §2.6).
func (d *Deps) Catalog() []domainwf.Definition {
	return []domainwf.Definition{
		{Name: FetchTranscriptName, Run: d.FetchTranscript},
		{Name: DynamicAnalysisName, Run: d.DynamicAnalysis},
		{Name: SlideExtractionName, Run: d.SlideExtractionWorkflow},
		{Name: PerSlideAnalysisName, Run: d.PerSlideAnalysisWorkflow},
		{Name: SuperAnalysisName, Run: d.SuperAnalysisWorkflow},
		{Name: CombinedProcessName, Run: d.CombinedProcessWorkflow},
	}
}
