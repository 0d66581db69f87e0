package workflows

import "testing"

func TestCatalog_RegistersEveryWorkflow(t *testing.T) {
	d := &Deps{Logger: discardLogger()}
	defs := d.Catalog()

	want := map[string]bool{
		FetchTranscriptName:  false,
		DynamicAnalysisName:  false,
		SlideExtractionName:  false,
		PerSlideAnalysisName: false,
		SuperAnalysisName:    false,
		CombinedProcessName:  false,
	}
	for _, def := range defs {
		if _, ok := want[def.Name]; !ok {
			t.Errorf("unexpected workflow name in catalog: %s", def.Name)
			continue
		}
		if def.Run == nil {
			t.Errorf("workflow %s has a nil entry point", def.Name)
		}
		want[def.Name] = true
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("catalog is missing workflow %s", name)
		}
	}
}
