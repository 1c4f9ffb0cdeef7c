package models

// Stage names. One fixed total order shared by all searches; the
// orchestrator executes them strictly in this sequence.
const (
	StageScrapeRecords     = "scrape_records"
	StageCourtSearch       = "court_search"
	StageDownloadDocuments = "download_documents"
	StageAnalyzeDocuments  = "analyze_documents"
	StageBuildChain        = "build_chain_of_title"
	StageGenerateReport    = "generate_report"
	StageFinalize          = "finalize_search"

	// Child task types spawned by fan-out stages.
	TaskDownloadDocument = "download_document"
	TaskAnalyzeDocument  = "analyze_document"

	// The top-level orchestration task itself.
	TaskOrchestrate = "orchestrate_search"
)

// StepOrder is the fixed stage sequence for every search.
var StepOrder = []string{
	StageScrapeRecords,
	StageCourtSearch,
	StageDownloadDocuments,
	StageAnalyzeDocuments,
	StageBuildChain,
	StageGenerateReport,
	StageFinalize,
}

// StageOrdinal returns the position of a stage in StepOrder, or -1 if the
// name is not a pipeline stage.
func StageOrdinal(stage string) int {
	for i, s := range StepOrder {
		if s == stage {
			return i
		}
	}
	return -1
}
