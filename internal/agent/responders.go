package agent

import (
	langtools "github.com/tmc/langchaingo/tools"

	"github.com/medicortex/medicortex/internal/llm"
	"github.com/medicortex/medicortex/internal/tools"
	"github.com/medicortex/medicortex/pkg/models"
)

// complexMaxIterations covers responders that chain two tools before
// synthesizing: retrieve then analyze, search then crawl.
const complexMaxIterations = 5

func stringInputSchema(desc string) map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"input": map[string]interface{}{"type": "string", "description": desc},
		},
		"required": []string{"input"},
	}
}

func stringOutputSchema(desc string) map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"output": map[string]interface{}{"type": "string", "description": desc},
		},
	}
}

// NewDefaultRegistry builds the fixed responder registry: pubmed,
// diagnosis, report, patient, drug. gen is the shared responder model.
func NewDefaultRegistry(gen llm.Generator) *Registry {
	reg := NewRegistry()
	reg.Register("pubmed", newPubMedResponder(gen))
	reg.Register("diagnosis", newDiagnosisResponder(gen))
	reg.Register("report", newReportResponder(gen))
	reg.Register("patient", newPatientResponder(gen))
	reg.Register("drug", newDrugResponder(gen))
	return reg
}

func newPubMedResponder(gen llm.Generator) *Responder {
	card := models.AgentCard{
		Name: "pubmed",
		Description: "Specialized medical research agent: searches the NCBI PubMed database " +
			"for peer-reviewed papers, clinical trials, and reviews, and crawls trusted " +
			"medical websites (Mayo Clinic, MedlinePlus, CDC, WHO, NHS) for clinical guidance.",
		InputSchema:  stringInputSchema("Research question or topic"),
		OutputSchema: stringOutputSchema("Literature summary with sources"),
		Version:      "1.0.0",
		Capabilities: []string{"pubmed-search", "literature-review", "medical-papers", "clinical-trials", "web-crawling"},
	}
	toolset := []langtools.Tool{
		tools.NewPubMedSearchTool(tools.NewPubMedClient()),
		tools.NewCrawlerTool(tools.NewCrawler()),
	}
	prompt := "Your goal is to answer medical research questions with evidence from the literature. " +
		"Search PubMed first; crawl trusted medical sites when the question needs clinical " +
		"guidance beyond papers. Always cite which source each finding came from."
	return New("pubmed", prompt, card, gen, toolset, complexMaxIterations)
}

func newDiagnosisResponder(gen llm.Generator) *Responder {
	card := models.AgentCard{
		Name: "diagnosis",
		Description: "Specialized in analyzing symptoms and suggesting potential diagnoses " +
			"based on medical guidelines.",
		InputSchema:  stringInputSchema("Symptoms or patient presentation"),
		OutputSchema: stringOutputSchema("Differential diagnosis and considerations"),
		Version:      "1.0.0",
		Capabilities: []string{"diagnosis", "symptom-analysis"},
	}
	toolset := []langtools.Tool{
		tools.NewGuidelinesTool(gen),
	}
	prompt := "Your goal is to suggest potential diagnoses based on symptoms. " +
		"ALWAYS reference medical guidelines."
	return New("diagnosis", prompt, card, gen, toolset, DefaultMaxIterations)
}

func newReportResponder(gen llm.Generator) *Responder {
	card := models.AgentCard{
		Name: "report",
		Description: "Medical report analysis agent: extracts text from report documents " +
			"(lab results, discharge summaries) and provides structured clinical " +
			"interpretation with identified abnormalities and recommendations.",
		InputSchema:  stringInputSchema("Report URL or report text to analyze"),
		OutputSchema: stringOutputSchema("Structured clinical interpretation"),
		Version:      "1.0.0",
		Capabilities: []string{"document-extraction", "lab-value-interpretation", "report-analysis"},
	}
	toolset := []langtools.Tool{
		tools.NewDocumentTextTool(),
		tools.NewReportAnalysisTool(gen),
	}
	prompt := "Your goal is to interpret medical reports. Extract the document text first " +
		"when given a URL, then analyze it. Highlight abnormal values and state their " +
		"clinical significance."
	return New("report", prompt, card, gen, toolset, complexMaxIterations)
}

func newPatientResponder(gen llm.Generator) *Responder {
	card := models.AgentCard{
		Name: "patient",
		Description: "Patient records and history agent. Securely retrieves patient " +
			"demographics, diagnoses, medications, and vitals using de-identified records, " +
			"and analyzes clinical history without exposing personal identifiers.",
		InputSchema:  stringInputSchema("Patient name placeholder or patient ID"),
		OutputSchema: stringOutputSchema("De-identified patient record with clinical analysis"),
		Version:      "2.0.0",
		Capabilities: []string{"patient-record-retrieval", "clinical-history-analysis", "medication-review", "risk-assessment"},
	}
	toolset := []langtools.Tool{
		tools.NewPatientRecordTool(),
		tools.NewPatientHistoryTool(gen),
	}
	prompt := "Your goal is to retrieve and analyze patient records while keeping them " +
		"de-identified. NEVER output a patient's real name; use only the redacted " +
		"placeholders (e.g., <PERSON_1>) provided to you. Start with " +
		"retrieve_patient_records, passing the identifier exactly as it appears in the " +
		"query, then use analyze_patient_history on the retrieved record. If the patient " +
		"is not found, say so and ask to verify the name or ID."
	return New("patient", prompt, card, gen, toolset, complexMaxIterations)
}

func newDrugResponder(gen llm.Generator) *Responder {
	card := models.AgentCard{
		Name: "drug",
		Description: "Specialized pharmacology agent. Checks drug-drug interactions, " +
			"identifying contraindications and adverse effects, and provides evidence-based " +
			"drug recommendations and dosage guidelines for specific conditions.",
		InputSchema:  stringInputSchema("Drug names or condition requiring medication"),
		OutputSchema: stringOutputSchema("Interaction analysis or drug recommendations"),
		Version:      "1.0.0",
		Capabilities: []string{"drug-interactions", "contraindications", "dosage-guidelines", "drug-recommendations"},
	}
	toolset := []langtools.Tool{
		tools.NewDrugInteractionTool(gen),
		tools.NewDrugRecommendationTool(gen),
	}
	prompt := "Your goal is to answer medication questions safely. Check interactions when " +
		"multiple drugs are involved; recommend options when asked for treatment. Always " +
		"mention monitoring requirements and when to consult a clinician."
	return New("drug", prompt, card, gen, toolset, complexMaxIterations)
}
