package tools

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	langtools "github.com/tmc/langchaingo/tools"

	"github.com/medicortex/medicortex/internal/llm"
)

// patientRecord mirrors an EHR summary. In production this would come from
// a real patient records table.
type patientRecord struct {
	PatientID string
	Age       int
	Sex       string
	BloodType string
	Allergies []string
	LastVisit string
	Vitals    []vital
	Diagnoses []diagnosis
	Meds      []medication
}

type vital struct{ Name, Value string }
type diagnosis struct{ Condition, Since, Status string }
type medication struct{ Name, Dosage, Frequency string }

// simulatedPatients is keyed by lowercase name for case-insensitive lookup.
var simulatedPatients = map[string]patientRecord{
	"john smith": {
		PatientID: "PT-10042", Age: 45, Sex: "Male", BloodType: "O+",
		Allergies: []string{"Penicillin", "Sulfa drugs"},
		LastVisit: "2026-01-28",
		Vitals: []vital{
			{"Blood Pressure", "138/88 mmHg"},
			{"Heart Rate", "76 bpm"},
			{"Weight", "92 kg"},
			{"Bmi", "28.4"},
		},
		Diagnoses: []diagnosis{
			{"Type 2 Diabetes", "2019-03-15", "Active"},
			{"Hypertension", "2018-07-20", "Active"},
			{"Hyperlipidemia", "2020-01-10", "Managed"},
		},
		Meds: []medication{
			{"Metformin", "500mg", "Twice daily"},
			{"Lisinopril", "10mg", "Once daily"},
			{"Atorvastatin", "20mg", "Once daily at bedtime"},
		},
	},
	"jane doe": {
		PatientID: "PT-10078", Age: 32, Sex: "Female", BloodType: "A+",
		Allergies: []string{"Aspirin"},
		LastVisit: "2026-02-10",
		Vitals: []vital{
			{"Blood Pressure", "118/74 mmHg"},
			{"Heart Rate", "68 bpm"},
			{"Weight", "58 kg"},
			{"Bmi", "22.1"},
		},
		Diagnoses: []diagnosis{
			{"Asthma", "2010-06-01", "Active"},
			{"Iron Deficiency Anemia", "2024-11-15", "Under Treatment"},
		},
		Meds: []medication{
			{"Albuterol Inhaler", "90mcg", "As needed"},
			{"Ferrous Sulfate", "325mg", "Once daily"},
		},
	},
	"raj patel": {
		PatientID: "PT-10135", Age: 60, Sex: "Male", BloodType: "B+",
		Allergies: nil,
		LastVisit: "2026-02-01",
		Vitals: []vital{
			{"Blood Pressure", "142/90 mmHg"},
			{"Heart Rate", "72 bpm"},
			{"Weight", "85 kg"},
			{"Bmi", "27.8"},
		},
		Diagnoses: []diagnosis{
			{"Coronary Artery Disease", "2017-09-05", "Stable"},
			{"Type 2 Diabetes", "2015-04-12", "Active"},
			{"Chronic Kidney Disease Stage 3", "2022-08-20", "Monitored"},
		},
		Meds: []medication{
			{"Aspirin", "81mg", "Once daily"},
			{"Metoprolol", "50mg", "Twice daily"},
			{"Insulin Glargine", "20 units", "Once daily at bedtime"},
			{"Losartan", "50mg", "Once daily"},
		},
	},
}

var placeholderRe = regexp.MustCompile(`^<\w+_\d+>$`)

type piiMappingKey struct{}

// WithPIIMapping attaches the request's redaction mapping to the context so
// the patient record tool can resolve placeholder identifiers. The mapping
// is request-scoped and never stored by the tool.
func WithPIIMapping(ctx context.Context, mapping map[string]string) context.Context {
	return context.WithValue(ctx, piiMappingKey{}, mapping)
}

// PIIMappingFrom returns the request's redaction mapping, or nil.
func PIIMappingFrom(ctx context.Context) map[string]string {
	m, _ := ctx.Value(piiMappingKey{}).(map[string]string)
	return m
}

// resolveIdentifier maps a placeholder token back to the real name through
// the request's redaction mapping. Plain identifiers (patient IDs, raw
// names) pass through untouched.
func resolveIdentifier(identifier string, mapping map[string]string) string {
	identifier = strings.TrimSpace(identifier)
	if placeholderRe.MatchString(identifier) {
		if real, ok := mapping[identifier]; ok {
			return real
		}
	}
	return identifier
}

// formatRecord renders the record as Markdown and re-redacts the real name
// so it never reaches the reasoning transcript.
func formatRecord(rec patientRecord, realName, placeholder string) string {
	allergies := "None known"
	if len(rec.Allergies) > 0 {
		allergies = strings.Join(rec.Allergies, ", ")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Patient Record [%s]\n", placeholder)
	fmt.Fprintf(&sb, "- **Patient ID:** %s\n", rec.PatientID)
	fmt.Fprintf(&sb, "- **Age:** %d\n", rec.Age)
	fmt.Fprintf(&sb, "- **Sex:** %s\n", rec.Sex)
	fmt.Fprintf(&sb, "- **Blood Type:** %s\n", rec.BloodType)
	fmt.Fprintf(&sb, "- **Allergies:** %s\n", allergies)
	fmt.Fprintf(&sb, "- **Last Visit:** %s\n", rec.LastVisit)
	sb.WriteString("\n### Vitals (Last Recorded)\n")
	for _, v := range rec.Vitals {
		fmt.Fprintf(&sb, "- **%s:** %s\n", v.Name, v.Value)
	}
	sb.WriteString("\n### Diagnoses\n")
	for _, d := range rec.Diagnoses {
		fmt.Fprintf(&sb, "- %s (Since: %s, Status: %s)\n", d.Condition, d.Since, d.Status)
	}
	sb.WriteString("\n### Current Medications\n")
	for _, m := range rec.Meds {
		fmt.Fprintf(&sb, "- %s %s — %s\n", m.Name, m.Dosage, m.Frequency)
	}

	out := strings.TrimRight(sb.String(), "\n")
	if realName != "" && placeholder != "" {
		out = strings.ReplaceAll(out, realName, placeholder)
	}
	return out
}

// NewPatientRecordTool looks up a simulated EHR record. The tool accepts a
// placeholder token (for example "<PERSON_1>") or a plain patient ID,
// resolves placeholders through the request's redaction mapping carried on
// the context, and re-redacts the record before returning it so raw
// identifiers never enter the reasoning transcript.
func NewPatientRecordTool() langtools.Tool {
	return New(
		"retrieve_patient_records",
		"Retrieve patient records from the database using a redacted patient identifier (e.g. <PERSON_1>) or a patient ID (e.g. PT-10042). Returns a de-identified record with demographics, diagnoses, medications, and vitals.",
		func(ctx context.Context, input string) (string, error) {
			identifier := strings.TrimSpace(input)
			real := resolveIdentifier(identifier, PIIMappingFrom(ctx))

			rec, ok := simulatedPatients[strings.ToLower(real)]
			if !ok {
				for _, r := range simulatedPatients {
					if strings.EqualFold(r.PatientID, real) {
						rec, ok = r, true
						break
					}
				}
			}
			if !ok {
				return fmt.Sprintf(
					"No patient records found for identifier '%s'. Please verify the patient name or ID and try again.",
					identifier), nil
			}
			return formatRecord(rec, real, identifier), nil
		},
	)
}

// NewPatientHistoryTool analyzes a de-identified record with the responder
// model.
func NewPatientHistoryTool(gen llm.Generator) langtools.Tool {
	return New(
		"analyze_patient_history",
		"Analyze a de-identified patient record for risk factors, medication interactions, and care recommendations. Input is the record text.",
		func(ctx context.Context, input string) (string, error) {
			prompt := "You are reviewing a de-identified patient record. Identify risk " +
				"factors, potential medication interactions, and care recommendations " +
				"relevant to the current request.\n\n" +
				"Record:\n" + input + "\n\nAssessment:"
			return gen.Generate(ctx, prompt, nil)
		},
	)
}
