// Package biz implements the question answering pipeline: query expansion,
// multi-query retrieval, source dedup, context assembly and grounded
// answer generation.
package biz

import (
	"fmt"
	"strings"
)

// Section identifies one topical slice of a medical answer. The set is
// closed; merge and ranking logic handles every member.
type Section string

const (
	SectionDirect    Section = "direct"
	SectionOverview  Section = "overview"
	SectionCauses    Section = "causes"
	SectionSymptoms  Section = "symptoms"
	SectionDiagnosis Section = "diagnosis"
	SectionTreatment Section = "treatment"
	SectionUrgent    Section = "urgent"
	// SectionExpanded tags chunks from the broader-hop query issued when
	// the first retrieval pass yields too few sources.
	SectionExpanded Section = "expanded"
)

// AnswerSections lists the six sections of a structured answer, in the
// order they are retrieved and rendered.
var AnswerSections = []Section{
	SectionOverview,
	SectionCauses,
	SectionSymptoms,
	SectionDiagnosis,
	SectionTreatment,
	SectionUrgent,
}

// Label returns the label used when parsing planner output for this section.
func (s Section) Label() string {
	switch s {
	case SectionOverview:
		return "Overview"
	case SectionCauses:
		return "Causes"
	case SectionSymptoms:
		return "Symptoms"
	case SectionDiagnosis:
		return "Diagnosis"
	case SectionTreatment:
		return "Treatment"
	case SectionUrgent:
		return "Urgent"
	}
	return string(s)
}

// FallbackQuery returns the deterministic query template used when the
// planner does not produce a usable query for this section.
func (s Section) FallbackQuery(question string) string {
	switch s {
	case SectionOverview:
		return question
	case SectionCauses:
		return fmt.Sprintf("%s causes risk factors", question)
	case SectionSymptoms:
		return fmt.Sprintf("%s symptoms", question)
	case SectionDiagnosis:
		return fmt.Sprintf("%s diagnosis tests", question)
	case SectionTreatment:
		return fmt.Sprintf("%s treatment management", question)
	case SectionUrgent:
		return fmt.Sprintf("%s emergency when to seek help", question)
	}
	return question
}

// SubQuery is one retrieval query targeting a single section.
type SubQuery struct {
	// Section names the topical slice the query targets.
	Section Section
	// QueryText is the text to embed and search for.
	QueryText string
}

// sectionByLabel maps a lowercased planner label prefix to its section.
func sectionByLabel(label string) (Section, bool) {
	label = strings.ToLower(strings.TrimSpace(label))
	for _, s := range AnswerSections {
		if strings.HasPrefix(label, strings.ToLower(s.Label())) {
			return s, true
		}
	}
	return "", false
}
