package agents

import (
	"fmt"
	"strings"

	"github.com/elecmate/rams/internal/rag"
)

// maxDocChars bounds each knowledge document quoted in a prompt
const maxDocChars = 600

const healthSafetySystemPrompt = `You are a UK electrical health and safety assessor producing the risk assessment part of a RAMS document.
Work to BS 7671, the Electricity at Work Regulations 1989 and HSE guidance. Use UK English.
Score every hazard for likelihood and severity on a 1-5 scale; riskScore is likelihood x severity.
Give a residual risk after controls and link each hazard to a method statement step number where one applies, otherwise 0.
Return at least 5 hazards, at least 3 PPE items and at least 3 emergency procedures by calling the provided function.`

const installerSystemPrompt = `You are a UK electrical installer writing the method statement part of a RAMS document.
Work to BS 7671 and the IET On-Site Guide. Use UK English.
Write at least 10 sequential practical steps, each with tools, materials and safety notes, and reference likely hazards by id (hazard-1, hazard-2, ...).
Include at least 5 inspection and testing procedures with expected results. Respond by calling the provided function.`

func healthSafetyUserPrompt(in Input, hsDocs, regulations []rag.Document) string {
	var b strings.Builder
	writeJobContext(&b, in)
	writeDocuments(&b, "Health and safety knowledge", hsDocs)
	writeDocuments(&b, "Relevant regulations", regulations)
	b.WriteString("\nProduce the risk assessment for this job.\n")
	return b.String()
}

func installerUserPrompt(in Input, practical, code []rag.Document) string {
	var b strings.Builder
	writeJobContext(&b, in)
	writeDocuments(&b, "Practical installation guidance", practical)
	writeDocuments(&b, "Regulation requirements", code)
	writeDocuments(&b, "Relevant regulations", in.SharedRegulations)
	b.WriteString("\nProduce the method statement for this job.\n")
	return b.String()
}

func writeJobContext(b *strings.Builder, in Input) {
	fmt.Fprintf(b, "Job description: %s\n", in.Query)
	fmt.Fprintf(b, "Work type: %s\nJob scale: %s\n", in.WorkType, in.JobScale)
	p := in.Project
	for _, field := range []struct{ label, value string }{
		{"Project", p.ProjectName},
		{"Location", p.Location},
		{"Contractor", p.Contractor},
		{"Supervisor", p.Supervisor},
		{"Assessor", p.Assessor},
	} {
		if field.value != "" {
			fmt.Fprintf(b, "%s: %s\n", field.label, field.value)
		}
	}
}

func writeDocuments(b *strings.Builder, title string, docs []rag.Document) {
	if len(docs) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s:\n", title)
	for i, d := range docs {
		label := d.Topic
		if d.RegulationNumber != "" {
			label = strings.TrimSpace("Reg " + d.RegulationNumber + " " + d.Topic)
		}
		content := d.Content
		if r := []rune(content); len(r) > maxDocChars {
			content = string(r[:maxDocChars]) + "..."
		}
		fmt.Fprintf(b, "%d. [%s] %s\n", i+1, label, content)
	}
}
