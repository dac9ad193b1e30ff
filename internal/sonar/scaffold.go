package sonar

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/Atharva-Kanherkar/echo/internal/llm"
)

const analyzePrompt = `Deeply analyze this problem:

Problem: %s

Context: %s

Respond with JSON:
{"problem_type": "scaling/architecture/security/optimization/design", "complexity_level": "low/medium/high/extreme", "key_constraints": [], "critical_factors": [], "potential_approaches": [{"approach": "name", "pros": [], "cons": [], "feasibility": "high/medium/low"}], "research_areas": [], "simulation_scenarios": []}`

const researchPrompt = `Research solutions for this problem:

Problem: %s
Research areas: %s

Respond with JSON:
{"papers": [{"title": "", "authors": "", "year": 2023, "key_insight": "", "relevance": "high/medium/low", "url": ""}], "existing_solutions": [{"name": "", "description": "", "strengths": [], "weaknesses": []}], "novel_insights": []}`

const simulatePrompt = `Simulate testing these approaches for the problem:

Problem: %s
Approaches: %s
Scenarios: %s

Respond with JSON:
{"total_runs": 0, "approaches_tested": [{"approach": "", "scenarios_tested": 0, "success_rate": 0.0, "failure_modes": []}], "winner": "", "confidence": "high/medium/low", "unexpected_findings": []}`

const synthesizePrompt = `Synthesize the optimal solution.

Problem: %s

Analysis: %s

Research: %s

Simulations: %s

Respond with JSON:
{"verdict": "", "optimal_solution": {"approach": "", "why_optimal": "", "architecture": "", "key_components": [], "implementation_steps": []}, "supporting_evidence": {"research_papers": [], "simulation_results": ""}, "risks": [], "mitigation_strategies": [], "estimated_effort": ""}`

const scaffoldPrompt = `Scaffold an implementation of this solution. One file per key component.

Solution: %s

Respond with JSON:
{"files": [{"name": "component_name.py", "content": "full source"}]}`

// scaffold asks for one file per key component and writes them, together
// with SONAR_SOLUTION.md, to the sonar's directory.
func (m *Manager) scaffold(ctx context.Context, j *job) (map[string]any, error) {
	solution := j.results[PhaseSynthesize]

	var reply struct {
		Files []struct {
			Name    string `json:"name"`
			Content string `json:"content"`
		} `json:"files"`
	}
	if err := llm.ChatJSON(ctx, m.llm, systemPrompt, fmt.Sprintf(scaffoldPrompt, toJSON(solution)), &reply); err != nil {
		return nil, err
	}

	dir := m.scaffoldDir(j.id)
	var written []any
	for _, f := range reply.Files {
		name := filepath.Base(strings.TrimSpace(f.Name))
		if name == "" || name == "." || name == "/" {
			continue
		}
		path := filepath.Join(dir, name)
		if err := writeFile(path, llm.StripCodeFence(f.Content)); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", name, err)
		}
		written = append(written, path)
	}

	readme := filepath.Join(dir, "SONAR_SOLUTION.md")
	if err := writeFile(readme, Readme(j.problem, solution)); err != nil {
		return nil, fmt.Errorf("failed to write readme: %w", err)
	}
	written = append(written, readme)

	return map[string]any{
		"directory":       dir,
		"files_generated": written,
		"status":          "ready_for_review",
	}, nil
}

// Readme renders a synthesized solution as markdown.
func Readme(problem string, solution map[string]any) string {
	optimal := object(solution, "optimal_solution")
	evidence := object(solution, "supporting_evidence")

	var b strings.Builder
	fmt.Fprintf(&b, "# Project Sonar Solution\n\n## Problem\n%s\n\n", problem)
	fmt.Fprintf(&b, "## Verdict\n%s\n\n", text(solution, "verdict", "N/A"))
	fmt.Fprintf(&b, "## Optimal Solution\n**Approach:** %s\n\n%s\n\n",
		text(optimal, "approach", "N/A"), text(optimal, "why_optimal", ""))
	fmt.Fprintf(&b, "## Architecture\n%s\n\n", text(optimal, "architecture", "N/A"))

	b.WriteString("## Key Components\n")
	for _, c := range strs(optimal, "key_components") {
		fmt.Fprintf(&b, "- %s\n", c)
	}
	b.WriteString("\n## Implementation Steps\n")
	for i, s := range strs(optimal, "implementation_steps") {
		fmt.Fprintf(&b, "%d. %s\n", i+1, s)
	}

	b.WriteString("\n## Supporting Evidence\n\n### Research Papers\n")
	for _, p := range strs(evidence, "research_papers") {
		fmt.Fprintf(&b, "- %s\n", p)
	}
	fmt.Fprintf(&b, "\n### Simulation Results\n%s\n\n", text(evidence, "simulation_results", "N/A"))

	b.WriteString("## Risks & Mitigation\n")
	for _, r := range strs(solution, "risks") {
		fmt.Fprintf(&b, "- **Risk:** %s\n", r)
	}
	for _, s := range strs(solution, "mitigation_strategies") {
		fmt.Fprintf(&b, "- **Mitigation:** %s\n", s)
	}
	fmt.Fprintf(&b, "\n## Estimated Effort\n%s\n", text(solution, "estimated_effort", "Unknown"))
	return b.String()
}

// Report renders a human-readable status report of a sonar.
func (m *Manager) Report(ctx context.Context, id string) (string, error) {
	doc, err := m.Status(ctx, id)
	if err != nil {
		return "", err
	}
	solution := object(doc, PhaseSynthesize)
	optimal := object(solution, "optimal_solution")
	impl := object(doc, PhaseScaffold)

	var b strings.Builder
	fmt.Fprintf(&b, "Project Sonar Report\n\n")
	fmt.Fprintf(&b, "Problem:  %s\n", doc.String("problem"))
	fmt.Fprintf(&b, "Status:   %s\n", strings.ToUpper(text(doc, "status", "unknown")))
	if phase := doc.String("current_phase"); phase != "" {
		fmt.Fprintf(&b, "Phase:    %s\n", phase)
	}
	fmt.Fprintf(&b, "Duration: %s\n\n", Duration(doc, m.now()))

	fmt.Fprintf(&b, "Work completed:\n")
	fmt.Fprintf(&b, "- Simulations run: %d\n", int(doc.Float("simulations_run")))
	fmt.Fprintf(&b, "- Papers researched: %d\n", int(doc.Float("papers_researched")))
	fmt.Fprintf(&b, "- Approaches tested: %d\n\n", len(list(object(doc, PhaseSimulate), "approaches_tested")))

	fmt.Fprintf(&b, "Verdict:\n%s\n\n", text(solution, "verdict", "Analysis in progress..."))
	fmt.Fprintf(&b, "Optimal solution:\n%s\n", text(optimal, "approach", "Synthesizing..."))
	if why := text(optimal, "why_optimal", ""); why != "" {
		fmt.Fprintf(&b, "%s\n", why)
	}

	if dir := text(impl, "directory", ""); dir != "" {
		fmt.Fprintf(&b, "\nImplementation: %s (%d files)\n", dir, len(list(impl, "files_generated")))
	}
	if e := doc.String("error"); e != "" {
		fmt.Fprintf(&b, "\nError: %s\n", e)
	}
	return b.String(), nil
}

// Duration formats the time between start_time and completed_at (or now) as
// "Xh Ym".
func Duration(doc map[string]any, now time.Time) string {
	start, err := time.Parse(time.RFC3339, text(doc, "start_time", ""))
	if err != nil {
		return "Unknown"
	}
	end := now
	if done, err := time.Parse(time.RFC3339, text(doc, "completed_at", "")); err == nil {
		end = done
	}
	d := end.Sub(start)
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}
