package workflow

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Prompt construction for the reasoning provider. Every prompt demands a
// bare JSON object with an exact key set so the answers decode into the
// typed records in types.go.

func planPrompt(goal string) string {
	return fmt.Sprintf(`You are a planning assistant with full knowledge of Linux systems. Assume access to a single persistent terminal session.
Break the following user request into a sequence of short, ordered, atomic steps.
All steps run in the same terminal session; never open a new terminal or require a new execution context.

Rules:
- Each step must be under 50 words.
- Return ONLY a valid JSON object. No markdown, no prose outside JSON.
- Each step must include exactly these keys: id, description, expected_input, expected_output, validation_rule.
- validation_rule describes how to verify correctness in plain language, not keyword matches.
- expected_input is the exact command to run; expected_output describes the terminal output realistically.
- Steps are sequential and atomic; each must be independently executable.
- Assume common tools are preinstalled; do not add installation steps.

User request: %q

Return your output as a JSON object with this format:
{
  "request": "<original user request>",
  "steps": [
    {
      "id": "<step id>",
      "description": "<short description>",
      "expected_input": "<command to run>",
      "expected_output": "<what the terminal shows>",
      "validation_rule": "<how to check that this step was done correctly>"
    }
  ]
}`, goal)
}

func generatePrompt(step Step, priorResults map[string]string) string {
	stepJSON := mustJSON(step)
	resultsJSON := mustJSON(priorResults)

	return fmt.Sprintf(`You are a coding assistant. Write executable code for the given step.

Rules:
- Respond ONLY with a valid JSON object. No markdown, no explanations outside JSON.
- Required keys: step_id, code, language, reasoning, expected_output.
- Code must be directly runnable in the specified language; prefer bash or zsh.
- Be concise but correct.

Step to implement:
%s

Previous step results (if any):
%s

Example JSON format:
{
  "step_id": "step_1",
  "code": "<runnable code>",
  "language": "bash",
  "reasoning": "<short reasoning why this code solves the step>",
  "expected_output": "<what the code will output>"
}`, stepJSON, resultsJSON)
}

func repairPrompt(step Step, last *Instruction, failure *FailureContext) string {
	return fmt.Sprintf(`You are a debugging assistant. Analyze a failed code execution and provide a minimal, correct fix.

Return ONLY a valid JSON object. No markdown, no commentary.

Constraints:
- Keep the fix minimal but correct.
- Keep the language the same unless the bug requires a language change.
- Include a short reasoning and an error_type (syntax|runtime|environment|logic).

Inputs:
- Step (goal and validation): %s
- Original code result: %s
- Error info from execution: %s

JSON schema:
{
  "step_id": "string",
  "error_type": "syntax|runtime|environment|logic",
  "reasoning": "string",
  "fixed_code": "string",
  "language": "string",
  "expected_output": "string"
}`, mustJSON(step), mustJSON(last), mustJSON(failure))
}

func validatePrompt(rule, output string) string {
	return fmt.Sprintf(`You are a validation engine.
Rule: %s
Output to validate: %s

Return only a JSON object in the following format:
{
  "is_valid": true/false,
  "reason": "short explanation"
}`, rule, output)
}

func summaryPrompt(goal string, plan []Step, ledger *Ledger) string {
	var steps strings.Builder
	for _, step := range plan {
		result, ok := ledger.Get(step.ID)
		if !ok {
			result = "No result"
		}
		fmt.Fprintf(&steps, "%s: %s -> Result: %s\n", step.ID, step.Description, result)
	}

	return fmt.Sprintf(`You are an assistant specialized in summarizing workflows.

The user requested: %q

The workflow had the following steps and results:
%s
Instructions:
- Summarize each step and its outcome concisely.
- Highlight key results.
- Identify any warnings or errors.
- Determine the final outcome: "success", "partial", or "failure".
- Return the output strictly as a JSON object with the following keys:

{
  "original_request": "<copy of the original request>",
  "steps_completed": [
    {
      "step_description": "<description of step>",
      "outcome": "<result of step>"
    }
  ],
  "key_results": ["<list of key results>"],
  "total_summary": "<concise summary including key results, the final outcome, and any warnings>",
  "final_outcome": "<success | partial | failure>",
  "warnings": ["<list of warnings or errors, empty if none>"]
}`, goal, steps.String())
}

// mustJSON renders v for prompt embedding. Prompt inputs are plain
// records that cannot fail to marshal.
func mustJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
