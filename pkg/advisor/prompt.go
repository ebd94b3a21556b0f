package advisor

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strings"

	"spectra/pkg/utils"
)

// schemaExample is shown to the backend verbatim. Field order matches the Plan type.
const schemaExample = `{"module": "exploit/path", "payload": "payload/path", "options": {}, "vector": "system | web", "rationale": "short explanation (optional)"}`

// ManualReviewInstruction is the escape hatch offered to the backend when no safe
// plan exists. The validator short-circuits on this shape.
const ManualReviewInstruction = `{"manual_review": true, "rationale": "<reason>"}`

// BuildPrompt renders recon data into the advisor prompt. The recon JSON is cut
// to maxReconTokens (zero means unbounded) so large scans cannot crowd out the
// instructions that pin the single-object response shape.
func BuildPrompt(recon any, maxReconTokens int) string {
	reconJSON := renderRecon(recon)
	if maxReconTokens > 0 {
		reconJSON = utils.DefaultTokenCounter().TruncateToTokenLimit(reconJSON, maxReconTokens)
	}

	var b strings.Builder
	b.WriteString("You are an assistant that ONLY outputs a single JSON object (no surrounding text, no markdown).\n")
	b.WriteString("Return a JSON object matching this schema: module (string), payload (string), options (object), ")
	b.WriteString("vector (either 'system' or 'web'), rationale (optional string), confidence (optional number between 0 and 1).\n")
	b.WriteString("Do not add any other keys.\n")
	b.WriteString("If you cannot safely propose an actionable strategy, return " + ManualReviewInstruction + ".\n")
	b.WriteString("Do NOT include any shell commands, code execution, or additional commentary.\n\n")
	b.WriteString("SCHEMA_EXAMPLE: " + schemaExample + "\n\n")
	b.WriteString("Recon: " + reconJSON + "\n\n")
	b.WriteString("Respond ONLY with the JSON object.")
	return b.String()
}

func renderRecon(recon any) string {
	switch v := recon.(type) {
	case nil:
		return "{}"
	case string:
		return v
	case []byte:
		return string(v)
	}
	data, err := json.Marshal(recon)
	if err != nil {
		return fmt.Sprintf("%v", recon)
	}
	return string(data)
}

// promptExcerpt shortens a prompt for debug logs: head and tail of the text plus
// its length and a digest, so two runs on the same recon can be matched up.
func promptExcerpt(prompt string, maxChars int) string {
	half := max(maxChars/2, 100)
	if 2*half >= len(prompt) {
		return prompt
	}
	sum := sha256.Sum256([]byte(prompt))
	return fmt.Sprintf("%s ...[%d chars, sha256:%x]... %s", prompt[:half], len(prompt), sum[:8], prompt[len(prompt)-half:])
}
