package kb

import (
	"fmt"
	"strings"
)

// agentSystemPrompt drives the consistency review. The agent only reads
// through tools; mutations happen later, from its declared actions.
const agentSystemPrompt = `You are the curator of a knowledge base. A new memo has
arrived and you must decide how it fits with what is already stored.

Investigate with the tools available to you: search for overlapping or
contradicting memos, read their content, and compare carefully. Then declare
your decision as a list of actions:

- INSERT: keep the new memo. Use the new memo's uuid. Declare at most one
  INSERT, and only for the new memo.
- DELETE: remove an existing memo the new one supersedes or contradicts.
- UPDATE: revise an existing memo. Provide the full revised content in
  updated_content, or the exact string "provided_content_unchanged" if the
  content itself should stay as it is.

Rules:
- Never declare DELETE or UPDATE for the new memo itself.
- If the new memo adds nothing (it duplicates or is fully covered by existing
  memos), declare no INSERT; it will be discarded.
- Give a short reason for every action.

When your investigation is complete, state your final decision in plain text,
listing each action with its memo uuid and reason.`

// parsePrompt asks a second, cheaper call to turn the agent's free-text
// decision into the structured plan.
const parseSystemPrompt = `Extract the knowledge base actions from the decision text.
Each action has: action (INSERT, DELETE, or UPDATE), memo_uuid, reason, and
for UPDATE an updated_content field. Output only actions the text actually
declares. If the text declares no actions, output an empty list.`

// incomingPrompt renders the memo under review for the agent.
func incomingPrompt(id, title, content, summary string, tags []string) string {
	var sb strings.Builder
	sb.WriteString("New memo under review:\n")
	fmt.Fprintf(&sb, "UUID: %s\nTitle: %s\n", id, title)
	if len(tags) > 0 {
		fmt.Fprintf(&sb, "Tags: %s\n", strings.Join(tags, ", "))
	}
	if summary != "" {
		fmt.Fprintf(&sb, "Summary: %s\n", summary)
	}
	fmt.Fprintf(&sb, "\nContent:\n%s", content)
	return sb.String()
}
