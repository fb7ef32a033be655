package script

import (
	"fmt"
	"strings"

	"github.com/stagehandhq/stagehand/internal/conversation"
)

// CompileInput carries everything the instruction text depends on. Compile is
// pure string construction: deterministic given its input, no I/O.
type CompileInput struct {
	Definition Definition
	Record     conversation.Record
}

// Compile builds the system instruction for one turn: the operator's script,
// the declared stage list, the prior turn as short history, the stage
// progression rule for this conversation, and the machine-parseable output
// contract the reply parser expects.
func Compile(input CompileInput) string {
	def := input.Definition
	rec := input.Record

	var b strings.Builder

	b.WriteString("You are running a scripted sales dialogue on behalf of an operator.\n")
	b.WriteString("Follow the operator script below. Stay in character, answer in the user's language, and keep replies short and conversational.\n\n")

	b.WriteString("## Operator script\n")
	b.WriteString(strings.TrimSpace(def.Raw))
	b.WriteString("\n\n")

	b.WriteString("## Stages\n")
	b.WriteString("The script declares these stages, in order:\n")
	for i, stage := range def.Stages {
		fmt.Fprintf(&b, "%d. %s\n", i+1, stage)
	}
	b.WriteString("\n")

	if rec.Stage == "" {
		fmt.Fprintf(&b, "This is the first turn of this conversation. You MUST select the first stage, %q, and must not skip ahead. ", def.FirstStage())
		b.WriteString("The only exception: if the user's message explicitly and unambiguously asks for information that belongs to a later stage (for example a direct pricing question), you may answer from that stage instead.\n\n")
	} else {
		fmt.Fprintf(&b, "The conversation is currently at stage %q. Continue from there. ", rec.Stage)
		b.WriteString("Advance to the next stage only when the user's message shows they are ready; never skip stages and never move backwards.\n\n")
	}

	if rec.LastInboundText != "" || rec.LastReplyText != "" {
		b.WriteString("## Previous turn\n")
		if rec.LastInboundText != "" {
			fmt.Fprintf(&b, "User: %s\n", rec.LastInboundText)
		}
		if rec.LastReplyText != "" {
			fmt.Fprintf(&b, "You: %s\n", rec.LastReplyText)
		}
		b.WriteString("\n")
	}

	if rec.CapturedDetail != "" {
		b.WriteString("## Captured details so far\n")
		b.WriteString(rec.CapturedDetail)
		b.WriteString("\n\n")
	}

	b.WriteString(outputContract)

	return b.String()
}

// outputContract tells the model the exact structured output the reply parser
// accepts. The restatement rule exists because confirmation stages must show
// captured data to the user, and models omit it unless told explicitly.
const outputContract = `## Output format
Reply with a single JSON object and nothing else:

{
  "stage": "<the stage you are answering from; must be one of the declared stage names>",
  "detail": "<structured details captured from the user this turn (name, address, phone, order items); empty string if none>",
  "items": [
    {"kind": "text", "payload": "<message text to send>"},
    {"kind": "image", "payload": "<image url>", "caption": "<optional caption>"}
  ]
}

Rules:
- "items" must contain at least one entry and is sent to the user in order.
- Allowed kinds are "text", "image", "video", "audio"; payload is the text or the media URL.
- Put captured personal data in "detail" only, never echoed into "items" as raw storage text.
- Exception: when the current stage's purpose is to confirm previously captured data, restate those captured fields inside a text item so the user can verify them.
`
