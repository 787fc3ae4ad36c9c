package prompt

// BuiltinRules is the fixed operating-rules block every system prompt
// carries, regardless of agent kind — the counterpart to the teacher's
// orchestrator.FormatDocs constant (referenced by internal/orchestrator's
// Builder.Build and its test, but its definition isn't present anywhere in
// the retrieved source; this is authored fresh in the slot it occupied,
// for this system's own tool surface rather than the teacher's skill/cron
// commands).
const BuiltinRules = `## Rules
- Prefer reading a file before editing it; don't guess at contents you haven't seen.
- Use the fewest tool calls that get the job done; batch independent reads.
- When a tool call fails, read its error content block before retrying — don't repeat an identical call.
- Never invent file paths, command output, or tool results.`

// BuiltinMethodology is the fixed reasoning-approach block. The <thinking>
// tag convention matches internal/react's splitThinkingTags, so a model
// that follows this instruction produces text this system can actually
// route to the Thinking content block instead of Output.
const BuiltinMethodology = `## Methodology
Work iteratively: assess the request, gather context with read-only tools
before changing anything, make the smallest change that satisfies the
request, and verify it. When you need to reason before acting, wrap that
reasoning in <thinking>...</thinking> tags; everything outside those tags
is treated as your visible response.`

// RuntimeReminder is spec.md §4.11's final "runtime reminder" section.
const RuntimeReminder = `## Reminder
Tool results above are ground truth for this turn; the environment block
may have changed since. Ask before destructive operations the user hasn't
explicitly requested.`
