package mcpserver

// NoteFormat describes how notes are stored, listed and highlighted, for
// LLM consumers that read or write notes.
const NoteFormat = `# Note Format

A note has three fields:

- **id**: opaque identifier, unique, never changes once created.
- **text**: Markdown (GitHub flavoured). Raw HTML is not rendered.
- **date**: an instant, ISO-8601 (` + "`" + `2024-05-04T10:00:00Z` + "`" + `, ` + "`" + `2024-05-04T10:00` + "`" + ` or ` + "`" + `2024-05-04` + "`" + `;
  values without an offset are UTC). New notes are dated now unless a date is given.

## Writing

` + "`" + `put_note` + "`" + ` creates the note when the id is new and otherwise merges: fields you
leave out keep their value. Every write replaces the stored collection as a whole.

## Header

The **header** of a note is its first non-blank line, trimmed. Lists and search
results show only the header, rendered inline (headings and paragraphs unwrapped),
so put the title on the first line:

` + "```" + `markdown
# Weekly standup
Attendees: Alice, Bob.
` + "```" + `

## Search and highlighting

- Filtering is a literal, case-insensitive substring match on the whole text.
- Results are ordered newest first; notes with the same date keep their order.
- Every occurrence of the query in the header is wrapped in ` + "`" + `==…==` + "`" + ` and rendered
  as ` + "`" + `<mark>` + "`" + `. A header that already contains ` + "`" + `==text==` + "`" + ` renders highlighted too,
  so avoid that syntax on the first line.
`
