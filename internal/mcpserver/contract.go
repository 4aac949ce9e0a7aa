package mcpserver

// NoteFormatContract describes how Quire derives metadata from note text,
// so LLM clients can write notes that tag and title the way they intend.
const NoteFormatContract = `# Quire Note Format

Notes are plain UTF-8 text. Markdown is recommended but not required.
Quire never rewrites your text; it only reads metadata out of it.

## Tags

- A tag is ` + "`#`" + ` followed by a letter, digit or underscore, then any run of
  non-space characters: ` + "`#work`" + `, ` + "`#project-x`" + `, ` + "`#2025`" + `.
- A tag must start the text or follow whitespace. ` + "`a#b`" + ` is not a tag.
- Tags are case-insensitive and trailing punctuation is dropped:
  ` + "`#Work,`" + ` and ` + "`#work`" + ` are the same tag.
- Markdown headings (` + "`# Title`" + `, ` + "`## Section`" + `) are not tags.

## Optional frontmatter

` + "```" + `markdown
---
title: Weekly standup
tags: [meeting-notes, project-x]
---
Body text with more #inline tags.
` + "```" + `

Frontmatter tags and inline tags are merged.

## Title

Taken from, in order: the note's own title field, frontmatter ` + "`title`" + `,
the first ` + "`# heading`" + `, the first non-blank line.

## Excerpt and word count

The excerpt is the first non-heading paragraph, shortened at a word boundary.
The word count covers the whole text.
`
