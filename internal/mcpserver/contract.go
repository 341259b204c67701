package mcpserver

// DocumentFormat describes how clients should read, write and hide
// documents in the content root.
const DocumentFormat = `# mdumb Document Format

Documents are plain Markdown files under the content root. Paths are
relative, use forward slashes and end with ` + "`" + `.md` + "`" + `.

## Titles

The title shown in navigation and search comes from, in order:

1. the ` + "`" + `title` + "`" + ` field of YAML frontmatter,
2. the first ` + "`# heading`" + ` in the body,
3. the file name without extension (the folder name for ` + "`" + `index.md` + "`" + `).

` + "```" + `markdown
---
title: Setup guide
tags:
  - onboarding
---

# Setup guide

Body text.
` + "```" + `

## Folders

A folder's ` + "`" + `index.md` + "`" + ` is its landing page; its title becomes the
folder's title in navigation.

## Safe writes

Every read returns a SHA-256 content hash. Pass it back as
` + "`" + `expected_hash` + "`" + ` when writing: if someone else changed the file in the
meantime the write is rejected and the current hash is reported. Read the
document again, merge, and retry with the new hash.

## Hiding documents

A ` + "`" + `.mdumbignore` + "`" + ` file at the root uses .gitignore syntax. Matching
documents are left out of listings, navigation and search but can still be
read and written by path. Dot-files and dot-folders are always hidden.
`
