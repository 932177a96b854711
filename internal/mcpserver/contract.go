package mcpserver

// ArticleFormatURI is the resource URI of ArticleFormatContract.
const ArticleFormatURI = "mdblog://article-format"

// ArticleFormatContract describes how an article file must be laid out for
// the sync engine to publish it.
const ArticleFormatContract = `# mdblog Article Format Contract

Every article is a Markdown file at ` + "`" + `<articles>/<category>/<slug>.md` + "`" + `.

## Layout

- **Category** is the directory name; **slug** is the file name without ` + "`" + `.md` + "`" + `.
- Neither may contain an underscore (` + "`" + `_` + "`" + `); such files are skipped.
- Names starting with a dot are ignored.
- The file modification time is the article version. Touching a file republishes it.

## Structure

` + "```" + `markdown
# Title on the very first line

Excerpt paragraphs, shown in listings.

## First section

Body continues here.
` + "```" + `

## Rules

1. **The first line must be ` + "`" + `# Title` + "`" + `** (one ` + "`" + `#` + "`" + `, one space, non-empty text).
   Articles without it are reported and never published.
2. **Excerpt** is everything between the title and the first ` + "`" + `## ` + "`" + ` heading.
   Without a second-level heading the excerpt is empty.
3. **Attachments** live in ` + "`" + `<category>/<slug>/` + "`" + ` next to the article and are referenced
   relatively: ` + "`" + `![diagram](diagram.png)` + "`" + `. They are served from
   ` + "`" + `api/article/<category>/<slug>/<file>` + "`" + `.
4. **Code blocks** should name their language (` + "```" + `go) so the highlighter picks it up.
5. **Encoding** is UTF-8.

## Example

` + "```" + `markdown
# Fan-out with errgroup

Bounded concurrency in a dozen lines.

## The pattern

![timeline](timeline.png)

` + "```" + `go
g.SetLimit(4)
` + "```" + `
` + "```" + `
`
