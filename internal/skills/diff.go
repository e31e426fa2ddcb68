package skills

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// contextLines is how many unchanged lines surround each change.
const contextLines = 3

// unifiedDiff returns a line diff of before and after with file headers, plus
// the number of added and deleted lines.
func unifiedDiff(path, before, after string) (string, int, int) {
	if before == after {
		return "", 0, 0
	}

	dmp := diffmatchpatch.New()
	a, b, lineArray := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("--- a/%s\n", path))
	builder.WriteString(fmt.Sprintf("+++ b/%s\n", path))

	additions, deletions := 0, 0
	for i, d := range diffs {
		lines := splitLines(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			additions += len(lines)
			writeLines(&builder, "+", lines)
		case diffmatchpatch.DiffDelete:
			deletions += len(lines)
			writeLines(&builder, "-", lines)
		case diffmatchpatch.DiffEqual:
			writeContext(&builder, lines, i == 0, i == len(diffs)-1)
		}
	}
	return builder.String(), additions, deletions
}

// writeContext keeps the unchanged lines next to a change and elides the rest.
func writeContext(b *strings.Builder, lines []string, first, last bool) {
	head, tail := contextLines, contextLines
	if first {
		head = 0
	}
	if last {
		tail = 0
	}
	if len(lines) <= head+tail {
		writeLines(b, " ", lines)
		return
	}
	writeLines(b, " ", lines[:head])
	b.WriteString(fmt.Sprintf("@@ %d unchanged lines @@\n", len(lines)-head-tail))
	writeLines(b, " ", lines[len(lines)-tail:])
}

func writeLines(b *strings.Builder, prefix string, lines []string) {
	for _, line := range lines {
		b.WriteString(prefix)
		b.WriteString(line)
		b.WriteString("\n")
	}
}

func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(text, "\n"), "\n")
}
