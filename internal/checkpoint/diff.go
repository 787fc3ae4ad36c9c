package checkpoint

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/sourcegraph/go-diff/diff"
)

// FileDiff is one file's change between two checkpoints (spec.md §4.6
// diff_checkpoints/diff_with_workspace). It carries no separate content
// field: a deleted file appears only as a unified diff against empty content.
type FileDiff struct {
	Path    string
	Unified string // empty if the file is unchanged
}

// unifiedDiff computes a line-based diff between oldContent and newContent
// and renders it as unified-diff text via sourcegraph/go-diff's printer.
// The line-matching itself is a straightforward LCS (adequate for the
// source-file sizes checkpoints track); go-diff supplies the Hunk/FileDiff
// types and the unified-diff text renderer so the on-disk/displayed format
// matches the tool everyone already reads `git diff` output with.
func unifiedDiff(path, oldContent, newContent string) (string, error) {
	if oldContent == newContent {
		return "", nil
	}
	oldLines := splitLines(oldContent)
	newLines := splitLines(newContent)
	ops := lcsDiff(oldLines, newLines)
	hunks := buildHunks(ops, oldLines, newLines)
	if len(hunks) == 0 {
		return "", nil
	}
	fd := &diff.FileDiff{
		OrigName: "a/" + path,
		NewName:  "b/" + path,
		Hunks:    hunks,
	}
	out, err := diff.PrintFileDiff(fd)
	if err != nil {
		return "", fmt.Errorf("checkpoint.unifiedDiff: %w", err)
	}
	return string(out), nil
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

type opKind int

const (
	opEqual opKind = iota
	opDelete
	opInsert
)

type editOp struct {
	kind opKind
	old  string
	new  string
}

// lcsDiff computes a minimal line-level edit script via classic O(n*m)
// dynamic-programming LCS — adequate for the checkpoint use case (whole
// source files, not giant generated blobs).
func lcsDiff(a, b []string) []editOp {
	n, m := len(a), len(b)
	dp := make([][]int, n+1)
	for i := range dp {
		dp[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if a[i] == b[j] {
				dp[i][j] = dp[i+1][j+1] + 1
			} else if dp[i+1][j] >= dp[i][j+1] {
				dp[i][j] = dp[i+1][j]
			} else {
				dp[i][j] = dp[i][j+1]
			}
		}
	}
	var ops []editOp
	i, j := 0, 0
	for i < n && j < m {
		switch {
		case a[i] == b[j]:
			ops = append(ops, editOp{kind: opEqual, old: a[i], new: b[j]})
			i++
			j++
		case dp[i+1][j] >= dp[i][j+1]:
			ops = append(ops, editOp{kind: opDelete, old: a[i]})
			i++
		default:
			ops = append(ops, editOp{kind: opInsert, new: b[j]})
			j++
		}
	}
	for ; i < n; i++ {
		ops = append(ops, editOp{kind: opDelete, old: a[i]})
	}
	for ; j < m; j++ {
		ops = append(ops, editOp{kind: opInsert, new: b[j]})
	}
	return ops
}

const contextLines = 3

// buildHunks groups editOps into unified-diff hunks with contextLines of
// surrounding context, matching `diff -u`'s default.
func buildHunks(ops []editOp, oldLines, newLines []string) []*diff.Hunk {
	type change struct {
		start, end int // indices into ops, [start,end) non-equal run
	}
	var changes []change
	i := 0
	for i < len(ops) {
		if ops[i].kind == opEqual {
			i++
			continue
		}
		start := i
		for i < len(ops) && ops[i].kind != opEqual {
			i++
		}
		changes = append(changes, change{start: start, end: i})
	}
	if len(changes) == 0 {
		return nil
	}

	// Merge changes whose surrounding context windows overlap.
	type window struct{ lo, hi int }
	var windows []window
	for _, c := range changes {
		lo := c.start - contextLines
		if lo < 0 {
			lo = 0
		}
		hi := c.end + contextLines
		if hi > len(ops) {
			hi = len(ops)
		}
		if len(windows) > 0 && lo <= windows[len(windows)-1].hi {
			windows[len(windows)-1].hi = hi
		} else {
			windows = append(windows, window{lo: lo, hi: hi})
		}
	}

	var hunks []*diff.Hunk
	oldLine, newLine := 1, 1
	opOldLine := make([]int, len(ops)+1)
	opNewLine := make([]int, len(ops)+1)
	opOldLine[0], opNewLine[0] = oldLine, newLine
	for idx, op := range ops {
		switch op.kind {
		case opEqual:
			oldLine++
			newLine++
		case opDelete:
			oldLine++
		case opInsert:
			newLine++
		}
		opOldLine[idx+1] = oldLine
		opNewLine[idx+1] = newLine
	}

	for _, w := range windows {
		var body bytes.Buffer
		origLines, newLinesCount := 0, 0
		for idx := w.lo; idx < w.hi; idx++ {
			op := ops[idx]
			switch op.kind {
			case opEqual:
				body.WriteString(" ")
				body.WriteString(op.old)
				origLines++
				newLinesCount++
			case opDelete:
				body.WriteString("-")
				body.WriteString(op.old)
				origLines++
			case opInsert:
				body.WriteString("+")
				body.WriteString(op.new)
				newLinesCount++
			}
		}
		hunks = append(hunks, &diff.Hunk{
			OrigStartLine: int32(opOldLine[w.lo]),
			OrigLines:     int32(origLines),
			NewStartLine:  int32(opNewLine[w.lo]),
			NewLines:      int32(newLinesCount),
			Body:          body.Bytes(),
		})
	}
	return hunks
}
