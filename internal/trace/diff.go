package trace

import (
	"strings"

	"github.com/intentgate/intent-gate/internal/util"
)

// maxDiffLines bounds the quadratic LCS table. Beyond it the whole
// post-image is attributed as a single added range, which keeps the ledger
// correct (every new line is covered) at reduced granularity.
const maxDiffLines = 20000

// AddedRanges computes the added line runs between before and after using a
// line-level diff. Line numbers are 1-indexed positions in the post-image;
// each range's hash covers the added lines joined by LF. Removed and
// unchanged runs only advance counters. Line endings are normalized to LF
// before diffing.
func AddedRanges(before, after string) []Range {
	beforeLines := splitLines(normalizeEOL(before))
	afterLines := splitLines(normalizeEOL(after))

	if len(afterLines) == 0 {
		return nil
	}
	if len(beforeLines) == 0 || len(beforeLines) > maxDiffLines || len(afterLines) > maxDiffLines {
		return []Range{newRange(1, afterLines)}
	}

	keep := lcsKeepSet(beforeLines, afterLines)

	var out []Range
	start := -1 // 0-based index of the current added run, -1 when none open
	var block []string
	flush := func() {
		if start < 0 {
			return
		}
		out = append(out, newRange(start+1, block))
		start = -1
		block = nil
	}

	for j, line := range afterLines {
		if keep[j] {
			flush()
			continue
		}
		if start < 0 {
			start = j
		}
		block = append(block, line)
	}
	flush()
	return out
}

func newRange(startLine int, lines []string) Range {
	return Range{
		StartLine:   startLine,
		EndLine:     startLine + len(lines) - 1,
		ContentHash: util.SHA256Hex([]byte(strings.Join(lines, "\n"))),
	}
}

// lcsKeepSet marks the post-image lines that belong to a longest common
// subsequence with the pre-image; every unmarked line is an addition.
func lcsKeepSet(a, b []string) []bool {
	n, m := len(a), len(b)
	// dp[i][j] = LCS length of a[i:], b[j:]
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

	keep := make([]bool, m)
	i, j := 0, 0
	for i < n && j < m {
		switch {
		case a[i] == b[j]:
			keep[j] = true
			i++
			j++
		case dp[i+1][j] >= dp[i][j+1]:
			i++
		default:
			j++
		}
	}
	return keep
}

func normalizeEOL(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// splitLines splits on LF without manufacturing a phantom trailing line for
// content that ends in a newline.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	s = strings.TrimSuffix(s, "\n")
	return strings.Split(s, "\n")
}
