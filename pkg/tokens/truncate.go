package tokens

import (
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// TruncateQueryResults cuts large tabular or query output down to maxTokens.
// The first queryHeaderLines lines are treated as header/metadata and always
// kept verbatim; data lines follow until the running estimate would spill
// into the footer reserve. The footer states exactly how much was cut.
//
// This operation must never fail: any internal problem degrades to a flat
// character slice of the input plus an error marker.
func (m *Manager) TruncateQueryResults(raw string, maxTokens int) (out string) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Errorf("query result truncation failed, using flat fallback: %v", r)
			out = truncateRunes(raw, queryFallbackChars, "\n[ERROR: results truncated due to processing failure]")
		}
	}()

	if m.EstimateTokens(raw) <= maxTokens {
		return raw
	}

	lines := strings.Split(raw, "\n")
	headerEnd := queryHeaderLines
	if headerEnd > len(lines) {
		headerEnd = len(lines)
	}

	kept := make([]string, 0, len(lines))
	kept = append(kept, lines[:headerEnd]...)
	used := m.EstimateTokens(strings.Join(kept, "\n"))
	budget := maxTokens - queryFooterReserveTokens

	cutFrom := len(lines)
	for i := headerEnd; i < len(lines); i++ {
		lineTokens := m.EstimateTokens(lines[i]) + 1
		if used+lineTokens > budget {
			cutFrom = i
			break
		}
		kept = append(kept, lines[i])
		used += lineTokens
	}

	omittedLines := len(lines) - cutFrom
	if omittedLines <= 0 {
		return strings.Join(kept, "\n")
	}

	omittedTokens := m.EstimateTokens(strings.Join(lines[cutFrom:], "\n"))
	footer := fmt.Sprintf(
		"... [RESULTS TRUNCATED: %d lines / ~%d tokens omitted to fit the token budget. Narrow the query for complete results.]",
		omittedLines, omittedTokens)

	m.log.Warnf("truncated query results: kept %d of %d lines (~%d of max %d tokens)",
		len(kept), len(lines), used, maxTokens)

	return strings.Join(kept, "\n") + "\n" + footer
}

// TruncateToolResult applies query-result truncation to the text content of
// an MCP tool call result, returning a new result. Non-text content blocks
// pass through untouched; nil results come back nil.
func (m *Manager) TruncateToolResult(result *mcp.CallToolResult, maxTokens int) *mcp.CallToolResult {
	if result == nil {
		return nil
	}

	truncated := &mcp.CallToolResult{
		IsError: result.IsError,
		Content: make([]mcp.Content, 0, len(result.Content)),
	}
	for _, content := range result.Content {
		switch tc := content.(type) {
		case mcp.TextContent:
			tc.Text = m.TruncateQueryResults(tc.Text, maxTokens)
			truncated.Content = append(truncated.Content, tc)
		case *mcp.TextContent:
			copied := *tc
			copied.Text = m.TruncateQueryResults(copied.Text, maxTokens)
			truncated.Content = append(truncated.Content, &copied)
		default:
			truncated.Content = append(truncated.Content, content)
		}
	}
	return truncated
}
