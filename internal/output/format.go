// Package output formats a tool call's raw JSON result for the CLI's two
// output modes (spec.md §6: "text or JSON"). It treats the MCP result
// payload the way step-chen-agent-sets' webhook handlers treat inbound
// JSON — gjson to pick fields out of an opaque payload without a full
// struct, sjson to rewrite it — rather than round-tripping through a
// typed struct the core doesn't otherwise need.
package output

import (
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"
)

// IsError reports the MCP result's isError flag (spec.md treats the
// result as opaque; this is advisory CLI-layer inspection only).
func IsError(raw []byte) bool {
	return gjson.GetBytes(raw, "isError").Bool()
}

// Text renders a CallToolResult's content blocks as plain text: every
// content[].text field, in order, joined by blank lines. Non-text
// content (images, embedded resources) is rendered as a one-line
// placeholder so nothing silently disappears from the output.
func Text(raw []byte) string {
	blocks := gjson.GetBytes(raw, "content").Array()
	if len(blocks) == 0 {
		return strings.TrimSpace(string(raw))
	}

	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		switch b.Get("type").String() {
		case "text":
			parts = append(parts, b.Get("text").String())
		default:
			parts = append(parts, "["+b.Get("type").String()+" content omitted]")
		}
	}
	return strings.Join(parts, "\n\n")
}

// JSON re-serializes raw with stable indentation for --output json,
// stripping a null "_meta" field some servers emit on every response so
// it doesn't clutter every call's output.
func JSON(raw []byte) string {
	cleaned := raw
	if gjson.GetBytes(raw, "_meta").Type.String() == "Null" {
		if next, err := sjson.DeleteBytes(raw, "_meta"); err == nil {
			cleaned = next
		}
	}
	return string(pretty.Pretty(cleaned))
}
