package llm

import (
	"bufio"
	"io"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/alexander-akhmetov/prdloop/internal/debug"
)

// processStreamingOutput reads `--output-format stream-json` lines from r,
// dispatches callbacks via opts, and returns the accumulated assistant text.
// The final result text is used only when no assistant text was streamed.
func processStreamingOutput(r io.Reader, opts Options) string {
	var out strings.Builder
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, maxLineSize), maxLineSize)
	seen := make(map[string]bool)
	toolNames := make(map[string]string)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !gjson.Valid(line) {
			debug.Logf("llm: skipping non-JSON stream line: %.100s", line)
			continue
		}

		ev := gjson.Parse(line)
		switch typ := ev.Get("type").String(); typ {
		case "system":
			if ev.Get("subtype").String() == "init" && opts.OnSystemInit != nil {
				if model := ev.Get("model").String(); model != "" {
					opts.OnSystemInit(model)
				}
			}
		case "assistant":
			handleAssistant(ev, &out, seen, toolNames, opts)
		case "user":
			handleUser(ev, toolNames, opts)
		case "result":
			if result := ev.Get("result").String(); result != "" && out.Len() == 0 {
				out.WriteString(result)
			}
		default:
			debug.Logf("llm: unhandled stream event type=%s", typ)
		}
	}

	if err := scanner.Err(); err != nil {
		debug.Logf("llm: stream scanner error: %v", err)
	}
	return out.String()
}

func handleAssistant(ev gjson.Result, out *strings.Builder, seen map[string]bool, toolNames map[string]string, opts Options) {
	ev.Get("message.content").ForEach(func(_, block gjson.Result) bool {
		switch block.Get("type").String() {
		case "text":
			text := block.Get("text").String()
			if text == "" {
				return true
			}
			out.WriteString(text)
			if opts.OnOutput != nil {
				opts.OnOutput(text)
			}
		case "tool_use":
			name := block.Get("name").String()
			id := block.Get("id").String()
			if name == "" || (id != "" && seen[id]) {
				return true
			}
			if id != "" {
				seen[id] = true
				toolNames[id] = name
			}
			if opts.OnToolUse != nil {
				opts.OnToolUse(name, block.Get("input").Raw)
			}
		}
		return true
	})
}

func handleUser(ev gjson.Result, toolNames map[string]string, opts Options) {
	if opts.OnToolResult == nil {
		return
	}
	ev.Get("message.content").ForEach(func(_, block gjson.Result) bool {
		if block.Get("type").String() != "tool_result" {
			return true
		}
		name := toolNames[block.Get("tool_use_id").String()]
		content := block.Get("content")
		text := content.String()
		if content.IsArray() {
			var parts []string
			content.ForEach(func(_, c gjson.Result) bool {
				if t := c.Get("text").String(); t != "" {
					parts = append(parts, t)
				}
				return true
			})
			text = strings.Join(parts, "\n")
		}
		opts.OnToolResult(name, text)
		return true
	})
}
