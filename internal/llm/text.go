package llm

import (
	"bufio"
	"io"
	"strings"

	"github.com/alexander-akhmetov/prdloop/internal/debug"
)

const maxLineSize = 1024 * 1024

// processTextOutput reads plain-text lines from r, calls opts.OnOutput for
// each line, and returns the accumulated output.
func processTextOutput(r io.Reader, opts Options) string {
	var output strings.Builder
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, maxLineSize), maxLineSize)

	for scanner.Scan() {
		line := scanner.Text() + "\n"
		output.WriteString(line)
		if opts.OnOutput != nil {
			opts.OnOutput(line)
		}
	}

	if err := scanner.Err(); err != nil {
		debug.Logf("llm: text scanner error: %v", err)
	}

	return output.String()
}
