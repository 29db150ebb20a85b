package debug

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogf(t *testing.T) {
	var buf bytes.Buffer
	restore := SetOutput(&buf)
	Logf("store: saved %s", "prd.json")
	restore()

	assert.Contains(t, buf.String(), "] store: saved prd.json\n")
	assert.Contains(t, buf.String(), "[debug ")

	buf.Reset()
	Logf("after restore")
	assert.Empty(t, buf.String())
}

func TestEnvEnabled(t *testing.T) {
	for v, want := range map[string]bool{"1": true, "true": true, "": false, "0": false, "yes": false} {
		assert.Equal(t, want, envEnabled(v), "PRDLOOP_DEBUG=%q", v)
	}
}
