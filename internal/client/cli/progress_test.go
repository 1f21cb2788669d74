package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgressPrinter_Lines(t *testing.T) {
	var buf bytes.Buffer
	p := newProgressPrinter(&buf, false)

	for _, done := range []int64{0, 5, 10, 15, 99, 100} {
		p.Update(done, 100)
	}
	p.Done()

	assert.Equal(t, []string{
		"progress: 0% (0/100 bytes)",
		"progress: 10% (10/100 bytes)",
		"progress: 99% (99/100 bytes)",
		"progress: 100% (100/100 bytes)",
	}, strings.Split(strings.TrimSpace(buf.String()), "\n"))
}

func TestProgressPrinter_TerminalRedrawsInPlace(t *testing.T) {
	var buf bytes.Buffer
	p := newProgressPrinter(&buf, true)

	p.Update(0, 2048)
	p.Update(1024, 2048)
	p.Done()

	out := buf.String()
	assert.Equal(t, 2, strings.Count(out, "\r"))
	assert.Contains(t, out, "[===============               ]  50%  1.0 KiB / 2.0 KiB")
	assert.True(t, strings.HasSuffix(out, "\n"))
}

func TestProgressPrinter_ZeroByteFile(t *testing.T) {
	var buf bytes.Buffer
	p := newProgressPrinter(&buf, false)
	p.Update(0, 0)
	assert.Equal(t, "progress: 100% (0/0 bytes)\n", buf.String())
}

func TestIsTerminalSeam(t *testing.T) {
	old := isTerminal
	t.Cleanup(func() { isTerminal = old })

	isTerminal = func(int) bool { return true }
	assert.True(t, isTerminal(1))
}
