package presenter

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestPresenter() (*TerminalPresenter, *bytes.Buffer, *bytes.Buffer) {
	output := &bytes.Buffer{}
	errorOutput := &bytes.Buffer{}
	return NewWithOptions(output, errorOutput, ColorNever), output, errorOutput
}

func TestError(t *testing.T) {
	p, output, errorOutput := newTestPresenter()

	p.Error(errors.New("revision not found"), "reconcile failed")

	assert.Empty(t, output.String())
	assert.Equal(t, "[ERROR] reconcile failed: revision not found\n", errorOutput.String())
}

func TestErrorWithoutContext(t *testing.T) {
	p, _, errorOutput := newTestPresenter()

	p.Error(errors.New("revision not found"), "")

	assert.Equal(t, "[ERROR] revision not found\n", errorOutput.String())
}

func TestErrorNil(t *testing.T) {
	p, _, errorOutput := newTestPresenter()

	p.Error(nil, "should not print")

	assert.Empty(t, errorOutput.String())
}

func TestSuccess(t *testing.T) {
	p, output, _ := newTestPresenter()

	p.Success("skills/api-style converged")

	assert.Equal(t, "✓ skills/api-style converged\n", output.String())
}

func TestQuietSuppressesOutput(t *testing.T) {
	p, output, errorOutput := newTestPresenter()
	p.SetQuiet(true)

	p.Success("hidden")
	p.Warning("hidden")
	p.Info("hidden")
	p.Section("hidden")
	p.Separator()
	p.Stats(&SizeStats{Path: "a", BytesBefore: 1, BytesAfter: 2})

	assert.Empty(t, output.String())

	// Errors are always shown, even in quiet mode.
	p.Error(errors.New("boom"), "")
	assert.Equal(t, "[ERROR] boom\n", errorOutput.String())

	assert.True(t, p.IsQuiet())
	p.SetQuiet(false)
	assert.False(t, p.IsQuiet())
}

func TestSection(t *testing.T) {
	p, output, _ := newTestPresenter()

	p.Section("Plan")

	assert.Equal(t, "Plan\n----\n", output.String())
}

func TestStats(t *testing.T) {
	p, output, _ := newTestPresenter()

	p.Stats(&SizeStats{
		Path:        "skills/api-style/sources/docs",
		BytesBefore: 10 * 1024 * 1024,
		BytesAfter:  2 * 1024 * 1024,
	})

	assert.Equal(t, "[Size] skills/api-style/sources/docs: before 10 MiB | after 2.0 MiB | delta -8.0 MiB\n", output.String())
}

func TestStatsNil(t *testing.T) {
	p, output, _ := newTestPresenter()

	p.Stats(nil)

	assert.Empty(t, output.String())
}

func TestFormatDelta(t *testing.T) {
	assert.Equal(t, "+1.0 KiB", FormatDelta(1024))
	assert.Equal(t, "-1.0 KiB", FormatDelta(-1024))
	assert.Equal(t, "+0 B", FormatDelta(0))
}
