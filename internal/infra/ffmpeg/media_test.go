package ffmpeg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProbeOutput(t *testing.T) {
	out := "width=1920\nheight=1080\nr_frame_rate=30000/1001\nduration=12.480000\n"

	info, err := parseProbeOutput(out)
	require.NoError(t, err)
	assert.Equal(t, 1920, info.Width)
	assert.Equal(t, 1080, info.Height)
	assert.InDelta(t, 29.97, info.FPS, 0.01)
	assert.InDelta(t, 12.48, info.Duration, 0.001)
}

func TestParseProbeOutputIgnoresNoise(t *testing.T) {
	out := "width=640\nheight=480\n\nsome log line without equals\nr_frame_rate=25/1\nduration=3.0\n"

	info, err := parseProbeOutput(out)
	require.NoError(t, err)
	assert.Equal(t, 640, info.Width)
	assert.Equal(t, 25.0, info.FPS)
}

func TestParseProbeOutputIncomplete(t *testing.T) {
	cases := []string{
		"",
		"width=1920\nheight=1080\n",             // no frame rate
		"width=0\nheight=1080\nr_frame_rate=25/1\n", // zero width
	}
	for _, out := range cases {
		_, err := parseProbeOutput(out)
		assert.Error(t, err, "input %q", out)
	}
}

func TestParseRate(t *testing.T) {
	v, err := parseRate("30000/1001")
	require.NoError(t, err)
	assert.InDelta(t, 29.97, v, 0.01)

	v, err = parseRate("25/1")
	require.NoError(t, err)
	assert.Equal(t, 25.0, v)

	v, err = parseRate("24")
	require.NoError(t, err)
	assert.Equal(t, 24.0, v)

	_, err = parseRate("30000/0")
	assert.Error(t, err)

	_, err = parseRate("abc/def")
	assert.Error(t, err)
}
