package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreview(t *testing.T) {
	now := time.Date(2024, 6, 7, 12, 0, 0, 0, time.UTC) // Friday

	times, err := preview("30 7 * * 1", "Europe/Berlin", 2, now)
	require.NoError(t, err)
	require.Len(t, times, 2)
	assert.Equal(t, time.Date(2024, 6, 10, 5, 30, 0, 0, time.UTC), times[0].UTC())
	assert.Equal(t, time.Date(2024, 6, 17, 5, 30, 0, 0, time.UTC), times[1].UTC())

	_, err = preview("61 * * * *", "UTC", 1, now)
	assert.Error(t, err)

	_, err = preview("* * * * *", "Mars/Olympus", 1, now)
	assert.Error(t, err)

	_, err = preview("* * * * *", "UTC", 0, now)
	assert.Error(t, err)
}

func TestCronPreviewCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"cron", "preview", "0 9 * * *", "--tz", "UTC", "-n", "3"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	require.NoError(t, rootCmd.Execute())
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Len(t, lines, 3)
	for _, l := range lines {
		assert.Contains(t, l, "T09:00:00Z")
	}
}
