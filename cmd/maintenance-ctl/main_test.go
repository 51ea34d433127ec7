package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

// runStats 用与 stats 命令相同的 flag 解析参数，返回 statsRange 的结果
func runStats(t *testing.T, args ...string) (from, to *time.Time, err error) {
	t.Helper()
	app := &cli.App{
		Name: "maintenance-ctl",
		Commands: []*cli.Command{{
			Name:  "stats",
			Flags: statsFlags(),
			Action: func(c *cli.Context) error {
				from, to, err = statsRange(c)
				return nil
			},
		}},
	}
	runErr := app.Run(append([]string{"maintenance-ctl", "stats"}, args...))
	if runErr != nil {
		return nil, nil, runErr
	}
	return from, to, err
}

func TestStatsRange_ParsesBothBounds(t *testing.T) {
	from, to, err := runStats(t, "--from", "2026-03-01T00:00:00Z", "--to", "2026-03-02T00:00:00Z")
	require.NoError(t, err)
	require.NotNil(t, from)
	require.NotNil(t, to)
	assert.True(t, from.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, to.Equal(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)))
}

func TestStatsRange_OmittedBoundIsNil(t *testing.T) {
	from, to, err := runStats(t, "--from", "2026-03-01T08:30:00+02:00")
	require.NoError(t, err)
	require.NotNil(t, from)
	assert.True(t, from.Equal(time.Date(2026, 3, 1, 6, 30, 0, 0, time.UTC)))
	assert.Nil(t, to)

	from, to, err = runStats(t)
	require.NoError(t, err)
	assert.Nil(t, from)
	assert.Nil(t, to)
}

func TestStatsRange_InvertedRangeRejected(t *testing.T) {
	_, _, err := runStats(t, "--from", "2026-03-02T00:00:00Z", "--to", "2026-03-01T00:00:00Z")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is after")
}

func TestStatsRange_InvalidTimestampRejected(t *testing.T) {
	_, _, err := runStats(t, "--from", "2026-03-01")
	assert.Error(t, err)
}
