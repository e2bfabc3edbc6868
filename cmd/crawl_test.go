package cmd

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencourtdata/judgment-crawler/internal/crawler"
)

func baseConfig() crawler.Config {
	return crawler.Config{StartDate: "2008-01-01", DayStep: 3}
}

func TestPartitionerConfigDefaultsToResume(t *testing.T) {
	v := viper.New()
	cfg, err := partitionerConfig(v, baseConfig())
	require.NoError(t, err)

	assert.True(t, cfg.StartDate.IsZero())
	assert.True(t, cfg.EndDate.IsZero())
	assert.Equal(t, time.Date(2008, 1, 1, 0, 0, 0, 0, time.UTC), cfg.DefaultStart)
	assert.Equal(t, 3, cfg.DayStep)
}

func TestPartitionerConfigExplicitSpan(t *testing.T) {
	v := viper.New()
	v.Set("crawler.from_date", "2024-01-01")
	v.Set("crawler.end_date", "2024-01-31")
	v.Set("crawler.courts", []string{"27~1"})

	cfg, err := partitionerConfig(v, baseConfig())
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), cfg.StartDate)
	assert.Equal(t, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), cfg.EndDate)
	assert.Equal(t, []string{"27~1"}, cfg.Courts)
}

func TestPartitionerConfigRejectsBadSpans(t *testing.T) {
	cases := []struct {
		name string
		from string
		end  string
	}{
		{"end without from", "", "2024-01-31"},
		{"end before from", "2024-02-01", "2024-01-31"},
		{"bad from format", "01/01/2024", ""},
		{"bad end format", "2024-01-01", "31-01-2024"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := viper.New()
			v.Set("crawler.from_date", tc.from)
			v.Set("crawler.end_date", tc.end)
			_, err := partitionerConfig(v, baseConfig())
			assert.Error(t, err)
		})
	}
}
