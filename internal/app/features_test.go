package app

import (
	"slices"
	"testing"

	"appkit/internal/config"
	"appkit/pkg/logx"
)

func TestSelectFeatures(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		cfg  config.Config
		want []string
	}{
		{
			name: "defaults",
			want: []string{FeatureNegotiation, FeatureTiming},
		},
		{
			name: "everything",
			cfg: config.Config{
				RateLimit: config.RateLimitConfig{RatePerSec: 5},
				Report:    config.ReportConfig{Schedule: "@every 1m"},
				Storage:   &config.StorageConfig{Driver: "file", Path: "x"},
			},
			want: []string{FeatureNegotiation, FeatureTiming, FeatureReport, FeatureStorage, FeatureRateLimit},
		},
		{
			name: "storage without report is dropped",
			cfg: config.Config{
				Storage: &config.StorageConfig{Driver: "sqlite", Path: "x.db"},
			},
			want: []string{FeatureNegotiation, FeatureTiming},
		},
		{
			name: "report pulls timing back in",
			cfg: config.Config{
				Report:   config.ReportConfig{Schedule: "@every 1m"},
				Features: map[string]bool{FeatureTiming: false},
			},
			want: []string{FeatureNegotiation, FeatureTiming, FeatureReport},
		},
		{
			name: "debug listener",
			cfg: config.Config{
				Debug: config.DebugConfig{Addr: "127.0.0.1:0"},
			},
			want: []string{FeatureNegotiation, FeatureTiming, FeatureDebug},
		},
		{
			name: "forced off",
			cfg: config.Config{
				RateLimit: config.RateLimitConfig{RatePerSec: 5},
				Features:  map[string]bool{FeatureRateLimit: false, FeatureTiming: false},
			},
			want: []string{FeatureNegotiation},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := selectFeatures(&tc.cfg, logx.Nop())
			if err != nil {
				t.Fatalf("select: %v", err)
			}
			if !slices.Equal(got, tc.want) {
				t.Fatalf("features=%v want %v", got, tc.want)
			}
		})
	}
}
