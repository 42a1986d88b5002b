package fit

import (
	"errors"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
		check   func(*testing.T, Config)
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "zero threads", mutate: func(c *Config) { c.Threads = 0 }, wantErr: errAny},
		{name: "zero iterations", mutate: func(c *Config) { c.Iterations = 0 }, wantErr: errAny},
		{name: "negative max rounds", mutate: func(c *Config) { c.MaxRounds = -1 }, wantErr: errAny},
		{name: "unknown color", mutate: func(c *Config) { c.ColorPolicy = "median" }, wantErr: ErrUnknownColorPolicy},
		{name: "unknown proposer", mutate: func(c *Config) { c.Proposer = "annealing" }, wantErr: ErrUnknownProposer},
		{name: "unknown seams", mutate: func(c *Config) { c.Seams = "both" }, wantErr: ErrUnknownSeamPolicy},
		{
			name:   "empty seams default to unique",
			mutate: func(c *Config) { c.Seams = "" },
			check: func(t *testing.T, c Config) {
				if c.Seams != SeamsUnique {
					t.Errorf("Expected seams %q, got %q", SeamsUnique, c.Seams)
				}
			},
		},
		{
			name: "mayfly population raised",
			mutate: func(c *Config) {
				c.Proposer = "mayfly"
				c.MayflyIters = 0
				c.MayflyPop = 5
			},
			check: func(t *testing.T, c Config) {
				if c.MayflyPop != 20 || c.MayflyIters != 10 {
					t.Errorf("Expected mayfly 10/20, got %d/%d", c.MayflyIters, c.MayflyPop)
				}
			},
		},
		{
			name: "convergence without patience",
			mutate: func(c *Config) {
				c.Convergence = ConvergenceConfig{Enabled: true}
			},
			wantErr: errAny,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			switch {
			case tt.wantErr == nil && err != nil:
				t.Fatalf("Unexpected error: %v", err)
			case tt.wantErr == errAny && err == nil:
				t.Fatal("Expected error, got nil")
			case tt.wantErr != nil && tt.wantErr != errAny && !errors.Is(err, tt.wantErr):
				t.Fatalf("Expected %v, got %v", tt.wantErr, err)
			}

			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

// errAny matches any non-nil error in table tests
var errAny = errors.New("any error")
