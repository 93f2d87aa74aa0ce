package rewardsapi

import (
	"testing"
)

func TestValidateAppliesDefaults(t *testing.T) {
	t.Parallel()
	cfg := Config{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.ListenAddr != defaultListenAddr {
		t.Fatalf("expected default listen addr, got %q", cfg.ListenAddr)
	}
	if cfg.DatabaseURL != defaultDatabaseURL {
		t.Fatalf("expected default database url, got %q", cfg.DatabaseURL)
	}
	if cfg.Timezone != defaultTimezone {
		t.Fatalf("expected default timezone, got %q", cfg.Timezone)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != defaultAllowedOrigin {
		t.Fatalf("expected default origin, got %v", cfg.AllowedOrigins)
	}
}

func TestValidateRejectsBadTimezone(t *testing.T) {
	t.Parallel()
	cfg := Config{Timezone: "Mars/Olympus_Mons"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown timezone")
	}
}

func TestValidateKeepsExplicitValues(t *testing.T) {
	t.Parallel()
	cfg := Config{
		ListenAddr:  ":8081",
		DatabaseURL: "postgres://localhost/rewards",
		Timezone:    "America/New_York",
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.ListenAddr != ":8081" || cfg.DatabaseURL != "postgres://localhost/rewards" {
		t.Fatalf("explicit values overridden: %+v", cfg)
	}
	location, err := cfg.Location()
	if err != nil {
		t.Fatalf("location: %v", err)
	}
	if location.String() != "America/New_York" {
		t.Fatalf("unexpected location %v", location)
	}
}

func TestParseAllowedOrigins(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name  string
		input string
		want  []string
	}{
		{name: "empty", input: "   ", want: []string{}},
		{name: "single", input: "http://a", want: []string{"http://a"}},
		{name: "trims and drops blanks", input: " http://a , , http://b ", want: []string{"http://a", "http://b"}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := ParseAllowedOrigins(tc.input)
			if len(got) != len(tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
			for position := range got {
				if got[position] != tc.want[position] {
					t.Fatalf("expected %v, got %v", tc.want, got)
				}
			}
		})
	}
}
