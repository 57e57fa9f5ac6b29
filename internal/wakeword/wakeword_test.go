package wakeword

import "testing"

func TestMatchExactTier(t *testing.T) {
	cases := []struct {
		name       string
		transcript string
		configured string
		want       bool
	}{
		{"full name", "clanker conk can you answer this?", "clanker conk", true},
		{"merged tokens", "clankerconk can you answer this?", "clanker conk", true},
		{"primary token with punctuation", "clanker?", "clanker conk", true},
		{"secondary token alone", "conk can you answer this?", "clanker conk", false},
		{"near miss without fuzzy tier", "clunker can you answer this?", "clanker conk", false},
		{"unrelated sentence", "i sent you a link yesterday", "clanker conk", false},
		{"name with generic suffix", "sparky bot can you help", "sparky bot", true},
		{"primary without generic suffix", "sparky can you help", "sparky bot", true},
		{"vowel swap without fuzzy tier", "sporky can you help", "sparky bot", false},
		{"generic token alone", "that bot is broken again", "sparky bot", false},
		{"empty transcript", "", "sparky bot", false},
		{"empty name", "sparky can you help", "", false},
		{"accented transcript", "clánker, are you there?", "clanker conk", true},
		{"case insensitive", "CLANKER CONK hello", "Clanker Conk", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Match(tc.transcript, tc.configured, StrictnessExact)
			if got != tc.want {
				t.Fatalf("Match(%q, %q, exact) = %v, want %v", tc.transcript, tc.configured, got, tc.want)
			}
		})
	}
}

func TestMatchFuzzyTier(t *testing.T) {
	cases := []struct {
		name       string
		transcript string
		configured string
		want       bool
	}{
		{"vowel swap", "clunker can you answer this?", "clanker conk", true},
		{"vowel swap short name", "sporky can you help", "sparky bot", true},
		{"suffix nickname", "clankers get over here", "clanker conk", true},
		{"er to y contraction", "hey clanky what's up", "clanker conk", true},
		{"different first letter", "flanker can you answer", "clanker conk", false},
		{"shared prefix divergence", "clandestine operations tonight", "clanker conk", false},
		{"too short to resemble", "clan is gathering", "clanker conk", false},
		{"unrelated sentence", "i sent you a link yesterday", "clanker conk", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Match(tc.transcript, tc.configured, StrictnessFuzzy)
			if got != tc.want {
				t.Fatalf("Match(%q, %q, fuzzy) = %v, want %v", tc.transcript, tc.configured, got, tc.want)
			}
		})
	}
}

func TestPrimaryToken(t *testing.T) {
	cases := []struct {
		configured string
		want       string
	}{
		{"clanker conk", "clanker"},
		{"sparky bot", "sparky"},
		{"AI Assistant", ""},
		{"Bo AI", ""},
		{"Ada", ""},
	}
	for _, tc := range cases {
		if got := PrimaryToken(tc.configured); got != tc.want {
			t.Fatalf("PrimaryToken(%q) = %q, want %q", tc.configured, got, tc.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Clánker-Conk?", "clanker conk"},
		{"  HELLO,   world!! ", "hello world"},
		{"déjà vu", "deja vu"},
	}
	for _, tc := range cases {
		if got := Normalize(tc.in); got != tc.want {
			t.Fatalf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
