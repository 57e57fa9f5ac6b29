package settings

import "testing"

func TestChannelAllowed(t *testing.T) {
	cases := []struct {
		name      string
		settings  Settings
		channelID string
		want      bool
	}{
		{"no lists allows everything", Settings{}, "vc-1", true},
		{"block list wins", Settings{BlockedChannelIDs: []string{"vc-1"}}, "vc-1", false},
		{"allow list enforced", Settings{AllowedChannelIDs: []string{"vc-2"}}, "vc-1", false},
		{"allow list membership", Settings{AllowedChannelIDs: []string{"vc-1"}}, "vc-1", true},
		{
			"blocked even when allowlisted",
			Settings{AllowedChannelIDs: []string{"vc-1"}, BlockedChannelIDs: []string{"vc-1"}},
			"vc-1",
			false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.settings.ChannelAllowed(tc.channelID); got != tc.want {
				t.Fatalf("ChannelAllowed(%q) = %v, want %v", tc.channelID, got, tc.want)
			}
		})
	}
}
