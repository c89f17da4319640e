package sourcecontrol

import "testing"

func TestParseMessage(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Message
	}{
		{
			name: "release commit",
			raw:  "Release v1.2.0\n\n# Changelog\n- #12 Fix login\n\n[skip ci]",
			want: Message{Subject: "Release v1.2.0", Body: "# Changelog\n- #12 Fix login"},
		},
		{
			name: "subject only",
			raw:  "Release v1.2.0 [skip ci]",
			want: Message{Subject: "Release v1.2.0"},
		},
		{
			name: "crlf",
			raw:  "Hotfix\r\n\r\nbody text\r\n",
			want: Message{Subject: "Hotfix", Body: "body text"},
		},
		{
			name: "empty",
			raw:  "",
			want: Message{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseMessage(tt.raw); got != tt.want {
				t.Errorf("ParseMessage() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestReleaseMessage(t *testing.T) {
	if got, want := ReleaseMessage("v1.0.0", ""), "Release v1.0.0\n\n[skip ci]"; got != want {
		t.Errorf("ReleaseMessage() = %q, want %q", got, want)
	}

	got := ReleaseMessage("v1.0.0-alpha3", "# Changelog\n")
	want := "Release v1.0.0-alpha3\n\n# Changelog\n\n[skip ci]"
	if got != want {
		t.Errorf("ReleaseMessage() = %q, want %q", got, want)
	}

	if msg := ParseMessage(got); msg.Subject != "Release v1.0.0-alpha3" || msg.Body != "# Changelog" {
		t.Errorf("round trip = %+v", msg)
	}
}

func TestSubpackageMessage(t *testing.T) {
	if got, want := SubpackageMessage("v2.0.0"), "Update Types to v2.0.0\n\n[skip ci]"; got != want {
		t.Errorf("SubpackageMessage() = %q, want %q", got, want)
	}
}
