package gobayeux

import "testing"

func TestChannel_Type(t *testing.T) {
	testCases := []struct {
		channel Channel
		want    ChannelType
	}{
		{"/meta/connect", MetaChannel},
		{"/service/chat", ServiceChannel},
		{"/foo/bar", BroadcastChannel},
	}
	for _, tc := range testCases {
		if got := tc.channel.Type(); got != tc.want {
			t.Errorf("Type(%q) = %v, want %v", tc.channel, got, tc.want)
		}
	}
}

func TestChannel_IsValid(t *testing.T) {
	testCases := []struct {
		channel Channel
		want    bool
	}{
		{"/foo/bar", true},
		{"/foo/*", true},
		{"/foo/**", true},
		{"foo/bar", false},
		{"/foo/*/bar", false},
		{"/foo/b*r", false},
	}
	for _, tc := range testCases {
		if got := tc.channel.IsValid(); got != tc.want {
			t.Errorf("IsValid(%q) = %v, want %v", tc.channel, got, tc.want)
		}
	}
}

func TestChannel_Match(t *testing.T) {
	testCases := []struct {
		name    string
		pattern Channel
		other   Channel
		want    bool
	}{
		{"exact match", "/foo/bar", "/foo/bar", true},
		{"exact mismatch", "/foo/bar", "/foo/baz", false},
		{"single-level glob matches immediate child", "/foo/*", "/foo/bar", true},
		{"single-level glob doesn't match grandchild", "/foo/*", "/foo/bar/baz", false},
		{"recursive glob matches child", "/foo/**", "/foo/bar", true},
		{"recursive glob matches grandchild", "/foo/**", "/foo/bar/baz", true},
		{"recursive glob doesn't match unrelated prefix", "/foo/**", "/bar/baz", false},
	}
	for _, testCase := range testCases {
		tc := testCase
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.pattern.Match(tc.other); got != tc.want {
				t.Errorf("Match(%q, %q) = %v, want %v", tc.pattern, tc.other, got, tc.want)
			}
		})
	}
}

func TestChannel_dispatchPatterns(t *testing.T) {
	got := Channel("/foo/bar/baz").dispatchPatterns()
	want := []Channel{"/foo/bar/*", "/foo/bar/**", "/foo/**", "//**"}
	if len(got) != len(want) {
		t.Fatalf("dispatchPatterns() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("dispatchPatterns()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
