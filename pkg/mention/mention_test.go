package mention

import "testing"

func TestMentionsHandle(t *testing.T) {
	tests := []struct {
		text   string
		handle string
		want   bool
	}{
		{"@bot what do you think?", "bot", true},
		{"@Bot what do you think?", "bot", true},
		{"@bot hello", "@bot", true},
		{"no handle here", "bot", false},
		{"bot without at-sign", "bot", false},
		{"@bot hi", "", false},
		{"", "bot", false},
	}
	for _, tc := range tests {
		if got := MentionsHandle(tc.text, tc.handle); got != tc.want {
			t.Fatalf("MentionsHandle(%q, %q) = %v, want %v", tc.text, tc.handle, got, tc.want)
		}
	}
}

func TestIsRepost(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"RT @alice: great thread", true},
		{"  RT @alice copy", true},
		{"START @alice is not a repost", false},
		{"mentioning RT @alice mid-text", false},
	}
	for _, tc := range tests {
		if got := IsRepost(tc.text); got != tc.want {
			t.Fatalf("IsRepost(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}

func TestIsReply(t *testing.T) {
	if (Mention{InReplyToID: "t0"}).IsReply() != true {
		t.Fatalf("mention with parent id is a reply")
	}
	if (Mention{}).IsReply() != false {
		t.Fatalf("fresh mention is not a reply")
	}
}
