package stash

import "testing"

func TestCursor_EncodeParseRoundTrip(t *testing.T) {
	c := Cursor{Timestamp: 1714680000000, URL: "https://example.com/a?x=1:2"}
	parsed, err := ParseCursor(c.Encode())
	if err != nil {
		t.Fatalf("ParseCursor failed: %v", err)
	}
	if parsed.Timestamp != c.Timestamp || parsed.URL != c.URL {
		t.Errorf("round trip mismatch: %+v != %+v", parsed, c)
	}
}

func TestParseCursor_Malformed(t *testing.T) {
	for _, token := range []string{"", "noseparator", ":leading", "abc:https://x"} {
		if _, err := ParseCursor(token); err == nil {
			t.Errorf("ParseCursor(%q) should fail", token)
		}
	}
}

func TestArticle_ChangedAt(t *testing.T) {
	a := Article{Timestamp: 100}
	if got := a.ChangedAt(); got != 100 {
		t.Errorf("unedited article: expected 100, got %d", got)
	}

	edited := int64(200)
	a.EditedAt = &edited
	if got := a.ChangedAt(); got != 200 {
		t.Errorf("edited article: expected 200, got %d", got)
	}

	deleted := int64(300)
	a.DeletedAt = &deleted
	if got := a.ChangedAt(); got != 300 {
		t.Errorf("deleted article: expected 300, got %d", got)
	}
}
