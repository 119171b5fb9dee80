package daemon

import "testing"

func TestHasEligibleExtension(t *testing.T) {
	exts := []string{".txt", ".md"}
	cases := []struct {
		path string
		want bool
	}{
		{"/a/b/note.txt", true},
		{"/a/b/NOTE.TXT", true},
		{"/a/b/readme.md", true},
		{"/a/b/image.png", false},
		{"/a/b/noext", false},
	}
	for _, c := range cases {
		if got := hasEligibleExtension(c.path, exts); got != c.want {
			t.Errorf("hasEligibleExtension(%q) = %v, want %v", c.path, got, c.want)
		}
	}
}
