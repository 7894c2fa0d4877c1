package htmltext

import "testing"

func TestStrip(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "just text", "just text"},
		{"inline", "<p>Hello <b>world</b></p>", "Hello world"},
		{"entities", "<p>Fish &amp; chips &lt;3</p>", "Fish & chips <3"},
		{"blocks", "<h1>Title</h1><p>one</p><p>two</p>", "Title\none\ntwo"},
		{"br", "a<br>b<br/>c", "a\nb\nc"},
		{"script dropped", "<p>keep</p><script>var x = 1;</script>", "keep"},
		{"zotero wrapper", `<div class="zotero-note znv1"><p>Note body</p></div>`, "Note body"},
		{"unicode", "<p>Müller &eacute;tude</p>", "Müller étude"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Strip(tt.in); got != tt.want {
				t.Errorf("Strip(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
