package services

import "testing"

func TestSanitizeContent(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain text", "hello world", "hello world"},
		{"script with payload", "<script>alert('x')</script>hi", "hi"},
		{"script attributes", `<script type="text/javascript">steal()</script>ok`, "ok"},
		{"style block", "<style>body{display:none}</style>text", "text"},
		{"simple tags stripped", "<b>bold</b> and <i>italic</i>", "bold and italic"},
		{"tag with attributes", `<a href="http://evil">link</a>`, "link"},
		{"nested markup", "<div><p>para</p></div>", "para"},
		{"whitespace trimmed", "  padded  ", "padded"},
		{"unclosed tag", "<b>dangling", "dangling"},
		{"mixed case script", "<SCRIPT>bad()</SCRIPT>safe", "safe"},
		{"empty after strip", "<script>only()</script>", ""},
		{"unicode preserved", "héllo <b>wörld</b> 你好", "héllo wörld 你好"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := sanitizeContent(tc.in); got != tc.want {
				t.Errorf("sanitizeContent(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestSanitizeContentIdempotent(t *testing.T) {
	inputs := []string{
		"hello world",
		"<script>alert('x')</script>hi",
		"<b>bold</b> text",
		"  spaced <i>out</i>  ",
		"a < b and c > d",
	}
	for _, in := range inputs {
		once := sanitizeContent(in)
		twice := sanitizeContent(once)
		if once != twice {
			t.Errorf("not idempotent for %q: %q vs %q", in, once, twice)
		}
	}
}
