package textutil

import "testing"

func TestStripHTML(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"simple tags", "<p>Hello <b>world</b></p>", "Hello world"},
		{"nested with script", "<div>keep <script>evil()</script>this</div>", "keep evil() this"},
		{"plain text", "no markup here", "no markup here"},
		{"whitespace collapse", "<p>a\n\n  b</p>", "a b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripHTML(tt.in); got != tt.want {
				t.Errorf("StripHTML(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCollapseWhitespace(t *testing.T) {
	if got := CollapseWhitespace("  a   b\n\tc  "); got != "a b c" {
		t.Errorf("CollapseWhitespace = %q", got)
	}
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{
			name: "filters stopwords and short tokens",
			in:   "The new Companion app launched on a Friday",
			want: []string{"companion", "app", "launched", "friday"},
		},
		{
			name: "splits on punctuation",
			in:   "OpenAI's Companion-Bot: v2.0 released!",
			want: []string{"openai", "companion", "bot", "released"},
		},
		{
			name: "empty input",
			in:   "",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Tokenize(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("Tokenize(%q) = %v, want %v", tt.in, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Tokenize(%q)[%d] = %q, want %q", tt.in, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"simple", "Character AI", "character-ai"},
		{"punctuation", "Replika: My AI Friend!", "replika-my-ai-friend"},
		{"already slug", "chai-app", "chai-app"},
		{"trailing punctuation", "Kindroid...", "kindroid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Slugify(tt.in); got != tt.want {
				t.Errorf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		limit int
		want  string
	}{
		{"under limit", "hello", 10, "hello"},
		{"exact limit", "hello", 5, "hello"},
		{"over limit", "hello world", 8, "hello w…"},
		{"zero limit", "hello", 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Truncate(tt.in, tt.limit); got != tt.want {
				t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.limit, got, tt.want)
			}
		})
	}
}
