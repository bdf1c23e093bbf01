package scope

import (
	"net/url"
	"testing"
)

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("url.Parse(%q): %v", raw, err)
	}
	return u
}

// =============================================================================
// Checker Tests
// =============================================================================

func TestNewChecker(t *testing.T) {
	tests := []struct {
		name    string
		start   string
		rules   Rules
		wantErr bool
	}{
		{"valid", "http://www.example.com/", Rules{SameHostOnly: true}, false},
		{"no host", "/relative", Rules{}, true},
		{"bad pattern", "http://example.com/", Rules{ExcludePatterns: []string{"("}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewChecker(mustParse(t, tt.start), tt.rules)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewChecker() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestChecker_BaseHost(t *testing.T) {
	c, _ := NewChecker(mustParse(t, "http://WWW.Example.com:8080/"), Rules{})
	if c.BaseHost() != "example.com" {
		t.Errorf("BaseHost() = %q, want example.com", c.BaseHost())
	}
}

func TestChecker_Check(t *testing.T) {
	c, err := NewChecker(mustParse(t, "http://example.com/"), Rules{
		SameHostOnly:    true,
		ExcludePatterns: []string{`/logout`},
	})
	if err != nil {
		t.Fatalf("NewChecker() error = %v", err)
	}

	tests := []struct {
		name string
		url  *url.URL
		want Decision
	}{
		{"same host", mustParse(t, "http://example.com/a"), Accept},
		{"www variant", mustParse(t, "http://www.example.com/a"), Accept},
		{"other port same host", mustParse(t, "http://example.com:8080/a"), Accept},
		{"other host", mustParse(t, "http://other.com/"), RejectHost},
		{"subdomain", mustParse(t, "http://blog.example.com/"), RejectHost},
		{"https", mustParse(t, "https://example.com/"), RejectScheme},
		{"ftp", mustParse(t, "ftp://example.com/"), RejectScheme},
		{"no host", mustParse(t, "mailto:a@example.com"), RejectInvalid},
		{"nil", nil, RejectInvalid},
		{"excluded", mustParse(t, "http://example.com/logout"), RejectExcluded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Check(tt.url); got != tt.want {
				t.Errorf("Check() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestChecker_AnyHost(t *testing.T) {
	c, _ := NewChecker(mustParse(t, "http://example.com/"), Rules{SameHostOnly: false})

	if got := c.Check(mustParse(t, "http://other.com/")); got != Accept {
		t.Errorf("other host: Check() = %v, want Accept", got)
	}
	if got := c.Check(mustParse(t, "https://other.com/")); got == Accept {
		t.Error("https must still be rejected")
	}
}

func TestDecision_String(t *testing.T) {
	tests := []struct {
		d    Decision
		want string
	}{
		{Accept, "accept"},
		{RejectInvalid, "invalid"},
		{RejectScheme, "scheme"},
		{RejectHost, "host"},
		{RejectExcluded, "excluded"},
		{Decision(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.d.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

// =============================================================================
// DedupKey Tests
// =============================================================================

func TestDedupKey(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"http://Example.com", "http://example.com/"},
		{"http://example.com:80/a", "http://example.com/a"},
		{"http://example.com:8080/a", "http://example.com:8080/a"},
		{"https://example.com:443/a", "https://example.com/a"},
		{"http://example.com/a?b=1#frag", "http://example.com/a?b=1"},
		{"HTTP://example.com/A", "http://example.com/A"},
		{"http://[::1]:80/", "http://[::1]/"},
	}
	for _, tt := range tests {
		if got := DedupKey(mustParse(t, tt.in)); got != tt.want {
			t.Errorf("DedupKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDedupKey_Idempotent(t *testing.T) {
	a := DedupKey(mustParse(t, "http://example.com/x#one"))
	b := DedupKey(mustParse(t, "http://EXAMPLE.com:80/x#two"))
	if a != b {
		t.Errorf("keys differ: %q vs %q", a, b)
	}
}
