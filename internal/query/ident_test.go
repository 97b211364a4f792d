package query

import "testing"

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Medicare Part D Spending", "medicare_part_d_spending"},
		{"already_clean", "already_clean"},
		{"2023-spending", "t_2023_spending"},
		{"weird!!chars??here", "weird_chars_here"},
		{"  ", "t"},
		{"Trailing.", "trailing"},
	}
	for _, tt := range tests {
		if got := SanitizeName(tt.in); got != tt.want {
			t.Errorf("SanitizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestQuoteIdent(t *testing.T) {
	if got := QuoteIdent(`plain`); got != `"plain"` {
		t.Errorf("QuoteIdent = %s", got)
	}
	if got := QuoteIdent(`has"quote`); got != `"has""quote"` {
		t.Errorf("QuoteIdent = %s", got)
	}
}
