package markdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToPlainText(t *testing.T) {
	tests := []struct {
		name string
		md   string
		want []string
		not  []string
	}{
		{
			name: "bold and italics stripped",
			md:   "AAPL is **up** and *strong* today",
			want: []string{"AAPL is up and strong today"},
		},
		{
			name: "headings flattened",
			md:   "# Forecast\nThe price should rise.",
			want: []string{"Forecast", "The price should rise."},
			not:  []string{"#", "<h1>"},
		},
		{
			name: "list items become bullets",
			md:   "- first point\n- second point",
			want: []string{"• first point", "• second point"},
			not:  []string{"<li>"},
		},
		{
			name: "entities unescaped",
			md:   "P&L is \"positive\"",
			want: []string{"P&L", "\"positive\""},
			not:  []string{"&amp;", "&quot;"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToPlainText(tt.md)
			for _, w := range tt.want {
				assert.Contains(t, got, w)
			}
			for _, n := range tt.not {
				assert.NotContains(t, got, n)
			}
		})
	}
}

func TestToPlainText_Empty(t *testing.T) {
	assert.Equal(t, "", ToPlainText(""))
}
