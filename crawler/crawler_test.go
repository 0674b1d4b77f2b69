package crawler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const searchPageHTML = `
<html><body>
<div class="results">
  <div class="paper-item">
    <h3 class="paper-title"><a href="https://index.example.com/papers/1">Attention Is All You Need</a></h3>
    <span class="paper-authors">Vaswani et al.</span>
    <span class="paper-publisher">NeurIPS</span>
    <span class="paper-year">2017</span>
    <p class="paper-abstract">We propose the Transformer.</p>
    <a class="pdf-link" href="https://index.example.com/papers/1.pdf">PDF</a>
  </div>
  <div class="paper-item">
    <h3 class="paper-title"><a href="https://index.example.com/papers/2">No PDF Paper</a></h3>
    <span class="paper-year">not-a-year</span>
  </div>
  <div class="paper-item">
    <h3 class="paper-title"><a href="https://index.example.com/papers/3"></a></h3>
  </div>
</div>
</body></html>`

func TestParseSearchPage(t *testing.T) {
	items, err := ParseSearchPage(strings.NewReader(searchPageHTML))
	require.NoError(t, err)
	// the third item has no title and is dropped
	require.Len(t, items, 2)

	first := items[0]
	assert.Equal(t, "Attention Is All You Need", first.Title)
	assert.Equal(t, "Vaswani et al.", first.Author)
	assert.Equal(t, "NeurIPS", first.Publisher)
	assert.Equal(t, 2017, first.Year)
	assert.Equal(t, "https://index.example.com/papers/1", first.URL)
	assert.Equal(t, "https://index.example.com/papers/1.pdf", first.PDFURL)
	assert.Equal(t, "We propose the Transformer.", first.Abstract)

	second := items[1]
	assert.Equal(t, "No PDF Paper", second.Title)
	assert.Empty(t, second.PDFURL)
	assert.Zero(t, second.Year)
}

func TestParseSearchPageEmpty(t *testing.T) {
	items, err := ParseSearchPage(strings.NewReader("<html><body></body></html>"))
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "a_b_c", SanitizeFilename(`a\b:c`))
	assert.Equal(t, "one two", SanitizeFilename("one \t\n two"))
	assert.Equal(t, "untitled", SanitizeFilename("   "))
	assert.LessOrEqual(t, len(SanitizeFilename(strings.Repeat("x", 500))), 150)
}
