package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSearchParamsValidate(t *testing.T) {
	t.Run("query required", func(t *testing.T) {
		params := SearchParams{}
		errs := params.Validate()
		assert.Contains(t, errs, "Query")
	})

	t.Run("valid minimal request", func(t *testing.T) {
		params := SearchParams{Query: "transformers"}
		assert.Nil(t, params.Validate())
	})

	t.Run("weights out of range", func(t *testing.T) {
		params := SearchParams{Query: "q", SemanticWeight: 1.5}
		errs := params.Validate()
		assert.Contains(t, errs, "SemanticWeight")
	})

	t.Run("limit capped", func(t *testing.T) {
		params := SearchParams{Query: "q", Limit: 1000}
		errs := params.Validate()
		assert.Contains(t, errs, "Limit")
	})

	t.Run("explicit zero top_k is valid", func(t *testing.T) {
		zero := 0
		params := SearchParams{Query: "q", TopK: &zero}
		assert.Nil(t, params.Validate())
	})
}

func TestPaperCreateParamsValidate(t *testing.T) {
	t.Run("title required", func(t *testing.T) {
		params := PaperCreateParams{Author: "someone"}
		errs := params.Validate()
		assert.Contains(t, errs, "Title")
	})

	t.Run("bad url rejected", func(t *testing.T) {
		params := PaperCreateParams{Title: "t", URL: "not a url"}
		errs := params.Validate()
		assert.Contains(t, errs, "URL")
	})

	t.Run("year range", func(t *testing.T) {
		params := PaperCreateParams{Title: "t", Year: 1500}
		errs := params.Validate()
		assert.Contains(t, errs, "Year")
	})
}
