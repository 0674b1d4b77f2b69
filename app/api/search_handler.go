package api

import (
	"strings"

	"papers/search"
	"papers/store"
	"papers/types"

	"github.com/gofiber/fiber/v2"
)

type SearchHandler struct {
	engine *search.Engine
	store  store.DBStorer
}

func NewSearchHandler(engine *search.Engine, s store.DBStorer) *SearchHandler {
	return &SearchHandler{
		engine: engine,
		store:  s,
	}
}

// HandleHybridSearch fuses vector and full-text relevance under the
// requested (or default 0.7/0.3) weights.
func (h *SearchHandler) HandleHybridSearch(c *fiber.Ctx) error {
	params, opts, err := parseSearchRequest(c)
	if err != nil {
		return err
	}

	result, err := h.engine.Search(c.UserContext(), params.Query, opts)
	if err != nil {
		return err
	}
	return c.JSON(result)
}

func (h *SearchHandler) HandleSemanticSearch(c *fiber.Ctx) error {
	params, opts, err := parseSearchRequest(c)
	if err != nil {
		return err
	}

	result, err := h.engine.SemanticSearch(c.UserContext(), params.Query, opts)
	if err != nil {
		return err
	}
	return c.JSON(result)
}

func (h *SearchHandler) HandleTextSearch(c *fiber.Ctx) error {
	params, opts, err := parseSearchRequest(c)
	if err != nil {
		return err
	}

	result, err := h.engine.TextSearch(c.UserContext(), params.Query, opts)
	if err != nil {
		return err
	}
	return c.JSON(result)
}

// HandleSuggestions completes a partial query from indexed titles.
func (h *SearchHandler) HandleSuggestions(c *fiber.Ctx) error {
	q := strings.TrimSpace(c.Query("q"))
	if len(q) < 2 {
		return c.JSON(fiber.Map{"suggestions": []string{}})
	}
	limit := c.QueryInt("limit", 5)
	if limit < 1 || limit > 10 {
		limit = 5
	}

	suggestions, err := h.store.TitleSuggestions(c.UserContext(), q, limit)
	if err != nil {
		// Suggestions are best effort; an empty list beats a 500.
		suggestions = nil
	}
	if suggestions == nil {
		suggestions = []string{}
	}
	return c.JSON(fiber.Map{"suggestions": suggestions})
}

func parseSearchRequest(c *fiber.Ctx) (*types.SearchParams, search.Options, error) {
	var params types.SearchParams
	if c.BodyParser(&params) != nil {
		return nil, search.Options{}, ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return nil, search.Options{}, types.NewValidationError(errors)
	}

	opts := search.DefaultOptions()
	opts.SemanticWeight = params.SemanticWeight
	opts.TextWeight = params.TextWeight
	if params.TopK != nil {
		opts.TopK = *params.TopK
	}
	if params.Offset > 0 {
		opts.Offset = params.Offset
	}
	if params.Limit > 0 {
		opts.Limit = params.Limit
	}
	return &params, opts, nil
}
