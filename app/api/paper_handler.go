package api

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"papers/store"
	"papers/types"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type PaperHandler struct {
	store store.DBStorer
}

func NewPaperHandler(s store.DBStorer) *PaperHandler {
	return &PaperHandler{
		store: s,
	}
}

func (h *PaperHandler) HandleListPapers(c *fiber.Ctx) error {
	q := strings.TrimSpace(c.Query("q"))
	offset := c.QueryInt("offset", 0)
	limit := c.QueryInt("limit", 10)
	if offset < 0 || limit < 1 || limit > 100 {
		return ErrBadRequest()
	}

	papers, err := h.store.ListPapers(c.UserContext(), q, offset, limit)
	if err != nil {
		return err
	}
	if papers == nil {
		papers = []types.Paper{}
	}
	return c.JSON(papers)
}

func (h *PaperHandler) HandleRecentPapers(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 10)
	if limit < 1 || limit > 50 {
		return ErrBadRequest()
	}

	papers, err := h.store.RecentPapers(c.UserContext(), limit)
	if err != nil {
		return err
	}
	if papers == nil {
		papers = []types.Paper{}
	}
	return c.JSON(papers)
}

func (h *PaperHandler) HandlePaperStats(c *fiber.Ctx) error {
	stats, err := h.store.PaperStats(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(stats)
}

func (h *PaperHandler) HandlePapersByAuthor(c *fiber.Ctx) error {
	author := strings.TrimSpace(c.Params("author"))
	if author == "" {
		return ErrBadRequest()
	}
	offset := c.QueryInt("offset", 0)
	limit := c.QueryInt("limit", 10)
	if offset < 0 || limit < 1 || limit > 100 {
		return ErrBadRequest()
	}

	papers, err := h.store.ListPapersByAuthor(c.UserContext(), author, offset, limit)
	if err != nil {
		return err
	}
	if papers == nil {
		papers = []types.Paper{}
	}
	return c.JSON(papers)
}

func (h *PaperHandler) HandleGetPaper(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ErrInvalidID()
	}

	paper, err := h.store.GetPaperByID(c.UserContext(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound(id, "paper")
		}
		return err
	}
	return c.JSON(paper)
}

// HandleCreatePaper registers a paper by hand, same shape the crawler
// writes. Chunks arrive later through the loader.
func (h *PaperHandler) HandleCreatePaper(c *fiber.Ctx) error {
	var params types.PaperCreateParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return types.NewValidationError(errors)
	}

	if params.URL != "" {
		existing, err := h.store.GetPaperByURL(c.UserContext(), params.URL)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if existing != nil {
			return ErrConflict(fmt.Sprintf("paper with url %s already exists", params.URL))
		}
	}

	paper := types.Paper{
		ID:        uuid.New(),
		Title:     strings.TrimSpace(params.Title),
		Author:    params.Author,
		Publisher: params.Publisher,
		Year:      params.Year,
		URL:       params.URL,
		Abstract:  params.Abstract,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.store.SavePaper(c.UserContext(), paper); err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(paper)
}

// HandleGetPDF streams the paper's PDF. fasthttp's SendFile handles
// byte-range requests for the PDF viewer.
func (h *PaperHandler) HandleGetPDF(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ErrInvalidID()
	}

	paper, err := h.store.GetPaperByID(c.UserContext(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound(id, "paper")
		}
		return err
	}
	if paper.PDFPath == "" {
		return ErrNotFound(id, "pdf for paper")
	}
	if _, err := os.Stat(paper.PDFPath); err != nil {
		return ErrNotFound(id, "pdf for paper")
	}

	c.Set(fiber.HeaderContentType, "application/pdf")
	return c.SendFile(paper.PDFPath)
}
