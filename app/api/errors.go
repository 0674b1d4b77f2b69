package api

import (
	"errors"
	"fmt"
	"log/slog"

	"papers/search"
	"papers/types"

	"github.com/gofiber/fiber/v2"
)

func ErrorHandler(c *fiber.Ctx, err error) error {
	if apiError, ok := err.(Error); ok {
		return c.Status(apiError.Code).JSON(apiError)
	}
	if valError, ok := err.(types.ValidationError); ok {
		return c.Status(valError.Status).JSON(valError)
	}

	apiError := fromEngineError(err)
	slog.Error("request failed", "code", apiError.Code, "kind", apiError.Kind, "error", err)
	return c.Status(apiError.Code).JSON(apiError)
}

// Error is the wire error envelope: a stable machine-readable kind
// plus a human message. Internal detail never leaves the process.
type Error struct {
	Code    int    `json:"-"`
	Kind    string `json:"kind"`
	Message string `json:"error"`
}

func (e Error) Error() string {
	return e.Message
}

func NewError(code int, kind, msg string) Error {
	return Error{
		Code:    code,
		Kind:    kind,
		Message: msg,
	}
}

// fromEngineError maps ranking engine sentinels onto HTTP errors.
// Unknown errors become opaque 500s.
func fromEngineError(err error) Error {
	switch {
	case errors.Is(err, search.ErrInvalidQuery):
		return NewError(fiber.StatusBadRequest, "invalid_query", err.Error())
	case errors.Is(err, search.ErrEmbeddingUnavailable):
		return NewError(fiber.StatusServiceUnavailable, "embedding_unavailable",
			"embedding service is unavailable, try again later")
	case errors.Is(err, search.ErrStoreUnavailable):
		return NewError(fiber.StatusServiceUnavailable, "store_unavailable",
			"search backend is unavailable, try again later")
	}

	if fiberErr, ok := err.(*fiber.Error); ok {
		return NewError(fiberErr.Code, "http_error", fiberErr.Message)
	}
	return NewError(fiber.StatusInternalServerError, "internal", "internal server error")
}

func ErrBadRequest() Error {
	return NewError(fiber.StatusBadRequest, "bad_request", "invalid JSON request")
}

func ErrInvalidID() Error {
	return NewError(fiber.StatusBadRequest, "invalid_id", "invalid id given")
}

func ErrConflict(msg string) Error {
	return NewError(fiber.StatusConflict, "conflict", msg)
}

func ErrNotFound[T any](arg T, resource string) Error {
	return NewError(fiber.StatusNotFound, "not_found", fmt.Sprintf("%s with %v not found", resource, arg))
}
