package handler

import (
	"errors"
	"strconv"

	autherror "github.com/AnthoniusHendriyanto/identity-service/internal/errors"
	"github.com/gofiber/fiber/v2"
)

var statusByCode = map[autherror.Code]int{
	autherror.CodeValidation:         fiber.StatusBadRequest,
	autherror.CodeConflict:           fiber.StatusConflict,
	autherror.CodeNotFound:           fiber.StatusNotFound,
	autherror.CodeCooldown:           fiber.StatusTooManyRequests,
	autherror.CodeNoChallenge:        fiber.StatusBadRequest,
	autherror.CodeExpired:            fiber.StatusGone,
	autherror.CodeMismatch:           fiber.StatusBadRequest,
	autherror.CodeInvalidCredentials: fiber.StatusUnauthorized,
	autherror.CodeLocked:             fiber.StatusLocked,
	autherror.CodeUnverified:         fiber.StatusForbidden,
	autherror.CodeInternal:           fiber.StatusInternalServerError,
}

// StatusFor maps an error code to its HTTP status.
func StatusFor(code autherror.Code) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return fiber.StatusInternalServerError
}

func (h *AuthHandler) fail(c *fiber.Ctx, err error) error {
	var authErr *autherror.Error
	if !errors.As(err, &authErr) || authErr.Code == autherror.CodeInternal {
		h.log.Error(c.UserContext(), "request failed", "path", c.Path(), "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"code":  autherror.CodeInternal,
			"error": autherror.ErrInternal.Message,
		})
	}

	body := fiber.Map{
		"code":  authErr.Code,
		"error": authErr.Message,
	}
	if authErr.RetryAfter > 0 {
		secs := authErr.RetryAfterSeconds()
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(secs))
		body["retry_after"] = secs
	}

	return c.Status(StatusFor(authErr.Code)).JSON(body)
}

func invalidInput(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"code":  autherror.CodeValidation,
		"error": "invalid input",
	})
}
