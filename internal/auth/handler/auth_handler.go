package handler

import (
	"context"

	"github.com/AnthoniusHendriyanto/identity-service/internal/auth/dto"
	"github.com/AnthoniusHendriyanto/identity-service/internal/logging"
	"github.com/gofiber/fiber/v2"
)

// AuthService is the subset of service.UserService the handlers call.
type AuthService interface {
	Register(ctx context.Context, input dto.RegisterInput) (*dto.RegisterOutput, error)
	RequestOTP(ctx context.Context, input dto.RequestOTPInput) error
	VerifyOTP(ctx context.Context, input dto.VerifyOTPInput) (*dto.UserOutput, error)
	Login(ctx context.Context, input dto.LoginInput) (*dto.UserOutput, error)
}

type AuthHandler struct {
	userService AuthService
	log         logging.Logger
}

func NewAuthHandler(userService AuthService, log logging.Logger) *AuthHandler {
	return &AuthHandler{userService: userService, log: log}
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var input dto.RegisterInput
	if err := c.BodyParser(&input); err != nil {
		return invalidInput(c)
	}

	out, err := h.userService.Register(c.UserContext(), input)
	if err != nil {
		return h.fail(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(out)
}

func (h *AuthHandler) RequestOTP(c *fiber.Ctx) error {
	var input dto.RequestOTPInput
	if err := c.BodyParser(&input); err != nil {
		return invalidInput(c)
	}

	if err := h.userService.RequestOTP(c.UserContext(), input); err != nil {
		return h.fail(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "OTP sent",
	})
}

func (h *AuthHandler) VerifyOTP(c *fiber.Ctx) error {
	var input dto.VerifyOTPInput
	if err := c.BodyParser(&input); err != nil {
		return invalidInput(c)
	}

	user, err := h.userService.VerifyOTP(c.UserContext(), input)
	if err != nil {
		return h.fail(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Email verified",
		"user":    user,
	})
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var input dto.LoginInput
	if err := c.BodyParser(&input); err != nil {
		return invalidInput(c)
	}

	user, err := h.userService.Login(c.UserContext(), input)
	if err != nil {
		return h.fail(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Login successful",
		"user":    user,
	})
}

func (h *AuthHandler) Health(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
}
