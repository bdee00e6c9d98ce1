package controller

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"

	"subbox_backend/internal/middleware"
	"subbox_backend/internal/model"
	"subbox_backend/internal/subscription"
	"subbox_backend/pkg/utils/jwt"
	"subbox_backend/pkg/utils/validation"
)

// UserStore is the slice of the repository the auth routes need.
type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUser(ctx context.Context, id uint) (*model.User, error)
	FindUserByEmail(ctx context.Context, email string) (*model.User, error)
	UpdateUserProfile(ctx context.Context, user *model.User) error
}

type CustomerCreator interface {
	CreateCustomer(ctx context.Context, email, name string) (string, error)
}

type WelcomeSender interface {
	SendWelcomeEmail(ctx context.Context, user *model.User) error
}

type AuthController struct {
	users     UserStore
	customers CustomerCreator
	tokens    *jwt.Manager
	welcome   WelcomeSender
	validate  *validator.Validate
	logger    *slog.Logger
}

func NewAuthController(users UserStore, customers CustomerCreator, tokens *jwt.Manager, welcome WelcomeSender, logger *slog.Logger) *AuthController {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthController{
		users:     users,
		customers: customers,
		tokens:    tokens,
		welcome:   welcome,
		validate:  validation.New(),
		logger:    logger,
	}
}

type RegisterInput struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=6"`
	FirstName string `json:"firstName" validate:"required"`
	LastName  string `json:"lastName" validate:"required"`
}

func (in *RegisterInput) normalize() {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
}

type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type ProfileUpdateInput struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

func (ac *AuthController) Register(c *fiber.Ctx) error {
	input := new(RegisterInput)
	if err := c.BodyParser(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid input",
		})
	}
	input.normalize()
	if err := ac.validate.Struct(input); err != nil {
		return validationFailed(c, err)
	}

	ctx := c.UserContext()

	if _, err := ac.users.FindUserByEmail(ctx, input.Email); err == nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Email already exists",
		})
	} else if !errors.Is(err, subscription.ErrRecordNotFound) {
		return respondError(c, ac.logger, err)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return respondError(c, ac.logger, err)
	}

	user := &model.User{
		Email:        input.Email,
		PasswordHash: string(hashedPassword),
		FirstName:    input.FirstName,
		LastName:     input.LastName,
	}

	// The processor customer comes first so every stored user can subscribe.
	customerRef, err := ac.customers.CreateCustomer(ctx, user.Email, user.GetFullName())
	if err != nil {
		return respondError(c, ac.logger, err)
	}
	user.StripeCustomerID = customerRef

	if err := ac.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, subscription.ErrUniqueViolation) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "Email already exists",
			})
		}
		return respondError(c, ac.logger, err)
	}

	token, err := ac.tokens.GenerateToken(user.ID, user.Email, user.StripeCustomerID)
	if err != nil {
		return respondError(c, ac.logger, err)
	}

	if ac.welcome != nil {
		if err := ac.welcome.SendWelcomeEmail(ctx, user); err != nil {
			ac.logger.WarnContext(ctx, "could not send welcome email", "user_id", user.ID, "error", err)
		}
	}

	ac.logger.InfoContext(ctx, "user registered", "user_id", user.ID)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Registration successful",
		"token":   token,
		"user":    user.GetPublicProfile(),
	})
}

func (ac *AuthController) Login(c *fiber.Ctx) error {
	input := new(LoginInput)
	if err := c.BodyParser(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid input",
		})
	}

	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	if err := ac.validate.Struct(input); err != nil {
		return validationFailed(c, err)
	}

	user, err := ac.users.FindUserByEmail(c.UserContext(), input.Email)
	if err != nil {
		if errors.Is(err, subscription.ErrRecordNotFound) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid credentials",
			})
		}
		return respondError(c, ac.logger, err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid credentials",
		})
	}

	token, err := ac.tokens.GenerateToken(user.ID, user.Email, user.StripeCustomerID)
	if err != nil {
		return respondError(c, ac.logger, err)
	}

	return c.JSON(fiber.Map{
		"token": token,
		"user":  user.GetPublicProfile(),
	})
}

func (ac *AuthController) GetProfile(c *fiber.Ctx) error {
	claims := middleware.Claims(c)

	user, err := ac.users.GetUser(c.UserContext(), claims.UserID)
	if err != nil {
		if errors.Is(err, subscription.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "User not found",
			})
		}
		return respondError(c, ac.logger, err)
	}

	return c.JSON(fiber.Map{
		"user": user.GetPublicProfile(),
	})
}

func (ac *AuthController) UpdateProfile(c *fiber.Ctx) error {
	claims := middleware.Claims(c)
	input := new(ProfileUpdateInput)
	if err := c.BodyParser(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid input",
		})
	}

	ctx := c.UserContext()
	user, err := ac.users.GetUser(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, subscription.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "User not found",
			})
		}
		return respondError(c, ac.logger, err)
	}

	if name := strings.TrimSpace(input.FirstName); name != "" {
		user.FirstName = name
	}
	if name := strings.TrimSpace(input.LastName); name != "" {
		user.LastName = name
	}

	if err := ac.users.UpdateUserProfile(ctx, user); err != nil {
		return respondError(c, ac.logger, err)
	}

	return c.JSON(fiber.Map{
		"message": "Profile updated successfully",
		"user":    user.GetPublicProfile(),
	})
}
