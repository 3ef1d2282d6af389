package account

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

const (
	DefaultSessionContextKey = "account_session"
	DefaultAppURL            = "http://localhost:8080"

	emailConfirmedPath     = "/email-confirmed-successfully"
	emailConfirmFailedText = "Something went wrong: unable to verify email by token."
)

// HTTPController exposes the Service over fiber routes.
type HTTPController struct {
	service    *Service
	sessions   SessionTokens
	appURL     string
	contextKey string
	logger     Logger
}

type HTTPControllerOption func(*HTTPController)

// WithAppURL sets the front end base used for redirects.
func WithAppURL(url string) HTTPControllerOption {
	return func(h *HTTPController) {
		if url != "" {
			h.appURL = strings.TrimRight(url, "/")
		}
	}
}

func WithSessionContextKey(key string) HTTPControllerOption {
	return func(h *HTTPController) {
		if key != "" {
			h.contextKey = key
		}
	}
}

func WithControllerLogger(l Logger) HTTPControllerOption {
	return func(h *HTTPController) {
		if l != nil {
			h.logger = l
		}
	}
}

func NewHTTPController(service *Service, sessions SessionTokens, opts ...HTTPControllerOption) *HTTPController {
	h := &HTTPController{
		service:    service,
		sessions:   sessions,
		appURL:     DefaultAppURL,
		contextKey: DefaultSessionContextKey,
		logger:     defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Register mounts the account routes under /accounts.
func (h *HTTPController) Register(router fiber.Router) {
	g := router.Group("/accounts")

	g.Post("/sign-up", h.OptionalSession, h.SignUp)
	g.Post("/sign-in", h.SignIn)
	g.Post("/sign-in/refresh", h.RequireSession, h.SignInRefresh)
	g.Put("/password", h.RequireSession, h.UpdatePassword)
	g.Post("/password/recovery", h.RequestPasswordRecovery)
	g.Post("/password/recovery/confirm", h.RecoverPassword)
	g.Post("/email/confirmation", h.ResendEmailConfirmation)
	g.Get("/email/confirm", h.ConfirmEmail)
	g.Post("/otp", h.CreateActivationOtp)
	g.Post("/otp/confirm", h.ConfirmActivationOtp)
	g.Get("/:id", h.RequireSession, h.ReadProfile)
	g.Put("/:id", h.RequireSession, h.UpdateProfile)
	g.Post("/:id/avatar", h.RequireSession, h.UploadAvatar)
}

// RequireSession rejects requests without a valid bearer session.
func (h *HTTPController) RequireSession(c *fiber.Ctx) error {
	session, err := h.sessionFromRequest(c)
	if err != nil {
		return h.respondError(c, err)
	}
	h.attach(c, session)
	return c.Next()
}

// OptionalSession restores the actor when a valid bearer token is sent
// and lets anonymous requests through.
func (h *HTTPController) OptionalSession(c *fiber.Ctx) error {
	if session, err := h.sessionFromRequest(c); err == nil {
		h.attach(c, session)
	}
	return c.Next()
}

func (h *HTTPController) sessionFromRequest(c *fiber.Ctx) (SessionPayload, error) {
	header := c.Get(fiber.HeaderAuthorization)
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
		return SessionPayload{}, ErrUnauthenticated
	}
	return h.sessions.VerifySessionToken(strings.TrimSpace(token))
}

func (h *HTTPController) attach(c *fiber.Ctx, session SessionPayload) {
	c.Locals(h.contextKey, session)
	c.SetUserContext(WithSession(c.UserContext(), session))
}

func (h *HTTPController) actor(c *fiber.Ctx) Actor {
	return ActorFromContext(c.UserContext())
}

type signInResponse struct {
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expires_at"`
	Session   SessionPayload `json:"session"`
}

func (h *HTTPController) SignUp(c *fiber.Ctx) error {
	var msg SignUpMessage
	if err := h.bind(c, &msg); err != nil {
		return h.respondError(c, err)
	}
	msg.Actor = h.actor(c)

	res, err := h.service.SignUp(h.ctx(c), msg)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

func (h *HTTPController) SignIn(c *fiber.Ctx) error {
	var msg SignInMessage
	if err := h.bind(c, &msg); err != nil {
		return h.respondError(c, err)
	}

	session, err := h.service.SignIn(h.ctx(c), msg)
	if err != nil {
		return h.respondError(c, err)
	}
	return h.issueSession(c, session)
}

func (h *HTTPController) SignInRefresh(c *fiber.Ctx) error {
	session, err := h.service.SignInRefresh(h.ctx(c), SignInRefreshMessage{ID: h.actor(c).ID})
	if err != nil {
		return h.respondError(c, err)
	}
	return h.issueSession(c, session)
}

func (h *HTTPController) issueSession(c *fiber.Ctx, session SessionPayload) error {
	token, expiresAt, err := h.sessions.IssueSessionToken(session)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(signInResponse{Token: token, ExpiresAt: expiresAt, Session: session})
}

func (h *HTTPController) UpdatePassword(c *fiber.Ctx) error {
	var msg UpdatePasswordMessage
	if err := h.bind(c, &msg); err != nil {
		return h.respondError(c, err)
	}
	msg.Actor = h.actor(c)

	res, err := h.service.UpdatePassword(h.ctx(c), msg)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(res)
}

func (h *HTTPController) RequestPasswordRecovery(c *fiber.Ctx) error {
	var msg RequestPasswordRecoveryMessage
	if err := h.bind(c, &msg); err != nil {
		return h.respondError(c, err)
	}

	if err := h.service.RequestPasswordRecovery(h.ctx(c), msg); err != nil {
		return h.respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *HTTPController) RecoverPassword(c *fiber.Ctx) error {
	var msg RecoverPasswordMessage
	if err := h.bind(c, &msg); err != nil {
		return h.respondError(c, err)
	}

	if err := h.service.RecoverPassword(h.ctx(c), msg); err != nil {
		return h.respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *HTTPController) ResendEmailConfirmation(c *fiber.Ctx) error {
	var msg ResendEmailConfirmationMessage
	if err := h.bind(c, &msg); err != nil {
		return h.respondError(c, err)
	}

	if err := h.service.ResendEmailConfirmation(h.ctx(c), msg); err != nil {
		return h.respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ConfirmEmail is the link target of the confirmation mail. It redirects
// to the front end on success, answers a fixed 400 text on a bad token
// and hands anything else to the fiber error handler.
func (h *HTTPController) ConfirmEmail(c *fiber.Ctx) error {
	_, err := h.service.ConfirmEmail(h.ctx(c), ConfirmEmailMessage{Token: c.Query("token")})
	if err != nil {
		if IsValidationError(err) {
			return c.Status(fiber.StatusBadRequest).SendString(emailConfirmFailedText)
		}
		return err
	}
	return c.Redirect(h.appURL+emailConfirmedPath, fiber.StatusFound)
}

func (h *HTTPController) CreateActivationOtp(c *fiber.Ctx) error {
	var msg CreateActivationOtpMessage
	if err := h.bind(c, &msg); err != nil {
		return h.respondError(c, err)
	}

	res, err := h.service.CreateActivationOtp(h.ctx(c), msg)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(res)
}

func (h *HTTPController) ConfirmActivationOtp(c *fiber.Ctx) error {
	var msg ConfirmActivationOtpMessage
	if err := h.bind(c, &msg); err != nil {
		return h.respondError(c, err)
	}

	res, err := h.service.ConfirmActivationOtp(h.ctx(c), msg)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(res)
}

func (h *HTTPController) ReadProfile(c *fiber.Ctx) error {
	id, err := h.pathID(c)
	if err != nil {
		return h.respondError(c, err)
	}

	profile, err := h.service.ReadProfile(h.ctx(c), ReadProfileMessage{ID: id, Actor: h.actor(c)})
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(profile)
}

func (h *HTTPController) UpdateProfile(c *fiber.Ctx) error {
	id, err := h.pathID(c)
	if err != nil {
		return h.respondError(c, err)
	}

	var msg UpdateProfileMessage
	if err := h.bind(c, &msg); err != nil {
		return h.respondError(c, err)
	}
	msg.ID = id
	msg.Actor = h.actor(c)

	res, err := h.service.UpdateProfile(h.ctx(c), msg)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(res)
}

func (h *HTTPController) UploadAvatar(c *fiber.Ctx) error {
	id, err := h.pathID(c)
	if err != nil {
		return h.respondError(c, err)
	}

	image, err := h.readImage(c)
	if err != nil {
		return h.respondError(c, err)
	}

	res, err := h.service.UploadAvatar(h.ctx(c), UploadAvatarMessage{
		ID:    id,
		Image: image,
		Actor: h.actor(c),
	})
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(res)
}

func (h *HTTPController) readImage(c *fiber.Ctx) ([]byte, error) {
	header, err := c.FormFile("image")
	if err != nil {
		return nil, fieldError("image", "cannot be blank")
	}

	file, err := header.Open()
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "unable to read uploaded image")
	}
	defer file.Close()

	// One byte over the limit is enough for the size rule to reject it.
	limit := int64(h.service.Policy().AvatarMaxSize) + 1
	return io.ReadAll(io.LimitReader(file, limit))
}

func (h *HTTPController) pathID(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, fieldError("id", "must be a valid uuid")
	}
	return id, nil
}

func (h *HTTPController) bind(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return fieldError("body", "unable to parse request body")
	}
	return nil
}

func (h *HTTPController) ctx(c *fiber.Ctx) context.Context {
	return c.UserContext()
}

type errorResponse struct {
	Error  string            `json:"error"`
	Code   string            `json:"code,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

func (h *HTTPController) respondError(c *fiber.Ctx, err error) error {
	if verr, ok := AsValidationError(err); ok {
		rich := verr.RichError()
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{
			Error:  rich.Message,
			Code:   rich.TextCode,
			Fields: verr.Fields,
		})
	}

	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		status := statusFor(rich)
		if status >= fiber.StatusInternalServerError {
			h.logger.Error("request %s %s failed: %v", c.Method(), c.Path(), err)
			return c.Status(status).JSON(errorResponse{Error: "internal server error"})
		}
		return c.Status(status).JSON(errorResponse{Error: rich.Message, Code: rich.TextCode})
	}

	h.logger.Error("request %s %s failed: %v", c.Method(), c.Path(), err)
	return c.Status(fiber.StatusInternalServerError).JSON(errorResponse{Error: "internal server error"})
}

func statusFor(err *goerrors.Error) int {
	if err.Code >= 400 && err.Code < 600 {
		return err.Code
	}
	switch err.Category {
	case goerrors.CategoryValidation, goerrors.CategoryBadInput:
		return fiber.StatusBadRequest
	case goerrors.CategoryAuth:
		return fiber.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return fiber.StatusForbidden
	case goerrors.CategoryNotFound:
		return fiber.StatusNotFound
	case goerrors.CategoryConflict:
		return fiber.StatusConflict
	case goerrors.CategoryRateLimit:
		return fiber.StatusTooManyRequests
	default:
		return fiber.StatusInternalServerError
	}
}
