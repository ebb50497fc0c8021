package controller

import (
	"errors"

	"zkcred-be/internal/dto"
	"zkcred-be/internal/pkg/serverutils"
	"zkcred-be/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type IVerificationController interface {
	RegisterRoutes(r fiber.Router)
	GetProofs(ctx *fiber.Ctx) error
	GetRecord(ctx *fiber.Ctx) error
	GetPortals(ctx *fiber.Ctx) error
}

type verificationController struct {
	service   service.IVerificationService
	jwtSecret string
}

func NewVerificationController(service service.IVerificationService, jwtSecret string) IVerificationController {
	return &verificationController{service: service, jwtSecret: jwtSecret}
}

func (c *verificationController) RegisterRoutes(r fiber.Router) {
	r.Get("/proofs", serverutils.OptionalJwt(c.jwtSecret), c.GetProofs)
	r.Get("/record/:id", c.GetRecord)
	r.Get("/portals", c.GetPortals)
}

// GetProofs lists an owner's verified records, newest first. A signed-in
// caller may omit the owner parameter.
func (c *verificationController) GetProofs(ctx *fiber.Ctx) error {
	var query dto.ProofsQuery
	if err := ctx.QueryParser(&query); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid query")
	}
	if query.Owner == "" {
		query.Owner, _ = ctx.Locals("user_id").(string)
	}
	if query.Owner == "" {
		return fiber.NewError(fiber.StatusBadRequest, "owner is required")
	}
	if err := serverutils.ValidateRequest(query); err != nil {
		return err
	}

	res, err := c.service.GetProofs(ctx.UserContext(), query.Owner, query.Limit)
	if err != nil {
		return err
	}
	return ctx.JSON(res)
}

// GetRecord backs the public verification page.
func (c *verificationController) GetRecord(ctx *fiber.Ctx) error {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusNotFound, "Record not found")
	}

	res, err := c.service.GetRecord(ctx.UserContext(), id)
	if errors.Is(err, service.ErrRecordNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "Record not found")
	}
	if err != nil {
		return err
	}
	return ctx.JSON(res)
}

func (c *verificationController) GetPortals(ctx *fiber.Ctx) error {
	return ctx.JSON(serverutils.SuccessResponse("Success get portals", c.service.ListPortals()))
}
