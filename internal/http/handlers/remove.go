package handlers

import (
	"context"
	"mime/multipart"

	"github.com/gofiber/fiber/v2"

	"bgremover/internal/domain"
	"bgremover/internal/infra/logging"
	"bgremover/internal/upload"
)

// resultFilename is suggested to browsers that save the inline result.
const resultFilename = "no_bg.png"

// Processor turns image bytes into a background-free PNG.
type Processor interface {
	Process(ctx context.Context, data []byte) ([]byte, error)
}

// RemoveHandler serves POST /remove.
type RemoveHandler struct {
	validator *upload.Validator
	pipeline  Processor
}

// NewRemoveHandler wires the validator and pipeline into a handler.
func NewRemoveHandler(v *upload.Validator, p Processor) *RemoveHandler {
	return &RemoveHandler{validator: v, pipeline: p}
}

// Handle validates the "image" upload, runs it through the pipeline and
// returns the PNG inline.
func (h *RemoveHandler) Handle(c *fiber.Ctx) error {
	var fh *multipart.FileHeader
	if f, err := c.FormFile("image"); err == nil {
		fh = f
	}

	up, err := h.validator.Validate(fh)
	if err != nil {
		return respondError(c, err)
	}

	out, err := h.pipeline.Process(c.UserContext(), up.Data)
	if err != nil {
		return respondError(c, err)
	}

	requestID, _ := c.Locals("requestid").(string)
	logging.Info("Background removed", "filename", up.Filename, "input_bytes", up.Size, "output_bytes", len(out), "request_id", requestID)

	c.Set(fiber.HeaderContentType, "image/png")
	c.Set(fiber.HeaderContentDisposition, `inline; filename="`+resultFilename+`"`)
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.Send(out)
}

// respondError writes {"error": "..."} with the mapped status. Only the
// public message leaves the process.
func respondError(c *fiber.Ctx, err error) error {
	status := domain.HTTPStatus(err)
	if status < fiber.StatusInternalServerError {
		logging.Warn("Upload rejected", "path", c.Path(), "status", status, "reason", err.Error())
	}
	return c.Status(status).JSON(fiber.Map{"error": domain.PublicMessage(err)})
}
