package web

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/entropass/pkg/backup"
	"github.com/teslashibe/entropass/pkg/hub"
	"github.com/teslashibe/entropass/pkg/password"
	"github.com/teslashibe/entropass/pkg/pipeline"
)

// PasswordResponse is the body of a successful /api/password call.
type PasswordResponse struct {
	Password   string `json:"password"`
	Length     int    `json:"length"`
	FramesUsed int    `json:"frames_used"`
}

func errorJSON(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"error": msg})
}

// parseLength validates the length query parameter. An absent parameter
// yields def; a present but blank one is rejected. msg is non-empty on error.
func parseLength(c *fiber.Ctx, def int) (n int, msg string) {
	if !c.Context().QueryArgs().Has("length") {
		return def, ""
	}
	raw := strings.TrimSpace(c.Query("length"))
	if raw == "" {
		return 0, "The 'length' parameter is required"
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, "length must be a valid integer"
	}
	if n < password.MinLength || n > password.MaxLength {
		return 0, fmt.Sprintf("Length must be between %d and %d", password.MinLength, password.MaxLength)
	}
	return n, ""
}

// handlePassword captures frames and returns a new password.
func (s *Server) handlePassword(c *fiber.Ctx) error {
	c.Set(fiber.HeaderCacheControl, "no-store")

	length, msg := parseLength(c, s.cfg.DefaultLength)
	if msg != "" {
		return errorJSON(c, fiber.StatusBadRequest, msg)
	}

	ctx := c.UserContext()
	if s.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()
	}

	select {
	case s.device <- struct{}{}:
	case <-ctx.Done():
		s.logger.Warn("request.failed", "category", pipeline.CategoryTimeout, "stage", "device_wait")
		return errorJSON(c, fiber.StatusServiceUnavailable, pipeline.PublicMessage(ctx.Err()))
	}
	res, err := s.generate(ctx, length)
	if err != nil {
		status := fiber.StatusInternalServerError
		if pipeline.Classify(err) == pipeline.CategoryRequest {
			status = fiber.StatusBadRequest
		}
		return errorJSON(c, status, pipeline.PublicMessage(err))
	}

	return c.JSON(PasswordResponse{
		Password:   res.Password,
		Length:     res.Length,
		FramesUsed: res.FramesUsed,
	})
}

// generate runs one session while holding the device slot. The backup is
// written before the slot is released so writers never run concurrently.
func (s *Server) generate(ctx context.Context, length int) (*pipeline.Result, error) {
	defer func() { <-s.device }()

	res, err := s.gen.Generate(ctx, s.cfg.Request(length))
	if err != nil {
		return nil, err
	}
	if s.Backup != nil {
		rec := backup.NewRecord(res.ID, res.Samples, res.Length)
		if err := s.Backup.Write(ctx, rec); err != nil {
			s.logger.Error("backup.failed", "request_id", res.ID, "error", err)
		}
	}
	return res, nil
}

// handleHealth reports liveness.
func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":      "ok",
		"subscribers": s.events.ClientCount(),
	})
}

// handleListBackups returns stored backup summaries, newest first.
func (s *Server) handleListBackups(c *fiber.Ctx) error {
	if s.Backups == nil {
		return errorJSON(c, fiber.StatusNotFound, "Backups are disabled")
	}
	list, err := s.Backups.List(c.UserContext(), c.QueryInt("limit", 50))
	if err != nil {
		s.logger.Error("backup.list_failed", "error", err)
		return errorJSON(c, fiber.StatusInternalServerError, "Could not list backups.")
	}
	if list == nil {
		list = []backup.Summary{}
	}
	return c.JSON(list)
}

// handleEventsWS streams pipeline events to the client.
func (s *Server) handleEventsWS(c *websocket.Conn) {
	client := hub.NewClient(s.events, c)
	if client == nil {
		return
	}
	client.Run()
}
