// Package server exposes the importer and its views over HTTP.
package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"tidbyt.dev/gtfsimport"
	"tidbyt.dev/gtfsimport/render"
)

const (
	MsgNoFilePart     = "No file part"
	MsgNoSelectedFile = "No selected file"
	MsgInvalidFormat  = "Invalid file format. Please upload a zip file."
	MsgProcessed      = "File successfully processed"
	MsgStoreDown      = "Error! Cannot create the database connection."
)

const DefaultMaxUploadSize = 100 << 20

type Config struct {
	Logger         *slog.Logger
	MaxUploadSize  int
	RequestTimeout time.Duration

	// Access log destination. Nil disables access logging.
	AccessLog io.Writer
}

type Server struct {
	App *fiber.App

	importer *gtfsimport.Importer
	views    *gtfsimport.Views
	logger   *slog.Logger
	timeout  time.Duration
}

func New(importer *gtfsimport.Importer, views *gtfsimport.Views, cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxUploadSize <= 0 {
		cfg.MaxUploadSize = DefaultMaxUploadSize
	}

	app := fiber.New(fiber.Config{
		BodyLimit:             cfg.MaxUploadSize,
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	if cfg.AccessLog != nil {
		app.Use(logger.New(logger.Config{Output: cfg.AccessLog}))
	}

	s := &Server{
		App:      app,
		importer: importer,
		views:    views,
		logger:   cfg.Logger,
		timeout:  cfg.RequestTimeout,
	}

	app.Get("/", s.index)
	app.Post("/upload", s.upload)
	app.Get("/routes", s.routes)
	app.Get("/trips_by_headsign", s.tripsByHeadsign)
	app.Get("/health", s.health)

	return s
}

func (s *Server) Listen(addr string) error {
	s.logger.Info("listening", "addr", addr)
	return s.App.Listen(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.App.ShutdownWithContext(ctx)
}

func (s *Server) context(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(c.UserContext(), s.timeout)
	}
	return context.WithCancel(c.UserContext())
}

func (s *Server) index(c *fiber.Ctx) error {
	return s.page(c, fiber.StatusOK, nil)
}

func (s *Server) page(c *fiber.Ctx, status int, flash *render.Flash) error {
	return send(c, status, render.FormatHTML, func(w io.Writer) error {
		return render.Index(w, flash)
	})
}

// Output is buffered. Nothing is sent if fn fails.
func send(c *fiber.Ctx, status int, format render.Format, fn func(io.Writer) error) error {
	var buf bytes.Buffer
	if err := fn(&buf); err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, format.ContentType())
	return c.Status(status).Send(buf.Bytes())
}

type uploadResult struct {
	Message string              `json:"message"`
	Kind    string              `json:"kind,omitempty"`
	Error   string              `json:"error,omitempty"`
	Summary *gtfsimport.Summary `json:"summary,omitempty"`
}

func (s *Server) upload(c *fiber.Ctx) error {
	respond := func(status int, res uploadResult) error {
		if c.Query("format") == string(render.FormatJSON) {
			return c.Status(status).JSON(res)
		}
		flash := &render.Flash{Level: "success", Message: res.Message}
		if status >= fiber.StatusBadRequest {
			flash.Level = "error"
		}
		return s.page(c, status, flash)
	}

	form, err := c.MultipartForm()
	if err != nil {
		return respond(fiber.StatusBadRequest, uploadResult{Message: MsgNoFilePart})
	}
	files := form.File["file"]
	if len(files) == 0 {
		// A file input submitted without a selection arrives as a
		// plain value.
		if _, ok := form.Value["file"]; ok {
			return respond(fiber.StatusBadRequest, uploadResult{Message: MsgNoSelectedFile})
		}
		return respond(fiber.StatusBadRequest, uploadResult{Message: MsgNoFilePart})
	}
	fh := files[0]

	err = gtfsimport.CheckUploadName(fh.Filename)
	switch {
	case errors.Is(err, gtfsimport.ErrEmptyFilename):
		return respond(fiber.StatusBadRequest, uploadResult{Message: MsgNoSelectedFile})
	case err != nil:
		return respond(fiber.StatusBadRequest, uploadResult{Message: MsgInvalidFormat, Kind: gtfsimport.ErrorKind(err)})
	}

	f, err := fh.Open()
	if err != nil {
		return err
	}
	buf, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		return err
	}

	ctx, cancel := s.context(c)
	defer cancel()

	summary, err := s.importer.IngestUpload(ctx, fh.Filename, buf)
	if err != nil {
		kind := gtfsimport.ErrorKind(err)
		status := fiber.StatusUnprocessableEntity
		if kind == "store" || kind == "internal" {
			status = fiber.StatusInternalServerError
		}
		s.logger.Warn("upload failed", "filename", fh.Filename, "kind", kind, "err", err)
		return respond(status, uploadResult{
			Message: "Failed to process file (" + kind + ")",
			Kind:    kind,
			Error:   err.Error(),
		})
	}

	s.logger.Info("upload processed",
		"filename", fh.Filename,
		"import_id", summary.ID.String(),
		"routes", summary.Routes,
		"trips", summary.Trips,
	)
	return respond(fiber.StatusOK, uploadResult{Message: MsgProcessed, Summary: summary})
}

func (s *Server) format(c *fiber.Ctx) (render.Format, error) {
	format, err := render.ParseFormat(c.Query("format"))
	if err != nil {
		return "", fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return format, nil
}

// Read failures are shown on the upload page, or as JSON for
// non-HTML formats.
func (s *Server) readFailed(c *fiber.Ctx, format render.Format, err error) error {
	s.logger.Error("reading storage", "path", c.Path(), "err", err)
	if format == render.FormatHTML {
		return s.page(c, fiber.StatusServiceUnavailable, &render.Flash{Level: "error", Message: MsgStoreDown})
	}
	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
		"message": MsgStoreDown,
		"kind":    gtfsimport.ErrorKind(err),
		"error":   err.Error(),
	})
}

func (s *Server) routes(c *fiber.Ctx) error {
	format, err := s.format(c)
	if err != nil {
		return err
	}

	ctx, cancel := s.context(c)
	defer cancel()

	routes, err := s.views.Routes(ctx)
	if err != nil {
		return s.readFailed(c, format, err)
	}

	return send(c, fiber.StatusOK, format, func(w io.Writer) error {
		return render.Routes(w, format, routes)
	})
}

func (s *Server) tripsByHeadsign(c *fiber.Ctx) error {
	format, err := s.format(c)
	if err != nil {
		return err
	}

	ctx, cancel := s.context(c)
	defer cancel()

	counts, err := s.views.TripCounts(ctx)
	if err != nil {
		return s.readFailed(c, format, err)
	}

	return send(c, fiber.StatusOK, format, func(w io.Writer) error {
		return render.TripCounts(w, format, counts)
	})
}

func (s *Server) health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	counts, err := s.views.Counts(ctx)
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "unhealthy",
			"error":  err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"status":        "healthy",
		"routes":        counts.Routes,
		"trips":         counts.Trips,
		"headsign_join": string(s.views.JoinMode()),
	})
}
