package server

import (
	"errors"
	"net"

	"github.com/davecgh/go-spew/spew"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	jsoniter "github.com/json-iterator/go"
	"github.com/troydota/client.vote.komodohype.dev/api"
	"github.com/troydota/client.vote.komodohype.dev/server/gql"
	"github.com/troydota/client.vote.komodohype.dev/server/gql/resolvers"
	"github.com/troydota/client.vote.komodohype.dev/session"
	"github.com/troydota/client.vote.komodohype.dev/utils"
	"github.com/troydota/client.vote.komodohype.dev/viewmodel"

	log "github.com/sirupsen/logrus"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Server is the presentation gateway: the screens of the client exposed over HTTP for a local UI.
type Server struct {
	app      *fiber.App
	ln       net.Listener
	api      resolvers.Client
	sessions *session.Manager
}

type customLogger struct{}

func (*customLogger) Write(data []byte) (n int, err error) {
	log.WithField("component", "http").Debugln(utils.B2S(data))
	return len(data), nil
}

// New builds the gateway without listening; Start binds it.
func New(c resolvers.Client, sessions *session.Manager) (*Server, error) {
	server := &Server{
		api:      c,
		sessions: sessions,
		app: fiber.New(fiber.Config{
			ErrorHandler:          errorHandler,
			JSONEncoder:           json.Marshal,
			JSONDecoder:           json.Unmarshal,
			DisableStartupMessage: true,
		}),
	}

	server.app.Use(recover.New())
	server.app.Use(cors.New())
	server.app.Use(logger.New(logger.Config{
		Output: &customLogger{},
	}))

	if err := gql.GQL(server.app, resolvers.New(c, sessions)); err != nil {
		return nil, err
	}
	server.app.Post("/register", server.register)

	server.app.Use(func(c *fiber.Ctx) error {
		return c.Status(404).JSON(&fiber.Map{
			"status":  404,
			"message": "We don't know what you're looking for.",
		})
	})

	return server, nil
}

func (s *Server) App() *fiber.App {
	return s.app
}

// Start listens on network/address and serves in the background.
func (s *Server) Start(network, address string) error {
	ln, err := net.Listen(network, address)
	if err != nil {
		return err
	}
	s.ln = ln

	go func() {
		if err := s.app.Listener(ln); err != nil {
			log.Errorf("failed to start http server, err=%v", err)
		}
	}()
	log.WithField("component", "http").Infof("listening on %s", ln.Addr())
	return nil
}

func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func (s *Server) register(c *fiber.Ctx) error {
	form := viewmodel.RegisterForm{
		Username: c.FormValue("username"),
		Password: c.FormValue("password"),
	}
	if fh, err := c.FormFile("profile_picture"); err == nil {
		f, err := fh.Open()
		if err != nil {
			return err
		}
		defer f.Close()
		form.ProfilePicture = f
		form.FileName = fh.Filename
		form.ContentType = fh.Header.Get("Content-Type")
	}

	msg, err := viewmodel.NewSignUp(s.api).Submit(c.UserContext(), form)

	status := fiber.StatusOK
	var apiErr *api.Error
	switch {
	case err == nil:
	case errors.Is(err, viewmodel.ErrIncompleteForm):
		status = fiber.StatusBadRequest
	case errors.As(err, &apiErr) && apiErr.Kind == api.KindStatus && apiErr.Status < 500:
		status = apiErr.Status
	default:
		status = fiber.StatusBadGateway
	}

	return c.Status(status).JSON(fiber.Map{
		"status":  status,
		"message": msg,
	})
}

func errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{
			"status":  fe.Code,
			"message": fe.Message,
		})
	}

	log.Errorf("internal err=%v", spew.Sdump(err))

	return c.SendStatus(500)
}

// Shutdown stops accepting connections and waits for active requests.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
