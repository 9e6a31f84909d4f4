package api

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/isqad/melody"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/campuslive/lecturecast/internal/core"
	"github.com/campuslive/lecturecast/internal/service"
)

// AppOptions is options of the application
type AppOptions struct {
	Env     core.Environment
	Address string

	DB      *sqlx.DB
	Opener  service.ChannelOpener
	Service SessionsService
	Auth    *TokenAuth

	websocket *melody.Melody
	lister    core.LiveSessionsLister
}

// App is the HTTP application: session operations, the live list and
// the websocket signaling bridge.
type App struct {
	AppOptions

	mu      sync.Mutex
	viewers map[core.SessionID]map[core.ParticipantID]ViewerSession
}

func NewApp(options AppOptions) *App {
	options.websocket = melody.New()
	options.websocket.Config.MaxMessageSize = 64 * 1024

	if options.DB != nil {
		options.lister = core.NewSessionsRepository(options.DB)
	}

	app := &App{
		AppOptions: options,
		viewers:    make(map[core.SessionID]map[core.ParticipantID]ViewerSession),
	}

	app.websocket.HandleConnect(app.wsConnectHandler)
	app.websocket.HandleDisconnect(app.wsDisconnectHandler)
	app.websocket.HandleMessage(app.wsMessageHandler)
	app.websocket.HandleError(func(s *melody.Session, err error) {
		log.Error().Err(err).Str("service", "websockets").Msg("error in websocket session")
	})

	return app
}

// Router is function for construct http router
func (app *App) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.Handler())

	r.Post("/console/login", app.ConsoleLoginHandler)
	r.Post("/console/logout", app.ConsoleLogoutHandler)

	r.With(app.Auth.Middleware()).Route("/api/v1/sessions", func(r chi.Router) {
		r.Get("/", app.LiveSessionsHandler)

		r.Route("/{sessionID}", func(r chi.Router) {
			r.Post("/host", app.HostSessionHandler)
			r.Delete("/host", app.StopSessionHandler)
			r.Post("/join", app.JoinSessionHandler)
			r.Delete("/join", app.LeaveSessionHandler)
			r.Get("/ws", app.WebsocketsHandler)
		})
	})

	return r
}

func (app *App) Start() error {
	quit := make(chan os.Signal, 1)
	done := make(chan struct{}, 1)

	app.initLogger()
	router := app.Router()

	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	server := &http.Server{
		Addr:              app.Address,
		Handler:           router,
		ReadHeaderTimeout: 1 * time.Second,
		WriteTimeout:      10 * time.Second,
	}

	server.RegisterOnShutdown(func() {
		log.Warn().Msg("received signal to terminate the server")
		close(done)
	})

	go func() {
		<-quit
		log.Warn().Msg("the server is going shutting down")

		// Wait 20 seconds for close http connections
		waitIdleConnCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()

		server.SetKeepAlivesEnabled(false)
		if err := server.Shutdown(waitIdleConnCtx); err != nil {
			log.Fatal().Err(err).Msg("can't gracefully shutdown the server")
		}
	}()

	err := server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server has been closed immediatelly")
	}

	<-done
	log.Info().Msg("server stopped")

	return nil
}

func (app *App) initLogger() {
	cw := zerolog.NewConsoleWriter()
	log.Logger = log.Output(cw)

	level := zerolog.InfoLevel
	if app.Env.IsDevelopment() {
		level = zerolog.DebugLevel
	}

	zerolog.SetGlobalLevel(level)
}

func (app *App) rememberViewer(sessionID core.SessionID, callerID core.ParticipantID, agent ViewerSession) {
	app.mu.Lock()
	defer app.mu.Unlock()

	if app.viewers[sessionID] == nil {
		app.viewers[sessionID] = make(map[core.ParticipantID]ViewerSession)
	}
	app.viewers[sessionID][callerID] = agent
}

func (app *App) forgetViewer(sessionID core.SessionID, callerID core.ParticipantID) (ViewerSession, bool) {
	app.mu.Lock()
	defer app.mu.Unlock()

	agent, ok := app.viewers[sessionID][callerID]
	if ok {
		delete(app.viewers[sessionID], callerID)
	}
	return agent, ok
}
