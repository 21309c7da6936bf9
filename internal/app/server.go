package app

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"template-service/internal/handlers"
	"template-service/internal/server"
)

// writeGrace is added to the job timeout for the HTTP write timeout.
const writeGrace = 5 * time.Second

// RunServer builds the HTTP server with all handlers configured
func (app *App) RunServer() (*server.Server, http.Handler) {
	h := handlers.New(app.Dispatcher, app.Config.Key, app.Metrics, nil)

	router := mux.NewRouter()
	SetupRoutes(router, h, app.Metrics, app.InitializeRateLimiter(), app.Config.MaxBodyBytes)

	srv := server.New(router, app.Config.Port, app.Config.JobTimeout+writeGrace, "", "")
	return srv, router
}
