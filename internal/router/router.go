package router

import (
	"gnest/internal/infra/gnest"
	"gnest/internal/interfaces/handlers"
)

// Setup mounts every controller of the application.
func Setup(app *gnest.App) {
	app.Controller("/health", handlers.NewHealthController)
	app.Controller("/users", handlers.NewUserController)
	app.Controller("/files", handlers.NewFileController)
}
