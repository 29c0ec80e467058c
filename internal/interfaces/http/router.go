package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

// RouterDeps dependências do router.
type RouterDeps struct {
	Profile   profileService
	Emission  emitter
	History   historyService
	Cancel    canceller
	Numbers   numberVoider
	JWTSecret string
	JWTIssuer string
	Log       zerolog.Logger
}

// Router registra as rotas da API fiscal. Todas exigem Bearer token.
func Router(app *fiber.App, deps RouterDeps) {
	fiscal := app.Group("/api/fiscal", AuthMiddleware(deps.JWTSecret, deps.JWTIssuer))

	profileHandler := NewProfileHandler(deps.Profile, deps.Log)
	fiscal.Get("/profile", profileHandler.Get)
	fiscal.Put("/profile", profileHandler.Save)
	fiscal.Post("/profile/certificate", profileHandler.UploadCertificate)

	emissionHandler := NewEmissionHandler(deps.Emission, deps.Log)
	fiscal.Post("/emissions", emissionHandler.Emit)

	documents := fiscal.Group("/documents")
	documentHandler := NewDocumentHandler(deps.History, deps.Cancel, deps.Log)
	documents.Get("/", documentHandler.List)
	documents.Get("/:id", documentHandler.Get)
	documents.Post("/:id/cancel", documentHandler.Cancel)
	documents.Get("/:id/xml", documentHandler.XML)
	documents.Get("/:id/pdf", documentHandler.PDF)

	numbers := fiscal.Group("/numbers")
	numberHandler := NewNumberHandler(deps.Numbers, deps.Log)
	numbers.Get("/skipped", numberHandler.Skipped)
	numbers.Post("/void", numberHandler.Void)
}
