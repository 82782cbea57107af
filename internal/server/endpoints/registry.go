package endpoints

import (
	"github.com/jackzampolin/scanline/internal/api"
	"github.com/jackzampolin/scanline/internal/redisbox"
)

// Config holds dependencies needed by some endpoints.
type Config struct {
	RedisManager    *redisbox.DockerManager
	RedisEnabled    bool
	MaxUploadBytes  int64
	SwaggerSpecPath string
}

// All returns all endpoint instances.
func All(cfg Config) []api.Endpoint {
	return []api.Endpoint{
		// Health endpoints
		&HealthEndpoint{},
		&ReadyEndpoint{},
		&StatusEndpoint{RedisManager: cfg.RedisManager, RedisEnabled: cfg.RedisEnabled},

		// OCR endpoints
		&SubmitPageEndpoint{MaxUploadBytes: cfg.MaxUploadBytes},
		&SubmitDocumentEndpoint{MaxUploadBytes: cfg.MaxUploadBytes},
		&PreflightEndpoint{MaxUploadBytes: cfg.MaxUploadBytes},

		// Document endpoints
		&ListDocumentsEndpoint{},
		&GetDocumentEndpoint{},
		&DocumentPDFEndpoint{},
		&DeleteDocumentEndpoint{},

		// Analytics endpoints
		&EventsEndpoint{},

		// Swagger/OpenAPI endpoints
		&SwaggerEndpoint{SpecPath: cfg.SwaggerSpecPath},
		&SwaggerUIEndpoint{},
	}
}
