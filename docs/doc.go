// Package docs provides generated OpenAPI documentation. The spec is
// regenerated from the handler annotations with go generate and embedded
// so the server can serve it from any working directory.
//
// Scanline API
//
//	@title			Scanline API
//	@version		1.0
//	@description	Adaptive OCR pipeline API: submit scanned pages or documents, fetch searchable PDFs and attempt analytics.
//	@termsOfService	http://swagger.io/terms/
//
//	@contact.name	API Support
//	@contact.url	https://github.com/jackzampolin/scanline
//
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//
//	@host		localhost:8080
//	@BasePath	/
//
//	@schemes	http https
package docs

import _ "embed"

//go:generate swag init -g ../cmd/scanline/serve.go -o ./swagger --outputTypes json --parseDependency --parseInternal

// SwaggerJSON is the checked-in swagger/swagger.json.
//
//go:embed swagger/swagger.json
var SwaggerJSON []byte
