package endpoints

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/scanline/docs"
	"github.com/jackzampolin/scanline/internal/api"
)

// DefaultSwaggerSpecPath is where swag writes the spec, relative to the repo.
const DefaultSwaggerSpecPath = "docs/swagger/swagger.json"

// SwaggerEndpoint serves the OpenAPI spec. A swagger.json on disk wins so a
// freshly generated spec is picked up without a rebuild; otherwise the copy
// embedded in the binary is served.
type SwaggerEndpoint struct {
	// SpecPath pins the spec to one file; a missing file is then a 404.
	SpecPath string
}

func (e *SwaggerEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/swagger.json", e.handler
}

func (e *SwaggerEndpoint) RequiresInit() bool { return false }

func (e *SwaggerEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var (
		data []byte
		err  error
	)
	if e.SpecPath != "" {
		data, err = os.ReadFile(e.SpecPath)
	} else if data, err = os.ReadFile(GetSwaggerSpecPath()); err != nil {
		data, err = docs.SwaggerJSON, nil
	}
	if err != nil || len(data) == 0 {
		writeError(w, http.StatusNotFound, "swagger.json not found (run go generate ./docs)")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Write(data)
}

func (e *SwaggerEndpoint) Command(getServerURL func() string) *cobra.Command {
	var outputFile string
	cmd := &cobra.Command{
		Use:   "swagger",
		Short: "Fetch OpenAPI spec from server",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())

			var spec map[string]any
			if err := client.Get(cmd.Context(), "/swagger.json", &spec); err != nil {
				return err
			}
			if outputFile != "" {
				return api.OutputToFile(spec, outputFile)
			}
			return api.Output(spec)
		},
	}
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file path")
	return cmd
}

// SwaggerUIEndpoint serves Swagger UI pointed at /swagger.json.
type SwaggerUIEndpoint struct{}

func (e *SwaggerUIEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/swagger", e.handler
}

func (e *SwaggerUIEndpoint) RequiresInit() bool { return false }

const swaggerUIVersion = "5"

func (e *SwaggerUIEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head>
  <title>Scanline API</title>
  <link rel="stylesheet" type="text/css" href="https://unpkg.com/swagger-ui-dist@%[1]s/swagger-ui.css">
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@%[1]s/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({
      url: '/swagger.json',
      dom_id: '#swagger-ui',
      presets: [SwaggerUIBundle.presets.apis, SwaggerUIBundle.SwaggerUIStandalonePreset],
      layout: 'BaseLayout',
      supportedSubmitMethods: ['get', 'post', 'delete']
    });
  </script>
</body>
</html>`, swaggerUIVersion)
}

func (e *SwaggerUIEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:    "swagger-ui",
		Hidden: true,
		Short:  "Print the Swagger UI address",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.Println("Open in browser:", getServerURL()+"/swagger")
			return nil
		},
	}
}

// GetSwaggerSpecPath returns the first existing swagger.json among: next to
// the executable, the working directory, then the scanline home.
func GetSwaggerSpecPath() string {
	var candidates []string
	if exe, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(exe), DefaultSwaggerSpecPath))
	}
	candidates = append(candidates, DefaultSwaggerSpecPath)
	if dir, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(dir, ".scanline", "swagger.json"))
	}

	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return DefaultSwaggerSpecPath
}
