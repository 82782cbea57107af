package endpoints

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/scanline/internal/api"
	"github.com/jackzampolin/scanline/internal/ingest"
	"github.com/jackzampolin/scanline/internal/svcctx"
)

// PreflightEndpoint handles POST /api/preflight.
type PreflightEndpoint struct {
	MaxUploadBytes int64
}

var _ api.Endpoint = (*PreflightEndpoint)(nil)

func (e *PreflightEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/preflight", e.handler
}

func (e *PreflightEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Check pages before OCR
//	@Description	Reports resolution, size, page count and memory issues. Advisory only: nothing is processed or stored.
//	@Tags			pages
//	@Accept			mpfd
//	@Produce		json
//	@Param			files	formData	file	true	"Page images or PDFs"
//	@Success		200		{object}	ingest.PreflightResult
//	@Failure		400		{object}	ErrorResponse
//	@Router			/api/preflight [post]
func (e *PreflightEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	if !parseMultipart(w, r, e.MaxUploadBytes) {
		return
	}
	defer r.MultipartForm.RemoveAll()

	files, err := readUploads(r.MultipartForm.File["files"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	svc := svcctx.IngestFrom(r.Context())
	if svc == nil {
		writeError(w, http.StatusServiceUnavailable, "ingest service not initialized")
		return
	}

	res, err := svc.Preflight(r.Context(), files)
	if err != nil {
		writeIngestError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (e *PreflightEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "preflight <files...>",
		Short: "Check pages against the server's thresholds",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := readLocalFiles("files", args)
			if err != nil {
				return err
			}
			client := api.NewClient(getServerURL())
			var resp ingest.PreflightResult
			if err := client.Upload(cmd.Context(), "/api/preflight", nil, files, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
