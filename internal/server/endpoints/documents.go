package endpoints

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/scanline/internal/api"
	"github.com/jackzampolin/scanline/internal/ingest"
	"github.com/jackzampolin/scanline/internal/normalize"
	"github.com/jackzampolin/scanline/internal/pipeline"
	"github.com/jackzampolin/scanline/internal/rasterize"
	"github.com/jackzampolin/scanline/internal/searchpdf"
	"github.com/jackzampolin/scanline/internal/store"
	"github.com/jackzampolin/scanline/internal/svcctx"
	"github.com/jackzampolin/scanline/internal/workers"
)

// DefaultMaxUploadBytes bounds a multipart upload when no limit is configured.
const DefaultMaxUploadBytes = 200 << 20

// PageSummary describes how one page was processed.
type PageSummary struct {
	Page             int      `json:"page"`
	Confidence       float64  `json:"confidence"`
	Strategy         string   `json:"strategy"`
	Words            int      `json:"words"`
	Attempts         int      `json:"attempts"`
	CompressionLevel *int     `json:"compression_level"`
	CompressionRatio float64  `json:"compression_ratio"`
	StepsApplied     []string `json:"steps_applied"`
	Normalization    []string `json:"normalization,omitempty"`
}

// DocumentResponse is returned after a page or document is processed.
type DocumentResponse struct {
	Document   *store.Document    `json:"document"`
	Metadata   searchpdf.Metadata `json:"metadata"`
	Pages      []PageSummary      `json:"pages"`
	DurationMs int64              `json:"duration_ms"`
}

// FailureResponse is returned when every attempt on a page failed.
type FailureResponse struct {
	Error             string                       `json:"error"`
	Page              int                          `json:"page,omitempty"`
	Attempts          int                          `json:"attempts,omitempty"`
	OriginalSizeBytes int64                        `json:"original_size_bytes,omitempty"`
	Log               []pipeline.ExtractionAttempt `json:"log,omitempty"`
}

func newDocumentResponse(res *ingest.Result) DocumentResponse {
	resp := DocumentResponse{
		Document:   res.Document,
		Metadata:   res.Metadata,
		Pages:      make([]PageSummary, 0, len(res.Pages)),
		DurationMs: res.Duration.Milliseconds(),
	}
	for i, p := range res.Pages {
		ps := PageSummary{
			Page:             i + 1,
			Attempts:         len(p.Attempts),
			CompressionRatio: p.Enhancement.CompressionRatio,
			StepsApplied:     p.Enhancement.StepsApplied,
			Normalization:    p.Enhancement.Normalization,
		}
		if p.OCR != nil {
			ps.Confidence = p.OCR.Confidence
			ps.Strategy = string(p.OCR.Strategy)
			ps.Words = len(p.OCR.Words)
		}
		if p.CompressionLevel != nil {
			level := p.CompressionLevel.Level
			ps.CompressionLevel = &level
		}
		resp.Pages = append(resp.Pages, ps)
	}
	return resp
}

// writeIngestError maps ingest failures to HTTP statuses.
func writeIngestError(w http.ResponseWriter, err error) {
	var ex *pipeline.ExhaustedError
	if errors.As(err, &ex) {
		resp := FailureResponse{
			Error:             err.Error(),
			Attempts:          ex.Attempts,
			OriginalSizeBytes: ex.OriginalSizeBytes,
			Log:               ex.Log,
		}
		var pageErr *ingest.PageError
		if errors.As(err, &pageErr) {
			resp.Page = pageErr.Page
		}
		writeJSON(w, http.StatusUnprocessableEntity, resp)
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, pipeline.ErrUnsupportedMIME),
		errors.Is(err, pipeline.ErrEmptyPage),
		errors.Is(err, ingest.ErrNoPages),
		errors.Is(err, ingest.ErrCornerCount):
		status = http.StatusBadRequest
	case errors.Is(err, rasterize.ErrTooManyPages):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, store.ErrExists):
		status = http.StatusConflict
	case errors.Is(err, workers.ErrQueueFull), errors.Is(err, workers.ErrClosed):
		status = http.StatusServiceUnavailable
	}
	writeError(w, status, err.Error())
}

// outputFailure prints the attempt log of a 422 response before returning
// the error.
func outputFailure(err error) error {
	var apiErr *api.Error
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnprocessableEntity {
		return err
	}
	var failure FailureResponse
	if json.Unmarshal(apiErr.Body, &failure) == nil && len(failure.Log) > 0 {
		_ = api.Output(failure)
	}
	return err
}

// readUploads reads every file part under field.
func readUploads(headers []*multipart.FileHeader) ([]ingest.File, error) {
	files := make([]ingest.File, 0, len(headers))
	for _, fh := range headers {
		src, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open uploaded file: %w", err)
		}
		data, err := io.ReadAll(src)
		src.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", fh.Filename, err)
		}
		files = append(files, ingest.File{
			Name:     fh.Filename,
			Data:     data,
			MIMEType: ingest.DetectMIME(fh.Filename, data),
		})
	}
	return files, nil
}

func parseMultipart(w http.ResponseWriter, r *http.Request, limit int64) bool {
	if limit <= 0 {
		limit = DefaultMaxUploadBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	// Parse multipart form, spilling to disk above 32MB
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", limit))
			return false
		}
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to parse form: %v", err))
		return false
	}
	return true
}

func formPriority(r *http.Request) pipeline.Priority {
	immediate, _ := strconv.ParseBool(r.FormValue("immediate_retry"))
	low, _ := strconv.ParseBool(r.FormValue("low_priority"))
	return pipeline.Priority{ImmediateRetry: immediate, LowPriority: low}
}

// formColorMode reads the optional color_mode field. Empty keeps the
// server's configured mode.
func formColorMode(r *http.Request) (normalize.Mode, error) {
	raw := r.FormValue("color_mode")
	if raw == "" {
		return "", nil
	}
	return normalize.ParseMode(raw)
}

// formCorners decodes the optional corners field, a JSON page outline for
// /api/pages or a JSON array of outlines for /api/documents.
func formCorners[T any](r *http.Request) (T, error) {
	var v T
	raw := r.FormValue("corners")
	if raw == "" {
		return v, nil
	}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return v, fmt.Errorf("invalid corners: %w", err)
	}
	return v, nil
}

// submitFlags are shared by the page and document upload commands.
type submitFlags struct {
	documentID string
	userID     string
	title      string
	immediate  bool
	low        bool
	colorMode  string
	corners    string
}

func (f *submitFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.documentID, "document-id", "", "Document ID (generated when empty)")
	cmd.Flags().StringVar(&f.userID, "user-id", "", "Owner recorded with the document")
	cmd.Flags().StringVar(&f.title, "title", "", "Document title (derived from the first file name when empty)")
	cmd.Flags().BoolVar(&f.immediate, "immediate", false, "Retry without waiting between attempts")
	cmd.Flags().BoolVar(&f.low, "low-priority", false, "Mark the job low priority (also skips the retry delay)")
	cmd.Flags().StringVar(&f.colorMode, "color-mode", "", "Color mode for this request: auto, color, grayscale or bw")
	cmd.Flags().StringVar(&f.corners, "corners", "", "Page outline as JSON for perspective correction")
}

func (f *submitFlags) fields() map[string]string {
	return map[string]string{
		"document_id":     f.documentID,
		"user_id":         f.userID,
		"title":           f.title,
		"immediate_retry": strconv.FormatBool(f.immediate),
		"low_priority":    strconv.FormatBool(f.low),
		"color_mode":      f.colorMode,
		"corners":         f.corners,
	}
}

func readLocalFiles(field string, paths []string) ([]api.UploadFile, error) {
	files := make([]api.UploadFile, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		files = append(files, api.UploadFile{Field: field, Name: filepath.Base(p), Data: data})
	}
	return files, nil
}

// SubmitPageEndpoint handles POST /api/pages.
type SubmitPageEndpoint struct {
	MaxUploadBytes int64
}

var _ api.Endpoint = (*SubmitPageEndpoint)(nil)

func (e *SubmitPageEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/pages", e.handler
}

func (e *SubmitPageEndpoint) RequiresInit() bool { return true }

func (e *SubmitPageEndpoint) Group() string { return "pages" }

// handler godoc
//
//	@Summary		OCR a single page
//	@Description	Runs one scanned image through the adaptive pipeline and stores a one-page searchable PDF
//	@Tags			pages
//	@Accept			mpfd
//	@Produce		json
//	@Param			file			formData	file	true	"Page image (JPEG, PNG, TIFF, BMP, WebP)"
//	@Param			document_id		formData	string	false	"Document ID (generated when empty)"
//	@Param			user_id			formData	string	false	"Owner"
//	@Param			title			formData	string	false	"Title"
//	@Param			immediate_retry	formData	bool	false	"Skip the delay between attempts"
//	@Param			low_priority	formData	bool	false	"Low priority job"
//	@Param			color_mode		formData	string	false	"Color mode override (auto, color, grayscale, bw)"
//	@Param			corners			formData	string	false	"JSON page outline {top_left,top_right,bottom_right,bottom_left} of {x,y}"
//	@Success		200				{object}	DocumentResponse
//	@Failure		400				{object}	ErrorResponse
//	@Failure		409				{object}	ErrorResponse
//	@Failure		422				{object}	FailureResponse
//	@Failure		503				{object}	ErrorResponse
//	@Router			/api/pages [post]
func (e *SubmitPageEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	if !parseMultipart(w, r, e.MaxUploadBytes) {
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["file"]
	if len(headers) != 1 {
		writeError(w, http.StatusBadRequest, "exactly one file is required")
		return
	}
	files, err := readUploads(headers)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	mode, err := formColorMode(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	corners, err := formCorners[*normalize.Quad](r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	svc := svcctx.IngestFrom(r.Context())
	if svc == nil {
		writeError(w, http.StatusServiceUnavailable, "ingest service not initialized")
		return
	}

	page := files[0]
	res, err := svc.SubmitPage(r.Context(), ingest.PageRequest{
		Page: pipeline.PageBuffer{
			Data:      page.Data,
			MIMEType:  page.MIMEType,
			SizeHint:  int64(len(page.Data)),
			Corners:   corners,
			ColorMode: mode,
		},
		Priority:   formPriority(r),
		DocumentID: r.FormValue("document_id"),
		UserID:     r.FormValue("user_id"),
		Title:      r.FormValue("title"),
	})
	if err != nil {
		writeIngestError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, newDocumentResponse(res))
}

func (e *SubmitPageEndpoint) Command(getServerURL func() string) *cobra.Command {
	var flags submitFlags
	cmd := &cobra.Command{
		Use:   "submit <image>",
		Short: "OCR one page image on the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := readLocalFiles("file", args)
			if err != nil {
				return err
			}
			client := api.NewClient(getServerURL())
			var resp DocumentResponse
			if err := client.Upload(cmd.Context(), "/api/pages", flags.fields(), files, &resp); err != nil {
				return outputFailure(err)
			}
			return api.Output(resp)
		},
	}
	flags.register(cmd)
	return cmd
}

// SubmitDocumentEndpoint handles POST /api/documents.
type SubmitDocumentEndpoint struct {
	MaxUploadBytes int64
}

var _ api.Endpoint = (*SubmitDocumentEndpoint)(nil)

func (e *SubmitDocumentEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/documents", e.handler
}

func (e *SubmitDocumentEndpoint) RequiresInit() bool { return true }

func (e *SubmitDocumentEndpoint) Group() string { return "documents" }

// handler godoc
//
//	@Summary		OCR a multi-page document
//	@Description	Accepts several page images or PDFs; PDFs are rasterized first. Any failed page fails the document.
//	@Tags			documents
//	@Accept			mpfd
//	@Produce		json
//	@Param			files			formData	file	true	"Page images or PDFs in page order"
//	@Param			document_id		formData	string	false	"Document ID (generated when empty)"
//	@Param			user_id			formData	string	false	"Owner"
//	@Param			title			formData	string	false	"Title (derived from the first file name when empty)"
//	@Param			immediate_retry	formData	bool	false	"Skip the delay between attempts"
//	@Param			low_priority	formData	bool	false	"Low priority job"
//	@Param			color_mode		formData	string	false	"Color mode override for every page (auto, color, grayscale, bw)"
//	@Param			corners			formData	string	false	"JSON array of page outlines in page order; null skips a page"
//	@Success		200				{object}	DocumentResponse
//	@Failure		400				{object}	ErrorResponse
//	@Failure		409				{object}	ErrorResponse
//	@Failure		413				{object}	ErrorResponse
//	@Failure		422				{object}	FailureResponse
//	@Failure		503				{object}	ErrorResponse
//	@Router			/api/documents [post]
func (e *SubmitDocumentEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	if !parseMultipart(w, r, e.MaxUploadBytes) {
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "no files uploaded")
		return
	}
	files, err := readUploads(headers)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	mode, err := formColorMode(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	corners, err := formCorners[[]*normalize.Quad](r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	svc := svcctx.IngestFrom(r.Context())
	if svc == nil {
		writeError(w, http.StatusServiceUnavailable, "ingest service not initialized")
		return
	}

	res, err := svc.SubmitDocument(r.Context(), ingest.DocumentRequest{
		Files:      files,
		Priority:   formPriority(r),
		DocumentID: r.FormValue("document_id"),
		UserID:     r.FormValue("user_id"),
		Title:      r.FormValue("title"),
		ColorMode:  mode,
		Corners:    corners,
	})
	if err != nil {
		writeIngestError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, newDocumentResponse(res))
}

func (e *SubmitDocumentEndpoint) Command(getServerURL func() string) *cobra.Command {
	var flags submitFlags
	cmd := &cobra.Command{
		Use:   "submit <files...>",
		Short: "OCR page images or PDFs as one document on the server",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := readLocalFiles("files", args)
			if err != nil {
				return err
			}
			client := api.NewClient(getServerURL())
			var resp DocumentResponse
			if err := client.Upload(cmd.Context(), "/api/documents", flags.fields(), files, &resp); err != nil {
				return outputFailure(err)
			}
			return api.Output(resp)
		},
	}
	flags.register(cmd)
	return cmd
}

// ListDocumentsResponse is the response for listing documents.
type ListDocumentsResponse struct {
	Documents []*store.Document `json:"documents"`
	Total     int               `json:"total"`
}

// ListDocumentsEndpoint handles GET /api/documents.
type ListDocumentsEndpoint struct{}

func (e *ListDocumentsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/documents", e.handler
}

func (e *ListDocumentsEndpoint) RequiresInit() bool { return true }

func (e *ListDocumentsEndpoint) Group() string { return "documents" }

// handler godoc
//
//	@Summary	List documents
//	@Tags		documents
//	@Produce	json
//	@Param		user_id	query		string	false	"Only this owner's documents"
//	@Param		limit	query		int		false	"Page size (default 50)"
//	@Param		offset	query		int		false	"Offset"
//	@Success	200		{object}	ListDocumentsResponse
//	@Failure	500		{object}	ErrorResponse
//	@Failure	503		{object}	ErrorResponse
//	@Router		/api/documents [get]
func (e *ListDocumentsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	st := svcctx.StoreFrom(r.Context())
	if st == nil {
		writeError(w, http.StatusServiceUnavailable, "store not initialized")
		return
	}

	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	docs, err := st.List(r.Context(), store.ListOptions{
		UserID: q.Get("user_id"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	for _, d := range docs {
		d.PageTexts = nil
	}
	total, err := st.Count(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, ListDocumentsResponse{Documents: docs, Total: total})
}

func (e *ListDocumentsEndpoint) Command(getServerURL func() string) *cobra.Command {
	var userID string
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := fmt.Sprintf("/api/documents?limit=%d&offset=%d", limit, offset)
			if userID != "" {
				path += "&user_id=" + userID
			}
			client := api.NewClient(getServerURL())
			var resp ListDocumentsResponse
			if err := client.Get(cmd.Context(), path, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&userID, "user-id", "", "Only this owner's documents")
	cmd.Flags().IntVar(&limit, "limit", 50, "Page size")
	cmd.Flags().IntVar(&offset, "offset", 0, "Offset")
	return cmd
}

// GetDocumentEndpoint handles GET /api/documents/{id}.
type GetDocumentEndpoint struct{}

func (e *GetDocumentEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/documents/{id}", e.handler
}

func (e *GetDocumentEndpoint) RequiresInit() bool { return true }

func (e *GetDocumentEndpoint) Group() string { return "documents" }

// handler godoc
//
//	@Summary	Get document by ID
//	@Tags		documents
//	@Produce	json
//	@Param		id	path		string	true	"Document ID"
//	@Success	200	{object}	store.Document
//	@Failure	404	{object}	ErrorResponse
//	@Failure	503	{object}	ErrorResponse
//	@Router		/api/documents/{id} [get]
func (e *GetDocumentEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "document id is required")
		return
	}

	st := svcctx.StoreFrom(r.Context())
	if st == nil {
		writeError(w, http.StatusServiceUnavailable, "store not initialized")
		return
	}

	doc, err := st.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, doc)
}

func (e *GetDocumentEndpoint) Command(getServerURL func() string) *cobra.Command {
	var textOnly bool
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Get a document by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var doc store.Document
			if err := client.Get(cmd.Context(), "/api/documents/"+args[0], &doc); err != nil {
				return err
			}
			if textOnly {
				fmt.Println(doc.Text())
				return nil
			}
			return api.Output(doc)
		},
	}
	cmd.Flags().BoolVar(&textOnly, "text", false, "Print only the extracted text")
	return cmd
}

// DocumentPDFEndpoint handles GET /api/documents/{id}/pdf.
type DocumentPDFEndpoint struct{}

func (e *DocumentPDFEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/documents/{id}/pdf", e.handler
}

func (e *DocumentPDFEndpoint) RequiresInit() bool { return true }

func (e *DocumentPDFEndpoint) Group() string { return "documents" }

// handler godoc
//
//	@Summary	Download the searchable PDF
//	@Tags		documents
//	@Produce	application/pdf
//	@Param		id	path		string	true	"Document ID"
//	@Success	200	{file}		binary
//	@Failure	404	{object}	ErrorResponse
//	@Router		/api/documents/{id}/pdf [get]
func (e *DocumentPDFEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	st := svcctx.StoreFrom(r.Context())
	if st == nil {
		writeError(w, http.StatusServiceUnavailable, "store not initialized")
		return
	}

	id := r.PathValue("id")
	data, err := st.PDF(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", id+".pdf"))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (e *DocumentPDFEndpoint) Command(getServerURL func() string) *cobra.Command {
	var outputFile string
	cmd := &cobra.Command{
		Use:   "pdf <id>",
		Short: "Download a document's searchable PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if outputFile == "" {
				outputFile = args[0] + ".pdf"
			}
			f, err := os.Create(outputFile)
			if err != nil {
				return err
			}
			client := api.NewClient(getServerURL())
			n, err := client.Download(cmd.Context(), "/api/documents/"+args[0]+"/pdf", f)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				os.Remove(outputFile)
				return err
			}
			fmt.Printf("Wrote %s (%d bytes)\n", outputFile, n)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file path (default <id>.pdf)")
	return cmd
}

// DeleteDocumentEndpoint handles DELETE /api/documents/{id}.
type DeleteDocumentEndpoint struct{}

func (e *DeleteDocumentEndpoint) Route() (string, string, http.HandlerFunc) {
	return "DELETE", "/api/documents/{id}", e.handler
}

func (e *DeleteDocumentEndpoint) RequiresInit() bool { return true }

func (e *DeleteDocumentEndpoint) Group() string { return "documents" }

// handler godoc
//
//	@Summary	Delete a document and its PDF
//	@Tags		documents
//	@Param		id	path	string	true	"Document ID"
//	@Success	204
//	@Failure	404	{object}	ErrorResponse
//	@Router		/api/documents/{id} [delete]
func (e *DeleteDocumentEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	st := svcctx.StoreFrom(r.Context())
	if st == nil {
		writeError(w, http.StatusServiceUnavailable, "store not initialized")
		return
	}

	err := st.Delete(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (e *DeleteDocumentEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			if err := client.Delete(cmd.Context(), "/api/documents/"+args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted %s\n", args[0])
			return nil
		},
	}
}
