// Package server exposes the vision-pricing pipeline and listing management
// over HTTP. It is the only surface of the service; the mobile app is the
// intended caller.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/m3l0x42/flipply/internal/ebay"
	"github.com/m3l0x42/flipply/internal/ledger"
	"github.com/m3l0x42/flipply/internal/pipeline"
	"github.com/rs/zerolog/log"
)

// maxUploadBytes bounds the multipart form held in memory per request.
const maxUploadBytes = 20 << 20

// Pipeline runs the vision-pricing flow for one image.
type Pipeline interface {
	Run(ctx context.Context, imageData []byte, mimeType string) (*pipeline.Result, error)
}

// Lister creates and ends marketplace listings.
type Lister interface {
	CreateListing(ctx context.Context, req *ebay.ListingRequest) (*ebay.ListingResult, error)
	EndListing(ctx context.Context, itemID string) (bool, error)
}

// LedgerReader lists the locally recorded listings.
type LedgerReader interface {
	List() ([]ledger.ListingRecord, error)
}

// Server is the HTTP facade.
type Server struct {
	pipeline Pipeline
	listings Lister
	ledger   LedgerReader
}

// New creates a server.
func New(p Pipeline, l Lister, lr LedgerReader) *Server {
	return &Server{pipeline: p, listings: l, ledger: lr}
}

// Handler returns the route table wrapped with request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleHealth)
	mux.HandleFunc("POST /analyze-image/", s.handleAnalyzeImage)
	mux.HandleFunc("POST /listings", s.handleCreateListing)
	mux.HandleFunc("GET /listings", s.handleListListings)
	mux.HandleFunc("DELETE /listings/{id}", s.handleEndListing)
	return logRequests(mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "flipply backend is running"})
}

func (s *Server) handleAnalyzeImage(w http.ResponseWriter, r *http.Request) {
	imageData, mimeType, ok := readImage(w, r)
	if !ok {
		return
	}

	result, err := s.pipeline.Run(r.Context(), imageData, mimeType)
	if err != nil {
		writePipelineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCreateListing(w http.ResponseWriter, r *http.Request) {
	imageData, mimeType, ok := readImage(w, r)
	if !ok {
		return
	}

	title := r.FormValue("title")
	description := r.FormValue("description")
	condition := r.FormValue("condition")
	if title == "" || description == "" || condition == "" {
		writeError(w, http.StatusBadRequest, "title, description and condition are required")
		return
	}
	price, err := strconv.ParseFloat(r.FormValue("price"), 64)
	if err != nil || price <= 0 {
		writeError(w, http.StatusBadRequest, "price must be a positive number")
		return
	}

	result, err := s.listings.CreateListing(r.Context(), &ebay.ListingRequest{
		Title:         title,
		Description:   description,
		Price:         price,
		Condition:     condition,
		ImageData:     imageData,
		ImageMIMEType: mimeType,
	})
	if err != nil {
		writePipelineError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) handleListListings(w http.ResponseWriter, r *http.Request) {
	records, err := s.ledger.List()
	if err != nil {
		log.Error().Err(err).Msg("failed to read ledger")
		writeError(w, http.StatusInternalServerError, "failed to read ledger")
		return
	}
	if records == nil {
		records = []ledger.ListingRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"listings": records})
}

func (s *Server) handleEndListing(w http.ResponseWriter, r *http.Request) {
	itemID := r.PathValue("id")

	found, err := s.listings.EndListing(r.Context(), itemID)
	if err != nil {
		writePipelineError(w, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "listing not found in ledger")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"itemId": itemID, "status": "Ended"})
}

// readImage pulls the uploaded file out of the multipart form and rejects
// non-image declared content types before anything touches the network.
func readImage(w http.ResponseWriter, r *http.Request) ([]byte, string, bool) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "expected multipart form data")
		return nil, "", false
	}

	// The mobile app sends the upload as "image"; "file" is kept for
	// curl-style callers.
	file, header, err := r.FormFile("image")
	if err != nil {
		file, header, err = r.FormFile("file")
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing image file")
		return nil, "", false
	}
	defer file.Close()

	mimeType := partContentType(header)
	if !strings.HasPrefix(mimeType, "image/") {
		writeError(w, http.StatusBadRequest, "uploaded file must be an image")
		return nil, "", false
	}

	imageData, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read uploaded file")
		return nil, "", false
	}

	return imageData, mimeType, true
}

func partContentType(header *multipart.FileHeader) string {
	return header.Header.Get("Content-Type")
}

// writePipelineError maps the error taxonomy onto HTTP statuses: exhausted
// model retries are 503, remote marketplace failures are 502 with the remote
// messages verbatim, an unidentifiable image is 422.
func writePipelineError(w http.ResponseWriter, err error) {
	var stageErr *pipeline.StageError
	var ackErr *ebay.AckError
	var authErr *ebay.AuthError

	switch {
	case errors.Is(err, pipeline.ErrNoKeywords):
		writeError(w, http.StatusUnprocessableEntity, "could not identify a searchable item in the image")
	case errors.As(err, &stageErr) && stageErr.RetriesExhausted:
		log.Error().Err(err).Str("stage", stageErr.Stage).Msg("pipeline stage exhausted retries")
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &ackErr), errors.As(err, &authErr):
		log.Error().Err(err).Msg("marketplace call failed")
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		log.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}

// statusRecorder captures the response status for the request log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}
