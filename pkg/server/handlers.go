package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/matzehuels/imfgraph/pkg/buildinfo"
	"github.com/matzehuels/imfgraph/pkg/convert"
	"github.com/matzehuels/imfgraph/pkg/errors"
	"github.com/matzehuels/imfgraph/pkg/imf"
	"github.com/matzehuels/imfgraph/pkg/pipeline"
	"github.com/matzehuels/imfgraph/pkg/render"
	"github.com/matzehuels/imfgraph/pkg/store"
)

// maxConvertBytes bounds a /convert request body.
const maxConvertBytes = 8 << 20

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, buildinfo.Get())
}

// =============================================================================
// Upload and status
// =============================================================================

type uploadResponse struct {
	TaskID string `json:"task_id"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, r, errors.Wrap(errors.ErrCodeInvalidInput, err, "no file part"))
		return
	}
	defer file.Close()

	filename := errors.SanitizeFilename(header.Filename)
	if filename == "" {
		s.writeError(w, r, errors.New(errors.ErrCodeInvalidInput, "no selected file"))
		return
	}
	if err := errors.ValidateExtension(filename, "pdf"); err != nil {
		s.writeError(w, r, err)
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, r, errors.Wrap(errors.ErrCodeInvalidInput, err, "read upload"))
		return
	}
	if err := imf.WriteFileAtomic(filepath.Join(s.uploadDir, filename), data); err != nil {
		s.writeError(w, r, errors.Wrap(errors.ErrCodeInternal, err, "save upload"))
		return
	}

	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	id, err := s.tasks.Submit(r.Context(), filename, s.processJob(base, data))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("accepted upload", "file", filename, "bytes", len(data), "task", id)
	writeJSON(w, http.StatusAccepted, uploadResponse{TaskID: id})
}

// processJob extracts, generates, converts and stores one upload.
func (s *Server) processJob(base string, data []byte) func(context.Context, pipeline.ProgressFunc) (string, error) {
	return func(ctx context.Context, progress pipeline.ProgressFunc) (string, error) {
		text, err := s.extractor.Text(ctx, data)
		if err != nil {
			return "", err
		}
		out, err := s.runner.ProcessDocument(ctx, text, s.opts, progress)
		if err != nil {
			return "", err
		}
		doc, err := imf.MarshalDocument(out.Conversion.Document)
		if err != nil {
			return "", errors.Wrap(errors.ErrCodeInternal, err, "encode document")
		}
		rec := store.Record{
			Name:      base,
			Hierarchy: out.Hierarchy,
			Relations: out.Relations,
			Document:  doc,
		}
		if err := s.store.Save(ctx, rec); err != nil {
			return "", err
		}
		return base + store.SuffixRelations, nil
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.tasks.Status(r.Context(), chi.URLParam(r, "taskID"))
	if err != nil {
		s.writeError(w, r, errors.Wrap(errors.ErrCodeInternal, err, "read task status"))
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// =============================================================================
// Convert
// =============================================================================

type convertResponse struct {
	Document *imf.Document `json:"document"`
	Issues   []imf.Issue   `json:"issues"`
	Stats    convert.Stats `json:"stats"`
	Cached   bool          `json:"cached"`
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxConvertBytes))
	if err != nil {
		s.writeError(w, r, errors.Wrap(errors.ErrCodeInvalidInput, err, "read request body"))
		return
	}
	res, hit, err := s.runner.ConvertTextWithCacheInfo(r.Context(), string(body), s.opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	issues := res.Issues
	if issues == nil {
		issues = []imf.Issue{}
	}
	writeJSON(w, http.StatusOK, convertResponse{
		Document: res.Document,
		Issues:   issues,
		Stats:    res.Stats,
		Cached:   hit,
	})
}

// =============================================================================
// Documents
// =============================================================================

type documentsResponse struct {
	Documents []string `json:"documents"`
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	names, err := s.store.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, documentsResponse{Documents: names})
}

// documentName accepts a stored name with or without one of the file
// suffixes the original upload flow exposed.
func documentName(raw string) string {
	for _, suffix := range []string{store.SuffixHierarchy, store.SuffixRelations, store.SuffixDocument, ".pdf"} {
		if strings.HasSuffix(raw, suffix) {
			return strings.TrimSuffix(raw, suffix)
		}
	}
	return raw
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.Load(r.Context(), documentName(chi.URLParam(r, "name")))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var data []byte
	switch part := r.URL.Query().Get("part"); part {
	case "", "imf":
		data = rec.Document
	case "relations":
		data = rec.Relations
	case "components":
		data = rec.Hierarchy
	default:
		s.writeError(w, r, errors.New(errors.ErrCodeInvalidInput, "unknown part %q (must be imf, relations or components)", part))
		return
	}
	if data == nil {
		s.writeError(w, r, errors.New(errors.ErrCodeNotFound, "document %q has no such part", rec.Name))
		return
	}
	writeRaw(w, "application/json", data)
}

var renderContentTypes = map[string]string{
	render.FormatSVG: "image/svg+xml",
	render.FormatDOT: "text/vnd.graphviz",
	render.FormatPDF: "application/pdf",
	render.FormatPNG: "image/png",
}

func (s *Server) handleRenderDocument(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = render.FormatSVG
	}
	if err := render.ValidateFormat(format); err != nil {
		s.writeError(w, r, errors.Wrap(errors.ErrCodeInvalidInput, err, "format"))
		return
	}

	rec, err := s.store.Load(r.Context(), documentName(chi.URLParam(r, "name")))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if rec.Document == nil {
		s.writeError(w, r, errors.New(errors.ErrCodeNotFound, "document %q has no graph", rec.Name))
		return
	}
	doc, err := imf.UnmarshalDocument(rec.Document)
	if err != nil {
		s.writeError(w, r, errors.Wrap(errors.ErrCodeInternal, err, "decode stored document"))
		return
	}
	out, err := s.runner.Render(r.Context(), doc, format, s.opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeRaw(w, renderContentTypes[format], out)
}

// =============================================================================
// Chat
// =============================================================================

type chatRequest struct {
	Question string `json:"question"`
	Filename string `json:"filename"`
}

type chatResponse struct {
	Answer string `json:"answer"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		s.writeError(w, r, errors.Wrap(errors.ErrCodeInvalidInput, err, "decode request"))
		return
	}
	if strings.TrimSpace(req.Question) == "" || req.Filename == "" {
		s.writeError(w, r, errors.New(errors.ErrCodeInvalidInput, "missing question or filename"))
		return
	}

	pdfName := errors.SanitizeFilename(documentName(req.Filename) + ".pdf")
	data, err := os.ReadFile(filepath.Join(s.uploadDir, pdfName))
	if os.IsNotExist(err) {
		s.writeError(w, r, errors.New(errors.ErrCodeFileNotFound, "file %q not found, upload it first", pdfName))
		return
	}
	if err != nil {
		s.writeError(w, r, errors.Wrap(errors.ErrCodeInternal, err, "read upload"))
		return
	}

	text, err := s.extractor.Text(r.Context(), data)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	answer, err := s.runner.Answer(r.Context(), text, req.Question, s.opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Answer: answer})
}
