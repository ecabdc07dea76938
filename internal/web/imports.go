package web

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"

	"evstage/internal/apperror"
	"evstage/internal/ingest"
	"evstage/internal/model"
)

const (
	pastedSource = "Pasted"

	noEventsInFile = "Couldn't find events in this file. Supported: .ics, .csv, .tsv, .json, .xml, .rss"
	noEventsInText = "Couldn't detect events. Try iCal, CSV, JSON, or XML/RSS format."
)

// importInput is one upload or paste, read from a multipart or urlencoded
// form: a "file" part or a "text" field, plus optional "name" and
// "category".
type importInput struct {
	raw      []byte
	filename string
	source   string
	category string
}

type importResponse struct {
	Format   ingest.Format `json:"format"`
	Count    int           `json:"count"`
	Source   string        `json:"source"`
	Message  string        `json:"message"`
	Events   []model.Event `json:"events,omitempty"`
	Replaced int           `json:"replaced,omitempty"`
}

func readImport(c echo.Context) (importInput, error) {
	in := importInput{
		source:   strings.TrimSpace(c.FormValue("name")),
		category: strings.TrimSpace(c.FormValue("category")),
	}

	fh, err := c.FormFile("file")
	switch {
	case err == nil:
		if !ingest.Accepts(fh.Filename) {
			return in, apperror.NewBadRequest("Unsupported file type. Supported: " + strings.Join(ingest.AcceptedExtensions, ", "))
		}
		f, err := fh.Open()
		if err != nil {
			return in, apperror.NewInternal(err)
		}
		defer f.Close()
		if in.raw, err = io.ReadAll(f); err != nil {
			return in, apperror.NewInternal(err)
		}
		in.filename = fh.Filename
		if in.source == "" {
			in.source = strings.TrimSuffix(fh.Filename, filepath.Ext(fh.Filename))
		}
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		text := c.FormValue("text")
		if strings.TrimSpace(text) == "" {
			return in, apperror.NewBadRequest("Provide a file or paste some text.")
		}
		in.raw = []byte(text)
	default:
		return in, apperror.NewBadRequest("invalid upload")
	}

	if in.source == "" {
		in.source = pastedSource
	}
	return in, nil
}

func (in importInput) emptyMessage() string {
	if in.filename != "" {
		return noEventsInFile
	}
	return noEventsInText
}

// handleImportPreview parses an upload without storing anything.
//
// POST /api/import/preview (multipart: file | text, name, category)
func (s *Server) handleImportPreview(c echo.Context) error {
	in, err := readImport(c)
	if err != nil {
		return err
	}
	out := s.events.Ingest(in.raw, in.category, in.source)
	if !out.Found() {
		return apperror.NewValidation(in.emptyMessage())
	}

	msg := fmt.Sprintf("Found %d events (detected %s)", len(out.Events), out.Format)
	if in.filename != "" {
		msg += " in " + in.filename
	}
	return c.JSON(http.StatusOK, importResponse{
		Format:  out.Format,
		Count:   len(out.Events),
		Source:  in.source,
		Message: msg,
		Events:  out.Events,
	})
}

// handleImport parses an upload and replaces every stored event of the
// same source with the result.
//
// POST /api/import (multipart: file | text, name, category)
func (s *Server) handleImport(c echo.Context) error {
	in, err := readImport(c)
	if err != nil {
		return err
	}
	out := s.events.Ingest(in.raw, in.category, in.source)
	if !out.Found() {
		return apperror.NewValidation(in.emptyMessage())
	}

	res, err := s.events.Import(c.Request().Context(), out, in.source)
	if err != nil {
		return toAppError(err)
	}
	return c.JSON(http.StatusOK, importResponse{
		Format:   res.Format,
		Count:    res.Imported,
		Source:   res.Source,
		Message:  fmt.Sprintf("Imported %d events (%s)", res.Imported, res.Format),
		Replaced: res.Replaced,
	})
}
