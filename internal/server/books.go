package server

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/MrWong99/bookparser/internal/bookstore"
	"github.com/MrWong99/bookparser/internal/enrich"
	"github.com/MrWong99/bookparser/internal/observe"
	"github.com/MrWong99/bookparser/internal/reader"
)

func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	books, err := s.store.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(books))
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	book, err := s.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

type saveBookRequest struct {
	BookName         string                         `json:"bookname"`
	OriginalFilename string                         `json:"originalFilename"`
	OriginalLines    []string                       `json:"originalLines"`
	ProcessedData    map[int]*reader.SentenceResult `json:"processedData"`
	MergeOptions     *mergeOptions                  `json:"mergeOptions"`
}

type saveResponse struct {
	Success        bool      `json:"success"`
	ID             string    `json:"id"`
	ProcessedLines int       `json:"processedLines"`
	SavedAt        time.Time `json:"savedAt"`
}

func (s *Server) handleSaveBook(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req saveBookRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	name := req.BookName
	if name == "" {
		name = id
	}
	opts := s.Pipeline().Merge
	if o := req.MergeOptions.apply(opts); o != nil {
		opts = *o
	}
	book := bookstore.New(name, req.OriginalFilename, req.OriginalLines, opts)
	book.Metadata.ID = id
	book.Settings.ProcessingDate = time.Now().UTC()
	for i, res := range req.ProcessedData {
		if err := book.SetSentence(i, res); err != nil {
			writeError(w, r, err)
			return
		}
	}

	if err := s.store.Save(r.Context(), book); err != nil {
		writeError(w, r, err)
		return
	}
	observe.Logger(r.Context()).Info("book saved", "id", id, "lines", book.Metadata.TotalLines, "processed", book.Metadata.ProcessedLines)
	writeJSON(w, http.StatusOK, saveResponse{
		Success:        true,
		ID:             id,
		ProcessedLines: book.Metadata.ProcessedLines,
		SavedAt:        book.Metadata.SavedAt,
	})
}

type saveSentenceRequest struct {
	SentenceData *reader.SentenceResult `json:"sentenceData"`
}

type saveSentenceResponse struct {
	Success       bool      `json:"success"`
	SentenceIndex int       `json:"sentenceIndex"`
	SavedAt       time.Time `json:"savedAt"`
}

func (s *Server) handleSaveSentence(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, r, badRequest("sentence index %q is not a number", r.PathValue("index")))
		return
	}
	var req saveSentenceRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.SentenceData == nil {
		writeError(w, r, badRequest("sentenceData is required"))
		return
	}

	if err := s.store.SaveSentence(r.Context(), r.PathValue("id"), index, req.SentenceData); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saveSentenceResponse{Success: true, SentenceIndex: index, SavedAt: time.Now().UTC()})
}

type importResponse struct {
	ID             string   `json:"id"`
	BookName       string   `json:"bookname"`
	TotalLines     int      `json:"totalLines"`
	ProcessedLines int      `json:"processedLines"`
	Errors         []string `json:"errors,omitempty"`
}

// handleImport splits a plain-text body into sentences, processes every
// sentence and saves the book. Processing is dictionary-only unless the
// request sets ?mode=enhanced. Sentences that fail fatally are left
// unprocessed and reported.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := enrich.ModeLocal
	if m := enrich.Mode(q.Get("mode")); m != "" {
		if !m.IsValid() {
			writeError(w, r, badRequest("unknown mode %q", m))
			return
		}
		mode = m
	}

	text, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err != nil {
		writeError(w, r, err)
		return
	}

	p := s.Pipeline()
	res, err := bookstore.Import(r.Context(), s.store, p.Processor, bookstore.ImportRequest{
		ID:       r.PathValue("id"),
		Name:     q.Get("name"),
		Filename: q.Get("filename"),
		Text:     string(text),
		Mode:     mode,
		Merge:    p.Merge,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	meta := res.Book.Metadata
	resp := importResponse{
		ID:             meta.ID,
		BookName:       meta.BookName,
		TotalLines:     meta.TotalLines,
		ProcessedLines: meta.ProcessedLines,
	}
	for _, sk := range res.Skipped {
		resp.Errors = append(resp.Errors, sk.Error())
	}
	writeJSON(w, http.StatusOK, resp)
}
