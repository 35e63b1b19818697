package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/zombor/auto-accounting/internal/imagestate"
	"github.com/zombor/auto-accounting/internal/ledger"
	"github.com/zombor/auto-accounting/internal/preview"
)

// maxUploadSize covers high-resolution phone photos
const maxUploadSize = int64(50 << 20)

const (
	msgNoImage         = "先に画像を選択してください"
	msgNoFile          = "画像ファイルが選択されていません"
	msgTooLarge        = "ファイルが大きすぎます。50MB以下の画像を選択してください"
	msgBadForm         = "画像を読み込めませんでした。もう一度お試しください"
	msgProcessing      = "会計処理中です。しばらくお待ちください"
	msgAccountingError = "会計処理でエラーが発生しました。詳細: "
)

type notice struct {
	Kind    string // "input" or "network"
	Message string
}

type imageView struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
	PreviewURL  string `json:"preview_url"`
}

type topView struct {
	Image      *imageView
	Notice     *notice
	Processing bool
}

type resultView struct {
	Image *imageView
	Items []ledger.LineItem
	Total int
}

func newImageView(img imagestate.SelectedImage) *imageView {
	return &imageView{
		Name:        img.Name,
		ContentType: img.ContentType,
		Size:        len(img.Data),
		PreviewURL:  "/preview/" + string(img.Preview),
	}
}

// currentImageView returns nil when the browser has no session or no image
func currentImageView(sess *imagestate.Session) *imageView {
	if sess == nil {
		return nil
	}
	img, ok := sess.Store.Current()
	if !ok {
		return nil
	}
	return newImageView(img)
}

func render(w http.ResponseWriter, code int, name string, data any) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		slog.Error("Error rendering template", "template", name, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	w.Write(buf.Bytes())
}

func (s *Server) renderTop(w http.ResponseWriter, sess *imagestate.Session, code int, n *notice) {
	view := topView{
		Image:  currentImageView(sess),
		Notice: n,
	}
	if sess != nil {
		view.Processing = sess.Processing()
	}
	render(w, code, "top", view)
}

// findSession returns the browser's session, or nil before it has selected an image
func (s *Server) findSession(r *http.Request) *imagestate.Session {
	sess, ok := s.sessions.Find(r)
	if !ok {
		return nil
	}
	return sess
}

// handleTop serves the top screen
func (s *Server) handleTop(w http.ResponseWriter, r *http.Request) {
	sess := s.findSession(r)
	s.renderTop(w, sess, http.StatusOK, nil)
}

// handleSelectImage makes the uploaded file the session's current image
func (s *Server) handleSelectImage(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Session(w, r)

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		msg := msgBadForm
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			msg = msgTooLarge
		}
		s.renderTop(w, sess, http.StatusBadRequest, &notice{Kind: "input", Message: msg})
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Warn("No file in form", "error", err)
		s.renderTop(w, sess, http.StatusBadRequest, &notice{Kind: "input", Message: msgNoFile})
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		s.renderTop(w, sess, http.StatusInternalServerError, &notice{Kind: "input", Message: msgBadForm})
		return
	}

	contentType := detectContentType(header.Header.Get("Content-Type"), header.Filename, data)
	if err := sess.Store.Set(header.Filename, contentType, data); err != nil {
		slog.Error("Error selecting image", "filename", header.Filename, "error", err)
		s.renderTop(w, sess, http.StatusInternalServerError, &notice{Kind: "input", Message: msgBadForm})
		return
	}

	slog.Info("Image selected", "session", sess.ID, "filename", header.Filename, "content_type", contentType, "size", len(data))
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleClearImage clears the session's current image
func (s *Server) handleClearImage(w http.ResponseWriter, r *http.Request) {
	if sess := s.findSession(r); sess != nil {
		sess.Store.Clear()
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleAccount sends the current image to the backend and moves on to the result screen
func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	sess := s.findSession(r)

	var (
		img imagestate.SelectedImage
		ok  bool
	)
	if sess != nil {
		img, ok = sess.Store.Current()
	}
	if !ok {
		slog.Warn("Accounting requested without an image")
		s.renderTop(w, sess, http.StatusBadRequest, &notice{Kind: "input", Message: msgNoImage})
		return
	}

	if !sess.BeginProcessing() {
		s.renderTop(w, sess, http.StatusConflict, &notice{Kind: "input", Message: msgProcessing})
		return
	}
	defer sess.EndProcessing()

	// A browser giving up on the request does not abort the backend call
	ctx := context.WithoutCancel(r.Context())
	result, err := s.backend.Binarize(ctx, img.Name, img.Data)
	if err != nil {
		slog.Error("Error during accounting", "session", sess.ID, "filename", img.Name, "error", err)
		s.renderTop(w, sess, http.StatusBadGateway, &notice{Kind: "network", Message: msgAccountingError + err.Error()})
		return
	}

	if result.Fields != nil {
		slog.Info("Binarize result", "session", sess.ID, "status", result.StatusCode, "fields", result.Fields)
	} else {
		slog.Info("Binarize result", "session", sess.ID, "status", result.StatusCode, "body", string(result.Body))
	}
	http.Redirect(w, r, "/result", http.StatusSeeOther)
}

// handleResult serves the result screen
func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	sess := s.findSession(r)
	render(w, http.StatusOK, "result", resultView{
		Image: currentImageView(sess),
		Items: s.catalog,
		Total: ledger.Total(s.catalog),
	})
}

// handlePreview serves the preview of the session's current image
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	sess := s.findSession(r)
	h := preview.Handle(r.PathValue("handle"))

	var (
		img imagestate.SelectedImage
		ok  bool
	)
	if sess != nil {
		img, ok = sess.Store.Current()
	}
	if !ok || img.Preview != h {
		http.Error(w, "Preview not found", http.StatusNotFound)
		return
	}

	data, contentType, err := s.previews.Open(h)
	if errors.Is(err, preview.ErrReleased) || errors.Is(err, preview.ErrNotFound) {
		http.Error(w, "Preview not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("Error rendering preview", "filename", img.Name, "content_type", img.ContentType, "error", err)
		http.Error(w, "Preview cannot be displayed", http.StatusUnsupportedMediaType)
		return
	}

	// Uploaded bytes are served from our own origin: never sniff them and never run anything inside
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'; sandbox")
	w.Write(data)
}

// handleAPIImage returns the current image's metadata
func (s *Server) handleAPIImage(w http.ResponseWriter, r *http.Request) {
	view := currentImageView(s.findSession(r))
	if view == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": imagestate.ErrNoImage.Error()})
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleAPIResult returns the catalog and its total
func (s *Server) handleAPIResult(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"items": s.catalog,
		"total": ledger.Total(s.catalog),
	})
}

// handleStaticCSS serves the CSS file
func (s *Server) handleStaticCSS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/css")
	w.Write(appCSS)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// detectContentType trusts the browser's label, then the extension, then the bytes
func detectContentType(declared, filename string, data []byte) string {
	contentType := strings.ToLower(strings.TrimSpace(declared))
	if contentType != "" && contentType != "application/octet-stream" {
		return contentType
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	}

	return http.DetectContentType(data)
}
