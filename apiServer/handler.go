package apiServer

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	suistream "github.com/suistream/suistream"
	"github.com/suistream/suistream/pkg/library"
	"github.com/suistream/suistream/pkg/uploader"
)

// maxUploadBytes caps the whole request body. A var so tests can lower
// it.
var maxUploadBytes int64 = 2 << 30

type publishMetadata struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Price       uint64  `json:"price"`
	Duration    float64 `json:"durationSeconds"`
}

type publishResponse struct {
	UploadID string `json:"uploadId"`
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(strings.ToLower(contentType), "multipart/form-data") {
		http.Error(w, "expected multipart/form-data", http.StatusUnsupportedMediaType)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, fmt.Sprintf("failed to parse multipart form: %v", err), http.StatusBadRequest)
		return
	}

	mediaFile, _, err := r.FormFile("media")
	if err != nil {
		http.Error(w, "media field is required", http.StatusBadRequest)
		return
	}
	defer mediaFile.Close()

	mediaBytes, err := io.ReadAll(mediaFile)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to read media: %v", err), http.StatusBadRequest)
		return
	}

	var coverBytes []byte
	if coverFile, _, err := r.FormFile("cover"); err == nil {
		defer coverFile.Close()
		coverBytes, err = io.ReadAll(coverFile)
		if err != nil {
			http.Error(w, fmt.Sprintf("failed to read cover: %v", err), http.StatusBadRequest)
			return
		}
	}

	var meta publishMetadata
	if metaValue := strings.TrimSpace(r.FormValue("metadata")); metaValue != "" {
		if err := json.Unmarshal([]byte(metaValue), &meta); err != nil {
			http.Error(w, fmt.Sprintf("invalid metadata: %v", err), http.StatusBadRequest)
			return
		}
	}
	if meta.Title == "" {
		http.Error(w, "metadata.title is required", http.StatusBadRequest)
		return
	}

	uploadID, err := newUploadID()
	if err != nil {
		s.log.Error("failed to create upload id", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	s.tracker.Begin(uploadID)

	req := uploader.Request{
		Title:       meta.Title,
		Description: meta.Description,
		Price:       meta.Price,
		Media:       mediaBytes,
		Cover:       coverBytes,
		Duration:    meta.Duration,
	}

	go func() {
		// Request contexts die with the response; the publish outlives it.
		ctx := context.Background()
		s.publishMu.Lock()
		defer s.publishMu.Unlock()
		s.tracker.Activate(uploadID)

		result, err := s.app.Publish(ctx, req)
		if err != nil {
			s.log.Error("publish failed", "uploadID", uploadID, "error", err)
		}
		s.tracker.Finish(uploadID, result.Record.VideoID, err)
	}()

	writeJSON(w, http.StatusAccepted, publishResponse{UploadID: uploadID})
}

func (s *Server) handleUploadStatus(w http.ResponseWriter, r *http.Request) {
	flow, ok := s.tracker.Get(r.PathValue("id"))
	if !ok {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, flow)
}

func (s *Server) handleListVideos(w http.ResponseWriter, _ *http.Request) {
	videos, err := s.app.Videos()
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	if videos == nil {
		videos = []library.Record{}
	}
	writeJSON(w, http.StatusOK, videos)
}

func (s *Server) handleGetVideo(w http.ResponseWriter, r *http.Request) {
	video, err := s.app.Video(r.PathValue("id"))
	if err != nil {
		var notFound *library.ErrNotFound
		if errors.As(err, &notFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, video)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeAppError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, suistream.ErrNotStarted) || errors.Is(err, suistream.ErrClosed) {
		status = http.StatusServiceUnavailable
	}
	s.log.Error("request failed", "error", err)
	http.Error(w, http.StatusText(status), status)
}

func newUploadID() (string, error) {
	var raw [16]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw[:]), nil
}
