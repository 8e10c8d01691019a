// Package api exposes the HTTP surface of PlaceDrop: media upload, the
// recording session flow, the live place collection and route computation.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/jpvelasco/placedrop/internal/capture"
	"github.com/jpvelasco/placedrop/internal/config"
	"github.com/jpvelasco/placedrop/internal/model"
	"github.com/jpvelasco/placedrop/internal/places"
	"github.com/jpvelasco/placedrop/internal/queue"
	"github.com/jpvelasco/placedrop/internal/recording"
	"github.com/jpvelasco/placedrop/internal/route"
	"github.com/jpvelasco/placedrop/internal/uploader"
)

const (
	imageNamespace = "images"
	defaultOwner   = "anonymous"
	audioMIME      = "audio/mp4"
	audioExt       = ".m4a"
)

// Server wires the core components behind HTTP handlers.
type Server struct {
	cfg    *config.Config
	repo   places.Repository
	up     *uploader.Uploader
	dirs   route.Directions
	queue  *asynq.Client
	log    zerolog.Logger
	server *http.Server
	once   sync.Once

	mu       sync.Mutex
	sessions map[string]*ownerSession
}

// ownerSession pairs one client's recording session with the buffer
// recorder its audio bytes arrive through.
type ownerSession struct {
	sess *recording.Session
	rec  *capture.BufferRecorder
}

// New constructs a Server. The asynq client may be nil, in which case place
// enrichment is skipped.
func New(cfg *config.Config, repo places.Repository, up *uploader.Uploader, dirs route.Directions, queueClient *asynq.Client, log zerolog.Logger) *Server {
	return &Server{
		cfg:      cfg,
		repo:     repo,
		up:       up,
		dirs:     dirs,
		queue:    queueClient,
		log:      log.With().Str("component", "api").Logger(),
		sessions: make(map[string]*ownerSession),
	}
}

// Handler builds the route table. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/media", s.handleMedia)
	mux.HandleFunc("/places", s.handlePlaces)
	mux.HandleFunc("/places/watch", s.handlePlacesWatch)
	mux.HandleFunc("/recordings", s.handleRecordingState)
	mux.HandleFunc("/recordings/start", s.handleRecordingStart)
	mux.HandleFunc("/recordings/stop", s.handleRecordingStop)
	mux.HandleFunc("/recordings/cancel", s.handleRecordingCancel)
	mux.HandleFunc("/route", s.handleRoute)
	return corsMiddleware(s.loggingMiddleware(mux))
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.once.Do(func() {
		s.server = &http.Server{
			Addr:    s.cfg.Address,
			Handler: s.Handler(),
		}
	})
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()
	s.log.Info().Str("address", s.cfg.Address).Msg("api listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleMedia accepts one multipart image upload and reports the stored
// reference straight back to the caller.
func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxMediaSize+1024)
	mr, err := r.MultipartReader()
	if err != nil {
		http.Error(w, "expecting multipart form", http.StatusBadRequest)
		return
	}
	part, err := nextFilePart(mr)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer part.Close()
	tmp, err := s.stageUpload(part)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer os.Remove(tmp.path)
	if !strings.HasPrefix(tmp.contentType, "image/") {
		http.Error(w, "only image uploads supported", http.StatusBadRequest)
		return
	}

	adapter := capture.NewAdapter(
		capture.StaticPermissions{CameraGranted: true, MicrophoneGranted: true},
		capture.FilePicker{Path: tmp.path, MIME: tmp.contentType},
	)
	cap, err := adapter.CaptureImage(ctx, capture.SourceGallery)
	if err != nil {
		if errors.Is(err, capture.ErrCancelled) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		s.log.Error().Err(err).Msg("image capture failed")
		http.Error(w, "failed to accept image", http.StatusInternalServerError)
		return
	}
	ref, err := s.up.Upload(ctx, cap, imageNamespace, ownerID(r))
	if err != nil {
		s.respondUploadError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, ref)
}

func (s *Server) handlePlaces(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handlePlacesList(w, r)
	case http.MethodPost:
		s.handlePlaceCreate(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handlePlacesList(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.repo.All(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("list places")
		http.Error(w, "failed to load places", http.StatusInternalServerError)
		return
	}
	body := map[string]any{"places": snapshot}
	if len(snapshot) == 0 {
		// Advisory, not a failure: the collection simply has nothing yet.
		body["notice"] = "no places stored yet"
	}
	respondJSON(w, http.StatusOK, body)
}

func (s *Server) handlePlaceCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var draft places.Draft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	id, err := s.repo.Create(ctx, draft)
	if err != nil {
		if errors.Is(err, places.ErrValidation) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.log.Error().Err(err).Msg("create place")
		http.Error(w, "failed to store place", http.StatusInternalServerError)
		return
	}
	if s.queue != nil {
		payload := queue.EnrichPayload{PlaceID: id, Latitude: draft.Latitude, Longitude: draft.Longitude}
		if err := queue.EnqueueEnrich(ctx, s.queue, payload); err != nil {
			// Enrichment is best effort; the place is stored either way.
			s.log.Warn().Err(err).Str("place", id).Msg("enqueue enrichment")
		}
	}
	respondJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// handlePlacesWatch streams full place snapshots as server-sent events until
// the client disconnects. Closing the connection releases the subscription.
func (s *Server) handlePlacesWatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	sub, err := s.repo.Subscribe(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("subscribe places")
		http.Error(w, "failed to subscribe", http.StatusInternalServerError)
		return
	}
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case snapshot, ok := <-sub.Updates():
			if !ok {
				return
			}
			data, err := json.Marshal(snapshot)
			if err != nil {
				s.log.Error().Err(err).Msg("encode snapshot")
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}

func (s *Server) handleRecordingState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	entry := s.ownerSession(ownerID(r))
	respondJSON(w, http.StatusOK, map[string]string{"state": string(entry.sess.State())})
}

func (s *Server) handleRecordingStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	entry := s.ownerSession(ownerID(r))
	if err := entry.sess.Start(r.Context()); err != nil {
		s.respondSessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"state": string(entry.sess.State())})
}

// handleRecordingStop receives the finished audio bytes in the request body,
// finalizes the capture and uploads it.
func (s *Server) handleRecordingStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	entry := s.ownerSession(ownerID(r))
	body := http.MaxBytesReader(w, r.Body, s.cfg.MaxMediaSize+1024)
	if _, err := io.Copy(entry.rec, body); err != nil {
		http.Error(w, "failed to read audio bytes", http.StatusBadRequest)
		return
	}
	ref, err := entry.sess.Stop(r.Context())
	if err != nil {
		s.respondSessionError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, ref)
}

func (s *Server) handleRecordingCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	owner := ownerID(r)
	entry := s.ownerSession(owner)
	if err := entry.sess.Cancel(r.Context()); err != nil {
		s.respondSessionError(w, err)
		return
	}
	state := entry.sess.State()
	if state == recording.StateCancelled {
		// Cancelled is terminal; the next start gets a fresh session.
		s.dropSession(owner)
	}
	respondJSON(w, http.StatusOK, map[string]string{"state": string(state)})
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	origin, err := fixFromQuery(r, "olat", "olon")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	dest, err := fixFromQuery(r, "dlat", "dlon")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	path, err := s.dirs.Route(r.Context(), origin, dest)
	if err != nil {
		// Markers stay renderable client side; only the path is missing.
		s.log.Warn().Err(err).Msg("route computation failed")
		respondJSON(w, http.StatusBadGateway, map[string]string{"error": "route unavailable"})
		return
	}
	respondJSON(w, http.StatusOK, path)
}

// ownerSession returns the recording session for one client, creating it on
// first use. Exactly one session per owner.
func (s *Server) ownerSession(owner string) *ownerSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.sessions[owner]
	if !ok {
		rec := capture.NewBufferRecorder(audioMIME, audioExt)
		perms := capture.StaticPermissions{CameraGranted: true, MicrophoneGranted: true}
		entry = &ownerSession{
			sess: recording.NewSession(perms, rec, s.up, owner, s.log),
			rec:  rec,
		}
		s.sessions[owner] = entry
	}
	return entry
}

func (s *Server) dropSession(owner string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, owner)
}

func (s *Server) respondSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, recording.ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, capture.ErrPermissionDenied):
		http.Error(w, "microphone permission denied", http.StatusForbidden)
	default:
		s.respondUploadError(w, err)
	}
}

func (s *Server) respondUploadError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, uploader.ErrReadFailed):
		s.log.Error().Err(err).Msg("capture read failed")
		http.Error(w, "capture could not be read", http.StatusInternalServerError)
	case errors.Is(err, uploader.ErrUploadFailed):
		s.log.Error().Err(err).Msg("media upload failed")
		http.Error(w, "media upload failed", http.StatusBadGateway)
	default:
		s.log.Error().Err(err).Msg("media operation failed")
		http.Error(w, "media operation failed", http.StatusInternalServerError)
	}
}

// ownerID identifies the signed-in user. Authentication itself is handled
// upstream; the header is trusted here.
func ownerID(r *http.Request) string {
	if owner := strings.TrimSpace(r.Header.Get("X-Owner-ID")); owner != "" {
		return owner
	}
	return defaultOwner
}

func fixFromQuery(r *http.Request, latKey, lonKey string) (fix model.GeoFix, err error) {
	lat, err := strconv.ParseFloat(r.URL.Query().Get(latKey), 64)
	if err != nil {
		return fix, fmt.Errorf("invalid %s", latKey)
	}
	lon, err := strconv.ParseFloat(r.URL.Query().Get(lonKey), 64)
	if err != nil {
		return fix, fmt.Errorf("invalid %s", lonKey)
	}
	fix.Latitude = lat
	fix.Longitude = lon
	return fix, nil
}

type stagedUpload struct {
	path        string
	size        int64
	contentType string
	filename    string
}

// stageUpload streams one multipart part to a temp file, enforcing the size
// cap and sniffing the content type from the first bytes.
func (s *Server) stageUpload(part *multipart.Part) (*stagedUpload, error) {
	tmpFile, err := os.CreateTemp("", "placedrop-upload-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	discard := func() {
		tmpFile.Close()
		os.Remove(tmpFile.Name())
	}
	var sniff []byte
	buf := make([]byte, 32*1024)
	var written int64
	for {
		n, readErr := part.Read(buf)
		if n > 0 {
			written += int64(n)
			if written > s.cfg.MaxMediaSize {
				discard()
				return nil, fmt.Errorf("file exceeds limit (%d bytes)", s.cfg.MaxMediaSize)
			}
			if len(sniff) < 512 {
				chunk := n
				if remain := 512 - len(sniff); chunk > remain {
					chunk = remain
				}
				sniff = append(sniff, buf[:chunk]...)
			}
			if _, err := tmpFile.Write(buf[:n]); err != nil {
				discard()
				return nil, fmt.Errorf("write temp file: %w", err)
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			discard()
			return nil, fmt.Errorf("read upload: %w", readErr)
		}
	}
	if written == 0 {
		discard()
		return nil, errors.New("empty file")
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpFile.Name())
		return nil, fmt.Errorf("close temp file: %w", err)
	}
	return &stagedUpload{
		path:        tmpFile.Name(),
		size:        written,
		contentType: http.DetectContentType(sniff),
		filename:    part.FileName(),
	}, nil
}

func nextFilePart(mr *multipart.Reader) (*multipart.Part, error) {
	for {
		part, err := mr.NextPart()
		if err != nil {
			return nil, err
		}
		if part.FormName() == "file" {
			return part, nil
		}
		part.Close()
	}
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		// The connection is gone; nothing else to do.
		_ = err
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization,X-Owner-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}
