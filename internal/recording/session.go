// Package recording owns the lifecycle of one audio capture session:
// idle → recording → stopping → uploading → done, with cancellation from
// idle or recording. The Session is the sole mutator of its state.
package recording

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jpvelasco/placedrop/internal/capture"
	"github.com/jpvelasco/placedrop/internal/model"
)

// State names a point in the session lifecycle.
type State string

const (
	StateIdle      State = "idle"
	StateRecording State = "recording"
	StateStopping  State = "stopping"
	StateUploading State = "uploading"
	StateDone      State = "done"
	StateCancelled State = "cancelled"
)

// ErrInvalidTransition rejects an operation that is not legal in the
// session's current state. The caller is never queued.
var ErrInvalidTransition = errors.New("invalid session transition")

// audioNamespace prefixes every audio object key in storage.
const audioNamespace = "audio"

// MediaUploader is the slice of the uploader the session needs.
type MediaUploader interface {
	Upload(ctx context.Context, cap *model.MediaCapture, namespace, owner string) (*model.StoredMediaRef, error)
}

// Session is a single-owner audio recording session. One per screen/client;
// a second Start while a session is active is rejected.
type Session struct {
	mu        sync.Mutex
	state     State
	startedAt time.Time

	perms capture.Permissions
	rec   capture.Recorder
	up    MediaUploader
	owner string
	log   zerolog.Logger
}

// NewSession constructs an idle session for one owner.
func NewSession(perms capture.Permissions, rec capture.Recorder, up MediaUploader, owner string, log zerolog.Logger) *Session {
	return &Session{
		state: StateIdle,
		perms: perms,
		rec:   rec,
		up:    up,
		owner: owner,
		log:   log.With().Str("component", "recording").Str("owner", owner).Logger(),
	}
}

// State reports the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// StartedAt reports when the current or last recording began.
func (s *Session) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}

// Start begins capturing. Valid only from Idle or Done. A microphone
// permission refusal leaves the state untouched so the caller can re-prompt.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle && s.state != StateDone {
		return fmt.Errorf("start from %s: %w", s.state, ErrInvalidTransition)
	}
	granted, err := s.perms.Microphone(ctx)
	if err != nil {
		return fmt.Errorf("check microphone permission: %w", err)
	}
	if !granted {
		return capture.ErrPermissionDenied
	}
	if err := s.rec.Start(ctx); err != nil {
		return fmt.Errorf("start recorder: %w", err)
	}
	s.state = StateRecording
	s.startedAt = time.Now().UTC()
	s.log.Info().Msg("recording started")
	return nil
}

// Stop finalizes the capture and uploads it. Valid only from Recording.
// Whatever the upload outcome the session settles in Done; a failed upload
// is reported but the bytes are not retried or re-queued.
func (s *Session) Stop(ctx context.Context) (*model.StoredMediaRef, error) {
	s.mu.Lock()
	if s.state != StateRecording {
		defer s.mu.Unlock()
		return nil, fmt.Errorf("stop from %s: %w", s.state, ErrInvalidTransition)
	}
	s.state = StateStopping
	s.mu.Unlock()

	path, mime, err := s.rec.Stop(ctx)
	if err != nil {
		s.settle()
		return nil, fmt.Errorf("finalize capture: %w", err)
	}
	cap := &model.MediaCapture{LocalPath: path, Kind: model.KindAudio, MIMEHint: mime}

	s.mu.Lock()
	s.state = StateUploading
	s.mu.Unlock()

	ref, err := s.up.Upload(ctx, cap, audioNamespace, s.owner)
	s.settle()
	if err != nil {
		s.log.Error().Err(err).Msg("recording upload failed")
		return nil, err
	}
	s.log.Info().Str("key", ref.RemoteKey).Msg("recording stored")
	return ref, nil
}

// Cancel abandons the session. From Recording the captured bytes are
// discarded without upload; from Idle it is a pure state change. While a
// stop/upload is in flight Cancel is a no-op: an in-flight upload is never
// aborted, the caller waits for settlement.
func (s *Session) Cancel(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateRecording:
		if err := s.rec.Discard(ctx); err != nil {
			s.log.Warn().Err(err).Msg("discard recording")
		}
		s.state = StateCancelled
		s.log.Info().Msg("recording cancelled")
		return nil
	case StateIdle:
		s.state = StateCancelled
		return nil
	case StateStopping, StateUploading:
		return nil
	default:
		return fmt.Errorf("cancel from %s: %w", s.state, ErrInvalidTransition)
	}
}

// settle moves the session to Done, releasing any capture reference.
func (s *Session) settle() {
	s.mu.Lock()
	s.state = StateDone
	s.mu.Unlock()
}
