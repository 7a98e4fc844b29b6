// Package store is the job/track registry behind the Cluster Helper's
// control plane: register a mux job, register tracks against it, record
// per-track split policy and cue strategy, and look state back up by ID.
package store

import (
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/andradeandrey/mkvmux/internal/packet"
	"github.com/andradeandrey/mkvmux/internal/splitpoint"
)

var (
	ErrJobNotExist         = errors.New("store: unknown job")
	ErrTrackNotExist       = errors.New("store: unknown track")
	ErrTrackNotUnique      = errors.New("store: track name already registered for this job")
	ErrJobAlreadyRendering = errors.New("store: can't do that while a job is rendering")
)

// JobMetadata describes one mux job: a single Cluster Helper instance and
// its registered tracks.
type JobMetadata struct {
	ID         string
	Name       string
	Rendering  bool
	TrackNames []string
}

// TrackMetadata describes one track registered against a job.
type TrackMetadata struct {
	JobID        string
	Name         string
	Type         packet.TrackType
	CueStrategy  packet.CueStrategy
	SplitPoints  []splitpoint.Point
	FreeRefsMark packet.Timecode
}

// JobStore is the control-plane-facing registry.
type JobStore interface {
	// NewJob creates a job entry and returns its generated ID.
	NewJob(name string) (*JobMetadata, error)
	// RegisterTrack adds a track to an existing job. Track names must be
	// unique within a job.
	RegisterTrack(jobID, trackName string, typ packet.TrackType) (*TrackMetadata, error)
	// SetTrackCueStrategy records a track's configured cue policy.
	SetTrackCueStrategy(jobID, trackName string, strategy packet.CueStrategy) error
	// SetTrackSplitPoints replaces a track's registered split points.
	SetTrackSplitPoints(jobID, trackName string, points []splitpoint.Point) error
	// SetTrackFreeRefs records a track's current free-refs watermark.
	SetTrackFreeRefs(jobID, trackName string, tc packet.Timecode) error
	// StartRendering marks a job as actively rendering; fails if already
	// rendering.
	StartRendering(jobID string) error
	// StopRendering clears the rendering flag.
	StopRendering(jobID string) error
	// GetJob looks up a job's metadata.
	GetJob(jobID string) (*JobMetadata, error)
	// GetTrack looks up a single track's metadata.
	GetTrack(jobID, trackName string) (*TrackMetadata, error)
}

type memStore struct {
	mutex sync.Mutex
	jobs  map[string]*JobMetadata
	track map[string]map[string]*TrackMetadata // jobID -> trackName -> metadata
}

// NewMemStore constructs an in-memory JobStore backed by maps; the core has
// no persistence requirement beyond the lifetime of one mux run.
func NewMemStore() JobStore {
	return &memStore{
		jobs:  make(map[string]*JobMetadata),
		track: make(map[string]map[string]*TrackMetadata),
	}
}

func (s *memStore) NewJob(name string) (*JobMetadata, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	job := &JobMetadata{ID: uuid.NewString(), Name: name}
	s.jobs[job.ID] = job
	s.track[job.ID] = make(map[string]*TrackMetadata)
	return job, nil
}

func (s *memStore) RegisterTrack(jobID, trackName string, typ packet.TrackType) (*TrackMetadata, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, ErrJobNotExist
	}
	tracks := s.track[jobID]
	if _, exists := tracks[trackName]; exists {
		return nil, ErrTrackNotUnique
	}

	tr := &TrackMetadata{JobID: jobID, Name: trackName, Type: typ, FreeRefsMark: -1}
	tracks[trackName] = tr
	job.TrackNames = append(job.TrackNames, trackName)
	return tr, nil
}

func (s *memStore) SetTrackCueStrategy(jobID, trackName string, strategy packet.CueStrategy) error {
	tr, err := s.lookupTrack(jobID, trackName)
	if err != nil {
		return err
	}
	tr.CueStrategy = strategy
	return nil
}

func (s *memStore) SetTrackSplitPoints(jobID, trackName string, points []splitpoint.Point) error {
	tr, err := s.lookupTrack(jobID, trackName)
	if err != nil {
		return err
	}
	tr.SplitPoints = append([]splitpoint.Point(nil), points...)
	return nil
}

func (s *memStore) SetTrackFreeRefs(jobID, trackName string, tc packet.Timecode) error {
	tr, err := s.lookupTrack(jobID, trackName)
	if err != nil {
		return err
	}
	tr.FreeRefsMark = tc
	return nil
}

func (s *memStore) StartRendering(jobID string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotExist
	}
	if job.Rendering {
		return ErrJobAlreadyRendering
	}
	job.Rendering = true
	return nil
}

func (s *memStore) StopRendering(jobID string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotExist
	}
	job.Rendering = false
	return nil
}

func (s *memStore) GetJob(jobID string) (*JobMetadata, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, ErrJobNotExist
	}
	cp := *job
	cp.TrackNames = append([]string(nil), job.TrackNames...)
	return &cp, nil
}

func (s *memStore) GetTrack(jobID, trackName string) (*TrackMetadata, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.lookupTrackLocked(jobID, trackName)
}

func (s *memStore) lookupTrack(jobID, trackName string) (*TrackMetadata, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.lookupTrackLocked(jobID, trackName)
}

func (s *memStore) lookupTrackLocked(jobID, trackName string) (*TrackMetadata, error) {
	tracks, ok := s.track[jobID]
	if !ok {
		return nil, ErrJobNotExist
	}
	tr, ok := tracks[trackName]
	if !ok {
		return nil, ErrTrackNotExist
	}
	return tr, nil
}

// ValidateTrackName rejects empty or whitespace-only names.
func ValidateTrackName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("store: track name must not be empty")
	}
	return nil
}
