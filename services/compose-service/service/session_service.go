package service

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/RigelNana/backdrop/services/compose-service/models"
)

type AssetKind string

const (
	AssetPhoto       AssetKind = "photo"
	AssetInspiration AssetKind = "inspiration"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrAssetNotFound   = errors.New("asset not found")
	ErrUnknownKind     = errors.New("kind must be photo or inspiration")
	ErrAssetTooLarge   = errors.New("image exceeds upload limit")
)

// Session holds the uploads and pairs of one user. It lives in memory only.
type Session struct {
	ID                  string              `json:"id"`
	Photos              []models.ImageAsset `json:"photos"`
	Inspirations        []models.ImageAsset `json:"inspirations"`
	Pairs               []models.Pair       `json:"pairs"`
	SelectedPhoto       string              `json:"selected_photo,omitempty"`
	SelectedInspiration string              `json:"selected_inspiration,omitempty"`
	CreatedAt           time.Time           `json:"created_at"`
}

// SelectResult reports the session after a selection and the pair it
// created, if any.
type SelectResult struct {
	Session *Session     `json:"session"`
	Paired  *models.Pair `json:"paired,omitempty"`
}

type SessionService struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	maxBytes int64
	logger   *logrus.Logger
}

func NewSessionService(maxBytes int64, logger *logrus.Logger) *SessionService {
	return &SessionService{
		sessions: make(map[string]*Session),
		maxBytes: maxBytes,
		logger:   logger,
	}
}

func (s *SessionService) Create() *Session {
	sess := &Session{
		ID:           uuid.NewString(),
		Photos:       []models.ImageAsset{},
		Inspirations: []models.ImageAsset{},
		Pairs:        []models.Pair{},
		CreatedAt:    time.Now(),
	}
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	s.logger.WithField("session_id", sess.ID).Info("session created")
	return sess.clone()
}

// Get returns a copy of the session.
func (s *SessionService) Get(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess.clone(), nil
}

// Delete ends the session and discards all of its assets.
func (s *SessionService) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, id)
	s.logger.WithField("session_id", id).Info("session ended")
	return nil
}

// AddAsset stores a new upload and returns it with its assigned ID.
func (s *SessionService) AddAsset(id string, kind AssetKind, asset models.ImageAsset) (models.ImageAsset, error) {
	if asset.Empty() {
		return models.ImageAsset{}, validationError("%s image is empty", kind)
	}
	if s.maxBytes > 0 && int64(asset.Size()) > s.maxBytes {
		return models.ImageAsset{}, fmt.Errorf("%w: %d > %d bytes", ErrAssetTooLarge, asset.Size(), s.maxBytes)
	}
	asset.ID = uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return models.ImageAsset{}, ErrSessionNotFound
	}
	switch kind {
	case AssetPhoto:
		sess.Photos = append(sess.Photos, asset)
	case AssetInspiration:
		sess.Inspirations = append(sess.Inspirations, asset)
	default:
		return models.ImageAsset{}, ErrUnknownKind
	}
	return asset, nil
}

// RemoveAsset drops an upload. Pairs already built from it keep their copy.
func (s *SessionService) RemoveAsset(id string, kind AssetKind, assetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}

	var list *[]models.ImageAsset
	var selected *string
	switch kind {
	case AssetPhoto:
		list, selected = &sess.Photos, &sess.SelectedPhoto
	case AssetInspiration:
		list, selected = &sess.Inspirations, &sess.SelectedInspiration
	default:
		return ErrUnknownKind
	}

	idx := indexOf(*list, assetID)
	if idx < 0 {
		return ErrAssetNotFound
	}
	*list = append((*list)[:idx], (*list)[idx+1:]...)
	if *selected == assetID {
		*selected = ""
	}
	return nil
}

// Select toggles the selection of an asset. Selecting the already selected
// asset clears it; once one photo and one inspiration are selected they
// become a pair and both selections are cleared.
func (s *SessionService) Select(id string, kind AssetKind, assetID string) (*SelectResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}

	switch kind {
	case AssetPhoto:
		if indexOf(sess.Photos, assetID) < 0 {
			return nil, ErrAssetNotFound
		}
		if sess.SelectedPhoto == assetID {
			sess.SelectedPhoto = ""
			return &SelectResult{Session: sess.clone()}, nil
		}
		sess.SelectedPhoto = assetID
	case AssetInspiration:
		if indexOf(sess.Inspirations, assetID) < 0 {
			return nil, ErrAssetNotFound
		}
		if sess.SelectedInspiration == assetID {
			sess.SelectedInspiration = ""
			return &SelectResult{Session: sess.clone()}, nil
		}
		sess.SelectedInspiration = assetID
	default:
		return nil, ErrUnknownKind
	}

	if sess.SelectedPhoto == "" || sess.SelectedInspiration == "" {
		return &SelectResult{Session: sess.clone()}, nil
	}
	pair := sess.pairSelected()
	return &SelectResult{Session: sess.clone(), Paired: &pair}, nil
}

// AddPair pairs two assets directly, without touching the selection.
func (s *SessionService) AddPair(id, photoID, inspirationID string) (models.Pair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return models.Pair{}, ErrSessionNotFound
	}
	pi, ii := indexOf(sess.Photos, photoID), indexOf(sess.Inspirations, inspirationID)
	if pi < 0 || ii < 0 {
		return models.Pair{}, ErrAssetNotFound
	}
	pair := models.Pair{Photo: sess.Photos[pi], Inspiration: sess.Inspirations[ii]}
	sess.Pairs = append(sess.Pairs, pair)
	return pair, nil
}

func (s *SessionService) RemovePair(id string, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	if index < 0 || index >= len(sess.Pairs) {
		return ErrPairOutOfRange
	}
	sess.Pairs = append(sess.Pairs[:index], sess.Pairs[index+1:]...)
	return nil
}

// Pairs returns a copy of the session's pairs in order.
func (s *SessionService) Pairs(id string) ([]models.Pair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return append([]models.Pair(nil), sess.Pairs...), nil
}

func (sess *Session) pairSelected() models.Pair {
	pair := models.Pair{
		Photo:       sess.Photos[indexOf(sess.Photos, sess.SelectedPhoto)],
		Inspiration: sess.Inspirations[indexOf(sess.Inspirations, sess.SelectedInspiration)],
	}
	sess.Pairs = append(sess.Pairs, pair)
	sess.SelectedPhoto, sess.SelectedInspiration = "", ""
	return pair
}

func (sess *Session) clone() *Session {
	c := *sess
	c.Photos = append([]models.ImageAsset{}, sess.Photos...)
	c.Inspirations = append([]models.ImageAsset{}, sess.Inspirations...)
	c.Pairs = append([]models.Pair{}, sess.Pairs...)
	return &c
}

func indexOf(assets []models.ImageAsset, id string) int {
	for i, a := range assets {
		if a.ID == id {
			return i
		}
	}
	return -1
}
