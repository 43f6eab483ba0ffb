// Package account keeps the per-user settings: which platforms are connected
// and the user's preferences.
package account

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
	_ "time/tzdata"

	"github.com/sirupsen/logrus"

	"autopost/metrics"
	"autopost/post"
)

// StorageKey is the namespace account state is persisted under.
const StorageKey = "user-storage"

// Theme is the UI theme preference.
type Theme string

const (
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
	ThemeSystem Theme = "system"
)

// SocialConnection is the link state of one platform account.
type SocialConnection struct {
	Platform         post.Platform `json:"platform"`
	Connected        bool          `json:"connected"`
	Username         string        `json:"username,omitempty"`
	ProfileImage     string        `json:"profileImage,omitempty"`
	LastTokenRefresh *time.Time    `json:"lastTokenRefresh,omitempty"`
}

// Preferences are the user's defaults.
type Preferences struct {
	Theme                Theme           `json:"theme"`
	DefaultPlatforms     []post.Platform `json:"defaultPlatforms"`
	NotificationsEnabled bool            `json:"notificationsEnabled"`
	TimeZone             string          `json:"timeZone"`
}

// PreferencesPatch is a partial preferences update. Nil fields are kept.
type PreferencesPatch struct {
	Theme                *Theme          `json:"theme,omitempty"`
	DefaultPlatforms     []post.Platform `json:"defaultPlatforms,omitempty"`
	NotificationsEnabled *bool           `json:"notificationsEnabled,omitempty"`
	TimeZone             *string         `json:"timeZone,omitempty"`
}

type snapshot struct {
	Connections []SocialConnection `json:"connections"`
	Preferences Preferences        `json:"preferences"`
}

// DefaultPreferences returns the settings of a new user.
func DefaultPreferences() Preferences {
	return Preferences{
		Theme:                ThemeSystem,
		DefaultPlatforms:     append([]post.Platform(nil), post.Platforms...),
		NotificationsEnabled: true,
		TimeZone:             "UTC",
	}
}

// Store holds connections and preferences.
type Store struct {
	mu          sync.RWMutex
	connections map[post.Platform]SocialConnection
	prefs       Preferences
	persister   post.Persister
	logger      logrus.FieldLogger
	now         func() time.Time
}

// NewStore creates a store with every platform disconnected and default
// preferences.
func NewStore(persister post.Persister, logger logrus.FieldLogger) *Store {
	if persister == nil {
		persister = post.NopPersister{}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Store{
		connections: make(map[post.Platform]SocialConnection, len(post.Platforms)),
		prefs:       DefaultPreferences(),
		persister:   persister,
		logger:      logger.WithField("component", "account"),
		now:         time.Now,
	}
	for _, pl := range post.Platforms {
		s.connections[pl] = SocialConnection{Platform: pl}
	}
	return s
}

// Load merges the persisted snapshot over the defaults.
func (s *Store) Load(ctx context.Context) error {
	data, err := s.persister.Load(ctx, StorageKey)
	if err != nil {
		return fmt.Errorf("load %s: %w", StorageKey, err)
	}
	if len(data) == 0 {
		return nil
	}
	snap := snapshot{Preferences: DefaultPreferences()}
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decode %s: %w", StorageKey, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range snap.Connections {
		if c.Platform.Valid() {
			s.connections[c.Platform] = c
		}
	}
	s.prefs = snap.Preferences
	return nil
}

// Connections lists every platform's connection in display order.
func (s *Store) Connections() []SocialConnection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connectionsLocked()
}

// Connection returns the state of one platform.
func (s *Store) Connection(pl post.Platform) (SocialConnection, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.connections[pl]
	return c, ok
}

// Connect marks pl connected. Connecting again refreshes the profile.
func (s *Store) Connect(ctx context.Context, pl post.Platform, username, profileImage string) (SocialConnection, error) {
	if !pl.Valid() {
		return SocialConnection{}, fmt.Errorf("%w: unknown platform %q", post.ErrValidation, pl)
	}
	now := s.now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	c := SocialConnection{
		Platform:         pl,
		Connected:        true,
		Username:         username,
		ProfileImage:     profileImage,
		LastTokenRefresh: &now,
	}
	s.connections[pl] = c
	s.persistLocked(ctx)
	s.logger.WithFields(logrus.Fields{"platform": pl, "username": username}).Info("platform connected")
	return c, nil
}

// Disconnect marks pl disconnected. Disconnecting twice is a no-op.
func (s *Store) Disconnect(ctx context.Context, pl post.Platform) error {
	if !pl.Valid() {
		return fmt.Errorf("%w: unknown platform %q", post.ErrValidation, pl)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connections[pl].Connected {
		return nil
	}
	s.connections[pl] = SocialConnection{Platform: pl}
	s.persistLocked(ctx)
	s.logger.WithField("platform", pl).Info("platform disconnected")
	return nil
}

// Preferences returns a copy of the current preferences.
func (s *Store) Preferences() Preferences {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p := s.prefs
	p.DefaultPlatforms = append([]post.Platform(nil), s.prefs.DefaultPlatforms...)
	return p
}

// UpdatePreferences merges patch into the preferences.
func (s *Store) UpdatePreferences(ctx context.Context, patch PreferencesPatch) (Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.prefs
	if patch.Theme != nil {
		switch *patch.Theme {
		case ThemeLight, ThemeDark, ThemeSystem:
			next.Theme = *patch.Theme
		default:
			return Preferences{}, fmt.Errorf("%w: unknown theme %q", post.ErrValidation, *patch.Theme)
		}
	}
	if patch.DefaultPlatforms != nil {
		platforms, err := post.NormalizePlatforms(patch.DefaultPlatforms)
		if err != nil {
			return Preferences{}, err
		}
		next.DefaultPlatforms = platforms
	}
	if patch.NotificationsEnabled != nil {
		next.NotificationsEnabled = *patch.NotificationsEnabled
	}
	if patch.TimeZone != nil {
		if _, err := time.LoadLocation(*patch.TimeZone); err != nil {
			return Preferences{}, fmt.Errorf("%w: unknown time zone %q", post.ErrValidation, *patch.TimeZone)
		}
		next.TimeZone = *patch.TimeZone
	}
	s.prefs = next
	s.persistLocked(ctx)

	out := next
	out.DefaultPlatforms = append([]post.Platform(nil), next.DefaultPlatforms...)
	return out, nil
}

func (s *Store) connectionsLocked() []SocialConnection {
	out := make([]SocialConnection, 0, len(s.connections))
	for _, pl := range post.Platforms {
		out = append(out, s.connections[pl])
	}
	return out
}

func (s *Store) persistLocked(ctx context.Context) {
	data, err := json.Marshal(snapshot{Connections: s.connectionsLocked(), Preferences: s.prefs})
	if err == nil {
		err = s.persister.Save(ctx, StorageKey, data)
	}
	if err != nil {
		metrics.PersistFailures.WithLabelValues(StorageKey).Inc()
		s.logger.WithError(err).WithField("key", StorageKey).Warn("failed to persist account state")
	}
}
