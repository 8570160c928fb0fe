// Package settings holds user preferences.
package settings

import (
	sync_ "github.com/alanbriolat/ezfetch/internal/sync"
)

type Preferences struct {
	PlaySound        bool
	ShowNotification bool
	AutoConvert      bool
	// Detected at startup rather than chosen by the user.
	TranscoderAvailable bool
}

func Defaults() Preferences {
	return Preferences{
		PlaySound:        true,
		ShowNotification: true,
	}
}

// EffectiveAutoConvert is whether a finished download should be converted: only when the user asked for it and the
// transcoder can actually be run.
func (p Preferences) EffectiveAutoConvert() bool {
	return p.AutoConvert && p.TranscoderAvailable
}

type Loader interface {
	Load() (Preferences, error)
}

type Store interface {
	Loader
	Save(Preferences) error
}

// MemoryStore is a Store that doesn't persist anything.
type MemoryStore struct {
	prefs *sync_.RWMutexed[Preferences]
}

func NewMemoryStore(initial Preferences) *MemoryStore {
	return &MemoryStore{prefs: sync_.NewRWMutexed(initial)}
}

func (s *MemoryStore) Load() (Preferences, error) {
	return s.prefs.Get(), nil
}

func (s *MemoryStore) Save(p Preferences) error {
	s.prefs.Set(p)
	return nil
}
