// Package boltdb persists preferences in a bbolt database.
package boltdb

import (
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/alanbriolat/ezfetch/internal/settings"
)

var Buckets = struct {
	Metadata    []byte
	Preferences []byte
}{
	Metadata:    []byte("__metadata__"),
	Preferences: []byte("preferences"),
}

var MetadataKeys = struct {
	Version []byte
}{
	Version: []byte("version"),
}

const currentVersion = 1

// One key per preference, so that adding a preference later leaves the stored ones intact.
var preferenceFields = []struct {
	key   []byte
	field func(*settings.Preferences) *bool
}{
	{[]byte("play_sound"), func(p *settings.Preferences) *bool { return &p.PlaySound }},
	{[]byte("show_notification"), func(p *settings.Preferences) *bool { return &p.ShowNotification }},
	{[]byte("auto_convert"), func(p *settings.Preferences) *bool { return &p.AutoConvert }},
	{[]byte("transcoder_available"), func(p *settings.Preferences) *bool { return &p.TranscoderAvailable }},
}

type Database interface {
	Close() error

	settings.Store
}

type database struct {
	*bbolt.DB
}

func New(path string) (Database, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) (err error) {
		// Ensure buckets exist
		var metadata *bbolt.Bucket
		if metadata, err = tx.CreateBucketIfNotExists(Buckets.Metadata); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(Buckets.Preferences); err != nil {
			return err
		}

		var version int
		if versionBytes := metadata.Get(MetadataKeys.Version); versionBytes == nil {
			version = 0
		} else if err = json.Unmarshal(versionBytes, &version); err != nil {
			return err
		}
		if version > currentVersion {
			return fmt.Errorf("database version %d is newer than supported version %d", version, currentVersion)
		}

		if versionBytes, err := json.Marshal(currentVersion); err != nil {
			return err
		} else if err = metadata.Put(MetadataKeys.Version, versionBytes); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &database{db}, nil
}

// Load returns the stored preferences, with defaults for anything never saved.
func (d database) Load() (settings.Preferences, error) {
	prefs := settings.Defaults()
	err := d.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(Buckets.Preferences)
		for _, f := range preferenceFields {
			if v := bucket.Get(f.key); v != nil {
				if err := json.Unmarshal(v, f.field(&prefs)); err != nil {
					return fmt.Errorf("preference %s: %w", f.key, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return settings.Defaults(), err
	}
	return prefs, nil
}

func (d database) Save(prefs settings.Preferences) error {
	return d.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(Buckets.Preferences)
		for _, f := range preferenceFields {
			data, err := json.Marshal(*f.field(&prefs))
			if err != nil {
				return err
			}
			if err := bucket.Put(f.key, data); err != nil {
				return err
			}
		}
		return nil
	})
}
