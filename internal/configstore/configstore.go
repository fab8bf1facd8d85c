// Package configstore implements the ConfigStore external collaborator of
// spec.md §4.5 and §6: typed load/save for each settings struct, atomic
// per-bucket replacement, defaults when a record is absent. It is grounded
// on the original database/boltdb.go — same bbolt-backed bucket-per-kind
// layout and github.com/pkg/errors wrapping — generalized from one bucket
// of jobs to one bucket per persisted file named in spec.md §6.
package configstore

import (
	"encoding/json"

	"github.com/pkg/errors"
	"go.etcd.io/bbolt"

	"github.com/lebensspur/sentinel/internal/types"
)

// Bucket names mirror the persisted-file paths of spec.md §6
// (/data/timer.json, /data/mail.json, ...), minus the /data/ prefix and
// .json suffix, each addressed by a single well-known key within its
// bucket.
const (
	bucketTimer   = "timer"
	bucketMail    = "mail"
	bucketWiFi    = "wifi"
	bucketAPI     = "api"
	bucketRuntime = "runtime"
	bucketOta     = "ota_state"

	recordKey = "current"
)

var allBuckets = []string{bucketTimer, bucketMail, bucketWiFi, bucketAPI, bucketRuntime, bucketOta}

// Store is a bbolt-backed ConfigStore. Each settings struct gets its own
// bucket so independent components never contend on the same page, matching
// spec.md §5's "per-file exclusive write" discipline: each Save is a single
// bbolt.Update transaction against one bucket.
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if absent) a bbolt database at path and ensures every
// bucket named above exists.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "open config store at %s", path)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(b)); err != nil {
				return errors.Wrapf(err, "create %s bucket", b)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "initialize config store buckets")
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func save(db *bbolt.DB, bucket string, v any) error {
	encoded, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "marshal config record")
	}
	return db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		return errors.Wrapf(b.Put([]byte(recordKey), encoded), "put %s record", bucket)
	})
}

// load unmarshals the record from bucket into v. If absent, v is left at its
// caller-supplied default and load returns (false, nil).
func load(db *bbolt.DB, bucket string, v any) (bool, error) {
	var found bool
	err := db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		val := b.Get([]byte(recordKey))
		if val == nil {
			return nil
		}
		found = true
		return errors.Wrapf(json.Unmarshal(val, v), "unmarshal %s record", bucket)
	})
	return found, err
}

func (s *Store) SaveTimerSettings(v types.TimerSettings) error { return save(s.db, bucketTimer, v) }

// LoadTimerSettings returns defaults (disabled, 1 minute, 0 alarms) if no
// record has been saved yet.
func (s *Store) LoadTimerSettings() (types.TimerSettings, error) {
	v := types.TimerSettings{Unit: types.UnitMinutes, TotalValue: 1, AlarmCount: 0, Enabled: false}
	_, err := load(s.db, bucketTimer, &v)
	return v, err
}

func (s *Store) SaveMailConfig(v types.MailConfig) error { return save(s.db, bucketMail, v) }

func (s *Store) LoadMailConfig() (types.MailConfig, error) {
	v := types.MailConfig{Port: 465}
	_, err := load(s.db, bucketMail, &v)
	return v, err
}

func (s *Store) SaveWiFiConfig(v types.WiFiConfig) error { return save(s.db, bucketWiFi, v) }

func (s *Store) LoadWiFiConfig() (types.WiFiConfig, error) {
	v := types.WiFiConfig{APModeEnabled: true}
	found, err := load(s.db, bucketWiFi, &v)
	if err == nil && !found {
		v.APModeEnabled = true
	}
	return v, err
}

func (s *Store) SaveAPISettings(v types.ApiSettings) error { return save(s.db, bucketAPI, v) }

func (s *Store) LoadAPISettings() (types.ApiSettings, error) {
	var v types.ApiSettings
	_, err := load(s.db, bucketAPI, &v)
	return v, err
}

func (s *Store) SaveRuntime(v types.TimerRuntime) error { return save(s.db, bucketRuntime, v) }

func (s *Store) LoadRuntime() (types.TimerRuntime, error) {
	var v types.TimerRuntime
	_, err := load(s.db, bucketRuntime, &v)
	return v, err
}

func (s *Store) SaveOtaState(v types.OtaState) error { return save(s.db, bucketOta, v) }

func (s *Store) LoadOtaState() (types.OtaState, error) {
	var v types.OtaState
	_, err := load(s.db, bucketOta, &v)
	return v, err
}

// EraseAll wipes every bucket's record, used by the factory-reset operation
// (spec.md §4.4). Buckets themselves are kept so subsequent loads still see
// an initialized store rather than racing bucket recreation.
func (s *Store) EraseAll() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range allBuckets {
			b := tx.Bucket([]byte(name))
			if err := b.Delete([]byte(recordKey)); err != nil {
				return errors.Wrapf(err, "erase %s record", name)
			}
		}
		return nil
	})
}
