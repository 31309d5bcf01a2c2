// Package buildhistory is a supplementary bbolt-backed store of build
// attempts and an on-disk-drift index, layered under the flat-file
// Installed-Packages Database (db.Database remains the source of truth
// for "is X installed"; this package only answers "what happened the
// last few times we tried" and "has X's file_list changed since we
// recorded it").
package buildhistory

import (
	"encoding/binary"
	"encoding/json"
	"hash/crc32"
	"os"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	bucketBuilds   = "builds"
	bucketPackages = "packages"
	bucketCRCIndex = "crc_index"
)

// BuildRecord is one build attempt: a name/version pair, its outcome, and
// when it ran.
type BuildRecord struct {
	UUID      string    `json:"uuid"`
	Name      string    `json:"name"`
	Version   string    `json:"version"`
	Status    string    `json:"status"` // "running" | "success" | "failed"
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}

// DB is a handle on the build-history bbolt file.
type DB struct {
	bolt *bolt.DB
}

// Open opens or creates the build-history database at path, creating its
// three buckets in a single write transaction.
func Open(path string) (*DB, error) {
	bdb, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, &DatabaseError{Op: "open", Err: err}
	}

	err = bdb.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{bucketBuilds, bucketPackages, bucketCRCIndex} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return &DatabaseError{Op: "create bucket", Bucket: name, Err: err}
			}
		}
		return nil
	})
	if err != nil {
		bdb.Close()
		return nil, err
	}

	return &DB{bolt: bdb}, nil
}

// Close releases the underlying bbolt file.
func (db *DB) Close() error {
	if db.bolt == nil {
		return nil
	}
	return db.bolt.Close()
}

// SaveRecord stores rec under its UUID, overwriting any prior record with
// the same UUID.
func (db *DB) SaveRecord(rec *BuildRecord) error {
	if rec.UUID == "" {
		return &RecordError{Op: "save", Err: ErrEmptyUUID}
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return &RecordError{Op: "marshal", UUID: rec.UUID, Err: err}
	}

	err = db.bolt.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketBuilds))
		if b == nil {
			return &DatabaseError{Op: "get bucket", Bucket: bucketBuilds, Err: ErrBucketNotFound}
		}
		return b.Put([]byte(rec.UUID), data)
	})
	if err != nil {
		return &RecordError{Op: "save", UUID: rec.UUID, Err: err}
	}
	return nil
}

// GetRecord retrieves the build record for uuid.
func (db *DB) GetRecord(uuid string) (*BuildRecord, error) {
	if uuid == "" {
		return nil, &RecordError{Op: "get", Err: ErrEmptyUUID}
	}
	var rec BuildRecord
	err := db.bolt.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketBuilds))
		if b == nil {
			return &DatabaseError{Op: "get bucket", Bucket: bucketBuilds, Err: ErrBucketNotFound}
		}
		data := b.Get([]byte(uuid))
		if data == nil {
			return &RecordError{Op: "get", UUID: uuid, Err: ErrRecordNotFound}
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// UpdateRecordStatus sets status and endedAt on an existing record in a
// single read-modify-write transaction.
func (db *DB) UpdateRecordStatus(uuid, status string, endedAt time.Time) error {
	if uuid == "" {
		return &RecordError{Op: "update status", Err: ErrEmptyUUID}
	}
	err := db.bolt.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketBuilds))
		if b == nil {
			return &DatabaseError{Op: "get bucket", Bucket: bucketBuilds, Err: ErrBucketNotFound}
		}
		data := b.Get([]byte(uuid))
		if data == nil {
			return &RecordError{Op: "update status", UUID: uuid, Err: ErrRecordNotFound}
		}
		var rec BuildRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return &RecordError{Op: "unmarshal", UUID: uuid, Err: err}
		}
		rec.Status = status
		rec.EndedAt = endedAt
		updated, err := json.Marshal(&rec)
		if err != nil {
			return &RecordError{Op: "marshal", UUID: uuid, Err: err}
		}
		return b.Put([]byte(uuid), updated)
	})
	if err != nil {
		return &RecordError{Op: "update status", UUID: uuid, Err: err}
	}
	return nil
}

// ActiveRecord scans builds for the most recently started record still
// marked "running", for `monitor` to attach to a build in another process
// (teacher's cmd/monitor.go ActiveRun, adapted from a single active-slot
// lookup to a bucket scan since build-history keys by UUID, not a single
// well-known active-run id).
func (db *DB) ActiveRecord() (*BuildRecord, error) {
	var latest *BuildRecord
	err := db.bolt.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketBuilds))
		if b == nil {
			return &DatabaseError{Op: "get bucket", Bucket: bucketBuilds, Err: ErrBucketNotFound}
		}
		return b.ForEach(func(_, data []byte) error {
			var rec BuildRecord
			if err := json.Unmarshal(data, &rec); err != nil {
				return nil
			}
			if rec.Status != "running" {
				return nil
			}
			if latest == nil || rec.StartedAt.After(latest.StartedAt) {
				recCopy := rec
				latest = &recCopy
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return latest, nil
}

func packageKey(name, version string) []byte {
	return []byte(name + "@" + version)
}

// RecordCompletion marks uuid's package index entry so LatestFor(name,
// version) resolves to it — call after a successful build.
func (db *DB) RecordCompletion(name, version, uuid string) error {
	return db.bolt.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketPackages))
		if b == nil {
			return &DatabaseError{Op: "get bucket", Bucket: bucketPackages, Err: ErrBucketNotFound}
		}
		return b.Put(packageKey(name, version), []byte(uuid))
	})
}

// LatestFor returns the most recent completed build record for name at
// version, or nil if none is recorded.
func (db *DB) LatestFor(name, version string) (*BuildRecord, error) {
	var rec *BuildRecord
	err := db.bolt.View(func(tx *bolt.Tx) error {
		packages := tx.Bucket([]byte(bucketPackages))
		if packages == nil {
			return &DatabaseError{Op: "get bucket", Bucket: bucketPackages, Err: ErrBucketNotFound}
		}
		uuid := packages.Get(packageKey(name, version))
		if uuid == nil {
			return nil
		}
		builds := tx.Bucket([]byte(bucketBuilds))
		if builds == nil {
			return &DatabaseError{Op: "get bucket", Bucket: bucketBuilds, Err: ErrBucketNotFound}
		}
		data := builds.Get(uuid)
		if data == nil {
			return nil
		}
		rec = &BuildRecord{}
		return json.Unmarshal(data, rec)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// UpdateCRC records the footprint checksum for an installed package.
func (db *DB) UpdateCRC(name string, crc uint32) error {
	value := make([]byte, 4)
	binary.LittleEndian.PutUint32(value, crc)
	return db.bolt.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketCRCIndex))
		if b == nil {
			return &DatabaseError{Op: "get bucket", Bucket: bucketCRCIndex, Err: ErrBucketNotFound}
		}
		return b.Put([]byte(name), value)
	})
}

// GetCRC returns the recorded footprint checksum for name, if any.
func (db *DB) GetCRC(name string) (uint32, bool, error) {
	var crc uint32
	var found bool
	err := db.bolt.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketCRCIndex))
		if b == nil {
			return &DatabaseError{Op: "get bucket", Bucket: bucketCRCIndex, Err: ErrBucketNotFound}
		}
		value := b.Get([]byte(name))
		if value == nil || len(value) != 4 {
			found = false
			return nil
		}
		crc = binary.LittleEndian.Uint32(value)
		found = true
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	return crc, found, nil
}

// NeedsVerification reports whether currentCRC differs from (or is
// absent from) the last recorded footprint for name — the signal `list
// --verify` uses to flag packages whose on-disk files moved since
// install.
func (db *DB) NeedsVerification(name string, currentCRC uint32) (bool, error) {
	stored, exists, err := db.GetCRC(name)
	if err != nil {
		return false, err
	}
	if !exists {
		return true, nil
	}
	return stored != currentCRC, nil
}

// ComputeFileListCRC hashes the recorded file_list of an installed
// package: each entry's path plus its current size and mode bits.
// Unlike a full content hash, this deliberately avoids reading
// potentially large installed binaries — file_list drift (files moved,
// removed, or resized since install) is the signal `list --verify`
// needs, not byte-for-byte content equality.
func ComputeFileListCRC(fileList []string) (uint32, error) {
	hash := crc32.NewIEEE()
	for _, path := range fileList {
		hash.Write([]byte(path))
		hash.Write([]byte{0})

		info, err := os.Lstat(path)
		if err != nil {
			if os.IsNotExist(err) {
				hash.Write([]byte("missing"))
				hash.Write([]byte{0})
				continue
			}
			return 0, err
		}
		sizeBuf := make([]byte, 8)
		binary.LittleEndian.PutUint64(sizeBuf, uint64(info.Size()))
		hash.Write(sizeBuf)
		hash.Write([]byte(info.Mode().String()))
		hash.Write([]byte{0})
	}
	return hash.Sum32(), nil
}
