package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

var (
	bucketGroups = []byte("groups")
	bucketMeta   = []byte("meta")
	bucketRuns   = []byte("runs")
	keyLastRun   = []byte("last_run")
)

// ErrRegistryBusy is returned when another process holds the database open
// past the open timeout.
var ErrRegistryBusy = errors.New("registry is held by another pyrock process")

// DefaultOpenTimeout bounds how long Open waits for the bbolt file lock.
const DefaultOpenTimeout = 2 * time.Second

// ProcessGroup is a test run spawned in its own process group.
type ProcessGroup struct {
	ID       string    `json:"id"`
	PGID     int       `json:"pgid"`
	Command  []string  `json:"command"`
	Started  time.Time `json:"started"`
	TestPath string    `json:"test_path"`
}

// Registry persists running test process groups and index metadata across
// pyrock invocations.
type Registry struct {
	db *bbolt.DB
}

func openBolt(path string, timeout time.Duration, buckets ...[]byte) (*bbolt.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create registry directory: %w", err)
	}
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: timeout})
	if err != nil {
		if errors.Is(err, bbolt.ErrTimeout) {
			return nil, ErrRegistryBusy
		}
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range buckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// OpenRegistry opens or creates the registry database at path.
func OpenRegistry(path string, timeout time.Duration) (*Registry, error) {
	db, err := openBolt(path, timeout, bucketGroups, bucketMeta)
	if err != nil {
		return nil, err
	}
	return &Registry{db: db}, nil
}

func (r *Registry) Close() error {
	return r.db.Close()
}

// NewGroup returns a group record with a fresh run ID.
func NewGroup(pgid int, command []string, testPath string) ProcessGroup {
	return ProcessGroup{
		ID:       uuid.NewString(),
		PGID:     pgid,
		Command:  command,
		Started:  time.Now(),
		TestPath: testPath,
	}
}

func (r *Registry) PutGroup(g ProcessGroup) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(g)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketGroups).Put([]byte(g.ID), data)
	})
}

func (r *Registry) DeleteGroup(id string) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketGroups).Delete([]byte(id))
	})
}

// Groups returns the registered groups, oldest first.
func (r *Registry) Groups() ([]ProcessGroup, error) {
	var groups []ProcessGroup
	err := r.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketGroups).ForEach(func(k, v []byte) error {
			var g ProcessGroup
			if err := json.Unmarshal(v, &g); err != nil {
				return fmt.Errorf("decode group %s: %w", k, err)
			}
			groups = append(groups, g)
			return nil
		})
	})
	sort.Slice(groups, func(i, j int) bool { return groups[i].Started.Before(groups[j].Started) })
	return groups, err
}

// IndexRun describes one index worker run.
type IndexRun struct {
	ID       string    `json:"id"`
	PID      int       `json:"pid"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished,omitempty"`
	Entries  int       `json:"entries"`
	Failed   bool      `json:"failed"`
}

// IndexLock is held by the index worker for the duration of a walk. It is a
// separate bbolt file so the registry stays usable while indexing runs.
type IndexLock struct {
	db  *bbolt.DB
	Run IndexRun
}

// LockPath returns the index lock file path next to the registry.
func LockPath(registryPath string) string {
	return filepath.Join(filepath.Dir(registryPath), "index.lock")
}

// AcquireIndexLock takes the cross-process index lock. It returns
// ErrRegistryBusy when another worker holds it past timeout.
func AcquireIndexLock(path string, timeout time.Duration) (*IndexLock, error) {
	db, err := openBolt(path, timeout, bucketRuns)
	if err != nil {
		return nil, err
	}
	l := &IndexLock{db: db, Run: IndexRun{
		ID:      uuid.NewString(),
		PID:     os.Getpid(),
		Started: time.Now(),
	}}
	if err := l.put(); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

func (l *IndexLock) put() error {
	return l.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(l.Run)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketRuns).Put(keyLastRun, data)
	})
}

// Release records the run outcome and drops the lock.
func (l *IndexLock) Release(entries int, failed bool) error {
	l.Run.Finished = time.Now()
	l.Run.Entries = entries
	l.Run.Failed = failed
	err := l.put()
	if cerr := l.db.Close(); err == nil {
		err = cerr
	}
	return err
}

// LastIndexRun reads the most recent run recorded in the lock file.
func LastIndexRun(path string, timeout time.Duration) (IndexRun, error) {
	var run IndexRun
	db, err := openBolt(path, timeout, bucketRuns)
	if err != nil {
		return run, err
	}
	defer db.Close()
	err = db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketRuns).Get(keyLastRun)
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &run)
	})
	return run, err
}
