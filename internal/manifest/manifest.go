package manifest

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"boulder/internal/base"
)

const currentFileName = "CURRENT"

// manifestRotateThreshold bounds how large a single MANIFEST-<n> log may
// grow before Apply rolls over to a fresh one seeded with a snapshot of the
// current Version, so an old manifest's accumulated edit history doesn't
// have to be replayed in full on every future Open. A var, not a const, so
// tests can shrink it to exercise rotation without writing megabytes of
// edits.
var manifestRotateThreshold int64 = 4 << 20

func manifestFileName(num uint64) string {
	return fmt.Sprintf("MANIFEST-%06d", num)
}

// Manifest owns the append-only VersionEdit log and the CURRENT Version it
// produces. All mutation goes through Apply, which appends the edit
// durably before the new Version becomes visible, rolling the log over to
// a fresh file once it exceeds manifestRotateThreshold.
type Manifest struct {
	dir string

	mu          sync.Mutex
	logFile     *os.File
	logSize     int64
	manifestNum uint64
	current     *Version
	nextFileNum uint64
	lastSeqNum  base.SeqNum
}

// Create initializes a brand new manifest in dir, which must not already
// contain a CURRENT file.
func Create(dir string) (*Manifest, error) {
	const firstManifestNum = 1
	path := filepath.Join(dir, manifestFileName(firstManifestNum))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}

	m := &Manifest{
		dir:         dir,
		logFile:     f,
		manifestNum: firstManifestNum,
		current:     newEmptyVersion(),
		nextFileNum: firstManifestNum + 1,
	}

	init := VersionEdit{NextFileNum: m.nextFileNum, LastSeqNum: base.SeqNumStart}
	encoded := appendRecord(nil, init.Encode())
	if _, err := f.Write(encoded); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return nil, err
	}
	m.logSize = int64(len(encoded))
	m.lastSeqNum = base.SeqNumStart

	if err := writeCurrentFile(dir, manifestFileName(firstManifestNum)); err != nil {
		f.Close()
		return nil, err
	}
	return m, nil
}

// Open reconstructs a Manifest from an existing directory by following
// CURRENT to the active manifest log and replaying every VersionEdit in it.
func Open(dir string) (*Manifest, error) {
	currentBytes, err := os.ReadFile(filepath.Join(dir, currentFileName))
	if err != nil {
		return nil, errors.Wrap(err, "manifest: reading CURRENT")
	}
	name := trimNewline(currentBytes)

	var manifestNum uint64
	if _, err := fmt.Sscanf(name, "MANIFEST-%d", &manifestNum); err != nil {
		return nil, errors.Newf("manifest: malformed CURRENT contents %q", name)
	}

	path := filepath.Join(dir, name)
	rf, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	version := newEmptyVersion()
	var nextFileNum uint64
	var lastSeqNum base.SeqNum

	br := bufio.NewReader(rf)
	for {
		payload, err := readRecord(br)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, ErrIncomplete) {
				break
			}
			rf.Close()
			if errors.Is(err, ErrCorruption) {
				return nil, errors.Wrap(err, "manifest: replay")
			}
			return nil, err
		}
		edit, err := DecodeVersionEdit(payload)
		if err != nil {
			rf.Close()
			return nil, err
		}
		applyEditToVersion(version, edit)
		if edit.NextFileNum > nextFileNum {
			nextFileNum = edit.NextFileNum
		}
		if edit.LastSeqNum > lastSeqNum {
			lastSeqNum = edit.LastSeqNum
		}
	}
	rf.Close()

	wf, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	info, err := wf.Stat()
	if err != nil {
		wf.Close()
		return nil, err
	}

	return &Manifest{
		dir:         dir,
		logFile:     wf,
		logSize:     info.Size(),
		manifestNum: manifestNum,
		current:     version,
		nextFileNum: nextFileNum,
		lastSeqNum:  lastSeqNum,
	}, nil
}

func trimNewline(b []byte) string {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return string(b)
}

func applyEditToVersion(v *Version, edit VersionEdit) {
	for _, d := range edit.DeletedFiles {
		v.levels[d.Level] = removeFile(v.levels[d.Level], d.FileNum)
	}
	for _, f := range edit.NewFiles {
		fm := f
		v.levels[f.Level] = append(v.levels[f.Level], &fm)
	}
}

// Current returns the active Version, Ref'd on the caller's behalf; the
// caller must Unref it when finished.
func (m *Manifest) Current() *Version {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.Ref()
	return m.current
}

// AllocFileNum reserves and returns the next file number, durable only once
// it is named in a subsequent Apply's NewFiles or NextFileNum field — the
// caller is responsible for including it in the edit that introduces the
// file it's used for.
func (m *Manifest) AllocFileNum() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.nextFileNum
	m.nextFileNum++
	return n
}

// LastSeqNum returns the highest sequence number durably recorded.
func (m *Manifest) LastSeqNum() base.SeqNum {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSeqNum
}

// Apply durably appends edit to the manifest log and publishes the
// resulting Version as current.
func (m *Manifest) Apply(edit VersionEdit) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if edit.NextFileNum == 0 {
		edit.NextFileNum = m.nextFileNum
	}
	if edit.LastSeqNum == 0 {
		edit.LastSeqNum = m.lastSeqNum
	}

	encoded := appendRecord(nil, edit.Encode())
	if _, err := m.logFile.Write(encoded); err != nil {
		return err
	}
	if err := m.logFile.Sync(); err != nil {
		return err
	}
	m.logSize += int64(len(encoded))

	next := m.current.clone()
	applyEditToVersion(next, edit)

	if edit.NextFileNum > m.nextFileNum {
		m.nextFileNum = edit.NextFileNum
	}
	if edit.LastSeqNum > m.lastSeqNum {
		m.lastSeqNum = edit.LastSeqNum
	}

	old := m.current
	m.current = next
	old.Unref()

	if m.logSize >= manifestRotateThreshold {
		if err := m.rotateLocked(); err != nil {
			return err
		}
	}
	return nil
}

// snapshotEdit flattens v into a single VersionEdit that recreates it from
// an empty Version, used to seed a freshly rotated manifest log without
// replaying the old one's full edit history.
func snapshotEdit(v *Version, nextFileNum uint64, lastSeqNum base.SeqNum) VersionEdit {
	edit := VersionEdit{NextFileNum: nextFileNum, LastSeqNum: lastSeqNum}
	for _, files := range v.Levels() {
		for _, f := range files {
			edit.NewFiles = append(edit.NewFiles, *f)
		}
	}
	return edit
}

// rotateLocked starts a fresh MANIFEST-<n+1> file containing a single
// snapshot edit of the current Version, atomically repoints CURRENT at it
// via writeCurrentFile, then closes and unlinks the old manifest log.
// Caller must hold m.mu.
func (m *Manifest) rotateLocked() error {
	newNum := m.manifestNum + 1
	path := filepath.Join(m.dir, manifestFileName(newNum))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	snapshot := snapshotEdit(m.current, m.nextFileNum, m.lastSeqNum)
	encoded := appendRecord(nil, snapshot.Encode())
	if _, err := f.Write(encoded); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}

	if err := writeCurrentFile(m.dir, manifestFileName(newNum)); err != nil {
		f.Close()
		return err
	}

	oldNum := m.manifestNum
	oldLogFile := m.logFile

	m.logFile = f
	m.manifestNum = newNum
	m.logSize = int64(len(encoded))

	if err := oldLogFile.Close(); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(m.dir, manifestFileName(oldNum))); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// writeCurrentFile atomically repoints CURRENT at manifestName: write to a
// uniquely named temp file, fsync it, rename over CURRENT, then fsync the
// directory entry so the rename itself survives a crash.
func writeCurrentFile(dir, manifestName string) error {
	tmpName := filepath.Join(dir, fmt.Sprintf("CURRENT.%s.tmp", uuid.NewString()))
	if err := os.WriteFile(tmpName, []byte(manifestName+"\n"), 0644); err != nil {
		return err
	}
	tf, err := os.OpenFile(tmpName, os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if err := tf.Sync(); err != nil {
		tf.Close()
		return err
	}
	if err := tf.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, filepath.Join(dir, currentFileName)); err != nil {
		return err
	}
	df, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer df.Close()
	return df.Sync()
}

// Close closes the manifest log file.
func (m *Manifest) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.logFile.Close()
}
