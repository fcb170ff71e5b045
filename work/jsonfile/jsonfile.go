// Package jsonfile holds the flat-file persistence shared by the credential
// store and the activity log: indented JSON documents written through a
// temporary file and a rename.
package jsonfile

import (
	"bytes"
	"os"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"streamkey-relay/work/logger"
)

// ErrEmpty is returned by Read for a zero-length or whitespace-only file.
var ErrEmpty = errors.New("file is empty")

var (
	log  = logger.New("jsonfile")
	json = jsoniter.ConfigCompatibleWithStandardLibrary
)

// Exists reports whether path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// EnsureFile creates path, and its directory, holding def when the file does
// not exist yet. It reports whether the file was created.
func EnsureFile(path string, def any) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, errors.Wrapf(err, "stat %s", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, errors.Wrapf(err, "create directory for %s", path)
	}
	if err := Write(path, def); err != nil {
		return false, err
	}

	log.Debug("{jsonfile - EnsureFile} created %s", path)
	return true, nil
}

// Read parses the JSON document at path into v.
func Read(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "read %s", path)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return errors.Wrapf(ErrEmpty, "read %s", path)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrapf(err, "parse %s", path)
	}
	return nil
}

// Write marshals v as two-space indented JSON and replaces path with it.
// The data lands in a sibling temp file first so a reader never observes a
// half-written document; concurrent writers still race and the last rename wins.
func Write(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "marshal %s", path)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.Wrapf(err, "create temp file for %s", path)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.Wrapf(err, "write %s", tmpPath)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.Wrapf(err, "close %s", tmpPath)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return errors.Wrapf(err, "chmod %s", tmpPath)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return errors.Wrapf(err, "rename %s", tmpPath)
	}
	return nil
}

// Backup copies a damaged file aside as <path>.corrupted.<timestamp> and
// returns the backup location.
func Backup(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(err, "read %s", path)
	}

	backupPath := path + ".corrupted." + time.Now().Format("20060102-150405")
	if err := os.WriteFile(backupPath, data, 0644); err != nil {
		return "", errors.Wrapf(err, "write %s", backupPath)
	}
	return backupPath, nil
}
