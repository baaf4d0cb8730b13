/*
Copyright © 2025 the gridconv authors.
This file is part of gridconv.

gridconv is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

gridconv is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with gridconv.  If not, see <http://www.gnu.org/licenses/>.
*/

package gridconvutil

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/gridconv/vector"
)

// maxRetries is the number of times a failed transfer is retried.
const maxRetries = 5

// stager copies remote inputs into a temporary directory and uploads
// outputs written there to their remote destinations.
type stager struct {
	log logrus.FieldLogger
	dir string

	// uploads holds pairs of a local temporary path and the remote
	// path it is uploaded to.
	uploads [][2]string

	newBackOff func() backoff.BackOff
}

func newStager(log logrus.FieldLogger) *stager {
	return &stager{
		log:        log,
		newBackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
	}
}

func (s *stager) tempDir() (string, error) {
	if s.dir != "" {
		return s.dir, nil
	}
	dir, err := ioutil.TempDir("", "gridconv")
	if err != nil {
		return "", fmt.Errorf("gridconvutil: creating staging directory: %v", err)
	}
	s.dir = dir
	return dir, nil
}

// subDir returns a new directory within the staging directory, so that
// staged files with the same name do not collide.
func (s *stager) subDir() (string, error) {
	dir, err := s.tempDir()
	if err != nil {
		return "", err
	}
	sub, err := ioutil.TempDir(dir, "f")
	if err != nil {
		return "", fmt.Errorf("gridconvutil: creating staging directory: %v", err)
	}
	return sub, nil
}

func (s *stager) retry(ctx context.Context, op func() error) error {
	b := backoff.WithContext(backoff.WithMaxRetries(s.newBackOff(), maxRetries), ctx)
	return backoff.RetryNotify(op, b, func(err error, d time.Duration) {
		s.log.WithFields(logrus.Fields{"error": err, "retry_in": d}).Warn("transfer failed")
	})
}

// input returns a local path holding the data at path. Remote files,
// including every file of a remote shapefile, are downloaded first.
func (s *stager) input(ctx context.Context, path string) (string, error) {
	if !IsRemote(path) {
		return path, nil
	}
	dir, err := s.subDir()
	if err != nil {
		return "", err
	}
	for _, f := range vector.Siblings(path) {
		local := filepath.Join(dir, filepath.Base(f))
		s.log.WithFields(logrus.Fields{"src": f, "dst": local}).Debug("downloading")
		if err := s.retry(ctx, func() error { return download(ctx, f, local) }); err != nil {
			return "", fmt.Errorf("gridconvutil: downloading %s: %v", f, err)
		}
	}
	return filepath.Join(dir, filepath.Base(path)), nil
}

func download(ctx context.Context, remote, local string) error {
	var r io.ReadCloser
	if IsBlob(remote) {
		bucket, key, err := splitBlob(ctx, remote)
		if err != nil {
			return err
		}
		br, err := bucket.NewReader(ctx, key, nil)
		if err != nil {
			return err
		}
		r = br
	} else {
		req, err := http.NewRequest(http.MethodGet, remote, nil)
		if err != nil {
			return err
		}
		resp, err := http.DefaultClient.Do(req.WithContext(ctx))
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return fmt.Errorf("%s: %s", remote, resp.Status)
		}
		r = resp.Body
	}
	defer r.Close()
	w, err := os.Create(local)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// output returns the local path to write an output to. Blob storage
// outputs are written to the staging directory and uploaded by flush.
func (s *stager) output(path string) (string, error) {
	if !IsRemote(path) {
		return path, nil
	}
	if !IsBlob(path) {
		return "", fmt.Errorf("gridconvutil: cannot write output to %s", path)
	}
	dir, err := s.subDir()
	if err != nil {
		return "", err
	}
	files := vector.Siblings(path)
	for _, f := range files {
		s.uploads = append(s.uploads, [2]string{filepath.Join(dir, filepath.Base(f)), f})
	}
	return filepath.Join(dir, filepath.Base(path)), nil
}

// flush uploads the staged outputs that exist.
func (s *stager) flush(ctx context.Context) error {
	for _, u := range s.uploads {
		local, remote := u[0], u[1]
		if _, err := os.Stat(local); os.IsNotExist(err) {
			continue
		}
		s.log.WithFields(logrus.Fields{"src": local, "dst": remote}).Debug("uploading")
		if err := s.retry(ctx, func() error { return upload(ctx, local, remote) }); err != nil {
			return fmt.Errorf("gridconvutil: uploading %s: %v", remote, err)
		}
	}
	s.uploads = nil
	return nil
}

func upload(ctx context.Context, local, remote string) error {
	r, err := os.Open(local)
	if err != nil {
		return err
	}
	defer r.Close()
	bucket, key, err := splitBlob(ctx, remote)
	if err != nil {
		return err
	}
	w, err := bucket.NewWriter(ctx, key, nil)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// close removes the staging directory.
func (s *stager) close() error {
	if s.dir == "" {
		return nil
	}
	err := os.RemoveAll(s.dir)
	s.dir = ""
	return err
}
