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
	"os"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/gridconv/internal/hash"
)

// Job is one conversion in a batch file.
type Job struct {
	Src, Dst string
	ConvertOptions
}

// Batch is the contents of a batch file, for example:
//
//	Workers = 4
//
//	[[Job]]
//	Src = "${DATA}/pm25.nc"
//	Dst = "pm25.tif"
//	Selector = "PM25"
//	Compression = "deflate"
type Batch struct {
	// Workers is the number of jobs run at once. Zero or less runs one
	// job at a time.
	Workers int

	Job []Job
}

// ReadBatch decodes a batch file from r. Environment variables in the
// file paths are expanded.
func ReadBatch(r io.Reader) (*Batch, error) {
	b := new(Batch)
	if _, err := toml.DecodeReader(r, b); err != nil {
		return nil, fmt.Errorf("gridconvutil: decoding batch file: %v", err)
	}
	for i := range b.Job {
		j := &b.Job[i]
		j.Src = os.ExpandEnv(j.Src)
		j.Dst = os.ExpandEnv(j.Dst)
		j.Template = os.ExpandEnv(j.Template)
		j.ClipPolygon = os.ExpandEnv(j.ClipPolygon)
		if j.Src == "" || j.Dst == "" {
			return nil, fmt.Errorf("gridconvutil: batch job %d needs both Src and Dst", i)
		}
	}
	return b, nil
}

// unique removes repeated jobs. Two different jobs writing the same
// destination are an error, because their outcome would depend on which
// one finished last.
func (b *Batch) unique() ([]Job, error) {
	keys := make(map[string]bool)
	dsts := make(map[string]int)
	var out []Job
	for i, j := range b.Job {
		k := hash.Key(j)
		if keys[k] {
			continue
		}
		if prev, ok := dsts[j.Dst]; ok {
			return nil, fmt.Errorf("gridconvutil: batch jobs %d and %d both write %s", prev, i, j.Dst)
		}
		keys[k] = true
		dsts[j.Dst] = i
		out = append(out, j)
	}
	return out, nil
}

// BatchError lists the jobs of a batch that failed.
type BatchError struct {
	Failed map[int]error
	Jobs   []Job
}

func (e *BatchError) Error() string {
	for i := range e.Jobs {
		if err, ok := e.Failed[i]; ok {
			return fmt.Sprintf("gridconvutil: %d of %d batch jobs failed; first: %s -> %s: %v",
				len(e.Failed), len(e.Jobs), e.Jobs[i].Src, e.Jobs[i].Dst, err)
		}
	}
	return "gridconvutil: batch failed"
}

// Run runs every job in b. Failed jobs do not stop the others; their
// errors are returned together as a *BatchError.
func (b *Batch) Run(ctx context.Context, log logrus.FieldLogger) error {
	jobs, err := b.unique()
	if err != nil {
		return err
	}
	workers := b.Workers
	if workers < 1 {
		workers = 1
	}
	var (
		mu     sync.Mutex
		failed = make(map[int]error)
		wg     sync.WaitGroup
		jobIdx = make(chan int)
	)
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range jobIdx {
				j := jobs[i]
				jlog := log.WithFields(logrus.Fields{"job": i, "src": j.Src, "dst": j.Dst})
				o := j.ConvertOptions
				if err := Convert(ctx, jlog, j.Src, j.Dst, &o); err != nil {
					jlog.WithField("error", err).Error("job failed")
					mu.Lock()
					failed[i] = err
					mu.Unlock()
				}
			}
		}()
	}
	for i := range jobs {
		jobIdx <- i
	}
	close(jobIdx)
	wg.Wait()
	if len(failed) > 0 {
		return &BatchError{Failed: failed, Jobs: jobs}
	}
	log.WithField("jobs", len(jobs)).Info("batch finished")
	return nil
}

// RunBatch reads the batch file at path and runs it. workers, if
// positive, overrides the file's Workers setting.
func RunBatch(ctx context.Context, log logrus.FieldLogger, path string, workers int) error {
	st := newStager(log)
	defer st.close()
	local, err := st.input(ctx, os.ExpandEnv(path))
	if err != nil {
		return err
	}
	f, err := os.Open(local)
	if err != nil {
		return fmt.Errorf("gridconvutil: opening batch file: %v", err)
	}
	defer f.Close()
	b, err := ReadBatch(f)
	if err != nil {
		return err
	}
	if workers > 0 {
		b.Workers = workers
	}
	return b.Run(ctx, log)
}
