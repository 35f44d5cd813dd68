package largefile

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"sync"

	"github.com/bitrise-io/go-b2/apierror"
	"github.com/bitrise-io/go-b2/progress"
	"github.com/bitrise-io/go-b2/transport"
)

// DefaultPartSize is used when the caller does not pick one; B2 recommends
// a per-account value via the authorize response.
const DefaultPartSize = int64(100) * 1024 * 1024

// UploadAllOptions tunes the concurrent part-upload loop.
type UploadAllOptions struct {
	// PartSize is the byte size of every part but the last.
	// Default: DefaultPartSize.
	PartSize int64

	// Concurrency caps the number of in-flight part uploads.
	// Default: DefaultConcurrency().
	Concurrency int

	// Observer receives aggregate progress across all parts.
	Observer progress.Observer
}

// DefaultConcurrency derives the part-upload parallelism from the CPU count.
func DefaultConcurrency() int {
	c := runtime.NumCPU() * 3
	if c > 20 {
		c = 20
	}
	if c < 2 {
		c = 2
	}
	return c
}

type partResult struct {
	partNumber int
	err        error
}

// UploadAll reads the file content from r and uploads it as N concurrent
// parts, then finishes the file. Each part uploader obtains its own endpoint.
// On any part failure the handle stays in progress; the caller decides
// between retrying and Cancel.
func (u *Upload) UploadAll(ctx context.Context, r io.ReaderAt, size int64, opts UploadAllOptions) error {
	if err := u.requireInProgress("upload"); err != nil {
		return err
	}
	if size <= 0 {
		return apierror.NewValidation("content size must be positive, got %d", size)
	}
	partSize := opts.PartSize
	if partSize <= 0 {
		partSize = DefaultPartSize
	}
	if partSize > MaxPartSize {
		return apierror.NewValidation("part size %s above the %s limit",
			transport.FormatSize(partSize), transport.FormatSize(MaxPartSize))
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency()
	}

	partCount := int((size + partSize - 1) / partSize)
	if partCount > MaxParts {
		return apierror.NewValidation("content of %s needs %d parts of %s, above the %d-part limit",
			transport.FormatSize(size), partCount, transport.FormatSize(partSize), MaxParts)
	}

	u.manager.logger.Debugf("Uploading %s as %d parts of %s, %d concurrent",
		transport.FormatSize(size), partCount, transport.FormatSize(partSize), concurrency)

	aggregate := newAggregateObserver(opts.Observer, size)
	resultChan := make(chan partResult, partCount)
	semaphore := make(chan struct{}, concurrency)

	for i := 0; i < partCount; i++ {
		go func(index int) {
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			partNumber := index + 1
			resultChan <- partResult{
				partNumber: partNumber,
				err:        u.uploadSection(ctx, r, size, partSize, partNumber, aggregate),
			}
		}(i)
	}

	completed := 0
	for completed < partCount {
		select {
		case <-ctx.Done():
			return apierror.NewTimeout("upload cancelled while waiting for parts: "+ctx.Err().Error(), ctx.Err())
		case result := <-resultChan:
			completed++
			if result.err != nil {
				return result.err
			}
		}
	}

	_, err := u.Finish(ctx)
	return err
}

func (u *Upload) uploadSection(ctx context.Context, r io.ReaderAt, size, partSize int64, partNumber int, aggregate *aggregateObserver) error {
	offset := int64(partNumber-1) * partSize
	length := partSize
	if offset+length > size {
		length = size - offset
	}
	data, err := io.ReadAll(io.NewSectionReader(r, offset, length))
	if err != nil {
		return apierror.NewUnknown(fmt.Sprintf("read part %d: %s", partNumber, err), err)
	}

	endpoint, err := u.PartEndpoint(ctx)
	if err != nil {
		return err
	}
	return u.UploadPart(ctx, PartUploadParams{
		Endpoint:   endpoint,
		PartNumber: partNumber,
		Data:       data,
		Observer:   aggregate.forPart(partNumber),
	})
}

// aggregateObserver folds per-part progress into one monotone event stream
// against the whole file size.
type aggregateObserver struct {
	observer progress.Observer
	size     int64

	mu      sync.Mutex
	perPart map[int]int64
	total   int64
}

func newAggregateObserver(observer progress.Observer, size int64) *aggregateObserver {
	return &aggregateObserver{
		observer: observer,
		size:     size,
		perPart:  make(map[int]int64),
	}
}

func (a *aggregateObserver) forPart(partNumber int) progress.Observer {
	if a.observer == nil {
		return nil
	}
	return progress.ObserverFunc(func(e progress.Event) {
		a.mu.Lock()
		delta := e.Transferred - a.perPart[partNumber]
		a.perPart[partNumber] = e.Transferred
		a.total += delta
		event := progress.NewEvent(a.total, a.size)
		a.mu.Unlock()
		a.observer.OnProgress(event)
	})
}
