// Package images keeps a bounded set of decoded images and ready-to-draw
// bitmaps warm. Loads run on a worker pool and are deduplicated per file;
// failures are remembered per file and surfaced on lookup instead of being
// retried on every frame.
package images

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hatlen/tiv/pkg/cache"
	"github.com/hatlen/tiv/pkg/metrics"
	"github.com/hatlen/tiv/pkg/rlog"
	"github.com/hatlen/tiv/tiv"
)

// ImageService answers "give me the bitmap for this file" in two halves:
// Load schedules the decode → upload pipeline for a file and returns
// immediately, Get reports whatever is resident right now. A renderer calls
// Get on every frame and must never be blocked by decoding.
//
// Two cache tiers with independent budgets and eviction timelines sit
// behind the service: decoded images and uploaded bitmaps. A bitmap can
// outlive the image it was made from, and vice versa. When only the bitmap
// tier has been evicted, the next load skips the decode and goes straight
// to upload.
type ImageService struct {
	decoder tiv.Decoder

	imageCache  *cache.Cache[*image.NRGBA]
	bitmapCache *cache.Cache[tiv.Bitmap]
	ledger      *errorLedger

	workersCount int

	tasksCh    chan loadTask
	inFlight   map[uint64]*flight
	inFlightMu sync.Mutex

	stopped       *atomic.Bool
	workersDoneCh chan struct{}
}

// flight is a single running pipeline. Duplicate load requests for the
// same file attach their callbacks to the existing flight instead of
// starting another pipeline; all of them are notified by the one outcome.
type flight struct {
	id        tiv.FileID
	callbacks []func(tiv.FileID)
}

type loadTask struct {
	flight *flight
	device tiv.Device
}

// NewImageService prepares a service with a running worker pool.
func NewImageService(decoder tiv.Decoder, workersCount int, bitmapCacheSize, imageCacheSize int64) *ImageService {
	s := &ImageService{
		decoder: decoder,
		//
		imageCache:  cache.New[*image.NRGBA]("image", imageCacheSize),
		bitmapCache: cache.New[tiv.Bitmap]("bitmap", bitmapCacheSize),
		ledger:      newErrorLedger(),
		//
		workersCount: workersCount,
		//
		tasksCh:  make(chan loadTask, 1024),
		inFlight: make(map[uint64]*flight),
		//
		stopped:       new(atomic.Bool),
		workersDoneCh: make(chan struct{}),
	}

	go s.startWorkers()

	return s
}

func (s *ImageService) startWorkers() {
	var wg sync.WaitGroup
	for range s.workersCount {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for task := range s.tasksCh {
				s.processTask(task)
			}
		}()
	}
	wg.Wait()

	close(s.workersDoneCh)
}

// Load schedules bitmap preparation for a file and returns without waiting
// for it. onComplete fires exactly once, after the outcome is visible via
// [ImageService.Get] - the caller is expected to call Get again rather than
// receive data through the callback. If the bitmap is already resident,
// onComplete fires inline. If a load for the same file is already running,
// no second pipeline is started and onComplete is attached to the running
// one.
func (s *ImageService) Load(id tiv.FileID, device tiv.Device, onComplete func(tiv.FileID)) error {
	if s.stopped.Load() {
		return errors.New("can't load after Shutdown call")
	}

	if _, ok := s.bitmapCache.Get(id); ok {
		if onComplete != nil {
			onComplete(id)
		}
		return nil
	}

	f := &flight{id: id}
	if onComplete != nil {
		f.callbacks = append(f.callbacks, onComplete)
	}

	var deduplicated bool
	func() {
		s.inFlightMu.Lock()
		defer s.inFlightMu.Unlock()

		existing, ok := s.inFlight[id.Hash()]
		if ok && existing.id.GetPath() == id.GetPath() {
			if onComplete != nil {
				existing.callbacks = append(existing.callbacks, onComplete)
			}
			deduplicated = true
			return
		}
		if !ok {
			s.inFlight[id.Hash()] = f
		}
		// A colliding path runs its own pipeline: the marker slot stays
		// with the first flight, and processTask only removes its own.
	}()
	if deduplicated {
		metrics.LoadsDeduplicated.Inc()
		return nil
	}

	metrics.Loads.Inc()

	s.tasksCh <- loadTask{flight: f, device: device}
	return nil
}

func (s *ImageService) processTask(task loadTask) {
	id := task.flight.id

	err := s.loadImage(id, task.device)
	if err != nil {
		metrics.LoadErrors.Inc()
		rlog.Errorf("couldn't load %q: %s", id.GetPath(), err)

		s.ledger.set(id, err)
	} else {
		s.ledger.forget(id)
	}

	// Drop the in-flight marker before notifying: a callback may issue
	// a new load for the same file right away.
	s.inFlightMu.Lock()
	if s.inFlight[id.Hash()] == task.flight {
		delete(s.inFlight, id.Hash())
	}
	callbacks := task.flight.callbacks
	s.inFlightMu.Unlock()

	for _, cb := range callbacks {
		cb(id)
	}
}

func (s *ImageService) loadImage(id tiv.FileID, device tiv.Device) error {
	// A competing load may have finished while this task sat in the queue.
	if _, ok := s.bitmapCache.Get(id); ok {
		return nil
	}

	img, ok := s.imageCache.Get(id)
	if !ok {
		now := time.Now()

		var err error
		img, err = s.decoder.Decode(id.GetPath())
		if err != nil {
			return fmt.Errorf("couldn't decode: %w", err)
		}
		metrics.DecodeDuration.Observe(time.Since(now).Seconds())

		s.imageCache.Push(id, img, int64(len(img.Pix)))
	}

	now := time.Now()
	bmp, err := device.Upload(img)
	if err != nil {
		return fmt.Errorf("couldn't upload: %w", err)
	}
	metrics.UploadDuration.Observe(time.Since(now).Seconds())

	s.bitmapCache.Push(id, bmp, bmp.SizeBytes())
	return nil
}

// Get reports the load outcome for a file: the bitmap when it is resident,
// the remembered error when the last load failed, and (nil, nil) when the
// file is still loading or was never requested.
//
// The ledger is consulted first: a failure recorded after the bitmap was
// cached (the file changed on disk and its reload failed) must keep
// surfacing instead of being masked by the stale bitmap.
func (s *ImageService) Get(id tiv.FileID) (tiv.Bitmap, error) {
	if err, ok := s.ledger.get(id); ok {
		return nil, err
	}
	if bmp, ok := s.bitmapCache.Get(id); ok {
		return bmp, nil
	}
	return nil, nil
}

// Clear drops both cache tiers and the remembered errors.
func (s *ImageService) Clear() {
	s.imageCache.Clear()
	s.bitmapCache.Clear()
	s.ledger.clear()
}

// BitmapCacheSize reports the total size of cached bitmaps in bytes.
func (s *ImageService) BitmapCacheSize() int64 {
	return s.bitmapCache.Size()
}

// ImageCacheSize reports the total size of cached decoded images in bytes.
func (s *ImageService) ImageCacheSize() int64 {
	return s.imageCache.Size()
}

// Shutdown drops all queued loads and waits for the running ones with
// respect of the passed context. Callbacks of dropped loads never fire.
func (s *ImageService) Shutdown(ctx context.Context) error {
	s.stopped.Store(true)

	close(s.tasksCh)
	for range s.tasksCh { //nolint:revive
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.workersDoneCh:
		return nil
	}
}
