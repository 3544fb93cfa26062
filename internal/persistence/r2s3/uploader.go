package r2s3

import (
	"context"
	"fmt"
	"log"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldnotes_archive_uploads_total",
		Help: "Closed log files offered to the archive bucket, by result.",
	}, []string{"result"})
	uploadQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fieldnotes_archive_queue_depth",
		Help: "Files waiting to be uploaded.",
	})
)

// Putter stores one local file under a bucket key.
type Putter interface {
	PutFile(ctx context.Context, objectKey, localPath string) error
}

// Uploader copies files under baseDir to the bucket in the background, keyed by
// their path relative to baseDir.
type Uploader struct {
	put     Putter
	baseDir string
	prefix  string
	log     *log.Logger

	attempts int
	backoff  time.Duration

	jobs   chan string
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

func NewUploader(put Putter, baseDir, prefix string, queue int, logger *log.Logger) *Uploader {
	if queue <= 0 {
		queue = 256
	}
	ctx, cancel := context.WithCancel(context.Background())
	u := &Uploader{
		put:      put,
		baseDir:  baseDir,
		prefix:   strings.Trim(strings.ReplaceAll(prefix, "\\", "/"), "/"),
		log:      logger,
		attempts: 4,
		backoff:  200 * time.Millisecond,
		jobs:     make(chan string, queue),
		ctx:      ctx,
		cancel:   cancel,
	}
	u.wg.Add(1)
	go u.loop()
	return u
}

// Enqueue schedules localPath for upload. It never blocks; a full queue drops the file.
func (u *Uploader) Enqueue(localPath string) {
	if u == nil {
		return
	}
	select {
	case u.jobs <- localPath:
		uploadQueueDepth.Set(float64(len(u.jobs)))
	default:
		uploadsTotal.WithLabelValues("dropped").Inc()
		u.printf("archive queue full, dropping %s", localPath)
	}
}

// Close uploads what is already queued, then stops. Pending retries are abandoned.
func (u *Uploader) Close() {
	if u == nil {
		return
	}
	u.once.Do(func() {
		close(u.jobs)
		u.wg.Wait()
		u.cancel()
	})
}

func (u *Uploader) loop() {
	defer u.wg.Done()
	for p := range u.jobs {
		uploadQueueDepth.Set(float64(len(u.jobs)))
		u.upload(p)
	}
}

func (u *Uploader) upload(localPath string) {
	key, err := u.objectKey(localPath)
	if err != nil {
		uploadsTotal.WithLabelValues("skipped").Inc()
		u.printf("archive skip %s: %v", localPath, err)
		return
	}
	var lastErr error
	for i := 1; i <= u.attempts; i++ {
		ctx, cancel := context.WithTimeout(u.ctx, 2*time.Minute)
		lastErr = u.put.PutFile(ctx, key, localPath)
		cancel()
		if lastErr == nil {
			uploadsTotal.WithLabelValues("ok").Inc()
			u.printf("archived %s", key)
			return
		}
		if i < u.attempts {
			select {
			case <-time.After(time.Duration(i*i) * u.backoff):
			case <-u.ctx.Done():
				i = u.attempts
			}
		}
	}
	uploadsTotal.WithLabelValues("error").Inc()
	u.printf("archive %s failed: %v", key, lastErr)
}

func (u *Uploader) objectKey(localPath string) (string, error) {
	base, err := filepath.Abs(u.baseDir)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(localPath)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(base, abs)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%s is outside %s", abs, base)
	}
	if u.prefix != "" {
		rel = path.Join(u.prefix, rel)
	}
	return rel, nil
}

func (u *Uploader) printf(format string, args ...any) {
	if u.log != nil {
		u.log.Printf(format, args...)
	}
}
