package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/lumosgraph/backend/internal/config"
	"github.com/lumosgraph/backend/internal/db"
	"github.com/lumosgraph/backend/internal/docs"
	"github.com/lumosgraph/backend/internal/filestore"
	"github.com/lumosgraph/backend/internal/images"
	"github.com/lumosgraph/backend/internal/logger"
	"github.com/lumosgraph/backend/internal/store/rabbitmq"
)

func workerConcurrency() int {
	v := os.Getenv("WORKER_CONCURRENCY")
	if v == "" {
		return 2
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 2
	}
	if n > 50 {
		return 50
	}
	return n
}

func main() {
	cfg := config.Load()

	lg, err := logger.New(cfg.LogMode)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer lg.Sync()
	lg = lg.With("app", "worker")

	gdb, err := db.Connect(cfg.DBDSN)
	if err != nil {
		lg.Fatal("db connect failed", "err", err)
	}
	repo := docs.NewRepo(gdb)
	extractor := docs.NewExtractor()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	files, err := filestore.NewS3Store(ctx, lg, cfg.S3Bucket, cfg.S3Prefix, cfg.AWSRegion)
	if err != nil {
		lg.Fatal("file store init failed", "err", err)
	}

	var imgCache images.Cache = images.NopCache{}
	if cfg.RedisAddr != "" {
		c, err := images.NewRedisCache(lg, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.ImageCacheTTL)
		if err != nil {
			lg.Warn("redis unavailable, image cache invalidation disabled", "err", err)
		} else {
			imgCache = c
		}
	}

	proc := &processor{
		log:       lg,
		repo:      repo,
		extractor: extractor,
		files:     files,
		images:    imgCache,
	}

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		lg.Fatal("rabbit dial failed", "err", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		lg.Fatal("rabbit channel failed", "err", err)
	}
	defer ch.Close()

	if err := rabbitmq.DeclareQueues(ch, cfg.RabbitQueue); err != nil {
		lg.Fatal("queue declare failed", "err", err)
	}

	concurrency := workerConcurrency()
	if err := ch.Qos(concurrency, 0, false); err != nil {
		lg.Fatal("qos failed", "err", err)
	}

	msgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		lg.Fatal("consume failed", "err", err)
	}

	lg.Info("worker started", "queue", cfg.RabbitQueue, "concurrency", concurrency)

	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				var job rabbitmq.DocumentJob
				if err := json.Unmarshal(d.Body, &job); err != nil || job.JobID == "" {
					lg.Warn("bad message", "worker", workerID, "err", err)
					_ = d.Nack(false, false)
					continue
				}

				start := time.Now()
				if err := proc.handle(ctx, job); err != nil {
					lg.Error("job failed",
						"worker", workerID, "job_id", job.JobID,
						"filename", job.Filename, "cost", time.Since(start), "err", err)
					_ = d.Nack(false, false)
					continue
				}
				lg.Info("job done",
					"worker", workerID, "job_id", job.JobID,
					"filename", job.Filename, "cost", time.Since(start))

				if err := d.Ack(false); err != nil {
					lg.Warn("ack failed", "worker", workerID, "job_id", job.JobID, "err", err)
				}
			}
		}(i)
	}

	for {
		select {
		case <-ctx.Done():
			lg.Info("worker shutting down")
			close(jobs)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				lg.Warn("delivery channel closed")
				time.Sleep(1 * time.Second)
				continue
			}
			jobs <- d
		}
	}
}

type processor struct {
	log       *logger.Logger
	repo      *docs.Repo
	extractor docs.Extractor
	files     filestore.Store
	images    images.Cache
}

// handle runs one extraction job: download, extract pages, split into
// chunks, upsert, and drop the thread's warm image cache so the next turn
// sees the new context.
func (p *processor) handle(ctx context.Context, job rabbitmq.DocumentJob) error {
	body, err := p.files.Download(ctx, job.StorageKey)
	if err != nil {
		return err
	}
	defer body.Close()

	pages, err := p.extractor.Extract(ctx, job.Filename, body)
	if err != nil {
		if errors.Is(err, docs.ErrUnsupportedFormat) {
			// No retry will fix a format mismatch; let it dead-letter.
			p.log.Warn("unsupported format", "job_id", job.JobID, "filename", job.Filename)
		}
		return err
	}

	var rows []docs.Chunk
	for _, page := range pages {
		for i, content := range docs.SplitChunks(page.Text) {
			row, err := docs.NewChunk(job.ThreadID, job.UserID, job.Filename, page.Num, i, content, page.ImageKeys)
			if err != nil {
				return err
			}
			rows = append(rows, row)
		}
	}

	n, err := p.repo.SaveChunks(ctx, rows)
	if err != nil {
		return err
	}
	p.log.Debug("chunks saved", "job_id", job.JobID, "count", n)

	if err := p.images.Delete(ctx, job.ThreadID); err != nil {
		p.log.Warn("image cache invalidation failed", "thread_id", job.ThreadID, "err", err)
	}
	return nil
}
