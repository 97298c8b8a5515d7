// worker.go — пул фоновых воркеров конвейера миниатюр.
//
// Воркеры опрашивают durable-очередь заданий с периодическим тикером,
// захватывают задания по одному и для каждого изображения генерируют
// три размерных варианта параллельно. Задание завершается только
// после успеха всех трёх записей (all-or-nothing); ошибки уходят
// в политику повторов очереди.
package thumbs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/gofilevault/internal/domain/model"
	"github.com/bigkaa/gofilevault/internal/repository"
	"github.com/bigkaa/gofilevault/internal/storage/blobstore"
)

// Prometheus-метрики конвейера миниатюр.
var (
	jobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fv_thumbnail_jobs_total",
		Help: "Общее количество обработанных заданий миниатюр (по результату).",
	}, []string{"result"})

	jobDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fv_thumbnail_job_duration_seconds",
		Help:    "Длительность обработки задания миниатюр в секундах.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})

	workersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fv_thumbnail_workers_active",
		Help: "Количество запущенных воркеров конвейера миниатюр.",
	})
)

// PoolConfig — параметры пула воркеров.
type PoolConfig struct {
	// Workers — количество воркеров
	Workers int
	// PollInterval — период опроса очереди
	PollInterval time.Duration
	// JobTimeout — предел времени обработки одного задания
	JobTimeout time.Duration
	// MaxAttempts — предел попыток до перевода задания в failed
	MaxAttempts int
	// RetryBackoff — базовая задержка перед повтором
	RetryBackoff time.Duration
	// LeaseTimeout — аренда захваченного задания; по её истечении
	// задание в статусе processing считается брошенным и забирается
	// другим воркером. Должна превышать JobTimeout.
	LeaseTimeout time.Duration
}

// statusWriteTimeout — предел времени записи финального статуса задания.
const statusWriteTimeout = 10 * time.Second

// Pool — пул воркеров конвейера миниатюр.
type Pool struct {
	cfg    PoolConfig
	jobs   repository.JobRepository
	files  repository.FileRepository
	blobs  *blobstore.Store
	logger *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool создаёт пул воркеров.
func NewPool(
	cfg PoolConfig,
	jobs repository.JobRepository,
	files repository.FileRepository,
	blobs *blobstore.Store,
	logger *slog.Logger,
) *Pool {
	return &Pool{
		cfg:    cfg,
		jobs:   jobs,
		files:  files,
		blobs:  blobs,
		logger: logger.With(slog.String("component", "thumbnail_pool")),
	}
}

// Start запускает воркеры. Вызывается один раз при старте приложения.
func (p *Pool) Start(ctx context.Context) {
	poolCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.run(poolCtx, i)
	}
	workersActive.Set(float64(p.cfg.Workers))

	p.logger.Info("Конвейер миниатюр запущен",
		slog.Int("workers", p.cfg.Workers),
		slog.String("poll_interval", p.cfg.PollInterval.String()),
	)
}

// Stop останавливает воркеры и дожидается завершения текущих заданий.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	workersActive.Set(0)
	p.logger.Info("Конвейер миниатюр остановлен")
}

// run — основной цикл воркера: опрос очереди с тикером,
// вычерпывание очереди до пустого захвата.
func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()

	logger := p.logger.With(slog.Int("worker", id))

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.drain(ctx, logger)
		}
	}
}

// drain обрабатывает задания, пока очередь не опустеет.
func (p *Pool) drain(ctx context.Context, logger *slog.Logger) {
	for {
		if ctx.Err() != nil {
			return
		}

		job, err := p.jobs.Claim(ctx, p.cfg.LeaseTimeout)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				logger.Error("Ошибка захвата задания", slog.String("error", err.Error()))
			}
			return
		}
		if job == nil {
			// Очередь пуста
			return
		}

		p.process(ctx, logger, job)
	}
}

// process обрабатывает одно захваченное задание с пределом времени.
func (p *Pool) process(ctx context.Context, logger *slog.Logger, job *model.ThumbnailJob) {
	start := time.Now()

	jobCtx, cancel := context.WithTimeout(ctx, p.cfg.JobTimeout)
	defer cancel()

	err := p.execute(jobCtx, job)
	jobDurationSeconds.Observe(time.Since(start).Seconds())

	// Финальный статус пишется в контексте, переживающем остановку
	// пула: отмена poolCtx во время execute не должна бросать задание
	// в processing до истечения аренды.
	finishCtx, finishCancel := context.WithTimeout(context.WithoutCancel(ctx), statusWriteTimeout)
	defer finishCancel()

	switch {
	case err == nil:
		if markErr := p.jobs.MarkDone(finishCtx, job.ID); markErr != nil {
			logger.Error("Не удалось завершить задание",
				slog.Int64("job_id", job.ID),
				slog.String("error", markErr.Error()),
			)
			return
		}
		jobsTotal.WithLabelValues("done").Inc()
		logger.Debug("Миниатюры созданы",
			slog.Int64("job_id", job.ID),
			slog.String("file_id", job.FileID),
			slog.Duration("duration", time.Since(start)),
		)

	case errors.As(err, new(*permanentError)):
		if markErr := p.jobs.MarkFailed(finishCtx, job.ID, err.Error()); markErr != nil {
			logger.Error("Не удалось пометить задание failed",
				slog.Int64("job_id", job.ID),
				slog.String("error", markErr.Error()),
			)
			return
		}
		jobsTotal.WithLabelValues("failed").Inc()
		logger.Warn("Задание миниатюр отклонено без повтора",
			slog.Int64("job_id", job.ID),
			slog.String("file_id", job.FileID),
			slog.String("error", err.Error()),
		)

	default:
		if retryErr := p.jobs.Retry(finishCtx, job.ID, err.Error(), p.cfg.MaxAttempts, p.cfg.RetryBackoff); retryErr != nil {
			logger.Error("Не удалось вернуть задание в очередь",
				slog.Int64("job_id", job.ID),
				slog.String("error", retryErr.Error()),
			)
			return
		}
		jobsTotal.WithLabelValues("retried").Inc()
		logger.Warn("Задание миниатюр завершилось ошибкой",
			slog.Int64("job_id", job.ID),
			slog.String("file_id", job.FileID),
			slog.Int("attempts", job.Attempts),
			slog.String("error", err.Error()),
		)
	}
}

// execute генерирует все размерные варианты для задания.
// Три ширины обрабатываются параллельно; первая ошибка
// проваливает задание целиком, уже записанные варианты
// не откатываются (повтор перезапишет их детерминированно).
func (p *Pool) execute(ctx context.Context, job *model.ThumbnailJob) error {
	if !model.ValidID(job.FileID) || !model.ValidID(job.UserID) {
		return &permanentError{reason: "некорректные идентификаторы задания"}
	}

	entry, err := p.files.GetByOwner(ctx, job.FileID, job.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &permanentError{reason: "файл не найден"}
		}
		return fmt.Errorf("загрузка файла: %w", err)
	}
	if entry.Type != model.TypeImage {
		return &permanentError{reason: "запись не является изображением"}
	}

	original, err := p.blobs.Read(entry.LocalPath)
	if err != nil {
		return fmt.Errorf("чтение оригинала: %w", err)
	}

	errCh := make(chan error, len(Widths))
	var wg sync.WaitGroup
	for _, width := range Widths {
		wg.Add(1)
		go func(width int) {
			defer wg.Done()
			if err := ctx.Err(); err != nil {
				errCh <- err
				return
			}
			variant, err := Resize(original, width)
			if err != nil {
				errCh <- fmt.Errorf("вариант %d: %w", width, err)
				return
			}
			if err := p.blobs.SaveVariant(entry.LocalPath, width, variant); err != nil {
				errCh <- fmt.Errorf("запись варианта %d: %w", width, err)
			}
		}(width)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			return err
		}
	}
	return nil
}

// permanentError — ошибка, исключающая повтор задания.
type permanentError struct {
	reason string
}

func (e *permanentError) Error() string {
	return e.reason
}
