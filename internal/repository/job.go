// job.go — репозиторий durable-очереди заданий конвейера миниатюр.
//
// Семантика at-least-once: Enqueue вставляет задание в статусе queued,
// воркеры забирают его через FOR UPDATE SKIP LOCKED (queued → processing),
// затем MarkDone / Retry / MarkFailed. Порядок между разными заданиями
// не гарантируется; дубликаты enqueue для одного файла допустимы —
// путь производной детерминирован, перезапись безопасна.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/gofilevault/internal/domain/model"
)

// JobRepository — доступ к очереди заданий миниатюр.
type JobRepository interface {
	// Enqueue ставит задание в очередь.
	Enqueue(ctx context.Context, fileID, userID string) error
	// Claim забирает одно готовое задание (queued → processing),
	// инкрементируя attempts. Задания, зависшие в processing дольше
	// lease (упавший или остановленный воркер), забираются повторно.
	// Пустая очередь → (nil, nil).
	Claim(ctx context.Context, lease time.Duration) (*model.ThumbnailJob, error)
	// MarkDone помечает задание завершённым.
	MarkDone(ctx context.Context, id int64) error
	// Retry возвращает задание в очередь с задержкой backoff*attempts.
	// При исчерпании maxAttempts задание помечается failed.
	Retry(ctx context.Context, id int64, reason string, maxAttempts int, backoff time.Duration) error
	// MarkFailed помечает задание окончательно проваленным (без повторов).
	MarkFailed(ctx context.Context, id int64, reason string) error
}

// jobRepo — реализация JobRepository через pgx.
type jobRepo struct {
	db DBTX
}

// NewJobRepository создаёт репозиторий очереди заданий.
func NewJobRepository(db DBTX) JobRepository {
	return &jobRepo{db: db}
}

// Enqueue ставит задание в очередь.
func (r *jobRepo) Enqueue(ctx context.Context, fileID, userID string) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO thumbnail_jobs (file_id, user_id) VALUES ($1, $2)`,
		fileID, userID,
	)
	if err != nil {
		return fmt.Errorf("ошибка постановки задания в очередь: %w", err)
	}
	return nil
}

// Claim забирает одно готовое задание.
// SKIP LOCKED позволяет нескольким воркерам опрашивать очередь
// без взаимной блокировки. Вторая ветка WHERE возвращает в оборот
// задания с протухшей арендой: воркер, забравший их, не дожил
// до записи финального статуса.
func (r *jobRepo) Claim(ctx context.Context, lease time.Duration) (*model.ThumbnailJob, error) {
	query := `
		UPDATE thumbnail_jobs
		SET status = 'processing', attempts = attempts + 1, updated_at = now()
		WHERE id = (
			SELECT id FROM thumbnail_jobs
			WHERE (status = 'queued' AND next_attempt_at <= now())
			   OR (status = 'processing' AND updated_at < now() - make_interval(secs => $1))
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, file_id, user_id, attempts`

	job := &model.ThumbnailJob{}
	err := r.db.QueryRow(ctx, query, lease.Seconds()).Scan(&job.ID, &job.FileID, &job.UserID, &job.Attempts)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка выборки задания: %w", err)
	}
	return job, nil
}

// MarkDone помечает задание завершённым.
func (r *jobRepo) MarkDone(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE thumbnail_jobs SET status = 'done', updated_at = now() WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("ошибка завершения задания %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Retry возвращает задание в очередь или помечает failed
// при исчерпании попыток. Задержка растёт линейно с числом попыток.
func (r *jobRepo) Retry(ctx context.Context, id int64, reason string, maxAttempts int, backoff time.Duration) error {
	query := `
		UPDATE thumbnail_jobs
		SET status = CASE WHEN attempts >= $2 THEN 'failed' ELSE 'queued' END,
		    last_error = $3,
		    next_attempt_at = now() + make_interval(secs => $4 * attempts),
		    updated_at = now()
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, maxAttempts, reason, backoff.Seconds())
	if err != nil {
		return fmt.Errorf("ошибка возврата задания %d в очередь: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkFailed помечает задание окончательно проваленным.
func (r *jobRepo) MarkFailed(ctx context.Context, id int64, reason string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE thumbnail_jobs SET status = 'failed', last_error = $2, updated_at = now() WHERE id = $1`,
		id, reason,
	)
	if err != nil {
		return fmt.Errorf("ошибка пометки задания %d проваленным: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
