// Package blocking runs synchronous database calls on a bounded set of goroutines,
// so a slow or stuck database can't pile up unbounded work behind the pipeline.
package blocking

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/semaphore"

	saterrs "github.com/jdholdren/satelit/internal/errors"
)

// Pool bounds how many calls are in flight at once. Size it to the database's
// connection pool.
type Pool struct {
	sem *semaphore.Weighted
}

func New(size int) *Pool {
	if size < 1 {
		size = 1
	}

	return &Pool{
		sem: semaphore.NewWeighted(int64(size)),
	}
}

type result[T any] struct {
	val T
	err error
}

// Do runs fn on its own goroutine once a slot is free and waits for it.
//
// Errors from fn are Storage errors unless already classified. Failing to get a
// slot before ctx is done is also a Storage error, and a panic in fn is Unexpected.
func Do[T any](ctx context.Context, p *Pool, op saterrs.Op, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return zero, saterrs.E(op, saterrs.Storage, fmt.Errorf("error waiting for a database slot: %w", err))
	}

	done := make(chan result[T], 1)
	go func() {
		defer p.sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				done <- result[T]{err: saterrs.E(saterrs.Unexpected, fmt.Sprintf("panic: %v", r))}
			}
		}()

		val, err := fn(ctx)
		done <- result[T]{val: val, err: err}
	}()

	res := <-done
	if res.err == nil {
		return res.val, nil
	}

	var classified *saterrs.Error
	if errors.As(res.err, &classified) {
		return zero, saterrs.E(op, res.err)
	}

	return zero, saterrs.E(op, saterrs.Storage, res.err)
}

// Exec is Do for calls that only return an error.
func Exec(ctx context.Context, p *Pool, op saterrs.Op, fn func(ctx context.Context) error) error {
	_, err := Do(ctx, p, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
