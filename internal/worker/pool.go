// Package worker runs CPU-heavy jobs on a bounded number of goroutines.
package worker

import (
	"context"
	"runtime"
	"sort"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"
)

// Result is the outcome of one task. Index is the task's position in the
// input slice.
type Result[T, R any] struct {
	Index int
	Task  T
	Value R
	Err   error
}

type job[T any] struct {
	index int
	task  T
}

type Pool[T, R any] struct {
	workers int
	logger  *zap.Logger
}

// Workers resolves a configured width: values <= 0 mean "all CPUs but two",
// never less than one.
func Workers(configured int) int {
	if configured > 0 {
		return configured
	}
	n := runtime.NumCPU() - 2
	if n < 1 {
		n = 1
	}
	return n
}

func NewPool[T, R any](workers int, logger *zap.Logger) *Pool[T, R] {
	return &Pool[T, R]{workers: Workers(workers), logger: logger}
}

func (p *Pool[T, R]) Size() int {
	return p.workers
}

// Run feeds tasks to the workers over a channel and gathers their results
// from a result channel, in completion order. A panicking task yields an
// error result; the remaining tasks still run. Tasks not started before ctx
// is done fail with ctx.Err().
func (p *Pool[T, R]) Run(ctx context.Context, tasks []T, fn func(context.Context, T) (R, error)) []Result[T, R] {
	if len(tasks) == 0 {
		return nil
	}

	workers := p.workers
	if workers > len(tasks) {
		workers = len(tasks)
	}

	jobs := make(chan job[T], len(tasks))
	results := make(chan Result[T, R], len(tasks))
	for i, task := range tasks {
		jobs <- job[T]{index: i, task: task}
	}
	close(jobs)

	var wg conc.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Go(func() {
			for j := range jobs {
				results <- p.runOne(ctx, j, fn)
			}
		})
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	collected := make([]Result[T, R], 0, len(tasks))
	for res := range results {
		collected = append(collected, res)
	}

	p.logger.Debug("Worker pool finished",
		zap.Int("tasks", len(tasks)),
		zap.Int("workers", workers))

	return collected
}

func (p *Pool[T, R]) runOne(ctx context.Context, j job[T], fn func(context.Context, T) (R, error)) Result[T, R] {
	res := Result[T, R]{Index: j.index, Task: j.task}
	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}

	recovered := panics.Try(func() {
		res.Value, res.Err = fn(ctx, j.task)
	})
	if recovered != nil {
		p.logger.Error("Task panicked", zap.Int("index", j.index), zap.String("panic", recovered.String()))
		res.Err = recovered.AsError()
	}
	return res
}

// Ordered sorts results back into task order.
func Ordered[T, R any](results []Result[T, R]) []Result[T, R] {
	sort.Slice(results, func(i, j int) bool { return results[i].Index < results[j].Index })
	return results
}
