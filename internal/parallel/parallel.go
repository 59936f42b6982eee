package parallel

import (
	"golang.org/x/sync/errgroup"
)

// For executes fn over [0, n) split into at most workers contiguous chunks.
// The first error returned by a chunk is returned once all chunks finish.
func For(n, workers int, fn func(start, end int) error) error {
	if n <= 0 {
		return nil
	}
	if workers <= 1 || n == 1 {
		return fn(0, n)
	}
	if workers > n {
		workers = n
	}

	chunkSize := (n + workers - 1) / workers

	var g errgroup.Group
	g.SetLimit(workers)
	for start := 0; start < n; start += chunkSize {
		end := start + chunkSize
		if end > n {
			end = n
		}
		g.Go(func() error {
			return fn(start, end)
		})
	}

	return g.Wait()
}

// Each calls fn once per index in [0, n).
func Each(n, workers int, fn func(i int) error) error {
	return For(n, workers, func(start, end int) error {
		for i := start; i < end; i++ {
			if err := fn(i); err != nil {
				return err
			}
		}
		return nil
	})
}

// Count calls fn once per index and returns how many calls reported true.
// Partial counts are reduced per chunk, so the total does not depend on
// scheduling.
func Count(n, workers int, fn func(i int) (bool, error)) (int, error) {
	if n <= 0 {
		return 0, nil
	}
	if workers < 1 {
		workers = 1
	}
	if workers > n {
		workers = n
	}
	chunkSize := (n + workers - 1) / workers
	partial := make([]int, (n+chunkSize-1)/chunkSize)

	err := For(n, workers, func(start, end int) error {
		local := 0
		for i := start; i < end; i++ {
			ok, err := fn(i)
			if err != nil {
				return err
			}
			if ok {
				local++
			}
		}
		partial[start/chunkSize] = local
		return nil
	})
	if err != nil {
		return 0, err
	}

	total := 0
	for _, c := range partial {
		total += c
	}
	return total, nil
}
