package binderfs

import (
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// minItemsForParallel is the smallest batch worth spreading over goroutines
const minItemsForParallel = 4

// fanOut runs fn for every index in [0, n) on at most workers goroutines and
// returns the first error. A panic in fn is converted to an error.
func fanOut(workers, n int, fn func(i int) error) error {
	if n == 0 {
		return nil
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > n {
		workers = n
	}

	if workers == 1 || n < minItemsForParallel {
		for i := 0; i < n; i++ {
			if err := safeCall(fn, i); err != nil {
				return err
			}
		}
		return nil
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			return safeCall(fn, i)
		})
	}
	return g.Wait()
}

func safeCall(fn func(i int) error, i int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in worker: %v", r)
		}
	}()
	return fn(i)
}
