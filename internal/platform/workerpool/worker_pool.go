// internal/platform/workerpool/worker_pool.go
package workerpool

import (
	"context"
	"sync"
)

// Run ejecuta fn sobre cada item con como máximo maxWorkers ejecuciones en
// vuelo. Es la única utilidad de fan-out del repositorio: cada operación batch
// (status, restart, firmware) la reutiliza en lugar de montar su propio pool.
//
// Run es síncrono: retorna cuando todos los items produjeron resultado. No hay
// garantía de orden en el slice de resultados. El único estado compartido es
// el slice de resultados, protegido por un mutex que se mantiene solo durante
// el append, nunca durante fn.
func Run[T any, R any](ctx context.Context, items []T, maxWorkers int, fn func(ctx context.Context, item T) R) []R {
	if len(items) == 0 {
		return []R{}
	}
	if maxWorkers < 1 {
		maxWorkers = 1
	}

	sem := make(chan struct{}, maxWorkers)
	var wg sync.WaitGroup

	results := make([]R, 0, len(items))
	var resultsMu sync.Mutex

	for _, item := range items {
		wg.Add(1)
		go func(it T) {
			defer wg.Done()

			// Adquirir semáforo
			sem <- struct{}{}
			defer func() { <-sem }()

			res := fn(ctx, it)

			resultsMu.Lock()
			results = append(results, res)
			resultsMu.Unlock()
		}(item)
	}

	wg.Wait()
	return results
}
