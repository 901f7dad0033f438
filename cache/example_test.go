package cache_test

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-crudcore/cache"
)

type bookRepo struct {
	calls int
}

func (r *bookRepo) List(ctx context.Context) ([]string, error) {
	r.calls++
	return []string{"Dune", "The Dispossessed"}, nil
}

func ExampleGetOrFetch() {
	ctx := context.Background()
	store, err := cache.NewStore(ctx, cache.DefaultConfig(), nil)
	if err != nil {
		panic(err)
	}
	gw := cache.NewGateway(store)
	repo := &bookRepo{}

	key, err := cache.KeyFor("books:", map[string]any{"q": "", "page": 1, "size": 10})
	if err != nil {
		panic(err)
	}

	for range 2 {
		books, err := cache.GetOrFetch(ctx, gw, key, time.Minute, func(ctx context.Context) ([]string, error) {
			return repo.List(ctx)
		})
		if err != nil {
			panic(err)
		}
		fmt.Println(books)
	}
	fmt.Println("fetches:", repo.calls)
	// Output:
	// [Dune The Dispossessed]
	// [Dune The Dispossessed]
	// fetches: 1
}
