// Package domain describes the index equalization run, which corrects already billed
// periods once the yearly cost-of-living index they depend on is published.
package domain

import "context"

// Result summarises one equalization run.
type Result struct {
	Periods   int
	Unchanged int
	Created   int
	Duplicate int
	Failed    int
}

type Service interface {
	Run(ctx context.Context) (*Result, error)
}
