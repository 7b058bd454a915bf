package scratch

import "context"

// Fetcher performs a single HTTP GET and returns the body plus metadata.
// Implementations return a *StatusError for non-2xx responses.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Decompiler turns an input archive into an output directory.
type Decompiler interface {
	Decompile(ctx context.Context, request DecompileRequest) error
}

// IDGenerator produces request IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}

// JobQueue buffers decompile jobs between submitters and workers.
type JobQueue interface {
	Enqueue(ctx context.Context, job DecompileJob) error
	Dequeue(ctx context.Context) (DecompileJob, error)
}
