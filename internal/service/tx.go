package service

import "context"

// TxRepositories exposes repositories bound to a single transaction.
type TxRepositories interface {
	Documents() DocumentRepositoryInterface
	Chunks() ChunkRepositoryInterface
}

// TxRunner runs a function within a database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(repos TxRepositories) error) error
}
