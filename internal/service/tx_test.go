package service

import "context"

type testTxRepos struct {
	entries      EntryRepositoryInterface
	chunks       ChunkRepositoryInterface
	indexingJobs IndexingJobRepositoryInterface
}

func (t *testTxRepos) Entries() EntryRepositoryInterface {
	return t.entries
}

func (t *testTxRepos) Chunks() ChunkRepositoryInterface {
	return t.chunks
}

func (t *testTxRepos) IndexingJobs() IndexingJobRepositoryInterface {
	return t.indexingJobs
}

type testTxRunner struct {
	repos  TxRepositories
	called bool
}

func (t *testTxRunner) WithTx(ctx context.Context, fn func(repos TxRepositories) error) error {
	t.called = true
	return fn(t.repos)
}
