package procview

import (
	"github.com/ripkitten-co/procview/internal/codecs"
	"github.com/ripkitten-co/procview/internal/pg"
	"github.com/ripkitten-co/procview/schema"
)

// Backend is satisfied by Store and Session. Collections, the journal and
// checkpoints are built from either, so the same code runs inside or outside
// a transaction.
type Backend interface {
	DBExecutor() pg.Executor
	JSONCodec() codecs.Codec
	SchemaBootstrap() *schema.Bootstrap
}

type backend struct {
	exec   pg.Executor
	codec  codecs.Codec
	schema *schema.Bootstrap
}
