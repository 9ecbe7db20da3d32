package server

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// QdrantPinger probes a Qdrant instance using its native HealthCheck RPC.
// It satisfies the Pinger interface and is used by GET /api/ready.
type QdrantPinger struct {
	// client is the Qdrant gRPC client to probe.
	client *qdrant.Client
}

// NewQdrantPinger constructs a QdrantPinger for the given Qdrant client.
func NewQdrantPinger(client *qdrant.Client) *QdrantPinger {
	return &QdrantPinger{client: client}
}

// Name returns the dependency label used in readiness responses.
func (p *QdrantPinger) Name() string { return "qdrant" }

// Ping calls the Qdrant HealthCheck RPC.
func (p *QdrantPinger) Ping(ctx context.Context) error {
	if _, err := p.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// contextPinger is anything with a context-aware Ping, such as
// *source.GormProvider.
type contextPinger interface {
	Ping(ctx context.Context) error
}

// SourcePinger probes the relational source database.
type SourcePinger struct {
	// db is the probed dependency.
	db contextPinger
	// name is the label used in readiness responses (e.g. "mysql").
	name string
}

// NewSourcePinger constructs a SourcePinger labelled name.
func NewSourcePinger(db contextPinger, name string) *SourcePinger {
	return &SourcePinger{db: db, name: name}
}

// Name returns the dependency label used in readiness responses.
func (p *SourcePinger) Name() string { return p.name }

// Ping checks the source database connection.
func (p *SourcePinger) Ping(ctx context.Context) error {
	return p.db.Ping(ctx)
}
