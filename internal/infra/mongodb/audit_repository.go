package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/domain"
)

// AuditRepository grava a trilha append-only em "audit_events".
// A sequência por transação vem de um contador em "audit_sequences" ($inc atômico).
type AuditRepository struct {
	events    *mongo.Collection
	sequences *mongo.Collection
}

func NewAuditRepository(client *mongo.Client, dbName string) *AuditRepository {
	db := client.Database(dbName)
	return &AuditRepository{
		events:    db.Collection("audit_events"),
		sequences: db.Collection("audit_sequences"),
	}
}

// EnsureIndexes garante unicidade de (transaction_id, sequence)
func (r *AuditRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.events.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "transaction_id", Value: 1}, {Key: "sequence", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create audit index: %w", err)
	}
	return nil
}

type sequenceDoc struct {
	ID  string `bson:"_id"`
	Seq int64  `bson:"seq"`
}

func (r *AuditRepository) Append(ctx context.Context, event *domain.AuditEvent) error {
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var seq sequenceDoc
	err := r.sequences.FindOneAndUpdate(ctx,
		bson.M{"_id": event.TransactionID},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		opts,
	).Decode(&seq)
	if err != nil {
		return fmt.Errorf("failed to allocate audit sequence: %w", err)
	}

	event.Sequence = seq.Seq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if _, err := r.events.InsertOne(ctx, event); err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

func (r *AuditRepository) ListByTransaction(ctx context.Context, transactionID string) ([]domain.AuditEvent, error) {
	cursor, err := r.events.Find(ctx,
		bson.M{"transaction_id": transactionID},
		options.Find().SetSort(bson.D{{Key: "sequence", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}

	var events []domain.AuditEvent
	if err := cursor.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("failed to decode audit events: %w", err)
	}
	return events, nil
}
