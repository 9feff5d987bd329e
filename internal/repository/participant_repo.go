package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"chatsurvey/internal/model"
)

// ParticipantRepo handles MongoDB operations for participants
type ParticipantRepo interface {
	GetOrCreateByPhone(ctx context.Context, phone string) (*model.Participant, error)
	GetByID(ctx context.Context, id string) (*model.Participant, error)
	EnsureIndexes(ctx context.Context) error
}

type participantRepo struct {
	collection *mongo.Collection
	db         *mongo.Database
}

// NewParticipantRepo creates a new participant repository
func NewParticipantRepo(db *mongo.Database) ParticipantRepo {
	return &participantRepo{
		collection: db.Collection("participants"),
		db:         db,
	}
}

func (r *participantRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "phone", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

// GetOrCreateByPhone returns the participant for the phone number, creating
// one with a fresh sequential code on first contact. The unique phone index
// resolves duplicate-create races; the loser re-reads.
func (r *participantRepo) GetOrCreateByPhone(ctx context.Context, phone string) (*model.Participant, error) {
	var participant model.Participant
	err := r.collection.FindOne(ctx, bson.M{"phone": phone}).Decode(&participant)
	if err == nil {
		return &participant, nil
	}
	if err != mongo.ErrNoDocuments {
		return nil, err
	}

	seq, err := NextSequence(ctx, r.db, "participants")
	if err != nil {
		return nil, fmt.Errorf("participant code sequence: %w", err)
	}

	participant = model.Participant{
		ID:        uuid.New().String(),
		Phone:     phone,
		Code:      fmt.Sprintf("R-%04d", seq),
		CreatedAt: time.Now(),
	}

	if _, err := r.collection.InsertOne(ctx, participant); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			var existing model.Participant
			if err := r.collection.FindOne(ctx, bson.M{"phone": phone}).Decode(&existing); err != nil {
				return nil, err
			}
			return &existing, nil
		}
		return nil, err
	}

	return &participant, nil
}

func (r *participantRepo) GetByID(ctx context.Context, id string) (*model.Participant, error) {
	var participant model.Participant
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&participant)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &participant, nil
}
