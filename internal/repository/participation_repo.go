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

// ParticipationRepo handles MongoDB operations for survey participations
type ParticipationRepo interface {
	GetOrCreate(ctx context.Context, surveyID, participantID, codePrefix string) (*model.Participation, error)
	GetByID(ctx context.Context, id string) (*model.Participation, error)

	// Complete marks the participation finished and returns the duration in
	// seconds, measured from the persisted StartedAt so a session reset
	// mid-survey does not restart the clock.
	Complete(ctx context.Context, id string) (int, error)
	ListBySurvey(ctx context.Context, surveyID string) ([]*model.Participation, error)
	CountBySurvey(ctx context.Context, surveyID string) (int64, error)
	EnsureIndexes(ctx context.Context) error
}

type participationRepo struct {
	collection *mongo.Collection
	db         *mongo.Database
}

// NewParticipationRepo creates a new participation repository
func NewParticipationRepo(db *mongo.Database) ParticipationRepo {
	return &participationRepo{
		collection: db.Collection("participations"),
		db:         db,
	}
}

func (r *participationRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "surveyId", Value: 1}, {Key: "participantId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

// GetOrCreate returns the participation for the (survey, participant) pair,
// creating one with the next survey-scoped code when the participant starts
// the survey for the first time.
func (r *participationRepo) GetOrCreate(ctx context.Context, surveyID, participantID, codePrefix string) (*model.Participation, error) {
	filter := bson.M{"surveyId": surveyID, "participantId": participantID}

	var participation model.Participation
	err := r.collection.FindOne(ctx, filter).Decode(&participation)
	if err == nil {
		return &participation, nil
	}
	if err != mongo.ErrNoDocuments {
		return nil, err
	}

	seq, err := NextSequence(ctx, r.db, "participation:"+surveyID)
	if err != nil {
		return nil, fmt.Errorf("participation code sequence: %w", err)
	}
	if codePrefix == "" {
		codePrefix = "P"
	}

	participation = model.Participation{
		ID:            uuid.New().String(),
		SurveyID:      surveyID,
		ParticipantID: participantID,
		Code:          fmt.Sprintf("%s-%04d", codePrefix, seq),
		StartedAt:     time.Now(),
	}

	if _, err := r.collection.InsertOne(ctx, participation); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			var existing model.Participation
			if err := r.collection.FindOne(ctx, filter).Decode(&existing); err != nil {
				return nil, err
			}
			return &existing, nil
		}
		return nil, err
	}

	return &participation, nil
}

func (r *participationRepo) GetByID(ctx context.Context, id string) (*model.Participation, error) {
	var participation model.Participation
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&participation)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &participation, nil
}

func (r *participationRepo) Complete(ctx context.Context, id string) (int, error) {
	var participation model.Participation
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&participation); err != nil {
		return 0, err
	}
	now := time.Now()
	duration := int(now.Sub(participation.StartedAt).Seconds())
	if duration < 0 {
		duration = 0
	}
	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{
			"completed":       true,
			"completedAt":     now,
			"durationSeconds": duration,
		}},
	)
	if err != nil {
		return 0, err
	}
	if result.MatchedCount == 0 {
		return 0, mongo.ErrNoDocuments
	}
	return duration, nil
}

func (r *participationRepo) ListBySurvey(ctx context.Context, surveyID string) ([]*model.Participation, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"surveyId": surveyID}, options.Find().SetSort(bson.M{"startedAt": 1}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var participations []*model.Participation
	if err := cursor.All(ctx, &participations); err != nil {
		return nil, err
	}
	return participations, nil
}

func (r *participationRepo) CountBySurvey(ctx context.Context, surveyID string) (int64, error) {
	return r.collection.CountDocuments(ctx, bson.M{"surveyId": surveyID})
}
