package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"chatsurvey/internal/model"
)

// ResponseRepo handles MongoDB operations for persisted answers
type ResponseRepo interface {
	// Upsert inserts the response or overwrites the existing one for the same
	// (survey, participant, question) triple. The second write wins.
	Upsert(ctx context.Context, response *model.Response) error
	ListBySurvey(ctx context.Context, surveyID string) ([]*model.Response, error)
	ListByParticipant(ctx context.Context, surveyID, participantID string) ([]*model.Response, error)
	CountBySurvey(ctx context.Context, surveyID string) (int64, error)
	EnsureIndexes(ctx context.Context) error
}

type responseRepo struct {
	collection *mongo.Collection
}

// NewResponseRepo creates a new response repository
func NewResponseRepo(db *mongo.Database) ResponseRepo {
	return &responseRepo{
		collection: db.Collection("responses"),
	}
}

// EnsureIndexes creates the unique compound index that backstops the
// one-row-per-triple invariant against replayed events and crash retries.
func (r *responseRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "surveyId", Value: 1},
			{Key: "participantId", Value: 1},
			{Key: "questionId", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func (r *responseRepo) Upsert(ctx context.Context, response *model.Response) error {
	now := time.Now()
	filter := bson.M{
		"surveyId":      response.SurveyID,
		"participantId": response.ParticipantID,
		"questionId":    response.QuestionID,
	}
	update := bson.M{
		"$set": bson.M{
			"answer":    response.Answer,
			"followUp":  response.FollowUp,
			"voice":     response.Voice,
			"updatedAt": now,
		},
		"$setOnInsert": bson.M{
			"_id":           uuid.New().String(),
			"surveyId":      response.SurveyID,
			"participantId": response.ParticipantID,
			"questionId":    response.QuestionID,
			"createdAt":     now,
		},
	}

	_, err := r.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}

func (r *responseRepo) ListBySurvey(ctx context.Context, surveyID string) ([]*model.Response, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"surveyId": surveyID}, options.Find().SetSort(bson.M{"createdAt": 1}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var responses []*model.Response
	if err := cursor.All(ctx, &responses); err != nil {
		return nil, err
	}
	return responses, nil
}

func (r *responseRepo) ListByParticipant(ctx context.Context, surveyID, participantID string) ([]*model.Response, error) {
	cursor, err := r.collection.Find(ctx,
		bson.M{"surveyId": surveyID, "participantId": participantID},
		options.Find().SetSort(bson.M{"createdAt": 1}),
	)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var responses []*model.Response
	if err := cursor.All(ctx, &responses); err != nil {
		return nil, err
	}
	return responses, nil
}

func (r *responseRepo) CountBySurvey(ctx context.Context, surveyID string) (int64, error) {
	return r.collection.CountDocuments(ctx, bson.M{"surveyId": surveyID})
}
