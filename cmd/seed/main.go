package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"chatsurvey/internal/model"
	"chatsurvey/internal/repository"
)

// Seeds a demo survey covering every question type and activates it.
func main() {
	mongoURI := os.Getenv("MONGO_URI")
	if mongoURI == "" {
		mongoURI = "mongodb://localhost:27017"
	}
	dbName := os.Getenv("MONGO_DATABASE")
	if dbName == "" {
		dbName = "chatsurvey"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer client.Disconnect(ctx)

	surveys := repository.NewSurveyRepo(client.Database(dbName))

	followUp := true
	noFollowUp := false

	survey := &model.Survey{
		Title:       "Community Services Feedback",
		Description: "Short feedback survey about local community services",
		Duration:    "5 minutes",
		Settings: model.SurveySettings{
			FollowUpDefault: true,
			CodePrefix:      "CS",
		},
		Questions: []model.Question{
			{
				ID:     uuid.New().String(),
				Seq:    1,
				Type:   model.QuestionTypeCurated,
				Prompt: "Have you used any community services in the past month?",
			},
			{
				ID:          uuid.New().String(),
				Seq:         2,
				Type:        model.QuestionTypeChoice,
				Prompt:      "Which service do you use most often?",
				Options:     []string{"Health clinic", "Library", "Community center", "None of these"},
				AskFollowUp: &followUp,
			},
			{
				ID:     uuid.New().String(),
				Seq:    3,
				Type:   model.QuestionTypeRating,
				Prompt: "How satisfied are you with the services overall?",
				Scale: &model.Scale{
					Min:       1,
					Max:       5,
					LowLabel:  "Very dissatisfied",
					HighLabel: "Very satisfied",
				},
			},
			{
				ID:          uuid.New().String(),
				Seq:         4,
				Type:        model.QuestionTypeText,
				Prompt:      "What one thing would you improve?",
				AskFollowUp: &noFollowUp,
			},
		},
	}

	id, err := surveys.Create(ctx, survey)
	if err != nil {
		log.Fatalf("Failed to create survey: %v", err)
	}
	log.Printf("Created survey %s", id)

	if err := surveys.Activate(ctx, id); err != nil {
		log.Fatalf("Failed to activate survey: %v", err)
	}
	log.Printf("Survey %s is now active", id)
}
