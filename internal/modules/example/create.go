package example

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/jobpipe/internal/container"
	"github.com/cuongbtq/jobpipe/internal/database"
	"github.com/cuongbtq/jobpipe/internal/job"
	"github.com/cuongbtq/jobpipe/internal/usecase"
	"github.com/cuongbtq/jobpipe/internal/validation"
)

const (
	recordTTL        = 24 * time.Hour
	recordCollection = "examples"
)

// CreateRules limits retries to three, requires a name and a reCAPTCHA token.
func CreateRules() usecase.Rules {
	return usecase.Rules{
		Attempts: validation.Schema{
			"attempts": {Type: validation.TypeNumber, Rules: "max=3"},
		},
		Data: validation.Schema{
			"name": {Type: validation.TypeString, Rules: "min=2,max=64"},
			"kind": {Type: validation.TypeString, Optional: true, Check: CheckKind},
		},
		RecaptchaResponse: validation.Schema{
			"recaptchaResponse": {Type: validation.TypeString, Rules: "required"},
		},
	}
}

// Record is what exampleCreate stores.
type Record struct {
	ID        string    `json:"id" bson:"_id"`
	Name      string    `json:"name" bson:"name"`
	Kind      string    `json:"kind" bson:"kind"`
	Attempts  int       `json:"attempts" bson:"attempts"`
	CreatedAt time.Time `json:"createdAt" bson:"created_at"`
}

func (r Record) Map() map[string]any {
	return map[string]any{
		"id":        r.ID,
		"name":      r.Name,
		"kind":      r.Kind,
		"attempts":  r.Attempts,
		"createdAt": r.CreatedAt.Format(time.RFC3339),
	}
}

type createUseCase struct {
	conns  database.Connections
	logger *slog.Logger
}

// NewCreate stores a record in every connected document/cache backend.
func NewCreate(c *container.Container) usecase.UseCase {
	return &createUseCase{conns: c.Connections(), logger: c.Logger}
}

func (u *createUseCase) Run(ctx context.Context, j *job.Job) (usecase.Response, error) {
	if err := j.MarkInProgress(10); err != nil {
		return usecase.Response{}, err
	}

	data := j.Data()
	name, _ := data["name"].(string)
	kind, _ := data["kind"].(string)
	if kind == "" {
		kind = Kinds[0]
	}

	record := Record{
		ID:        j.ID(),
		Name:      name,
		Kind:      kind,
		Attempts:  j.Attempts(),
		CreatedAt: time.Now().UTC(),
	}

	var stored []string
	if rd := u.conns.Redis(); rd != nil {
		if err := rd.SetJSON(ctx, recordKey(record.ID), record, recordTTL); err != nil {
			return usecase.Response{}, fmt.Errorf("failed to cache example record: %w", err)
		}
		stored = append(stored, database.Redis)
	}
	if err := j.MarkInProgress(50); err != nil {
		return usecase.Response{}, err
	}

	if mg := u.conns.Mongo(); mg != nil {
		if err := mg.Upsert(ctx, recordCollection, record.ID, record); err != nil {
			return usecase.Response{}, fmt.Errorf("failed to store example record: %w", err)
		}
		stored = append(stored, database.Mongo)
	}
	if err := j.MarkInProgress(90); err != nil {
		return usecase.Response{}, err
	}

	u.logger.InfoContext(ctx, "Example record created",
		slog.String("job_id", j.ID()),
		slog.Any("stored", stored),
	)

	return usecase.Response{
		Data: record.Map(),
		Metadata: map[string]any{
			"attempts": j.Attempts(),
			"stored":   stored,
		},
	}, nil
}

func recordKey(id string) string {
	return "example:" + id
}
