package services

import (
	"context"
	"sync"
	"time"

	"github.com/BradenHooton/cadence/internal/models"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
)

// MockTaskRepository implements TaskRepository for testing
type MockTaskRepository struct {
	CreateFunc         func(ctx context.Context, task *models.Task) (*models.Task, error)
	GetByIDFunc        func(ctx context.Context, ownerID, id string) (*models.Task, error)
	ListByOwnerFunc    func(ctx context.Context, ownerID, status string, limit, offset int) ([]*models.Task, error)
	ListDueBetweenFunc func(ctx context.Context, ownerID string, from, to time.Time) ([]*models.Task, error)
	UpdateFunc         func(ctx context.Context, task *models.Task) (*models.Task, error)
	DeleteFunc         func(ctx context.Context, ownerID, id string) error
	ImportBatchFunc    func(ctx context.Context, ownerID string, tasks []*models.Task) (int, error)
}

func (m *MockTaskRepository) Create(ctx context.Context, task *models.Task) (*models.Task, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, task)
	}
	created := *task
	created.ID = "task-1"
	return &created, nil
}

func (m *MockTaskRepository) GetByID(ctx context.Context, ownerID, id string) (*models.Task, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, ownerID, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockTaskRepository) ListByOwner(ctx context.Context, ownerID, status string, limit, offset int) ([]*models.Task, error) {
	if m.ListByOwnerFunc != nil {
		return m.ListByOwnerFunc(ctx, ownerID, status, limit, offset)
	}
	return []*models.Task{}, nil
}

func (m *MockTaskRepository) ListDueBetween(ctx context.Context, ownerID string, from, to time.Time) ([]*models.Task, error) {
	if m.ListDueBetweenFunc != nil {
		return m.ListDueBetweenFunc(ctx, ownerID, from, to)
	}
	return []*models.Task{}, nil
}

func (m *MockTaskRepository) Update(ctx context.Context, task *models.Task) (*models.Task, error) {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, task)
	}
	return task, nil
}

func (m *MockTaskRepository) Delete(ctx context.Context, ownerID, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, ownerID, id)
	}
	return nil
}

func (m *MockTaskRepository) ImportBatch(ctx context.Context, ownerID string, tasks []*models.Task) (int, error) {
	if m.ImportBatchFunc != nil {
		return m.ImportBatchFunc(ctx, ownerID, tasks)
	}
	return len(tasks), nil
}

// MockEmailSender implements EmailSender and records every input it receives
type MockEmailSender struct {
	SendEmailFunc func(ctx context.Context, params *ses.SendEmailInput) (*ses.SendEmailOutput, error)

	mu   sync.Mutex
	Sent []*ses.SendEmailInput
}

func (m *MockEmailSender) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	m.mu.Lock()
	m.Sent = append(m.Sent, params)
	m.mu.Unlock()

	if m.SendEmailFunc != nil {
		return m.SendEmailFunc(ctx, params)
	}
	return &ses.SendEmailOutput{MessageId: aws.String("msg-test")}, nil
}

// SentCount returns how many emails were sent
func (m *MockEmailSender) SentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}
