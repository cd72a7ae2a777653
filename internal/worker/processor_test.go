package worker

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/Raymond9734/drip-campaign-engine/internal/models"
)

// Mock engine for testing
type mockEngine struct {
	processed   []int64
	allCalls    int
	err         error
	runs        []*models.CampaignRun
	allErr      error
	activated   []int64
	enrollCalls int
}

func (m *mockEngine) ProcessCampaign(_ context.Context, campaignID int64) (*models.CampaignRun, error) {
	m.processed = append(m.processed, campaignID)
	if m.err != nil {
		return nil, m.err
	}
	return &models.CampaignRun{RunID: "run-1", CampaignID: campaignID, MessagesSent: 3}, nil
}

func (m *mockEngine) ProcessAllCampaigns(_ context.Context) ([]*models.CampaignRun, error) {
	m.allCalls++
	return m.runs, m.allErr
}

func (m *mockEngine) ActivateCampaign(_ context.Context, campaignID int64) (*models.Campaign, error) {
	m.activated = append(m.activated, campaignID)
	return &models.Campaign{ID: campaignID, Status: models.CampaignStatusActive}, nil
}

func (m *mockEngine) PauseCampaign(_ context.Context, campaignID int64) (*models.Campaign, error) {
	return &models.Campaign{ID: campaignID, Status: models.CampaignStatusPaused}, nil
}

func (m *mockEngine) EnrollManual(_ context.Context, _ int64, customerIDs []int64) (int, error) {
	m.enrollCalls++
	return len(customerIDs), nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestPassProcessor_Process_SingleCampaign(t *testing.T) {
	engine := &mockEngine{}
	processor := NewPassProcessor(engine, testLogger())

	job := &models.CampaignJob{CampaignID: 7, Trigger: models.TriggerManual}
	if err := processor.Process(context.Background(), job); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if len(engine.processed) != 1 || engine.processed[0] != 7 {
		t.Errorf("processed = %v, want [7]", engine.processed)
	}
	if engine.allCalls != 0 {
		t.Errorf("ProcessAllCampaigns called %d times, want 0", engine.allCalls)
	}
}

func TestPassProcessor_Process_AllCampaigns(t *testing.T) {
	engine := &mockEngine{
		runs: []*models.CampaignRun{
			{CampaignID: 1, MessagesSent: 2},
			{CampaignID: 2, MessagesSent: 5},
		},
	}
	processor := NewPassProcessor(engine, testLogger())

	job := &models.CampaignJob{Trigger: models.TriggerSchedule}
	if err := processor.Process(context.Background(), job); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if engine.allCalls != 1 {
		t.Errorf("ProcessAllCampaigns called %d times, want 1", engine.allCalls)
	}
	if len(engine.processed) != 0 {
		t.Errorf("ProcessCampaign called for %v, want none", engine.processed)
	}

	engine.allErr = context.Canceled
	if err := processor.Process(context.Background(), job); !errors.Is(err, context.Canceled) {
		t.Errorf("Process() error = %v, want context.Canceled", err)
	}
}

func TestPassProcessor_Process_Errors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{
			name: "pass already running is dropped",
			err:  &models.AppError{Code: "CONFLICT", Message: "busy", Err: models.ErrPassInProgress},
		},
		{
			name: "campaign no longer active is dropped",
			err:  &models.AppError{Code: "CONFLICT", Message: "paused", Err: models.ErrCampaignNotActive},
		},
		{
			name: "deleted campaign is dropped",
			err:  models.ErrNotFoundWithMsg("campaign with ID 7 not found"),
		},
		{
			name:    "storage failure is returned",
			err:     errors.New("connection reset"),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &mockEngine{err: tt.err}
			processor := NewPassProcessor(engine, testLogger())

			err := processor.Process(context.Background(), &models.CampaignJob{CampaignID: 7})
			if (err != nil) != tt.wantErr {
				t.Fatalf("Process() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, tt.err) {
				t.Errorf("Process() error = %v, want wrapped %v", err, tt.err)
			}
		})
	}
}
