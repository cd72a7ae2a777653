package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Raymond9734/drip-campaign-engine/internal/catalog"
	"github.com/Raymond9734/drip-campaign-engine/internal/metrics"
	"github.com/Raymond9734/drip-campaign-engine/internal/models"
	"github.com/Raymond9734/drip-campaign-engine/internal/notify"
	"github.com/Raymond9734/drip-campaign-engine/internal/queue"
	"github.com/Raymond9734/drip-campaign-engine/internal/repository/memory"
	"github.com/Raymond9734/drip-campaign-engine/internal/transport"
)

var t0 = time.Date(2025, time.January, 6, 9, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *testClock) Day(n int) {
	c.Set(t0.AddDate(0, 0, n))
}

type engineFixture struct {
	store     *memory.Store
	clock     *testClock
	transport *transport.RecordingTransport
	locker    queue.Locker
	engine    CampaignEngine
	optOut    OptOutService
	dispatch  DispatchService
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()

	logger := discardLogger()
	clock := &testClock{now: t0}
	store := memory.New()
	store.SetClock(clock.Now)

	m := metrics.New(prometheus.NewRegistry())
	rec := transport.NewRecordingTransport()
	locker := queue.NewLocalLocker()

	templateSvc := NewTemplateService(store.Customers(), testStore)
	segmentSvc := NewSegmentService(store.Customers(), logger)
	dispatchSvc := NewDispatchService(store.Messages(), store.Campaigns(), rec, time.Second, m, logger, WithClock(clock.Now))

	engine := NewCampaignEngine(
		store.Campaigns(),
		store.Customers(),
		store.Recipients(),
		store.Runs(),
		segmentSvc,
		templateSvc,
		dispatchSvc,
		locker,
		notify.NewLogSink(logger),
		m,
		logger,
		EngineConfig{},
		WithClock(clock.Now),
	)

	return &engineFixture{
		store:     store,
		clock:     clock,
		transport: rec,
		locker:    locker,
		engine:    engine,
		optOut:    NewOptOutService(store.Customers(), "US", m, logger, WithClock(clock.Now)),
		dispatch:  dispatchSvc,
	}
}

func (f *engineFixture) addCampaign(t *testing.T, c models.Campaign) *models.Campaign {
	t.Helper()
	if c.Name == "" {
		c.Name = "Test campaign"
	}
	if c.Type == "" {
		c.Type = "custom"
	}
	if c.Status == "" {
		c.Status = models.CampaignStatusActive
	}
	require.NoError(t, f.store.Campaigns().Create(context.Background(), &c))
	return &c
}

func (f *engineFixture) addSMSCustomer(name, phone string) int64 {
	return f.store.AddCustomer(models.CustomerFacts{
		Customer: models.Customer{
			FirstName:  name,
			Phone:      stringPtr(phone),
			SMSConsent: true,
		},
	})
}

func (f *engineFixture) recipient(t *testing.T, campaignID, customerID int64) models.Recipient {
	t.Helper()
	for _, r := range f.store.RecipientsOf(campaignID) {
		if r.CustomerID == customerID {
			return r
		}
	}
	t.Fatalf("customer %d is not enrolled in campaign %d", customerID, campaignID)
	return models.Recipient{}
}

func twoStepSMS() models.StepList {
	return models.StepList{
		{StepIndex: 0, DelayDays: 0, Channel: models.ChannelSMS, TemplateBody: "Hi {{first_name}}, time for your exam at {{store_name}}"},
		{StepIndex: 1, DelayDays: 14, Channel: models.ChannelSMS, TemplateBody: "Reminder {{first_name}}: call {{store_phone}}"},
	}
}

func TestCampaignEngine_TwoStepSequence(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	campaign := f.addCampaign(t, models.Campaign{EnrollmentMode: models.EnrollmentManual, Steps: twoStepSMS()})
	alice := f.addSMSCustomer("Alice", "+15035550101")

	enrolled, err := f.engine.EnrollManual(ctx, campaign.ID, []int64{alice})
	require.NoError(t, err)
	assert.Equal(t, 1, enrolled)

	f.clock.Day(1)
	run, err := f.engine.ProcessCampaign(ctx, campaign.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, run.RunID)
	assert.Equal(t, 1, run.MessagesSent)

	r := f.recipient(t, campaign.ID, alice)
	assert.Equal(t, 1, r.CurrentStep)
	assert.Equal(t, models.RecipientActive, r.Status)
	require.Len(t, f.transport.Sent(), 1)
	assert.Equal(t, "Hi Alice, time for your exam at Bright Eyes Optical", f.transport.Sent()[0].Body)
	assert.Equal(t, "+15035550101", f.transport.Sent()[0].To)

	f.clock.Day(10)
	run, err = f.engine.ProcessCampaign(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, run.MessagesSent)
	assert.Equal(t, 1, run.Skipped)
	assert.Equal(t, 1, f.recipient(t, campaign.ID, alice).CurrentStep)

	f.clock.Day(15)
	run, err = f.engine.ProcessCampaign(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, run.MessagesSent)
	assert.Equal(t, 1, run.Completed)

	r = f.recipient(t, campaign.ID, alice)
	assert.Equal(t, models.RecipientCompleted, r.Status)
	assert.Equal(t, 2, r.CurrentStep)
	require.NotNil(t, r.CompletedAt)

	require.Len(t, f.transport.Sent(), 2)
	assert.Equal(t, "Reminder Alice: call (503) 555-0199", f.transport.Sent()[1].Body)

	stored, err := f.store.Campaigns().GetByID(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored.Totals.Sent)

	runs, err := f.store.Runs().ListByCampaign(ctx, campaign.ID, 10)
	require.NoError(t, err)
	assert.Len(t, runs, 3)

	messages := f.store.MessagesTo(alice)
	require.Len(t, messages, 2)
	for _, m := range messages {
		assert.Equal(t, models.MessageStatusSent, m.Status)
		require.NotNil(t, m.RunID)
		require.NotNil(t, m.StepIndex)
	}
}

func TestCampaignEngine_PassIsIdempotent(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	campaign := f.addCampaign(t, models.Campaign{EnrollmentMode: models.EnrollmentManual, Steps: twoStepSMS()})
	bob := f.addSMSCustomer("Bob", "+15035550102")
	_, err := f.engine.EnrollManual(ctx, campaign.ID, []int64{bob})
	require.NoError(t, err)

	f.clock.Day(1)
	_, err = f.engine.ProcessCampaign(ctx, campaign.ID)
	require.NoError(t, err)
	second, err := f.engine.ProcessCampaign(ctx, campaign.ID)
	require.NoError(t, err)

	assert.Equal(t, 0, second.MessagesSent)
	assert.Len(t, f.transport.Sent(), 1)
	assert.Equal(t, 1, f.recipient(t, campaign.ID, bob).CurrentStep)
}

func TestCampaignEngine_OptOutStopsEveryCampaign(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	first := f.addCampaign(t, models.Campaign{EnrollmentMode: models.EnrollmentManual, Steps: twoStepSMS()})
	second := f.addCampaign(t, models.Campaign{EnrollmentMode: models.EnrollmentManual, Steps: twoStepSMS()})
	carol := f.addSMSCustomer("Carol", "+15035550103")

	for _, c := range []*models.Campaign{first, second} {
		_, err := f.engine.EnrollManual(ctx, c.ID, []int64{carol})
		require.NoError(t, err)
	}

	result, err := f.optOut.HandleInboundSMS(ctx, "(503) 555-0103", " stop ")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, carol, result.CustomerID)
	assert.Equal(t, int64(2), result.RecipientsOptedOut)

	f.clock.Day(1)
	for _, c := range []*models.Campaign{first, second} {
		run, err := f.engine.ProcessCampaign(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, run.MessagesSent)

		r := f.recipient(t, c.ID, carol)
		assert.Equal(t, models.RecipientOptedOut, r.Status)
		assert.NotNil(t, r.OptedOutAt)
	}
	assert.Empty(t, f.transport.Sent())

	_, err = f.engine.EnrollManual(ctx, first.ID, []int64{carol})
	require.NoError(t, err)
	assert.Len(t, f.store.RecipientsOf(first.ID), 1, "opted-out rows block re-enrollment")
}

func TestCampaignEngine_ConversionStopsSequence(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	campaign := f.addCampaign(t, models.Campaign{
		EnrollmentMode:   models.EnrollmentManual,
		StopOnConversion: true,
		Steps:            twoStepSMS(),
	})
	dave := f.addSMSCustomer("Dave", "+15035550104")
	erin := f.addSMSCustomer("Erin", "+15035550105")

	f.store.AddOrder(models.Order{CustomerID: erin, Status: models.OrderStatusCompleted, Total: 99, CreatedAt: t0.AddDate(0, 0, -5)})

	_, err := f.engine.EnrollManual(ctx, campaign.ID, []int64{dave, erin})
	require.NoError(t, err)

	f.clock.Day(1)
	run, err := f.engine.ProcessCampaign(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, run.MessagesSent)
	assert.Equal(t, 0, run.Converted, "orders before enrollment never convert")

	f.store.AddOrder(models.Order{CustomerID: dave, Status: models.OrderStatusCancelled, Total: 500, CreatedAt: t0.AddDate(0, 0, 2)})
	f.store.AddOrder(models.Order{CustomerID: dave, Status: models.OrderStatusCompleted, Total: 249.5, CreatedAt: t0.AddDate(0, 0, 3)})

	f.clock.Day(15)
	run, err = f.engine.ProcessCampaign(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, run.Converted)
	assert.Equal(t, 1, run.MessagesSent)

	r := f.recipient(t, campaign.ID, dave)
	assert.Equal(t, models.RecipientConverted, r.Status)
	require.NotNil(t, r.ConversionValue)
	assert.Equal(t, 249.5, *r.ConversionValue)
	assert.Equal(t, models.RecipientCompleted, f.recipient(t, campaign.ID, erin).Status)

	assert.Len(t, f.store.MessagesTo(dave), 1)

	stored, err := f.store.Campaigns().GetByID(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Totals.Converted)
	assert.Equal(t, 249.5, stored.Totals.RevenueAttributed)
	assert.Equal(t, int64(3), stored.Totals.Sent)
}

func TestCampaignEngine_ConversionSweepCatchesWaitingRecipients(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	campaign := f.addCampaign(t, models.Campaign{
		EnrollmentMode:   models.EnrollmentManual,
		StopOnConversion: true,
		Steps:            twoStepSMS(),
	})
	frank := f.addSMSCustomer("Frank", "+15035550106")
	_, err := f.engine.EnrollManual(ctx, campaign.ID, []int64{frank})
	require.NoError(t, err)

	f.clock.Day(1)
	_, err = f.engine.ProcessCampaign(ctx, campaign.ID)
	require.NoError(t, err)

	f.store.AddOrder(models.Order{CustomerID: frank, Status: models.OrderStatusCompleted, Total: 120, CreatedAt: t0.AddDate(0, 0, 2)})

	f.clock.Day(3)
	run, err := f.engine.ProcessCampaign(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, run.Converted)
	assert.Equal(t, models.RecipientConverted, f.recipient(t, campaign.ID, frank).Status)
}

func TestCampaignEngine_UncontactableCustomerIsNotAdvanced(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	campaign := f.addCampaign(t, models.Campaign{EnrollmentMode: models.EnrollmentManual, Steps: twoStepSMS()})
	noPhone := f.store.AddCustomer(models.CustomerFacts{
		Customer: models.Customer{FirstName: "Gina", SMSConsent: true},
	})
	noConsent := f.store.AddCustomer(models.CustomerFacts{
		Customer: models.Customer{FirstName: "Hal", Phone: stringPtr("+15035550108")},
	})
	_, err := f.engine.EnrollManual(ctx, campaign.ID, []int64{noPhone, noConsent})
	require.NoError(t, err)

	f.clock.Day(1)
	run, err := f.engine.ProcessCampaign(ctx, campaign.ID)
	require.NoError(t, err)

	assert.Equal(t, 2, run.Skipped)
	assert.Equal(t, 0, run.MessagesQueued)
	assert.Empty(t, f.transport.Sent())
	for _, id := range []int64{noPhone, noConsent} {
		r := f.recipient(t, campaign.ID, id)
		assert.Equal(t, 0, r.CurrentStep)
		assert.Equal(t, models.RecipientActive, r.Status)
		assert.Empty(t, f.store.MessagesTo(id))
	}
}

func TestCampaignEngine_SendFailureKeepsStep(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	campaign := f.addCampaign(t, models.Campaign{EnrollmentMode: models.EnrollmentManual, Steps: twoStepSMS()})
	ivy := f.addSMSCustomer("Ivy", "+15035550109")
	_, err := f.engine.EnrollManual(ctx, campaign.ID, []int64{ivy})
	require.NoError(t, err)

	f.transport.FailFor("+15035550109", true)

	f.clock.Day(1)
	run, err := f.engine.ProcessCampaign(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, run.MessagesQueued)
	assert.Equal(t, 1, run.MessagesFailed)
	assert.Equal(t, 0, run.MessagesSent)

	assert.Equal(t, 0, f.recipient(t, campaign.ID, ivy).CurrentStep)
	messages := f.store.MessagesTo(ivy)
	require.Len(t, messages, 1)
	assert.Equal(t, models.MessageStatusFailed, messages[0].Status)
	require.NotNil(t, messages[0].LastError)
	assert.Contains(t, *messages[0].LastError, "rejected")

	f.transport.FailFor("+15035550109", false)
	f.clock.Day(2)
	run, err = f.engine.ProcessCampaign(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, run.MessagesSent)
	assert.Equal(t, 1, f.recipient(t, campaign.ID, ivy).CurrentStep)
	assert.Len(t, f.store.MessagesTo(ivy), 2)
}

func TestCampaignEngine_AutoEnrollmentFromCatalog(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	campaign := f.addCampaign(t, models.Campaign{
		Type:             catalog.TypeExamRecall,
		EnrollmentMode:   models.EnrollmentAuto,
		StopOnConversion: true,
		CooldownDays:     300,
	})

	examAt := func(days int) *time.Time {
		at := t0.AddDate(0, 0, -days)
		return &at
	}
	due := f.store.AddCustomer(models.CustomerFacts{
		Customer:   models.Customer{FirstName: "Jo", Phone: stringPtr("+15035550110"), SMSConsent: true},
		LastExamAt: examAt(350),
	})
	f.store.AddCustomer(models.CustomerFacts{
		Customer:   models.Customer{FirstName: "Kim", Phone: stringPtr("+15035550111"), SMSConsent: true},
		LastExamAt: examAt(400),
	})
	f.store.AddCustomer(models.CustomerFacts{
		Customer:   models.Customer{FirstName: "Lee", Phone: stringPtr("+15035550112"), SMSConsent: true, OptedOut: true},
		LastExamAt: examAt(350),
	})

	run, err := f.engine.ProcessCampaign(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, run.RecipientsFound)
	assert.Equal(t, 1, run.RecipientsEnrolled)
	assert.Equal(t, 1, run.MessagesSent)

	sent := f.transport.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "+15035550110", sent[0].To)
	assert.Contains(t, sent[0].Body, "Hi Jo,")
	assert.Contains(t, sent[0].Body, "last eye exam on "+examAt(350).Format(templateDateLayout))

	run, err = f.engine.ProcessCampaign(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, run.RecipientsEnrolled)
	assert.Len(t, f.store.RecipientsOf(campaign.ID), 1)
	assert.Equal(t, 1, f.recipient(t, campaign.ID, due).CurrentStep)
}

func TestCampaignEngine_ReenrollmentCooldown(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	campaign := f.addCampaign(t, models.Campaign{
		EnrollmentMode: models.EnrollmentManual,
		CooldownDays:   30,
		Steps: models.StepList{
			{StepIndex: 0, Channel: models.ChannelSMS, TemplateBody: "Thanks {{first_name}}!"},
		},
	})
	milo := f.addSMSCustomer("Milo", "+15035550113")

	_, err := f.engine.EnrollManual(ctx, campaign.ID, []int64{milo})
	require.NoError(t, err)
	run, err := f.engine.ProcessCampaign(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, run.Completed)

	f.clock.Day(10)
	enrolled, err := f.engine.EnrollManual(ctx, campaign.ID, []int64{milo})
	require.NoError(t, err)
	assert.Equal(t, 0, enrolled)

	f.clock.Day(30)
	enrolled, err = f.engine.EnrollManual(ctx, campaign.ID, []int64{milo})
	require.NoError(t, err)
	assert.Equal(t, 1, enrolled)
	assert.Len(t, f.store.RecipientsOf(campaign.ID), 2)
}

func TestCampaignEngine_ProcessCampaignErrors(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	draft := f.addCampaign(t, models.Campaign{Status: models.CampaignStatusDraft, Steps: twoStepSMS()})
	_, err := f.engine.ProcessCampaign(ctx, draft.ID)
	assert.True(t, errors.Is(err, models.ErrCampaignNotActive))

	_, err = f.engine.ProcessCampaign(ctx, 999)
	assert.True(t, errors.Is(err, models.ErrNotFound))

	active := f.addCampaign(t, models.Campaign{EnrollmentMode: models.EnrollmentManual, Steps: twoStepSMS()})
	release, err := f.locker.Acquire(ctx, lockName(active.ID), time.Minute)
	require.NoError(t, err)

	_, err = f.engine.ProcessCampaign(ctx, active.ID)
	assert.True(t, errors.Is(err, models.ErrPassInProgress))

	release()
	_, err = f.engine.ProcessCampaign(ctx, active.ID)
	assert.NoError(t, err)
}

func TestCampaignEngine_ProcessAllContinuesPastFailures(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	broken := f.addCampaign(t, models.Campaign{
		EnrollmentMode: models.EnrollmentManual,
		Steps: models.StepList{
			{StepIndex: 0, Channel: models.ChannelSMS, TemplateBody: "a"},
			{StepIndex: 2, Channel: models.ChannelSMS, TemplateBody: "b"},
		},
	})
	healthy := f.addCampaign(t, models.Campaign{EnrollmentMode: models.EnrollmentManual, Steps: twoStepSMS()})
	f.addCampaign(t, models.Campaign{Status: models.CampaignStatusPaused, Steps: twoStepSMS()})

	nina := f.addSMSCustomer("Nina", "+15035550114")
	_, err := f.engine.EnrollManual(ctx, healthy.ID, []int64{nina})
	require.NoError(t, err)

	runs, err := f.engine.ProcessAllCampaigns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	byCampaign := map[int64]*models.CampaignRun{}
	for _, r := range runs {
		byCampaign[r.CampaignID] = r
	}
	require.NotNil(t, byCampaign[broken.ID].Error)
	assert.Contains(t, *byCampaign[broken.ID].Error, "contiguous")
	assert.Nil(t, byCampaign[healthy.ID].Error)
	assert.Equal(t, 1, byCampaign[healthy.ID].MessagesSent)

	persisted, err := f.store.Runs().ListByCampaign(ctx, broken.ID, 10)
	require.NoError(t, err)
	assert.Len(t, persisted, 1)
}

func TestCampaignEngine_Lifecycle(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	c := f.addCampaign(t, models.Campaign{
		Status:         models.CampaignStatusDraft,
		EnrollmentMode: models.EnrollmentManual,
		Steps:          twoStepSMS(),
	})

	_, err := f.engine.PauseCampaign(ctx, c.ID)
	assert.True(t, errors.Is(err, models.ErrConflict))

	activated, err := f.engine.ActivateCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusActive, activated.Status)
	assert.NotNil(t, activated.ActivatedAt)

	again, err := f.engine.ActivateCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusActive, again.Status)

	paused, err := f.engine.PauseCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusPaused, paused.Status)

	_, err = f.engine.ProcessCampaign(ctx, c.ID)
	assert.True(t, errors.Is(err, models.ErrCampaignNotActive))

	archived := f.addCampaign(t, models.Campaign{Status: models.CampaignStatusArchived, Steps: twoStepSMS()})
	_, err = f.engine.ActivateCampaign(ctx, archived.ID)
	assert.True(t, errors.Is(err, models.ErrConflict))
}

func TestCampaignEngine_ActivateRejectsBadConfiguration(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		campaign models.Campaign
		wantErr  error
		wantCode string
	}{
		{
			name: "gap in step indexes",
			campaign: models.Campaign{
				EnrollmentMode: models.EnrollmentManual,
				Steps: models.StepList{
					{StepIndex: 1, Channel: models.ChannelSMS, TemplateBody: "late"},
				},
			},
			wantErr:  models.ErrInvalidStepList,
			wantCode: "INVALID_STEPS",
		},
		{
			name: "unknown template variable",
			campaign: models.Campaign{
				EnrollmentMode: models.EnrollmentManual,
				Steps: models.StepList{
					{StepIndex: 0, Channel: models.ChannelSMS, TemplateBody: "Hi {{nickname}}"},
				},
			},
			wantCode: "INVALID_INPUT",
		},
		{
			name: "invalid segment operator",
			campaign: models.Campaign{
				EnrollmentMode: models.EnrollmentAuto,
				Steps:          twoStepSMS(),
				Segment: &models.SegmentDefinition{
					Conditions: []models.Condition{{Field: "city", Operator: models.OpGt, Value: "Austin"}},
				},
			},
			wantCode: "INVALID_INPUT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.campaign.Status = models.CampaignStatusDraft
			c := f.addCampaign(t, tt.campaign)

			_, err := f.engine.ActivateCampaign(ctx, c.ID)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr))
			}
			var appErr *models.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, tt.wantCode, appErr.Code)

			stored, err := f.store.Campaigns().GetByID(ctx, c.ID)
			require.NoError(t, err)
			assert.Equal(t, models.CampaignStatusDraft, stored.Status)
		})
	}
}

func TestCampaignEngine_EnrollManualErrors(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	manual := f.addCampaign(t, models.Campaign{EnrollmentMode: models.EnrollmentManual, Steps: twoStepSMS()})
	auto := f.addCampaign(t, models.Campaign{EnrollmentMode: models.EnrollmentAuto, Steps: twoStepSMS()})
	archived := f.addCampaign(t, models.Campaign{Status: models.CampaignStatusArchived, EnrollmentMode: models.EnrollmentManual, Steps: twoStepSMS()})
	olga := f.addSMSCustomer("Olga", "+15035550115")

	_, err := f.engine.EnrollManual(ctx, manual.ID, nil)
	assert.Error(t, err)

	_, err = f.engine.EnrollManual(ctx, auto.ID, []int64{olga})
	assert.True(t, errors.Is(err, models.ErrConflict))

	_, err = f.engine.EnrollManual(ctx, archived.ID, []int64{olga})
	assert.True(t, errors.Is(err, models.ErrConflict))

	_, err = f.engine.EnrollManual(ctx, manual.ID, []int64{olga, 4242})
	assert.True(t, errors.Is(err, models.ErrNotFound))
	assert.Empty(t, f.store.RecipientsOf(manual.ID))

	enrolled, err := f.engine.EnrollManual(ctx, manual.ID, []int64{olga, olga})
	require.NoError(t, err)
	assert.Equal(t, 1, enrolled)
}

func TestDispatchService_RecordDelivery(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	campaign := f.addCampaign(t, models.Campaign{EnrollmentMode: models.EnrollmentManual, Steps: twoStepSMS()})
	pat := f.addSMSCustomer("Pat", "+15035550116")

	msg, err := f.dispatch.Dispatch(ctx, models.DispatchRequest{
		CampaignID: &campaign.ID,
		CustomerID: pat,
		Channel:    models.ChannelSMS,
		To:         "+15035550116",
		Body:       "hello",
	})
	require.NoError(t, err)
	require.Equal(t, models.MessageStatusSent, msg.Status)
	require.NotNil(t, msg.ExternalID)

	delivered, err := f.dispatch.RecordDelivery(ctx, *msg.ExternalID)
	require.NoError(t, err)
	assert.NotNil(t, delivered.DeliveredAt)

	_, err = f.dispatch.RecordDelivery(ctx, *msg.ExternalID)
	assert.True(t, errors.Is(err, models.ErrNotFound), "a receipt is applied once")

	stored, err := f.store.Campaigns().GetByID(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Totals.Delivered)

	_, err = f.dispatch.Dispatch(ctx, models.DispatchRequest{CustomerID: pat, Channel: "FAX", To: "x", Body: "y"})
	assert.Error(t, err)
}

func TestCampaignEngine_BrokenSegmentEnrollsNobody(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	campaign := f.addCampaign(t, models.Campaign{
		EnrollmentMode: models.EnrollmentAuto,
		Steps:          twoStepSMS(),
		Segment: &models.SegmentDefinition{
			Conditions: []models.Condition{
				{Field: "days_since_last_exam", Operator: models.OpBetween, Value: 330.0},
			},
		},
	})
	nora := f.addSMSCustomer("Nora", "+15035550117")
	f.addSMSCustomer("Otto", "+15035550118")

	enrolled, err := f.store.Recipients().EnrollIfAbsent(ctx, campaign.ID, []int64{nora}, 0, t0)
	require.NoError(t, err)
	require.Equal(t, 1, enrolled)

	run, err := f.engine.ProcessCampaign(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Nil(t, run.Error)
	assert.Equal(t, 0, run.RecipientsFound)
	assert.Equal(t, 0, run.RecipientsEnrolled)
	assert.Equal(t, 1, run.MessagesSent, "existing recipients still advance")

	assert.Len(t, f.store.RecipientsOf(campaign.ID), 1)
	assert.Equal(t, 1, f.recipient(t, campaign.ID, nora).CurrentStep)
	require.Len(t, f.transport.Sent(), 1)
	assert.Equal(t, "+15035550117", f.transport.Sent()[0].To)
}

func TestCampaignEngine_MissingCustomerIsSkipped(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	campaign := f.addCampaign(t, models.Campaign{EnrollmentMode: models.EnrollmentManual, Steps: twoStepSMS()})
	paula := f.addSMSCustomer("Paula", "+15035550119")
	const ghost int64 = 4040

	_, err := f.store.Recipients().EnrollIfAbsent(ctx, campaign.ID, []int64{ghost, paula}, 0, t0)
	require.NoError(t, err)

	run, err := f.engine.ProcessCampaign(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Nil(t, run.Error)
	assert.Equal(t, 1, run.Skipped)
	assert.Equal(t, 1, run.MessagesSent)

	f.clock.Day(1)
	run, err = f.engine.ProcessCampaign(ctx, campaign.ID)
	require.NoError(t, err, "the missing customer does not block later passes")
	assert.Nil(t, run.Error)

	assert.Equal(t, 0, f.recipient(t, campaign.ID, ghost).CurrentStep)
	assert.Equal(t, 1, f.recipient(t, campaign.ID, paula).CurrentStep)
	assert.Len(t, f.transport.Sent(), 1)
}
