package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exprsn/platform/common/apperr"
	"github.com/exprsn/platform/common/logger"
	"github.com/exprsn/platform/common/models"
)

func newScheduleService(t *testing.T) (*ScheduleService, *schedulerFixture) {
	t.Helper()
	f := newSchedulerFixture(t)
	svc := NewScheduleService(f.store, f.engine, logger.Discard())
	svc.now = clock(t0.Add(-time.Hour))
	return svc, f
}

func TestScheduleCreate_RegistersAndComputesNextRun(t *testing.T) {
	svc, f := newScheduleService(t)
	dow := 1

	sched, err := svc.Create(context.Background(), "u1", ScheduleInput{
		ReportID:  f.report.ID,
		Frequency: models.FrequencyWeekly,
		RunAt:     "07:30:00",
		DayOfWeek: &dow,
		Timezone:  "Europe/Berlin",
	})
	require.NoError(t, err)

	assert.Equal(t, f.report.Name, sched.Name)
	assert.True(t, sched.Active)
	assert.Equal(t, models.ExportCSV, sched.ExportFormat)
	assert.Equal(t, models.DeliveryDownload, sched.DeliveryMethod)
	require.NotNil(t, sched.NextRunAt)
	// Monday 2024-06-10 07:30 CEST
	assert.Equal(t, time.Date(2024, 6, 10, 5, 30, 0, 0, time.UTC), *sched.NextRunAt)
	assert.True(t, f.engine.IsRegistered(sched.ID))
}

func TestScheduleCreate_Validation(t *testing.T) {
	svc, f := newScheduleService(t)
	ctx := context.Background()
	badDay := 9

	tests := []struct {
		name string
		in   ScheduleInput
	}{
		{"unknown frequency", ScheduleInput{Frequency: "hourly"}},
		{"bad timezone", ScheduleInput{Frequency: models.FrequencyDaily, Timezone: "Mars/Olympus"}},
		{"bad runAt", ScheduleInput{Frequency: models.FrequencyDaily, RunAt: "25:00"}},
		{"once without start", ScheduleInput{Frequency: models.FrequencyOnce}},
		{"bad day of week", ScheduleInput{Frequency: models.FrequencyWeekly, DayOfWeek: &badDay}},
		{"custom without expression", ScheduleInput{Frequency: models.FrequencyCustom}},
		{"email without recipients", ScheduleInput{Frequency: models.FrequencyDaily, DeliveryMethod: models.DeliveryEmail}},
		{"webhook without url", ScheduleInput{Frequency: models.FrequencyDaily, DeliveryMethod: models.DeliveryWebhook}},
		{"unknown format", ScheduleInput{Frequency: models.FrequencyDaily, ExportFormat: "xlsx"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.in.ReportID = f.report.ID
			_, err := svc.Create(ctx, "u1", tt.in)
			require.Error(t, err)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
		})
	}
}

func TestScheduleCreate_InvalidCustomCronStaysDormant(t *testing.T) {
	svc, f := newScheduleService(t)
	expr := "every tuesday"

	sched, err := svc.Create(context.Background(), "u1", ScheduleInput{
		ReportID:       f.report.ID,
		Frequency:      models.FrequencyCustom,
		CronExpression: &expr,
	})
	require.NoError(t, err)
	assert.Nil(t, sched.NextRunAt)
	assert.False(t, f.engine.IsRegistered(sched.ID))
}

func TestScheduleUpdateAndDelete(t *testing.T) {
	svc, f := newScheduleService(t)
	ctx := context.Background()

	sched, err := svc.Create(ctx, "u1", ScheduleInput{ReportID: f.report.ID, Frequency: models.FrequencyDaily})
	require.NoError(t, err)

	_, err = svc.Update(ctx, "u2", sched.ID, ScheduleInput{Frequency: models.FrequencyDaily})
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	inactive := false
	updated, err := svc.Update(ctx, "u1", sched.ID, ScheduleInput{Frequency: models.FrequencyDaily, Active: &inactive})
	require.NoError(t, err)
	assert.False(t, updated.Active)
	assert.False(t, f.engine.IsRegistered(sched.ID))

	require.NoError(t, svc.Delete(ctx, "u1", sched.ID))
	_, err = svc.Get(ctx, "u1", sched.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestScheduleCreate_UnknownReport(t *testing.T) {
	svc, _ := newScheduleService(t)

	_, err := svc.Create(context.Background(), "u1", ScheduleInput{ReportID: uuid.New(), Frequency: models.FrequencyDaily})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}
