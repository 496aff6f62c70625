package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mizanhq/mizan/internal/domain"
	"github.com/mizanhq/mizan/internal/modules/hawl"
	"github.com/mizanhq/mizan/internal/modules/nisab"
	"github.com/mizanhq/mizan/internal/modules/records"
	"github.com/mizanhq/mizan/internal/modules/settings"
)

type fakeRecords struct {
	drafts map[string]*records.Record
}

func (f *fakeRecords) FindActiveDraft(userID string) (*records.Record, error) {
	return f.drafts[userID], nil
}

func (f *fakeRecords) Create(ctx context.Context, p records.CreateParams) (*records.Record, error) {
	now := time.Now().UTC()
	return &records.Record{
		ID:            uuid.NewString(),
		UserID:        p.UserID,
		Status:        domain.StatusDraft,
		HawlStartDate: now,
		HawlEndDate:   now.AddDate(0, 0, domain.HawlDays),
	}, nil
}

type fakeAssets struct {
	byUser map[string][]domain.Asset
}

func (f *fakeAssets) AssetsForUser(ctx context.Context, userID string) ([]domain.Asset, error) {
	assets, ok := f.byUser[userID]
	if !ok {
		return nil, fmt.Errorf("asset source unreachable for %s", userID)
	}
	return assets, nil
}

type fakeUsers struct {
	ids []string
}

func (f *fakeUsers) ActiveUserIDs(ctx context.Context) ([]string, error) {
	return f.ids, nil
}

type fakeThreshold struct {
	value decimal.Decimal
}

func (f *fakeThreshold) GetThreshold(ctx context.Context, basis domain.NisabBasis, currency string) (*nisab.Threshold, error) {
	return &nisab.Threshold{Basis: basis, Currency: currency, ThresholdValue: f.value}, nil
}

type fakePrefs struct{}

func (fakePrefs) Get(userID string) (*settings.Preferences, error) {
	return &settings.Preferences{UserID: userID, NisabBasis: domain.BasisGold, Currency: "USD"}, nil
}

func cash(value string) []domain.Asset {
	return []domain.Asset{
		{ID: "a-1", Name: "Savings", Value: decimal.RequireFromString(value), IsZakatable: true},
	}
}

func TestDetectionJob_Sweep(t *testing.T) {
	now := time.Now().UTC()

	completedDraft := &records.Record{
		ID:             uuid.NewString(),
		UserID:         "user-done",
		Status:         domain.StatusDraft,
		HawlStartDate:  now.AddDate(0, 0, -360),
		HawlEndDate:    now.AddDate(0, 0, -6),
		NisabThreshold: decimal.RequireFromString("8748"),
	}
	dippedDraft := &records.Record{
		ID:             uuid.NewString(),
		UserID:         "user-dipped",
		Status:         domain.StatusDraft,
		HawlStartDate:  now.AddDate(0, 0, -100),
		HawlEndDate:    now.AddDate(0, 0, 254),
		NisabThreshold: decimal.RequireFromString("8748"),
	}

	recs := &fakeRecords{drafts: map[string]*records.Record{
		"user-done":   completedDraft,
		"user-dipped": dippedDraft,
	}}
	assets := &fakeAssets{byUser: map[string][]domain.Asset{
		"user-rich":   cash("10000"),
		"user-poor":   cash("500"),
		"user-done":   cash("9000"),
		"user-dipped": cash("2000"),
		// "user-broken" missing: its asset lookup fails
	}}

	engine := hawl.NewEngine(recs, assets, &fakeThreshold{value: decimal.RequireFromString("8748")}, fakePrefs{}, zerolog.Nop())
	users := &fakeUsers{ids: []string{"user-rich", "user-poor", "user-done", "user-dipped", "user-broken"}}

	job := NewDetectionJob(engine, users, time.Second, zerolog.Nop())

	summary, err := job.RunOnce(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, 5, summary.Evaluated)
	assert.Equal(t, 1, summary.Started)
	assert.Equal(t, 1, summary.Completable)
	assert.Equal(t, 1, summary.BelowNisab)
	assert.Equal(t, 1, summary.Failed)
}

func TestDetectionJob_OneFailureDoesNotAbortSweep(t *testing.T) {
	recs := &fakeRecords{drafts: map[string]*records.Record{}}
	assets := &fakeAssets{byUser: map[string][]domain.Asset{
		"user-ok": cash("10000"),
	}}
	engine := hawl.NewEngine(recs, assets, &fakeThreshold{value: decimal.RequireFromString("8748")}, fakePrefs{}, zerolog.Nop())

	// The failing user comes first; the sweep must continue past it.
	users := &fakeUsers{ids: []string{"user-broken", "user-ok"}}
	job := NewDetectionJob(engine, users, time.Second, zerolog.Nop())

	summary, err := job.RunOnce(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Evaluated)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Started)
}

func TestDetectionJob_SkipsWhenAlreadyRunning(t *testing.T) {
	engine := hawl.NewEngine(&fakeRecords{}, &fakeAssets{}, &fakeThreshold{value: decimal.Zero}, fakePrefs{}, zerolog.Nop())
	users := &fakeUsers{ids: []string{"user-1"}}
	job := NewDetectionJob(engine, users, time.Second, zerolog.Nop())

	job.running.Lock()
	defer job.running.Unlock()

	summary, err := job.RunOnce(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Evaluated)
}

func TestDetectionJob_CancelledContextStopsSweep(t *testing.T) {
	engine := hawl.NewEngine(&fakeRecords{}, &fakeAssets{byUser: map[string][]domain.Asset{}}, &fakeThreshold{value: decimal.Zero}, fakePrefs{}, zerolog.Nop())
	users := &fakeUsers{ids: []string{"user-1", "user-2"}}
	job := NewDetectionJob(engine, users, time.Second, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := job.RunOnce(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Evaluated)
}
