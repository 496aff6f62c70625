package hawl

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mizanhq/mizan/internal/domain"
	"github.com/mizanhq/mizan/internal/modules/nisab"
	"github.com/mizanhq/mizan/internal/modules/records"
	"github.com/mizanhq/mizan/internal/modules/settings"
)

type fakeRecords struct {
	draft       *records.Record
	createCalls []records.CreateParams
	createErr   error
}

func (f *fakeRecords) FindActiveDraft(userID string) (*records.Record, error) {
	return f.draft, nil
}

func (f *fakeRecords) Create(ctx context.Context, p records.CreateParams) (*records.Record, error) {
	f.createCalls = append(f.createCalls, p)
	if f.createErr != nil {
		return nil, f.createErr
	}
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
	assets []domain.Asset
}

func (f *fakeAssets) AssetsForUser(ctx context.Context, userID string) ([]domain.Asset, error) {
	return f.assets, nil
}

type fakeThreshold struct {
	value decimal.Decimal
	stale bool
}

func (f *fakeThreshold) GetThreshold(ctx context.Context, basis domain.NisabBasis, currency string) (*nisab.Threshold, error) {
	return &nisab.Threshold{
		Basis:          basis,
		Currency:       currency,
		ThresholdValue: f.value,
		Stale:          f.stale,
	}, nil
}

type fakePrefs struct{}

func (fakePrefs) Get(userID string) (*settings.Preferences, error) {
	return &settings.Preferences{UserID: userID, NisabBasis: domain.BasisGold, Currency: "USD"}, nil
}

func zakatableAssets(value string) []domain.Asset {
	return []domain.Asset{
		{ID: "a-1", Name: "Savings", Value: decimal.RequireFromString(value), IsZakatable: true},
	}
}

func activeDraft(userID string, start time.Time, threshold string) *records.Record {
	return &records.Record{
		ID:             uuid.NewString(),
		UserID:         userID,
		Status:         domain.StatusDraft,
		HawlStartDate:  start,
		HawlEndDate:    start.AddDate(0, 0, domain.HawlDays),
		NisabThreshold: decimal.RequireFromString(threshold),
	}
}

func TestEngine_BelowThresholdNoAction(t *testing.T) {
	recs := &fakeRecords{}
	engine := NewEngine(recs, &fakeAssets{assets: zakatableAssets("500")},
		&fakeThreshold{value: decimal.RequireFromString("8748")}, fakePrefs{}, zerolog.Nop())

	d, err := engine.Evaluate(context.Background(), time.Now().UTC(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, ActionNone, d.Action)
	assert.Empty(t, recs.createCalls)
}

func TestEngine_CrossingThresholdStartsHawl(t *testing.T) {
	recs := &fakeRecords{}
	engine := NewEngine(recs, &fakeAssets{assets: zakatableAssets("10000")},
		&fakeThreshold{value: decimal.RequireFromString("8748")}, fakePrefs{}, zerolog.Nop())

	d, err := engine.Evaluate(context.Background(), time.Now().UTC(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, ActionStarted, d.Action)
	assert.NotEmpty(t, d.RecordID)

	require.Len(t, recs.createCalls, 1)
	assert.True(t, recs.createCalls[0].Automatic)
	assert.Equal(t, domain.BasisGold, recs.createCalls[0].Basis)
}

func TestEngine_ExactThresholdStartsHawl(t *testing.T) {
	// Gating is >=, not >.
	recs := &fakeRecords{}
	engine := NewEngine(recs, &fakeAssets{assets: zakatableAssets("8748")},
		&fakeThreshold{value: decimal.RequireFromString("8748")}, fakePrefs{}, zerolog.Nop())

	d, err := engine.Evaluate(context.Background(), time.Now().UTC(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, ActionStarted, d.Action)
}

func TestEngine_ActiveDraftNotDuplicated(t *testing.T) {
	now := time.Now().UTC()
	recs := &fakeRecords{draft: activeDraft("user-1", now.AddDate(0, 0, -30), "8748")}
	engine := NewEngine(recs, &fakeAssets{assets: zakatableAssets("10000")},
		&fakeThreshold{value: decimal.RequireFromString("8748")}, fakePrefs{}, zerolog.Nop())

	d, err := engine.Evaluate(context.Background(), now, "user-1")
	require.NoError(t, err)
	assert.Equal(t, ActionNone, d.Action)
	assert.Empty(t, recs.createCalls)
}

func TestEngine_CompletedHawlIsSurfacedNotFinalized(t *testing.T) {
	now := time.Now().UTC()
	draft := activeDraft("user-1", now.AddDate(0, 0, -360), "8748")
	recs := &fakeRecords{draft: draft}
	engine := NewEngine(recs, &fakeAssets{assets: zakatableAssets("10000")},
		&fakeThreshold{value: decimal.RequireFromString("8748")}, fakePrefs{}, zerolog.Nop())

	d, err := engine.Evaluate(context.Background(), now, "user-1")
	require.NoError(t, err)
	assert.Equal(t, ActionCompletable, d.Action)
	assert.Equal(t, draft.ID, d.RecordID)
	// The engine never mutates the record; finalization is explicit.
	assert.Equal(t, domain.StatusDraft, draft.Status)
}

func TestEngine_DipBelowNisabRetainsDraft(t *testing.T) {
	now := time.Now().UTC()
	draft := activeDraft("user-1", now.AddDate(0, 0, -100), "8748")
	recs := &fakeRecords{draft: draft}
	engine := NewEngine(recs, &fakeAssets{assets: zakatableAssets("3000")},
		&fakeThreshold{value: decimal.RequireFromString("8748")}, fakePrefs{}, zerolog.Nop())

	d, err := engine.Evaluate(context.Background(), now, "user-1")
	require.NoError(t, err)
	assert.Equal(t, ActionNone, d.Action)
	assert.True(t, d.BelowNisab)
	assert.Equal(t, domain.StatusDraft, draft.Status)
}

func TestEngine_ConcurrentCreateRaceIsBenign(t *testing.T) {
	recs := &fakeRecords{createErr: &domain.InvalidStateTransitionError{
		CurrentStatus: domain.StatusDraft,
		Event:         "create",
	}}
	engine := NewEngine(recs, &fakeAssets{assets: zakatableAssets("10000")},
		&fakeThreshold{value: decimal.RequireFromString("8748")}, fakePrefs{}, zerolog.Nop())

	d, err := engine.Evaluate(context.Background(), time.Now().UTC(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, ActionNone, d.Action)
}

func TestEngine_ProgressFor(t *testing.T) {
	now := time.Now().UTC()
	draft := activeDraft("user-1", now.AddDate(0, 0, -100), "8748")
	recs := &fakeRecords{draft: draft}
	engine := NewEngine(recs, &fakeAssets{assets: zakatableAssets("10000")},
		&fakeThreshold{value: decimal.RequireFromString("8748")}, fakePrefs{}, zerolog.Nop())

	p, err := engine.ProgressFor(context.Background(), now, "user-1")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, draft.ID, p.RecordID)
	assert.Equal(t, 100, p.ElapsedDays)
	assert.Equal(t, domain.HawlDays-100, p.RemainingDays)
	assert.False(t, p.Completable)
	assert.False(t, p.BelowNisab)
	assert.True(t, p.ProjectedZakat.Equal(decimal.RequireFromString("250")))
}

func TestEngine_ProgressFor_NoDraft(t *testing.T) {
	engine := NewEngine(&fakeRecords{}, &fakeAssets{}, &fakeThreshold{value: decimal.Zero}, fakePrefs{}, zerolog.Nop())

	p, err := engine.ProgressFor(context.Background(), time.Now().UTC(), "user-1")
	require.NoError(t, err)
	assert.Nil(t, p)
}
