package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dipr-ads/be-release-orders/internal/errors"
	"github.com/dipr-ads/be-release-orders/internal/repository"
	"github.com/dipr-ads/be-release-orders/internal/requestinfo"
)

func TestListActionLogsFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ad := f.submittedAd(t, "u1")
	f.submittedAd(t, "u2")
	_, err := f.ads.CreateAdvertisement(ctx, &CreateAdvertisementRequest{UserRef: "u3"})
	require.Error(t, err)

	logs, total, err := f.actionLogs.List(ctx, ActionLogQuery{AdvertiseRef: "Advertisement/" + ad.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	for _, l := range logs {
		assert.Equal(t, ad.ID, *l.AdvertiseRef)
	}

	_, total, err = f.actionLogs.List(ctx, ActionLogQuery{Status: repository.LogFailed})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)

	logs, total, err = f.actionLogs.List(ctx, ActionLogQuery{ActorRef: "u2", Action: "2"})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	assert.Equal(t, repository.ActionCreateAdvertisementDone, logs[0].Action)

	logs, total, err = f.actionLogs.List(ctx, ActionLogQuery{PageSize: 2, Page: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 5, total)
	assert.Len(t, logs, 2)
}

func TestListActionLogsRejectsBadQuery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		query ActionLogQuery
		field string
	}{
		{"unknown action", ActionLogQuery{Action: "99"}, "action"},
		{"non numeric action", ActionLogQuery{Action: "create"}, "action"},
		{"bad status", ActionLogQuery{Status: "Pending"}, "status"},
		{"bad date", ActionLogQuery{From: "yesterday"}, "from"},
		{"foreign ref", ActionLogQuery{InvoiceRef: "Advertisement/1"}, "invoiceRef"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := f.actionLogs.List(ctx, tt.query)
			var appErr *errors.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, errors.ErrCodeInvalidInput, appErr.Code)
			assert.Equal(t, tt.field, appErr.Field)
		})
	}
}

func TestCreateClientEntryTakesOriginFromRequest(t *testing.T) {
	f := newFixture(t)
	ctx := requestinfo.With(context.Background(), requestinfo.Info{IP: "10.0.0.7", Platform: "android", Path: "/actionLogs"})

	entry, err := f.actionLogs.CreateClientEntry(ctx, &ClientLogRequest{
		UserRef:      "Users/u1",
		Message:      "opened release order",
		AdvertiseRef: "a1",
		After:        json.RawMessage(`{"viewed":true}`),
	})
	require.NoError(t, err)
	assert.Equal(t, repository.ActionClientEntry, entry.Action)
	assert.Equal(t, repository.LogSuccess, entry.Status)
	assert.Equal(t, "u1", *entry.ActorRef)
	assert.Equal(t, "a1", *entry.AdvertiseRef)
	assert.Equal(t, "10.0.0.7", entry.IP)
	assert.Equal(t, "android", entry.Platform)
	assert.Equal(t, "/actionLogs", entry.RequestPath)

	got, err := f.actionLogs.Get(ctx, entry.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"viewed":true}`, string(got.After))

	_, err = f.actionLogs.CreateClientEntry(ctx, &ClientLogRequest{Message: "x", Status: "Maybe"})
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.CodeOf(err))
}

func TestPurgeActionLogs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.submittedAd(t, "u1")
	require.Len(t, f.store.Logs(), 2)

	_, err := f.actionLogs.Purge(ctx, time.Now().Add(time.Hour).Format(time.RFC3339), "")
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.CodeOf(err))
	_, err = f.actionLogs.Purge(ctx, "", "")
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.CodeOf(err))

	removed, err := f.actionLogs.Purge(ctx, time.Now().Format(time.RFC3339Nano), "Users/admin")
	require.NoError(t, err)
	assert.EqualValues(t, 4, removed)

	remaining := f.store.Logs()
	require.Len(t, remaining, 1)
	assert.Equal(t, repository.ActionPurgeLogs, remaining[0].Action)
	assert.Equal(t, "admin", *remaining[0].ActorRef)
}
