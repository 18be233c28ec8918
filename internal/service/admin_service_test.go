package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dipr-ads/be-release-orders/internal/errors"
	"github.com/dipr-ads/be-release-orders/internal/repository"
)

func TestSetWaitingQueue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.vendors(t, "v1", "v2")
	clerk := f.user(t, "clerk", "caseworker")

	jl, err := f.admin.SetWaitingQueue(ctx, &WaitingQueueRequest{Vendors: []string{"Users/" + v[1], v[0]}})
	require.NoError(t, err)
	assert.Equal(t, []string{v[1], v[0]}, jl.WaitingQueue)

	_, err = f.admin.SetWaitingQueue(ctx, &WaitingQueueRequest{Vendors: []string{v[0], clerk.ID}})
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.CodeOf(err))

	_, err = f.admin.SetWaitingQueue(ctx, &WaitingQueueRequest{Vendors: []string{v[0], "ghost"}})
	assert.Equal(t, errors.ErrCodeNotFound, errors.CodeOf(err))

	_, err = f.admin.SetWaitingQueue(ctx, &WaitingQueueRequest{Vendors: []string{v[0], v[0]}})
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.CodeOf(err))

	got, err := f.admin.GetJobLogic(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{v[1], v[0]}, got.WaitingQueue)

	logs := f.logsFor(repository.ActionUpdateWaitingQueue)
	require.Len(t, logs, 4)
	assert.Equal(t, repository.LogSuccess, logs[0].Status)
	assert.NotEmpty(t, logs[0].Before)
	assert.NotEmpty(t, logs[0].After)
}

func TestSetBudget(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	data, err := f.admin.SetBudget(ctx, &BudgetRequest{Budget: decimal.RequireFromString("250000.75")})
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("250000.75").Equal(data.Budget))

	_, err = f.admin.SetBudget(ctx, &BudgetRequest{Budget: decimal.NewFromInt(-1)})
	var appErr *errors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "Budget", appErr.Field)

	got, err := f.admin.GetAdminData(ctx)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("250000.75").Equal(got.Budget))
}

func TestUpsertUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.admin.UpsertUser(ctx, &UpsertUserRequest{DisplayName: " Rajasthan Patrika ", Email: "rp@example.test", Role: "Vendor"})
	require.NoError(t, err)
	require.NotEmpty(t, u.ID)
	assert.Equal(t, "Rajasthan Patrika", u.DisplayName)
	assert.Equal(t, "vendor", u.Role)

	updated, err := f.admin.UpsertUser(ctx, &UpsertUserRequest{ID: "Users/" + u.ID, DisplayName: "Patrika", Email: "rp@example.test", Role: "vendor"})
	require.NoError(t, err)
	assert.Equal(t, u.ID, updated.ID)

	got, err := f.admin.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Patrika", got.DisplayName)

	f.user(t, "deputy", "deputy")
	vendors, err := f.admin.ListUsers(ctx, "VENDOR")
	require.NoError(t, err)
	require.Len(t, vendors, 1)
	assert.Equal(t, u.ID, vendors[0].ID)

	_, err = f.admin.UpsertUser(ctx, &UpsertUserRequest{DisplayName: "x", Email: "not-an-email", Role: "vendor"})
	var appErr *errors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "email", appErr.Field)

	logs := f.logsFor(repository.ActionUpsertUser)
	require.Len(t, logs, 3)
	assert.NotEmpty(t, logs[1].Before)
}
