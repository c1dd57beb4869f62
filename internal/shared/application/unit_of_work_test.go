package application

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type txKey struct{}

// recordingUnitOfWork records the calls made by WithUnitOfWork.
type recordingUnitOfWork struct {
	beginErr  error
	commitErr error
	calls     []string
}

func (u *recordingUnitOfWork) Begin(ctx context.Context) (context.Context, error) {
	u.calls = append(u.calls, "begin")
	if u.beginErr != nil {
		return nil, u.beginErr
	}
	return context.WithValue(ctx, txKey{}, true), nil
}

func (u *recordingUnitOfWork) Commit(ctx context.Context) error {
	u.calls = append(u.calls, "commit")
	return u.commitErr
}

func (u *recordingUnitOfWork) Rollback(ctx context.Context) error {
	u.calls = append(u.calls, "rollback")
	return nil
}

func TestWithUnitOfWork(t *testing.T) {
	errWrite := errors.New("write failed")
	errCommit := errors.New("commit failed")
	errBegin := errors.New("database locked")

	tests := []struct {
		name      string
		uow       *recordingUnitOfWork
		fnErr     error
		wantErr   error
		wantCalls []string
	}{
		{"commits on success", &recordingUnitOfWork{}, nil, nil, []string{"begin", "commit"}},
		{"rolls back on error", &recordingUnitOfWork{}, errWrite, errWrite, []string{"begin", "rollback"}},
		{"returns commit error", &recordingUnitOfWork{commitErr: errCommit}, nil, errCommit, []string{"begin", "commit"}},
		{"skips fn when begin fails", &recordingUnitOfWork{beginErr: errBegin}, nil, errBegin, []string{"begin"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ran := false
			err := WithUnitOfWork(context.Background(), tt.uow, func(ctx context.Context) error {
				ran = true
				assert.Equal(t, true, ctx.Value(txKey{}), "fn runs inside the transaction")
				return tt.fnErr
			})

			assert.ErrorIs(t, err, tt.wantErr)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.uow.beginErr == nil, ran)
			assert.Equal(t, tt.wantCalls, tt.uow.calls)
		})
	}
}

func TestWithUnitOfWork_RollsBackOnPanic(t *testing.T) {
	uow := &recordingUnitOfWork{}

	require.PanicsWithValue(t, "boom", func() {
		_ = WithUnitOfWork(context.Background(), uow, func(context.Context) error {
			panic("boom")
		})
	})
	assert.Equal(t, []string{"begin", "rollback"}, uow.calls)
}
