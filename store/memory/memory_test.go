package memory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketchain-backend/models"
	"ticketchain-backend/store"
	"ticketchain-backend/store/storetest"
)

func TestMemoryStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return New() })
}

func TestFileStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, err := NewFile(filepath.Join(t.TempDir(), "data", "ledger.json"))
		require.NoError(t, err)
		return s
	})
}

func TestView_RejectsWrites(t *testing.T) {
	s := New()
	err := s.View(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.CreateUser(ctx, storetest.NewUser("0x1"))
	})
	require.ErrorIs(t, err, errReadOnly)
}

func TestWithTx_PanicLeavesStateUntouched(t *testing.T) {
	s := New()
	u := storetest.NewUser("0x1")
	assert.Panics(t, func() {
		_ = s.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
			_ = tx.CreateUser(ctx, u)
			panic("boom")
		})
	})

	err := s.View(context.Background(), func(ctx context.Context, tx store.Tx) error {
		_, err := tx.GetUser(ctx, u.ID)
		return err
	})
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestWithTx_CancelledContextDiscards(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	u := storetest.NewUser("0x1")
	err := s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		cancel()
		return tx.CreateUser(ctx, u)
	})
	require.ErrorIs(t, err, context.Canceled)

	err = s.View(context.Background(), func(ctx context.Context, tx store.Tx) error {
		_, err := tx.GetUser(ctx, u.ID)
		return err
	})
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestWithTx_SerializesWriters(t *testing.T) {
	s := New()
	u := storetest.NewUser("0x1")
	require.NoError(t, s.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.CreateUser(ctx, u)
	}))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
				got, err := tx.GetUser(ctx, u.ID)
				if err != nil {
					return err
				}
				got.CreditScore++
				return tx.UpdateUser(ctx, got)
			})
		}()
	}
	wg.Wait()

	require.NoError(t, s.View(context.Background(), func(ctx context.Context, tx store.Tx) error {
		got, err := tx.GetUser(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, models.InitialCreditScore+50, got.CreditScore)
		return nil
	}))
}

func TestFileStore_ReloadsCommittedState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	s, err := NewFile(path)
	require.NoError(t, err)

	u := storetest.NewUser("0x1")
	require.NoError(t, s.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.CreateUser(ctx, u)
	}))
	_ = s.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		_ = tx.CreateUser(ctx, storetest.NewUser("0x2"))
		return errors.New("abort")
	})

	reopened, err := NewFile(path)
	require.NoError(t, err)
	require.NoError(t, reopened.View(context.Background(), func(ctx context.Context, tx store.Tx) error {
		got, err := tx.GetUserByWallet(ctx, "0x1")
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)
		_, err = tx.GetUserByWallet(ctx, "0x2")
		assert.True(t, errors.Is(err, models.ErrNotFound))
		return nil
	}))

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestFileStore_PersistFailureDiscards(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.json")
	s, err := NewFile(path)
	require.NoError(t, err)
	s.persist = func(*state) error { return errors.New("disk full") }

	u := storetest.NewUser("0x1")
	err = s.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.CreateUser(ctx, u)
	})
	require.EqualError(t, err, "disk full")

	require.NoError(t, s.View(context.Background(), func(ctx context.Context, tx store.Tx) error {
		_, err := tx.GetUser(ctx, u.ID)
		assert.True(t, errors.Is(err, models.ErrNotFound))
		return nil
	}))
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err := NewFile(path)
	require.Error(t, err)
}
