package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketchain-backend/config"
	"ticketchain-backend/logging"
	"ticketchain-backend/models"
	"ticketchain-backend/store"
)

func TestOpenStore(t *testing.T) {
	dir := t.TempDir()
	cases := []*config.Config{
		{StoreBackend: config.BackendMemory},
		{StoreBackend: config.BackendFile, DataFile: filepath.Join(dir, "data", "tc.json")},
		{StoreBackend: config.BackendSQLite, SQLitePath: filepath.Join(dir, "data", "tc.db")},
	}
	for _, cfg := range cases {
		t.Run(cfg.StoreBackend, func(t *testing.T) {
			ctx := context.Background()
			s, err := openStore(ctx, cfg, logging.Nop())
			require.NoError(t, err)
			defer s.Close()

			u := &models.User{ID: "u1", WalletAddress: "0xabc", CreditScore: models.InitialCreditScore}
			require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
				return tx.CreateUser(ctx, u)
			}))
			require.NoError(t, s.View(ctx, func(ctx context.Context, tx store.Tx) error {
				got, err := tx.GetUserByWallet(ctx, "0xabc")
				if err == nil {
					assert.Equal(t, "u1", got.ID)
				}
				return err
			}))
		})
	}

	_, err := openStore(context.Background(), &config.Config{StoreBackend: "sheets"}, logging.Nop())
	assert.Error(t, err)
}

func TestConnectToChain_Disabled(t *testing.T) {
	chain, err := connectToChain(context.Background(), &config.Config{})
	require.NoError(t, err)
	assert.Nil(t, chain)
}

func TestNewRegistry(t *testing.T) {
	reg := newRegistry()
	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
