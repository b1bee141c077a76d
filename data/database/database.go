// Copyright 2021-2022
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package database

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// types

type PgxIface interface {
	Begin(context.Context) (pgx.Tx, error)
}

var (
	ErrEmptyRole     = errors.New("role cannot be an empty string")
	ErrNoPool        = errors.New("database pool has not been configured")
	DefaultRole      = "mrapi"
	openTrxLocker    sync.Mutex
	pool             PgxIface
	openTransactions map[string]string
)

// Public

func SetPool(myPool PgxIface) {
	openTrxLocker.Lock()
	defer openTrxLocker.Unlock()
	openTransactions = make(map[string]string)
	pool = myPool
}

func Connect(ctx context.Context) error {
	var err error
	myPool, err := pgxpool.Connect(ctx, viper.GetString("database.url"))
	if err != nil {
		log.Error().Stack().Err(err).Msg("could not connect to pool")
		return err
	}
	if err = myPool.Ping(ctx); err != nil {
		log.Error().Stack().Err(err).Msg("could not ping database server")
		return err
	}
	SetPool(myPool)
	return nil
}

// LogOpenTransactions writes an INFO log for each open transaction
func LogOpenTransactions() {
	openTrxLocker.Lock()
	defer openTrxLocker.Unlock()
	for k, v := range openTransactions {
		log.Info().Str("TrxId", k).Str("Caller", v).Msg("open transaction")
	}
}

// OpenTransactionCount returns the number of transactions that have been started but
// neither committed nor rolled back
func OpenTransactionCount() int {
	openTrxLocker.Lock()
	defer openTrxLocker.Unlock()
	return len(openTransactions)
}

func trackTransaction(id, caller string) {
	openTrxLocker.Lock()
	defer openTrxLocker.Unlock()
	openTransactions[id] = caller
}

func untrackTransaction(id string) {
	openTrxLocker.Lock()
	defer openTrxLocker.Unlock()
	delete(openTransactions, id)
}

// Trx creates a transaction running as the configured database.role
func Trx(ctx context.Context) (pgx.Tx, error) {
	role := viper.GetString("database.role")
	if role == "" {
		role = DefaultRole
	}
	return TrxForRole(ctx, role)
}

// TrxForRole creates a transaction with the given role set. The read-only
// market data tables are granted to the service role; nothing runs as the
// connecting superuser.
func TrxForRole(ctx context.Context, role string) (pgx.Tx, error) {
	if role == "" {
		log.Error().Stack().Msg("role cannot be an empty string")
		return nil, ErrEmptyRole
	}

	if pool == nil {
		return nil, ErrNoPool
	}

	trx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}

	// record transactions in openTransaction log
	_, file, lineno, ok := runtime.Caller(1)
	caller := fmt.Sprintf("[%v] %s:%d", ok, file, lineno)
	trxID := uuid.New().String()
	trackTransaction(trxID, caller)

	wrappedTrx := &MrDbTx{
		id:   trxID,
		role: role,
		tx:   trx,
	}

	// NOTE: We have to do our own sanitization because postgresql can only do sanitization on
	// select, insert, update, and delete queries
	ident := pgx.Identifier{role}
	sql := fmt.Sprintf("SET ROLE %s", ident.Sanitize())
	if _, err = wrappedTrx.Exec(ctx, sql); err != nil {
		log.Error().Stack().Err(err).Str("Role", role).Msg("could not set role")
		if err := wrappedTrx.Rollback(ctx); err != nil {
			log.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return nil, err
	}

	return wrappedTrx, nil
}
