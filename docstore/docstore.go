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

// Package docstore keeps portfolio versions in SurrealDB
package docstore

import (
	"context"
	"fmt"
	"time"

	"github.com/mutualrisk/mr-api/common"
	"github.com/mutualrisk/mr-api/observability/opentelemetry"
	"github.com/mutualrisk/mr-api/portfolio"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var (
	ErrConnect = fmt.Errorf("could not connect to document store: %w", common.ErrUpstream)
	ErrQuery   = fmt.Errorf("document store query failed: %w", common.ErrUpstream)
)

const appendSQL = `BEGIN TRANSACTION;
UPDATE portfolio SET is_active = false, deleted_at = $now WHERE user_id = $user_id AND is_active = true;
CREATE $rid CONTENT $record;
COMMIT TRANSACTION;`

type Config struct {
	Address   string
	Username  string
	Password  string
	Namespace string
	Database  string
}

// ConfigFromViper reads the surrealdb.* keys
func ConfigFromViper() Config {
	return Config{
		Address:   viper.GetString("surrealdb.address"),
		Username:  viper.GetString("surrealdb.username"),
		Password:  viper.GetString("surrealdb.password"),
		Namespace: viper.GetString("surrealdb.namespace"),
		Database:  viper.GetString("surrealdb.database"),
	}
}

// Store implements portfolio.Store
type Store struct {
	db  *surrealdb.DB
	now func() time.Time
}

// Connect signs in, selects the namespace and makes sure the portfolio table exists
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	subLog := log.With().Str("Address", cfg.Address).Str("Namespace", cfg.Namespace).Str("Database", cfg.Database).Logger()

	db, err := surrealdb.New(cfg.Address)
	if err != nil {
		subLog.Error().Err(err).Msg("could not connect to surrealdb")
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}

	if _, err := db.SignIn(ctx, map[string]interface{}{
		"user": cfg.Username,
		"pass": cfg.Password,
	}); err != nil {
		subLog.Error().Err(err).Msg("could not sign in to surrealdb")
		db.Close(ctx)
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}

	if err := db.Use(ctx, cfg.Namespace, cfg.Database); err != nil {
		subLog.Error().Err(err).Msg("could not select namespace")
		db.Close(ctx)
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}

	schema := []string{
		"DEFINE TABLE IF NOT EXISTS portfolio SCHEMALESS",
		"DEFINE INDEX IF NOT EXISTS portfolio_user_version ON portfolio FIELDS user_id, version UNIQUE",
		"DEFINE INDEX IF NOT EXISTS portfolio_id ON portfolio FIELDS portfolio_id UNIQUE",
	}
	for _, sql := range schema {
		if _, err := surrealdb.Query[any](ctx, db, sql, nil); err != nil {
			subLog.Error().Err(err).Str("SQL", sql).Msg("could not define schema")
			db.Close(ctx)
			return nil, fmt.Errorf("%w: %v", ErrConnect, err)
		}
	}

	subLog.Info().Msg("connected to document store")
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.db.Close(ctx)
}

func (s *Store) GetByID(ctx context.Context, id string) (*portfolio.Portfolio, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "docstore.GetByID")
	defer span.End()
	span.SetAttributes(attribute.String("PortfolioID", id))

	rows, err := s.query(ctx, "SELECT "+selectFields+" FROM portfolio WHERE portfolio_id = $id LIMIT 1", map[string]any{"id": id})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, err
	}
	if len(rows) == 0 {
		return nil, portfolio.ErrPortfolioNotFound
	}
	return rows[0].portfolio(), nil
}

func (s *Store) ListByUser(ctx context.Context, userID int) (portfolio.Versions, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "docstore.ListByUser")
	defer span.End()
	span.SetAttributes(attribute.Int("UserID", userID))

	rows, err := s.query(ctx, "SELECT "+selectFields+" FROM portfolio WHERE user_id = $user_id ORDER BY version DESC", map[string]any{"user_id": userID})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, err
	}

	versions := make(portfolio.Versions, len(rows))
	for idx := range rows {
		versions[idx] = rows[idx].portfolio()
	}
	return versions, nil
}

func (s *Store) GetByUserAndVersion(ctx context.Context, userID, version int) (*portfolio.Portfolio, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "docstore.GetByUserAndVersion")
	defer span.End()
	span.SetAttributes(attribute.Int("UserID", userID), attribute.Int("Version", version))

	rows, err := s.query(ctx, "SELECT "+selectFields+" FROM $rid", map[string]any{
		"rid": surrealmodels.NewRecordID(table, recordKey(userID, version)),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, err
	}
	if len(rows) == 0 {
		return nil, portfolio.ErrVersionNotFound
	}
	return rows[0].portfolio(), nil
}

// Append supersedes the active version and creates p in one transaction. A concurrent
// append for the same user collides on the record id and fails.
func (s *Store) Append(ctx context.Context, p *portfolio.Portfolio) (*portfolio.Portfolio, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "docstore.Append")
	defer span.End()

	subLog := log.With().Int("UserID", p.UserID).Str("PortfolioID", p.ID).Logger()

	versions, err := s.ListByUser(ctx, p.UserID)
	if err != nil {
		return nil, err
	}

	stored := nextVersion(p, versions, s.now())
	vars := appendVars(&stored)
	if _, err := surrealdb.Query[any](ctx, s.db, appendSQL, vars); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "append failed")
		subLog.Error().Stack().Err(err).Int("Version", stored.Version).Msg("could not append portfolio version")
		return nil, fmt.Errorf("%w: %v", ErrQuery, err)
	}

	subLog.Info().Int("Version", stored.Version).Msg("appended portfolio version")
	return &stored, nil
}

// nextVersion returns p numbered after the newest of versions and marked active.
// CreatedAt defaults to now when p does not carry one.
func nextVersion(p *portfolio.Portfolio, versions []*portfolio.Portfolio, now time.Time) portfolio.Portfolio {
	stored := *p
	stored.Version = 1
	if len(versions) > 0 {
		stored.Version = versions[0].Version + 1
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now.UTC()
	}
	stored.IsActive = true
	stored.DeletedAt = nil
	return stored
}

// appendVars binds appendSQL. The superseded version ends at the moment the new one
// is created.
func appendVars(stored *portfolio.Portfolio) map[string]any {
	return map[string]any{
		"now":     stored.CreatedAt.UTC(),
		"user_id": stored.UserID,
		"rid":     surrealmodels.NewRecordID(table, recordKey(stored.UserID, stored.Version)),
		"record":  toRecord(stored),
	}
}

func (s *Store) query(ctx context.Context, sql string, vars map[string]any) ([]record, error) {
	results, err := surrealdb.Query[[]record](ctx, s.db, sql, vars)
	if err != nil {
		log.Error().Stack().Err(err).Str("SQL", sql).Msg("document store query failed")
		return nil, fmt.Errorf("%w: %v", ErrQuery, err)
	}
	if results == nil || len(*results) == 0 {
		return nil, nil
	}
	return (*results)[0].Result, nil
}
