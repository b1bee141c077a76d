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

package pgxmockhelper

import (
	"time"

	"github.com/jackc/pgconn"
	"github.com/pashagolub/pgxmock"
)

var (
	assetTypes = map[string]string{
		"asset_id":        "int",
		"industry_id":     "int",
		"expected_return": "*float64",
		"volatility":      "*float64",
		"recent_price":    "float64",
		"oldest_price":    "float64",
	}
	historyTypes = map[string]string{
		"asset_id":   "int",
		"price":      "float64",
		"trade_date": "date",
	}
	covarianceTypes = map[string]string{
		"asset_id_1": "int",
		"asset_id_2": "int",
		"covariance": "float64",
	}
)

func expectTrx(db pgxmock.PgxConnIface) {
	db.ExpectBegin()
	db.ExpectExec("SET ROLE").WillReturnResult(pgconn.CommandTag("SET ROLE"))
}

// MockAssetQuery expects a lookup of ids in the asset table loaded from fn
func MockAssetQuery(db pgxmock.PgxConnIface, fn string, ids []int) {
	expectTrx(db)
	db.ExpectQuery("SELECT asset_id, code, name, region, market").WillReturnRows(
		NewCSVRows(fn, assetTypes).WhereIn("asset_id", ids).Rows())
	db.ExpectCommit()
}

// MockAllAssetsQuery expects a query for every asset loaded from fn
func MockAllAssetsQuery(db pgxmock.PgxConnIface, fn string) {
	expectTrx(db)
	db.ExpectQuery("SELECT asset_id, code, name, region, market").WillReturnRows(
		NewCSVRows(fn, assetTypes).Rows())
	db.ExpectCommit()
}

// MockPriceQuery expects a price history range query
func MockPriceQuery(db pgxmock.PgxConnIface, fn string, ids []int, begin, end time.Time) {
	expectTrx(db)
	db.ExpectQuery("SELECT asset_id, price, trade_date FROM asset_history").WillReturnRows(
		NewCSVRows(fn, historyTypes).WhereIn("asset_id", ids).Between(begin, end).Rows())
	db.ExpectCommit()
}

// MockPricesAtQuery expects a query for the newest price of each asset in [begin, end]
func MockPricesAtQuery(db pgxmock.PgxConnIface, fn string, ids []int, begin, end time.Time) {
	expectTrx(db)
	db.ExpectQuery("SELECT DISTINCT ON \\(asset_id\\) asset_id, price, trade_date").WillReturnRows(
		NewCSVRows(fn, historyTypes).WhereIn("asset_id", ids).Between(begin, end).LatestPer("asset_id").Rows())
	db.ExpectCommit()
}

// MockCovarianceQuery expects a query for the covariances among ids
func MockCovarianceQuery(db pgxmock.PgxConnIface, fn string, ids []int) {
	expectTrx(db)
	db.ExpectQuery("SELECT asset_id_1, asset_id_2, covariance FROM asset_covariance").WillReturnRows(
		NewCSVRows(fn, covarianceTypes).WhereIn("asset_id_1", ids).WhereIn("asset_id_2", ids).Rows())
	db.ExpectCommit()
}

// MockExchangeRateQuery expects a query for the most recent exchange rate
func MockExchangeRateQuery(db pgxmock.PgxConnIface, rate float64) {
	expectTrx(db)
	db.ExpectQuery("SELECT rate FROM exchange_rate").WillReturnRows(
		pgxmock.NewRows([]string{"rate"}).AddRow(rate))
	db.ExpectCommit()
}

// MockUsersQuery expects a query for every user loaded from fn
func MockUsersQuery(db pgxmock.PgxConnIface, fn string) {
	expectTrx(db)
	db.ExpectQuery("SELECT user_id, email, name FROM users").WillReturnRows(
		NewCSVRows(fn, map[string]string{"user_id": "int"}).Rows())
	db.ExpectCommit()
}
