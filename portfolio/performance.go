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

package portfolio

import (
	"fmt"

	"github.com/mutualrisk/mr-api/common"
	"github.com/mutualrisk/mr-api/data"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Weights normalizes valuations so they sum to one. When the total is zero every
// weight is zero.
func Weights(values []float64) []float64 {
	weights := make([]float64, len(values))
	total := floats.Sum(values)
	for idx, val := range values {
		weights[idx] = common.SafeDivide(val, total).OrZero()
	}
	return weights
}

// ExpectedReturn is the weighted sum of the assets' expected returns
func ExpectedReturn(assets []*data.Asset, weights []float64) (float64, error) {
	if len(assets) != len(weights) {
		return 0, ErrBoundsMismatch
	}
	er := 0.0
	for idx, asset := range assets {
		if asset.ExpectedReturn == nil {
			return 0, fmt.Errorf("%w: %s", ErrMissingReturn, asset.Code)
		}
		er += weights[idx] * *asset.ExpectedReturn
	}
	return er, nil
}

// CovarianceMatrix builds the dense symmetric matrix for assets from pairwise
// covariances. Pairs referencing assets outside the list are ignored.
func CovarianceMatrix(assets []*data.Asset, covariances []data.AssetCovariance) *mat.Dense {
	n := len(assets)
	pos := make(map[int]int, n)
	for idx, asset := range assets {
		pos[asset.ID] = idx
	}

	sigma := mat.NewDense(n, n, nil)
	for _, cov := range covariances {
		i, ok1 := pos[cov.Asset1]
		j, ok2 := pos[cov.Asset2]
		if !ok1 || !ok2 {
			continue
		}
		sigma.Set(i, j, cov.Covariance)
		sigma.Set(j, i, cov.Covariance)
	}
	return sigma
}

// Volatility is the quadratic form w'Sw summed over every entry of the covariance
// matrix
func Volatility(weights []float64, sigma *mat.Dense) float64 {
	if len(weights) == 0 {
		return 0
	}
	w := mat.NewVecDense(len(weights), weights)
	return mat.Inner(w, sigma, w)
}

// SharpeRatio returns er/vol or common.ErrDivisionByZero when vol is zero
func SharpeRatio(er, vol float64) (float64, error) {
	return common.SafeDivide(er, vol).Result()
}

// Evaluate computes expected return, volatility and Sharpe ratio of a weighting
func Evaluate(assets []*data.Asset, weights []float64, covariances []data.AssetCovariance) (Performance, error) {
	er, err := ExpectedReturn(assets, weights)
	if err != nil {
		return Performance{}, err
	}

	vol := Volatility(weights, CovarianceMatrix(assets, covariances))
	sharpe, err := SharpeRatio(er, vol)
	if err != nil {
		log.Warn().Float64("ExpectedReturn", er).Msg("portfolio volatility is zero; sharpe ratio undefined")
		return Performance{ExpectedReturn: er, Volatility: vol}, err
	}

	return Performance{
		ExpectedReturn: er,
		Volatility:     vol,
		SharpeRatio:    sharpe,
	}, nil
}
