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

// Package optimizer is the client of the external mean-variance optimization service.
package optimizer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/mutualrisk/mr-api/common"
	"github.com/mutualrisk/mr-api/observability/opentelemetry"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

var (
	ErrBadStatus       = fmt.Errorf("solver returned an error status: %w", common.ErrUpstream)
	ErrMalformed       = fmt.Errorf("solver returned a malformed response: %w", common.ErrUpstream)
	ErrUnreachable     = fmt.Errorf("solver unreachable: %w", common.ErrUpstream)
	ErrEmptyRequest    = fmt.Errorf("optimization request has no assets: %w", common.ErrInvalidParameter)
	ErrRequestMismatch = fmt.Errorf("optimization request lists have different lengths: %w", common.ErrInvalidParameter)
)

// Request is the body sent to the solver. PricesDataFrame holds one price series per
// asset in the same order as ExpectedReturns.
type Request struct {
	ExpectedReturns []float64   `json:"expected_returns"`
	PricesDataFrame [][]float64 `json:"prices_dataFrame"`
	LowerBounds     []float64   `json:"lower_bounds"`
	UpperBounds     []float64   `json:"upper_bounds"`
	ExactProportion []float64   `json:"exact_proportion,omitempty"`
}

// Validate checks every per-asset list has the same length
func (r *Request) Validate() error {
	n := len(r.ExpectedReturns)
	if n == 0 {
		return ErrEmptyRequest
	}
	if len(r.PricesDataFrame) != n || len(r.LowerBounds) != n || len(r.UpperBounds) != n {
		return ErrRequestMismatch
	}
	if len(r.ExactProportion) != 0 && len(r.ExactProportion) != n {
		return ErrRequestMismatch
	}
	return nil
}

type Performance struct {
	ExpectedReturn float64 `json:"expectedReturn"`
	Volatility     float64 `json:"volatility"`
}

type FrontierPoint struct {
	ExpectedReturn float64 `json:"expectedReturn"`
	Volatility     float64 `json:"volatility"`
}

// Response is the decoded solver answer. Weights are ordered like the request.
type Response struct {
	Weights              []float64
	FictionalPerformance Performance
	FrontierPoints       []FrontierPoint
}

type wireResponse struct {
	Weights              map[string]float64 `json:"weights"`
	FictionalPerformance Performance        `json:"fictionalPerformance"`
	FrontierPoints       []FrontierPoint    `json:"frontierPoints"`
}

// Client calls the solver over HTTP. Requests are rate limited and bounded by the
// client timeout.
type Client struct {
	url     string
	client  *http.Client
	limiter *rate.Limiter
}

// New creates a solver client. rps <= 0 disables rate limiting.
func New(baseURL, path string, timeout time.Duration, rps float64) *Client {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &Client{
		url:     baseURL + path,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Optimize submits req and returns weights indexed like the request's assets
func (c *Client) Optimize(ctx context.Context, req *Request) (*Response, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "optimizer.Optimize")
	defer span.End()

	subLog := log.With().Str("Url", c.url).Int("NumAssets", len(req.ExpectedReturns)).Logger()
	span.SetAttributes(attribute.String("Url", c.url), attribute.Int("NumAssets", len(req.ExpectedReturns)))

	if err := req.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		return nil, err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rate limiter wait failed")
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	body, err := json.Marshal(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "could not marshal request")
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "could not build request")
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		msg := "solver http request failed"
		span.SetStatus(codes.Error, msg)
		subLog.Error().Err(err).Msg(msg)
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		span.SetAttributes(attribute.Int("StatusCode", resp.StatusCode))
		msg := "solver returned invalid response code"
		span.SetStatus(codes.Error, msg)
		subLog.Error().Int("HTTPResponseStatusCode", resp.StatusCode).Msg(msg)
		return nil, fmt.Errorf("%w: %d", ErrBadStatus, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		msg := "could not read solver body"
		span.SetStatus(codes.Error, msg)
		subLog.Error().Err(err).Msg(msg)
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	wire := wireResponse{}
	if err := json.Unmarshal(raw, &wire); err != nil {
		span.RecordError(err)
		msg := "could not unmarshal solver response"
		span.SetStatus(codes.Error, msg)
		subLog.Error().Err(err).Bytes("Body", raw).Msg(msg)
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	weights, err := orderWeights(wire.Weights, len(req.ExpectedReturns))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "malformed weights")
		subLog.Error().Err(err).Bytes("Body", raw).Msg("solver weights do not match the request")
		return nil, err
	}

	return &Response{
		Weights:              weights,
		FictionalPerformance: wire.FictionalPerformance,
		FrontierPoints:       wire.FrontierPoints,
	}, nil
}

// orderWeights converts the index keyed weight map into a slice of length n
func orderWeights(weights map[string]float64, n int) ([]float64, error) {
	if len(weights) != n {
		return nil, fmt.Errorf("%w: expected %d weights, got %d", ErrMalformed, n, len(weights))
	}
	ordered := make([]float64, n)
	for key, w := range weights {
		idx, err := strconv.Atoi(key)
		if err != nil || idx < 0 || idx >= n {
			return nil, fmt.Errorf("%w: weight index %q", ErrMalformed, key)
		}
		ordered[idx] = w
	}
	return ordered, nil
}
