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

package optimizer_test

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/jarcoal/httpmock"
	"github.com/mutualrisk/mr-api/common"
	"github.com/mutualrisk/mr-api/optimizer"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

const solverURL = "http://solver.test/optimize"

var _ = Describe("Optimizer", func() {
	var (
		client *optimizer.Client
		req    *optimizer.Request
		ctx    context.Context
	)

	BeforeEach(func() {
		httpmock.Activate()
		ctx = context.Background()
		client = optimizer.New("http://solver.test", "/optimize", 5*time.Second, 0)
		req = &optimizer.Request{
			ExpectedReturns: []float64{0.12, 0.15},
			PricesDataFrame: [][]float64{{100, 101, 102}, {20, 21, 22}},
			LowerBounds:     []float64{0, 0},
			UpperBounds:     []float64{1, 1},
		}
	})

	AfterEach(func() {
		httpmock.DeactivateAndReset()
	})

	Context("with a healthy solver", func() {
		It("orders the index keyed weights like the request", func() {
			var received map[string]interface{}
			httpmock.RegisterResponder("POST", solverURL, func(r *http.Request) (*http.Response, error) {
				Expect(json.NewDecoder(r.Body).Decode(&received)).To(Succeed())
				return httpmock.NewStringResponse(200, `{
					"weights": {"1": 0.75, "0": 0.25},
					"fictionalPerformance": {"expectedReturn": 0.1425, "volatility": 0.02},
					"frontierPoints": [{"expectedReturn": 0.12, "volatility": 0.01}, {"expectedReturn": 0.15, "volatility": 0.03}]
				}`), nil
			})

			resp, err := client.Optimize(ctx, req)
			Expect(err).To(BeNil())
			Expect(resp.Weights).To(Equal([]float64{0.25, 0.75}))
			Expect(resp.FictionalPerformance.ExpectedReturn).To(BeNumerically("~", 0.1425))
			Expect(resp.FrontierPoints).To(HaveLen(2))

			Expect(received).To(HaveKey("prices_dataFrame"))
			Expect(received).To(HaveKey("expected_returns"))
			Expect(received).NotTo(HaveKey("exact_proportion"))
		})
	})

	Context("with a failing solver", func() {
		It("maps error status codes to an upstream error", func() {
			httpmock.RegisterResponder("POST", solverURL, httpmock.NewStringResponder(500, "boom"))
			_, err := client.Optimize(ctx, req)
			Expect(errors.Is(err, optimizer.ErrBadStatus)).To(BeTrue())
			Expect(errors.Is(err, common.ErrUpstream)).To(BeTrue())
		})

		It("rejects a weight map with the wrong number of entries", func() {
			httpmock.RegisterResponder("POST", solverURL, httpmock.NewStringResponder(200, `{"weights": {"0": 1.0}}`))
			_, err := client.Optimize(ctx, req)
			Expect(errors.Is(err, optimizer.ErrMalformed)).To(BeTrue())
		})

		It("rejects out of range weight indices", func() {
			httpmock.RegisterResponder("POST", solverURL, httpmock.NewStringResponder(200, `{"weights": {"0": 0.5, "7": 0.5}}`))
			_, err := client.Optimize(ctx, req)
			Expect(errors.Is(err, optimizer.ErrMalformed)).To(BeTrue())
		})

		It("rejects a body that is not JSON", func() {
			httpmock.RegisterResponder("POST", solverURL, httpmock.NewStringResponder(200, "<html>"))
			_, err := client.Optimize(ctx, req)
			Expect(errors.Is(err, common.ErrUpstream)).To(BeTrue())
		})

		It("reports transport failures as unreachable", func() {
			httpmock.RegisterResponder("POST", solverURL, httpmock.NewErrorResponder(errors.New("connection refused")))
			_, err := client.Optimize(ctx, req)
			Expect(errors.Is(err, optimizer.ErrUnreachable)).To(BeTrue())
		})
	})

	Context("with an invalid request", func() {
		It("does not call the solver", func() {
			req.LowerBounds = []float64{0}
			_, err := client.Optimize(ctx, req)
			Expect(errors.Is(err, common.ErrInvalidParameter)).To(BeTrue())
			Expect(httpmock.GetTotalCallCount()).To(Equal(0))
		})
	})
})
