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

package portfolio_test

import (
	"errors"

	"github.com/mutualrisk/mr-api/common"
	"github.com/mutualrisk/mr-api/portfolio"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Versions", func() {
	var versions portfolio.Versions

	BeforeEach(func() {
		superseded := day(2024, 2, 1)
		versions = portfolio.Versions{
			{ID: "v2", Version: 2, CreatedAt: day(2024, 2, 1), IsActive: true},
			{ID: "v1", Version: 1, CreatedAt: day(2024, 1, 1), DeletedAt: &superseded},
		}
	})

	It("finds the active version", func() {
		Expect(versions.Active().ID).To(Equal("v2"))
		Expect(versions.Validate()).To(Succeed())
	})

	It("has no active version once the newest is superseded", func() {
		superseded := day(2024, 3, 1)
		versions[0].IsActive = false
		versions[0].DeletedAt = &superseded
		Expect(versions.Active()).To(BeNil())
		Expect(portfolio.Versions{}.Active()).To(BeNil())
	})

	It("locates versions by id", func() {
		Expect(versions.IndexOf("v1")).To(Equal(1))
		Expect(versions.IndexOf("missing")).To(Equal(-1))
	})

	It("rejects more than one active version", func() {
		versions[1].IsActive = true
		err := versions.Validate()
		Expect(err).NotTo(BeNil())
		Expect(errors.Is(err, common.ErrDataIntegrity)).To(BeTrue())
		Expect(errors.Is(err, common.ErrInvalidParameter)).To(BeFalse())
	})

	It("rejects an active version that is not the newest", func() {
		versions[0].IsActive = false
		versions[1].IsActive = true
		Expect(errors.Is(versions.Validate(), portfolio.ErrActiveNotNewest)).To(BeTrue())
	})

	It("rejects version numbers out of order", func() {
		versions[1].Version = 2
		Expect(errors.Is(versions.Validate(), portfolio.ErrVersionOrder)).To(BeTrue())
	})

	It("validates the per asset lists of a portfolio", func() {
		p := &portfolio.Portfolio{
			Holdings:    []portfolio.Holding{{AssetID: 1}, {AssetID: 2}},
			LowerBounds: []float64{0, 0},
			UpperBounds: []float64{1, 1},
			Weights:     []float64{0.5, 0.5},
		}
		Expect(p.Validate()).To(Succeed())
		Expect(p.AssetIDs()).To(Equal([]int{1, 2}))

		p.UpperBounds = []float64{1}
		Expect(errors.Is(p.Validate(), portfolio.ErrBoundsMismatch)).To(BeTrue())
	})
})
