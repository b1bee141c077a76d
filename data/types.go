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

package data

import "time"

// Region identifies the market an asset trades in. Prices of foreign assets are quoted
// in USD and must be converted before being combined with domestic (KRW) prices.
type Region string

const (
	RegionDomestic Region = "KR"
	RegionForeign  Region = "US"
)

const (
	MarketETF     = "ETF"
	ETFIndustryID = 1
)

// Category labels used when grouping a portfolio by market
const (
	CategoryKRX       = "KRX"
	CategoryKRXETF    = "KRX-ETF"
	CategoryNASDAQ    = "NASDAQ"
	CategoryNASDAQETF = "NASDAQ-ETF"
)

// Asset is a tradeable security together with the statistics maintained for it by the
// nightly market data load
type Asset struct {
	ID             int      `json:"assetId"`
	Code           string   `json:"code"`
	Name           string   `json:"name"`
	Region         Region   `json:"region"`
	Market         string   `json:"market"`
	IndustryID     int      `json:"industryId"`
	IndustryName   string   `json:"industryName"`
	SectorName     string   `json:"sectorName"`
	ExpectedReturn *float64 `json:"expectedReturn"`
	Volatility     *float64 `json:"volatility"`
	RecentPrice    float64  `json:"recentPrice"`
	OldestPrice    float64  `json:"oldestPrice"`
}

// Category returns the market grouping of the asset
func (a *Asset) Category() string {
	if a.Region == RegionDomestic {
		if a.Market == MarketETF {
			return CategoryKRXETF
		}
		return CategoryKRX
	}

	if a.IndustryID == ETFIndustryID {
		return CategoryNASDAQETF
	}
	return CategoryNASDAQ
}

// AssetHistory is the closing price of an asset on a trade date
type AssetHistory struct {
	AssetID int       `json:"assetId"`
	Price   float64   `json:"price"`
	Date    time.Time `json:"date"`
}

// AssetCovariance is stored once per unordered pair of assets
type AssetCovariance struct {
	Asset1     int     `json:"asset1"`
	Asset2     int     `json:"asset2"`
	Covariance float64 `json:"covariance"`
}

type User struct {
	ID    int    `json:"userId"`
	Email string `json:"email"`
	Name  string `json:"name"`
}
