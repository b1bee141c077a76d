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

// Package portfoliotest provides in-memory implementations of the collaborators used by
// the portfolio services.
package portfoliotest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mutualrisk/mr-api/data"
	"github.com/mutualrisk/mr-api/optimizer"
	"github.com/mutualrisk/mr-api/portfolio"
)

// Store keeps portfolio versions in memory
type Store struct {
	mu   sync.Mutex
	byID map[string]*portfolio.Portfolio
	Now  func() time.Time
}

func NewStore(versions ...*portfolio.Portfolio) *Store {
	s := &Store{
		byID: make(map[string]*portfolio.Portfolio, len(versions)),
		Now:  time.Now,
	}
	for _, p := range versions {
		s.byID[p.ID] = p
	}
	return s
}

func (s *Store) GetByID(ctx context.Context, id string) (*portfolio.Portfolio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return nil, portfolio.ErrPortfolioNotFound
	}
	return p, nil
}

func (s *Store) ListByUser(ctx context.Context, userID int) (portfolio.Versions, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLocked(userID), nil
}

func (s *Store) listLocked(userID int) portfolio.Versions {
	versions := portfolio.Versions{}
	for _, p := range s.byID {
		if p.UserID == userID {
			versions = append(versions, p)
		}
	}
	sort.Slice(versions, func(i, j int) bool {
		return versions[i].Version > versions[j].Version
	})
	return versions
}

func (s *Store) GetByUserAndVersion(ctx context.Context, userID, version int) (*portfolio.Portfolio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.byID {
		if p.UserID == userID && p.Version == version {
			return p, nil
		}
	}
	return nil, portfolio.ErrVersionNotFound
}

func (s *Store) Append(ctx context.Context, p *portfolio.Portfolio) (*portfolio.Portfolio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.Now()
	versions := s.listLocked(p.UserID)
	if active := versions.Active(); active != nil {
		active.IsActive = false
		active.DeletedAt = &now
	}

	stored := *p
	stored.Version = 1
	if len(versions) > 0 {
		stored.Version = versions[0].Version + 1
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.IsActive = true
	stored.DeletedAt = nil
	s.byID[stored.ID] = &stored
	return &stored, nil
}

// Catalog is an in-memory market data store. History must be in chronological order.
type Catalog struct {
	mu          sync.Mutex
	Assets      map[int]*data.Asset
	History     map[int][]data.AssetHistory
	Covariances []data.AssetCovariance
	UserList    []*data.User
	Rate        float64
	RateErr     error
	DaysPerUnit int

	RateCalls     int
	PricesAtCalls int
}

func NewCatalog(rate float64, assets ...*data.Asset) *Catalog {
	c := &Catalog{
		Assets:      make(map[int]*data.Asset, len(assets)),
		History:     make(map[int][]data.AssetHistory),
		Rate:        rate,
		DaysPerUnit: 10,
	}
	for _, asset := range assets {
		c.Assets[asset.ID] = asset
	}
	return c
}

// AddPrices appends closing prices for assetID
func (c *Catalog) AddPrices(assetID int, hist ...data.AssetHistory) {
	for idx := range hist {
		hist[idx].AssetID = assetID
	}
	c.History[assetID] = append(c.History[assetID], hist...)
	sort.Slice(c.History[assetID], func(i, j int) bool {
		return c.History[assetID][i].Date.Before(c.History[assetID][j].Date)
	})
}

func (c *Catalog) RecentExchangeRate(ctx context.Context) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.RateCalls++
	if c.RateErr != nil {
		return 0, c.RateErr
	}
	if c.Rate <= 0 {
		return 0, data.ErrExchangeRateNotFound
	}
	return c.Rate, nil
}

func (c *Catalog) between(assetID int, begin, end time.Time) []data.AssetHistory {
	res := []data.AssetHistory{}
	for _, hist := range c.History[assetID] {
		if !hist.Date.Before(begin) && !hist.Date.After(end) {
			res = append(res, hist)
		}
	}
	return res
}

func (c *Catalog) PricesAt(ctx context.Context, ids []int, target time.Time) (map[int]data.AssetHistory, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.PricesAtCalls++
	res := make(map[int]data.AssetHistory, len(ids))
	begin := target.AddDate(0, 0, -c.DaysPerUnit)
	for _, id := range ids {
		hist := c.between(id, begin, target)
		if len(hist) > 0 {
			res[id] = hist[len(hist)-1]
		}
	}
	return res, nil
}

func (c *Catalog) PricesBetween(ctx context.Context, ids []int, begin, end time.Time) (map[int][]data.AssetHistory, error) {
	if end.Before(begin) {
		return nil, data.ErrBeginAfterEnd
	}
	res := make(map[int][]data.AssetHistory, len(ids))
	for _, id := range ids {
		if hist := c.between(id, begin, end); len(hist) > 0 {
			res[id] = hist
		}
	}
	return res, nil
}

func (c *Catalog) ValidDates(ctx context.Context, assetID int, target time.Time, n int) ([]time.Time, error) {
	if n <= 0 {
		return nil, data.ErrInvalidCount
	}
	hist := c.between(assetID, target.AddDate(0, 0, -c.DaysPerUnit*n), target)
	if len(hist) < n {
		return []time.Time{}, nil
	}
	dates := make([]time.Time, n)
	for ii := 0; ii < n; ii++ {
		dates[ii] = hist[len(hist)-1-ii].Date
	}
	return dates, nil
}

func (c *Catalog) AssetsByID(ctx context.Context, ids []int) ([]*data.Asset, error) {
	assets := make([]*data.Asset, 0, len(ids))
	for _, id := range ids {
		asset, ok := c.Assets[id]
		if !ok {
			return nil, fmt.Errorf("%w: %d", data.ErrAssetNotFound, id)
		}
		assets = append(assets, asset)
	}
	return assets, nil
}

func (c *Catalog) AllAssets(ctx context.Context) ([]*data.Asset, error) {
	assets := make([]*data.Asset, 0, len(c.Assets))
	for _, asset := range c.Assets {
		assets = append(assets, asset)
	}
	sort.Slice(assets, func(i, j int) bool { return assets[i].ID < assets[j].ID })
	return assets, nil
}

func (c *Catalog) CovariancesAmong(ctx context.Context, ids []int) ([]data.AssetCovariance, error) {
	wanted := make(map[int]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	res := []data.AssetCovariance{}
	for _, cov := range c.Covariances {
		if wanted[cov.Asset1] && wanted[cov.Asset2] {
			res = append(res, cov)
		}
	}
	return res, nil
}

func (c *Catalog) Users(ctx context.Context) ([]*data.User, error) {
	return c.UserList, nil
}

func (c *Catalog) UserByID(ctx context.Context, userID int) (*data.User, error) {
	for _, user := range c.UserList {
		if user.ID == userID {
			return user, nil
		}
	}
	return nil, fmt.Errorf("%w: %d", data.ErrUserNotFound, userID)
}

// Optimizer returns a canned response and records every request
type Optimizer struct {
	mu       sync.Mutex
	Response *optimizer.Response
	Err      error
	Requests []*optimizer.Request
}

func (o *Optimizer) Optimize(ctx context.Context, req *optimizer.Request) (*optimizer.Response, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Requests = append(o.Requests, req)
	if o.Err != nil {
		return nil, o.Err
	}
	return o.Response, nil
}

// Message is a notification captured by Notifier
type Message struct {
	To      string
	Subject string
	Body    string
}

// Notifier records sent messages. Messages addressed to FailFor are rejected with Err.
type Notifier struct {
	mu      sync.Mutex
	Sent    []Message
	Err     error
	FailFor string
}

func (n *Notifier) Send(ctx context.Context, to, subject, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Err != nil && (n.FailFor == "" || n.FailFor == to) {
		return n.Err
	}
	n.Sent = append(n.Sent, Message{To: to, Subject: subject, Body: body})
	return nil
}

// SentTo returns the messages delivered to an address
func (n *Notifier) SentTo(to string) []Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	res := []Message{}
	for _, msg := range n.Sent {
		if msg.To == to {
			res = append(res, msg)
		}
	}
	return res
}
