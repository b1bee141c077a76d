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

package messenger

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Limited throttles a dispatcher and bounds each send with a timeout
type Limited struct {
	next    Dispatcher
	limiter *rate.Limiter
	timeout time.Duration
}

// NewLimited allows rps sends per second through next. rps <= 0 disables throttling
// and timeout <= 0 disables the per send deadline.
func NewLimited(next Dispatcher, rps float64, timeout time.Duration) *Limited {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &Limited{
		next:    next,
		limiter: rate.NewLimiter(limit, 1),
		timeout: timeout,
	}
}

func (l *Limited) Send(ctx context.Context, to, subject, body string) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	return l.next.Send(ctx, to, subject, body)
}
