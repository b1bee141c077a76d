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

package common

import "math"

// Quotient is the result of SafeDivide. Defined is false when the denominator was zero
// (or either operand was not a finite number) and Value is 0 in that case.
type Quotient struct {
	Value   float64
	Defined bool
}

// SafeDivide divides num by den without ever producing NaN or Inf
func SafeDivide(num, den float64) Quotient {
	if den == 0 || math.IsNaN(num) || math.IsNaN(den) || math.IsInf(num, 0) || math.IsInf(den, 0) {
		return Quotient{}
	}
	return Quotient{Value: num / den, Defined: true}
}

// OrZero returns the quotient, or 0.0 when it is undefined
func (q Quotient) OrZero() float64 {
	return q.Value
}

// Result returns the quotient, or ErrDivisionByZero when it is undefined
func (q Quotient) Result() (float64, error) {
	if !q.Defined {
		return 0, ErrDivisionByZero
	}
	return q.Value, nil
}
