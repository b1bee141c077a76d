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

// Versions is a user's portfolio history ordered newest first
type Versions []*Portfolio

// Active returns the newest version when it has not been superseded, nil otherwise
func (v Versions) Active() *Portfolio {
	if len(v) == 0 {
		return nil
	}
	if v[0].IsActive && v[0].DeletedAt == nil {
		return v[0]
	}
	return nil
}

// IndexOf returns the position of the version with the given id or -1
func (v Versions) IndexOf(id string) int {
	for idx, p := range v {
		if p.ID == id {
			return idx
		}
	}
	return -1
}

// Validate rejects logs with more than one active version, an active version that is
// not the newest, or version numbers that do not strictly decrease
func (v Versions) Validate() error {
	active := 0
	for idx, p := range v {
		if p.IsActive {
			active++
			if idx != 0 {
				return ErrActiveNotNewest
			}
		}
		if idx > 0 && p.Version >= v[idx-1].Version {
			return ErrVersionOrder
		}
	}
	if active > 1 {
		return ErrMultipleActive
	}
	return nil
}
