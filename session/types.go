// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

// Package session implements the Session Store (C4): the singleton
// per-pair security association holding directional AEAD keys and the
// replay state C5's guard checks against.
package session

import "time"

// PruneKeepLast mirrors replay.PruneKeepLast: the minimum number of
// recent used-nonce hashes retained on prune (§4.4).
const PruneKeepLast = 1024

// Status reports aggregate counts across a Store, the same shape the
// teacher's Manager exposed for its own session population.
type Status struct {
	TotalSessions int `json:"totalSessions"`
}

var pruneMinAge = 2 * 120_000 * time.Millisecond // 2 * freshnessWindow, §4.4
