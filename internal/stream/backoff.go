/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package stream

import "time"

// backoffDelay returns the wait before reconnect attempt n (1-based):
// base doubling per attempt, capped. Attempt values below 1 are
// treated as the first attempt.
func backoffDelay(attempt int, base, cap time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= cap {
			return cap
		}
	}
	if delay > cap {
		return cap
	}
	return delay
}
