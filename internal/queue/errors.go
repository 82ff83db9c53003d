// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package queue

import "errors"

// ErrTimeout indicates a blocking Push/Pop reached its deadline without
// making progress.
var ErrTimeout = errors.New("queue: timed out")

// ErrDisconnected indicates the queue's waiter was disabled (teardown)
// while this call was waiting, per §4.C's disable semantics.
var ErrDisconnected = errors.New("queue: disconnected")
