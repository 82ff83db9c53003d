// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build race

package ring

// RaceEnabled is true when the race detector is active.
// It lets a test skip a concurrent stress test under -race, whose
// detector cannot observe the happens-before relationships established
// by the atomic state word. The tests in this package do not consult it.
const RaceEnabled = true
