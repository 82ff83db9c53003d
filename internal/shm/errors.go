// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package shm

import "errors"

// ErrNameInvalid indicates an empty or over-length region name.
var ErrNameInvalid = errors.New("shm: invalid name")

// ErrExists indicates CreateExclusive was requested for a name that
// already exists.
var ErrExists = errors.New("shm: region already exists")

// ErrNotExist indicates OpenExisting was requested for a name that does
// not exist.
var ErrNotExist = errors.New("shm: region does not exist")
