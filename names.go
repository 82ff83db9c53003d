// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package shmipc

// Suffixes appended to a channel's logical name to derive the names of
// its backing shared-memory primitives, per §6's process-visible-names
// table.
const (
	suffixWaiterMutex = "__WAITER_MTX__"
	suffixWaiterCond  = "__WAITER_CV__"
	suffixConnAcc     = "__CONN_ACC__"
)

// channelNames holds the deterministic derived names for one channel,
// computed once from the caller-supplied logical name and prefix.
type channelNames struct {
	data        string
	waiterMutex string
	waiterCond  string
	connAcc     string
}

func deriveNames(prefix, name string) channelNames {
	base := prefix + name
	return channelNames{
		data:        base,
		waiterMutex: base + suffixWaiterMutex,
		waiterCond:  base + suffixWaiterCond,
		connAcc:     base + suffixConnAcc,
	}
}
