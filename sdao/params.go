// Copyright (c) 2024 The StackingDAO developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package sdao

import "math/big"

// Constants of the protocol.
const (
	// BpsDenominator is the denominator of all basis-point shares.
	BpsDenominator = 10000

	// MaxCommissionBps caps the effective commission of any pool.
	MaxCommissionBps = 4000

	// MaxPendingBatch bounds the size of a batched pending-rewards query.
	MaxPendingBatch = 200

	// MinWithdrawalOffset is the minimum number of cycles between an
	// init-withdraw and its unlock height. The current cycle can never be
	// targeted because committed capital cannot be recalled early.
	MinWithdrawalOffset = 2
)

var (
	// RewardScale is the fixed-point scale of the cumulative
	// reward-per-share index.
	RewardScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

	// MicroStx is the subdivision of one STX.
	MicroStx = big.NewInt(1e6)
)
