package common

import (
	"math"

	coreerrors "stakevault/core/errors"
)

var (
	ErrQuotaRequestsExceeded = coreerrors.New(coreerrors.ErrAuthorization, "quota_requests_exceeded", "quota requests exceeded")
	ErrQuotaVolumeExceeded   = coreerrors.New(coreerrors.ErrAuthorization, "quota_volume_exceeded", "quota volume cap exceeded")
	ErrQuotaCounterOverflow  = coreerrors.New(coreerrors.ErrArithmetic, "quota_counter_overflow", "quota counter overflow")
)

// QuotaNow captures the current quota usage counters for an address.
type QuotaNow struct {
	ReqCount   uint32
	VolumeUsed uint64
	EpochID    uint64
}

// Quota defines the limits enforced for a module interaction per address.
// Volume is counted in whole base-asset tokens.
type Quota struct {
	MaxRequestsPerEpoch uint32
	MaxVolumePerEpoch   uint64
	EpochSeconds        uint32
}

// Enabled reports whether any limit is configured.
func (q Quota) Enabled() bool {
	return q.MaxRequestsPerEpoch > 0 || q.MaxVolumePerEpoch > 0
}

// Epoch maps a unix timestamp onto the quota window. A zero window length
// defaults to one minute.
func (q Quota) Epoch(unix int64) uint64 {
	seconds := int64(q.EpochSeconds)
	if seconds <= 0 {
		seconds = 60
	}
	if unix < 0 {
		return 0
	}
	return uint64(unix / seconds)
}

// CheckQuota verifies whether the additional request and volume fit within
// the configured quota. The returned QuotaNow reflects the updated counters
// when the quota is not exceeded.
func CheckQuota(q Quota, nowEpoch uint64, prev QuotaNow, addReq uint32, addVolume uint64) (QuotaNow, error) {
	next := prev
	if prev.EpochID != nowEpoch {
		next = QuotaNow{EpochID: nowEpoch}
	}

	if addReq > 0 {
		if next.ReqCount > math.MaxUint32-addReq {
			return prev, ErrQuotaCounterOverflow
		}
		next.ReqCount += addReq
	}
	if q.MaxRequestsPerEpoch > 0 && next.ReqCount > q.MaxRequestsPerEpoch {
		return prev, ErrQuotaRequestsExceeded
	}

	if addVolume > 0 {
		if next.VolumeUsed > math.MaxUint64-addVolume {
			return prev, ErrQuotaCounterOverflow
		}
		next.VolumeUsed += addVolume
	}
	if q.MaxVolumePerEpoch > 0 && next.VolumeUsed > q.MaxVolumePerEpoch {
		return prev, ErrQuotaVolumeExceeded
	}

	return next, nil
}
