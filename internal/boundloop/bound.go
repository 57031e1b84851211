package boundloop

import "math"

// ComputeBoundNs implements the error-bound formula of spec §4.5:
//
//	bound_ns = |local_offset_ns|
//	         + root_dispersion_ns
//	         + root_delay_ns / 2
//	         + age_since_last_update_ns * max_drift_ppb * 1e-9
//	         + optional_phc_error_ns
//
// Overflow saturates to math.MaxInt64 and reports overflowed=true so the
// caller can degrade status to Unknown (spec §7: "Integer overflow in
// bound/age arithmetic. Saturate to the signed 64-bit maximum and
// degrade status to Unknown"). The result is never negative (spec I5).
func ComputeBoundNs(offsetNs, rootDispersionNs, rootDelayNs, ageNs int64, maxDriftPPB uint32, phcErrorNs int64) (boundNs int64, overflowed bool) {
	abs := offsetNs
	if abs < 0 {
		abs = -abs
	}

	drift := driftNs(ageNs, maxDriftPPB)

	sum, of1 := addSat(abs, rootDispersionNs)
	sum, of2 := addSat(sum, rootDelayNs/2)
	sum, of3 := addSat(sum, drift)
	sum, of4 := addSat(sum, phcErrorNs)

	if sum < 0 {
		sum = 0
	}

	return sum, of1 || of2 || of3 || of4
}

// driftNs computes age_since_last_update_ns * max_drift_ppb * 1e-9,
// saturating rather than overflowing for pathological (very large age,
// very large drift) inputs.
func driftNs(ageNs int64, maxDriftPPB uint32) int64 {
	d := float64(ageNs) * float64(maxDriftPPB) * 1e-9
	if d > math.MaxInt64 {
		return math.MaxInt64
	}

	if d < 0 {
		return 0
	}

	return int64(d)
}

func addSat(a, b int64) (int64, bool) {
	sum := a + b
	// Overflow occurs iff both operands share a sign and the result's
	// sign differs from theirs.
	if (a > 0 && b > 0 && sum < 0) || (a < 0 && b < 0 && sum >= 0) {
		return math.MaxInt64, true
	}

	return sum, false
}
