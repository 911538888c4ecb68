package keypager

const (
	NoLimit      = -1
	MaxLimit     = 100
	DefaultLimit = 10
)

// IsNormalizedLimit clamps limit into [1, maxLimit], substituting
// defaultLimit for non-positive values. The flag reports whether limit was
// already valid.
func IsNormalizedLimit(limit, defaultLimit, maxLimit int) (int, bool) {
	if limit <= 0 {
		return min(defaultLimit, maxLimit), false
	} else if limit > maxLimit {
		return maxLimit, false
	}

	return limit, true
}

func IsNormalizedLimitMax(limit int, maxLimit int) (int, bool) {
	return IsNormalizedLimit(limit, DefaultLimit, maxLimit)
}

func NormalizeLimitMax(limit int, maxLimit int) int {
	ret, _ := IsNormalizedLimitMax(limit, maxLimit)
	return ret
}

func NormalizeLimit(limit int) int {
	return NormalizeLimitMax(limit, MaxLimit)
}

// NormalizeLimit clamps limit with the configured default and maximum.
func (c Config) NormalizeLimit(limit int) int {
	c = c.normalized()
	ret, _ := IsNormalizedLimit(limit, c.DefaultLimit, c.MaxLimit)

	return ret
}
