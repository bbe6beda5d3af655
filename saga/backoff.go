package saga

import "time"

// BackoffConfig 是重试之间等待时长的参数化：初始延迟，按 BackoffFactor
// 指数增长，封顶于 MaxDelay。用于前向恢复重试（ForwardPolicy）与补偿
// 重试（compensator），二者各持有自己的一份配置。
type BackoffConfig struct {
	InitialDelay  time.Duration
	BackoffFactor float64
	MaxDelay      time.Duration
}

// DefaultBackoffConfig 返回一组温和的默认退避参数。
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		InitialDelay:  50 * time.Millisecond,
		BackoffFactor: 2.0,
		MaxDelay:      2 * time.Second,
	}
}

// delayFor 返回第 attempt 次失败后（attempt 从 1 开始）应等待的时长。
func (c BackoffConfig) delayFor(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if c.InitialDelay <= 0 {
		return 0
	}
	d := c.InitialDelay
	for i := 1; i < attempt; i++ {
		d = time.Duration(float64(d) * c.BackoffFactor)
		if c.MaxDelay > 0 && d >= c.MaxDelay {
			return c.MaxDelay
		}
	}
	if c.MaxDelay > 0 && d > c.MaxDelay {
		return c.MaxDelay
	}
	return d
}
