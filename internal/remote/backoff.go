package remote

import "time"

const (
	// initialBackoff は再接続の初回遅延。
	initialBackoff = time.Second
	// maxBackoff は再接続の最大遅延。
	maxBackoff = 30 * time.Second
)

// Backoff は連続失敗回数に基づいて再接続までの遅延を計算する。
// 初回1秒、2倍ずつ増加、最大30秒。
func Backoff(consecutiveFailures int) time.Duration {
	delay := initialBackoff
	for i := 0; i < consecutiveFailures; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}
