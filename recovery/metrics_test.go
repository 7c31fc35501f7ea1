package recovery

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsRecordAndSnapshot(t *testing.T) {
	m := newMetrics()

	m.recordError(&ErrorRecord{Kind: KindRateLimited, OriginModel: "gpt-5"})
	m.recordError(&ErrorRecord{Kind: KindRateLimited, OriginModel: "gpt-5"})
	m.recordError(&ErrorRecord{Kind: KindTimeout, OriginModel: "claude-sonnet"})
	m.recordError(&ErrorRecord{Kind: KindTimeout}) // no model attribution
	m.recordAttempt()
	m.recordAttempt()
	m.recordRecovery(2 * time.Second)
	m.recordRecovery(4 * time.Second)

	snap := m.Snapshot()
	assert.Equal(t, int64(4), snap.TotalErrors)
	assert.Equal(t, int64(2), snap.ErrorsByKind[KindRateLimited])
	assert.Equal(t, int64(2), snap.ErrorsByKind[KindTimeout])
	assert.Equal(t, int64(2), snap.ErrorsByModel["gpt-5"])
	assert.Equal(t, int64(1), snap.ErrorsByModel["claude-sonnet"])
	assert.Equal(t, int64(2), snap.RecoveryAttempts)
	assert.Equal(t, int64(2), snap.SuccessfulRecoveries)
	assert.Equal(t, 3*time.Second, snap.AverageRecoveryDuration)
}

func TestMetricsSnapshotIsDeepCopy(t *testing.T) {
	m := newMetrics()
	m.recordError(&ErrorRecord{Kind: KindRateLimited, OriginModel: "gpt-5"})

	snap := m.Snapshot()
	snap.ErrorsByKind[KindRateLimited] = 100
	snap.ErrorsByModel["gpt-5"] = 100

	fresh := m.Snapshot()
	assert.Equal(t, int64(1), fresh.ErrorsByKind[KindRateLimited])
	assert.Equal(t, int64(1), fresh.ErrorsByModel["gpt-5"])
}

func TestMetricsReset(t *testing.T) {
	m := newMetrics()
	m.recordError(&ErrorRecord{Kind: KindNetworkError, OriginModel: "gpt-5"})
	m.recordAttempt()
	m.recordRecovery(time.Second)

	m.Reset()

	snap := m.Snapshot()
	assert.Equal(t, int64(0), snap.TotalErrors)
	assert.Empty(t, snap.ErrorsByKind)
	assert.Empty(t, snap.ErrorsByModel)
	assert.Equal(t, int64(0), snap.RecoveryAttempts)
	assert.Equal(t, int64(0), snap.SuccessfulRecoveries)
	assert.Equal(t, time.Duration(0), snap.AverageRecoveryDuration)
}

func TestMetricsConcurrentAccess(t *testing.T) {
	m := newMetrics()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.recordError(&ErrorRecord{Kind: KindRateLimited, OriginModel: "gpt-5"})
				m.recordAttempt()
				_ = m.Snapshot()
			}
		}()
	}
	wg.Wait()

	snap := m.Snapshot()
	assert.Equal(t, int64(1000), snap.TotalErrors)
	assert.Equal(t, int64(1000), snap.RecoveryAttempts)
}
