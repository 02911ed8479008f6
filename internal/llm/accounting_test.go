package llm

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallLogConcurrentAppend(t *testing.T) {
	log := NewCallLog()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				log.Append(CallRecord{
					Provider:  fmt.Sprintf("provider-%d", worker%2),
					Success:   j%2 == 0,
					LatencyMS: 1,
				})
			}
		}(i)
	}
	wg.Wait()

	assert.Len(t, log.Records(), 400)

	stats := log.StatsByProvider()
	require.Len(t, stats, 2)
	assert.Equal(t, 200, stats["provider-0"].Calls)
	assert.Equal(t, 100, stats["provider-0"].Successes)
	assert.Equal(t, 100, stats["provider-0"].Failures)
}

func TestCallLogStamps(t *testing.T) {
	log := NewCallLog()
	log.Append(CallRecord{Provider: "openai"})

	records := log.Records()
	require.Len(t, records, 1)
	assert.False(t, records[0].At.IsZero())
}

func TestRecordsReturnsCopy(t *testing.T) {
	log := NewCallLog()
	log.Append(CallRecord{Provider: "openai"})

	records := log.Records()
	records[0].Provider = "mutated"
	assert.Equal(t, "openai", log.Records()[0].Provider)
}

func TestStatsByProviderLatency(t *testing.T) {
	log := NewCallLog()
	log.Append(CallRecord{Provider: "openai", LatencyMS: 100, Success: true})
	log.Append(CallRecord{Provider: "openai", LatencyMS: 300, Success: true, IsFallback: true})

	stats := log.StatsByProvider()
	require.Contains(t, stats, "openai")
	assert.Equal(t, int64(200), stats["openai"].AvgLatencyMS)
	assert.Equal(t, 1, stats["openai"].Fallbacks)
}

func TestCallRecordLatencySerializesAsMillis(t *testing.T) {
	buf, err := json.Marshal(CallRecord{Provider: "openai", LatencyMS: 250})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf, &decoded))
	assert.EqualValues(t, 250, decoded["latency_ms"])
}
