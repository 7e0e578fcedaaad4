package audio

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSilenceDuration(t *testing.T) {
	b := Silence(3*time.Second, 16000)
	assert.Equal(t, 3*time.Second, b.Duration())
	assert.Equal(t, 3*16000*2, len(b.PCM))
	for _, v := range b.PCM {
		if v != 0 {
			t.Fatalf("silence buffer contains non-zero sample")
		}
	}
}

func TestSilenceSubSecond(t *testing.T) {
	b := Silence(100*time.Millisecond, 16000)
	assert.Equal(t, 1600*2, len(b.PCM))
}

func TestSilenceBounded(t *testing.T) {
	b := Silence(9000000000*time.Second, 16000)
	assert.Equal(t, maxSilence, b.Duration())
	b = Silence(48*time.Hour, 16000)
	assert.Equal(t, maxSilence, b.Duration())
}

func TestConcatOrderPreserving(t *testing.T) {
	a := FromPCM([]byte{1, 1, 2, 2}, 16000)
	b := FromPCM([]byte{3, 3}, 16000)
	c := FromPCM([]byte{4, 4}, 16000)

	all := Concat(a, b, c)
	require.Equal(t, []byte{1, 1, 2, 2, 3, 3, 4, 4}, all.PCM)
}

func TestConcatAssociative(t *testing.T) {
	a := FromPCM([]byte{1, 1}, 16000)
	b := FromPCM([]byte{2, 2}, 16000)
	c := FromPCM([]byte{3, 3}, 16000)

	left := Concat(Concat(a, b), c)
	right := Concat(a, Concat(b, c))
	flat := Concat(a, b, c)

	require.Equal(t, flat.PCM, left.PCM)
	require.Equal(t, flat.PCM, right.PCM)
	require.Equal(t, flat.SampleRate, left.SampleRate)
}

func TestFromPCMDropsOddTrailingByte(t *testing.T) {
	b := FromPCM([]byte{1, 2, 3}, 16000)
	assert.Equal(t, []byte{1, 2}, b.PCM)
}

func TestEncodeWAVHeader(t *testing.T) {
	b := Silence(time.Second, 16000)
	out, err := b.EncodeWAV()
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(out, []byte("RIFF")))
	require.Equal(t, []byte("WAVE"), out[8:12])
	// A one second mono PCM16 track at 16kHz carries 32000 payload bytes.
	assert.Greater(t, len(out), 32000)
}
