package tts_test

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/MrWong99/bookparser/pkg/provider/tts"
	"github.com/MrWong99/bookparser/pkg/types"
)

func TestEncodeParseWAV(t *testing.T) {
	t.Parallel()

	// One second of mono 16-bit silence at 24 kHz.
	pcm := make([]byte, 24000*2)
	wav := tts.EncodeWAV(pcm, 24000, 1)

	info, err := tts.ParseWAV(wav)
	if err != nil {
		t.Fatalf("ParseWAV: %v", err)
	}
	if info.DataOffset != 44 || info.DataSize != len(pcm) {
		t.Errorf("data = %d+%d, want 44+%d", info.DataOffset, info.DataSize, len(pcm))
	}
	if info.SampleRate != 24000 || info.Channels != 1 || info.BitsPerSample != 16 {
		t.Errorf("format = %+v", info)
	}
	if math.Abs(info.Duration()-1.0) > 1e-9 {
		t.Errorf("Duration = %v, want 1.0", info.Duration())
	}
}

func TestParseWAV_ExtraChunk(t *testing.T) {
	t.Parallel()

	wav := tts.EncodeWAV(make([]byte, 8000), 8000, 1)
	// Insert an odd-sized LIST chunk between fmt and data.
	list := []byte("LIST\x03\x00\x00\x00abc\x00")
	withList := append(append(append([]byte{}, wav[:36]...), list...), wav[36:]...)
	binary.LittleEndian.PutUint32(withList[4:8], uint32(len(withList)-8))

	info, err := tts.ParseWAV(withList)
	if err != nil {
		t.Fatalf("ParseWAV: %v", err)
	}
	if info.DataOffset != 44+len(list) {
		t.Errorf("DataOffset = %d, want %d", info.DataOffset, 44+len(list))
	}
	if math.Abs(info.Duration()-0.5) > 1e-9 {
		t.Errorf("Duration = %v, want 0.5", info.Duration())
	}
}

func TestParseWAV_Invalid(t *testing.T) {
	t.Parallel()

	tests := map[string][]byte{
		"short":   []byte("RIFF"),
		"no riff": []byte("RIFX\x00\x00\x00\x00WAVE"),
		"no wave": []byte("RIFF\x00\x00\x00\x00AVI "),
		"no data": tts.EncodeWAV(nil, 8000, 1)[:36],
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if _, err := tts.ParseWAV(data); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestMaxEnd(t *testing.T) {
	t.Parallel()

	if got := tts.MaxEnd(nil); got != 0 {
		t.Errorf("MaxEnd(nil) = %v", got)
	}
	units := []types.TimingUnit{{Start: 0, End: 0.4}, {Start: 0.4, End: 1.2}, {Start: 0.2, End: 0.9}}
	if got := tts.MaxEnd(units); got != 1.2 {
		t.Errorf("MaxEnd = %v, want 1.2", got)
	}
}
